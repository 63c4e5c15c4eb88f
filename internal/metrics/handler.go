package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus metrics HTTP handler. The API server mounts
// it on its own router; the standalone metrics server registers it directly.
func Handler() http.Handler {
	return promhttp.Handler()
}
