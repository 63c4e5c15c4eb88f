package marketdata

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// Static serves fixture close series for offline runs and tests.
type Static struct {
	*sim.StaticProvider
}

// NewStatic wraps per-symbol close series into a Provider.
func NewStatic(start time.Time, series map[string][]float64) *Static {
	return &Static{StaticProvider: sim.NewStaticProvider(start, series)}
}

// Health always succeeds; fixture data has no upstream to probe.
func (s *Static) Health(context.Context) error {
	return nil
}

type staticFixture struct {
	Start  string               `yaml:"start"` // YYYY-MM-DD, optional
	Series map[string][]float64 `yaml:"series"`
}

// LoadStaticFile reads a YAML fixture of per-symbol close series. When
// the fixture carries no start date, series are dated so the newest
// close lands on today.
func LoadStaticFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}

	var fx staticFixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	if len(fx.Series) == 0 {
		return nil, fmt.Errorf("fixture %s has no series", path)
	}

	var start time.Time
	if fx.Start != "" {
		start, err = time.Parse("2006-01-02", fx.Start)
		if err != nil {
			return nil, fmt.Errorf("parsing fixture start date %q: %w", fx.Start, err)
		}
	} else {
		longest := 0
		for _, closes := range fx.Series {
			if len(closes) > longest {
				longest = len(closes)
			}
		}
		start = time.Now().AddDate(0, 0, -(longest - 1))
	}

	return NewStatic(start, fx.Series), nil
}
