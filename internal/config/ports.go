// Package config provides configuration management for FolioSim.
// This file centralizes all port constants to avoid duplication and ensure consistency.
package config

// API and Web Service Ports
const (
	// APIServerPort is the default port for the REST API server.
	APIServerPort = 8081

	// WebSocketPort is the port for WebSocket connections (uses same as API).
	WebSocketPort = APIServerPort
)

// Infrastructure Service Ports
const (
	// VaultPort is the default port for HashiCorp Vault.
	VaultPort = 8200

	// PostgresPort is the default port for PostgreSQL.
	PostgresPort = 5432

	// RedisPort is the default port for Redis.
	RedisPort = 6379

	// NATSPort is the default port for NATS messaging.
	NATSPort = 4222
)

// Monitoring Service Ports
const (
	// MetricsPort is the default port for the Prometheus metrics endpoint.
	MetricsPort = 9100

	// PrometheusPort is the default port for Prometheus itself.
	PrometheusPort = 9090

	// GrafanaPort is the default port for Grafana.
	GrafanaPort = 3000
)
