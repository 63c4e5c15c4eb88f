// Package api serves the simulation REST API: run submission and
// retrieval, calibration profiles, technical analysis, service status,
// and a WebSocket stream of run progress events. Submitted runs execute
// asynchronously through a bounded-parallel Runner.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/foliosim/internal/alerts"
	"github.com/ajitpratap0/foliosim/internal/db"
	"github.com/ajitpratap0/foliosim/internal/events"
	"github.com/ajitpratap0/foliosim/internal/indicators"
	"github.com/ajitpratap0/foliosim/internal/marketdata"
	"github.com/ajitpratap0/foliosim/internal/metrics"
	"github.com/ajitpratap0/foliosim/internal/profiles"
)

// Server represents the REST API server
type Server struct {
	router    *gin.Engine
	db        *db.DB
	runs      *db.RunStore
	profiles  profiles.Store
	provider  marketdata.Provider
	analysis  *indicators.Service
	bus       *events.Bus
	hub       *Hub
	runner    *Runner
	authToken string
	addr      string
	server    *http.Server
}

// Config contains server configuration plus the services the handlers
// depend on. Optional services may be nil; the endpoints they back then
// answer 503 instead.
type Config struct {
	Host string
	Port int

	// AuthToken guards the mutating endpoints when non-empty.
	AuthToken string

	DB       *db.DB
	Runs     *db.RunStore
	Profiles profiles.Store
	Provider marketdata.Provider
	Bus      *events.Bus
	Alerts   *alerts.Manager

	// MaxConcurrentRuns bounds the background run executor. Non-positive
	// falls back to DefaultMaxConcurrentRuns.
	MaxConcurrentRuns int
}

// NewServer creates a new API server
func NewServer(config Config) *Server {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // TODO: Configure allowed origins
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	hub := NewHub()

	server := &Server{
		router:    router,
		db:        config.DB,
		runs:      config.Runs,
		profiles:  config.Profiles,
		provider:  config.Provider,
		analysis:  indicators.NewService(),
		bus:       config.Bus,
		hub:       hub,
		runner:    NewRunner(config.Runs, config.Profiles, config.Provider, config.Bus, config.Alerts, hub, config.MaxConcurrentRuns),
		authToken: config.AuthToken,
		addr:      addr,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Hub exposes the WebSocket hub so callers can broadcast outside the
// run lifecycle.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Runner exposes the background run executor.
func (s *Server) Runner() *Runner {
	return s.runner
}

// Start starts the HTTP server and the WebSocket hub loop. It blocks
// until the listener stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.hub.Run()

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server, then aborts any simulations
// still executing and waits for the runner to drain.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	s.runner.Close()

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log request
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		// Label the metric with the route template, not the raw path, so
		// run IDs don't explode the label cardinality.
		route := c.FullPath()
		if route == "" {
			route = path
		}
		metrics.RecordAPIRequest(method, route, strconv.Itoa(statusCode), latency.Seconds()*1000)

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}
