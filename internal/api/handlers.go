package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/foliosim/internal/db"
	"github.com/ajitpratap0/foliosim/internal/indicators"
	"github.com/ajitpratap0/foliosim/internal/profiles"
	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Foliosim API",
		"version": "1.0.0",
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// Status endpoints

// handleGetStatus returns comprehensive service status
func (s *Server) handleGetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Check database connection
	dbStatus := "healthy"
	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			dbStatus = "unhealthy"
			log.Warn().Err(err).Msg("Database health check failed")
		}
	} else {
		dbStatus = "not_configured"
	}

	// Check the market data source. A missing provider is fine: runs fall
	// back to synthetic prices.
	marketStatus := "not_configured"
	if s.provider != nil {
		marketStatus = "healthy"
		if err := s.provider.Health(c.Request.Context()); err != nil {
			marketStatus = "unhealthy"
			log.Warn().Err(err).Msg("Market data health check failed")
		}
	}

	// Determine overall system status
	systemStatus := "healthy"
	if dbStatus == "unhealthy" || marketStatus == "unhealthy" {
		systemStatus = "degraded"
	}

	status := gin.H{
		"status":    systemStatus,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).Seconds(),
		"version":   "1.0.0",
		"components": gin.H{
			"database": gin.H{
				"status": dbStatus,
			},
			"market_data": gin.H{
				"status": marketStatus,
			},
			"events": s.bus.Stats(),
			"websocket": gin.H{
				"clients": s.hub.ClientCount(),
			},
			"runner": gin.H{
				"active_runs": s.runner.Active(),
			},
		},
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb":       toMB(memStats.Alloc),
				"total_alloc_mb": toMB(memStats.TotalAlloc),
				"sys_mb":         toMB(memStats.Sys),
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		},
	}

	c.JSON(http.StatusOK, status)
}

// handleGetHealth returns a simple health check (for load balancers)
func (s *Server) handleGetHealth(c *gin.Context) {
	// Quick health check - just verify database connectivity
	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unavailable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// Run endpoints

// submitRunRequest is the body accepted by POST /runs.
type submitRunRequest struct {
	Name           string   `json:"name"`
	Symbols        []string `json:"symbols" binding:"required,min=1"`
	StartDate      string   `json:"start_date"`
	Days           int      `json:"days" binding:"required,gt=0"`
	InitialCapital float64  `json:"initial_capital" binding:"required,gt=0"`
	Profile        string   `json:"profile"`
	Interval       string   `json:"interval"`
	Seed           int64    `json:"seed"`
}

// runResponse is the JSON shape runs are served in. Summary columns are
// pointers: they stay null until the run completes.
type runResponse struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Status            string          `json:"status"`
	Error             *string         `json:"error,omitempty"`
	FinalCapital      *float64        `json:"final_capital,omitempty"`
	TotalReturn       *float64        `json:"total_return,omitempty"`
	MaxDrawdown       *float64        `json:"max_drawdown,omitempty"`
	TotalCycles       *int            `json:"total_cycles,omitempty"`
	ProtectionEntries *int            `json:"protection_entries,omitempty"`
	ProtectionExits   *int            `json:"protection_exits,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	Config            json.RawMessage `json:"config,omitempty"`
	Result            json.RawMessage `json:"result,omitempty"`
}

// toRunResponse converts a stored run. The config and full result
// documents are only included in detail views; list views stay compact.
func toRunResponse(run *db.Run, detail bool) runResponse {
	resp := runResponse{
		ID:                run.ID.String(),
		Name:              run.Name,
		Status:            string(run.Status),
		Error:             run.Error,
		FinalCapital:      run.FinalCapital,
		TotalReturn:       run.TotalReturn,
		MaxDrawdown:       run.MaxDrawdown,
		TotalCycles:       run.TotalCycles,
		ProtectionEntries: run.ProtectionEntries,
		ProtectionExits:   run.ProtectionExits,
		CreatedAt:         run.CreatedAt,
		StartedAt:         run.StartedAt,
		CompletedAt:       run.CompletedAt,
	}

	if detail {
		resp.Config = run.Config
		resp.Result = run.Result
	}

	return resp
}

// handleSubmitRun accepts a simulation request, persists it as pending,
// and queues it on the background runner. The response returns before
// the simulation executes; progress streams over the WebSocket.
func (s *Server) handleSubmitRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	var req submitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	cfg := sim.Config{
		Name:           req.Name,
		Symbols:        req.Symbols,
		Duration:       time.Duration(req.Days) * 24 * time.Hour,
		InitialCapital: req.InitialCapital,
		Profile:        req.Profile,
		Interval:       req.Interval,
		Seed:           req.Seed,
	}

	if req.StartDate != "" {
		startDate, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "start_date must be formatted as YYYY-MM-DD",
			})
			return
		}
		cfg.StartDate = startDate
	}

	// Reject configurations the engine would refuse before persisting
	// anything.
	if _, err := sim.NewEngine(cfg, nil, nil, nil); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	id := uuid.New()
	if cfg.Name == "" {
		cfg.Name = "run-" + id.String()[:8]
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to encode run config",
		})
		return
	}

	run := &db.Run{
		ID:     id,
		Name:   cfg.Name,
		Config: cfgJSON,
	}

	if err := s.runs.CreateRun(c.Request.Context(), run); err != nil {
		log.Error().Err(err).Msg("Failed to create run")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to create run",
		})
		return
	}

	s.runner.Submit(run.ID, cfg)

	c.JSON(http.StatusCreated, toRunResponse(run, true))
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	runs, err := s.runs.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to retrieve runs",
		})
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run, false))
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":   out,
		"total":  len(out),
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid run ID format",
		})
		return
	}

	run, err := s.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "run not found",
			})
			return
		}
		log.Error().Err(err).Str("run_id", id.String()).Msg("Failed to get run")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to retrieve run",
		})
		return
	}

	c.JSON(http.StatusOK, toRunResponse(run, true))
}

// handleGetRunCycles serves the per-cycle trajectory of a run. A run
// that has not completed yet answers with its status and no cycles.
func (s *Server) handleGetRunCycles(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid run ID format",
		})
		return
	}

	run, err := s.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "run not found",
			})
			return
		}
		log.Error().Err(err).Str("run_id", id.String()).Msg("Failed to get run")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to retrieve run",
		})
		return
	}

	if len(run.Result) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"run_id": run.ID.String(),
			"status": string(run.Status),
			"cycles": []*sim.CycleRecord{},
			"total":  0,
		})
		return
	}

	var result sim.RunResult
	if err := json.Unmarshal(run.Result, &result); err != nil {
		log.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to decode run result")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to decode run result",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id": run.ID.String(),
		"status": string(run.Status),
		"cycles": result.Cycles,
		"total":  len(result.Cycles),
	})
}

func (s *Server) handleDeleteRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid run ID format",
		})
		return
	}

	if err := s.runs.DeleteRun(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "run not found",
			})
			return
		}
		log.Error().Err(err).Str("run_id", id.String()).Msg("Failed to delete run")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to delete run",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "deleted",
		"run_id": id.String(),
	})
}

// Profile endpoints

func (s *Server) handleListProfiles(c *gin.Context) {
	if s.profiles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "profile store not configured",
		})
		return
	}

	names, err := s.profiles.ListProfiles(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list profiles")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to retrieve profiles",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profiles": names,
		"total":    len(names),
	})
}

func (s *Server) handleGetProfile(c *gin.Context) {
	if s.profiles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "profile store not configured",
		})
		return
	}

	name := c.Param("name")

	profile, err := s.profiles.LoadProfile(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": fmt.Sprintf("profile %q not found", name),
			})
			return
		}
		log.Error().Err(err).Str("profile", name).Msg("Failed to load profile")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to retrieve profile",
		})
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleSaveProfile(c *gin.Context) {
	if s.profiles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "profile store not configured",
		})
		return
	}

	var profile profiles.Profile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	if err := s.profiles.SaveProfile(c.Request.Context(), &profile); err != nil {
		var verrs profiles.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": verrs.Error(),
			})
			return
		}
		log.Error().Err(err).Str("profile", profile.Metadata.Name).Msg("Failed to save profile")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to save profile",
		})
		return
	}

	c.JSON(http.StatusCreated, profile)
}

// Analysis endpoints

// handleGetAnalysis fetches recent history for a symbol and serves
// indicator readings over it. With an indicator query parameter only
// that indicator runs; otherwise the full panel is computed.
func (s *Server) handleGetAnalysis(c *gin.Context) {
	if s.provider == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "market data source not configured",
		})
		return
	}

	symbol := c.Param("symbol")

	var params indicators.Params
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid parameters: %v", err),
		})
		return
	}

	interval := c.DefaultQuery("interval", "1d")
	lookback, _ := strconv.Atoi(c.DefaultQuery("lookback", "90"))

	candles, err := s.provider.GetHistory(c.Request.Context(), symbol, interval, lookback)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch history for analysis")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to retrieve market data",
		})
		return
	}

	if name := c.Query("indicator"); name != "" {
		result, err := s.analysis.Calculate(name, candles, params)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"symbol":    symbol,
			"interval":  interval,
			"candles":   len(candles),
			"indicator": name,
			"result":    result,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":     symbol,
		"interval":   interval,
		"candles":    len(candles),
		"indicators": s.analysis.Analyze(candles),
	})
}

// Utility functions

var startTime = time.Now()

func toMB(bytes uint64) uint64 {
	return bytes / 1024 / 1024
}
