package api

// setupRoutes configures all API routes. Mutating endpoints sit behind
// the token middleware; reads stay open.
func (s *Server) setupRoutes() {
	auth := TokenAuth(s.authToken)

	// API v1 group
	v1 := s.router.Group("/api/v1")
	{
		// Status endpoints
		v1.GET("/status", s.handleGetStatus)
		v1.GET("/health", s.handleGetHealth)

		// Simulation run endpoints
		runs := v1.Group("/runs")
		{
			runs.POST("", auth, s.handleSubmitRun)
			runs.GET("", s.handleListRuns)
			runs.GET("/:id", s.handleGetRun)
			runs.GET("/:id/cycles", s.handleGetRunCycles)
			runs.DELETE("/:id", auth, s.handleDeleteRun)
		}

		// Calibration profile endpoints
		profiles := v1.Group("/profiles")
		{
			profiles.GET("", s.handleListProfiles)
			profiles.GET("/:name", s.handleGetProfile)
			profiles.POST("", auth, s.handleSaveProfile)
		}

		// Technical analysis endpoints
		v1.GET("/analysis/:symbol", s.handleGetAnalysis)

		// Run progress stream
		v1.GET("/ws", s.handleWebSocket)
	}

	// Root endpoint
	s.router.GET("/", s.handleRoot)
}
