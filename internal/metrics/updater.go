package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Updater periodically updates metrics from the database
type Updater struct {
	db       *pgxpool.Pool
	interval time.Duration
	stopCh   chan struct{}
}

// NewUpdater creates a new metrics updater
func NewUpdater(db *pgxpool.Pool, interval time.Duration) *Updater {
	return &Updater{
		db:       db,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the metrics update loop
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	// Update immediately on start
	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater
func (u *Updater) Stop() {
	close(u.stopCh)
}

// update fetches and updates all metrics
func (u *Updater) update(ctx context.Context) {
	log.Debug().Msg("Updating metrics from database")

	u.updateRunStatusMetrics(ctx)
	u.updateRunOutcomeMetrics(ctx)
	u.updateDatabaseMetrics()

	log.Debug().Msg("Metrics updated successfully")
}

// updateRunStatusMetrics updates the persisted-run status gauges
func (u *Updater) updateRunStatusMetrics(ctx context.Context) {
	// Pre-zero the known statuses so runs moving between states don't leave
	// stale gauge values behind.
	for _, status := range []string{"pending", "running", "completed", "failed"} {
		RunsByStatus.WithLabelValues(status).Set(0)
	}

	query := `SELECT status, COUNT(*) FROM runs GROUP BY status`

	rows, err := u.db.Query(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch run status counts")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			continue
		}
		RunsByStatus.WithLabelValues(status).Set(float64(count))
	}
}

// updateRunOutcomeMetrics updates return and drawdown gauges from completed runs
func (u *Updater) updateRunOutcomeMetrics(ctx context.Context) {
	query := `
		SELECT
			COALESCE(AVG(total_return), 0) as avg_return,
			COALESCE(MAX(total_return), 0) as best_return,
			COALESCE(MIN(total_return), 0) as worst_return
		FROM runs
		WHERE status = 'completed'
	`

	var avgReturn, bestReturn, worstReturn float64
	err := u.db.QueryRow(ctx, query).Scan(&avgReturn, &bestReturn, &worstReturn)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch run outcome metrics")
		return
	}

	AverageRunReturn.Set(avgReturn)
	BestRunReturn.Set(bestReturn)
	WorstRunReturn.Set(worstReturn)

	// Most recently completed run
	query = `
		SELECT total_return, max_drawdown
		FROM runs
		WHERE status = 'completed' AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT 1
	`

	var lastReturn, lastDrawdown float64
	err = u.db.QueryRow(ctx, query).Scan(&lastReturn, &lastDrawdown)
	if err == nil {
		UpdateLastRun(lastReturn, lastDrawdown)
	}
}

// updateDatabaseMetrics updates database connection pool metrics
func (u *Updater) updateDatabaseMetrics() {
	stat := u.db.Stat()
	UpdateDatabaseConnections(stat.AcquiredConns(), stat.IdleConns())
}
