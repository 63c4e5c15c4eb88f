// Package alerts delivers operator notifications for simulation run
// lifecycle events. A Manager fans each alert out to every configured
// channel; a nil *Manager discards everything, so callers never guard
// sends behind a feature flag.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/foliosim/internal/metrics"
	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert represents an alert message
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Alerter is one delivery channel. Name labels the channel in metrics
// and logs.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
	Name() string
}

// Config selects the delivery channels.
type Config struct {
	Enabled       bool
	TelegramToken string
	ChatIDs       []int64
}

// Manager manages multiple alert channels
type Manager struct {
	alerters []Alerter
}

// NewManager creates a manager over an explicit set of channels.
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{
		alerters: alerters,
	}
}

// New builds a manager from configuration. When alerting is disabled it
// returns a nil manager, which silently discards every alert. An enabled
// configuration always writes alerts to the structured log; a Telegram
// token adds bot delivery on top.
func New(cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	alerters := []Alerter{NewLogAlerter()}

	if cfg.TelegramToken != "" {
		tg, err := NewTelegramAlerter(cfg.TelegramToken, cfg.ChatIDs)
		if err != nil {
			return nil, err
		}
		alerters = append(alerters, tg)
	}

	return NewManager(alerters...), nil
}

// Send fans the alert out to all configured channels. Every channel is
// attempted regardless of earlier failures; the last error is returned.
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if m == nil || len(m.alerters) == 0 {
		return nil
	}

	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		err := alerter.Send(ctx, alert)
		metrics.RecordAlert(alerter.Name(), err == nil)
		if err != nil {
			log.Error().
				Err(err).
				Str("channel", alerter.Name()).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}

	return lastErr
}

// SendCritical is a convenience method for sending critical alerts
func (m *Manager) SendCritical(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityCritical,
		Metadata: metadata,
	})
}

// SendWarning is a convenience method for sending warning alerts
func (m *Manager) SendWarning(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityWarning,
		Metadata: metadata,
	})
}

// SendInfo is a convenience method for sending info alerts
func (m *Manager) SendInfo(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityInfo,
		Metadata: metadata,
	})
}

// Run lifecycle notifications. Delivery is best-effort: failures are
// logged inside Send and never propagated to the run itself.

// RunCompleted notifies that a simulation run finished successfully.
func (m *Manager) RunCompleted(ctx context.Context, result *sim.RunResult) {
	if m == nil || result == nil {
		return
	}
	m.SendInfo(ctx, "Simulation Run Completed", fmt.Sprintf(
		"Run %q finished: %+.2f%% over %d cycles.",
		result.Name, result.FinalSummary.TotalReturn*100, result.TotalCycles,
	), map[string]interface{}{
		"run":           result.Name,
		"final_capital": result.FinalSummary.FinalCapital,
		"total_return":  result.FinalSummary.TotalReturn,
		"cycles":        result.TotalCycles,
	})
}

// RunFailed notifies that a simulation run aborted.
func (m *Manager) RunFailed(ctx context.Context, runName, reason string) {
	if m == nil {
		return
	}
	m.SendCritical(ctx, "Simulation Run Failed", fmt.Sprintf(
		"Run %q aborted: %s", runName, reason,
	), map[string]interface{}{
		"run":    runName,
		"reason": reason,
	})
}

// ProtectionEntered notifies that a run switched into capital
// protection during the given cycle.
func (m *Manager) ProtectionEntered(ctx context.Context, runName string, rec *sim.CycleRecord) {
	if m == nil || rec == nil {
		return
	}
	m.SendWarning(ctx, "Protection Mode Entered", fmt.Sprintf(
		"Run %q entered capital protection at cycle %d (%s regime).",
		runName, rec.CycleNumber, rec.MarketRegime,
	), map[string]interface{}{
		"run":         runName,
		"cycle":       rec.CycleNumber,
		"regime":      rec.MarketRegime,
		"total_value": rec.TotalValue,
	})
}

// LogAlerter writes alerts to the structured log so every notification
// lands in the log stream even when no external channel is reachable.
type LogAlerter struct{}

// NewLogAlerter creates a new log-based alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

// Name implements Alerter.
func (l *LogAlerter) Name() string { return "log" }

// Send sends an alert by logging it
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := log.Info()

	switch alert.Severity {
	case SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	}

	for key, value := range alert.Metadata {
		event = event.Interface(key, value)
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg(alert.Message)

	return nil
}
