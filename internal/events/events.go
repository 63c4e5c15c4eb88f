// Package events publishes run lifecycle notifications over NATS.
//
// Subjects live under <prefix>.runs. and carry a JSON Event envelope.
// Publishing is best-effort: a NATS outage degrades to logged warnings
// and never fails a simulation run. A nil *Bus is a no-op publisher.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a run lifecycle event.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventCycleCompleted EventType = "cycle_completed"
	EventRunCompleted   EventType = "run_completed"
	EventRunFailed      EventType = "run_failed"
)

// subjectSuffix maps an event type to its subject leaf.
func (t EventType) subjectSuffix() string {
	switch t {
	case EventRunStarted:
		return "started"
	case EventCycleCompleted:
		return "cycle"
	case EventRunCompleted:
		return "completed"
	case EventRunFailed:
		return "failed"
	}
	return string(t)
}

// Event is the envelope every run event is published in.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      EventType       `json:"type"`
	RunID     uuid.UUID       `json:"run_id"`
	RunName   string          `json:"run_name,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// RunStartedEvent is the payload published when a run begins.
type RunStartedEvent struct {
	Symbols        []string  `json:"symbols"`
	StartDate      time.Time `json:"start_date"`
	Days           int       `json:"days"`
	InitialCapital float64   `json:"initial_capital"`
	Profile        string    `json:"profile,omitempty"`
}

// CycleEvent is the compact per-cycle payload. It deliberately omits the
// allocation breakdown and action log so a long run stays cheap to stream.
type CycleEvent struct {
	CycleNumber      int       `json:"cycle_number"`
	CycleDate        time.Time `json:"cycle_date"`
	TotalValue       float64   `json:"total_value"`
	NetReturn        float64   `json:"net_return"`
	MarketRegime     string    `json:"market_regime"`
	ProtectionActive bool      `json:"protection_active"`
}

// RunCompletedEvent is the payload published when a run finishes cleanly.
type RunCompletedEvent struct {
	FinalCapital    float64 `json:"final_capital"`
	TotalReturn     float64 `json:"total_return"`
	TotalCycles     int     `json:"total_cycles"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// RunFailedEvent is the payload published when a run aborts.
type RunFailedEvent struct {
	Reason string `json:"reason"`
}
