package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/foliosim/internal/metrics"
	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// DefaultSubjectPrefix namespaces run subjects when no prefix is configured.
const DefaultSubjectPrefix = "foliosim"

// Config configures the event bus connection.
type Config struct {
	URL           string
	SubjectPrefix string // root prefix, run events go under <prefix>.runs.
}

// Bus publishes run lifecycle events to NATS.
type Bus struct {
	nc     *nats.Conn
	prefix string // fully composed, e.g. "foliosim.runs."
}

// Connect dials NATS and returns a run event bus. The connection retries
// forever on drops; the caller decides what to do when the initial dial
// fails (typically log a warning and run without events).
func Connect(cfg Config) (*Bus, error) {
	nc, err := nats.Connect(
		cfg.URL,
		nats.Name("foliosim"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := strings.TrimSuffix(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	prefix += ".runs."

	log.Info().
		Str("nats_url", cfg.URL).
		Str("prefix", prefix).
		Msg("Run event bus connected")

	return &Bus{
		nc:     nc,
		prefix: prefix,
	}, nil
}

// RunStarted announces a new simulation run.
func (b *Bus) RunStarted(runID uuid.UUID, cfg sim.Config) {
	b.publish(EventRunStarted, runID, cfg.Name, RunStartedEvent{
		Symbols:        cfg.Symbols,
		StartDate:      cfg.StartDate,
		Days:           int(cfg.Duration.Hours() / 24),
		InitialCapital: cfg.InitialCapital,
		Profile:        cfg.Profile,
	})
}

// CycleCompleted publishes a compact record for one finished cycle.
func (b *Bus) CycleCompleted(runID uuid.UUID, runName string, rec *sim.CycleRecord) {
	if rec == nil {
		return
	}
	b.publish(EventCycleCompleted, runID, runName, CycleEvent{
		CycleNumber:      rec.CycleNumber,
		CycleDate:        rec.CycleDate,
		TotalValue:       rec.TotalValue,
		NetReturn:        rec.NetReturn,
		MarketRegime:     rec.MarketRegime,
		ProtectionActive: rec.ProtectionActive,
	})
}

// RunCompleted announces a successfully finished run.
func (b *Bus) RunCompleted(runID uuid.UUID, result *sim.RunResult) {
	if result == nil {
		return
	}
	b.publish(EventRunCompleted, runID, result.Name, RunCompletedEvent{
		FinalCapital:    result.FinalSummary.FinalCapital,
		TotalReturn:     result.FinalSummary.TotalReturn,
		TotalCycles:     result.TotalCycles,
		DurationSeconds: result.CompletedAt.Sub(result.StartedAt).Seconds(),
	})
}

// RunFailed announces an aborted run.
func (b *Bus) RunFailed(runID uuid.UUID, runName, reason string) {
	b.publish(EventRunFailed, runID, runName, RunFailedEvent{Reason: reason})
}

// publish wraps the payload in an Event envelope and sends it. Errors are
// logged and swallowed so an event bus outage never fails a run. During a
// reconnect the client buffers outgoing messages itself.
func (b *Bus) publish(eventType EventType, runID uuid.UUID, runName string, payload interface{}) {
	if b == nil || b.nc == nil {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("type", string(eventType)).Msg("Failed to marshal run event payload")
		return
	}

	evt := Event{
		ID:        uuid.New(),
		Type:      eventType,
		RunID:     runID,
		RunName:   runName,
		Timestamp: time.Now().UTC(),
		Payload:   body,
	}

	data, err := json.Marshal(&evt)
	if err != nil {
		log.Warn().Err(err).Str("type", string(eventType)).Msg("Failed to marshal run event")
		return
	}

	subject := b.prefix + eventType.subjectSuffix()
	if err := b.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish run event")
		return
	}

	metrics.RecordNATSPublished()

	log.Debug().
		Str("event_id", evt.ID.String()).
		Str("type", string(eventType)).
		Str("run_id", runID.String()).
		Str("subject", subject).
		Msg("Published run event")
}

// Handler receives decoded run events.
type Handler func(*Event)

// Subscription is an active run event subscription.
type Subscription struct {
	sub     *nats.Subscription
	subject string
}

// Subscribe delivers every run event published under the bus prefix.
// Messages that fail to decode are logged and dropped.
func (b *Bus) Subscribe(handler Handler) (*Subscription, error) {
	if b == nil || b.nc == nil {
		return nil, fmt.Errorf("event bus is not connected")
	}

	subject := b.prefix + ">"
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(m.Data, &evt); err != nil {
			log.Warn().Err(err).Str("subject", m.Subject).Msg("Failed to decode run event")
			return
		}
		metrics.RecordNATSReceived()
		handler(&evt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to run events: %w", err)
	}

	log.Info().Str("subject", subject).Msg("Subscribed to run events")

	return &Subscription{sub: sub, subject: subject}, nil
}

// Unsubscribe stops delivery for this subscription.
func (s *Subscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}

// Connected reports whether the bus currently has a live connection.
func (b *Bus) Connected() bool {
	return b != nil && b.nc != nil && b.nc.IsConnected()
}

// Stats returns connection counters for the status endpoint.
func (b *Bus) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"connected": false,
	}

	if b != nil && b.nc != nil {
		stats["connected"] = b.nc.IsConnected()
		stats["status"] = b.nc.Status().String()
		stats["connected_url"] = b.nc.ConnectedUrl()
		stats["out_msgs"] = b.nc.Stats().OutMsgs
		stats["in_msgs"] = b.nc.Stats().InMsgs
		stats["reconnects"] = b.nc.Stats().Reconnects
	}

	return stats
}

// Close shuts the connection down. Safe on a nil bus.
func (b *Bus) Close() {
	if b == nil || b.nc == nil {
		return
	}
	b.nc.Close()
	log.Info().Msg("Run event bus closed")
}
