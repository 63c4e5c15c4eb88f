package sim

import (
	"math"

	"github.com/rs/zerolog/log"
)

// Protection thresholds. Entry and exit both require two independent
// signals, or one unmistakably strong one, so a single noisy reading
// cannot whipsaw the portfolio in and out of reserve.
const (
	protectionWindow = 10

	entryDeclineThreshold    = -0.08
	entryStrongDecline       = -0.12
	entryVolThreshold        = 0.06
	entryFiveDayLoss         = -0.12
	entrySentimentFloor      = 0.3
	entryAccelDecline        = -0.05
	exitRecoveryThreshold    = 0.03
	exitStrongRecovery       = 0.06
	exitVolCalm              = 0.03
	exitSentimentCeiling     = 0.6
	exitMomentumThreshold    = 0.02
	exitCooldownCycles       = 3
	minSignalsForTransition  = 2
	sentimentStrongStep      = 0.10
	sentimentWeakStep        = 0.05
	sentimentStrongThreshold = 0.01
)

// ProtectionMachine is the two-state controller that can park the whole
// portfolio in the reserve asset. It observes the daily return of the
// primary reference asset once per cycle and transitions on signal counts.
// State is owned by a single strategy instance and persists across cycles.
type ProtectionMachine struct {
	active     bool
	cooldown   int
	sentiment  float64
	returns    []float64
	sinceEntry float64 // growth factor of the reference since entry
}

// NewProtectionMachine creates a machine in the unprotected state with
// neutral sentiment.
func NewProtectionMachine() *ProtectionMachine {
	return &ProtectionMachine{
		sentiment:  0.5,
		sinceEntry: 1.0,
	}
}

// Active reports whether capital is currently parked in reserve.
func (p *ProtectionMachine) Active() bool { return p.active }

// Cooldown returns the remaining cycles during which re-entry is suppressed.
func (p *ProtectionMachine) Cooldown() int { return p.cooldown }

// Sentiment returns the current sentiment scalar in [0,1].
func (p *ProtectionMachine) Sentiment() float64 { return p.sentiment }

// Step feeds one cycle's market return through the machine: the return is
// recorded, entry/exit is evaluated against the pre-update sentiment, and
// sentiment is updated last. Returned events name any transition that
// fired ("protection_entry", "protection_exit").
func (p *ProtectionMachine) Step(marketReturn float64) []string {
	// Cooldown burns down one cycle at a time while unprotected.
	if !p.active && p.cooldown > 0 {
		p.cooldown--
	}

	p.returns = append(p.returns, marketReturn)
	if len(p.returns) > protectionWindow {
		p.returns = p.returns[len(p.returns)-protectionWindow:]
	}

	if p.active {
		p.sinceEntry *= 1 + marketReturn
	}

	var events []string
	if p.active {
		if fired, signals := p.evaluateExit(marketReturn); fired {
			p.active = false
			p.cooldown = exitCooldownCycles
			p.sinceEntry = 1.0
			events = append(events, "protection_exit")
			log.Info().
				Strs("signals", signals).
				Int("cooldown", p.cooldown).
				Msg("Capital protection deactivated")
		}
	} else if p.cooldown == 0 {
		if fired, signals := p.evaluateEntry(); fired {
			p.active = true
			p.sinceEntry = 1.0
			events = append(events, "protection_entry")
			log.Warn().
				Strs("signals", signals).
				Float64("sentiment", p.sentiment).
				Msg("Capital protection activated")
		}
	}

	p.updateSentiment(marketReturn)

	return events
}

// evaluateEntry counts the independent risk signals currently firing.
// Two signals, or one very strong decline, trip the machine.
func (p *ProtectionMachine) evaluateEntry() (bool, []string) {
	cum7 := cumulativeReturn(tail(p.returns, 7))

	if cum7 <= entryStrongDecline {
		return true, []string{"strong_decline"}
	}

	var signals []string

	if cum7 <= entryDeclineThreshold {
		signals = append(signals, "cumulative_decline")
	}
	if consecutiveSigned(p.returns, 2, false) {
		signals = append(signals, "consecutive_losses")
	}
	if len(p.returns) >= 3 && meanAbs(tail(p.returns, 3)) > entryVolThreshold {
		signals = append(signals, "volatility_spike")
	}
	if cumulativeReturn(tail(p.returns, 5)) <= entryFiveDayLoss {
		signals = append(signals, "five_day_loss")
	}
	if p.sentiment < entrySentimentFloor {
		signals = append(signals, "sentiment_low")
	}
	if p.acceleratingDecline() {
		signals = append(signals, "accelerating_decline")
	}

	return len(signals) >= minSignalsForTransition, signals
}

// evaluateExit counts the recovery signals currently firing. Two signals,
// or a single-day recovery of +6%, release the machine.
func (p *ProtectionMachine) evaluateExit(marketReturn float64) (bool, []string) {
	if marketReturn >= exitStrongRecovery {
		return true, []string{"strong_recovery"}
	}

	var signals []string

	if p.sinceEntry-1 >= exitRecoveryThreshold {
		signals = append(signals, "recovery")
	}
	if consecutiveSigned(p.returns, 2, true) {
		signals = append(signals, "consecutive_gains")
	}
	if len(p.returns) >= 3 && meanAbs(tail(p.returns, 3)) < exitVolCalm {
		signals = append(signals, "volatility_calm")
	}
	if p.sentiment > exitSentimentCeiling {
		signals = append(signals, "sentiment_high")
	}
	if cumulativeReturn(tail(p.returns, 3)) > exitMomentumThreshold {
		signals = append(signals, "momentum_positive")
	}

	return len(signals) >= minSignalsForTransition, signals
}

// acceleratingDecline reports a 3-day slide that is both deep and getting
// strictly worse day over day.
func (p *ProtectionMachine) acceleratingDecline() bool {
	if len(p.returns) < 3 {
		return false
	}

	last3 := tail(p.returns, 3)
	if cumulativeReturn(last3) >= entryAccelDecline {
		return false
	}

	return last3[2] < last3[1] && last3[1] < last3[0]
}

// updateSentiment nudges sentiment toward 1 on up days and toward 0 on
// down days, with a bigger step past a 1% move, clamped to [0,1].
func (p *ProtectionMachine) updateSentiment(marketReturn float64) {
	switch {
	case marketReturn > sentimentStrongThreshold:
		p.sentiment += sentimentStrongStep
	case marketReturn > 0:
		p.sentiment += sentimentWeakStep
	case marketReturn < -sentimentStrongThreshold:
		p.sentiment -= sentimentStrongStep
	case marketReturn < 0:
		p.sentiment -= sentimentWeakStep
	}

	p.sentiment = clamp(p.sentiment, 0, 1)
}

// consecutiveSigned reports whether the last n returns all share the
// requested sign (positive when wantPositive, negative otherwise).
func consecutiveSigned(returns []float64, n int, wantPositive bool) bool {
	if len(returns) < n {
		return false
	}

	for _, r := range tail(returns, n) {
		if wantPositive && r <= 0 {
			return false
		}
		if !wantPositive && r >= 0 {
			return false
		}
	}

	return true
}

// meanAbs returns the mean absolute value of the series.
func meanAbs(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += math.Abs(v)
	}

	return sum / float64(len(values))
}
