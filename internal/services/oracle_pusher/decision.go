package oracle_pusher

import (
	"math"
	"time"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
)

// Reason explains an update decision.
type Reason string

const (
	// ReasonInitial means the pair has never been observed on-chain.
	ReasonInitial Reason = "initial"
	// ReasonHeartbeat means the on-chain value is older than the feed's heartbeat.
	ReasonHeartbeat Reason = "heartbeat"
	// ReasonDeviation means the price moved at least the feed's threshold.
	ReasonDeviation Reason = "deviation"
	// ReasonNone means no update is needed.
	ReasonNone Reason = "none"
)

// Decision is the outcome of evaluating one (feed, network) pair.
type Decision struct {
	Update       bool
	Reason       Reason
	DeviationPct float64
}

// ShouldUpdate decides whether a pair needs a push. The first matching rule wins:
// never observed, heartbeat elapsed, deviation at or above threshold.
func ShouldUpdate(feed entity.FeedSpec, state entity.FeedState, currentPrice float64, now time.Time) Decision {
	if !state.IsObserved() {
		return Decision{Update: true, Reason: ReasonInitial}
	}

	deviation := DeviationPct(state.LastPrice, currentPrice)

	if state.Age(now) >= feed.Heartbeat() {
		return Decision{Update: true, Reason: ReasonHeartbeat, DeviationPct: deviation}
	}

	if deviation >= feed.DeviationThresholdPct {
		return Decision{Update: true, Reason: ReasonDeviation, DeviationPct: deviation}
	}

	return Decision{Reason: ReasonNone, DeviationPct: deviation}
}

// DeviationPct returns the absolute percentage change from last to current.
// It is 0 when last is the unobserved sentinel.
func DeviationPct(last, current float64) float64 {
	if last == 0 {
		return 0
	}
	return math.Abs((current-last)/last) * 100
}
