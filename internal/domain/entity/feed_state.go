package entity

import "time"

// PairKey identifies one (feed, network) pair.
type PairKey struct {
	FeedID  FeedID
	Network string
}

// FeedState is the last confirmed on-chain observation for one pair.
// A zero LastPrice is the sentinel for "never observed on-chain".
type FeedState struct {
	LastPrice       float64
	LastConfirmedAt time.Time
}

// IsObserved reports whether the pair has ever been confirmed on-chain.
func (s FeedState) IsObserved() bool {
	return s.LastPrice != 0
}

// Age returns how long ago the state was confirmed.
func (s FeedState) Age(now time.Time) time.Duration {
	return now.Sub(s.LastConfirmedAt)
}
