// Package entity contains the core domain entities for the oracle pusher.
// These entities represent the fundamental business objects and have no dependencies
// beyond go-ethereum primitive types.
package entity

import (
	"encoding/hex"
	"fmt"
	"slices"
	"time"

	"github.com/archon-research/oracle-pusher/internal/pkg/hexutil"
)

// StableThresholdPct is the deviation threshold at or below which a feed is
// treated as a stable asset for display purposes.
const StableThresholdPct = 0.1

// FeedID is the 32-byte identifier of a Pyth price feed.
type FeedID [32]byte

// ParseFeedID parses a 64-character hex feed identifier, with or without a 0x prefix.
func ParseFeedID(s string) (FeedID, error) {
	b, err := hexutil.DecodeFixed32(s)
	if err != nil {
		return FeedID{}, fmt.Errorf("invalid feed id %q: %w", s, err)
	}
	return FeedID(b), nil
}

// Hex returns the lower-case hex encoding without a 0x prefix, matching the
// ids returned by the price service.
func (id FeedID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String returns the 0x-prefixed hex encoding.
func (id FeedID) String() string {
	return "0x" + id.Hex()
}

// IsZero reports whether the id is all zero bytes.
func (id FeedID) IsZero() bool {
	return id == FeedID{}
}

// FeedSpec describes a price feed and the networks it is pushed to.
// It is immutable once loaded.
type FeedSpec struct {
	ID                    FeedID
	Symbol                string
	DeviationThresholdPct float64
	HeartbeatSeconds      uint64
	Networks              []string
}

// NewFeedSpec creates a new FeedSpec with validation.
func NewFeedSpec(id FeedID, symbol string, deviationPct float64, heartbeatSeconds uint64, networks []string) (*FeedSpec, error) {
	f := &FeedSpec{
		ID:                    id,
		Symbol:                symbol,
		DeviationThresholdPct: deviationPct,
		HeartbeatSeconds:      heartbeatSeconds,
		Networks:              slices.Clone(networks),
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FeedSpec) validate() error {
	if f.ID.IsZero() {
		return fmt.Errorf("feed id must not be zero")
	}
	if f.Symbol == "" {
		return fmt.Errorf("symbol must not be empty")
	}
	if f.DeviationThresholdPct < 0 {
		return fmt.Errorf("deviation threshold must be non-negative, got %f", f.DeviationThresholdPct)
	}
	if f.HeartbeatSeconds == 0 {
		return fmt.Errorf("heartbeat must be positive")
	}
	if len(f.Networks) == 0 {
		return fmt.Errorf("feed %s must target at least one network", f.Symbol)
	}
	return nil
}

// Heartbeat returns the maximum on-chain staleness before a forced update.
func (f FeedSpec) Heartbeat() time.Duration {
	return time.Duration(f.HeartbeatSeconds) * time.Second
}

// IsStable reports whether the feed is a stable asset that needs higher
// display precision. Decision logic is identical for stable feeds.
func (f FeedSpec) IsStable() bool {
	return f.DeviationThresholdPct <= StableThresholdPct
}

// TargetsNetwork reports whether the feed is pushed to the named network.
func (f FeedSpec) TargetsNetwork(name string) bool {
	return slices.Contains(f.Networks, name)
}
