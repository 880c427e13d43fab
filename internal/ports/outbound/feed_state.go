package outbound

import (
	"time"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
)

// FeedStateStore tracks the last confirmed on-chain state of every declared
// (feed, network) pair.
type FeedStateStore interface {
	// Get returns the state of a pair. It fails with *entity.ConfigurationError
	// if the pair was never declared.
	Get(feedID entity.FeedID, network string) (entity.FeedState, error)

	// Set overwrites the state of a declared pair unconditionally.
	Set(feedID entity.FeedID, network string, price float64, confirmedAt time.Time) error

	// Snapshot returns a copy of every pair's state on one network.
	Snapshot(network string) map[entity.FeedID]entity.FeedState
}
