package outbound

import (
	"context"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
)

// PriceSnapshotSource is the off-chain price service.
type PriceSnapshotSource interface {
	// FetchQuotes returns one point-in-time snapshot of quotes for the given feeds.
	// Feeds unknown to the service are absent from the result.
	FetchQuotes(ctx context.Context, feedIDs []entity.FeedID) (map[entity.FeedID]entity.PriceQuote, error)

	// FetchUpdatePayload returns the opaque signed payload that pushes the
	// latest prices of the given feeds on-chain.
	FetchUpdatePayload(ctx context.Context, feedIDs []entity.FeedID) ([][]byte, error)
}
