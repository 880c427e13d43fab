package outbound

import (
	"context"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
)

// UpdateRecordSink receives one observability record per successful network
// update. Sinks are write-only; records are never read back to rebuild state.
type UpdateRecordSink interface {
	Publish(ctx context.Context, record *entity.UpdateRecord) error
	Close() error
}

// UpdateRecordReader reads back recently published records for operator
// diagnostics. An empty network matches every network.
type UpdateRecordReader interface {
	Recent(ctx context.Context, network string, limit int) ([]*entity.UpdateRecord, error)
}
