// recordsink.go provides an in-memory implementation of UpdateRecordSink.
//
// The sink keeps only the most recent records so a long-running process
// without an external sink stays bounded. Retained records back the update
// history shown on the status endpoint. All operations are thread-safe.
package memory

import (
	"context"
	"sync"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
	"github.com/archon-research/oracle-pusher/internal/ports/outbound"
)

// DefaultRecordLimit is the number of records kept when no limit is given.
const DefaultRecordLimit = 100

var (
	_ outbound.UpdateRecordSink   = (*RecordSink)(nil)
	_ outbound.UpdateRecordReader = (*RecordSink)(nil)
)

// RecordSink is a bounded in-memory implementation of the UpdateRecordSink
// port. Once full, each publish evicts the oldest record.
type RecordSink struct {
	mu      sync.RWMutex
	records []*entity.UpdateRecord // ring buffer, next is the oldest slot once full
	next    int
	full    bool
	closed  bool
}

// NewRecordSink creates a sink that retains at most limit records. A
// non-positive limit means DefaultRecordLimit.
func NewRecordSink(limit int) *RecordSink {
	if limit <= 0 {
		limit = DefaultRecordLimit
	}
	return &RecordSink{records: make([]*entity.UpdateRecord, limit)}
}

// Publish stores the record, evicting the oldest one when the sink is full.
func (s *RecordSink) Publish(_ context.Context, record *entity.UpdateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.records[s.next] = record
	s.next = (s.next + 1) % len(s.records)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns up to limit retained records, newest first. An empty network
// matches every network; a non-positive limit returns everything retained.
func (s *RecordSink) Recent(_ context.Context, network string, limit int) ([]*entity.UpdateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = len(s.records)
	}

	result := make([]*entity.UpdateRecord, 0, min(size, max(limit, 0)))
	for i := 1; i <= size; i++ {
		if limit > 0 && len(result) == limit {
			break
		}
		r := s.records[(s.next-i+len(s.records))%len(s.records)]
		if network == "" || r.Network == network {
			result = append(result, r)
		}
	}
	return result, nil
}

// Len returns the number of retained records.
func (s *RecordSink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return len(s.records)
	}
	return s.next
}

// Close marks the sink as closed. Later publishes are dropped.
func (s *RecordSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
