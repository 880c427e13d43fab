package oracle_pusher

import (
	"context"
	"errors"
	"fmt"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
	"github.com/archon-research/oracle-pusher/internal/ports/outbound"
)

var (
	_ outbound.UpdateRecordSink   = (*MultiSink)(nil)
	_ outbound.UpdateRecordReader = (*MultiSink)(nil)
)

// MultiSink publishes each record to every wrapped sink. A failing sink does
// not stop delivery to the others.
type MultiSink struct {
	sinks []outbound.UpdateRecordSink
}

// NewMultiSink creates a MultiSink. Nil sinks are ignored.
func NewMultiSink(sinks ...outbound.UpdateRecordSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of wrapped sinks.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Publish sends the record to every sink and joins their errors.
func (m *MultiSink) Publish(ctx context.Context, record *entity.UpdateRecord) error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Publish(ctx, record); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Recent reads from the first wrapped sink that can read records back. It
// returns nothing when no sink can.
func (m *MultiSink) Recent(ctx context.Context, network string, limit int) ([]*entity.UpdateRecord, error) {
	for _, s := range m.sinks {
		if r, ok := s.(outbound.UpdateRecordReader); ok {
			return r.Recent(ctx, network, limit)
		}
	}
	return nil, nil
}

// Close closes every sink and joins their errors.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
