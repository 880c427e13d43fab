package oracle_pusher

import (
	"context"
	"errors"
	"testing"

	"github.com/archon-research/oracle-pusher/internal/adapters/outbound/memory"
	"github.com/archon-research/oracle-pusher/internal/domain/entity"
)

type publishOnlySink struct {
	published int
	err       error
}

func (s *publishOnlySink) Publish(context.Context, *entity.UpdateRecord) error {
	s.published++
	return s.err
}

func (s *publishOnlySink) Close() error { return nil }

func TestMultiSink_PublishReachesEverySink(t *testing.T) {
	failing := &publishOnlySink{err: errors.New("down")}
	history := memory.NewRecordSink(memory.DefaultRecordLimit)
	sink := NewMultiSink(failing, nil, history)

	if sink.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", sink.Len())
	}
	err := sink.Publish(context.Background(), &entity.UpdateRecord{Network: "base"})
	if err == nil || !errors.Is(err, failing.err) {
		t.Errorf("Publish error = %v, want wrapped %v", err, failing.err)
	}
	if failing.published != 1 || history.Len() != 1 {
		t.Errorf("published = %d, history = %d", failing.published, history.Len())
	}
}

func TestMultiSink_Recent(t *testing.T) {
	ctx := context.Background()

	t.Run("reads from first reader", func(t *testing.T) {
		history := memory.NewRecordSink(memory.DefaultRecordLimit)
		sink := NewMultiSink(&publishOnlySink{}, history)
		_ = sink.Publish(ctx, &entity.UpdateRecord{Network: "base", BlockNumber: 7})

		got, err := sink.Recent(ctx, "", 5)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(got) != 1 || got[0].BlockNumber != 7 {
			t.Errorf("Recent = %v", got)
		}
	})

	t.Run("no reader", func(t *testing.T) {
		sink := NewMultiSink(&publishOnlySink{})
		got, err := sink.Recent(ctx, "", 5)
		if err != nil || got != nil {
			t.Errorf("Recent = %v, %v; want nil, nil", got, err)
		}
	})
}
