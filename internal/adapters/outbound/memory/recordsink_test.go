package memory

import (
	"context"
	"slices"
	"testing"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
)

func blocks(records []*entity.UpdateRecord) []uint64 {
	out := make([]uint64, len(records))
	for i, r := range records {
		out[i] = r.BlockNumber
	}
	return out
}

func TestRecordSink_RecentNewestFirst(t *testing.T) {
	sink := NewRecordSink(10)
	ctx := context.Background()

	_ = sink.Publish(ctx, &entity.UpdateRecord{Network: "base", BlockNumber: 1})
	_ = sink.Publish(ctx, &entity.UpdateRecord{Network: "arbitrum", BlockNumber: 2})
	_ = sink.Publish(ctx, &entity.UpdateRecord{Network: "base", BlockNumber: 3})

	tests := []struct {
		name    string
		network string
		limit   int
		want    []uint64
	}{
		{name: "all networks", network: "", limit: 0, want: []uint64{3, 2, 1}},
		{name: "one network", network: "base", limit: 0, want: []uint64{3, 1}},
		{name: "limited", network: "", limit: 2, want: []uint64{3, 2}},
		{name: "limited per network", network: "base", limit: 1, want: []uint64{3}},
		{name: "unknown network", network: "optimism", limit: 5, want: []uint64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sink.Recent(ctx, tt.network, tt.limit)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if !slices.Equal(blocks(got), tt.want) {
				t.Errorf("Recent(%q, %d) = %v, want %v", tt.network, tt.limit, blocks(got), tt.want)
			}
		})
	}
}

func TestRecordSink_EvictsOldest(t *testing.T) {
	const limit = 4
	sink := NewRecordSink(limit)
	ctx := context.Background()

	for i := uint64(1); i <= 100_000; i++ {
		if err := sink.Publish(ctx, &entity.UpdateRecord{Network: "base", BlockNumber: i}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if got := sink.Len(); got != limit {
		t.Fatalf("Len() = %d after 100000 publishes, want %d", got, limit)
	}
	got, _ := sink.Recent(ctx, "", 0)
	if want := []uint64{100_000, 99_999, 99_998, 99_997}; !slices.Equal(blocks(got), want) {
		t.Errorf("retained %v, want %v", blocks(got), want)
	}
}

func TestRecordSink_DefaultLimit(t *testing.T) {
	sink := NewRecordSink(0)
	ctx := context.Background()
	for i := 0; i < DefaultRecordLimit+5; i++ {
		_ = sink.Publish(ctx, &entity.UpdateRecord{Network: "base"})
	}
	if got := sink.Len(); got != DefaultRecordLimit {
		t.Errorf("Len() = %d, want %d", got, DefaultRecordLimit)
	}
}

func TestRecordSink_ClosedDropsRecords(t *testing.T) {
	sink := NewRecordSink(10)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sink.Publish(context.Background(), &entity.UpdateRecord{Network: "base"}); err != nil {
		t.Fatalf("Publish after close: %v", err)
	}
	if sink.Len() != 0 {
		t.Error("closed sink must drop records")
	}
}
