package oracle_pusher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/oracle-pusher/internal/adapters/outbound/memory"
	"github.com/archon-research/oracle-pusher/internal/domain/entity"
	"github.com/archon-research/oracle-pusher/internal/testutil"
)

func TestStatus(t *testing.T) {
	oracle := newMockOracle()
	oracle.setOnchain(ethFeedID, 10_000_000_000, -8, testNow.Add(-90*time.Second))

	feeds := []entity.FeedSpec{
		testFeed(t, ethFeedID, "ETH/USD", 1.0, 3600, "base"),
		testFeed(t, btcFeedID, "BTC/USD", 1.0, 3600, "base"),
	}
	f := newServiceFixture(t, Config{}, feeds, []Network{testNetwork(t, "base", 8453, oracle)})

	before, err := f.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if before.State != "initializing" || !before.LastCycleAt.IsZero() {
		t.Errorf("unexpected status before start: %+v", before)
	}

	f.svc.Seed(context.Background())
	status, err := f.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status.Pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(status.Pairs))
	}

	eth := status.Pairs[0]
	if eth.Symbol != "ETH/USD" || !eth.Observed || !approx(eth.LastPrice, 100) || eth.Age != "1m 30s" {
		t.Errorf("unexpected eth pair: %+v", eth)
	}
	if eth.FeedID != ethFeedID.String() {
		t.Errorf("feed id = %s", eth.FeedID)
	}

	btc := status.Pairs[1]
	if btc.Observed || btc.Age != "never" || !btc.LastConfirmedAt.IsZero() {
		t.Errorf("unexpected btc pair: %+v", btc)
	}
}

func TestStatus_ReportsLastCycle(t *testing.T) {
	oracle := newMockOracle()
	feeds := []entity.FeedSpec{testFeed(t, ethFeedID, "ETH/USD", 1.0, 3600, "base")}
	f := newServiceFixture(t, Config{}, feeds, []Network{testNetwork(t, "base", 8453, oracle)})
	f.source.setPrice(ethFeedID, 10_000_000_000, -8)

	if _, err := f.svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	status, err := f.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.LastCycleAt.Equal(testNow) {
		t.Errorf("LastCycleAt = %v, want %v", status.LastCycleAt, testNow)
	}
}

func TestStatus_RecentUpdates(t *testing.T) {
	oracle := newMockOracle()
	feeds := []entity.FeedSpec{testFeed(t, ethFeedID, "ETH/USD", 1.0, 3600, "base")}
	f := newServiceFixture(t, Config{}, feeds, []Network{testNetwork(t, "base", 8453, oracle)})
	ctx := context.Background()

	for i := range recentUpdatesLimit + 3 {
		_ = f.sink.Publish(ctx, &entity.UpdateRecord{
			Network:     "base",
			BlockNumber: uint64(i + 1),
			TxHash:      common.HexToHash("0xabc"),
			Symbols:     []string{"ETH/USD"},
			ConfirmedAt: testNow,
		})
	}

	status, err := f.svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status.RecentUpdates) != recentUpdatesLimit {
		t.Fatalf("got %d recent updates, want %d", len(status.RecentUpdates), recentUpdatesLimit)
	}
	newest := status.RecentUpdates[0]
	if newest.BlockNumber != recentUpdatesLimit+3 || newest.Network != "base" {
		t.Errorf("newest update = %+v", newest)
	}
	if newest.TxHash != common.HexToHash("0xabc").Hex() {
		t.Errorf("TxHash = %s", newest.TxHash)
	}
}

type failingHistory struct {
	*memory.RecordSink
}

func (failingHistory) Recent(context.Context, string, int) ([]*entity.UpdateRecord, error) {
	return nil, errors.New("history unavailable")
}

func TestStatus_HistoryErrorDoesNotFailReport(t *testing.T) {
	oracle := newMockOracle()
	feeds := []entity.FeedSpec{testFeed(t, ethFeedID, "ETH/USD", 1.0, 3600, "base")}
	sink := failingHistory{memory.NewRecordSink(memory.DefaultRecordLimit)}

	svc, err := NewService(Config{Logger: testutil.DiscardLogger()}, feeds,
		[]Network{testNetwork(t, "base", 8453, oracle)}, newMockSource(), memory.NewFeedStateStore(feeds), sink, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	status, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status.Pairs) != 1 || status.RecentUpdates != nil {
		t.Errorf("unexpected status: %+v", status)
	}
}
