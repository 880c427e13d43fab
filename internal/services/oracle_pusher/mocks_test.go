package oracle_pusher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// mockSource implements outbound.PriceSnapshotSource.
type mockSource struct {
	mu                   sync.Mutex
	quotes               map[entity.FeedID]entity.PriceQuote
	fetchQuotesFn        func(ctx context.Context, feedIDs []entity.FeedID) (map[entity.FeedID]entity.PriceQuote, error)
	fetchUpdatePayloadFn func(ctx context.Context, feedIDs []entity.FeedID) ([][]byte, error)

	quoteCalls      int
	payloadCalls    int
	payloadRequests [][]entity.FeedID
}

func newMockSource() *mockSource {
	return &mockSource{quotes: make(map[entity.FeedID]entity.PriceQuote)}
}

func (m *mockSource) setPrice(id entity.FeedID, mantissa int64, expo int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[id] = entity.PriceQuote{FeedID: id, Mantissa: mantissa, Exponent: expo, PublishTime: time.Unix(1700000000, 0)}
}

func (m *mockSource) FetchQuotes(ctx context.Context, feedIDs []entity.FeedID) (map[entity.FeedID]entity.PriceQuote, error) {
	m.mu.Lock()
	m.quoteCalls++
	m.mu.Unlock()
	if m.fetchQuotesFn != nil {
		return m.fetchQuotesFn(ctx, feedIDs)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[entity.FeedID]entity.PriceQuote)
	for _, id := range feedIDs {
		if q, ok := m.quotes[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (m *mockSource) FetchUpdatePayload(ctx context.Context, feedIDs []entity.FeedID) ([][]byte, error) {
	m.mu.Lock()
	m.payloadCalls++
	m.payloadRequests = append(m.payloadRequests, append([]entity.FeedID(nil), feedIDs...))
	m.mu.Unlock()
	if m.fetchUpdatePayloadFn != nil {
		return m.fetchUpdatePayloadFn(ctx, feedIDs)
	}
	return [][]byte{{0x50, 0x4e, 0x41, 0x55}}, nil
}

func (m *mockSource) counts() (quotes, payloads int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quoteCalls, m.payloadCalls
}

// mockOracle implements outbound.OracleFacade for one network.
type mockOracle struct {
	mu       sync.Mutex
	prices   map[entity.FeedID]entity.OnchainPrice
	readErrs map[entity.FeedID]error
	// onSubmit holds prices the contract stores once an update succeeds.
	onSubmit map[entity.FeedID]entity.OnchainPrice

	quoteFeeFn     func(ctx context.Context, payload [][]byte) (*big.Int, error)
	gasPriceFn     func(ctx context.Context) (*big.Int, error)
	submitUpdateFn func(ctx context.Context, payload [][]byte, fee, gasPrice *big.Int) (*entity.UpdateReceipt, error)

	readCalls   int
	submitCalls int
}

func newMockOracle() *mockOracle {
	return &mockOracle{
		prices:   make(map[entity.FeedID]entity.OnchainPrice),
		readErrs: make(map[entity.FeedID]error),
		onSubmit: make(map[entity.FeedID]entity.OnchainPrice),
	}
}

func (m *mockOracle) setOnchain(id entity.FeedID, mantissa int64, expo int32, publishTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[id] = entity.OnchainPrice{Mantissa: mantissa, Exponent: expo, PublishTime: publishTime}
}

func (m *mockOracle) setAfterSubmit(id entity.FeedID, mantissa int64, expo int32, publishTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSubmit[id] = entity.OnchainPrice{Mantissa: mantissa, Exponent: expo, PublishTime: publishTime}
}

func (m *mockOracle) setReadErr(id entity.FeedID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.readErrs, id)
		return
	}
	m.readErrs[id] = err
}

func (m *mockOracle) ReadPrice(_ context.Context, feedID entity.FeedID) (entity.OnchainPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls++
	if err, ok := m.readErrs[feedID]; ok {
		return entity.OnchainPrice{}, err
	}
	p, ok := m.prices[feedID]
	if !ok {
		return entity.OnchainPrice{}, errors.New("execution reverted: PriceFeedNotFound")
	}
	return p, nil
}

func (m *mockOracle) QuoteFee(ctx context.Context, payload [][]byte) (*big.Int, error) {
	if m.quoteFeeFn != nil {
		return m.quoteFeeFn(ctx, payload)
	}
	return big.NewInt(1), nil
}

func (m *mockOracle) GasPrice(ctx context.Context) (*big.Int, error) {
	if m.gasPriceFn != nil {
		return m.gasPriceFn(ctx)
	}
	return big.NewInt(2_000_000_000), nil
}

func (m *mockOracle) SubmitUpdate(ctx context.Context, payload [][]byte, fee, gasPrice *big.Int) (*entity.UpdateReceipt, error) {
	m.mu.Lock()
	m.submitCalls++
	m.mu.Unlock()
	if m.submitUpdateFn != nil {
		return m.submitUpdateFn(ctx, payload, fee, gasPrice)
	}

	m.mu.Lock()
	for id, p := range m.onSubmit {
		m.prices[id] = p
	}
	m.mu.Unlock()

	return &entity.UpdateReceipt{
		BlockNumber:       100,
		TxHash:            common.HexToHash("0xabc"),
		GasUsed:           50_000,
		EffectiveGasPrice: big.NewInt(2_000_000_000),
	}, nil
}

func (m *mockOracle) submits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitCalls
}

// mockMetrics implements outbound.MetricsRecorder.
type mockMetrics struct {
	mu                sync.Mutex
	cycles            []string
	decisions         map[string]int
	submissions       []string
	reconcileFailures int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{decisions: make(map[string]int)}
}

func (m *mockMetrics) RecordCycle(_ context.Context, _ time.Duration, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, status)
}

func (m *mockMetrics) RecordDecision(_ context.Context, _ string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[reason]++
}

func (m *mockMetrics) RecordSubmission(_ context.Context, network, stage string, _ uint64, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = append(m.submissions, network+":"+stage)
}

func (m *mockMetrics) RecordReconcileFailure(_ context.Context, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconcileFailures++
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var (
	ethFeedID  = entity.FeedID{0xe1}
	btcFeedID  = entity.FeedID{0xb1}
	usdcFeedID = entity.FeedID{0x05}
)

func testFeed(t *testing.T, id entity.FeedID, symbol string, threshold float64, heartbeat uint64, networks ...string) entity.FeedSpec {
	t.Helper()
	f, err := entity.NewFeedSpec(id, symbol, threshold, heartbeat, networks)
	if err != nil {
		t.Fatalf("NewFeedSpec: %v", err)
	}
	return *f
}

func testNetwork(t *testing.T, name string, chainID int64, oracle *mockOracle) Network {
	t.Helper()
	spec, err := entity.NewNetworkSpec(name, chainID, "http://"+name+".invalid", common.HexToAddress("0x1234"), ethFeedID, "https://"+name+"scan.invalid/")
	if err != nil {
		t.Fatalf("NewNetworkSpec: %v", err)
	}
	return Network{Spec: *spec, Oracle: oracle}
}
