// Package oracle_pusher keeps Pyth price oracles on one or more EVM networks
// fresh.
//
// Each cycle fetches one price snapshot for every configured feed, decides per
// (feed, network) pair whether a push is due, and hands each network's batch to
// the Orchestrator. Networks are orchestrated concurrently and joined before
// the next snapshot. Feed state lives in memory only and is seeded from
// on-chain reads at startup.
package oracle_pusher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
	"github.com/archon-research/oracle-pusher/internal/ports/outbound"
)

const (
	// tracerName is the instrumentation name for this service.
	tracerName = "github.com/archon-research/oracle-pusher/internal/services/oracle_pusher"
)

// State is the scheduler state.
type State int32

const (
	StateInitializing State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config holds configuration for the oracle pusher service.
type Config struct {
	// PollInterval is the period between cycles.
	PollInterval time.Duration

	// CallTimeout bounds each price service and RPC call. Negative disables it.
	CallTimeout time.Duration

	// HealthyWindow is how recent the last completed cycle must be for the
	// service to report healthy. Defaults to five poll intervals.
	HealthyWindow time.Duration

	// MaxConcurrentNetworks bounds how many networks are orchestrated at once.
	// 0 means no limit and 1 means sequential.
	MaxConcurrentNetworks int

	// Logger is the structured logger.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		PollInterval: 60 * time.Second,
		CallTimeout:  30 * time.Second,
		Logger:       slog.Default(),
	}
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	// Plan holds the feeds selected for update, by network.
	Plan entity.UpdatePlan

	// Evaluated is the number of pairs a decision was made for.
	Evaluated int

	// Skipped lists pairs whose feed was missing from the snapshot.
	Skipped []entity.PairKey

	// Records holds the update records of networks whose transaction confirmed.
	Records map[string]*entity.UpdateRecord

	// Errors holds the orchestration error of each failed network.
	Errors map[string]error
}

// Service drives update cycles on a fixed period.
type Service struct {
	config       Config
	feeds        []entity.FeedSpec
	networks     []Network
	feedIDs      []entity.FeedID
	source       outbound.PriceSnapshotSource
	store        outbound.FeedStateStore
	orchestrator *Orchestrator
	history      outbound.UpdateRecordReader
	metrics      outbound.MetricsRecorder

	state         atomic.Int32
	lastCycleUnix atomic.Int64
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewService creates a new oracle pusher service. sink and metrics may be nil.
// Every network a feed targets must be present in networks.
func NewService(
	config Config,
	feeds []entity.FeedSpec,
	networks []Network,
	source outbound.PriceSnapshotSource,
	store outbound.FeedStateStore,
	sink outbound.UpdateRecordSink,
	metrics outbound.MetricsRecorder,
) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if len(feeds) == 0 {
		return nil, entity.NewConfigurationError("feeds", "at least one feed is required")
	}
	if len(networks) == 0 {
		return nil, entity.NewConfigurationError("networks", "at least one network is required")
	}

	known := make(map[string]bool, len(networks))
	for _, n := range networks {
		if n.Oracle == nil {
			return nil, fmt.Errorf("oracle for network %s cannot be nil", n.Spec.Name)
		}
		known[n.Spec.Name] = true
	}

	seen := make(map[entity.FeedID]bool, len(feeds))
	feedIDs := make([]entity.FeedID, 0, len(feeds))
	symbols := make(map[entity.FeedID]string, len(feeds))
	for _, f := range feeds {
		for _, name := range f.Networks {
			if !known[name] {
				return nil, entity.NewConfigurationError("feeds", "feed %s references undeclared network %q", f.Symbol, name)
			}
		}
		if !seen[f.ID] {
			seen[f.ID] = true
			feedIDs = append(feedIDs, f.ID)
		}
		symbols[f.ID] = f.Symbol
	}

	defaults := ConfigDefaults()
	if config.PollInterval == 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.CallTimeout == 0 {
		config.CallTimeout = defaults.CallTimeout
	}
	if config.HealthyWindow == 0 {
		config.HealthyWindow = 5 * config.PollInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	orchestrator, err := NewOrchestrator(OrchestratorConfig{
		CallTimeout: config.CallTimeout,
		Symbols:     symbols,
		Logger:      config.Logger,
	}, source, store, sink, metrics)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	// Sinks that can read records back serve the status update history.
	history, _ := sink.(outbound.UpdateRecordReader)

	return &Service{
		config:       config,
		feeds:        feeds,
		networks:     networks,
		feedIDs:      feedIDs,
		source:       source,
		store:        store,
		orchestrator: orchestrator,
		history:      history,
		metrics:      metrics,
		now:          time.Now,
		logger:       config.Logger.With("component", "oracle-pusher"),
	}, nil
}

// State returns the current scheduler state.
func (s *Service) State() State {
	return State(s.state.Load())
}

// Start seeds the feed state store from the chain, then runs cycles in the
// background until Stop is called or ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("starting oracle pusher",
		"feeds", len(s.feeds),
		"networks", len(s.networks),
		"pollInterval", s.config.PollInterval)

	s.Seed(s.ctx)
	s.state.Store(int32(StateRunning))

	s.wg.Add(1)
	go s.processLoop()

	s.logger.Info("oracle pusher started")
	return nil
}

// Stop stops the cycle loop and waits for an in-flight cycle to finish.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("oracle pusher stopped")
	return nil
}

// Run starts the service and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// IsReady reports whether seeding has completed.
func (s *Service) IsReady() bool {
	return s.State() == StateRunning
}

// IsHealthy reports whether a cycle has completed within the healthy window.
// Before the first completed cycle it reports whether the service is running.
func (s *Service) IsHealthy() bool {
	if !s.IsReady() {
		return false
	}
	last := s.lastCycleUnix.Load()
	if last == 0 {
		return true
	}
	return s.now().Sub(time.Unix(0, last)) <= s.config.HealthyWindow
}

// Seed reads every declared pair from the chain and stores the result. A
// failed read leaves the sentinel in place so the first cycle pushes the pair.
func (s *Service) Seed(ctx context.Context) {
	g := new(errgroup.Group)
	if s.config.MaxConcurrentNetworks > 0 {
		g.SetLimit(s.config.MaxConcurrentNetworks)
	}

	for _, network := range s.networks {
		g.Go(func() error {
			s.seedNetwork(ctx, network)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) seedNetwork(ctx context.Context, network Network) {
	name := network.Spec.Name
	s.logger.Info("initializing feed states from on-chain data", "network", name)

	for _, feed := range s.feeds {
		if !feed.TargetsNetwork(name) {
			continue
		}

		callCtx, cancel := s.callContext(ctx)
		onchain, err := network.Oracle.ReadPrice(callCtx, feed.ID)
		cancel()
		if err != nil {
			readErr := &entity.OnChainReadError{FeedID: feed.ID, Network: name, Err: err}
			s.logger.Info("no on-chain price, will update on first cycle",
				"feed", feed.Symbol,
				"network", name,
				"error", readErr)
			continue
		}

		if err := s.store.Set(feed.ID, name, onchain.Price(), onchain.PublishTime); err != nil {
			s.logger.Error("failed to seed feed state", "feed", feed.Symbol, "network", name, "error", err)
			continue
		}

		s.logger.Info("initialized from on-chain",
			"feed", feed.Symbol,
			"network", name,
			"price", formatPrice(onchain.Price(), feed.IsStable()),
			"published", FormatAge(s.now().Sub(onchain.PublishTime))+" ago")
	}
}

func (s *Service) processLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.runCycle()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runCycle()
		}
	}
}

func (s *Service) runCycle() {
	result, err := s.RunCycle(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Error("update cycle failed", "error", err)
		return
	}
	for network, netErr := range result.Errors {
		s.logger.Error("failed to update feeds", "network", network, "error", netErr)
	}
}

// RunCycle runs one snapshot, decide, plan and orchestrate pass. A snapshot
// failure aborts the cycle before any decision is made. Per-network failures
// are reported in CycleResult.Errors and never abort other networks.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	start := s.now()

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "pusher.cycle",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("cycle.feed_count", len(s.feedIDs))),
	)
	defer span.End()

	s.logger.Info("fetching prices", "feeds", len(s.feedIDs))

	callCtx, cancel := s.callContext(ctx)
	quotes, err := s.source.FetchQuotes(callCtx, s.feedIDs)
	cancel()
	if err != nil {
		var snapErr *entity.SnapshotFetchError
		if !errors.As(err, &snapErr) {
			err = &entity.SnapshotFetchError{Op: "quotes", Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot fetch failed")
		if s.metrics != nil {
			s.metrics.RecordCycle(ctx, s.now().Sub(start), "snapshot_error")
		}
		return CycleResult{}, err
	}

	result := s.plan(ctx, quotes)
	planned := result.Plan.Networks()
	span.SetAttributes(
		attribute.Int("cycle.planned", result.Plan.Len()),
		attribute.StringSlice("cycle.networks", planned),
	)

	if len(planned) == 0 {
		s.logger.Info("no updates needed", "evaluated", result.Evaluated)
	} else {
		s.logger.Info("dispatching updates", "networks", planned, "pairs", result.Plan.Len())
		s.orchestrate(ctx, result)
	}

	s.lastCycleUnix.Store(s.now().UnixNano())
	if s.metrics != nil {
		s.metrics.RecordCycle(ctx, s.now().Sub(start), "ok")
	}
	return result, nil
}

// plan evaluates every declared pair against the snapshot.
func (s *Service) plan(ctx context.Context, quotes map[entity.FeedID]entity.PriceQuote) CycleResult {
	result := CycleResult{
		Plan:    entity.UpdatePlan{},
		Records: make(map[string]*entity.UpdateRecord),
		Errors:  make(map[string]error),
	}
	now := s.now()

	for _, network := range s.networks {
		name := network.Spec.Name
		for _, feed := range s.feeds {
			if !feed.TargetsNetwork(name) {
				continue
			}

			quote, ok := quotes[feed.ID]
			if !ok {
				s.logger.Warn("feed missing from snapshot", "feed", feed.Symbol, "network", name)
				result.Skipped = append(result.Skipped, entity.PairKey{FeedID: feed.ID, Network: name})
				continue
			}

			state, err := s.store.Get(feed.ID, name)
			if err != nil {
				s.logger.Error("feed state unavailable", "feed", feed.Symbol, "network", name, "error", err)
				continue
			}

			current := quote.Price()
			decision := ShouldUpdate(feed, state, current, now)
			result.Evaluated++
			s.logDecision(feed, name, state, current, decision, now)
			if s.metrics != nil {
				s.metrics.RecordDecision(ctx, name, string(decision.Reason))
			}

			if decision.Update {
				result.Plan.Add(name, feed.ID)
			}
		}
	}

	return result
}

// orchestrate updates every network in the plan concurrently and waits for
// all of them.
func (s *Service) orchestrate(ctx context.Context, result CycleResult) {
	g := new(errgroup.Group)
	if s.config.MaxConcurrentNetworks > 0 {
		g.SetLimit(s.config.MaxConcurrentNetworks)
	}

	var mu sync.Mutex
	for _, network := range s.networks {
		feedIDs := result.Plan[network.Spec.Name]
		if len(feedIDs) == 0 {
			continue
		}

		g.Go(func() error {
			s.logger.Info("updating feeds", "network", network.Spec.Name, "count", len(feedIDs))
			record, err := s.orchestrator.UpdateNetwork(ctx, network, feedIDs)

			mu.Lock()
			defer mu.Unlock()
			if record != nil {
				result.Records[network.Spec.Name] = record
			}
			if err != nil {
				result.Errors[network.Spec.Name] = err
			}
			// Never fail the group so one network cannot affect another.
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) logDecision(feed entity.FeedSpec, network string, state entity.FeedState, current float64, d Decision, now time.Time) {
	stable := feed.IsStable()
	published := "never"
	if state.IsObserved() {
		published = FormatAge(state.Age(now)) + " ago"
	}
	attrs := []any{
		"feed", feed.Symbol,
		"network", network,
		"price", formatPrice(current, stable),
		"last", formatPrice(state.LastPrice, stable),
		"deviation", fmt.Sprintf("%.4f%%", d.DeviationPct),
		"published", published,
	}

	if d.Update {
		s.logger.Info("✓ UPDATING", append(attrs, "reason", string(d.Reason))...)
		return
	}
	s.logger.Info("○ Skipping", append(attrs, "threshold", fmt.Sprintf("%.2f%%", feed.DeviationThresholdPct))...)
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.CallTimeout)
}
