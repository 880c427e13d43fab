package oracle_pusher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
	"github.com/archon-research/oracle-pusher/internal/ports/outbound"
)

// Network pairs a network's static description with its oracle facade.
type Network struct {
	Spec   entity.NetworkSpec
	Oracle outbound.OracleFacade
}

// OrchestratorConfig holds configuration for the Orchestrator.
type OrchestratorConfig struct {
	// CallTimeout bounds each price service and RPC call. The submission itself
	// is bounded by the oracle adapter's confirmation timeout. Zero or negative
	// disables it.
	CallTimeout time.Duration

	// Symbols maps feed ids to display names for logs and records.
	Symbols map[entity.FeedID]string

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Orchestrator pushes one batch of feeds to one network and reconciles the
// feed state store from the chain afterwards.
type Orchestrator struct {
	source      outbound.PriceSnapshotSource
	store       outbound.FeedStateStore
	sink        outbound.UpdateRecordSink
	metrics     outbound.MetricsRecorder
	symbols     map[entity.FeedID]string
	callTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewOrchestrator creates a new Orchestrator. sink and metrics may be nil.
func NewOrchestrator(
	config OrchestratorConfig,
	source outbound.PriceSnapshotSource,
	store outbound.FeedStateStore,
	sink outbound.UpdateRecordSink,
	metrics outbound.MetricsRecorder,
) (*Orchestrator, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Orchestrator{
		source:      source,
		store:       store,
		sink:        sink,
		metrics:     metrics,
		symbols:     config.Symbols,
		callTimeout: config.CallTimeout,
		logger:      config.Logger.With("component", "orchestrator"),
		now:         time.Now,
	}, nil
}

// UpdateNetwork submits one update transaction for feedIDs on network.
//
// A failure before the receipt is returned as *entity.SubmissionError and
// leaves the store untouched. After a successful receipt every feed is re-read
// independently; read failures are returned joined as *entity.OnChainReadError
// alongside the record, which is still published.
func (o *Orchestrator) UpdateNetwork(ctx context.Context, network Network, feedIDs []entity.FeedID) (*entity.UpdateRecord, error) {
	name := network.Spec.Name

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "pusher.updateNetwork",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("network.name", name),
			attribute.Int64("network.chain_id", network.Spec.ChainID),
			attribute.Int("update.feed_count", len(feedIDs)),
		),
	)
	defer span.End()

	receipt, gasPrice, err := o.submit(ctx, network, feedIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission failed")
		var subErr *entity.SubmissionError
		stage := "unknown"
		if errors.As(err, &subErr) {
			stage = subErr.Stage
		}
		if o.metrics != nil {
			o.metrics.RecordSubmission(ctx, name, stage, 0, 0)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("tx.hash", receipt.TxHash.Hex()))

	reconciled, reconcileErr := o.reconcile(ctx, network, feedIDs)
	if reconcileErr != nil {
		span.RecordError(reconcileErr)
	}

	record := o.buildRecord(ctx, network, feedIDs, receipt, gasPrice, reconciled)
	if o.metrics != nil {
		o.metrics.RecordSubmission(ctx, name, "ok", record.GasUsed, record.FeeNative)
	}
	o.logRecord(record)

	if o.sink != nil {
		if err := o.sink.Publish(ctx, record); err != nil {
			o.logger.Warn("failed to publish update record", "network", name, "tx", record.TxHash.Hex(), "error", err)
		}
	}

	return record, reconcileErr
}

func (o *Orchestrator) submit(ctx context.Context, network Network, feedIDs []entity.FeedID) (*entity.UpdateReceipt, *big.Int, error) {
	name := network.Spec.Name
	fail := func(stage string, err error) (*entity.UpdateReceipt, *big.Int, error) {
		return nil, nil, &entity.SubmissionError{Network: name, Stage: stage, Err: err}
	}

	callCtx, cancel := o.callContext(ctx)
	payload, err := o.source.FetchUpdatePayload(callCtx, feedIDs)
	cancel()
	if err != nil {
		return fail(entity.StagePayload, err)
	}

	callCtx, cancel = o.callContext(ctx)
	fee, err := network.Oracle.QuoteFee(callCtx, payload)
	cancel()
	if err != nil {
		return fail(entity.StageFee, err)
	}

	callCtx, cancel = o.callContext(ctx)
	gasPrice, err := network.Oracle.GasPrice(callCtx)
	cancel()
	if err != nil {
		return fail(entity.StageGasPrice, err)
	}

	o.logger.Info("submitting update",
		"network", name,
		"feeds", len(feedIDs),
		"fee", fee.String(),
		"gasPrice", gasPrice.String())

	receipt, err := network.Oracle.SubmitUpdate(ctx, payload, fee, gasPrice)
	if err != nil {
		if errors.Is(err, entity.ErrTxReverted) || errors.Is(err, entity.ErrTxNotConfirmed) {
			return fail(entity.StageReceipt, err)
		}
		return fail(entity.StageSubmit, err)
	}
	return receipt, gasPrice, nil
}

// reconcile commits the on-chain price and publish time of every feed it can
// read. It returns how many feeds were committed.
func (o *Orchestrator) reconcile(ctx context.Context, network Network, feedIDs []entity.FeedID) (int, error) {
	name := network.Spec.Name
	var errs []error
	committed := 0

	for _, id := range feedIDs {
		callCtx, cancel := o.callContext(ctx)
		onchain, err := network.Oracle.ReadPrice(callCtx, id)
		cancel()
		if err != nil {
			readErr := &entity.OnChainReadError{FeedID: id, Network: name, Err: err}
			o.logger.Error("failed to re-read on-chain price",
				"network", name,
				"feed", o.symbol(id),
				"error", err)
			if o.metrics != nil {
				o.metrics.RecordReconcileFailure(ctx, name)
			}
			errs = append(errs, readErr)
			continue
		}

		if err := o.store.Set(id, name, onchain.Price(), onchain.PublishTime); err != nil {
			errs = append(errs, err)
			continue
		}
		committed++
	}

	return committed, errors.Join(errs...)
}

func (o *Orchestrator) buildRecord(ctx context.Context, network Network, feedIDs []entity.FeedID, receipt *entity.UpdateReceipt, gasPrice *big.Int, reconciled int) *entity.UpdateRecord {
	gasPriceWei := receipt.EffectiveGasPrice
	if gasPriceWei == nil || gasPriceWei.Sign() == 0 {
		gasPriceWei = gasPrice
	}
	feeNative := entity.FeeNative(receipt.GasUsed, gasPriceWei)

	ids := make([]string, len(feedIDs))
	symbols := make([]string, len(feedIDs))
	for i, id := range feedIDs {
		ids[i] = id.String()
		symbols[i] = o.symbol(id)
	}

	return &entity.UpdateRecord{
		Network:     network.Spec.Name,
		ChainID:     network.Spec.ChainID,
		BlockNumber: receipt.BlockNumber,
		TxHash:      receipt.TxHash,
		TxURL:       network.Spec.TxURL(receipt.TxHash),
		GasUsed:     receipt.GasUsed,
		GasPriceWei: gasPriceWei,
		FeeNative:   feeNative,
		FeeUSD:      feeNative * o.nativePriceUSD(ctx, network),
		FeedIDs:     ids,
		Symbols:     symbols,
		Reconciled:  reconciled,
		ConfirmedAt: o.now().UTC(),
	}
}

// nativePriceUSD fetches the native token price from a secondary quote call.
// It returns 0 when the price is unavailable.
func (o *Orchestrator) nativePriceUSD(ctx context.Context, network Network) float64 {
	feedID := network.Spec.NativeFeedID
	if feedID.IsZero() {
		return 0
	}

	callCtx, cancel := o.callContext(ctx)
	defer cancel()

	quotes, err := o.source.FetchQuotes(callCtx, []entity.FeedID{feedID})
	if err != nil {
		o.logger.Warn("native token price unavailable", "network", network.Spec.Name, "error", err)
		return 0
	}
	quote, ok := quotes[feedID]
	if !ok {
		o.logger.Warn("native token price missing from response", "network", network.Spec.Name)
		return 0
	}
	return quote.Price()
}

func (o *Orchestrator) logRecord(record *entity.UpdateRecord) {
	attrs := []any{
		"network", record.Network,
		"block", record.BlockNumber,
		"tx", record.TxHash.Hex(),
		"gasUsed", record.GasUsed,
		"feeNative", fmt.Sprintf("%.6f", record.FeeNative),
		"feeds", record.Symbols,
		"reconciled", record.Reconciled,
	}
	if record.FeeUSD > 0 {
		attrs = append(attrs, "feeUSD", fmt.Sprintf("%.4f", record.FeeUSD))
	}
	if record.TxURL != "" {
		attrs = append(attrs, "explorer", record.TxURL)
	}
	o.logger.Info("feeds updated", attrs...)
}

func (o *Orchestrator) symbol(id entity.FeedID) string {
	if s, ok := o.symbols[id]; ok {
		return s
	}
	return id.String()
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.callTimeout)
}
