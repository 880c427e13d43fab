package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/oracle-pusher/internal/ports/outbound"
)

// StageOK is the submission stage label for a confirmed update.
const StageOK = "ok"

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	cycleDuration     metric.Float64Histogram
	cycles            metric.Int64Counter
	decisions         metric.Int64Counter
	submissions       metric.Int64Counter
	gasUsed           metric.Int64Histogram
	feeNative         metric.Float64Histogram
	reconcileFailures metric.Int64Counter
}

var _ outbound.MetricsRecorder = (*Metrics)(nil)

// NewMetrics creates a recorder on the global meter provider.
// meterName should typically be the package name or service name.
func NewMetrics(meterName string) (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates a recorder on the given meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.cycleDuration, err = meter.Float64Histogram(
		"oracle_cycle_duration_seconds",
		metric.WithDescription("Time taken to evaluate and push one update cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle_cycle_duration_seconds histogram: %w", err)
	}

	m.cycles, err = meter.Int64Counter(
		"oracle_cycles_total",
		metric.WithDescription("Total number of update cycles by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle_cycles_total counter: %w", err)
	}

	m.decisions, err = meter.Int64Counter(
		"oracle_decisions_total",
		metric.WithDescription("Feed/network pairs evaluated, by decision reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle_decisions_total counter: %w", err)
	}

	m.submissions, err = meter.Int64Counter(
		"oracle_submissions_total",
		metric.WithDescription("Network updates attempted, by outcome stage"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle_submissions_total counter: %w", err)
	}

	m.gasUsed, err = meter.Int64Histogram(
		"oracle_submission_gas_used",
		metric.WithDescription("Gas used by confirmed update transactions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle_submission_gas_used histogram: %w", err)
	}

	m.feeNative, err = meter.Float64Histogram(
		"oracle_submission_fee_native",
		metric.WithDescription("Gas fee paid by confirmed update transactions, in native units"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle_submission_fee_native histogram: %w", err)
	}

	m.reconcileFailures, err = meter.Int64Counter(
		"oracle_reconcile_failures_total",
		metric.WithDescription("Failed on-chain re-reads after a confirmed update"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle_reconcile_failures_total counter: %w", err)
	}

	return m, nil
}

// RecordCycle records the duration and outcome of one cycle.
func (m *Metrics) RecordCycle(ctx context.Context, duration time.Duration, status string) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.cycleDuration.Record(ctx, duration.Seconds(), attrs)
	m.cycles.Add(ctx, 1, attrs)
}

// RecordDecision counts one evaluated pair.
func (m *Metrics) RecordDecision(ctx context.Context, network, reason string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("network", network),
		attribute.String("reason", reason),
	))
}

// RecordSubmission counts one network update. Gas and fee are only recorded
// for confirmed updates.
func (m *Metrics) RecordSubmission(ctx context.Context, network, stage string, gasUsed uint64, feeNative float64) {
	m.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("network", network),
		attribute.String("stage", stage),
	))
	if stage != StageOK {
		return
	}
	attrs := metric.WithAttributes(attribute.String("network", network))
	m.gasUsed.Record(ctx, int64(gasUsed), attrs)
	m.feeNative.Record(ctx, feeNative, attrs)
}

// RecordReconcileFailure counts a failed re-read.
func (m *Metrics) RecordReconcileFailure(ctx context.Context, network string) {
	m.reconcileFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("network", network)))
}
