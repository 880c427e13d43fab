// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"time"
)

// MetricsRecorder provides an interface for recording application metrics.
// This allows the application layer to record metrics without depending on
// specific telemetry implementations.
type MetricsRecorder interface {
	// RecordCycle records the outcome and duration of one update cycle.
	// status is "ok" or "snapshot_error".
	RecordCycle(ctx context.Context, duration time.Duration, status string)

	// RecordDecision counts one evaluated (feed, network) pair.
	// reason is the decision reason, e.g. "heartbeat" or "none".
	RecordDecision(ctx context.Context, network, reason string)

	// RecordSubmission records the outcome of one network update. stage is the
	// failed submission stage, or "ok".
	RecordSubmission(ctx context.Context, network, stage string, gasUsed uint64, feeNative float64)

	// RecordReconcileFailure counts a failed post-submission re-read.
	RecordReconcileFailure(ctx context.Context, network string)
}
