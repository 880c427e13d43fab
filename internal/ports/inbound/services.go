// Package inbound contains the primary/inbound ports.
// These interfaces define what the application exposes to HTTP and CLI adapters.
package inbound

import (
	"context"
	"time"
)

// HealthChecker defines the interface for services that can report readiness and liveness.
// This enables health checking during rolling deployments, ensuring new instances
// are pushing updates before old ones are terminated.
//
// Implementations:
//   - oracle_pusher.Service: ready once feed state is seeded, healthy if cycles complete regularly
type HealthChecker interface {
	// IsReady returns true when the service is ready to handle traffic.
	// For the pusher, this means on-chain seeding has finished.
	// Used by ECS/Kubernetes readiness checks during rolling deployments.
	IsReady() bool

	// IsHealthy returns true when the service is operating normally.
	// For the pusher, this means a cycle completed within the healthy window.
	// Used by ECS/Kubernetes liveness checks to detect stuck services.
	IsHealthy() bool
}

// PairStatus is the last confirmed on-chain state of one feed on one network.
type PairStatus struct {
	Network         string    `json:"network"`
	Symbol          string    `json:"symbol"`
	FeedID          string    `json:"feedId"`
	Observed        bool      `json:"observed"`
	LastPrice       float64   `json:"lastPrice"`
	LastConfirmedAt time.Time `json:"lastConfirmedAt,omitzero"`
	Age             string    `json:"age"`
}

// UpdateSummary is one confirmed update transaction.
type UpdateSummary struct {
	Network     string    `json:"network"`
	BlockNumber uint64    `json:"blockNumber"`
	TxHash      string    `json:"txHash"`
	TxURL       string    `json:"txUrl,omitempty"`
	Symbols     []string  `json:"symbols"`
	FeeNative   float64   `json:"feeNative"`
	FeeUSD      float64   `json:"feeUsd"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// PusherStatus is a point-in-time view of the pusher for operators.
type PusherStatus struct {
	State         string          `json:"state"`
	LastCycleAt   time.Time       `json:"lastCycleAt,omitzero"`
	Pairs         []PairStatus    `json:"pairs"`
	RecentUpdates []UpdateSummary `json:"recentUpdates,omitempty"`
}

// StatusReporter exposes the pusher's in-memory feed state.
type StatusReporter interface {
	Status(ctx context.Context) (PusherStatus, error)
}
