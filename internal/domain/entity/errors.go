package entity

import (
	"errors"
	"fmt"
)

// ConfigurationError reports malformed or missing configuration. It is fatal
// at startup and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError creates a ConfigurationError with a formatted reason.
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SnapshotFetchError reports that the price service was unreachable or its
// response unparsable. It aborts the current cycle only.
type SnapshotFetchError struct {
	Op  string
	Err error
}

func (e *SnapshotFetchError) Error() string {
	return fmt.Sprintf("snapshot fetch (%s): %v", e.Op, e.Err)
}

func (e *SnapshotFetchError) Unwrap() error {
	return e.Err
}

// OnChainReadError reports a failed read of one feed on one network.
type OnChainReadError struct {
	FeedID  FeedID
	Network string
	Err     error
}

func (e *OnChainReadError) Error() string {
	return fmt.Sprintf("on-chain read of %s on %s: %v", e.FeedID, e.Network, e.Err)
}

func (e *OnChainReadError) Unwrap() error {
	return e.Err
}

// Errors reported by oracle facades once a transaction has been sent.
var (
	ErrTxReverted     = errors.New("transaction reverted")
	ErrTxNotConfirmed = errors.New("transaction not confirmed")
)

// Submission stages.
const (
	StagePayload  = "payload"
	StageFee      = "fee"
	StageGasPrice = "gas_price"
	StageSubmit   = "submit"
	StageReceipt  = "receipt"
)

// SubmissionError reports a failure to get an update transaction confirmed on
// one network. State for that network is left untouched.
type SubmissionError struct {
	Network string
	Stage   string
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission on %s failed at %s: %v", e.Network, e.Stage, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
