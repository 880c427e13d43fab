// Package sns implements the UpdateRecordSink interface using AWS SNS.
//
// Each confirmed oracle update is published to a single topic as a JSON
// message, so downstream consumers (alerting, accounting, dashboards) can
// follow gas spend without polling the chains.
//
// Message Attributes:
//   - network: the network name, e.g. "base"
//   - chainId: the chain ID as a number
//   - feedCount: the number of feeds in the update
//
// FIFO topics (ARN ending in ".fifo") are grouped by network and deduplicated
// by transaction hash.
//
// For testing, use the memory.RecordSink adapter instead.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
	"github.com/archon-research/oracle-pusher/internal/pkg/retry"
	"github.com/archon-research/oracle-pusher/internal/ports/outbound"
)

var _ outbound.UpdateRecordSink = (*RecordSink)(nil)

// ErrSinkClosed is returned when publishing to a closed sink.
var ErrSinkClosed = errors.New("record sink is closed")

// SNSPublisher defines the subset of SNS client methods used by RecordSink.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS record sink.
type Config struct {
	// TopicARN is the topic update records are published to.
	TopicARN string

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	// Logger is the structured logger for the sink.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Logger:         slog.Default(),
	}
}

// RecordSink publishes update records to AWS SNS.
type RecordSink struct {
	client SNSPublisher
	config Config
	logger *slog.Logger
	fifo   bool

	mu     sync.RWMutex
	closed bool
}

// NewRecordSink creates a new SNS record sink.
func NewRecordSink(client SNSPublisher, config Config) (*RecordSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &RecordSink{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-recordsink"),
		fifo:   strings.HasSuffix(config.TopicARN, ".fifo"),
	}, nil
}

// Publish serializes the record as JSON and publishes it, retrying transient
// failures with exponential backoff.
func (s *RecordSink) Publish(ctx context.Context, record *entity.UpdateRecord) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrSinkClosed
	}
	if record == nil {
		return errors.New("record must not be nil")
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal update record: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(s.config.TopicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"network": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.Network),
			},
			"chainId": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(record.ChainID, 10)),
			},
			"feedCount": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.Itoa(len(record.FeedIDs))),
			},
		},
	}
	if s.fifo {
		input.MessageGroupId = aws.String(record.Network)
		input.MessageDeduplicationId = aws.String(record.TxHash.Hex())
	}

	retryCfg := retry.Config{
		MaxRetries:     s.config.MaxRetries,
		InitialBackoff: s.config.InitialBackoff,
		MaxBackoff:     s.config.MaxBackoff,
		BackoffFactor:  s.config.BackoffFactor,
	}
	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Warn("publish failed, retrying",
			"attempt", attempt,
			"maxRetries", s.config.MaxRetries,
			"backoff", backoff,
			"error", err,
			"network", record.Network,
			"txHash", record.TxHash.Hex(),
		)
	}

	err = retry.DoVoid(ctx, retryCfg, isRetryableError, onRetry, func() error {
		_, err := s.client.Publish(ctx, input)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to publish update record to SNS: %w", err)
	}
	return nil
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var (
		invalidParam *types.InvalidParameterException
		notFound     *types.NotFoundException
		authErr      *types.AuthorizationErrorException
	)
	if errors.As(err, &invalidParam) || errors.As(err, &notFound) || errors.As(err, &authErr) {
		return false
	}

	// Throttling, internal errors and network failures are all transient.
	return true
}

// Close marks the sink as closed. It is safe to call more than once.
func (s *RecordSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
