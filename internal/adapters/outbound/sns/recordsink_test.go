package sns

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
	"github.com/archon-research/oracle-pusher/internal/testutil"
)

// mockSNSClient implements SNSPublisher for testing.
type mockSNSClient struct {
	mu          sync.Mutex
	publishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       []*sns.PublishInput
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	m.mu.Unlock()
	if m.publishFunc != nil {
		return m.publishFunc(ctx, params, optFns...)
	}
	return &sns.PublishOutput{
		MessageId: aws.String("test-message-id"),
	}, nil
}

func (m *mockSNSClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

const (
	testTopicARN     = "arn:aws:sns:us-east-1:123456789:oracle-updates"
	testFIFOTopicARN = "arn:aws:sns:us-east-1:123456789:oracle-updates.fifo"
)

func testRecord() *entity.UpdateRecord {
	return &entity.UpdateRecord{
		Network:     "base",
		ChainID:     8453,
		BlockNumber: 22_000_000,
		TxHash:      common.HexToHash("0xabc123"),
		TxURL:       "https://basescan.org/tx/0xabc123",
		GasUsed:     120_000,
		GasPriceWei: big.NewInt(1_000_000_000),
		FeeNative:   0.00012,
		FeeUSD:      0.42,
		FeedIDs:     []string{"0x01", "0x02"},
		Symbols:     []string{"ETH/USD", "BTC/USD"},
		Reconciled:  2,
		ConfirmedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func fastConfig(topic string) Config {
	return Config{
		TopicARN:       topic,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Logger:         testutil.DiscardLogger(),
	}
}

func TestNewRecordSink_Validation(t *testing.T) {
	tests := []struct {
		name    string
		client  SNSPublisher
		config  Config
		wantErr string
	}{
		{name: "nil client", client: nil, config: Config{TopicARN: testTopicARN}, wantErr: "sns client is required"},
		{name: "missing topic", client: &mockSNSClient{}, config: Config{}, wantErr: "topic ARN is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecordSink(tt.client, tt.config)
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("expected error %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewRecordSink_AppliesDefaults(t *testing.T) {
	sink, err := NewRecordSink(&mockSNSClient{}, Config{TopicARN: testTopicARN})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", sink.config.MaxRetries)
	}
	if sink.config.InitialBackoff != 100*time.Millisecond {
		t.Errorf("expected InitialBackoff=100ms, got %v", sink.config.InitialBackoff)
	}
	if sink.config.MaxBackoff != 5*time.Second {
		t.Errorf("expected MaxBackoff=5s, got %v", sink.config.MaxBackoff)
	}
	if sink.config.BackoffFactor != 2.0 {
		t.Errorf("expected BackoffFactor=2.0, got %v", sink.config.BackoffFactor)
	}
	if sink.fifo {
		t.Error("standard topic should not be treated as FIFO")
	}
}

func TestPublish_Success(t *testing.T) {
	client := &mockSNSClient{}
	sink, err := NewRecordSink(client, fastConfig(testTopicARN))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := testRecord()
	if err := sink.Publish(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.callCount() != 1 {
		t.Fatalf("expected 1 call, got %d", client.callCount())
	}
	call := client.calls[0]
	if *call.TopicArn != testTopicARN {
		t.Errorf("unexpected topic ARN: %s", *call.TopicArn)
	}
	if call.MessageGroupId != nil || call.MessageDeduplicationId != nil {
		t.Error("standard topic should not set FIFO fields")
	}

	var decoded entity.UpdateRecord
	if err := json.Unmarshal([]byte(*call.Message), &decoded); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	if decoded.TxHash != record.TxHash || decoded.GasUsed != record.GasUsed || decoded.GasPriceWei.Cmp(record.GasPriceWei) != 0 || len(decoded.Symbols) != 2 {
		t.Errorf("decoded record mismatch: %+v", decoded)
	}

	attrs := call.MessageAttributes
	if v := attrs["network"].StringValue; v == nil || *v != "base" {
		t.Error("missing or incorrect network attribute")
	}
	if v := attrs["chainId"].StringValue; v == nil || *v != "8453" {
		t.Error("missing or incorrect chainId attribute")
	}
	if v := attrs["feedCount"].StringValue; v == nil || *v != "2" {
		t.Error("missing or incorrect feedCount attribute")
	}
}

func TestPublish_FIFOTopic(t *testing.T) {
	client := &mockSNSClient{}
	sink, err := NewRecordSink(client, fastConfig(testFIFOTopicARN))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := testRecord()
	if err := sink.Publish(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := client.calls[0]
	if call.MessageGroupId == nil || *call.MessageGroupId != "base" {
		t.Errorf("expected MessageGroupId=base, got %v", call.MessageGroupId)
	}
	if call.MessageDeduplicationId == nil || *call.MessageDeduplicationId != record.TxHash.Hex() {
		t.Errorf("expected dedup id = tx hash, got %v", call.MessageDeduplicationId)
	}
}

func TestPublish_RetryOnThrottling(t *testing.T) {
	calls := 0
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			calls++
			if calls < 3 {
				return nil, &types.ThrottledException{Message: aws.String("throttled")}
			}
			return &sns.PublishOutput{MessageId: aws.String("ok")}, nil
		},
	}
	sink, err := NewRecordSink(client, fastConfig(testTopicARN))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sink.Publish(context.Background(), testRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestPublish_RetriesExhausted(t *testing.T) {
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, &types.InternalErrorException{Message: aws.String("internal")}
		},
	}
	sink, err := NewRecordSink(client, fastConfig(testTopicARN))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = sink.Publish(context.Background(), testRecord())
	var internal *types.InternalErrorException
	if !errors.As(err, &internal) {
		t.Fatalf("expected wrapped InternalErrorException, got %v", err)
	}
	if client.callCount() != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", client.callCount())
	}
}

func TestPublish_NonRetryableError(t *testing.T) {
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, &types.NotFoundException{Message: aws.String("no such topic")}
		},
	}
	sink, err := NewRecordSink(client, fastConfig(testTopicARN))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sink.Publish(context.Background(), testRecord()); err == nil {
		t.Fatal("expected error")
	}
	if client.callCount() != 1 {
		t.Errorf("expected a single attempt, got %d", client.callCount())
	}
}

func TestPublish_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			cancel()
			return nil, &types.ThrottledException{Message: aws.String("throttled")}
		},
	}
	cfg := fastConfig(testTopicARN)
	cfg.InitialBackoff = time.Second
	sink, err := NewRecordSink(client, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = sink.Publish(ctx, testRecord())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPublish_AfterClose(t *testing.T) {
	client := &mockSNSClient{}
	sink, err := NewRecordSink(client, fastConfig(testTopicARN))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if err := sink.Publish(context.Background(), testRecord()); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("expected ErrSinkClosed, got %v", err)
	}
	if client.callCount() != 0 {
		t.Errorf("expected no publish calls, got %d", client.callCount())
	}
}

func TestPublish_NilRecord(t *testing.T) {
	sink, err := NewRecordSink(&mockSNSClient{}, fastConfig(testTopicARN))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.Publish(context.Background(), nil); err == nil {
		t.Error("expected error for nil record")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: false},
		{name: "throttled", err: &types.ThrottledException{Message: aws.String("throttled")}, want: true},
		{name: "internal", err: &types.InternalErrorException{Message: aws.String("internal")}, want: true},
		{name: "kms throttled", err: &types.KMSThrottlingException{Message: aws.String("kms")}, want: true},
		{name: "invalid parameter", err: &types.InvalidParameterException{Message: aws.String("bad")}, want: false},
		{name: "not found", err: &types.NotFoundException{Message: aws.String("missing")}, want: false},
		{name: "authorization", err: &types.AuthorizationErrorException{Message: aws.String("denied")}, want: false},
		{name: "unknown", err: errors.New("connection reset"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
