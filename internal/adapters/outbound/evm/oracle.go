// Package evm implements the OracleFacade port against a Pyth contract
// deployed on an EVM network, using go-ethereum for ABI encoding, signing and
// JSON-RPC transport.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
	"github.com/archon-research/oracle-pusher/internal/pkg/blockchain/abis"
	"github.com/archon-research/oracle-pusher/internal/pkg/hexutil"
	"github.com/archon-research/oracle-pusher/internal/ports/outbound"
)

const tracerName = "github.com/archon-research/oracle-pusher/internal/adapters/outbound/evm"

// Compile-time checks.
var (
	_ outbound.OracleFacade = (*Oracle)(nil)
	_ Backend               = (*ethclient.Client)(nil)
)

// Backend is the subset of the JSON-RPC client the oracle needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config holds configuration for the Oracle adapter.
type Config struct {
	// Network is the network name, used for logging.
	Network string

	// ChainID is used to sign transactions.
	ChainID int64

	// OracleAddress is the Pyth contract address.
	OracleAddress common.Address

	// PrivateKey is the hex-encoded signing key, with or without a 0x prefix.
	PrivateKey string

	// GasLimitMultiplier pads the estimated gas limit.
	GasLimitMultiplier float64

	// ReceiptPollInterval is how often to poll for the transaction receipt.
	ReceiptPollInterval time.Duration

	// ConfirmTimeout bounds the wait for a transaction to be mined. Negative
	// waits until the caller's context is done.
	ConfirmTimeout time.Duration

	// Logger is the structured logger.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		GasLimitMultiplier:  1.2,
		ReceiptPollInterval: 2 * time.Second,
		ConfirmTimeout:      2 * time.Minute,
		Logger:              slog.Default(),
	}
}

// Oracle reads from and pushes updates to one Pyth contract.
type Oracle struct {
	backend            Backend
	abi                *abi.ABI
	address            common.Address
	key                *ecdsa.PrivateKey
	from               common.Address
	signer             types.Signer
	gasLimitMultiplier float64
	pollInterval       time.Duration
	confirmTimeout     time.Duration
	logger             *slog.Logger
}

// NewOracle creates a new Oracle adapter.
func NewOracle(backend Backend, config Config) (*Oracle, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if config.ChainID <= 0 {
		return nil, fmt.Errorf("chain id must be positive, got %d", config.ChainID)
	}
	if config.OracleAddress == (common.Address{}) {
		return nil, fmt.Errorf("oracle address cannot be zero")
	}

	defaults := ConfigDefaults()
	if config.GasLimitMultiplier == 0 {
		config.GasLimitMultiplier = defaults.GasLimitMultiplier
	}
	if config.ReceiptPollInterval == 0 {
		config.ReceiptPollInterval = defaults.ReceiptPollInterval
	}
	if config.ConfirmTimeout == 0 {
		config.ConfirmTimeout = defaults.ConfirmTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	key, err := crypto.HexToECDSA(hexutil.Trim0x(config.PrivateKey))
	if err != nil {
		// The underlying error can echo key material.
		return nil, fmt.Errorf("invalid private key")
	}

	pythABI, err := abis.GetPythABI()
	if err != nil {
		return nil, fmt.Errorf("loading pyth ABI: %w", err)
	}

	from := crypto.PubkeyToAddress(key.PublicKey)

	return &Oracle{
		backend:            backend,
		abi:                pythABI,
		address:            config.OracleAddress,
		key:                key,
		from:               from,
		signer:             types.LatestSignerForChainID(big.NewInt(config.ChainID)),
		gasLimitMultiplier: config.GasLimitMultiplier,
		pollInterval:       config.ReceiptPollInterval,
		confirmTimeout:     config.ConfirmTimeout,
		logger: config.Logger.With(
			"component", "evm-oracle",
			"network", config.Network,
			"sender", from.Hex(),
		),
	}, nil
}

// From returns the address updates are sent from.
func (o *Oracle) From() common.Address {
	return o.from
}

// ReadPrice calls getPriceUnsafe for a feed.
func (o *Oracle) ReadPrice(ctx context.Context, feedID entity.FeedID) (entity.OnchainPrice, error) {
	out, err := o.call(ctx, "getPriceUnsafe", [32]byte(feedID))
	if err != nil {
		return entity.OnchainPrice{}, err
	}
	if len(out) != 4 {
		return entity.OnchainPrice{}, fmt.Errorf("getPriceUnsafe returned %d values, want 4", len(out))
	}

	price, ok1 := out[0].(int64)
	expo, ok2 := out[2].(int32)
	publishTime, ok3 := out[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return entity.OnchainPrice{}, fmt.Errorf("unexpected getPriceUnsafe output types")
	}

	return entity.OnchainPrice{
		Mantissa:    price,
		Exponent:    expo,
		PublishTime: time.Unix(publishTime.Int64(), 0).UTC(),
	}, nil
}

// QuoteFee calls getUpdateFee for the payload.
func (o *Oracle) QuoteFee(ctx context.Context, payload [][]byte) (*big.Int, error) {
	out, err := o.call(ctx, "getUpdateFee", payload)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getUpdateFee returned %d values, want 1", len(out))
	}
	fee, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getUpdateFee output type %T", out[0])
	}
	return fee, nil
}

// GasPrice returns the node's suggested gas price.
func (o *Oracle) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := o.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggesting gas price: %w", err)
	}
	return price, nil
}

// SubmitUpdate signs and sends an updatePriceFeeds transaction carrying fee as
// value, then waits for its receipt. Once sent, failures wrap
// entity.ErrTxReverted or entity.ErrTxNotConfirmed.
func (o *Oracle) SubmitUpdate(ctx context.Context, payload [][]byte, fee, gasPrice *big.Int) (*entity.UpdateReceipt, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "evm.submitUpdate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("oracle.address", o.address.Hex()),
			attribute.Int("update.payload_count", len(payload)),
			attribute.String("update.fee_wei", fee.String()),
		),
	)
	defer span.End()

	receipt, err := o.submitUpdate(ctx, payload, fee, gasPrice)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update submission failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("tx.hash", receipt.TxHash.Hex()),
		attribute.Int64("tx.block_number", int64(receipt.BlockNumber)),
		attribute.Int64("tx.gas_used", int64(receipt.GasUsed)),
	)
	return receipt, nil
}

func (o *Oracle) submitUpdate(ctx context.Context, payload [][]byte, fee, gasPrice *big.Int) (*entity.UpdateReceipt, error) {
	data, err := o.abi.Pack("updatePriceFeeds", payload)
	if err != nil {
		return nil, fmt.Errorf("packing updatePriceFeeds: %w", err)
	}

	nonce, err := o.backend.PendingNonceAt(ctx, o.from)
	if err != nil {
		return nil, fmt.Errorf("getting nonce: %w", err)
	}

	estimated, err := o.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     o.from,
		To:       &o.address,
		GasPrice: gasPrice,
		Value:    fee,
		Data:     data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimating gas: %w", err)
	}
	gasLimit := uint64(float64(estimated) * o.gasLimitMultiplier)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &o.address,
		Value:    fee,
		Data:     data,
	})
	signed, err := types.SignTx(tx, o.signer, o.key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}

	if err := o.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("sending transaction: %w", err)
	}

	o.logger.Info("update transaction sent",
		"tx", signed.Hash().Hex(),
		"nonce", nonce,
		"gasLimit", gasLimit,
		"gasPrice", gasPrice.String(),
		"fee", fee.String())

	receipt, err := o.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s in block %s", entity.ErrTxReverted, receipt.TxHash.Hex(), receipt.BlockNumber)
	}

	effectiveGasPrice := signed.GasPrice()
	if receipt.EffectiveGasPrice != nil {
		effectiveGasPrice = new(big.Int).Set(receipt.EffectiveGasPrice)
	}

	return &entity.UpdateReceipt{
		BlockNumber:       receipt.BlockNumber.Uint64(),
		TxHash:            receipt.TxHash,
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: effectiveGasPrice,
	}, nil
}

// waitMined polls for a receipt until one is found or ctx, bounded by
// ConfirmTimeout, is done.
// RPC errors other than not-found are logged and polling continues.
func (o *Oracle) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if o.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.confirmTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := o.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			lastErr = err
			o.logger.Debug("receipt poll failed", "tx", txHash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("%w: waiting for receipt of %s: %v (last error: %v)", entity.ErrTxNotConfirmed, txHash.Hex(), ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("%w: waiting for receipt of %s: %v", entity.ErrTxNotConfirmed, txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (o *Oracle) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := o.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}

	result, err := o.backend.CallContract(ctx, ethereum.CallMsg{
		From: o.from,
		To:   &o.address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}

	out, err := o.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", method, err)
	}
	return out, nil
}
