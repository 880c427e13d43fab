package outbound

import (
	"context"
	"math/big"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
)

// OracleFacade is the on-chain oracle contract on a single network.
type OracleFacade interface {
	// ReadPrice returns the price currently stored for a feed.
	// It fails if the feed was never initialised on the contract.
	ReadPrice(ctx context.Context, feedID entity.FeedID) (entity.OnchainPrice, error)

	// QuoteFee returns the fee, in wei, the contract charges for the payload.
	QuoteFee(ctx context.Context, payload [][]byte) (*big.Int, error)

	// GasPrice returns the network's current suggested gas price in wei.
	GasPrice(ctx context.Context) (*big.Int, error)

	// SubmitUpdate sends an update transaction with fee attached as value and
	// blocks until it is mined.
	SubmitUpdate(ctx context.Context, payload [][]byte, fee, gasPrice *big.Int) (*entity.UpdateReceipt, error)
}
