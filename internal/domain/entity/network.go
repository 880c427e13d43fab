package entity

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkSpec describes a target EVM network hosting a Pyth oracle contract.
// The signing key is held by the EVM adapter only.
type NetworkSpec struct {
	Name          string
	ChainID       int64
	RPCURL        string
	OracleAddress common.Address
	NativeFeedID  FeedID // prices gas in USD for observability only
	BlockExplorer string
}

// NewNetworkSpec creates a new NetworkSpec with validation.
func NewNetworkSpec(name string, chainID int64, rpcURL string, oracle common.Address, nativeFeed FeedID, explorer string) (*NetworkSpec, error) {
	n := &NetworkSpec{
		Name:          name,
		ChainID:       chainID,
		RPCURL:        rpcURL,
		OracleAddress: oracle,
		NativeFeedID:  nativeFeed,
		BlockExplorer: explorer,
	}
	if err := n.validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *NetworkSpec) validate() error {
	if n.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if n.ChainID <= 0 {
		return fmt.Errorf("chainID must be positive, got %d", n.ChainID)
	}
	if n.RPCURL == "" {
		return fmt.Errorf("rpc url must not be empty")
	}
	if n.OracleAddress == (common.Address{}) {
		return fmt.Errorf("oracle address must not be zero")
	}
	return nil
}

// TxURL returns a block explorer link for a transaction hash, or an empty
// string when no explorer is configured.
func (n NetworkSpec) TxURL(txHash common.Hash) string {
	if n.BlockExplorer == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", strings.TrimRight(n.BlockExplorer, "/"), txHash.Hex())
}
