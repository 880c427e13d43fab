package entity

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// UpdatePlan maps a network name to the feeds selected for update on it
// during one cycle.
type UpdatePlan map[string][]FeedID

// Add appends a feed to a network's entry.
func (p UpdatePlan) Add(network string, id FeedID) {
	p[network] = append(p[network], id)
}

// Networks returns the networks with at least one flagged feed, sorted by name.
func (p UpdatePlan) Networks() []string {
	names := make([]string, 0, len(p))
	for name, ids := range p {
		if len(ids) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the total number of flagged pairs.
func (p UpdatePlan) Len() int {
	n := 0
	for _, ids := range p {
		n += len(ids)
	}
	return n
}

// UpdateReceipt is the confirmed result of an update transaction.
type UpdateReceipt struct {
	BlockNumber       uint64
	TxHash            common.Hash
	GasUsed           uint64
	EffectiveGasPrice *big.Int
}

// UpdateRecord is the observability record emitted once per network after a
// successful update transaction.
type UpdateRecord struct {
	Network     string      `json:"network"`
	ChainID     int64       `json:"chainId"`
	BlockNumber uint64      `json:"blockNumber"`
	TxHash      common.Hash `json:"txHash"`
	TxURL       string      `json:"txUrl,omitempty"`
	GasUsed     uint64      `json:"gasUsed"`
	GasPriceWei *big.Int    `json:"gasPriceWei"`
	FeeNative   float64     `json:"feeNative"`
	FeeUSD      float64     `json:"feeUsd"` // 0 when the native token price was unavailable
	FeedIDs     []string    `json:"feedIds"`
	Symbols     []string    `json:"symbols"`
	Reconciled  int         `json:"reconciled"`
	ConfirmedAt time.Time   `json:"confirmedAt"`
}

// WeiPerNative is the number of wei in one unit of the native token.
const WeiPerNative = 1e18

// FeeNative converts gas used and gas price into native token units. A nil
// gas price yields 0.
func FeeNative(gasUsed uint64, gasPriceWei *big.Int) float64 {
	if gasPriceWei == nil {
		return 0
	}
	wei := new(big.Float).SetInt(new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), gasPriceWei))
	fee, _ := wei.Quo(wei, big.NewFloat(WeiPerNative)).Float64()
	return fee
}
