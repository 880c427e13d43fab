package testutil

import (
	"math/big"
	"testing"

	"github.com/archon-research/oracle-pusher/internal/pkg/blockchain/abis"
)

// PackPythPrice ABI-encodes getPriceUnsafe() return data.
func PackPythPrice(t *testing.T, price int64, conf uint64, expo int32, publishTime int64) []byte {
	t.Helper()
	pythABI, err := abis.GetPythABI()
	if err != nil {
		t.Fatalf("loading pyth ABI: %v", err)
	}
	data, err := pythABI.Methods["getPriceUnsafe"].Outputs.Pack(price, conf, expo, big.NewInt(publishTime))
	if err != nil {
		t.Fatalf("packing price: %v", err)
	}
	return data
}

// PackUpdateFee ABI-encodes getUpdateFee() return data.
func PackUpdateFee(t *testing.T, fee *big.Int) []byte {
	t.Helper()
	pythABI, err := abis.GetPythABI()
	if err != nil {
		t.Fatalf("loading pyth ABI: %v", err)
	}
	data, err := pythABI.Methods["getUpdateFee"].Outputs.Pack(fee)
	if err != nil {
		t.Fatalf("packing fee: %v", err)
	}
	return data
}
