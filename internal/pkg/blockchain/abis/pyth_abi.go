// Package abis holds the contract ABIs the pusher encodes calls against.
package abis

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// GetPythABI returns the subset of the Pyth IPyth interface used to push and
// read price updates.
//
// getPriceUnsafe returns a PythStructs.Price tuple on-chain. The tuple holds only
// static types so its encoding is identical to the flattened outputs declared here.
func GetPythABI() (*abi.ABI, error) {
	return pythABI()
}

var pythABI = sync.OnceValues(func() (*abi.ABI, error) {
	return parseABI(pythABIJSON)
})

func parseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

const pythABIJSON = `[
		{
			"inputs": [{"name": "updateData", "type": "bytes[]"}],
			"name": "updatePriceFeeds",
			"outputs": [],
			"stateMutability": "payable",
			"type": "function"
		},
		{
			"inputs": [{"name": "updateData", "type": "bytes[]"}],
			"name": "getUpdateFee",
			"outputs": [{"name": "feeAmount", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"name": "id", "type": "bytes32"}],
			"name": "getPriceUnsafe",
			"outputs": [
				{"name": "price", "type": "int64"},
				{"name": "conf", "type": "uint64"},
				{"name": "expo", "type": "int32"},
				{"name": "publishTime", "type": "uint256"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"name": "id", "type": "bytes32"}],
			"name": "PriceFeedNotFound",
			"type": "error"
		}
	]`
