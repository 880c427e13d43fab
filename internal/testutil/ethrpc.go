package testutil

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/oracle-pusher/internal/pkg/blockchain/abis"
)

// JSONRPCRequest represents a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// PythPrice is a price stored by the mock Pyth contract.
type PythPrice struct {
	Price       int64
	Conf        uint64
	Expo        int32
	PublishTime int64
}

// MockPythNode is an in-process EVM JSON-RPC node hosting a single Pyth
// contract. It answers the calls an ethclient makes to read prices, quote
// fees and send update transactions. Sent transactions are mined immediately.
type MockPythNode struct {
	Server *httptest.Server

	pythABI *abi.ABI

	mu       sync.Mutex
	chainID  int64
	prices   map[[32]byte]PythPrice
	fee      *big.Int
	gasPrice *big.Int
	revert   bool
	onSend   func(tx *types.Transaction)
	sent     []*types.Transaction
	receipts map[common.Hash]map[string]any
}

// StartMockPythNode starts a mock node for the given chain. The server is
// closed when the test ends.
func StartMockPythNode(t *testing.T, chainID int64) *MockPythNode {
	t.Helper()

	pythABI, err := abis.GetPythABI()
	if err != nil {
		t.Fatalf("load pyth ABI: %v", err)
	}

	node := &MockPythNode{
		pythABI:  pythABI,
		chainID:  chainID,
		prices:   make(map[[32]byte]PythPrice),
		fee:      big.NewInt(1),
		gasPrice: big.NewInt(1_000_000_000),
		receipts: make(map[common.Hash]map[string]any),
	}
	node.Server = httptest.NewServer(http.HandlerFunc(node.handle))
	t.Cleanup(node.Server.Close)
	return node
}

// URL returns the node's RPC endpoint.
func (n *MockPythNode) URL() string {
	return n.Server.URL
}

// SetPrice stores a price for a feed.
func (n *MockPythNode) SetPrice(id [32]byte, p PythPrice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prices[id] = p
}

// SetFee sets the value getUpdateFee returns.
func (n *MockPythNode) SetFee(fee *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fee = fee
}

// SetRevert makes subsequently mined transactions fail.
func (n *MockPythNode) SetRevert(revert bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revert = revert
}

// SetOnSend registers a hook run while a sent transaction is mined. It may
// call SetPrice to simulate the contract applying the update.
func (n *MockPythNode) SetOnSend(fn func(tx *types.Transaction)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onSend = fn
}

// SentTransactions returns a copy of the transactions sent so far.
func (n *MockPythNode) SentTransactions() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.sent...)
}

func (n *MockPythNode) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteRPCError(w, json.RawMessage(`1`), -32700, "parse error")
		return
	}

	switch req.Method {
	case "eth_chainId":
		writeHexResult(w, req.ID, big.NewInt(n.chainID))
	case "eth_gasPrice":
		n.mu.Lock()
		price := new(big.Int).Set(n.gasPrice)
		n.mu.Unlock()
		writeHexResult(w, req.ID, price)
	case "eth_getTransactionCount":
		n.mu.Lock()
		nonce := len(n.sent)
		n.mu.Unlock()
		writeHexResult(w, req.ID, big.NewInt(int64(nonce)))
	case "eth_estimateGas":
		writeHexResult(w, req.ID, big.NewInt(100_000))
	case "eth_call":
		n.handleCall(w, req)
	case "eth_sendRawTransaction":
		n.handleSend(w, req)
	case "eth_getTransactionReceipt":
		n.handleReceipt(w, req)
	default:
		WriteRPCError(w, req.ID, -32601, "method not found: "+req.Method)
	}
}

func (n *MockPythNode) handleCall(w http.ResponseWriter, req JSONRPCRequest) {
	data, err := callData(req.Params)
	if err != nil || len(data) < 4 {
		WriteRPCError(w, req.ID, -32602, "invalid call data")
		return
	}
	method, err := n.pythABI.MethodById(data[:4])
	if err != nil {
		WriteRPCError(w, req.ID, 3, "execution reverted")
		return
	}

	var out []byte
	switch method.Name {
	case "getPriceUnsafe":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			WriteRPCError(w, req.ID, -32602, "invalid arguments")
			return
		}
		id := args[0].([32]byte)
		n.mu.Lock()
		p, ok := n.prices[id]
		n.mu.Unlock()
		if !ok {
			WriteRPCError(w, req.ID, 3, "execution reverted: PriceFeedNotFound")
			return
		}
		out, _ = method.Outputs.Pack(p.Price, p.Conf, p.Expo, big.NewInt(p.PublishTime))
	case "getUpdateFee":
		n.mu.Lock()
		fee := new(big.Int).Set(n.fee)
		n.mu.Unlock()
		out, _ = method.Outputs.Pack(fee)
	default:
		WriteRPCError(w, req.ID, 3, "execution reverted")
		return
	}

	resultJSON, _ := json.Marshal("0x" + hex.EncodeToString(out))
	WriteRPCResult(w, req.ID, json.RawMessage(resultJSON))
}

func (n *MockPythNode) handleSend(w http.ResponseWriter, req JSONRPCRequest) {
	var params []string
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) < 1 {
		WriteRPCError(w, req.ID, -32602, "invalid params")
		return
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(params[0], "0x"))
	if err != nil {
		WriteRPCError(w, req.ID, -32602, "invalid transaction encoding")
		return
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		WriteRPCError(w, req.ID, -32602, "invalid transaction: "+err.Error())
		return
	}

	n.mu.Lock()
	n.sent = append(n.sent, tx)
	blockNumber := 100 + len(n.sent)
	status := "0x1"
	if n.revert {
		status = "0x0"
	}
	onSend := n.onSend
	n.receipts[tx.Hash()] = map[string]any{
		"type":              fmt.Sprintf("0x%x", tx.Type()),
		"status":            status,
		"cumulativeGasUsed": "0x15f90",
		"gasUsed":           "0x15f90",
		"effectiveGasPrice": fmt.Sprintf("0x%x", tx.GasPrice()),
		"logsBloom":         "0x" + strings.Repeat("0", 512),
		"logs":              []any{},
		"transactionHash":   tx.Hash().Hex(),
		"transactionIndex":  "0x0",
		"blockHash":         fmt.Sprintf("0x%064x", blockNumber),
		"blockNumber":       fmt.Sprintf("0x%x", blockNumber),
		"contractAddress":   nil,
	}
	revert := n.revert
	n.mu.Unlock()

	if onSend != nil && !revert {
		onSend(tx)
	}

	resultJSON, _ := json.Marshal(tx.Hash().Hex())
	WriteRPCResult(w, req.ID, json.RawMessage(resultJSON))
}

func (n *MockPythNode) handleReceipt(w http.ResponseWriter, req JSONRPCRequest) {
	var params []string
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) < 1 {
		WriteRPCError(w, req.ID, -32602, "invalid params")
		return
	}

	n.mu.Lock()
	receipt, ok := n.receipts[common.HexToHash(params[0])]
	n.mu.Unlock()
	if !ok {
		WriteRPCResult(w, req.ID, json.RawMessage(`null`))
		return
	}

	receiptJSON, _ := json.Marshal(receipt)
	WriteRPCResult(w, req.ID, json.RawMessage(receiptJSON))
}

// WriteRPCResult writes a JSON-RPC success response.
func WriteRPCResult(w http.ResponseWriter, id, result json.RawMessage) {
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"result":  result,
	})
}

// WriteRPCError writes a JSON-RPC error response.
func WriteRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	errJSON, _ := json.Marshal(map[string]interface{}{"code": code, "message": message})
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"error":   json.RawMessage(errJSON),
	})
}

func writeHexResult(w http.ResponseWriter, id json.RawMessage, v *big.Int) {
	resultJSON, _ := json.Marshal(fmt.Sprintf("0x%x", v))
	WriteRPCResult(w, id, json.RawMessage(resultJSON))
}

// callData extracts the calldata from eth_call params.
func callData(params json.RawMessage) ([]byte, error) {
	var p []json.RawMessage
	if err := json.Unmarshal(params, &p); err != nil || len(p) < 1 {
		return nil, fmt.Errorf("invalid params")
	}
	var callObj map[string]interface{}
	if err := json.Unmarshal(p[0], &callObj); err != nil {
		return nil, err
	}
	// go-ethereum may use "data" or "input" for the calldata field
	dataHex, _ := callObj["input"].(string)
	if dataHex == "" {
		dataHex, _ = callObj["data"].(string)
	}
	return hex.DecodeString(strings.TrimPrefix(dataHex, "0x"))
}
