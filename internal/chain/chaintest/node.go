// Package chaintest runs an in-process JSON-RPC node for tests. It speaks the
// subset of the eth_ namespace the chain client uses and executes contract
// calls through Go handlers registered per address and method.
package chaintest

import (
	"encoding/json"
	"errors"
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
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	DefaultChainID = 80094
	// GasUsed is charged for every mined transaction.
	GasUsed uint64 = 50_000
)

var (
	BaseFee = big.NewInt(1_000_000_000)
	Tip     = big.NewInt(1_000_000_000)
)

// Call is one contract invocation seen by a handler. Commit is true when the
// call is executed as part of a mined transaction; handlers must only mutate
// node state when it is set.
type Call struct {
	From   common.Address
	To     common.Address
	Value  *big.Int
	Args   []any
	Commit bool
}

// Handler executes one method and returns its output values.
type Handler func(n *Node, call Call) ([]any, error)

// RevertError makes a handler revert with an Error(string) reason.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string { return "execution reverted: " + e.Reason }

func Revert(format string, args ...any) error {
	return &RevertError{Reason: fmt.Sprintf(format, args...)}
}

type method struct {
	name    string
	abi     abi.Method
	handler Handler
}

type minedTx struct {
	tx      *types.Transaction
	from    common.Address
	receipt *types.Receipt
	block   *block
}

type block struct {
	header *types.Header
	txs    []common.Hash
}

// Node is a fake EVM node. One mutex is held for the whole of each request, so
// handlers may touch node state without locking.
type Node struct {
	Server  *httptest.Server
	ChainID *big.Int

	// HoldReceipts leaves submitted transactions pending forever.
	HoldReceipts bool

	mu          sync.Mutex
	native      map[common.Address]*big.Int
	nonces      map[common.Address]uint64
	methods     map[common.Address]map[[4]byte]method
	tokens      map[common.Address]*Token
	txs         map[common.Hash]*minedTx
	blocks      []*block
	blockByHash map[common.Hash]*block
	sent        []common.Hash
	rpcCounts   map[string]int
	callCounts  map[string]int
}

func NewNode(t testing.TB) *Node {
	t.Helper()
	n := &Node{
		ChainID:     big.NewInt(DefaultChainID),
		native:      map[common.Address]*big.Int{},
		nonces:      map[common.Address]uint64{},
		methods:     map[common.Address]map[[4]byte]method{},
		tokens:      map[common.Address]*Token{},
		txs:         map[common.Hash]*minedTx{},
		blockByHash: map[common.Hash]*block{},
		rpcCounts:   map[string]int{},
		callCounts:  map[string]int{},
	}
	n.mine(nil)
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Server.Close)
	return n
}

func (n *Node) URL() string { return n.Server.URL }

// Handle registers a handler for one method of the given ABI at addr.
func (n *Node) Handle(addr common.Address, abiJSON, name string, h Handler) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(err)
	}
	m, ok := parsed.Methods[name]
	if !ok {
		panic(fmt.Sprintf("chaintest: method %s not in abi", name))
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.methods[addr] == nil {
		n.methods[addr] = map[[4]byte]method{}
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	n.methods[addr][sel] = method{name: name, abi: m, handler: h}
}

func (n *Node) SetNative(addr common.Address, amount *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.native[addr] = new(big.Int).Set(amount)
}

func (n *Node) Native(addr common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return new(big.Int).Set(n.nativeOf(addr))
}

// RPCCount reports how many times a JSON-RPC method was requested.
func (n *Node) RPCCount(rpcMethod string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rpcCounts[rpcMethod]
}

// CallCount reports how many times a contract method was invoked on addr,
// by eth_call or by a mined transaction.
func (n *Node) CallCount(addr common.Address, name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.callCounts[callKey(addr, name)]
}

// Sent returns submitted transactions in broadcast order.
func (n *Node) Sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*types.Transaction, 0, len(n.sent))
	for _, h := range n.sent {
		out = append(out, n.txs[h].tx)
	}
	return out
}

// SentMethods returns the contract method of every submitted transaction.
func (n *Node) SentMethods() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, h := range n.sent {
		tx := n.txs[h].tx
		name := "transfer"
		if m, ok := n.lookup(*tx.To(), tx.Data()); ok {
			name = m.name
		}
		out = append(out, name)
	}
	return out
}

// Receipt returns the receipt of a mined transaction, or nil.
func (n *Node) Receipt(hash common.Hash) *types.Receipt {
	n.mu.Lock()
	defer n.mu.Unlock()
	if m, ok := n.txs[hash]; ok {
		return m.receipt
	}
	return nil
}

// LatestBlockHash is the hash of the current head.
func (n *Node) LatestBlockHash() common.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.blocks[len(n.blocks)-1].header.Hash()
}

func callKey(addr common.Address, name string) string {
	return strings.ToLower(addr.Hex()) + ":" + name
}

func (n *Node) nativeOf(addr common.Address) *big.Int {
	if v, ok := n.native[addr]; ok {
		return v
	}
	return new(big.Int)
}

func (n *Node) lookup(to common.Address, data []byte) (method, bool) {
	if len(data) < 4 {
		return method{}, false
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	m, ok := n.methods[to][sel]
	return m, ok
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *rpcError) Error() string { return e.Message }

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "batch requests are not supported", http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.rpcCounts[req.Method]++
	result, err := n.dispatch(req)
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if err != nil {
		var re *rpcError
		if !errors.As(err, &re) {
			re = &rpcError{Code: -32000, Message: err.Error()}
		}
		resp["error"] = re
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *Node) dispatch(req request) (any, error) {
	switch req.Method {
	case "eth_chainId":
		return (*hexutil.Big)(n.ChainID), nil
	case "eth_getBalance":
		var addr common.Address
		if err := param(req, 0, &addr); err != nil {
			return nil, err
		}
		return (*hexutil.Big)(n.nativeOf(addr)), nil
	case "eth_getTransactionCount":
		var addr common.Address
		if err := param(req, 0, &addr); err != nil {
			return nil, err
		}
		return hexutil.Uint64(n.nonces[addr]), nil
	case "eth_maxPriorityFeePerGas":
		return (*hexutil.Big)(Tip), nil
	case "eth_call":
		return n.ethCall(req)
	case "eth_getBlockByNumber":
		return n.blockJSON(n.blocks[len(n.blocks)-1])
	case "eth_getBlockByHash":
		var hash common.Hash
		if err := param(req, 0, &hash); err != nil {
			return nil, err
		}
		b, ok := n.blockByHash[hash]
		if !ok {
			return nil, nil
		}
		return n.blockJSON(b)
	case "eth_sendRawTransaction":
		return n.sendRaw(req)
	case "eth_getTransactionReceipt":
		var hash common.Hash
		if err := param(req, 0, &hash); err != nil {
			return nil, err
		}
		m, ok := n.txs[hash]
		if !ok || m.receipt == nil {
			return nil, nil
		}
		return m.receipt, nil
	case "eth_getTransactionByHash":
		var hash common.Hash
		if err := param(req, 0, &hash); err != nil {
			return nil, err
		}
		m, ok := n.txs[hash]
		if !ok {
			return nil, nil
		}
		return n.txJSON(m)
	default:
		return nil, &rpcError{Code: -32601, Message: fmt.Sprintf("the method %s does not exist/is not available", req.Method)}
	}
}

func param(req request, i int, out any) error {
	if i >= len(req.Params) {
		return &rpcError{Code: -32602, Message: fmt.Sprintf("missing param %d", i)}
	}
	if err := json.Unmarshal(req.Params[i], out); err != nil {
		return &rpcError{Code: -32602, Message: err.Error()}
	}
	return nil
}

type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (n *Node) ethCall(req request) (any, error) {
	var args callArgs
	if err := param(req, 0, &args); err != nil {
		return nil, err
	}
	if args.To == nil {
		return nil, &rpcError{Code: -32602, Message: "contract creation is not supported"}
	}
	var data []byte
	switch {
	case args.Input != nil:
		data = *args.Input
	case args.Data != nil:
		data = *args.Data
	}
	call := Call{To: *args.To, Value: new(big.Int)}
	if args.From != nil {
		call.From = *args.From
	}
	if args.Value != nil {
		call.Value = args.Value.ToInt()
	}
	out, err := n.execute(call, data)
	if err != nil {
		return nil, err
	}
	return hexutil.Bytes(out), nil
}

// execute decodes calldata, runs the handler and packs its outputs. Reverts
// come back as JSON-RPC error 3 carrying the encoded reason.
func (n *Node) execute(call Call, data []byte) ([]byte, error) {
	m, ok := n.lookup(call.To, data)
	if !ok {
		return nil, revertError(&RevertError{Reason: "function selector was not recognized"})
	}
	n.callCounts[callKey(call.To, m.name)]++
	args, err := m.abi.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, &rpcError{Code: -32602, Message: err.Error()}
	}
	call.Args = args
	values, err := m.handler(n, call)
	if err != nil {
		var re *RevertError
		if errors.As(err, &re) {
			return nil, revertError(re)
		}
		return nil, err
	}
	out, err := m.abi.Outputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("chaintest: pack %s outputs: %w", m.name, err)
	}
	return out, nil
}

func revertError(re *RevertError) *rpcError {
	return &rpcError{Code: 3, Message: re.Error(), Data: hexutil.Encode(EncodeRevert(re.Reason))}
}

// EncodeRevert builds Error(string) revert data.
func EncodeRevert(reason string) []byte {
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
}

func (n *Node) sendRaw(req request) (any, error) {
	var raw hexutil.Bytes
	if err := param(req, 0, &raw); err != nil {
		return nil, err
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, &rpcError{Code: -32000, Message: "invalid transaction: " + err.Error()}
	}
	from, err := types.Sender(types.LatestSignerForChainID(n.ChainID), tx)
	if err != nil {
		return nil, &rpcError{Code: -32000, Message: "invalid sender: " + err.Error()}
	}
	if tx.Nonce() != n.nonces[from] {
		return nil, &rpcError{Code: -32000, Message: fmt.Sprintf("nonce too low: next nonce %d, tx nonce %d", n.nonces[from], tx.Nonce())}
	}
	if tx.To() == nil {
		return nil, &rpcError{Code: -32000, Message: "contract creation is not supported"}
	}
	n.nonces[from]++
	entry := &minedTx{tx: tx, from: from}
	n.txs[tx.Hash()] = entry
	n.sent = append(n.sent, tx.Hash())
	if !n.HoldReceipts {
		n.mineTx(entry)
	}
	return tx.Hash(), nil
}

func effectiveGasPrice(tx *types.Transaction) *big.Int {
	price := new(big.Int).Add(BaseFee, tx.GasTipCap())
	if price.Cmp(tx.GasFeeCap()) > 0 {
		price.Set(tx.GasFeeCap())
	}
	return price
}

// mineTx executes a transaction in a new block. A reverting handler leaves
// state untouched except for the gas charge.
func (n *Node) mineTx(entry *minedTx) {
	tx := entry.tx
	price := effectiveGasPrice(tx)
	fee := new(big.Int).Mul(price, new(big.Int).SetUint64(GasUsed))
	status := types.ReceiptStatusSuccessful

	needed := new(big.Int).Add(fee, tx.Value())
	if n.nativeOf(entry.from).Cmp(needed) < 0 {
		status = types.ReceiptStatusFailed
	} else {
		call := Call{From: entry.from, To: *tx.To(), Value: tx.Value(), Commit: true}
		if len(tx.Data()) > 0 {
			if _, err := n.execute(call, tx.Data()); err != nil {
				status = types.ReceiptStatusFailed
			}
		}
	}
	balance := new(big.Int).Sub(n.nativeOf(entry.from), fee)
	if balance.Sign() < 0 {
		balance.SetInt64(0)
	}
	if status == types.ReceiptStatusSuccessful {
		balance.Sub(balance, tx.Value())
		n.native[*tx.To()] = new(big.Int).Add(n.nativeOf(*tx.To()), tx.Value())
	}
	n.native[entry.from] = balance

	b := n.mine([]common.Hash{tx.Hash()})
	entry.block = b
	entry.receipt = &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		CumulativeGasUsed: GasUsed,
		Bloom:             types.Bloom{},
		Logs:              []*types.Log{},
		TxHash:            tx.Hash(),
		GasUsed:           GasUsed,
		EffectiveGasPrice: price,
		BlockHash:         b.header.Hash(),
		BlockNumber:       new(big.Int).Set(b.header.Number),
		TransactionIndex:  0,
	}
}

func (n *Node) mine(txs []common.Hash) *block {
	number := int64(len(n.blocks))
	var parent common.Hash
	if number > 0 {
		parent = n.blocks[number-1].header.Hash()
	}
	var gasUsed uint64
	if len(txs) > 0 {
		gasUsed = GasUsed
	}
	header := &types.Header{
		ParentHash:  parent,
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    common.HexToAddress("0x00000000000000000000000000000000000000c0"),
		Root:        common.Hash{},
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  new(big.Int),
		Number:      big.NewInt(number),
		GasLimit:    30_000_000,
		GasUsed:     gasUsed,
		Time:        uint64(1_700_000_000 + number*2),
		Extra:       []byte{},
		BaseFee:     new(big.Int).Set(BaseFee),
	}
	b := &block{header: header, txs: txs}
	n.blocks = append(n.blocks, b)
	n.blockByHash[header.Hash()] = b
	return b
}

func (n *Node) blockJSON(b *block) (map[string]any, error) {
	raw, err := json.Marshal(b.header)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	out["hash"] = b.header.Hash()
	txs := make([]common.Hash, len(b.txs))
	copy(txs, b.txs)
	out["transactions"] = txs
	out["uncles"] = []common.Hash{}
	return out, nil
}

func (n *Node) txJSON(m *minedTx) (map[string]any, error) {
	raw, err := json.Marshal(m.tx)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	out["from"] = m.from
	if m.block != nil {
		out["blockNumber"] = (*hexutil.Big)(m.block.header.Number)
		out["blockHash"] = m.block.header.Hash()
		out["transactionIndex"] = hexutil.Uint64(0)
		out["gasPrice"] = (*hexutil.Big)(m.receipt.EffectiveGasPrice)
	} else {
		out["blockNumber"] = nil
		out["blockHash"] = nil
		out["transactionIndex"] = nil
		out["gasPrice"] = (*hexutil.Big)(m.tx.GasFeeCap())
	}
	return out, nil
}
