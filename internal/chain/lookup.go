package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
)

// Block is a block with its transactions listed by hash only.
type Block struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parentHash"`
	Miner        common.Address `json:"miner"`
	GasUsed      hexutil.Uint64 `json:"gasUsed"`
	GasLimit     hexutil.Uint64 `json:"gasLimit"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	Nonce        string         `json:"nonce"`
	Difficulty   *hexutil.Big   `json:"difficulty"`
	ExtraData    hexutil.Bytes  `json:"extraData"`
	Transactions []common.Hash  `json:"transactions"`
}

func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
	}
	return balance, nil
}

// TransactionByHash returns the transaction and whether it is still pending.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	tx, pending, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, false, notFoundOr(err, fmt.Sprintf("transaction %s not found", hash.Hex()), "read transaction")
	}
	return tx, pending, nil
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("receipt for %s not found", hash.Hex()), "read transaction receipt")
	}
	return receipt, nil
}

// Sender recovers the signer of a transaction under the client's chain rules.
func (c *Client) Sender(tx *types.Transaction) (common.Address, error) {
	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeUnavailable, "recover transaction sender", err)
	}
	return from, nil
}

func (c *Client) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	header, err := c.eth.HeaderByHash(ctx, hash)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("block %s not found", hash.Hex()), "read block header")
	}
	return header, nil
}

func (c *Client) BlockByHash(ctx context.Context, hash common.Hash) (*Block, error) {
	var block *Block
	if err := c.rpc.CallContext(ctx, &block, "eth_getBlockByHash", hash, false); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read block", err)
	}
	if block == nil {
		return nil, clierr.New(clierr.CodeNotFound, fmt.Sprintf("block %s not found", hash.Hex()))
	}
	return block, nil
}

func notFoundOr(err error, notFound, message string) error {
	if errors.Is(err, ethereum.NotFound) {
		return clierr.New(clierr.CodeNotFound, notFound)
	}
	return clierr.Wrap(clierr.CodeUnavailable, message, err)
}
