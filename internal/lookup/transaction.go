package lookup

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/id"
	"github.com/ggonzalez94/bera-mcp/internal/model"
	"golang.org/x/sync/errgroup"
)

const (
	TxStatusNotFound = "not found"
	TxStatusPending  = "pending"
	TxStatusSuccess  = "success"
	TxStatusFailed   = "failed"
)

const gweiDecimals = 9

// TransactionResult is one of three shapes: not found, pending with the
// submitted transaction, or mined with the receipt fields inlined.
type TransactionResult struct {
	Status      string              `json:"status"`
	Message     string              `json:"message,omitempty"`
	TxHash      string              `json:"txHash"`
	Transaction *PendingTransaction `json:"transaction,omitempty"`
	*MinedTransaction
}

type PendingTransaction struct {
	Hash        string  `json:"hash"`
	From        string  `json:"from"`
	To          *string `json:"to"`
	Value       string  `json:"value"`
	GasPrice    string  `json:"gasPrice"`
	GasLimit    string  `json:"gasLimit"`
	Nonce       uint64  `json:"nonce"`
	Data        string  `json:"data"`
	BlockNumber *uint64 `json:"blockNumber"`
}

type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

type MinedTransaction struct {
	BlockNumber     uint64  `json:"blockNumber"`
	BlockHash       string  `json:"blockHash"`
	Timestamp       string  `json:"timestamp,omitempty"`
	From            string  `json:"from,omitempty"`
	To              *string `json:"to"`
	ContractAddress *string `json:"contractAddress"`
	Value           string  `json:"value"`
	GasUsed         string  `json:"gasUsed"`
	GasPrice        string  `json:"gasPrice,omitempty"`
	GasLimit        string  `json:"gasLimit,omitempty"`
	Nonce           *uint64 `json:"nonce,omitempty"`
	Data            string  `json:"data,omitempty"`
	Logs            []Log   `json:"logs"`
}

// Transaction reads a transaction and its receipt concurrently. A missing
// transaction is a result, not an error.
func (s *Service) Transaction(ctx context.Context, txHash string) (TransactionResult, error) {
	hash, err := parseHash(txHash, "transaction")
	if err != nil {
		return TransactionResult{}, err
	}
	var (
		tx      *types.Transaction
		receipt *types.Receipt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, _, err := s.reader.TransactionByHash(gctx, hash)
		if err != nil && !clierr.Is(err, clierr.CodeNotFound) {
			return err
		}
		tx = found
		return nil
	})
	g.Go(func() error {
		found, err := s.reader.TransactionReceipt(gctx, hash)
		if err != nil && !clierr.Is(err, clierr.CodeNotFound) {
			return err
		}
		receipt = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return TransactionResult{}, err
	}

	switch {
	case tx == nil && receipt == nil:
		return TransactionResult{
			Status:  TxStatusNotFound,
			Message: "Transaction not found on the blockchain",
			TxHash:  txHash,
		}, nil
	case receipt == nil:
		from, err := s.reader.Sender(tx)
		if err != nil {
			return TransactionResult{}, err
		}
		return TransactionResult{
			Status:      TxStatusPending,
			Message:     "Transaction is pending",
			TxHash:      txHash,
			Transaction: s.pendingView(tx, from),
		}, nil
	}
	mined, err := s.minedView(ctx, tx, receipt)
	if err != nil {
		return TransactionResult{}, err
	}
	status := TxStatusSuccess
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = TxStatusFailed
	}
	return TransactionResult{Status: status, TxHash: txHash, MinedTransaction: mined}, nil
}

func (s *Service) pendingView(tx *types.Transaction, from common.Address) *PendingTransaction {
	return &PendingTransaction{
		Hash:     tx.Hash().Hex(),
		From:     from.Hex(),
		To:       addressPtr(tx.To()),
		Value:    id.ToFormatted(tx.Value(), s.tokens.Native().Decimals),
		GasPrice: formatGwei(tx.GasPrice()),
		GasLimit: new(big.Int).SetUint64(tx.Gas()).String(),
		Nonce:    tx.Nonce(),
		Data:     hexutil.Encode(tx.Data()),
	}
}

func (s *Service) minedView(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) (*MinedTransaction, error) {
	view := &MinedTransaction{
		BlockNumber: receipt.BlockNumber.Uint64(),
		BlockHash:   receipt.BlockHash.Hex(),
		Value:       "0",
		GasUsed:     new(big.Int).SetUint64(receipt.GasUsed).String(),
		Logs:        make([]Log, 0, len(receipt.Logs)),
	}
	if receipt.ContractAddress != (common.Address{}) {
		view.ContractAddress = addressPtr(&receipt.ContractAddress)
	}
	for _, l := range receipt.Logs {
		topics := make([]string, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = t.Hex()
		}
		view.Logs = append(view.Logs, Log{Address: l.Address.Hex(), Topics: topics, Data: hexutil.Encode(l.Data)})
	}
	if header, err := s.reader.HeaderByHash(ctx, receipt.BlockHash); err == nil {
		view.Timestamp = model.Timestamp(time.Unix(int64(header.Time), 0))
	}
	if tx == nil {
		return view, nil
	}

	from, err := s.reader.Sender(tx)
	if err != nil {
		return nil, err
	}
	native := s.tokens.Native()
	gasPrice := receipt.EffectiveGasPrice
	if gasPrice == nil {
		gasPrice = tx.GasPrice()
	}
	nonce := tx.Nonce()
	view.From = from.Hex()
	view.To = addressPtr(tx.To())
	view.Value = id.ToFormatted(tx.Value(), native.Decimals) + " " + native.Symbol
	view.GasPrice = formatGwei(gasPrice)
	view.GasLimit = new(big.Int).SetUint64(tx.Gas()).String()
	view.Nonce = &nonce
	view.Data = hexutil.Encode(tx.Data())
	return view, nil
}

func formatGwei(wei *big.Int) string {
	if wei == nil {
		wei = new(big.Int)
	}
	return id.ToFormatted(wei, gweiDecimals) + " Gwei"
}

func addressPtr(a *common.Address) *string {
	if a == nil {
		return nil
	}
	s := a.Hex()
	return &s
}
