package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"go.uber.org/zap"
)

// PendingTx is a broadcast transaction that has not been confirmed yet.
type PendingTx struct {
	Hash     common.Hash
	From     common.Address
	Contract Contract
	Method   string
	Nonce    uint64
	GasLimit uint64
	msg      ethereum.CallMsg
}

// Submit simulates, signs and broadcasts a state-changing call. It never
// retries: a failed broadcast is reported and left to the caller.
func (c *Client) Submit(ctx context.Context, contract Contract, category Category, value *big.Int, method string, args ...any) (*PendingTx, error) {
	txSigner, err := c.resolveSigner()
	if err != nil {
		return nil, err
	}
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = new(big.Int)
	}
	to := contract.Address
	from := txSigner.Address()
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}

	if c.simulate {
		if _, err := c.eth.CallContract(ctx, msg, nil); err != nil {
			return nil, wrapEVMExecutionError(clierr.CodeTransaction, fmt.Sprintf("simulate %s.%s", contract.Family, method), err)
		}
	}

	gasLimit, ok := c.gasLimits[category]
	if !ok {
		return nil, clierr.New(clierr.CodeInternal, fmt.Sprintf("no gas limit for category %q", category))
	}
	tipCap, err := resolveTipCap(ctx, c, c.maxTipGwei)
	if err != nil {
		return nil, err
	}
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, c.maxFeeGwei)
	if err != nil {
		return nil, err
	}

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := txSigner.SignTx(c.chainID, tx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfiguration, "sign transaction", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, wrapEVMExecutionError(clierr.CodeTransaction, "broadcast transaction", err)
	}
	c.log.Info("transaction submitted",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("contract", contract.String()),
		zap.String("method", method),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas_limit", gasLimit),
	)
	return &PendingTx{
		Hash:     signed.Hash(),
		From:     from,
		Contract: contract,
		Method:   method,
		Nonce:    nonce,
		GasLimit: gasLimit,
		msg:      msg,
	}, nil
}

// Confirm polls for the receipt of a submitted transaction. A reverted
// receipt or an exhausted wait both fail with a transaction error that names
// the hash, so the caller can still report what is on chain.
func (c *Client) Confirm(ctx context.Context, pending *PendingTx) (*types.Receipt, error) {
	if pending == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing pending transaction")
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(waitCtx, pending.Hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				c.log.Info("transaction confirmed",
					zap.String("tx_hash", pending.Hash.Hex()),
					zap.Uint64("block", receipt.BlockNumber.Uint64()),
					zap.Uint64("gas_used", receipt.GasUsed),
				)
				return receipt, nil
			}
			reason := c.replayRevertReason(ctx, pending, receipt)
			msg := fmt.Sprintf("transaction %s reverted on-chain", pending.Hash.Hex())
			if reason != "" {
				msg += ": " + reason
			}
			return receipt, clierr.New(clierr.CodeTransaction, msg).WithDetail("transactionHash", pending.Hash.Hex())
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			c.log.Debug("receipt poll failed", zap.String("tx_hash", pending.Hash.Hex()), zap.Error(err))
		}
		select {
		case <-waitCtx.Done():
			return nil, clierr.Wrap(clierr.CodeTransaction, fmt.Sprintf("timed out waiting for receipt of %s", pending.Hash.Hex()), waitCtx.Err()).
				WithDetail("transactionHash", pending.Hash.Hex())
		case <-ticker.C:
		}
	}
}

// replayRevertReason re-executes the call against the parent block to recover
// the revert reason the receipt does not carry.
func (c *Client) replayRevertReason(ctx context.Context, pending *PendingTx, receipt *types.Receipt) string {
	var at *big.Int
	if receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		at = new(big.Int).Sub(receipt.BlockNumber, common.Big1)
	}
	if _, err := c.eth.CallContract(ctx, pending.msg, at); err != nil {
		return decodeRevertFromError(err)
	}
	return ""
}

func resolveTipCap(ctx context.Context, c *Client, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max_priority_fee_gwei", err)
		}
		return v, nil
	}
	tipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max_fee_gwei", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "max_fee_gwei must be >= max_priority_fee_gwei")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}
