package tokens

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	"github.com/ggonzalez94/bera-mcp/internal/id"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	FallbackSymbol   = "UNKNOWN"
	FallbackName     = "Unknown Token"
	FallbackDecimals = uint8(18)
)

// Asset describes a token, or the native asset when Address is empty.
type Asset struct {
	Address  string `json:"tokenAddress"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

func (a Asset) IsNative() bool { return a.Address == "" }

// Format renders a raw amount of this asset.
func (a Asset) Format(raw *big.Int) string { return id.ToFormatted(raw, a.Decimals) }

// Parse converts a user amount of this asset to base units, rejecting zero.
func (a Asset) Parse(amount string) (*big.Int, error) { return id.ParsePositive(amount, a.Decimals) }

// Result holds one field read that may have failed.
type Result[T any] struct {
	Value T
	Err   error
}

// Or returns the value, or def when the read failed.
func (r Result[T]) Or(def T) T {
	if r.Err != nil {
		return def
	}
	return r.Value
}

// Reader is the slice of the chain facade the resolver needs.
type Reader interface {
	CallString(ctx context.Context, contract chain.Contract, method string, args ...any) (string, error)
	CallUint8(ctx context.Context, contract chain.Contract, method string, args ...any) (uint8, error)
	CallBigInt(ctx context.Context, contract chain.Contract, method string, args ...any) (*big.Int, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
}

type Resolver struct {
	chain  Reader
	native Asset
	log    *zap.Logger
}

func NewResolver(reader Reader, native Asset, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	native.Address = ""
	return &Resolver{chain: reader, native: native, log: log}
}

// Native describes the chain's native asset.
func (r *Resolver) Native() Asset { return r.native }

// Resolve validates the address and reads its metadata. It only fails for a
// malformed address; unreadable fields fall back to defaults.
func (r *Resolver) Resolve(ctx context.Context, address string) (Asset, error) {
	addr, err := id.ParseAddress(address)
	if err != nil {
		return Asset{}, err
	}
	return r.ResolveAddress(ctx, addr), nil
}

// ResolveAddress reads symbol, name and decimals concurrently. Nothing is
// remembered between calls.
func (r *Resolver) ResolveAddress(ctx context.Context, addr common.Address) Asset {
	token := chain.Bind(chain.FamilyERC20, addr)
	var (
		symbol   Result[string]
		name     Result[string]
		decimals Result[uint8]
		g        errgroup.Group
	)
	g.Go(func() error {
		symbol.Value, symbol.Err = r.chain.CallString(ctx, token, "symbol")
		return nil
	})
	g.Go(func() error {
		name.Value, name.Err = r.chain.CallString(ctx, token, "name")
		return nil
	})
	g.Go(func() error {
		decimals.Value, decimals.Err = r.chain.CallUint8(ctx, token, "decimals")
		return nil
	})
	_ = g.Wait()

	r.logFallback(addr, "symbol", symbol.Err)
	r.logFallback(addr, "name", name.Err)
	r.logFallback(addr, "decimals", decimals.Err)
	return Asset{
		Address:  addr.Hex(),
		Symbol:   symbol.Or(FallbackSymbol),
		Name:     name.Or(FallbackName),
		Decimals: decimals.Or(FallbackDecimals),
	}
}

func (r *Resolver) logFallback(addr common.Address, field string, err error) {
	if err == nil {
		return
	}
	r.log.Debug("token metadata fallback",
		zap.String("token", addr.Hex()),
		zap.String("field", field),
		zap.Error(err),
	)
}

func (r *Resolver) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return r.chain.CallBigInt(ctx, chain.Bind(chain.FamilyERC20, token), "balanceOf", holder)
}

func (r *Resolver) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	return r.chain.CallBigInt(ctx, chain.Bind(chain.FamilyERC20, token), "totalSupply")
}

func (r *Resolver) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return r.chain.CallBigInt(ctx, chain.Bind(chain.FamilyERC20, token), "allowance", owner, spender)
}

// Balance reads the holder's balance of an asset, native or token.
func (r *Resolver) Balance(ctx context.Context, asset Asset, holder common.Address) (*big.Int, error) {
	if asset.IsNative() {
		return r.chain.NativeBalance(ctx, holder)
	}
	return r.BalanceOf(ctx, common.HexToAddress(asset.Address), holder)
}
