package planner

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/execution"
	"github.com/ggonzalez94/bera-mcp/internal/id"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FeeTiers are probed in this order when the caller names none.
var FeeTiers = []uint32{100, 500, 3000, 10000}

const maxBps = 10_000

type SwapRequest struct {
	TokenIn  string
	TokenOut string
	Amount   string
	// Fee is the pool fee tier in hundredths of a bip; zero probes FeeTiers.
	Fee uint32
	// SlippageBps overrides the configured tolerance when set.
	SlippageBps *int64
}

type quoteParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	AmountIn          *big.Int       `abi:"amountIn"`
	Fee               *big.Int       `abi:"fee"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

type exactInputSingleParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	Fee               *big.Int       `abi:"fee"`
	Recipient         common.Address `abi:"recipient"`
	AmountIn          *big.Int       `abi:"amountIn"`
	AmountOutMinimum  *big.Int       `abi:"amountOutMinimum"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

type quote struct {
	fee       uint32
	amountOut *big.Int
}

// Swap sells an exact amount of TokenIn through the configured router. The
// minimum output is the quoter's answer reduced by the slippage tolerance.
func (p *Planner) Swap(ctx context.Context, req SwapRequest) (execution.Operation, error) {
	router, err := requireContract(p.contracts.SwapRouter, "swap router")
	if err != nil {
		return execution.Operation{}, err
	}
	if _, err := requireContract(p.contracts.SwapQuoter, "swap quoter"); err != nil {
		return execution.Operation{}, err
	}
	if req.Fee == 0 {
		if _, err := requireContract(p.contracts.SwapFactory, "swap factory"); err != nil {
			return execution.Operation{}, err
		}
	}
	tokenIn, err := id.ParseAddress(req.TokenIn)
	if err != nil {
		return execution.Operation{}, err
	}
	tokenOut, err := id.ParseAddress(req.TokenOut)
	if err != nil {
		return execution.Operation{}, err
	}
	if tokenIn == tokenOut {
		return execution.Operation{}, clierr.New(clierr.CodeUsage, "tokenIn and tokenOut must differ")
	}
	slippage := p.slippageBps
	if req.SlippageBps != nil {
		slippage = *req.SlippageBps
	}
	if slippage < 0 || slippage >= maxBps {
		return execution.Operation{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("slippage must be between 0 and %d bps", maxBps-1))
	}

	in := p.tokens.ResolveAddress(ctx, tokenIn)
	out := p.tokens.ResolveAddress(ctx, tokenOut)
	return execution.Operation{
		Type:        execution.StepTypeSwap,
		Amount:      req.Amount,
		AmountAsset: in,
		Spender:     &router,
		Legs: []execution.Leg{
			{Key: "tokenInBalance", Asset: in, Role: execution.RoleSpent},
			{Key: "tokenOutBalance", Asset: out, Role: execution.RoleReceived},
		},
		Constraints: p.constraints(slippage),
		Build: func(ctx context.Context, owner common.Address, raw *big.Int) (execution.Call, error) {
			q, err := p.bestQuote(ctx, tokenIn, tokenOut, raw, req.Fee)
			if err != nil {
				return execution.Call{}, err
			}
			minOut := MinimumOut(q.amountOut, slippage)
			params := exactInputSingleParams{
				TokenIn:           tokenIn,
				TokenOut:          tokenOut,
				Fee:               new(big.Int).SetUint64(uint64(q.fee)),
				Recipient:         owner,
				AmountIn:          raw,
				AmountOutMinimum:  minOut,
				SqrtPriceLimitX96: new(big.Int),
			}
			return execution.Call{
				Contract: chain.Bind(chain.FamilyRouter, router),
				Category: chain.CategorySwap,
				Method:   "exactInputSingle",
				Args:     []any{params},
				Details: map[string]string{
					"feeTier":          strconv.FormatUint(uint64(q.fee), 10),
					"quotedAmountOut":  out.Format(q.amountOut),
					"amountOutMinimum": out.Format(minOut),
					"slippageBps":      strconv.FormatInt(slippage, 10),
					"slippagePercent":  decimal.New(slippage, -2).StringFixed(2),
				},
			}, nil
		},
	}, nil
}

// MinimumOut applies a slippage tolerance, rounding down.
func MinimumOut(quoted *big.Int, slippageBps int64) *big.Int {
	out := new(big.Int).Mul(quoted, big.NewInt(maxBps-slippageBps))
	return out.Quo(out, big.NewInt(maxBps))
}

// bestQuote quotes the requested tier, or probes every tier concurrently and
// keeps the largest output among pools that exist and hold liquidity.
func (p *Planner) bestQuote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, fee uint32) (quote, error) {
	if fee != 0 {
		amountOut, err := p.quote(ctx, tokenIn, tokenOut, amountIn, fee)
		if err != nil {
			return quote{}, err
		}
		return quote{fee: fee, amountOut: amountOut}, nil
	}

	results := make([]*big.Int, len(FeeTiers))
	g, gctx := errgroup.WithContext(ctx)
	for i, tier := range FeeTiers {
		g.Go(func() error {
			amountOut, err := p.probeTier(gctx, tokenIn, tokenOut, amountIn, tier)
			if err != nil {
				p.log.Debug("fee tier skipped", zap.Uint32("fee", tier), zap.Error(err))
				return nil
			}
			results[i] = amountOut
			return nil
		})
	}
	_ = g.Wait()

	var best quote
	for i, amountOut := range results {
		if amountOut == nil || amountOut.Sign() == 0 {
			continue
		}
		if best.amountOut == nil || amountOut.Cmp(best.amountOut) > 0 {
			best = quote{fee: FeeTiers[i], amountOut: amountOut}
		}
	}
	if best.amountOut == nil {
		return quote{}, clierr.New(clierr.CodeNotFound,
			fmt.Sprintf("no liquid pool for %s/%s", tokenIn.Hex(), tokenOut.Hex()))
	}
	return best, nil
}

func (p *Planner) probeTier(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, fee uint32) (*big.Int, error) {
	factory := chain.Bind(chain.FamilyFactory, p.contracts.SwapFactory)
	pool, err := p.reader.CallAddress(ctx, factory, "getPool", tokenIn, tokenOut, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return nil, err
	}
	if pool == (common.Address{}) {
		return nil, fmt.Errorf("no pool")
	}
	liquidity, err := p.reader.CallBigInt(ctx, chain.Bind(chain.FamilyPool, pool), "liquidity")
	if err != nil {
		return nil, err
	}
	if liquidity.Sign() == 0 {
		return nil, fmt.Errorf("pool %s has no liquidity", pool.Hex())
	}
	return p.quote(ctx, tokenIn, tokenOut, amountIn, fee)
}

func (p *Planner) quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, fee uint32) (*big.Int, error) {
	quoter := chain.Bind(chain.FamilyQuoter, p.contracts.SwapQuoter)
	return p.reader.CallBigInt(ctx, quoter, "quoteExactInputSingle", quoteParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		SqrtPriceLimitX96: new(big.Int),
	})
}
