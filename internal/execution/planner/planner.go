package planner

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/execution"
	"github.com/ggonzalez94/bera-mcp/internal/id"
	"github.com/ggonzalez94/bera-mcp/internal/tokens"
	"go.uber.org/zap"
)

// Reader is the read side of the chain facade the planners need.
type Reader interface {
	CallBigInt(ctx context.Context, contract chain.Contract, method string, args ...any) (*big.Int, error)
	CallAddress(ctx context.Context, contract chain.Contract, method string, args ...any) (common.Address, error)
}

// Contracts are the protocol deployments operations are routed through. A
// zero address means the deployment is not configured.
type Contracts struct {
	WrappedNative common.Address
	SwapRouter    common.Address
	SwapQuoter    common.Address
	SwapFactory   common.Address
	Bridge        common.Address
}

type Config struct {
	Contracts   Contracts
	SlippageBps int64
	Simulate    bool
	Logger      *zap.Logger
}

// Planner turns tool requests into lifecycle operations. It reads only what
// it needs to pick the call; balances are left to the lifecycle.
type Planner struct {
	reader      Reader
	tokens      *tokens.Resolver
	contracts   Contracts
	slippageBps int64
	simulate    bool
	log         *zap.Logger
}

const DefaultSlippageBps int64 = 50

func New(reader Reader, resolver *tokens.Resolver, cfg Config) *Planner {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	slippage := cfg.SlippageBps
	if slippage <= 0 {
		slippage = DefaultSlippageBps
	}
	return &Planner{
		reader:      reader,
		tokens:      resolver,
		contracts:   cfg.Contracts,
		slippageBps: slippage,
		simulate:    cfg.Simulate,
		log:         log,
	}
}

func (p *Planner) constraints(slippageBps int64) execution.Constraints {
	return execution.Constraints{SlippageBps: slippageBps, Simulate: p.simulate}
}

func requireContract(addr common.Address, name string) (common.Address, error) {
	if addr == (common.Address{}) {
		return common.Address{}, clierr.New(clierr.CodeConfiguration, fmt.Sprintf("%s contract address is not configured", name))
	}
	return addr, nil
}

// parseOptionalAddress returns nil for an empty input.
func parseOptionalAddress(s string) (*common.Address, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	addr, err := id.ParseAddress(s)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func orOwner(addr *common.Address, owner common.Address) common.Address {
	if addr == nil {
		return owner
	}
	return *addr
}

// Wrap converts native currency into the wrapped-native token.
func (p *Planner) Wrap(ctx context.Context, amount string) (execution.Operation, error) {
	wn, err := requireContract(p.contracts.WrappedNative, "wrapped native")
	if err != nil {
		return execution.Operation{}, err
	}
	native := p.tokens.Native()
	wrapped := p.tokens.ResolveAddress(ctx, wn)
	return execution.Operation{
		Type:        execution.StepTypeWrap,
		Amount:      amount,
		AmountAsset: native,
		Legs: []execution.Leg{
			{Key: "ethBalance", Asset: native, Role: execution.RoleSpent},
			{Key: "wethBalance", Asset: wrapped, Role: execution.RoleReceived},
		},
		Constraints: p.constraints(0),
		Build: func(_ context.Context, _ common.Address, raw *big.Int) (execution.Call, error) {
			return execution.Call{
				Contract: chain.Bind(chain.FamilyWrappedNative, wn),
				Category: chain.CategoryWrap,
				Method:   "deposit",
				Value:    raw,
			}, nil
		},
	}, nil
}

// Unwrap burns wrapped-native tokens for native currency.
func (p *Planner) Unwrap(ctx context.Context, amount string) (execution.Operation, error) {
	wn, err := requireContract(p.contracts.WrappedNative, "wrapped native")
	if err != nil {
		return execution.Operation{}, err
	}
	native := p.tokens.Native()
	wrapped := p.tokens.ResolveAddress(ctx, wn)
	return execution.Operation{
		Type:        execution.StepTypeUnwrap,
		Amount:      amount,
		AmountAsset: wrapped,
		Legs: []execution.Leg{
			{Key: "wethBalance", Asset: wrapped, Role: execution.RoleSpent},
			{Key: "ethBalance", Asset: native, Role: execution.RoleReceived},
		},
		Constraints: p.constraints(0),
		Build: func(_ context.Context, _ common.Address, raw *big.Int) (execution.Call, error) {
			return execution.Call{
				Contract: chain.Bind(chain.FamilyWrappedNative, wn),
				Category: chain.CategoryWrap,
				Method:   "withdraw",
				Args:     []any{raw},
			}, nil
		},
	}, nil
}
