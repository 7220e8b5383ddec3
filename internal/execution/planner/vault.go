package planner

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	"github.com/ggonzalez94/bera-mcp/internal/execution"
	"github.com/ggonzalez94/bera-mcp/internal/id"
	"github.com/ggonzalez94/bera-mcp/internal/tokens"
)

type VaultRequest struct {
	Vault  string
	Amount string
	// Receiver defaults to the signing wallet.
	Receiver string
}

type vaultPlan struct {
	contract chain.Contract
	asset    tokens.Asset
	shares   tokens.Asset
	receiver *common.Address
}

func (p *Planner) planVault(ctx context.Context, req VaultRequest) (vaultPlan, error) {
	addr, err := id.ParseAddress(req.Vault)
	if err != nil {
		return vaultPlan{}, err
	}
	receiver, err := parseOptionalAddress(req.Receiver)
	if err != nil {
		return vaultPlan{}, err
	}
	contract := chain.Bind(chain.FamilyVault, addr)
	assetAddr, err := p.reader.CallAddress(ctx, contract, "asset")
	if err != nil {
		return vaultPlan{}, err
	}
	return vaultPlan{
		contract: contract,
		asset:    p.tokens.ResolveAddress(ctx, assetAddr),
		shares:   p.tokens.ResolveAddress(ctx, addr),
		receiver: receiver,
	}, nil
}

// VaultDeposit deposits underlying assets, approving the vault first when
// the allowance is short.
func (p *Planner) VaultDeposit(ctx context.Context, req VaultRequest) (execution.Operation, error) {
	plan, err := p.planVault(ctx, req)
	if err != nil {
		return execution.Operation{}, err
	}
	spender := plan.contract.Address
	return execution.Operation{
		Type:        execution.StepTypeVaultDeposit,
		Amount:      req.Amount,
		AmountAsset: plan.asset,
		Spender:     &spender,
		Legs: []execution.Leg{
			{Key: "assetBalance", Asset: plan.asset, Role: execution.RoleSpent},
			{Key: "shareBalance", Asset: plan.shares, Role: execution.RoleReceived},
		},
		Constraints: p.constraints(0),
		Build: func(_ context.Context, owner common.Address, raw *big.Int) (execution.Call, error) {
			return execution.Call{
				Contract: plan.contract,
				Category: chain.CategoryVault,
				Method:   "deposit",
				Args:     []any{raw, orOwner(plan.receiver, owner)},
			}, nil
		},
	}, nil
}

// VaultWithdraw withdraws an exact amount of underlying assets.
func (p *Planner) VaultWithdraw(ctx context.Context, req VaultRequest) (execution.Operation, error) {
	plan, err := p.planVault(ctx, req)
	if err != nil {
		return execution.Operation{}, err
	}
	return execution.Operation{
		Type:        execution.StepTypeVaultWithdraw,
		Amount:      req.Amount,
		AmountAsset: plan.asset,
		Available: func(ctx context.Context, owner common.Address) (*big.Int, error) {
			return p.reader.CallBigInt(ctx, plan.contract, "maxWithdraw", owner)
		},
		Legs: []execution.Leg{
			{Key: "shareBalance", Asset: plan.shares, Role: execution.RoleSpent},
			{Key: "assetBalance", Asset: plan.asset, Role: execution.RoleReceived},
		},
		Constraints: p.constraints(0),
		Build: func(_ context.Context, owner common.Address, raw *big.Int) (execution.Call, error) {
			return execution.Call{
				Contract: plan.contract,
				Category: chain.CategoryVault,
				Method:   "withdraw",
				Args:     []any{raw, orOwner(plan.receiver, owner), owner},
			}, nil
		},
	}, nil
}

// VaultRedeem burns an exact amount of shares.
func (p *Planner) VaultRedeem(ctx context.Context, req VaultRequest) (execution.Operation, error) {
	plan, err := p.planVault(ctx, req)
	if err != nil {
		return execution.Operation{}, err
	}
	return execution.Operation{
		Type:        execution.StepTypeVaultRedeem,
		Amount:      req.Amount,
		AmountAsset: plan.shares,
		Available: func(ctx context.Context, owner common.Address) (*big.Int, error) {
			return p.reader.CallBigInt(ctx, plan.contract, "maxRedeem", owner)
		},
		Legs: []execution.Leg{
			{Key: "shareBalance", Asset: plan.shares, Role: execution.RoleSpent},
			{Key: "assetBalance", Asset: plan.asset, Role: execution.RoleReceived},
		},
		Constraints: p.constraints(0),
		Build: func(_ context.Context, owner common.Address, raw *big.Int) (execution.Call, error) {
			return execution.Call{
				Contract: plan.contract,
				Category: chain.CategoryVault,
				Method:   "redeem",
				Args:     []any{raw, orOwner(plan.receiver, owner), owner},
			}, nil
		},
	}, nil
}
