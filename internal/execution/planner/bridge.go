package planner

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	"github.com/ggonzalez94/bera-mcp/internal/execution"
	"github.com/ggonzalez94/bera-mcp/internal/id"
	"github.com/ggonzalez94/bera-mcp/internal/tokens"
)

type BridgeRequest struct {
	// Token is an ERC-20 address; empty, "native" or the zero address bridge
	// the native currency.
	Token              string
	Amount             string
	DestinationNetwork uint32
	// DestinationAddress defaults to the signing wallet.
	DestinationAddress string
}

func isNativeToken(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "native") || strings.EqualFold(s, common.Address{}.Hex())
}

// Bridge sends assets through the unified bridge. Native transfers attach the
// amount as value; ERC-20 transfers approve the bridge first.
func (p *Planner) Bridge(ctx context.Context, req BridgeRequest) (execution.Operation, error) {
	bridge, err := requireContract(p.contracts.Bridge, "bridge")
	if err != nil {
		return execution.Operation{}, err
	}
	destination, err := parseOptionalAddress(req.DestinationAddress)
	if err != nil {
		return execution.Operation{}, err
	}
	native := p.tokens.Native()
	op := execution.Operation{
		Type:        execution.StepTypeBridge,
		Amount:      req.Amount,
		Constraints: p.constraints(0),
	}

	var token common.Address
	var asset tokens.Asset
	if isNativeToken(req.Token) {
		asset = native
		op.Legs = []execution.Leg{{Key: "tokenBalance", Asset: native, Role: execution.RoleSpent}}
	} else {
		token, err = id.ParseAddress(req.Token)
		if err != nil {
			return execution.Operation{}, err
		}
		asset = p.tokens.ResolveAddress(ctx, token)
		op.Spender = &bridge
		op.Legs = []execution.Leg{
			{Key: "tokenBalance", Asset: asset, Role: execution.RoleSpent},
			{Key: "nativeBalance", Asset: native},
		}
	}
	op.AmountAsset = asset
	op.Build = func(_ context.Context, owner common.Address, raw *big.Int) (execution.Call, error) {
		var value *big.Int
		if asset.IsNative() {
			value = raw
		}
		to := orOwner(destination, owner)
		return execution.Call{
			Contract: chain.Bind(chain.FamilyBridge, bridge),
			Category: chain.CategoryBridge,
			Method:   "bridgeAsset",
			Args:     []any{req.DestinationNetwork, to, raw, token, true, []byte{}},
			Value:    value,
			Details: map[string]string{
				"destinationNetwork": strconv.FormatUint(uint64(req.DestinationNetwork), 10),
				"destinationAddress": to.Hex(),
			},
		}, nil
	}
	return op, nil
}
