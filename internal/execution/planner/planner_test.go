package planner

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	"github.com/ggonzalez94/bera-mcp/internal/chain/chaintest"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/execution"
	"github.com/ggonzalez94/bera-mcp/internal/execution/signer"
	"github.com/ggonzalez94/bera-mcp/internal/tokens"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

var (
	wbera   = common.HexToAddress("0x6969696969696969696969696969696969696969")
	honey   = common.HexToAddress("0xFCBD14DC51f0A4d49d5E53C2E0950e0bC26d0Dce")
	usdc    = common.HexToAddress("0x549943e04f40284185054145c6E4e9568C1D3241")
	vaultV  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	factory = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	quoter  = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	router  = common.HexToAddress("0x00000000000000000000000000000000000000d3")
	pool    = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	bridgeA = common.HexToAddress("0x00000000000000000000000000000000000000e9")
	friend  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

type env struct {
	node      *chaintest.Node
	planner   *Planner
	lifecycle *execution.Lifecycle
	owner     common.Address
}

func newEnv(t *testing.T, contracts Contracts) *env {
	t.Helper()
	s, err := signer.Load(signer.Credentials{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("load signer: %v", err)
	}
	node := chaintest.NewNode(t)
	client, err := chain.Dial(context.Background(), chain.Config{
		RPCURL:         node.URL(),
		ChainID:        chaintest.DefaultChainID,
		PollInterval:   5 * time.Millisecond,
		ConfirmTimeout: 2 * time.Second,
		Simulate:       true,
		Signer:         func() (signer.Signer, error) { return s, nil },
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(client.Close)
	tr := tokens.NewResolver(client, tokens.Asset{Symbol: "BERA", Name: "Berachain Token", Decimals: 18}, nil)
	node.SetNative(s.Address(), ether(10))
	return &env{
		node:      node,
		planner:   New(client, tr, Config{Contracts: contracts, Simulate: true}),
		lifecycle: execution.NewLifecycle(client, tr, execution.Config{}),
		owner:     s.Address(),
	}
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func (e *env) run(t *testing.T, op execution.Operation, err error) execution.Outcome {
	t.Helper()
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	out, err := e.lifecycle.Run(context.Background(), op)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return out
}

func TestWrapThenUnwrap(t *testing.T) {
	e := newEnv(t, Contracts{WrappedNative: wbera})
	e.node.AddWrappedNative(wbera, "WBERA", "Wrapped Bera")

	op, err := e.planner.Wrap(context.Background(), "2")
	out := e.run(t, op, err)
	if out.BalanceChanges["wethBalance"].Change != "2" {
		t.Fatalf("unexpected wrap delta: %+v", out.BalanceChanges)
	}

	op, err = e.planner.Unwrap(context.Background(), "0.5")
	out = e.run(t, op, err)
	if got := out.BalanceChanges["wethBalance"].Change; got != "-0.5" {
		t.Fatalf("unexpected unwrap wrapped delta %q", got)
	}
	if out.Requested.Symbol != "WBERA" {
		t.Fatalf("unwrap amount must be denominated in the wrapped token, got %q", out.Requested.Symbol)
	}
	if e.node.TokenBalance(wbera, e.owner).Cmp(new(big.Int).Add(ether(1), new(big.Int).Div(ether(1), big.NewInt(2)))) != 0 {
		t.Fatalf("unexpected wrapped balance %s", e.node.TokenBalance(wbera, e.owner))
	}
}

func TestWrapRequiresConfiguredContract(t *testing.T) {
	e := newEnv(t, Contracts{})
	if _, err := e.planner.Wrap(context.Background(), "1"); !clierr.Is(err, clierr.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestVaultDepositWithdrawRedeem(t *testing.T) {
	e := newEnv(t, Contracts{})
	e.node.AddToken(honey, "HONEY", "Honey", 18)
	e.node.AddVault(vaultV, honey, "sHONEY", "Staked Honey", 18)
	e.node.Mint(honey, e.owner, ether(100))
	ctx := context.Background()

	op, err := e.planner.VaultDeposit(ctx, VaultRequest{Vault: vaultV.Hex(), Amount: "40"})
	out := e.run(t, op, err)
	if out.Approval == nil {
		t.Fatal("expected deposit to approve the vault")
	}
	if got := out.BalanceChanges["shareBalance"].Change; got != "40" {
		t.Fatalf("unexpected share change %q", got)
	}

	op, err = e.planner.VaultWithdraw(ctx, VaultRequest{Vault: vaultV.Hex(), Amount: "10"})
	out = e.run(t, op, err)
	if got := out.BalanceChanges["assetBalance"].Change; got != "10" {
		t.Fatalf("unexpected withdraw asset change %q", got)
	}

	op, err = e.planner.VaultRedeem(ctx, VaultRequest{Vault: vaultV.Hex(), Amount: "5", Receiver: friend.Hex()})
	out = e.run(t, op, err)
	if got := out.BalanceChanges["shareBalance"].Change; got != "-5" {
		t.Fatalf("unexpected redeem share change %q", got)
	}
	if got := out.BalanceChanges["assetBalance"].Change; got != "0" {
		t.Fatalf("redeemed assets went to the receiver, owner change should be 0, got %q", got)
	}
	if got := e.node.TokenBalance(honey, friend); got.Cmp(ether(5)) != 0 {
		t.Fatalf("receiver should hold 5 HONEY, got %s", got)
	}
}

func TestVaultWithdrawChecksMaxWithdraw(t *testing.T) {
	e := newEnv(t, Contracts{})
	e.node.AddToken(honey, "HONEY", "Honey", 18)
	e.node.AddVault(vaultV, honey, "sHONEY", "Staked Honey", 18)
	e.node.Mint(honey, e.owner, ether(100))

	op, err := e.planner.VaultWithdraw(context.Background(), VaultRequest{Vault: vaultV.Hex(), Amount: "1"})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	_, err = e.lifecycle.Run(context.Background(), op)
	if !clierr.Is(err, clierr.CodeInsufficientBalance) {
		t.Fatalf("expected insufficient balance against maxWithdraw, got %v", err)
	}
}

func TestVaultRejectsInvalidAddress(t *testing.T) {
	e := newEnv(t, Contracts{})
	if _, err := e.planner.VaultDeposit(context.Background(), VaultRequest{Vault: "0x123", Amount: "1"}); !clierr.Is(err, clierr.CodeInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func addDex(e *env, shortfall *big.Int) {
	e.node.AddToken(honey, "HONEY", "Honey", 18)
	e.node.AddToken(usdc, "USDC", "USD Coin", 6)
	e.node.Mint(honey, e.owner, ether(100))
	// 1 HONEY (1e18) buys 0.99 USDC (990000).
	e.node.AddDex(&chaintest.Dex{
		Factory:   factory,
		Quoter:    quoter,
		Router:    router,
		RateNum:   big.NewInt(990_000),
		RateDen:   big.NewInt(1_000_000_000_000_000_000),
		Fee:       500,
		Pool:      pool,
		Shortfall: shortfall,
	})
}

var dexContracts = Contracts{SwapRouter: router, SwapQuoter: quoter, SwapFactory: factory}

func TestSwapProbesFeeTiers(t *testing.T) {
	e := newEnv(t, dexContracts)
	addDex(e, nil)

	op, err := e.planner.Swap(context.Background(), SwapRequest{TokenIn: honey.Hex(), TokenOut: usdc.Hex(), Amount: "10"})
	out := e.run(t, op, err)
	if out.Details["feeTier"] != "500" {
		t.Fatalf("expected the only liquid tier, got %q", out.Details["feeTier"])
	}
	if out.Details["quotedAmountOut"] != "9.9" || out.Details["amountOutMinimum"] != "9.8505" {
		t.Fatalf("unexpected quote details: %+v", out.Details)
	}
	if out.Details["slippagePercent"] != "0.50" {
		t.Fatalf("unexpected slippage display %q", out.Details["slippagePercent"])
	}
	if got := out.BalanceChanges["tokenOutBalance"].Change; got != "9.9" {
		t.Fatalf("unexpected output delta %q", got)
	}
	if got := out.BalanceChanges["tokenInBalance"].Change; got != "-10" {
		t.Fatalf("unexpected input delta %q", got)
	}
	if out.Approval == nil || out.Approval.Spender != router.Hex() {
		t.Fatalf("expected router approval, got %+v", out.Approval)
	}
}

func TestSwapSlippageBoundRevertsInSimulation(t *testing.T) {
	e := newEnv(t, dexContracts)
	// The fill comes in 1% under the quote; a 0.5% tolerance must reject it.
	addDex(e, big.NewInt(99_000))

	op, err := e.planner.Swap(context.Background(), SwapRequest{TokenIn: honey.Hex(), TokenOut: usdc.Hex(), Amount: "10", Fee: 500})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	_, err = e.lifecycle.Run(context.Background(), op)
	if !clierr.Is(err, clierr.CodeTransaction) {
		t.Fatalf("expected transaction error, got %v", err)
	}
	if methods := e.node.SentMethods(); len(methods) != 1 || methods[0] != "approve" {
		t.Fatalf("expected only the approval on chain, got %v", methods)
	}
}

func TestSwapWithoutPoolIsNotFound(t *testing.T) {
	e := newEnv(t, dexContracts)
	addDex(e, nil)
	other := common.HexToAddress("0x00000000000000000000000000000000000000a9")
	e.node.AddToken(other, "OTHER", "Other", 18)

	op, err := e.planner.Swap(context.Background(), SwapRequest{TokenIn: honey.Hex(), TokenOut: other.Hex(), Amount: "1", Fee: 3000})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if _, err := e.lifecycle.Run(context.Background(), op); !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected quoter failure, got %v", err)
	}
}

func TestSwapRejectsBadInputs(t *testing.T) {
	e := newEnv(t, dexContracts)
	bad := int64(10_000)
	cases := []SwapRequest{
		{TokenIn: honey.Hex(), TokenOut: honey.Hex(), Amount: "1"},
		{TokenIn: honey.Hex(), TokenOut: usdc.Hex(), Amount: "1", SlippageBps: &bad},
	}
	for _, req := range cases {
		if _, err := e.planner.Swap(context.Background(), req); !clierr.Is(err, clierr.CodeUsage) {
			t.Fatalf("expected usage error for %+v, got %v", req, err)
		}
	}
}

func TestMinimumOut(t *testing.T) {
	if got := MinimumOut(big.NewInt(1_000_000), 50); got.String() != "995000" {
		t.Fatalf("unexpected minimum %s", got)
	}
	if got := MinimumOut(big.NewInt(7), 0); got.String() != "7" {
		t.Fatalf("zero slippage must keep the quote, got %s", got)
	}
}

func TestBridgeNativeSendsValue(t *testing.T) {
	e := newEnv(t, Contracts{Bridge: bridgeA})
	b := e.node.AddBridge(bridgeA)

	op, err := e.planner.Bridge(context.Background(), BridgeRequest{Token: "native", Amount: "1", DestinationNetwork: 1})
	out := e.run(t, op, err)
	if out.Approval != nil {
		t.Fatal("native bridging must not approve")
	}
	deposits := e.node.Deposits(b)
	if len(deposits) != 1 || deposits[0].Token != (common.Address{}) || deposits[0].DestinationAddress != e.owner {
		t.Fatalf("unexpected deposits: %+v", deposits)
	}
	if out.Details["destinationNetwork"] != "1" {
		t.Fatalf("unexpected details: %+v", out.Details)
	}
}

func TestBridgeTokenApprovesBridge(t *testing.T) {
	e := newEnv(t, Contracts{Bridge: bridgeA})
	b := e.node.AddBridge(bridgeA)
	e.node.AddToken(honey, "HONEY", "Honey", 18)
	e.node.Mint(honey, e.owner, ether(5))

	op, err := e.planner.Bridge(context.Background(), BridgeRequest{Token: honey.Hex(), Amount: "5", DestinationNetwork: 1, DestinationAddress: friend.Hex()})
	out := e.run(t, op, err)
	if out.Approval == nil || out.Approval.Spender != bridgeA.Hex() {
		t.Fatalf("expected bridge approval, got %+v", out.Approval)
	}
	if got := out.BalanceChanges["tokenBalance"].Change; got != "-5" {
		t.Fatalf("unexpected token change %q", got)
	}
	if _, ok := out.BalanceChanges["nativeBalance"]; !ok {
		t.Fatal("expected native balance leg for gas accounting")
	}
	deposits := e.node.Deposits(b)
	if len(deposits) != 1 || deposits[0].DestinationAddress != friend || deposits[0].Amount.Cmp(ether(5)) != 0 {
		t.Fatalf("unexpected deposits: %+v", deposits)
	}
}
