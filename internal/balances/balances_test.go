package balances

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	"github.com/ggonzalez94/bera-mcp/internal/chain/chaintest"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/tokens"
	"github.com/ggonzalez94/bera-mcp/internal/vault"
)

var (
	honey  = common.HexToAddress("0xFCBD14DC51f0A4d49d5E53C2E0950e0bC26d0Dce")
	usdc   = common.HexToAddress("0x549943e04f40284185054145c6E4e9568C1D3241")
	extra  = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	vaultA = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	wallet = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func newAggregator(t *testing.T, node *chaintest.Node, cfg Config) *Aggregator {
	t.Helper()
	c, err := chain.Dial(context.Background(), chain.Config{RPCURL: node.URL(), RequestTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(c.Close)
	tr := tokens.NewResolver(c, tokens.Asset{Symbol: "BERA", Name: "Berachain Token", Decimals: 18}, nil)
	a := New(tr, vault.NewResolver(c, tr), cfg)
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return a
}

func TestNativeRetainedWhenEveryTokenIsZero(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honey, "HONEY", "Honey", 18)
	node.AddToken(usdc, "USDC", "USD Coin", 6)
	node.SetNative(wallet, big.NewInt(10))
	a := newAggregator(t, node, Config{BuiltIn: []string{honey.Hex(), usdc.Hex()}})

	res, err := a.GetBalances(context.Background(), Request{Wallet: wallet.Hex()})
	if err != nil {
		t.Fatalf("get balances: %v", err)
	}
	if !res.NativeToken.HasBalance || res.NativeToken.RawBalance != "10" {
		t.Fatalf("unexpected native balance: %+v", res.NativeToken)
	}
	if res.TokenCount != 0 || len(res.Tokens) != 0 {
		t.Fatalf("expected no tokens, got %+v", res.Tokens)
	}
	if res.Timestamp != "2026-01-02T03:04:05.000Z" {
		t.Fatalf("unexpected timestamp %q", res.Timestamp)
	}
	for _, tok := range []common.Address{honey, usdc} {
		if n := node.CallCount(tok, "symbol"); n != 0 {
			t.Fatalf("expected no metadata reads for zero balance %s, got %d", tok.Hex(), n)
		}
	}
}

func TestIncludeZeroKeepsZeroTokens(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honey, "HONEY", "Honey", 18)
	node.AddToken(usdc, "USDC", "USD Coin", 6)
	node.Mint(usdc, wallet, big.NewInt(2_500_000))
	a := newAggregator(t, node, Config{BuiltIn: []string{honey.Hex(), usdc.Hex()}})

	res, err := a.GetBalances(context.Background(), Request{Wallet: wallet.Hex(), IncludeZero: true})
	if err != nil {
		t.Fatalf("get balances: %v", err)
	}
	if res.TokenCount != 2 {
		t.Fatalf("expected two tokens, got %d", res.TokenCount)
	}
	if res.Tokens[0].Symbol != "HONEY" || res.Tokens[0].HasBalance || res.Tokens[0].Balance != "0" {
		t.Fatalf("unexpected zero token: %+v", res.Tokens[0])
	}
	if res.Tokens[1].Balance != "2.5" || !res.Tokens[1].HasBalance || res.Tokens[1].Decimals != 6 {
		t.Fatalf("unexpected usdc entry: %+v", res.Tokens[1])
	}
	if res.NativeToken.HasBalance {
		t.Fatal("expected zero native balance to be reported, not dropped")
	}
}

func TestExplicitZeroTokenSkipsMetadata(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honey, "HONEY", "Honey", 18)
	node.SetNative(wallet, big.NewInt(1))
	a := newAggregator(t, node, Config{BuiltIn: []string{usdc.Hex()}})

	res, err := a.GetBalances(context.Background(), Request{Wallet: wallet.Hex(), Token: honey.Hex()})
	if err != nil {
		t.Fatalf("get balances: %v", err)
	}
	if res.TokenCount != 0 || res.Message != ZeroBalanceMessage {
		t.Fatalf("expected zero-balance message, got %+v", res)
	}
	for _, m := range []string{"symbol", "name", "decimals"} {
		if n := node.CallCount(honey, m); n != 0 {
			t.Fatalf("expected no %s read, got %d", m, n)
		}
	}
	if n := node.RPCCount("eth_call"); n != 1 {
		t.Fatalf("expected only the balance read, got %d eth_call", n)
	}
}

func TestExplicitTokenWithBalance(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honey, "HONEY", "Honey", 18)
	node.Mint(honey, wallet, big.NewInt(1e18))
	a := newAggregator(t, node, Config{BuiltIn: []string{usdc.Hex()}})

	res, err := a.GetBalances(context.Background(), Request{Wallet: wallet.Hex(), Token: honey.Hex()})
	if err != nil {
		t.Fatalf("get balances: %v", err)
	}
	if res.TokenCount != 1 || res.Tokens[0].Balance != "1" || res.Message != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestExplicitTokenInvalidAddress(t *testing.T) {
	node := chaintest.NewNode(t)
	a := newAggregator(t, node, Config{})
	_, err := a.GetBalances(context.Background(), Request{Wallet: wallet.Hex(), Token: "0xnope"})
	if !clierr.Is(err, clierr.CodeInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func TestInvalidWalletFailsFast(t *testing.T) {
	node := chaintest.NewNode(t)
	a := newAggregator(t, node, Config{BuiltIn: []string{honey.Hex()}})
	_, err := a.GetBalances(context.Background(), Request{Wallet: "0x1234"})
	if !clierr.Is(err, clierr.CodeInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	if n := node.RPCCount("eth_getBalance"); n != 0 {
		t.Fatalf("expected no reads, got %d", n)
	}
}

func TestOrderFollowsCandidatesAndFailuresAreDropped(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honey, "HONEY", "Honey", 18)
	node.AddToken(usdc, "USDC", "USD Coin", 6)
	node.AddToken(extra, "XTRA", "Extra", 18)
	for _, tok := range []common.Address{honey, usdc, extra} {
		node.Mint(tok, wallet, big.NewInt(5))
	}
	broken := "0x00000000000000000000000000000000000000d0"
	a := newAggregator(t, node, Config{BuiltIn: []string{usdc.Hex(), broken, honey.Hex()}, Concurrency: 2})

	res, err := a.GetBalances(context.Background(), Request{
		Wallet:      wallet.Hex(),
		ExtraTokens: []string{extra.Hex(), "not-an-address", usdc.Hex()},
	})
	if err != nil {
		t.Fatalf("get balances: %v", err)
	}
	var symbols []string
	for _, tok := range res.Tokens {
		symbols = append(symbols, tok.Symbol)
	}
	if got := strings.Join(symbols, ","); got != "USDC,HONEY,XTRA" {
		t.Fatalf("unexpected order %q", got)
	}
}

func TestKnownVaultIsExpanded(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honey, "HONEY", "Honey", 18)
	v := node.AddVault(vaultA, honey, "sHONEY", "Staked Honey", 18)
	node.Mint(vaultA, wallet, big.NewInt(4e18))
	node.SetVaultAssets(v, big.NewInt(8e18))
	a := newAggregator(t, node, Config{BuiltIn: []string{honey.Hex(), vaultA.Hex()}, Vaults: []string{vaultA.Hex()}})

	res, err := a.GetBalances(context.Background(), Request{Wallet: wallet.Hex()})
	if err != nil {
		t.Fatalf("get balances: %v", err)
	}
	if res.TokenCount != 1 {
		t.Fatalf("expected only the vault position, got %+v", res.Tokens)
	}
	tok := res.Tokens[0]
	if !tok.IsVault || tok.VaultInfo == nil {
		t.Fatalf("expected vault info, got %+v", tok)
	}
	if tok.VaultInfo.UnderlyingValue != "8" || tok.VaultInfo.ShareOfVaultPercent != "100.0000" {
		t.Fatalf("unexpected vault position: %+v", tok.VaultInfo)
	}
}

func TestVaultFailureKeepsBasicEntry(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honey, "HONEY", "Honey", 18)
	v := node.AddVault(vaultA, honey, "sHONEY", "Staked Honey", 18)
	v.BrokenTotals = true
	node.Mint(vaultA, wallet, big.NewInt(4e18))
	a := newAggregator(t, node, Config{BuiltIn: []string{vaultA.Hex()}, Vaults: []string{vaultA.Hex()}})

	res, err := a.GetBalances(context.Background(), Request{Wallet: wallet.Hex()})
	if err != nil {
		t.Fatalf("get balances: %v", err)
	}
	if res.TokenCount != 1 || res.Tokens[0].Balance != "4" {
		t.Fatalf("expected basic entry, got %+v", res.Tokens)
	}
	if !res.Tokens[0].IsVault || res.Tokens[0].VaultInfo != nil {
		t.Fatalf("expected vault flag without detail, got %+v", res.Tokens[0])
	}
	raw, _ := json.Marshal(res.Tokens[0])
	if !strings.Contains(string(raw), `"vaultInfo":null`) {
		t.Fatalf("expected vaultInfo null, got %s", raw)
	}
}

func TestCandidatesDedupExactString(t *testing.T) {
	builtIn := []string{honey.Hex()}
	lower := strings.ToLower(honey.Hex())
	got := Candidates(builtIn, []string{honey.Hex(), lower, "bad", extra.Hex(), extra.Hex()})
	want := []string{honey.Hex(), lower, extra.Hex()}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
