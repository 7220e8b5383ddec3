package tokens

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	"github.com/ggonzalez94/bera-mcp/internal/chain/chaintest"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
)

var (
	honey  = common.HexToAddress("0xFCBD14DC51f0A4d49d5E53C2E0950e0bC26d0Dce")
	holder = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bera   = Asset{Symbol: "BERA", Name: "Berachain Token", Decimals: 18}
)

func newResolver(t *testing.T, node *chaintest.Node) *Resolver {
	t.Helper()
	c, err := chain.Dial(context.Background(), chain.Config{RPCURL: node.URL(), RequestTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(c.Close)
	return NewResolver(c, bera, nil)
}

func TestResultOr(t *testing.T) {
	if got := (Result[string]{Value: "HONEY"}).Or("x"); got != "HONEY" {
		t.Fatalf("expected value, got %q", got)
	}
	if got := (Result[uint8]{Value: 6, Err: errors.New("boom")}).Or(18); got != 18 {
		t.Fatalf("expected default, got %d", got)
	}
}

func TestResolveReadsMetadata(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honey, "HONEY", "Honey", 18)
	r := newResolver(t, node)

	asset, err := r.Resolve(context.Background(), "0xfcbd14dc51f0a4d49d5e53c2e0950e0bc26d0dce")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := Asset{Address: honey.Hex(), Symbol: "HONEY", Name: "Honey", Decimals: 18}
	if asset != want {
		t.Fatalf("expected %+v, got %+v", want, asset)
	}
}

func TestResolveFallsBackPerField(t *testing.T) {
	node := chaintest.NewNode(t)
	tok := node.AddToken(honey, "HONEY", "Honey", 6)
	tok.BrokenMetadata = true
	r := newResolver(t, node)

	asset, err := r.Resolve(context.Background(), honey.Hex())
	if err != nil {
		t.Fatalf("resolve should not fail for a valid address: %v", err)
	}
	if asset.Symbol != FallbackSymbol || asset.Name != FallbackName || asset.Decimals != FallbackDecimals {
		t.Fatalf("expected fallbacks, got %+v", asset)
	}
}

func TestResolveNonContractStillResolves(t *testing.T) {
	node := chaintest.NewNode(t)
	r := newResolver(t, node)
	asset, err := r.Resolve(context.Background(), "0x0000000000000000000000000000000000000123")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if asset.Symbol != FallbackSymbol {
		t.Fatalf("expected fallback symbol, got %q", asset.Symbol)
	}
}

func TestResolveRejectsMalformedAddress(t *testing.T) {
	node := chaintest.NewNode(t)
	r := newResolver(t, node)
	for _, input := range []string{"", "0x123", "not-an-address", "0xZZBD14DC51f0A4d49d5E53C2E0950e0bC26d0Dce"} {
		if _, err := r.Resolve(context.Background(), input); !clierr.Is(err, clierr.CodeInvalidAddress) {
			t.Fatalf("expected invalid address for %q, got %v", input, err)
		}
	}
	if n := node.RPCCount("eth_call"); n != 0 {
		t.Fatalf("expected no reads for malformed addresses, got %d", n)
	}
}

func TestBalanceNativeAndToken(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honey, "HONEY", "Honey", 18)
	node.Mint(honey, holder, big.NewInt(9))
	node.SetNative(holder, big.NewInt(11))
	r := newResolver(t, node)
	ctx := context.Background()

	nativeBal, err := r.Balance(ctx, r.Native(), holder)
	if err != nil || nativeBal.Int64() != 11 {
		t.Fatalf("native balance: %v %v", nativeBal, err)
	}
	tokenBal, err := r.Balance(ctx, Asset{Address: honey.Hex(), Decimals: 18}, holder)
	if err != nil || tokenBal.Int64() != 9 {
		t.Fatalf("token balance: %v %v", tokenBal, err)
	}
	supply, err := r.TotalSupply(ctx, honey)
	if err != nil || supply.Int64() != 9 {
		t.Fatalf("supply: %v %v", supply, err)
	}
}

func TestAssetFormatAndParse(t *testing.T) {
	usdc := Asset{Address: "0x1", Decimals: 6}
	if got := usdc.Format(big.NewInt(1_500_000)); got != "1.5" {
		t.Fatalf("format: %q", got)
	}
	raw, err := usdc.Parse("2.25")
	if err != nil || raw.Int64() != 2_250_000 {
		t.Fatalf("parse: %v %v", raw, err)
	}
	if _, err := usdc.Parse("0"); !clierr.Is(err, clierr.CodeInvalidAmount) {
		t.Fatalf("expected zero to be rejected, got %v", err)
	}
}
