package service

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	"github.com/ggonzalez94/bera-mcp/internal/chain/chaintest"
	"github.com/ggonzalez94/bera-mcp/internal/config"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/execution"
	"github.com/ggonzalez94/bera-mcp/internal/execution/signer"
	"github.com/ggonzalez94/bera-mcp/internal/lookup"
	"github.com/ggonzalez94/bera-mcp/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

var (
	wbera = common.HexToAddress("0x6969696969696969696969696969696969696969")
	honey = common.HexToAddress("0xFCBD14DC51f0A4d49d5E53C2E0950e0bC26d0Dce")
)

func testSettings(t *testing.T, rpcURL string) config.Settings {
	t.Helper()
	dir := t.TempDir()
	return config.Settings{
		Timeout:            5 * time.Second,
		RPCURL:             rpcURL,
		ChainID:            chaintest.DefaultChainID,
		NetworkName:        "Berachain",
		NativeSymbol:       "BERA",
		NativeName:         "Berachain Token",
		NativeDecimals:     18,
		KeySource:          signer.KeySourceEnv,
		GasLimits:          chain.DefaultGasLimits,
		Simulate:           true,
		PollInterval:       5 * time.Millisecond,
		ConfirmTimeout:     2 * time.Second,
		SlippageBps:        50,
		Concurrency:        4,
		Contracts:          config.Contracts{WrappedNative: wbera.Hex()},
		ActionStoreEnabled: true,
		ActionStorePath:    filepath.Join(dir, "actions.db"),
		ActionLockPath:     filepath.Join(dir, "actions.lock"),
	}
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func TestWrapIsRecordedInActionStore(t *testing.T) {
	t.Setenv(signer.EnvPrivateKey, testPrivateKey)
	s, err := signer.Load(signer.Credentials{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("load signer: %v", err)
	}
	node := chaintest.NewNode(t)
	node.AddWrappedNative(wbera, "WBERA", "Wrapped Bera")
	node.SetNative(s.Address(), ether(5))

	m := metrics.New()
	svc := New(testSettings(t, node.URL()), nil, m)
	t.Cleanup(func() { _ = svc.Close() })
	ctx := context.Background()

	out, err := svc.Wrap(ctx, "1")
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if out.Status != "success" || out.TransactionHash == "" {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	action, err := svc.Action(ctx, out.ActionID)
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if action.Status != execution.ActionStatusCompleted || action.Phase != execution.PhaseDone {
		t.Fatalf("unexpected stored action: %+v", action)
	}
	list, err := svc.Actions(ctx, "completed", 10)
	if err != nil {
		t.Fatalf("actions: %v", err)
	}
	if len(list) != 1 || list[0].ActionID != out.ActionID {
		t.Fatalf("unexpected action list: %+v", list)
	}
	if n, err := testutil.GatherAndCount(m.Registry(), "bera_mcp_lifecycle_phases_total", "bera_mcp_rpc_requests_total"); err != nil || n < 2 {
		t.Fatalf("expected lifecycle and rpc series, got %d (%v)", n, err)
	}
}

func TestBalanceScansBuiltInTokens(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honey, "HONEY", "Honey", 18)
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	node.SetNative(wallet, ether(2))
	node.Mint(honey, wallet, ether(3))

	svc := New(testSettings(t, node.URL()), nil, nil)
	t.Cleanup(func() { _ = svc.Close() })

	res, err := svc.Balance(context.Background(), BalanceRequest{Address: wallet.Hex()})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if res.NativeToken.Balance != "2" || res.TokenCount != 1 || res.Tokens[0].Symbol != "HONEY" {
		t.Fatalf("unexpected balances: %+v", res)
	}
}

func TestMalformedBlockHashNeedsNoNode(t *testing.T) {
	settings := testSettings(t, "")
	settings.ChainID = 999999
	svc := New(settings, nil, nil)

	res, err := svc.Block(context.Background(), "abc")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	if res.Status != lookup.BlockStatusError || res.RequestedBlockHash != "abc" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := svc.TokenSupply(context.Background(), honey.Hex()); !clierr.Is(err, clierr.CodeConfiguration) {
		t.Fatalf("expected configuration error without an rpc endpoint, got %v", err)
	}
}

func TestActionsRejectUnknownStatusAndDisabledStore(t *testing.T) {
	settings := testSettings(t, "")
	svc := New(settings, nil, nil)
	t.Cleanup(func() { _ = svc.Close() })
	if _, err := svc.Actions(context.Background(), "stuck", 5); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}

	settings.ActionStoreEnabled = false
	disabled := New(settings, nil, nil)
	if _, err := disabled.Action(context.Background(), "act_1"); !clierr.Is(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestTokenMetadataIsReadPerRequest(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honey, "HONEY", "Honey", 18)
	node.SetSupply(honey, ether(10))
	svc := New(testSettings(t, node.URL()), nil, nil)
	t.Cleanup(func() { _ = svc.Close() })
	ctx := context.Background()

	if _, err := svc.TokenInfo(ctx, honey.Hex()); err != nil {
		t.Fatalf("token info: %v", err)
	}
	first := node.RPCCount("eth_call")
	if _, err := svc.TokenInfo(ctx, honey.Hex()); err != nil {
		t.Fatalf("token info: %v", err)
	}
	if second := node.RPCCount("eth_call") - first; second != first {
		t.Fatalf("expected identical reads per request, first=%d second=%d", first, second)
	}
}
