package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/bera-mcp/internal/chain/chaintest"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/execution/signer"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

var (
	honeyAddr = common.HexToAddress("0xFCBD14DC51f0A4d49d5E53C2E0950e0bC26d0Dce")
	wberaAddr = common.HexToAddress("0x6969696969696969696969696969696969696969")
	spender   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func testSigner(t *testing.T) signer.Signer {
	t.Helper()
	s, err := signer.Load(signer.Credentials{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("load signer: %v", err)
	}
	return s
}

func dialTest(t *testing.T, node *chaintest.Node, mutate func(*Config)) *Client {
	t.Helper()
	s := testSigner(t)
	cfg := Config{
		RPCURL:         node.URL(),
		ChainID:        chaintest.DefaultChainID,
		PollInterval:   5 * time.Millisecond,
		ConfirmTimeout: 2 * time.Second,
		Simulate:       true,
		Signer:         func() (signer.Signer, error) { return s, nil },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestDecodeRevertData(t *testing.T) {
	if got := decodeRevertData(chaintest.EncodeRevert("insufficient balance")); got != "insufficient balance" {
		t.Fatalf("unexpected Error(string) decode: %q", got)
	}
	panicData := common.FromHex("0x4e487b710000000000000000000000000000000000000000000000000000000000000011")
	if got := decodeRevertData(panicData); !strings.Contains(got, "overflow") {
		t.Fatalf("expected panic reason to mention overflow, got %q", got)
	}
	if got := decodeRevertData(common.FromHex("0xdeadbeef")); got != "custom error 0xdeadbeef" {
		t.Fatalf("unexpected custom error decode: %q", got)
	}
	if got := decodeRevertData([]byte{0x01}); got != "" {
		t.Fatalf("expected empty reason for short data, got %q", got)
	}
}

func TestDecodeRevertFromErrorMessageFallback(t *testing.T) {
	if got := decodeRevertFromError(errors.New("execution reverted: STF")); got != "STF" {
		t.Fatalf("expected message fallback, got %q", got)
	}
	if got := decodeRevertFromError(errors.New("connection refused")); got != "" {
		t.Fatalf("expected no reason, got %q", got)
	}
}

func TestDialRejectsMissingEndpoint(t *testing.T) {
	_, err := Dial(context.Background(), Config{})
	if !clierr.Is(err, clierr.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDialRejectsChainMismatch(t *testing.T) {
	node := chaintest.NewNode(t)
	_, err := Dial(context.Background(), Config{RPCURL: node.URL(), ChainID: 1})
	if !clierr.Is(err, clierr.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCallHelpersReadTokenState(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honeyAddr, "HONEY", "Honey", 18)
	owner := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	node.Mint(honeyAddr, owner, big.NewInt(42))
	c := dialTest(t, node, nil)
	ctx := context.Background()
	token := Bind(FamilyERC20, honeyAddr)

	symbol, err := c.CallString(ctx, token, "symbol")
	if err != nil || symbol != "HONEY" {
		t.Fatalf("symbol: %q %v", symbol, err)
	}
	decimals, err := c.CallUint8(ctx, token, "decimals")
	if err != nil || decimals != 18 {
		t.Fatalf("decimals: %d %v", decimals, err)
	}
	balance, err := c.CallBigInt(ctx, token, "balanceOf", owner)
	if err != nil || balance.Int64() != 42 {
		t.Fatalf("balanceOf: %v %v", balance, err)
	}
}

func TestCallRevertIsRPCErrorWithReason(t *testing.T) {
	node := chaintest.NewNode(t)
	tok := node.AddToken(honeyAddr, "HONEY", "Honey", 18)
	tok.BrokenMetadata = true
	c := dialTest(t, node, nil)

	_, err := c.CallString(context.Background(), Bind(FamilyERC20, honeyAddr), "symbol")
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected rpc error, got %v", err)
	}
	if !strings.Contains(err.Error(), "revert: symbol not implemented") {
		t.Fatalf("expected decoded revert reason, got %v", err)
	}
}

func TestMethodOutsideFamilyFailsBeforeIO(t *testing.T) {
	node := chaintest.NewNode(t)
	c := dialTest(t, node, nil)

	_, err := c.Call(context.Background(), Bind(FamilyERC20, honeyAddr), "deposit")
	if !clierr.Is(err, clierr.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if n := node.RPCCount("eth_call"); n != 0 {
		t.Fatalf("expected no eth_call, got %d", n)
	}
}

func TestFamilyMethodSets(t *testing.T) {
	vault := Bind(FamilyVault, honeyAddr)
	if _, err := vault.Pack("convertToAssets", big.NewInt(1)); err != nil {
		t.Fatalf("vault family should include convertToAssets: %v", err)
	}
	if _, err := vault.Pack("balanceOf", spender); err != nil {
		t.Fatalf("vault family should include erc20 methods: %v", err)
	}
	if _, err := Bind(FamilyWrappedNative, wberaAddr).Pack("withdraw", big.NewInt(1)); err != nil {
		t.Fatalf("wrapped native withdraw: %v", err)
	}
	if len(Bind(FamilyBridge, spender).Methods()) != 1 {
		t.Fatal("expected bridge family to expose exactly bridgeAsset")
	}
}

func TestSubmitAndConfirmApprove(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honeyAddr, "HONEY", "Honey", 18)
	c := dialTest(t, node, nil)
	from, _ := c.Account()
	node.SetNative(from, big.NewInt(1e18))
	ctx := context.Background()

	pending, err := c.Submit(ctx, Bind(FamilyERC20, honeyAddr), CategoryApprove, nil, "approve", spender, big.NewInt(500))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if pending.From != from || pending.Nonce != 0 || pending.GasLimit != DefaultGasLimits[CategoryApprove] {
		t.Fatalf("unexpected pending tx: %+v", pending)
	}
	receipt, err := c.Confirm(ctx, pending)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatalf("expected successful receipt, got status %d", receipt.Status)
	}
	if got := node.Allowance(honeyAddr, from, spender); got.Int64() != 500 {
		t.Fatalf("expected allowance 500, got %s", got)
	}

	sent := node.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(sent))
	}
	tx := sent[0]
	if tx.Type() != types.DynamicFeeTxType {
		t.Fatalf("expected dynamic fee tx, got type %d", tx.Type())
	}
	wantFeeCap := new(big.Int).Add(new(big.Int).Mul(chaintest.BaseFee, big.NewInt(2)), chaintest.Tip)
	if tx.GasFeeCap().Cmp(wantFeeCap) != 0 {
		t.Fatalf("expected fee cap %s, got %s", wantFeeCap, tx.GasFeeCap())
	}

	second, err := c.Submit(ctx, Bind(FamilyERC20, honeyAddr), CategoryApprove, nil, "approve", spender, big.NewInt(0))
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.Nonce != 1 {
		t.Fatalf("expected nonce 1, got %d", second.Nonce)
	}
}

func TestSubmitUsesConfiguredGasLimit(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honeyAddr, "HONEY", "Honey", 18)
	c := dialTest(t, node, func(cfg *Config) {
		cfg.GasLimits = map[Category]uint64{CategoryApprove: 80_000}
	})
	from, _ := c.Account()
	node.SetNative(from, big.NewInt(1e18))
	pending, err := c.Submit(context.Background(), Bind(FamilyERC20, honeyAddr), CategoryApprove, nil, "approve", spender, big.NewInt(1))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if pending.GasLimit != 80_000 {
		t.Fatalf("expected configured gas limit, got %d", pending.GasLimit)
	}
}

func TestSubmitSimulationRevertNeverBroadcasts(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddWrappedNative(wberaAddr, "WBERA", "Wrapped Bera")
	c := dialTest(t, node, nil)
	from, _ := c.Account()
	node.SetNative(from, big.NewInt(1e18))

	_, err := c.Submit(context.Background(), Bind(FamilyWrappedNative, wberaAddr), CategoryWrap, nil, "withdraw", big.NewInt(5))
	if !clierr.Is(err, clierr.CodeTransaction) {
		t.Fatalf("expected transaction error, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient balance") {
		t.Fatalf("expected revert reason, got %v", err)
	}
	if n := node.RPCCount("eth_sendRawTransaction"); n != 0 {
		t.Fatalf("expected no broadcast, got %d", n)
	}
}

func TestConfirmRevertedReceiptReplaysReason(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddWrappedNative(wberaAddr, "WBERA", "Wrapped Bera")
	c := dialTest(t, node, func(cfg *Config) { cfg.Simulate = false })
	from, _ := c.Account()
	node.SetNative(from, big.NewInt(1e18))
	ctx := context.Background()

	pending, err := c.Submit(ctx, Bind(FamilyWrappedNative, wberaAddr), CategoryWrap, nil, "withdraw", big.NewInt(5))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	receipt, err := c.Confirm(ctx, pending)
	if !clierr.Is(err, clierr.CodeTransaction) {
		t.Fatalf("expected transaction error, got %v", err)
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusFailed {
		t.Fatalf("expected failed receipt, got %+v", receipt)
	}
	if !strings.Contains(err.Error(), "insufficient balance") {
		t.Fatalf("expected replayed reason, got %v", err)
	}
	cliErr, _ := clierr.As(err)
	if cliErr.Details["transactionHash"] != pending.Hash.Hex() {
		t.Fatalf("expected tx hash detail, got %v", cliErr.Details)
	}
}

func TestConfirmTimesOutWithHash(t *testing.T) {
	node := chaintest.NewNode(t)
	node.HoldReceipts = true
	node.AddToken(honeyAddr, "HONEY", "Honey", 18)
	c := dialTest(t, node, func(cfg *Config) { cfg.ConfirmTimeout = 50 * time.Millisecond })
	from, _ := c.Account()
	node.SetNative(from, big.NewInt(1e18))
	ctx := context.Background()

	pending, err := c.Submit(ctx, Bind(FamilyERC20, honeyAddr), CategoryApprove, nil, "approve", spender, big.NewInt(1))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = c.Confirm(ctx, pending)
	if !clierr.Is(err, clierr.CodeTransaction) {
		t.Fatalf("expected transaction error, got %v", err)
	}
	if !strings.Contains(err.Error(), pending.Hash.Hex()) {
		t.Fatalf("expected hash in message, got %v", err)
	}
	if n := node.RPCCount("eth_sendRawTransaction"); n != 1 {
		t.Fatalf("expected exactly one broadcast, got %d", n)
	}
}

func TestSubmitWithoutSignerIsConfigurationError(t *testing.T) {
	node := chaintest.NewNode(t)
	node.AddToken(honeyAddr, "HONEY", "Honey", 18)
	c := dialTest(t, node, func(cfg *Config) { cfg.Signer = nil })

	_, err := c.Submit(context.Background(), Bind(FamilyERC20, honeyAddr), CategoryApprove, nil, "approve", spender, big.NewInt(1))
	if !clierr.Is(err, clierr.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestParseGwei(t *testing.T) {
	v, err := parseGwei("1.5")
	if err != nil || v.Int64() != 1_500_000_000 {
		t.Fatalf("parseGwei(1.5) = %v, %v", v, err)
	}
	if _, err := parseGwei("-1"); err == nil {
		t.Fatal("expected negative gwei to fail")
	}
	if _, err := resolveFeeCap(big.NewInt(1), big.NewInt(2_000_000_000), "1"); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected fee cap below tip to fail, got %v", err)
	}
}
