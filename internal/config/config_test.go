package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggonzalez94/bera-mcp/internal/chain"
)

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("XDG_STATE_HOME", tmp)
	t.Setenv("BERA_CONFIG", "")
	for _, env := range []string{"BERA_RPC_URL", "BERA_CHAIN_ID", "BERA_OUTPUT", "BERA_SLIPPAGE_BPS", "BERA_TOKENS", "BERA_SIMULATE"} {
		t.Setenv(env, "")
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return tmp
}

func TestLoadDefaultsToBerachain(t *testing.T) {
	tmp := isolate(t)
	settings, err := Load(GlobalFlags{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.ChainID != 80094 || settings.RPCURL != "https://rpc.berachain.com" || settings.NativeSymbol != "BERA" {
		t.Fatalf("unexpected network defaults: %+v", settings)
	}
	if settings.Contracts.WrappedNative != "0x6969696969696969696969696969696969696969" {
		t.Fatalf("unexpected wrapped native %q", settings.Contracts.WrappedNative)
	}
	if !settings.Simulate || settings.SlippageBps != 50 || settings.Concurrency != 8 {
		t.Fatalf("unexpected execution defaults: %+v", settings)
	}
	if settings.ActionStorePath != filepath.Join(tmp, "bera-mcp", "actions.db") {
		t.Fatalf("unexpected store path %q", settings.ActionStorePath)
	}
	if len(settings.BuiltInTokens()) != 7 {
		t.Fatalf("expected the seven built-in tokens, got %d", len(settings.BuiltInTokens()))
	}
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	body := `output: plain
network:
  rpc_url: https://file.example
execution:
  slippage_bps: 100
  gas_limits:
    swap: 750000
balances:
  tokens: ["0x00000000000000000000000000000000000000e1"]
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BERA_OUTPUT", "json")
	t.Setenv("BERA_RPC_URL", "https://env.example")
	t.Setenv("BERA_SLIPPAGE_BPS", "30")

	settings, err := Load(GlobalFlags{ConfigPath: configPath, Plain: true, RPCURL: "https://flag.example"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.RPCURL != "https://flag.example" {
		t.Fatalf("expected rpc url from flags, got %s", settings.RPCURL)
	}
	if settings.SlippageBps != 30 {
		t.Fatalf("expected env slippage over file, got %d", settings.SlippageBps)
	}
	if settings.GasLimits[chain.CategorySwap] != 750000 || settings.GasLimits[chain.CategoryApprove] != chain.DefaultGasLimits[chain.CategoryApprove] {
		t.Fatalf("unexpected gas limits: %+v", settings.GasLimits)
	}
	tokens := settings.BuiltInTokens()
	if tokens[len(tokens)-1] != "0x00000000000000000000000000000000000000e1" {
		t.Fatalf("expected configured token after built-ins, got %v", tokens)
	}
}

func TestDotEnvNeverOverridesEnvironment(t *testing.T) {
	tmp := isolate(t)
	envFile := filepath.Join(tmp, "test.env")
	if err := os.WriteFile(envFile, []byte("BERA_RPC_URL=https://dotenv.example\nBERA_CONFIRM_TIMEOUT=9s\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("BERA_RPC_URL", "https://real.example")
	t.Setenv("BERA_CONFIRM_TIMEOUT", "")
	os.Unsetenv("BERA_CONFIRM_TIMEOUT")
	t.Cleanup(func() { os.Unsetenv("BERA_CONFIRM_TIMEOUT") })

	settings, err := Load(GlobalFlags{EnvFile: envFile})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.RPCURL != "https://real.example" {
		t.Fatalf("dotenv must not override the environment, got %s", settings.RPCURL)
	}
	if settings.ConfirmTimeout != 9*time.Second {
		t.Fatalf("expected confirm timeout from dotenv, got %s", settings.ConfirmTimeout)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	isolate(t)
	if _, err := Load(GlobalFlags{JSON: true, Plain: true}); err == nil {
		t.Fatal("expected error with --json and --plain")
	}
	if _, err := Load(GlobalFlags{EnvFile: "/does/not/exist.env"}); err == nil {
		t.Fatal("expected error for a missing explicit env file")
	}
	t.Setenv("BERA_SLIPPAGE_BPS", "10000")
	if _, err := Load(GlobalFlags{}); err == nil {
		t.Fatal("expected slippage bound error")
	}
}

func TestUnknownChainHasNoBuiltIns(t *testing.T) {
	isolate(t)
	settings, err := Load(GlobalFlags{ChainID: 999999})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.NativeSymbol != "ETH" || settings.RPCURL != "" || len(settings.BuiltInTokens()) != 0 {
		t.Fatalf("unexpected generic profile: %+v", settings)
	}
}
