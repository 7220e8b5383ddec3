package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ggonzalez94/bera-mcp/internal/chain"
	"github.com/ggonzalez94/bera-mcp/internal/registry"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appDir = "bera-mcp"

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	RPCURL         string
	ChainID        int64
	LogLevel       string
	NoSimulate     bool
}

type Contracts struct {
	WrappedNative string
	SwapRouter    string
	SwapQuoter    string
	SwapFactory   string
	Bridge        string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	EnableTools    []string
	Timeout        time.Duration

	RPCURL         string
	ChainID        int64
	NetworkName    string
	NativeSymbol   string
	NativeName     string
	NativeDecimals uint8

	KeySource            string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePasswordFile string

	GasLimits          map[chain.Category]uint64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	Simulate           bool
	PollInterval       time.Duration
	ConfirmTimeout     time.Duration
	SlippageBps        int64

	Concurrency int
	// Tokens are scanned for balances after the network's built-in list.
	Tokens    []string
	Vaults    []string
	Contracts Contracts

	LogLevel string
	LogFile  string

	ActionStoreEnabled bool
	ActionStorePath    string
	ActionLockPath     string

	MetricsAddr string
}

type fileConfig struct {
	Output      string   `yaml:"output"`
	Timeout     string   `yaml:"timeout"`
	EnableTools []string `yaml:"enable_tools"`
	Network     struct {
		RPCURL         string `yaml:"rpc_url"`
		ChainID        *int64 `yaml:"chain_id"`
		Name           string `yaml:"name"`
		NativeSymbol   string `yaml:"native_symbol"`
		NativeName     string `yaml:"native_name"`
		NativeDecimals *uint8 `yaml:"native_decimals"`
	} `yaml:"network"`
	Signer struct {
		KeySource            string `yaml:"key_source"`
		PrivateKeyFile       string `yaml:"private_key_file"`
		KeystorePath         string `yaml:"keystore_path"`
		KeystorePasswordFile string `yaml:"keystore_password_file"`
	} `yaml:"signer"`
	Execution struct {
		GasLimits          map[string]uint64 `yaml:"gas_limits"`
		MaxFeeGwei         string            `yaml:"max_fee_gwei"`
		MaxPriorityFeeGwei string            `yaml:"max_priority_fee_gwei"`
		Simulate           *bool             `yaml:"simulate"`
		PollInterval       string            `yaml:"poll_interval"`
		ConfirmTimeout     string            `yaml:"confirm_timeout"`
		SlippageBps        *int64            `yaml:"slippage_bps"`
		ActionsEnabled     *bool             `yaml:"actions_enabled"`
		ActionsPath        string            `yaml:"actions_path"`
		ActionsLockPath    string            `yaml:"actions_lock_path"`
	} `yaml:"execution"`
	Balances struct {
		Concurrency *int     `yaml:"concurrency"`
		Tokens      []string `yaml:"tokens"`
		Vaults      []string `yaml:"vaults"`
	} `yaml:"balances"`
	Contracts struct {
		WrappedNative string `yaml:"wrapped_native"`
		SwapRouter    string `yaml:"swap_router"`
		SwapQuoter    string `yaml:"swap_quoter"`
		SwapFactory   string `yaml:"swap_factory"`
		Bridge        string `yaml:"bridge"`
	} `yaml:"contracts"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
}

// Load resolves settings from defaults, the YAML file, a .env file, the
// BERA_* environment and finally flags, each overriding the previous.
func Load(flags GlobalFlags) (Settings, error) {
	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	fc, err := readFileConfig(cfgPath)
	if err != nil {
		return Settings{}, err
	}
	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}

	// The chain id picks the network defaults, so settle it first.
	chainID := registry.BerachainChainID
	if fc.Network.ChainID != nil {
		chainID = *fc.Network.ChainID
	}
	if v := os.Getenv("BERA_CHAIN_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Settings{}, fmt.Errorf("parse BERA_CHAIN_ID: %w", err)
		}
		chainID = n
	}
	if flags.ChainID > 0 {
		chainID = flags.ChainID
	}

	settings, err := defaultSettings(chainID)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(fc, &settings); err != nil {
		return Settings{}, err
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}
	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = 8
	}
	if settings.SlippageBps < 0 || settings.SlippageBps >= 10_000 {
		return Settings{}, fmt.Errorf("slippage_bps must be between 0 and 9999")
	}
	return settings, nil
}

func defaultSettings(chainID int64) (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	network, _ := registry.LookupNetwork(chainID)
	rpcURL, _ := registry.DefaultRPCURL(chainID)
	gasLimits := make(map[chain.Category]uint64, len(chain.DefaultGasLimits))
	for k, v := range chain.DefaultGasLimits {
		gasLimits[k] = v
	}
	return Settings{
		OutputMode:     "json",
		Timeout:        15 * time.Second,
		RPCURL:         rpcURL,
		ChainID:        chainID,
		NetworkName:    network.Name,
		NativeSymbol:   network.NativeSymbol,
		NativeName:     network.NativeName,
		NativeDecimals: network.NativeDecimals,
		KeySource:      "auto",
		GasLimits:      gasLimits,
		Simulate:       true,
		PollInterval:   2 * time.Second,
		ConfirmTimeout: 2 * time.Minute,
		SlippageBps:    50,
		Concurrency:    8,
		Vaults:         network.Vaults,
		Contracts: Contracts{
			WrappedNative: network.WrappedNative,
			SwapRouter:    network.SwapRouter,
			SwapQuoter:    network.SwapQuoter,
			SwapFactory:   network.SwapFactory,
			Bridge:        network.Bridge,
		},
		LogLevel:           "info",
		ActionStoreEnabled: true,
		ActionStorePath:    filepath.Join(dataDir, "actions.db"),
		ActionLockPath:     filepath.Join(dataDir, "actions.lock"),
	}, nil
}

// BuiltInTokens is the balance scan list: network defaults, then configured
// additions not already listed.
func (s Settings) BuiltInTokens() []string {
	network, _ := registry.LookupNetwork(s.ChainID)
	out := network.CommonTokens
	seen := make(map[string]struct{}, len(out)+len(s.Tokens))
	for _, t := range out {
		seen[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range s.Tokens {
		if _, dup := seen[strings.ToLower(t)]; dup {
			continue
		}
		seen[strings.ToLower(t)] = struct{}{}
		out = append(out, t)
	}
	return out
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	if v := os.Getenv("BERA_CONFIG"); v != "" {
		return v, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appDir, "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, appDir), nil
}

func readFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config yaml: %w", err)
	}
	return cfg, nil
}

// loadDotEnv reads KEY=VALUE pairs into the process environment without
// overriding variables that are already set.
func loadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func parseDuration(v, name string, dst *time.Duration) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

func applyFileConfig(cfg fileConfig, settings *Settings) error {
	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if err := parseDuration(cfg.Timeout, "config timeout", &settings.Timeout); err != nil {
		return err
	}
	if len(cfg.EnableTools) > 0 {
		settings.EnableTools = cfg.EnableTools
	}

	if cfg.Network.RPCURL != "" {
		settings.RPCURL = cfg.Network.RPCURL
	}
	if cfg.Network.Name != "" {
		settings.NetworkName = cfg.Network.Name
	}
	if cfg.Network.NativeSymbol != "" {
		settings.NativeSymbol = cfg.Network.NativeSymbol
	}
	if cfg.Network.NativeName != "" {
		settings.NativeName = cfg.Network.NativeName
	}
	if cfg.Network.NativeDecimals != nil {
		settings.NativeDecimals = *cfg.Network.NativeDecimals
	}

	if cfg.Signer.KeySource != "" {
		settings.KeySource = cfg.Signer.KeySource
	}
	if cfg.Signer.PrivateKeyFile != "" {
		settings.PrivateKeyFile = cfg.Signer.PrivateKeyFile
	}
	if cfg.Signer.KeystorePath != "" {
		settings.KeystorePath = cfg.Signer.KeystorePath
	}
	if cfg.Signer.KeystorePasswordFile != "" {
		settings.KeystorePasswordFile = cfg.Signer.KeystorePasswordFile
	}

	for name, limit := range cfg.Execution.GasLimits {
		category := chain.Category(strings.ToLower(name))
		if _, ok := chain.DefaultGasLimits[category]; !ok {
			return fmt.Errorf("config execution.gas_limits: unknown category %q", name)
		}
		settings.GasLimits[category] = limit
	}
	if cfg.Execution.MaxFeeGwei != "" {
		settings.MaxFeeGwei = cfg.Execution.MaxFeeGwei
	}
	if cfg.Execution.MaxPriorityFeeGwei != "" {
		settings.MaxPriorityFeeGwei = cfg.Execution.MaxPriorityFeeGwei
	}
	if cfg.Execution.Simulate != nil {
		settings.Simulate = *cfg.Execution.Simulate
	}
	if err := parseDuration(cfg.Execution.PollInterval, "config execution.poll_interval", &settings.PollInterval); err != nil {
		return err
	}
	if err := parseDuration(cfg.Execution.ConfirmTimeout, "config execution.confirm_timeout", &settings.ConfirmTimeout); err != nil {
		return err
	}
	if cfg.Execution.SlippageBps != nil {
		settings.SlippageBps = *cfg.Execution.SlippageBps
	}
	if cfg.Execution.ActionsEnabled != nil {
		settings.ActionStoreEnabled = *cfg.Execution.ActionsEnabled
	}
	if cfg.Execution.ActionsPath != "" {
		settings.ActionStorePath = cfg.Execution.ActionsPath
	}
	if cfg.Execution.ActionsLockPath != "" {
		settings.ActionLockPath = cfg.Execution.ActionsLockPath
	}

	if cfg.Balances.Concurrency != nil {
		settings.Concurrency = *cfg.Balances.Concurrency
	}
	settings.Tokens = append(settings.Tokens, cfg.Balances.Tokens...)
	settings.Vaults = append(settings.Vaults, cfg.Balances.Vaults...)

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&settings.Contracts.WrappedNative, cfg.Contracts.WrappedNative)
	override(&settings.Contracts.SwapRouter, cfg.Contracts.SwapRouter)
	override(&settings.Contracts.SwapQuoter, cfg.Contracts.SwapQuoter)
	override(&settings.Contracts.SwapFactory, cfg.Contracts.SwapFactory)
	override(&settings.Contracts.Bridge, cfg.Contracts.Bridge)

	override(&settings.LogLevel, strings.ToLower(cfg.Log.Level))
	override(&settings.LogFile, cfg.Log.File)
	override(&settings.MetricsAddr, cfg.Metrics.Listen)
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyEnv(settings *Settings) error {
	str := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	str("BERA_RPC_URL", &settings.RPCURL)
	str("BERA_NETWORK_NAME", &settings.NetworkName)
	str("BERA_NATIVE_SYMBOL", &settings.NativeSymbol)
	str("BERA_NATIVE_NAME", &settings.NativeName)
	str("BERA_KEY_SOURCE", &settings.KeySource)
	str("BERA_MAX_FEE_GWEI", &settings.MaxFeeGwei)
	str("BERA_MAX_PRIORITY_FEE_GWEI", &settings.MaxPriorityFeeGwei)
	str("BERA_LOG_FILE", &settings.LogFile)
	str("BERA_ACTIONS_PATH", &settings.ActionStorePath)
	str("BERA_ACTIONS_LOCK_PATH", &settings.ActionLockPath)
	str("BERA_METRICS_LISTEN", &settings.MetricsAddr)
	str("BERA_WRAPPED_NATIVE", &settings.Contracts.WrappedNative)
	str("BERA_SWAP_ROUTER", &settings.Contracts.SwapRouter)
	str("BERA_SWAP_QUOTER", &settings.Contracts.SwapQuoter)
	str("BERA_SWAP_FACTORY", &settings.Contracts.SwapFactory)
	str("BERA_BRIDGE", &settings.Contracts.Bridge)
	if v := os.Getenv("BERA_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("BERA_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("BERA_ENABLE_TOOLS"); v != "" {
		settings.EnableTools = splitList(v)
	}
	if v := os.Getenv("BERA_TOKENS"); v != "" {
		settings.Tokens = append(settings.Tokens, splitList(v)...)
	}
	if v := os.Getenv("BERA_VAULTS"); v != "" {
		settings.Vaults = append(settings.Vaults, splitList(v)...)
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"BERA_TIMEOUT", &settings.Timeout},
		{"BERA_POLL_INTERVAL", &settings.PollInterval},
		{"BERA_CONFIRM_TIMEOUT", &settings.ConfirmTimeout},
	}
	for _, d := range durations {
		if err := parseDuration(os.Getenv(d.env), d.env, d.dst); err != nil {
			return err
		}
	}
	if v := os.Getenv("BERA_SIMULATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BERA_SIMULATE: %w", err)
		}
		settings.Simulate = b
	}
	if v := os.Getenv("BERA_SLIPPAGE_BPS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("BERA_SLIPPAGE_BPS: %w", err)
		}
		settings.SlippageBps = n
	}
	if v := os.Getenv("BERA_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BERA_CONCURRENCY: %w", err)
		}
		settings.Concurrency = n
	}
	if v := os.Getenv("BERA_NO_ACTIONS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.ActionStoreEnabled = !b
		}
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly
	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}
	if flags.Timeout != "" {
		if err := parseDuration(flags.Timeout, "parse --timeout", &settings.Timeout); err != nil {
			return err
		}
	}
	if strings.TrimSpace(flags.RPCURL) != "" {
		settings.RPCURL = strings.TrimSpace(flags.RPCURL)
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if flags.NoSimulate {
		settings.Simulate = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}
