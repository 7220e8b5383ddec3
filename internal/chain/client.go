package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/execution/signer"
	"github.com/ggonzalez94/bera-mcp/internal/httpx"
	"go.uber.org/zap"
)

// Category selects the gas-limit ceiling of a submitted transaction.
type Category string

const (
	CategoryApprove Category = "approve"
	CategoryWrap    Category = "wrap"
	CategoryVault   Category = "vault"
	CategorySwap    Category = "swap"
	CategoryBridge  Category = "bridge"
)

// DefaultGasLimits are the per-category ceilings used when none are configured.
var DefaultGasLimits = map[Category]uint64{
	CategoryApprove: 100_000,
	CategoryWrap:    100_000,
	CategoryVault:   500_000,
	CategorySwap:    500_000,
	CategoryBridge:  600_000,
}

type Config struct {
	RPCURL             string
	ChainID            int64
	RequestTimeout     time.Duration
	PollInterval       time.Duration
	ConfirmTimeout     time.Duration
	GasLimits          map[Category]uint64
	Simulate           bool
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	// Signer is resolved on the first Submit so read-only use never needs a key.
	Signer   func() (signer.Signer, error)
	Observer httpx.Observer
	Logger   *zap.Logger
}

// Client is the single gateway to the node: contract reads, transaction
// submission and confirmation, and native/tx/block lookups.
type Client struct {
	eth            *ethclient.Client
	rpc            *rpc.Client
	chainID        *big.Int
	pollInterval   time.Duration
	confirmTimeout time.Duration
	gasLimits      map[Category]uint64
	simulate       bool
	maxFeeGwei     string
	maxTipGwei     string
	loadSigner     func() (signer.Signer, error)
	log            *zap.Logger

	signerMu sync.Mutex
	signer   signer.Signer
	nonceMu  sync.Mutex
}

// Dial connects to the configured endpoint and checks the node's chain id.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, clierr.New(clierr.CodeConfiguration, "missing rpc endpoint")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	rpcClient, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(httpx.New(cfg.RequestTimeout, cfg.Observer)))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	eth := ethclient.NewClient(rpcClient)
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		rpcClient.Close()
		return nil, clierr.New(clierr.CodeConfiguration, fmt.Sprintf("rpc endpoint serves chain %d, configured chain is %d", chainID.Int64(), cfg.ChainID))
	}
	return newClient(eth, rpcClient, chainID, cfg), nil
}

func newClient(eth *ethclient.Client, rpcClient *rpc.Client, chainID *big.Int, cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	limits := make(map[Category]uint64, len(DefaultGasLimits))
	for k, v := range DefaultGasLimits {
		limits[k] = v
	}
	for k, v := range cfg.GasLimits {
		if v > 0 {
			limits[k] = v
		}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		eth:            eth,
		rpc:            rpcClient,
		chainID:        chainID,
		pollInterval:   cfg.PollInterval,
		confirmTimeout: cfg.ConfirmTimeout,
		gasLimits:      limits,
		simulate:       cfg.Simulate,
		maxFeeGwei:     cfg.MaxFeeGwei,
		maxTipGwei:     cfg.MaxPriorityFeeGwei,
		loadSigner:     cfg.Signer,
		log:            log,
	}
}

func (c *Client) Close() {
	if c == nil || c.rpc == nil {
		return
	}
	c.rpc.Close()
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Account returns the signing address, loading the signer on first use.
func (c *Client) Account() (common.Address, error) {
	s, err := c.resolveSigner()
	if err != nil {
		return common.Address{}, err
	}
	return s.Address(), nil
}

func (c *Client) resolveSigner() (signer.Signer, error) {
	c.signerMu.Lock()
	defer c.signerMu.Unlock()
	if c.signer != nil {
		return c.signer, nil
	}
	if c.loadSigner == nil {
		return nil, clierr.New(clierr.CodeConfiguration, "no signing credential configured")
	}
	s, err := c.loadSigner()
	if err != nil {
		if _, ok := clierr.As(err); ok {
			return nil, err
		}
		return nil, clierr.Wrap(clierr.CodeConfiguration, "load signing credential", err)
	}
	c.signer = s
	return s, nil
}

// Call performs a read-only contract call at the latest block.
func (c *Client) Call(ctx context.Context, contract Contract, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	to := contract.Address
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, wrapEVMExecutionError(clierr.CodeUnavailable, fmt.Sprintf("call %s.%s", contract.Family, method), err)
	}
	values, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("decode %s.%s result", contract.Family, method), err)
	}
	if len(values) == 0 {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s.%s returned no values", contract.Family, method))
	}
	return values, nil
}

func (c *Client) CallBigInt(ctx context.Context, contract Contract, method string, args ...any) (*big.Int, error) {
	values, err := c.Call(ctx, contract, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s.%s returned %T, expected integer", contract.Family, method, values[0]))
	}
	return v, nil
}

func (c *Client) CallString(ctx context.Context, contract Contract, method string, args ...any) (string, error) {
	values, err := c.Call(ctx, contract, method, args...)
	if err != nil {
		return "", err
	}
	v, ok := values[0].(string)
	if !ok {
		return "", clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s.%s returned %T, expected string", contract.Family, method, values[0]))
	}
	return v, nil
}

func (c *Client) CallUint8(ctx context.Context, contract Contract, method string, args ...any) (uint8, error) {
	values, err := c.Call(ctx, contract, method, args...)
	if err != nil {
		return 0, err
	}
	v, ok := values[0].(uint8)
	if !ok {
		return 0, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s.%s returned %T, expected uint8", contract.Family, method, values[0]))
	}
	return v, nil
}

func (c *Client) CallAddress(ctx context.Context, contract Contract, method string, args ...any) (common.Address, error) {
	values, err := c.Call(ctx, contract, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s.%s returned %T, expected address", contract.Family, method, values[0]))
	}
	return v, nil
}
