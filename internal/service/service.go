package service

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/balances"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	"github.com/ggonzalez94/bera-mcp/internal/config"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/execution"
	"github.com/ggonzalez94/bera-mcp/internal/execution/planner"
	"github.com/ggonzalez94/bera-mcp/internal/execution/signer"
	"github.com/ggonzalez94/bera-mcp/internal/id"
	"github.com/ggonzalez94/bera-mcp/internal/lookup"
	"github.com/ggonzalez94/bera-mcp/internal/metrics"
	"github.com/ggonzalez94/bera-mcp/internal/registry"
	"github.com/ggonzalez94/bera-mcp/internal/tokens"
	"github.com/ggonzalez94/bera-mcp/internal/vault"
	"go.uber.org/zap"
)

// Service is the process-wide context every tool and command goes through.
// The node connection and action store are opened on first use and shared
// by concurrent invocations.
type Service struct {
	settings config.Settings
	log      *zap.Logger
	metrics  *metrics.Metrics

	mu    sync.Mutex
	deps  *deps
	store *execution.Store
}

type deps struct {
	client    *chain.Client
	tokens    *tokens.Resolver
	vaults    *vault.Resolver
	balances  *balances.Aggregator
	lookup    *lookup.Service
	planner   *planner.Planner
	lifecycle *execution.Lifecycle
}

func New(settings config.Settings, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{settings: settings, log: log, metrics: m}
}

func (s *Service) Settings() config.Settings { return s.settings }

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deps != nil {
		s.deps.client.Close()
		s.deps = nil
	}
	if s.store != nil {
		err := s.store.Close()
		s.store = nil
		return err
	}
	return nil
}

// ensure dials the node once. A failed dial is not cached, so the next call
// retries with the same settings.
func (s *Service) ensure(ctx context.Context) (*deps, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deps != nil {
		return s.deps, nil
	}
	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, s.settings.ChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfiguration, "resolve rpc endpoint", err)
	}
	client, err := chain.Dial(ctx, chain.Config{
		RPCURL:             rpcURL,
		ChainID:            s.settings.ChainID,
		RequestTimeout:     s.settings.Timeout,
		PollInterval:       s.settings.PollInterval,
		ConfirmTimeout:     s.settings.ConfirmTimeout,
		GasLimits:          s.settings.GasLimits,
		Simulate:           s.settings.Simulate,
		MaxFeeGwei:         s.settings.MaxFeeGwei,
		MaxPriorityFeeGwei: s.settings.MaxPriorityFeeGwei,
		Signer:             s.loadSigner,
		Observer:           s.metrics.ObserveRPC,
		Logger:             s.log.Named("chain"),
	})
	if err != nil {
		return nil, err
	}

	native := tokens.Asset{
		Symbol:   s.settings.NativeSymbol,
		Name:     s.settings.NativeName,
		Decimals: s.settings.NativeDecimals,
	}
	tr := tokens.NewResolver(client, native, s.log.Named("tokens"))
	vr := vault.NewResolver(client, tr)
	d := &deps{
		client: client,
		tokens: tr,
		vaults: vr,
		balances: balances.New(tr, vr, balances.Config{
			BuiltIn:     s.settings.BuiltInTokens(),
			Vaults:      s.settings.Vaults,
			Concurrency: s.settings.Concurrency,
			Logger:      s.log.Named("balances"),
		}),
		lookup: lookup.New(client, tr, lookup.Network{Name: s.settings.NetworkName, ChainID: s.settings.ChainID}),
		planner: planner.New(client, tr, planner.Config{
			Contracts:   s.contracts(),
			SlippageBps: s.settings.SlippageBps,
			Simulate:    s.settings.Simulate,
			Logger:      s.log.Named("planner"),
		}),
		lifecycle: execution.NewLifecycle(client, tr, execution.Config{
			Store:    s.openStoreLocked(),
			Logger:   s.log.Named("lifecycle"),
			Observer: s.metrics.ObservePhase,
		}),
	}
	s.deps = d
	s.log.Info("connected", zap.String("rpc_url", rpcURL), zap.Int64("chain_id", client.ChainID().Int64()))
	return d, nil
}

func (s *Service) loadSigner() (signer.Signer, error) {
	return signer.Load(signer.Credentials{
		Source:               s.settings.KeySource,
		PrivateKeyFile:       s.settings.PrivateKeyFile,
		KeystorePath:         s.settings.KeystorePath,
		KeystorePasswordFile: s.settings.KeystorePasswordFile,
	})
}

func (s *Service) contracts() planner.Contracts {
	addr := func(v string) common.Address {
		if !id.IsAddress(v) {
			return common.Address{}
		}
		return common.HexToAddress(v)
	}
	c := s.settings.Contracts
	return planner.Contracts{
		WrappedNative: addr(c.WrappedNative),
		SwapRouter:    addr(c.SwapRouter),
		SwapQuoter:    addr(c.SwapQuoter),
		SwapFactory:   addr(c.SwapFactory),
		Bridge:        addr(c.Bridge),
	}
}

// openStoreLocked opens the action store. An unusable store only disables
// action history; transactions still run.
func (s *Service) openStoreLocked() *execution.Store {
	if s.store != nil || !s.settings.ActionStoreEnabled {
		return s.store
	}
	store, err := execution.OpenStore(s.settings.ActionStorePath, s.settings.ActionLockPath)
	if err != nil {
		s.log.Warn("action store disabled", zap.String("path", s.settings.ActionStorePath), zap.Error(err))
		return nil
	}
	s.store = store
	return store
}

func (s *Service) actionStore() (*execution.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.settings.ActionStoreEnabled {
		return nil, clierr.New(clierr.CodeUnsupported, "action store is disabled")
	}
	if store := s.openStoreLocked(); store != nil {
		return store, nil
	}
	return nil, clierr.New(clierr.CodeUnavailable, "action store could not be opened")
}

type BalanceRequest struct {
	Address          string
	TokenAddress     string
	AdditionalTokens []string
	IncludeZero      bool
}

func (s *Service) Balance(ctx context.Context, req BalanceRequest) (balances.Result, error) {
	d, err := s.ensure(ctx)
	if err != nil {
		return balances.Result{}, err
	}
	return d.balances.GetBalances(ctx, balances.Request{
		Wallet:      req.Address,
		Token:       strings.TrimSpace(req.TokenAddress),
		ExtraTokens: req.AdditionalTokens,
		IncludeZero: req.IncludeZero,
	})
}

// VaultInfo describes a vault; holder is optional.
func (s *Service) VaultInfo(ctx context.Context, vaultAddress, holder string) (vault.Info, error) {
	var owner *common.Address
	if strings.TrimSpace(holder) != "" {
		addr, err := id.ParseAddress(holder)
		if err != nil {
			return vault.Info{}, err
		}
		owner = &addr
	}
	d, err := s.ensure(ctx)
	if err != nil {
		return vault.Info{}, err
	}
	return d.vaults.Resolve(ctx, vaultAddress, owner)
}

func (s *Service) TokenSupply(ctx context.Context, token string) (lookup.Supply, error) {
	d, err := s.ensure(ctx)
	if err != nil {
		return lookup.Supply{}, err
	}
	return d.lookup.TokenSupply(ctx, token)
}

func (s *Service) TokenInfo(ctx context.Context, token string) (lookup.TokenInfo, error) {
	d, err := s.ensure(ctx)
	if err != nil {
		return lookup.TokenInfo{}, err
	}
	return d.lookup.TokenInfo(ctx, token)
}

func (s *Service) Allowance(ctx context.Context, token, owner, spender string) (lookup.Allowance, error) {
	d, err := s.ensure(ctx)
	if err != nil {
		return lookup.Allowance{}, err
	}
	return d.lookup.Allowance(ctx, token, owner, spender)
}

func (s *Service) Transaction(ctx context.Context, txHash string) (lookup.TransactionResult, error) {
	d, err := s.ensure(ctx)
	if err != nil {
		return lookup.TransactionResult{}, err
	}
	return d.lookup.Transaction(ctx, txHash)
}

func (s *Service) Block(ctx context.Context, blockHash string) (lookup.BlockResult, error) {
	if res, bad := lookup.MalformedBlockHash(blockHash); bad {
		return res, nil
	}
	d, err := s.ensure(ctx)
	if err != nil {
		return lookup.BlockResult{}, err
	}
	return d.lookup.Block(ctx, blockHash)
}
