package balances

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/id"
	"github.com/ggonzalez94/bera-mcp/internal/model"
	"github.com/ggonzalez94/bera-mcp/internal/tokens"
	"github.com/ggonzalez94/bera-mcp/internal/vault"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 8
	ZeroBalanceMessage = "Requested token has zero balance"
)

type Request struct {
	Wallet      string
	Token       string
	ExtraTokens []string
	IncludeZero bool
}

type Native struct {
	Symbol     string `json:"symbol"`
	Balance    string `json:"balance"`
	RawBalance string `json:"rawBalance"`
	HasBalance bool   `json:"hasBalance"`
}

type Token struct {
	TokenAddress string      `json:"tokenAddress"`
	Symbol       string      `json:"symbol"`
	Name         string      `json:"name"`
	Balance      string      `json:"balance"`
	RawBalance   string      `json:"rawBalance"`
	Decimals     uint8       `json:"decimals"`
	HasBalance   bool        `json:"hasBalance"`
	IsVault      bool        `json:"isVault"`
	VaultInfo    *vault.Info `json:"vaultInfo"`
}

type Result struct {
	Address     string  `json:"address"`
	NativeToken Native  `json:"nativeToken"`
	TokenCount  int     `json:"tokenCount"`
	Tokens      []Token `json:"tokens"`
	Message     string  `json:"message,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

type Config struct {
	// BuiltIn is the scan list, in display order.
	BuiltIn     []string
	Vaults      []string
	Concurrency int
	Logger      *zap.Logger
}

type Aggregator struct {
	tokens      *tokens.Resolver
	vaults      *vault.Resolver
	builtIn     []string
	knownVaults map[common.Address]struct{}
	concurrency int
	log         *zap.Logger
	now         func() time.Time
}

func New(tokenResolver *tokens.Resolver, vaultResolver *vault.Resolver, cfg Config) *Aggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	known := make(map[common.Address]struct{}, len(cfg.Vaults))
	for _, v := range cfg.Vaults {
		if id.IsAddress(v) {
			known[common.HexToAddress(v)] = struct{}{}
		}
	}
	return &Aggregator{
		tokens:      tokenResolver,
		vaults:      vaultResolver,
		builtIn:     append([]string(nil), cfg.BuiltIn...),
		knownVaults: known,
		concurrency: cfg.Concurrency,
		log:         cfg.Logger,
		now:         time.Now,
	}
}

// GetBalances reports the wallet's native balance and its token balances.
// Per-token failures drop that token; only a bad wallet address or an
// unreadable native balance fails the request.
func (a *Aggregator) GetBalances(ctx context.Context, req Request) (Result, error) {
	wallet, err := id.ParseAddress(req.Wallet)
	if err != nil {
		return Result{}, err
	}
	nativeRaw, err := a.tokens.Balance(ctx, a.tokens.Native(), wallet)
	if err != nil {
		return Result{}, err
	}
	native := a.tokens.Native()
	res := Result{
		Address: req.Wallet,
		NativeToken: Native{
			Symbol:     native.Symbol,
			Balance:    native.Format(nativeRaw),
			RawBalance: nativeRaw.String(),
			HasBalance: nativeRaw.Sign() != 0,
		},
		Tokens: []Token{},
	}

	if req.Token != "" {
		tok, err := a.single(ctx, wallet, req.Token, req.IncludeZero)
		if err != nil {
			return Result{}, err
		}
		if tok == nil {
			res.Message = ZeroBalanceMessage
		} else {
			res.Tokens = append(res.Tokens, *tok)
		}
		return a.finish(res), nil
	}

	candidates := Candidates(a.builtIn, req.ExtraTokens)
	slots := make([]*Token, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, candidate := range candidates {
		g.Go(func() error {
			addr := common.HexToAddress(candidate)
			raw, err := a.tokens.BalanceOf(gctx, addr, wallet)
			if err != nil {
				a.log.Debug("dropping token: balance unreadable",
					zap.String("wallet", wallet.Hex()),
					zap.String("token", candidate),
					zap.Error(err),
				)
				return nil
			}
			if raw.Sign() == 0 && !req.IncludeZero {
				return nil
			}
			tok := a.describe(gctx, wallet, candidate, addr, raw)
			slots[i] = &tok
			return nil
		})
	}
	_ = g.Wait()

	for _, tok := range slots {
		if tok != nil {
			res.Tokens = append(res.Tokens, *tok)
		}
	}
	return a.finish(res), nil
}

// single handles an explicit token. A zero balance that will be filtered
// returns nil before any metadata is read.
func (a *Aggregator) single(ctx context.Context, wallet common.Address, token string, includeZero bool) (*Token, error) {
	addr, err := id.ParseAddress(token)
	if err != nil {
		return nil, err
	}
	raw, err := a.tokens.BalanceOf(ctx, addr, wallet)
	if err != nil {
		return nil, err
	}
	if raw.Sign() == 0 && !includeZero {
		return nil, nil
	}
	tok := a.describe(ctx, wallet, token, addr, raw)
	return &tok, nil
}

func (a *Aggregator) describe(ctx context.Context, wallet common.Address, input string, addr common.Address, raw *big.Int) Token {
	asset := a.tokens.ResolveAddress(ctx, addr)
	tok := Token{
		TokenAddress: input,
		Symbol:       asset.Symbol,
		Name:         asset.Name,
		Balance:      asset.Format(raw),
		RawBalance:   raw.String(),
		Decimals:     asset.Decimals,
		HasBalance:   raw.Sign() != 0,
	}
	if _, ok := a.knownVaults[addr]; !ok || a.vaults == nil {
		return tok
	}
	tok.IsVault = true
	info, err := a.vaults.ResolveAddress(ctx, addr, &wallet)
	if err != nil {
		a.log.Warn("vault detail unavailable",
			zap.String("wallet", wallet.Hex()),
			zap.String("token", input),
			zap.Error(err),
		)
		return tok
	}
	tok.VaultInfo = &info
	return tok
}

func (a *Aggregator) finish(res Result) Result {
	res.TokenCount = len(res.Tokens)
	res.Timestamp = model.Timestamp(a.now())
	return res
}

// Candidates returns the built-in list followed by each valid extra address
// not already present. Matching is on the exact string, so a differently
// cased copy of a built-in address is kept as a separate candidate.
func Candidates(builtIn, extras []string) []string {
	out := make([]string, 0, len(builtIn)+len(extras))
	seen := make(map[string]struct{}, len(builtIn)+len(extras))
	for _, addr := range builtIn {
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	for _, addr := range extras {
		if _, dup := seen[addr]; dup || !id.IsAddress(addr) {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
