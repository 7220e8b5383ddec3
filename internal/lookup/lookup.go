// Package lookup answers read-only questions about tokens, transactions and
// blocks.
package lookup

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/id"
	"github.com/ggonzalez94/bera-mcp/internal/model"
	"github.com/ggonzalez94/bera-mcp/internal/tokens"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Reader is the slice of the chain facade lookups need.
type Reader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Sender(tx *types.Transaction) (common.Address, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	BlockByHash(ctx context.Context, hash common.Hash) (*chain.Block, error)
}

type Network struct {
	Name    string `json:"name"`
	ChainID int64  `json:"chainId"`
}

type Service struct {
	reader  Reader
	tokens  *tokens.Resolver
	network Network
	now     func() time.Time
}

func New(reader Reader, resolver *tokens.Resolver, network Network) *Service {
	return &Service{reader: reader, tokens: resolver, network: network, now: time.Now}
}

type Supply struct {
	TokenAddress   string `json:"tokenAddress"`
	TokenName      string `json:"tokenName"`
	Symbol         string `json:"symbol"`
	Decimals       uint8  `json:"decimals"`
	TotalSupply    string `json:"totalSupply"`
	RawTotalSupply string `json:"rawTotalSupply"`
}

type TokenMetadata struct {
	FormattedSupply string `json:"formattedSupply"`
	TokenType       string `json:"tokenType"`
	Timestamp       string `json:"timestamp"`
}

type TokenInfo struct {
	Supply
	Network  Network       `json:"network"`
	Metadata TokenMetadata `json:"metadata"`
}

type Allowance struct {
	TokenAddress string `json:"tokenAddress"`
	Symbol       string `json:"symbol"`
	Decimals     uint8  `json:"decimals"`
	Owner        string `json:"owner"`
	Spender      string `json:"spender"`
	Allowance    string `json:"allowance"`
	RawAllowance string `json:"rawAllowance"`
}

// TokenSupply reads a token's metadata and total supply. Metadata falls back
// to defaults; the supply read itself must succeed.
func (s *Service) TokenSupply(ctx context.Context, tokenAddress string) (Supply, error) {
	addr, err := id.ParseAddress(tokenAddress)
	if err != nil {
		return Supply{}, err
	}
	var (
		asset  tokens.Asset
		supply *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		asset = s.tokens.ResolveAddress(gctx, addr)
		return nil
	})
	g.Go(func() error {
		var err error
		supply, err = s.tokens.TotalSupply(gctx, addr)
		return err
	})
	if err := g.Wait(); err != nil {
		return Supply{}, err
	}
	return Supply{
		TokenAddress:   tokenAddress,
		TokenName:      asset.Name,
		Symbol:         asset.Symbol,
		Decimals:       asset.Decimals,
		TotalSupply:    asset.Format(supply),
		RawTotalSupply: supply.String(),
	}, nil
}

func (s *Service) TokenInfo(ctx context.Context, tokenAddress string) (TokenInfo, error) {
	supply, err := s.TokenSupply(ctx, tokenAddress)
	if err != nil {
		return TokenInfo{}, err
	}
	return TokenInfo{
		Supply:  supply,
		Network: s.network,
		Metadata: TokenMetadata{
			FormattedSupply: GroupedAmount(supply.TotalSupply) + " " + supply.Symbol,
			TokenType:       "ERC20",
			Timestamp:       model.Timestamp(s.now()),
		},
	}, nil
}

func (s *Service) Allowance(ctx context.Context, token, owner, spender string) (Allowance, error) {
	tokenAddr, err := id.ParseAddress(token)
	if err != nil {
		return Allowance{}, err
	}
	ownerAddr, err := id.ParseAddress(owner)
	if err != nil {
		return Allowance{}, err
	}
	spenderAddr, err := id.ParseAddress(spender)
	if err != nil {
		return Allowance{}, err
	}
	asset := s.tokens.ResolveAddress(ctx, tokenAddr)
	raw, err := s.tokens.Allowance(ctx, tokenAddr, ownerAddr, spenderAddr)
	if err != nil {
		return Allowance{}, err
	}
	return Allowance{
		TokenAddress: tokenAddr.Hex(),
		Symbol:       asset.Symbol,
		Decimals:     asset.Decimals,
		Owner:        ownerAddr.Hex(),
		Spender:      spenderAddr.Hex(),
		Allowance:    asset.Format(raw),
		RawAllowance: raw.String(),
	}, nil
}

// GroupedAmount renders a decimal string with thousands separators and at
// most three fraction digits.
func GroupedAmount(amount string) string {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return amount
	}
	s := d.Round(3).String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + b.String()
	if hasFrac {
		out += "." + frac
	}
	return out
}

func parseHash(s, what string) (common.Hash, error) {
	v := strings.TrimSpace(s)
	if !strings.HasPrefix(v, "0x") || len(v) != 66 {
		return common.Hash{}, clierr.New(clierr.CodeUsage, "invalid "+what+" hash: "+s)
	}
	for _, r := range v[2:] {
		if !isHex(r) {
			return common.Hash{}, clierr.New(clierr.CodeUsage, "invalid "+what+" hash: "+s)
		}
	}
	return common.HexToHash(v), nil
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
