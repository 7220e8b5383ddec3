package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	"github.com/ggonzalez94/bera-mcp/internal/id"
	"github.com/ggonzalez94/bera-mcp/internal/tokens"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// percentScale is the fixed-point resolution of shareOfVaultPercent.
const percentScale = 4

// Info is a vault's state and, when a holder was given, the holder's position.
type Info struct {
	VaultAddress        string       `json:"vaultAddress"`
	Symbol              string       `json:"symbol"`
	Name                string       `json:"name"`
	Decimals            uint8        `json:"decimals"`
	UnderlyingAsset     tokens.Asset `json:"underlyingAsset"`
	TotalAssets         string       `json:"totalAssets"`
	RawTotalAssets      string       `json:"rawTotalAssets"`
	TotalSupply         string       `json:"totalSupply"`
	RawTotalSupply      string       `json:"rawTotalSupply"`
	SharePrice          string       `json:"sharePrice"`
	ShareBalance        string       `json:"shareBalance,omitempty"`
	RawShareBalance     string       `json:"rawShareBalance,omitempty"`
	UnderlyingValue     string       `json:"underlyingValue,omitempty"`
	RawUnderlyingValue  string       `json:"rawUnderlyingValue,omitempty"`
	ShareOfVaultPercent string       `json:"shareOfVaultPercent,omitempty"`
}

type Reader interface {
	tokens.Reader
	CallAddress(ctx context.Context, contract chain.Contract, method string, args ...any) (common.Address, error)
}

type Resolver struct {
	chain  Reader
	tokens *tokens.Resolver
}

func NewResolver(reader Reader, resolver *tokens.Resolver) *Resolver {
	return &Resolver{chain: reader, tokens: resolver}
}

// Resolve reads the vault, its underlying asset and optionally the holder's
// position. The holder's value always comes from convertToAssets.
func (r *Resolver) Resolve(ctx context.Context, vaultAddress string, holder *common.Address) (Info, error) {
	addr, err := id.ParseAddress(vaultAddress)
	if err != nil {
		return Info{}, err
	}
	return r.ResolveAddress(ctx, addr, holder)
}

func (r *Resolver) ResolveAddress(ctx context.Context, addr common.Address, holder *common.Address) (Info, error) {
	v := chain.Bind(chain.FamilyVault, addr)
	var (
		meta        tokens.Asset
		asset       common.Address
		totalAssets *big.Int
		totalSupply *big.Int
		shares      *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		meta = r.tokens.ResolveAddress(gctx, addr)
		return nil
	})
	g.Go(func() (err error) {
		asset, err = r.chain.CallAddress(gctx, v, "asset")
		return err
	})
	g.Go(func() (err error) {
		totalAssets, err = r.chain.CallBigInt(gctx, v, "totalAssets")
		return err
	})
	g.Go(func() (err error) {
		totalSupply, err = r.chain.CallBigInt(gctx, v, "totalSupply")
		return err
	})
	if holder != nil {
		g.Go(func() (err error) {
			shares, err = r.chain.CallBigInt(gctx, v, "balanceOf", *holder)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Info{}, err
	}

	underlying := r.tokens.ResolveAddress(ctx, asset)
	info := Info{
		VaultAddress:    addr.Hex(),
		Symbol:          meta.Symbol,
		Name:            meta.Name,
		Decimals:        meta.Decimals,
		UnderlyingAsset: underlying,
		TotalAssets:     underlying.Format(totalAssets),
		RawTotalAssets:  totalAssets.String(),
		TotalSupply:     meta.Format(totalSupply),
		RawTotalSupply:  totalSupply.String(),
		SharePrice:      underlying.Format(SharePrice(totalAssets, totalSupply, meta.Decimals, underlying.Decimals)),
	}
	if holder == nil {
		return info, nil
	}

	value := new(big.Int)
	if shares.Sign() > 0 {
		converted, err := r.chain.CallBigInt(ctx, v, "convertToAssets", shares)
		if err != nil {
			return Info{}, err
		}
		value = converted
	}
	info.ShareBalance = meta.Format(shares)
	info.RawShareBalance = shares.String()
	info.UnderlyingValue = underlying.Format(value)
	info.RawUnderlyingValue = value.String()
	info.ShareOfVaultPercent = SharePercent(shares, totalSupply)
	return info, nil
}

// SharePrice is the raw underlying amount backing one whole share. An empty
// vault prices a share at exactly one unit of the underlying asset.
func SharePrice(totalAssets, totalSupply *big.Int, shareDecimals, assetDecimals uint8) *big.Int {
	if totalSupply.Sign() == 0 {
		return pow10(assetDecimals)
	}
	price := new(big.Int).Mul(totalAssets, pow10(shareDecimals))
	return price.Quo(price, totalSupply)
}

// SharePercent renders shares/totalSupply as a percentage truncated to four
// decimal places, computed in integers.
func SharePercent(shares, totalSupply *big.Int) string {
	if totalSupply.Sign() == 0 {
		return decimal.Zero.StringFixed(percentScale)
	}
	scaled := new(big.Int).Mul(shares, big.NewInt(100))
	scaled.Mul(scaled, pow10(percentScale))
	scaled.Quo(scaled, totalSupply)
	return decimal.NewFromBigInt(scaled, -percentScale).StringFixed(percentScale)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
