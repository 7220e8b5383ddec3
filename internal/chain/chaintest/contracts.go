package chaintest

import (
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bera-mcp/internal/registry"
)

// Token is the state of a fake ERC-20.
type Token struct {
	Address  common.Address
	Symbol   string
	Name     string
	Decimals uint8
	// BrokenMetadata makes symbol, name and decimals revert.
	BrokenMetadata bool

	supply     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
}

// AddToken deploys a fake ERC-20 at addr.
func (n *Node) AddToken(addr common.Address, symbol, name string, decimals uint8) *Token {
	tok := &Token{
		Address:    addr,
		Symbol:     symbol,
		Name:       name,
		Decimals:   decimals,
		supply:     new(big.Int),
		balances:   map[common.Address]*big.Int{},
		allowances: map[[2]common.Address]*big.Int{},
	}
	n.mu.Lock()
	n.tokens[addr] = tok
	n.mu.Unlock()

	erc20 := registry.ERC20ABI
	n.Handle(addr, erc20, "symbol", func(_ *Node, _ Call) ([]any, error) {
		if tok.BrokenMetadata {
			return nil, Revert("symbol not implemented")
		}
		return []any{tok.Symbol}, nil
	})
	n.Handle(addr, erc20, "name", func(_ *Node, _ Call) ([]any, error) {
		if tok.BrokenMetadata {
			return nil, Revert("name not implemented")
		}
		return []any{tok.Name}, nil
	})
	n.Handle(addr, erc20, "decimals", func(_ *Node, _ Call) ([]any, error) {
		if tok.BrokenMetadata {
			return nil, Revert("decimals not implemented")
		}
		return []any{tok.Decimals}, nil
	})
	n.Handle(addr, erc20, "totalSupply", func(_ *Node, _ Call) ([]any, error) {
		return []any{new(big.Int).Set(tok.supply)}, nil
	})
	n.Handle(addr, erc20, "balanceOf", func(_ *Node, c Call) ([]any, error) {
		return []any{new(big.Int).Set(tok.balanceOf(c.Args[0].(common.Address)))}, nil
	})
	n.Handle(addr, erc20, "allowance", func(_ *Node, c Call) ([]any, error) {
		return []any{new(big.Int).Set(tok.allowanceOf(c.Args[0].(common.Address), c.Args[1].(common.Address)))}, nil
	})
	n.Handle(addr, erc20, "approve", func(_ *Node, c Call) ([]any, error) {
		if c.Commit {
			tok.allowances[[2]common.Address{c.From, c.Args[0].(common.Address)}] = new(big.Int).Set(c.Args[1].(*big.Int))
		}
		return []any{true}, nil
	})
	return tok
}

// Mint credits holder and grows the supply.
func (n *Node) Mint(token, holder common.Address, amount *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[token].mint(holder, amount)
}

// SetSupply overrides the total supply without touching balances.
func (n *Node) SetSupply(token common.Address, supply *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[token].supply = new(big.Int).Set(supply)
}

func (n *Node) Approve(token, owner, spender common.Address, amount *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[token].allowances[[2]common.Address{owner, spender}] = new(big.Int).Set(amount)
}

func (n *Node) TokenBalance(token, holder common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return new(big.Int).Set(n.tokens[token].balanceOf(holder))
}

func (n *Node) Allowance(token, owner, spender common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return new(big.Int).Set(n.tokens[token].allowanceOf(owner, spender))
}

func (t *Token) balanceOf(a common.Address) *big.Int {
	if v, ok := t.balances[a]; ok {
		return v
	}
	return new(big.Int)
}

func (t *Token) allowanceOf(owner, spender common.Address) *big.Int {
	if v, ok := t.allowances[[2]common.Address{owner, spender}]; ok {
		return v
	}
	return new(big.Int)
}

func (t *Token) mint(to common.Address, amount *big.Int) {
	t.balances[to] = new(big.Int).Add(t.balanceOf(to), amount)
	t.supply = new(big.Int).Add(t.supply, amount)
}

func (t *Token) burn(from common.Address, amount *big.Int) error {
	if t.balanceOf(from).Cmp(amount) < 0 {
		return Revert("burn amount exceeds balance")
	}
	t.balances[from] = new(big.Int).Sub(t.balanceOf(from), amount)
	t.supply = new(big.Int).Sub(t.supply, amount)
	return nil
}

func (t *Token) transfer(from, to common.Address, amount *big.Int) error {
	if t.balanceOf(from).Cmp(amount) < 0 {
		return Revert("transfer amount exceeds balance")
	}
	t.balances[from] = new(big.Int).Sub(t.balanceOf(from), amount)
	t.balances[to] = new(big.Int).Add(t.balanceOf(to), amount)
	return nil
}

// pull moves amount from owner to to on behalf of spender, consuming allowance.
func (t *Token) pull(owner, spender, to common.Address, amount *big.Int) error {
	if t.allowanceOf(owner, spender).Cmp(amount) < 0 {
		return Revert("insufficient allowance")
	}
	if err := t.transfer(owner, to, amount); err != nil {
		return err
	}
	t.allowances[[2]common.Address{owner, spender}] = new(big.Int).Sub(t.allowanceOf(owner, spender), amount)
	return nil
}

// AddWrappedNative deploys a fake wrapped-native token: deposit mints against
// the attached value and withdraw burns and pays native back.
func (n *Node) AddWrappedNative(addr common.Address, symbol, name string) *Token {
	tok := n.AddToken(addr, symbol, name, 18)
	abiJSON := registry.WrappedNativeABI
	n.Handle(addr, abiJSON, "deposit", func(_ *Node, c Call) ([]any, error) {
		if c.Commit {
			tok.mint(c.From, c.Value)
		}
		return nil, nil
	})
	n.Handle(addr, abiJSON, "withdraw", func(n *Node, c Call) ([]any, error) {
		wad := c.Args[0].(*big.Int)
		if tok.balanceOf(c.From).Cmp(wad) < 0 {
			return nil, Revert("insufficient balance")
		}
		if c.Commit {
			_ = tok.burn(c.From, wad)
			n.native[c.From] = new(big.Int).Add(n.nativeOf(c.From), wad)
		}
		return nil, nil
	})
	return tok
}

// Vault is the state of a fake ERC-4626 vault. Shares are the vault's own
// token; TotalAssets is tracked separately so yield can be simulated.
type Vault struct {
	Shares      *Token
	Asset       common.Address
	TotalAssets *big.Int
	// BrokenTotals makes totalAssets revert.
	BrokenTotals bool
}

func (v *Vault) toAssets(shares *big.Int) *big.Int {
	if v.Shares.supply.Sign() == 0 {
		return new(big.Int).Set(shares)
	}
	out := new(big.Int).Mul(shares, v.TotalAssets)
	return out.Quo(out, v.Shares.supply)
}

func (v *Vault) toShares(assets *big.Int) *big.Int {
	if v.Shares.supply.Sign() == 0 || v.TotalAssets.Sign() == 0 {
		return new(big.Int).Set(assets)
	}
	out := new(big.Int).Mul(assets, v.Shares.supply)
	return out.Quo(out, v.TotalAssets)
}

// AddVault deploys a fake ERC-4626 vault over an existing asset token.
func (n *Node) AddVault(addr, asset common.Address, symbol, name string, decimals uint8) *Vault {
	v := &Vault{Shares: n.AddToken(addr, symbol, name, decimals), Asset: asset, TotalAssets: new(big.Int)}
	abiJSON := registry.ERC4626ABI
	n.Handle(addr, abiJSON, "asset", func(_ *Node, _ Call) ([]any, error) {
		return []any{v.Asset}, nil
	})
	n.Handle(addr, abiJSON, "totalAssets", func(_ *Node, _ Call) ([]any, error) {
		if v.BrokenTotals {
			return nil, Revert("totals unavailable")
		}
		return []any{new(big.Int).Set(v.TotalAssets)}, nil
	})
	n.Handle(addr, abiJSON, "convertToAssets", func(_ *Node, c Call) ([]any, error) {
		return []any{v.toAssets(c.Args[0].(*big.Int))}, nil
	})
	n.Handle(addr, abiJSON, "convertToShares", func(_ *Node, c Call) ([]any, error) {
		return []any{v.toShares(c.Args[0].(*big.Int))}, nil
	})
	n.Handle(addr, abiJSON, "maxWithdraw", func(_ *Node, c Call) ([]any, error) {
		return []any{v.toAssets(v.Shares.balanceOf(c.Args[0].(common.Address)))}, nil
	})
	n.Handle(addr, abiJSON, "maxRedeem", func(_ *Node, c Call) ([]any, error) {
		return []any{new(big.Int).Set(v.Shares.balanceOf(c.Args[0].(common.Address)))}, nil
	})
	n.Handle(addr, abiJSON, "deposit", func(n *Node, c Call) ([]any, error) {
		assets, receiver := c.Args[0].(*big.Int), c.Args[1].(common.Address)
		underlying := n.tokens[v.Asset]
		if underlying.allowanceOf(c.From, addr).Cmp(assets) < 0 {
			return nil, Revert("insufficient allowance")
		}
		if underlying.balanceOf(c.From).Cmp(assets) < 0 {
			return nil, Revert("transfer amount exceeds balance")
		}
		shares := v.toShares(assets)
		if c.Commit {
			_ = underlying.pull(c.From, addr, addr, assets)
			v.Shares.mint(receiver, shares)
			v.TotalAssets = new(big.Int).Add(v.TotalAssets, assets)
		}
		return []any{shares}, nil
	})
	n.Handle(addr, abiJSON, "withdraw", func(n *Node, c Call) ([]any, error) {
		assets, receiver, owner := c.Args[0].(*big.Int), c.Args[1].(common.Address), c.Args[2].(common.Address)
		shares := v.toShares(assets)
		if err := v.exit(n, c, owner, receiver, shares, assets); err != nil {
			return nil, err
		}
		return []any{shares}, nil
	})
	n.Handle(addr, abiJSON, "redeem", func(n *Node, c Call) ([]any, error) {
		shares, receiver, owner := c.Args[0].(*big.Int), c.Args[1].(common.Address), c.Args[2].(common.Address)
		assets := v.toAssets(shares)
		if err := v.exit(n, c, owner, receiver, shares, assets); err != nil {
			return nil, err
		}
		return []any{assets}, nil
	})
	return v
}

func (v *Vault) exit(n *Node, c Call, owner, receiver common.Address, shares, assets *big.Int) error {
	if owner != c.From {
		return Revert("caller is not owner")
	}
	if v.Shares.balanceOf(owner).Cmp(shares) < 0 {
		return Revert("exceeds max")
	}
	if !c.Commit {
		return nil
	}
	_ = v.Shares.burn(owner, shares)
	v.TotalAssets = new(big.Int).Sub(v.TotalAssets, assets)
	return n.tokens[v.Asset].transfer(v.Shares.Address, receiver, assets)
}

// SetVaultAssets sets the vault's total assets and funds the vault with the
// matching underlying balance.
func (n *Node) SetVaultAssets(v *Vault, total *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v.TotalAssets = new(big.Int).Set(total)
	n.tokens[v.Asset].balances[v.Shares.Address] = new(big.Int).Set(total)
}

// Dex is a fake concentrated-liquidity venue: a factory, one pool per pair
// and fee tier, a quoter, and a router that fills at a fixed rate.
type Dex struct {
	Factory common.Address
	Quoter  common.Address
	Router  common.Address
	// RateNum/RateDen is the output per unit of input for every pair.
	RateNum *big.Int
	RateDen *big.Int
	// Fee is the only tier with a pool.
	Fee  uint32
	Pool common.Address
	// Shortfall is subtracted from every fill, to exercise slippage limits.
	Shortfall *big.Int
}

func (d *Dex) quote(amountIn *big.Int) *big.Int {
	out := new(big.Int).Mul(amountIn, d.RateNum)
	return out.Quo(out, d.RateDen)
}

func (n *Node) AddDex(d *Dex) *Dex {
	if d.Shortfall == nil {
		d.Shortfall = new(big.Int)
	}
	n.Handle(d.Factory, registry.UniswapV3FactoryABI, "getPool", func(_ *Node, c Call) ([]any, error) {
		if uint32(c.Args[2].(*big.Int).Uint64()) != d.Fee {
			return []any{common.Address{}}, nil
		}
		return []any{d.Pool}, nil
	})
	n.Handle(d.Pool, registry.UniswapV3PoolABI, "liquidity", func(_ *Node, _ Call) ([]any, error) {
		return []any{big.NewInt(1_000_000_000_000)}, nil
	})
	n.Handle(d.Quoter, registry.UniswapV3QuoterV2ABI, "quoteExactInputSingle", func(_ *Node, c Call) ([]any, error) {
		p := c.Args[0]
		if uint32(field(p, "Fee").(*big.Int).Uint64()) != d.Fee {
			return nil, Revert("pool does not exist")
		}
		out := d.quote(field(p, "AmountIn").(*big.Int))
		return []any{out, new(big.Int), uint32(1), big.NewInt(90_000)}, nil
	})
	n.Handle(d.Router, registry.UniswapV3RouterABI, "exactInputSingle", func(n *Node, c Call) ([]any, error) {
		p := c.Args[0]
		tokenIn := field(p, "TokenIn").(common.Address)
		tokenOut := field(p, "TokenOut").(common.Address)
		recipient := field(p, "Recipient").(common.Address)
		amountIn := field(p, "AmountIn").(*big.Int)
		minOut := field(p, "AmountOutMinimum").(*big.Int)
		if uint32(field(p, "Fee").(*big.Int).Uint64()) != d.Fee {
			return nil, Revert("pool does not exist")
		}
		in, out := n.tokens[tokenIn], n.tokens[tokenOut]
		if in.allowanceOf(c.From, d.Router).Cmp(amountIn) < 0 {
			return nil, Revert("STF")
		}
		if in.balanceOf(c.From).Cmp(amountIn) < 0 {
			return nil, Revert("STF")
		}
		amountOut := new(big.Int).Sub(d.quote(amountIn), d.Shortfall)
		if amountOut.Cmp(minOut) < 0 {
			return nil, Revert("Too little received")
		}
		if c.Commit {
			_ = in.pull(c.From, d.Router, d.Pool, amountIn)
			out.mint(recipient, amountOut)
		}
		return []any{amountOut}, nil
	})
	return d
}

// BridgeDeposit records one accepted bridgeAsset call.
type BridgeDeposit struct {
	DestinationNetwork uint32
	DestinationAddress common.Address
	Amount             *big.Int
	Token              common.Address
}

type Bridge struct {
	Address  common.Address
	Deposits []BridgeDeposit
}

func (n *Node) AddBridge(addr common.Address) *Bridge {
	b := &Bridge{Address: addr}
	n.Handle(addr, registry.UnifiedBridgeABI, "bridgeAsset", func(n *Node, c Call) ([]any, error) {
		dep := BridgeDeposit{
			DestinationNetwork: c.Args[0].(uint32),
			DestinationAddress: c.Args[1].(common.Address),
			Amount:             c.Args[2].(*big.Int),
			Token:              c.Args[3].(common.Address),
		}
		if dep.Token == (common.Address{}) {
			if c.Value.Cmp(dep.Amount) != 0 {
				return nil, Revert("AmountDoesNotMatchMsgValue")
			}
		} else {
			tok := n.tokens[dep.Token]
			if tok.allowanceOf(c.From, addr).Cmp(dep.Amount) < 0 {
				return nil, Revert("insufficient allowance")
			}
			if tok.balanceOf(c.From).Cmp(dep.Amount) < 0 {
				return nil, Revert("transfer amount exceeds balance")
			}
			if c.Commit {
				_ = tok.pull(c.From, addr, addr, dep.Amount)
			}
		}
		if c.Commit {
			b.Deposits = append(b.Deposits, dep)
		}
		return nil, nil
	})
	return b
}

// Deposits returns a copy of the recorded bridge deposits.
func (n *Node) Deposits(b *Bridge) []BridgeDeposit {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]BridgeDeposit(nil), b.Deposits...)
}

// field reads a named member of an ABI-decoded tuple.
func field(tuple any, name string) any {
	return reflect.ValueOf(tuple).FieldByName(name).Interface()
}
