package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/registry"
)

// Family tags a contract with the method set it is allowed to expose.
type Family string

const (
	FamilyERC20         Family = "erc20"
	FamilyWrappedNative Family = "wrapped_native"
	FamilyVault         Family = "vault"
	FamilyRouter        Family = "swap_router"
	FamilyQuoter        Family = "swap_quoter"
	FamilyFactory       Family = "swap_factory"
	FamilyPool          Family = "swap_pool"
	FamilyBridge        Family = "bridge"
)

var familyABIs = map[Family]abi.ABI{
	FamilyERC20:         mustFamilyABI(registry.ERC20ABI),
	FamilyWrappedNative: mustFamilyABI(registry.ERC20ABI, registry.WrappedNativeABI),
	FamilyVault:         mustFamilyABI(registry.ERC20ABI, registry.ERC4626ABI),
	FamilyRouter:        mustFamilyABI(registry.UniswapV3RouterABI),
	FamilyQuoter:        mustFamilyABI(registry.UniswapV3QuoterV2ABI),
	FamilyFactory:       mustFamilyABI(registry.UniswapV3FactoryABI),
	FamilyPool:          mustFamilyABI(registry.UniswapV3PoolABI),
	FamilyBridge:        mustFamilyABI(registry.UnifiedBridgeABI),
}

// Contract is a deployed address bound to a family.
type Contract struct {
	Family  Family
	Address common.Address
}

func Bind(family Family, address common.Address) Contract {
	return Contract{Family: family, Address: address}
}

func (c Contract) String() string {
	return fmt.Sprintf("%s(%s)", c.Family, c.Address.Hex())
}

// Methods lists the signatures this contract may be called with.
func (c Contract) Methods() []string {
	parsed, ok := familyABIs[c.Family]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(parsed.Methods))
	for _, m := range parsed.Methods {
		out = append(out, m.Sig)
	}
	return out
}

func (c Contract) method(name string) (abi.ABI, abi.Method, error) {
	parsed, ok := familyABIs[c.Family]
	if !ok {
		return abi.ABI{}, abi.Method{}, clierr.New(clierr.CodeInternal, fmt.Sprintf("unknown contract family %q", c.Family))
	}
	m, ok := parsed.Methods[name]
	if !ok {
		return abi.ABI{}, abi.Method{}, clierr.New(clierr.CodeInternal, fmt.Sprintf("method %s is not in the %s signature set", name, c.Family))
	}
	return parsed, m, nil
}

// Pack encodes calldata for a method of the contract's family.
func (c Contract) Pack(name string, args ...any) ([]byte, error) {
	parsed, _, err := c.method(name)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(name, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s calldata", name), err)
	}
	return data, nil
}

// Unpack decodes the return data of a method.
func (c Contract) Unpack(name string, data []byte) ([]any, error) {
	parsed, _, err := c.method(name)
	if err != nil {
		return nil, err
	}
	return parsed.Unpack(name, data)
}

func mustFamilyABI(fragments ...string) abi.ABI {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		body := strings.TrimSpace(f)
		body = strings.TrimPrefix(body, "[")
		body = strings.TrimSuffix(body, "]")
		parts = append(parts, strings.TrimSpace(body))
	}
	parsed, err := abi.JSON(strings.NewReader("[" + strings.Join(parts, ",") + "]"))
	if err != nil {
		panic(err)
	}
	return parsed
}
