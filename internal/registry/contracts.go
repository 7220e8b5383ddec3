package registry

// Network describes the chain-level defaults a deployment starts from.
// Everything here can be overridden from configuration.
type Network struct {
	Name           string
	ChainID        int64
	NativeSymbol   string
	NativeName     string
	NativeDecimals uint8
	WrappedNative  string
	// CommonTokens is the built-in balance scan list, in display order.
	CommonTokens []string
	Vaults       []string
	SwapRouter   string
	SwapQuoter   string
	SwapFactory  string
	Bridge       string
}

const (
	BerachainChainID int64 = 80094
	BepoliaChainID   int64 = 80069
)

var networksByChainID = map[int64]Network{
	BerachainChainID: {
		Name:           "Berachain",
		ChainID:        BerachainChainID,
		NativeSymbol:   "BERA",
		NativeName:     "Berachain Token",
		NativeDecimals: 18,
		WrappedNative:  "0x6969696969696969696969696969696969696969",
		CommonTokens: []string{
			"0xFCBD14DC51f0A4d49d5E53C2E0950e0bC26d0Dce", // HONEY
			"0x549943e04f40284185054145c6E4e9568C1D3241", // USDC
			"0x656b95E550C07a9ffe548bd4085c72418Ceb1dba",
			"0xA4aFef880F5cE1f63c9fb48F661E27F8B4216401",
			"0x6969696969696969696969696969696969696969", // WBERA
			"0x0555E30da8f98308EdB960aa94C0Db47230D2B9c", // WBTC
			"0x2F6F07CDcf3588944Bf4C42aC74ff24bF56e7590", // WETH
		},
	},
}

// LookupNetwork returns the built-in defaults for a chain. Unknown chains get
// a generic EVM profile with an 18-decimal native asset and no token list.
func LookupNetwork(chainID int64) (Network, bool) {
	n, ok := networksByChainID[chainID]
	if !ok {
		return Network{ChainID: chainID, NativeSymbol: "ETH", NativeName: "Ether", NativeDecimals: 18}, false
	}
	n.CommonTokens = append([]string(nil), n.CommonTokens...)
	n.Vaults = append([]string(nil), n.Vaults...)
	return n, true
}
