package registry

import (
	"fmt"
	"strings"
)

// Public RPC endpoints used when no rpc_url is configured for the chain.
var defaultRPCByChainID = map[int64]string{
	1:                "https://eth.llamarpc.com",
	8453:             "https://mainnet.base.org",
	42161:            "https://arb1.arbitrum.io/rpc",
	BepoliaChainID:   "https://bepolia.rpc.berachain.com",
	BerachainChainID: "https://rpc.berachain.com",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if value, ok := DefaultRPCURL(chainID); ok {
		return value, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d; set BERA_RPC_URL or rpc_url", chainID)
}
