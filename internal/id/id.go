package id

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
)

// IsAddress reports whether s is a 20-byte hex address, with or without the
// 0x prefix. Mixed-case input must carry a valid EIP-55 checksum.
func IsAddress(s string) bool {
	body := s
	if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		body = body[2:]
	}
	if len(body) != 2*common.AddressLength {
		return false
	}
	hasLower, hasUpper := false, false
	for _, c := range body {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
			hasLower = true
		case c >= 'A' && c <= 'F':
			hasUpper = true
		default:
			return false
		}
	}
	if hasLower && hasUpper {
		return common.HexToAddress(body).Hex() == "0x"+body
	}
	return true
}

// ParseAddress validates and decodes an address.
func ParseAddress(s string) (common.Address, error) {
	clean := strings.TrimSpace(s)
	if !IsAddress(clean) {
		return common.Address{}, clierr.New(clierr.CodeInvalidAddress, fmt.Sprintf("invalid address: %q", s))
	}
	return common.HexToAddress(clean), nil
}

// CAIP2 returns the eip155 chain reference used in persisted actions.
func CAIP2(chainID int64) string {
	return fmt.Sprintf("eip155:%d", chainID)
}
