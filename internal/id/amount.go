package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^(?:[0-9]+(?:\.[0-9]+)?|\.[0-9]+)$`)

// ToFormatted renders raw base units as a decimal string at the given precision.
// Trailing fractional zeros are trimmed; negative values keep their sign.
func ToFormatted(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	negative := raw.Sign() < 0
	s := new(big.Int).Abs(raw).String()
	if decimals > 0 {
		d := int(decimals)
		if len(s) <= d {
			s = strings.Repeat("0", d-len(s)+1) + s
		}
		intPart := s[:len(s)-d]
		fracPart := strings.TrimRight(s[len(s)-d:], "0")
		s = intPart
		if fracPart != "" {
			s = intPart + "." + fracPart
		}
	}
	if negative {
		return "-" + s
	}
	return s
}

// ToRaw parses a non-negative decimal string into base units. It never rounds:
// input with more fractional digits than decimals is rejected.
func ToRaw(formatted string, decimals uint8) (*big.Int, error) {
	clean := strings.TrimSpace(formatted)
	if !decimalPattern.MatchString(clean) {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("invalid amount %q: expected a non-negative decimal like 1.23", formatted))
	}
	intPart, fracPart, _ := strings.Cut(clean, ".")
	if len(fracPart) > int(decimals) {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("amount %q exceeds %d decimal places", formatted, decimals))
	}
	combined := strings.TrimLeft(intPart+fracPart+strings.Repeat("0", int(decimals)-len(fracPart)), "0")
	if combined == "" {
		return new(big.Int), nil
	}
	out, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("invalid amount %q", formatted))
	}
	return out, nil
}

// ParsePositive is ToRaw plus the call-site policy that transfers must move a
// strictly positive amount.
func ParsePositive(formatted string, decimals uint8) (*big.Int, error) {
	raw, err := ToRaw(formatted, decimals)
	if err != nil {
		return nil, err
	}
	if raw.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeInvalidAmount, "amount must be greater than zero")
	}
	return raw, nil
}
