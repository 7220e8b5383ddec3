package execution

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
)

// checkCall guards a built call before anything is signed: the approval
// spender must be the contract being called, and only native-denominated
// operations may attach value, for exactly the requested amount.
func checkCall(op Operation, call Call, amount *big.Int) error {
	if call.Contract.Address == (common.Address{}) {
		return clierr.New(clierr.CodeBlocked, "call target is the zero address")
	}
	if call.Method == "" || call.Category == "" {
		return clierr.New(clierr.CodeInternal, "call is missing method or gas category")
	}
	if op.Spender != nil && *op.Spender != call.Contract.Address {
		return clierr.New(clierr.CodeBlocked,
			fmt.Sprintf("approval spender %s does not match call target %s", op.Spender.Hex(), call.Contract.Address.Hex()))
	}
	if op.Spender != nil && op.AmountAsset.IsNative() {
		return clierr.New(clierr.CodeBlocked, "native currency cannot be approved")
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	if !op.AmountAsset.IsNative() {
		if value.Sign() != 0 {
			return clierr.New(clierr.CodeBlocked, "token operations must not attach native value")
		}
		return nil
	}
	if value.Cmp(amount) != 0 {
		return clierr.New(clierr.CodeBlocked,
			fmt.Sprintf("attached value %s does not match requested amount %s", value, amount))
	}
	return nil
}
