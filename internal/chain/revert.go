package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
)

// decodeRevertData turns revert return data into a readable reason:
// Error(string), Panic(uint256), or the selector of a custom error.
func decodeRevertData(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil && reason != "" {
		return reason
	}
	return fmt.Sprintf("custom error 0x%s", hex.EncodeToString(data[:4]))
}

func decodeRevertFromError(err error) string {
	if err == nil {
		return ""
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		switch v := dataErr.ErrorData().(type) {
		case string:
			if reason := decodeRevertData(common.FromHex(v)); reason != "" {
				return reason
			}
		case []byte:
			if reason := decodeRevertData(v); reason != "" {
				return reason
			}
		}
	}
	msg := err.Error()
	if _, after, ok := strings.Cut(msg, "execution reverted:"); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func wrapEVMExecutionError(code clierr.Code, message string, err error) error {
	if reason := decodeRevertFromError(err); reason != "" {
		return clierr.Wrap(code, fmt.Sprintf("%s (revert: %s)", message, reason), err)
	}
	return clierr.Wrap(code, message, err)
}
