package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
)

// CheckCommandAllowed enforces --enable-commands. An entry allows its own
// path and every command below it, so "vault" allows "vault deposit".
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		norm := normalize(allowed)
		if norm == normPath || strings.HasPrefix(normPath, norm+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy").WithDetail("command", normPath)
}

// ToolEnabled reports whether a tool passes the enable_tools allowlist.
// Tool names compare case-insensitively.
func ToolEnabled(allowlist []string, tool string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, allowed := range allowlist {
		if strings.EqualFold(strings.TrimSpace(allowed), tool) {
			return true
		}
	}
	return false
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
