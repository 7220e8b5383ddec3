package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// isolate keeps config, dotenv and action store lookups inside a temp dir.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_STATE_HOME", dir)
	t.Setenv("BERA_CONFIG", "")
	t.Setenv("BERA_RPC_URL", "")
	t.Setenv("BERA_ENABLE_TOOLS", "")
	t.Setenv("BERA_OUTPUT", "")
	t.Setenv("BERA_CHAIN_ID", "")
	t.Setenv("BERA_LOG_LEVEL", "")
	t.Chdir(dir)
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("bera-mcp vault deposit"); got != "vault deposit" {
		t.Fatalf("unexpected trim result: %s", got)
	}
}

func TestSplitCSV(t *testing.T) {
	items := splitCSV("0xAbC, 0xdef ,")
	if len(items) != 2 || items[0] != "0xAbC" || items[1] != "0xdef" {
		t.Fatalf("unexpected split: %#v", items)
	}
}

func TestRunnerSchemaForSubcommand(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"schema", "vault", "deposit", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var out map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, stdout.String())
	}
	if out["path"] != "bera-mcp vault deposit" {
		t.Fatalf("unexpected schema path: %v", out["path"])
	}
}

func TestRunnerErrorEnvelopeIgnoresResultsOnly(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"wrap", "--amount", "1", "--enable-commands", "balance", "--results-only"})
	if code != 16 {
		t.Fatalf("expected exit 16, got %d stderr=%s", code, stderr.String())
	}
	var env map[string]any
	if err := json.Unmarshal(stderr.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse error envelope: %v output=%s", err, stderr.String())
	}
	if env["success"] != false {
		t.Fatalf("expected success=false, got %v", env["success"])
	}
	body, _ := env["error"].(map[string]any)
	if body["type"] != "command_blocked" {
		t.Fatalf("unexpected error body: %v", body)
	}
	if stdout.Len() != 0 {
		t.Fatalf("expected empty stdout, got %s", stdout.String())
	}
}

func TestRunnerMissingFlagIsUsageError(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	if code := r.Run([]string{"swap", "--from", "native"}); code != 2 {
		t.Fatalf("expected exit 2, got %d stderr=%s", code, stderr.String())
	}
}

func TestRunnerMCPTools(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"mcp", "tools", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var tools []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &tools); err != nil {
		t.Fatalf("failed to parse tools: %v output=%s", err, stdout.String())
	}
	if len(tools) != 14 {
		t.Fatalf("expected 14 tools, got %d", len(tools))
	}
}

func TestRunnerMCPCallMalformedBlockHash(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"mcp", "call", "getBlockInfo", `{"blockHash":"1234"}`, "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var out map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse payload: %v output=%s", err, stdout.String())
	}
	if out["status"] != "error" || out["requestedBlockHash"] != "1234" {
		t.Fatalf("unexpected payload: %v", out)
	}
}

func TestRunnerMCPCallFailureMapsExitCode(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"mcp", "call", "swap", `{"tokenIn":"native"}`})
	if code != 2 {
		t.Fatalf("expected usage exit code, got %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "Failed to swap tokens") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
}

func TestRunnerVersion(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	if code := r.Run([]string{"version"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) == "" {
		t.Fatal("expected version output")
	}
}
