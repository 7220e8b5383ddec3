package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/bera-mcp/internal/config"
	"github.com/ggonzalez94/bera-mcp/internal/model"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"symbol": "HONEY", "balance": "2"}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"symbol"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["symbol"] != "HONEY" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["balance"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestSelectDottedPath(t *testing.T) {
	env := model.Envelope{
		Success: true,
		Data: map[string]any{
			"transactionHash": "0xabc",
			"balanceChanges":  map[string]any{"wethBalance": map[string]any{"change": "1.5"}},
		},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"balanceChanges.wethBalance.change", "missing.path"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out["balanceChanges.wethBalance.change"] != "1.5" {
		t.Fatalf("unexpected projection: %v", out)
	}
}

func TestRenderPlainFlattensNestedObjects(t *testing.T) {
	env := model.Envelope{
		Success: true,
		Data: map[string]any{
			"status":   "success",
			"realized": map[string]any{"spent": map[string]any{"amount": "1"}},
		},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "realized.spent.amount=1 status=success" {
		t.Fatalf("unexpected plain output: %q", got)
	}
}

func TestRenderPlainList(t *testing.T) {
	env := model.Envelope{Success: true, Data: []any{}}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain", ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("unexpected empty list output: %q", buf.String())
	}
}
