package schema

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
)

func TestBuildSchema(t *testing.T) {
	root := &cobra.Command{Use: "bera-mcp"}
	child := &cobra.Command{Use: "vault", Short: "vault cmds"}
	leaf := &cobra.Command{Use: "deposit", Short: "deposit assets"}
	leaf.Flags().String("amount", "", "amount in decimal units")
	child.AddCommand(leaf)
	root.AddCommand(child)

	s, err := Build(root, "vault deposit")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "bera-mcp vault deposit" {
		t.Fatalf("unexpected path: %s", s.Path)
	}
	if len(s.Flags) != 1 || s.Flags[0].Name != "amount" {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
	if _, err := Build(root, "vault stake"); err == nil {
		t.Fatal("expected error for unknown command path")
	}
}

func TestToolsSchema(t *testing.T) {
	tools := []mcp.Tool{
		mcp.NewTool("wrap",
			mcp.WithDescription("Wrap native"),
			mcp.WithString("amount", mcp.Required(), mcp.Description("Amount")),
		),
		mcp.NewTool("getBalance",
			mcp.WithDescription("Balances"),
			mcp.WithString("tokenAddress"),
			mcp.WithString("address", mcp.Required()),
			mcp.WithBoolean("includeZeroBalances", mcp.DefaultBool(false)),
		),
	}
	out := Tools(tools)
	if len(out) != 2 || out[0].Name != "getBalance" || out[1].Name != "wrap" {
		t.Fatalf("unexpected tool order: %+v", out)
	}
	params := out[0].Parameters
	if len(params) != 3 || params[0].Name != "address" || params[1].Type != "boolean" {
		t.Fatalf("unexpected parameters: %+v", params)
	}
	if len(out[1].Required) != 1 || out[1].Required[0] != "amount" || out[1].Parameters[0].Description != "Amount" {
		t.Fatalf("unexpected wrap schema: %+v", out[1])
	}
}
