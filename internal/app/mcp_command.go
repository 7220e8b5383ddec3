package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/mcpserver"
	"github.com/ggonzalez94/bera-mcp/internal/schema"
	"github.com/ggonzalez94/bera-mcp/internal/version"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (s *runtimeState) mcpServer() *mcpserver.Server {
	return mcpserver.New(s.service(), mcpserver.Config{
		Name:        version.CLIName,
		Version:     version.CLIVersion,
		EnableTools: s.settings.EnableTools,
		Logger:      s.log.Named("mcp"),
		Metrics:     s.metrics,
	})
}

func (s *runtimeState) newMCPCommand() *cobra.Command {
	root := &cobra.Command{Use: "mcp", Short: "Model Context Protocol server"}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over stdio until the client disconnects",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := s.mcpServer()
			g, gctx := errgroup.WithContext(ctx)
			serveCtx, cancel := context.WithCancel(gctx)
			defer cancel()
			if addr := strings.TrimSpace(s.settings.MetricsAddr); addr != "" {
				g.Go(func() error {
					return s.metrics.Serve(serveCtx, addr, s.log.Named("metrics"))
				})
			}
			g.Go(func() error {
				defer cancel()
				err := srv.ServeStdio(serveCtx, cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil && serveCtx.Err() == nil {
					return clierr.Wrap(clierr.CodeInternal, "serve mcp", err)
				}
				return nil
			})
			err := g.Wait()
			s.log.Info("mcp server stopped", zap.Error(err))
			return err
		},
	}

	tools := &cobra.Command{
		Use:   "tools",
		Short: "List the enabled tools and their parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), schema.Tools(s.mcpServer().Definitions()), nil)
		},
	}

	call := &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Invoke one tool in-process and print its payload",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments := map[string]any{}
			if len(args) == 2 && strings.TrimSpace(args[1]) != "" {
				if err := json.Unmarshal([]byte(args[1]), &arguments); err != nil {
					return clierr.Wrap(clierr.CodeUsage, "parse tool arguments", err)
				}
			}
			res, err := s.mcpServer().Call(cmd.Context(), args[0], arguments)
			if err != nil {
				return err
			}
			payload, err := toolPayload(res)
			if err != nil {
				return err
			}
			if res.IsError {
				return toolError(payload)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), payload, nil)
		},
	}

	root.AddCommand(serve)
	root.AddCommand(tools)
	root.AddCommand(call)
	return root
}

func toolPayload(res *mcp.CallToolResult) (any, error) {
	if len(res.Content) == 0 {
		return nil, clierr.New(clierr.CodeInternal, "tool returned no content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		return nil, clierr.New(clierr.CodeInternal, fmt.Sprintf("unexpected tool content %T", res.Content[0]))
	}
	var payload any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		return text.Text, nil
	}
	return payload, nil
}

// toolError turns a failure payload back into a typed error so the CLI
// exit code matches the tool's errorType.
func toolError(payload any) error {
	m, _ := payload.(map[string]any)
	typ, _ := m["errorType"].(string)
	msg, _ := m["message"].(string)
	if msg == "" {
		msg = "tool failed"
	}
	err := clierr.New(clierr.CodeOf(typ), msg)
	if details, ok := m["details"].(map[string]any); ok {
		for k, v := range details {
			err = err.WithDetail(k, fmt.Sprint(v))
		}
	}
	return err
}
