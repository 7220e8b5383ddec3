package app

import (
	"context"
	"strings"

	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/execution"
	"github.com/ggonzalez94/bera-mcp/internal/execution/planner"
	"github.com/ggonzalez94/bera-mcp/internal/service"
	"github.com/spf13/cobra"
)

type vaultOp func(*service.Service, context.Context, planner.VaultRequest) (execution.Outcome, error)

func (s *runtimeState) vaultOpCommand(name, short, amountFlag string, op vaultOp) *cobra.Command {
	var req planner.VaultRequest
	cmd := &cobra.Command{
		Use:   name + " <vault>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Vault = args[0]
			data, err := op(s.service(), cmd.Context(), req)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	cmd.Flags().StringVar(&req.Amount, amountFlag, "", "Quantity in decimal units")
	cmd.Flags().StringVar(&req.Receiver, "receiver", "", "Recipient (defaults to the signer)")
	_ = cmd.MarkFlagRequired(amountFlag)
	return cmd
}

func (s *runtimeState) newWrapCommand() *cobra.Command {
	var amount string
	cmd := &cobra.Command{
		Use:   "wrap",
		Short: "Wrap the native token into its ERC20 form",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := s.service().Wrap(cmd.Context(), amount)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in decimal units")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newUnwrapCommand() *cobra.Command {
	var amount string
	cmd := &cobra.Command{
		Use:   "unwrap",
		Short: "Unwrap the ERC20 form back into the native token",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := s.service().Unwrap(cmd.Context(), amount)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in decimal units")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	var req planner.SwapRequest
	var fee uint32
	var slippage int64
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap an exact input amount through the concentrated-liquidity router",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Fee = fee
			if cmd.Flags().Changed("slippage-bps") {
				req.SlippageBps = &slippage
			}
			data, err := s.service().Swap(cmd.Context(), req)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	cmd.Flags().StringVar(&req.TokenIn, "from", "", "Token to sell")
	cmd.Flags().StringVar(&req.TokenOut, "to", "", "Token to buy")
	cmd.Flags().StringVar(&req.Amount, "amount", "", "Input amount in decimal units")
	cmd.Flags().Uint32Var(&fee, "fee", 0, "Pool fee tier; the best quoting tier is used when unset")
	cmd.Flags().Int64Var(&slippage, "slippage-bps", 0, "Slippage tolerance in basis points (default from config)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newBridgeCommand() *cobra.Command {
	var req planner.BridgeRequest
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Bridge the native token or an ERC20 to another network",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := s.service().Bridge(cmd.Context(), req)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	cmd.Flags().StringVar(&req.Token, "token", "native", "Token address, or \"native\"")
	cmd.Flags().StringVar(&req.Amount, "amount", "", "Amount in decimal units")
	cmd.Flags().Uint32Var(&req.DestinationNetwork, "destination-network", 0, "Destination network id of the bridge")
	cmd.Flags().StringVar(&req.DestinationAddress, "destination-address", "", "Recipient on the destination network (defaults to the signer)")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("destination-network")
	return cmd
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Recorded transaction lifecycles"}

	var status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded actions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := s.service().Actions(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status: running, completed or failed")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum actions to return")

	var actionID string
	statusCmd := &cobra.Command{
		Use:   "status [action-id]",
		Short: "Show one recorded action",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(actionID)
			if len(args) == 1 {
				if id != "" && id != args[0] {
					return clierr.New(clierr.CodeUsage, "--action-id and the positional id differ")
				}
				id = args[0]
			}
			item, err := s.service().Action(cmd.Context(), id)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), item, nil)
		},
	}
	statusCmd.Flags().StringVar(&actionID, "action-id", "", "Action identifier")

	root.AddCommand(list)
	root.AddCommand(statusCmd)
	return root
}
