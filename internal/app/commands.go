package app

import (
	"github.com/ggonzalez94/bera-mcp/internal/service"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	var req service.BalanceRequest
	var extra string
	cmd := &cobra.Command{
		Use:   "balance <address>",
		Short: "Native and ERC20 balances for a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Address = args[0]
			req.AdditionalTokens = splitCSV(extra)
			data, err := s.service().Balance(cmd.Context(), req)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	cmd.Flags().StringVar(&req.TokenAddress, "token", "", "Only report this token")
	cmd.Flags().StringVar(&extra, "tokens", "", "Additional token addresses to scan (comma-separated)")
	cmd.Flags().BoolVar(&req.IncludeZero, "include-zero", false, "Include tokens with zero balance")
	return cmd
}

func (s *runtimeState) newTokenCommand() *cobra.Command {
	root := &cobra.Command{Use: "token", Short: "ERC20 token lookups"}

	root.AddCommand(&cobra.Command{
		Use:   "info <token>",
		Short: "Token metadata and total supply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := s.service().TokenInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "supply <token>",
		Short: "Token total supply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := s.service().TokenSupply(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "allowance <token> <owner> <spender>",
		Short: "Remaining allowance granted by owner to spender",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := s.service().Allowance(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	})
	return root
}

func (s *runtimeState) newVaultCommand() *cobra.Command {
	root := &cobra.Command{Use: "vault", Short: "ERC-4626 vault commands"}

	var holder string
	info := &cobra.Command{
		Use:   "info <vault>",
		Short: "Vault totals, share price and an optional holder position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := s.service().VaultInfo(cmd.Context(), args[0], holder)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	info.Flags().StringVar(&holder, "holder", "", "Include this wallet's share position")
	root.AddCommand(info)

	root.AddCommand(s.vaultOpCommand("deposit", "Deposit underlying assets", "amount", (*service.Service).VaultDeposit))
	root.AddCommand(s.vaultOpCommand("withdraw", "Withdraw underlying assets", "amount", (*service.Service).VaultWithdraw))
	root.AddCommand(s.vaultOpCommand("redeem", "Redeem vault shares", "shares", (*service.Service).VaultRedeem))
	return root
}

func (s *runtimeState) newTxCommand() *cobra.Command {
	root := &cobra.Command{Use: "tx", Short: "Transaction lookups"}
	root.AddCommand(&cobra.Command{
		Use:   "get <hash>",
		Short: "Transaction details with receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := s.service().Transaction(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	})
	return root
}

func (s *runtimeState) newBlockCommand() *cobra.Command {
	root := &cobra.Command{Use: "block", Short: "Block lookups"}
	root.AddCommand(&cobra.Command{
		Use:   "get <hash>",
		Short: "Block header summary by hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := s.service().Block(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	})
	return root
}
