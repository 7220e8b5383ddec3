package mcpserver

import (
	"context"
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/execution"
	"github.com/ggonzalez94/bera-mcp/internal/execution/planner"
	"github.com/ggonzalez94/bera-mcp/internal/service"
	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) definitions() []toolDef {
	settings := s.svc.Settings()
	native := settings.NativeSymbol
	network := settings.NetworkName
	if network == "" {
		network = "the configured network"
	}

	return []toolDef{
		{
			tool: mcp.NewTool("getBalance",
				mcp.WithDescription(fmt.Sprintf("Get native %s and ERC20 token balances for a wallet on %s", native, network)),
				mcp.WithString("address", mcp.Required(), mcp.Description("Wallet address to check token balances for")),
				mcp.WithString("tokenAddress", mcp.Description("Optional: Specific token address to check (if only checking one token)")),
				mcp.WithArray("additionalTokens", mcp.Description("Optional: Additional token addresses to check"), mcp.Items(map[string]any{"type": "string"})),
				mcp.WithBoolean("includeZeroBalances", mcp.DefaultBool(false), mcp.Description("Whether to include tokens with zero balance")),
			),
			failure: func(req mcp.CallToolRequest) string {
				if strings.TrimSpace(req.GetString("tokenAddress", "")) != "" {
					return "get token balance"
				}
				return "get wallet token balances"
			},
			echo: []string{"address", "tokenAddress"},
			run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
				address, err := required(req, "address")
				if err != nil {
					return nil, err
				}
				return s.svc.Balance(ctx, service.BalanceRequest{
					Address:          address,
					TokenAddress:     req.GetString("tokenAddress", ""),
					AdditionalTokens: req.GetStringSlice("additionalTokens", nil),
					IncludeZero:      req.GetBool("includeZeroBalances", false),
				})
			},
		},
		{
			tool: mcp.NewTool("getVaultInfo",
				mcp.WithDescription("Get ERC-4626 vault totals, share price and optionally a holder's position"),
				mcp.WithString("vaultAddress", mcp.Required(), mcp.Description("Vault contract address")),
				mcp.WithString("holderAddress", mcp.Description("Optional: wallet whose share position to include")),
			),
			failure: fixed("get vault information"),
			echo:    []string{"vaultAddress", "holderAddress"},
			run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
				vaultAddress, err := required(req, "vaultAddress")
				if err != nil {
					return nil, err
				}
				return s.svc.VaultInfo(ctx, vaultAddress, req.GetString("holderAddress", ""))
			},
		},
		{
			tool: mcp.NewTool("getTokenSupply",
				mcp.WithDescription(fmt.Sprintf("Get the total supply of an ERC20 token on %s", network)),
				mcp.WithString("tokenAddress", mcp.Required(), mcp.Description("ERC20 token contract address")),
			),
			failure: fixed("get token supply"),
			echo:    []string{"tokenAddress"},
			run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
				token, err := required(req, "tokenAddress")
				if err != nil {
					return nil, err
				}
				return s.svc.TokenSupply(ctx, token)
			},
		},
		{
			tool: mcp.NewTool("getTokenInfo",
				mcp.WithDescription("Get detailed information about an ERC20 token"),
				mcp.WithString("tokenAddress", mcp.Required(), mcp.Description(fmt.Sprintf("ERC20 token contract address on %s", network))),
			),
			failure: fixed("get token information"),
			echo:    []string{"tokenAddress"},
			run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
				token, err := required(req, "tokenAddress")
				if err != nil {
					return nil, err
				}
				return s.svc.TokenInfo(ctx, token)
			},
		},
		{
			tool: mcp.NewTool("getAllowance",
				mcp.WithDescription("Get how much of an owner's ERC20 balance a spender may transfer"),
				mcp.WithString("tokenAddress", mcp.Required(), mcp.Description("ERC20 token contract address")),
				mcp.WithString("ownerAddress", mcp.Required(), mcp.Description("Token owner")),
				mcp.WithString("spenderAddress", mcp.Required(), mcp.Description("Approved spender")),
			),
			failure: fixed("get token allowance"),
			echo:    []string{"tokenAddress", "ownerAddress", "spenderAddress"},
			run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
				var vals [3]string
				for i, key := range []string{"tokenAddress", "ownerAddress", "spenderAddress"} {
					v, err := required(req, key)
					if err != nil {
						return nil, err
					}
					vals[i] = v
				}
				return s.svc.Allowance(ctx, vals[0], vals[1], vals[2])
			},
		},
		{
			tool: mcp.NewTool("getTransactionData",
				mcp.WithDescription(fmt.Sprintf("Get transaction details and receipt from %s", network)),
				mcp.WithString("txHash", mcp.Required(), mcp.Description("Transaction hash to check")),
			),
			failure: fixed("get transaction data"),
			echo:    []string{"txHash"},
			run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
				hash, err := required(req, "txHash")
				if err != nil {
					return nil, err
				}
				return s.svc.Transaction(ctx, hash)
			},
		},
		{
			tool: mcp.NewTool("getBlockInfo",
				mcp.WithDescription(fmt.Sprintf("Get information about a block on %s using block hash", network)),
				mcp.WithString("blockHash", mcp.Required(), mcp.Description("Block hash (must start with 0x)")),
			),
			failure: fixed("get block information"),
			echo:    []string{"blockHash"},
			run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
				hash, err := required(req, "blockHash")
				if err != nil {
					return nil, err
				}
				return s.svc.Block(ctx, hash)
			},
		},
		{
			tool: mcp.NewTool("wrap",
				mcp.WithDescription(fmt.Sprintf("Wrap native %s into its ERC20 form", native)),
				mcp.WithString("amount", mcp.Required(), mcp.Description(fmt.Sprintf("Amount of %s in decimal units, e.g. \"1.5\"", native))),
			),
			failure: fixed("wrap native token"),
			echo:    []string{"amount"},
			run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
				amount, err := required(req, "amount")
				if err != nil {
					return nil, err
				}
				return s.svc.Wrap(ctx, amount)
			},
		},
		{
			tool: mcp.NewTool("unwrap",
				mcp.WithDescription(fmt.Sprintf("Unwrap the ERC20 form back into native %s", native)),
				mcp.WithString("amount", mcp.Required(), mcp.Description("Amount of the wrapped token in decimal units")),
			),
			failure: fixed("unwrap native token"),
			echo:    []string{"amount"},
			run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
				amount, err := required(req, "amount")
				if err != nil {
					return nil, err
				}
				return s.svc.Unwrap(ctx, amount)
			},
		},
		s.vaultTool("vaultDeposit", "Deposit underlying assets into an ERC-4626 vault", "amount", "Amount of the underlying asset", "deposit into vault", s.svc.VaultDeposit),
		s.vaultTool("vaultWithdraw", "Withdraw underlying assets from an ERC-4626 vault", "amount", "Amount of the underlying asset", "withdraw from vault", s.svc.VaultWithdraw),
		s.vaultTool("vaultRedeem", "Redeem ERC-4626 vault shares for underlying assets", "shares", "Number of vault shares", "redeem vault shares", s.svc.VaultRedeem),
		{
			tool: mcp.NewTool("swap",
				mcp.WithDescription("Swap an exact input amount through the configured concentrated-liquidity router"),
				mcp.WithString("tokenIn", mcp.Required(), mcp.Description("Token to sell")),
				mcp.WithString("tokenOut", mcp.Required(), mcp.Description("Token to buy")),
				mcp.WithString("amountIn", mcp.Required(), mcp.Description("Amount of tokenIn in decimal units")),
				mcp.WithNumber("fee", mcp.Description("Optional pool fee tier (100, 500, 3000 or 10000); the best quoting tier is used when omitted")),
				mcp.WithNumber("slippageBps", mcp.Description(fmt.Sprintf("Optional slippage tolerance in basis points (default %d)", settings.SlippageBps))),
			),
			failure: fixed("swap tokens"),
			echo:    []string{"tokenIn", "tokenOut", "amountIn"},
			run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
				var r planner.SwapRequest
				var err error
				if r.TokenIn, err = required(req, "tokenIn"); err != nil {
					return nil, err
				}
				if r.TokenOut, err = required(req, "tokenOut"); err != nil {
					return nil, err
				}
				if r.Amount, err = required(req, "amountIn"); err != nil {
					return nil, err
				}
				fee, err := optionalInt64(req, "fee")
				if err != nil {
					return nil, err
				}
				if fee != nil {
					if *fee <= 0 || *fee > 1_000_000 {
						return nil, clierr.New(clierr.CodeUsage, "fee must be a positive fee tier")
					}
					r.Fee = uint32(*fee)
				}
				if r.SlippageBps, err = optionalInt64(req, "slippageBps"); err != nil {
					return nil, err
				}
				return s.svc.Swap(ctx, r)
			},
		},
		{
			tool: mcp.NewTool("bridge",
				mcp.WithDescription("Bridge the native token or an ERC20 to another network"),
				mcp.WithString("token", mcp.DefaultString("native"), mcp.Description("Token address, or \"native\"")),
				mcp.WithString("amount", mcp.Required(), mcp.Description("Amount in decimal units")),
				mcp.WithNumber("destinationNetwork", mcp.Required(), mcp.Description("Destination network id of the bridge")),
				mcp.WithString("destinationAddress", mcp.Description("Recipient on the destination network (defaults to the sender)")),
			),
			failure: fixed("bridge tokens"),
			echo:    []string{"token", "amount", "destinationNetwork"},
			run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
				amount, err := required(req, "amount")
				if err != nil {
					return nil, err
				}
				dest, err := optionalInt64(req, "destinationNetwork")
				if err != nil {
					return nil, err
				}
				if dest == nil || *dest < 0 || *dest > int64(^uint32(0)) {
					return nil, clierr.New(clierr.CodeUsage, "destinationNetwork must be a 32-bit network id")
				}
				return s.svc.Bridge(ctx, planner.BridgeRequest{
					Token:              req.GetString("token", "native"),
					Amount:             amount,
					DestinationNetwork: uint32(*dest),
					DestinationAddress: req.GetString("destinationAddress", ""),
				})
			},
		},
	}
}

func (s *Server) vaultTool(name, description, amountKey, amountDesc, failure string, op func(context.Context, planner.VaultRequest) (execution.Outcome, error)) toolDef {
	return toolDef{
		tool: mcp.NewTool(name,
			mcp.WithDescription(description),
			mcp.WithString("vaultAddress", mcp.Required(), mcp.Description("Vault contract address")),
			mcp.WithString(amountKey, mcp.Required(), mcp.Description(amountDesc+" in decimal units")),
			mcp.WithString("receiver", mcp.Description("Optional recipient (defaults to the sender)")),
		),
		failure: fixed(failure),
		echo:    []string{"vaultAddress", amountKey},
		run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			vaultAddress, err := required(req, "vaultAddress")
			if err != nil {
				return nil, err
			}
			amount, err := required(req, amountKey)
			if err != nil {
				return nil, err
			}
			return op(ctx, planner.VaultRequest{Vault: vaultAddress, Amount: amount, Receiver: req.GetString("receiver", "")})
		},
	}
}
