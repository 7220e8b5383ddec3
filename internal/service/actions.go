package service

import (
	"context"
	"strings"

	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/execution"
	"github.com/ggonzalez94/bera-mcp/internal/execution/planner"
)

type planFn func(ctx context.Context, p *planner.Planner) (execution.Operation, error)

// execute plans an operation and runs it through the lifecycle.
func (s *Service) execute(ctx context.Context, plan planFn) (execution.Outcome, error) {
	d, err := s.ensure(ctx)
	if err != nil {
		return execution.Outcome{}, err
	}
	op, err := plan(ctx, d.planner)
	if err != nil {
		return execution.Outcome{}, err
	}
	return d.lifecycle.Run(ctx, op)
}

func (s *Service) Wrap(ctx context.Context, amount string) (execution.Outcome, error) {
	return s.execute(ctx, func(ctx context.Context, p *planner.Planner) (execution.Operation, error) {
		return p.Wrap(ctx, amount)
	})
}

func (s *Service) Unwrap(ctx context.Context, amount string) (execution.Outcome, error) {
	return s.execute(ctx, func(ctx context.Context, p *planner.Planner) (execution.Operation, error) {
		return p.Unwrap(ctx, amount)
	})
}

func (s *Service) VaultDeposit(ctx context.Context, req planner.VaultRequest) (execution.Outcome, error) {
	return s.execute(ctx, func(ctx context.Context, p *planner.Planner) (execution.Operation, error) {
		return p.VaultDeposit(ctx, req)
	})
}

func (s *Service) VaultWithdraw(ctx context.Context, req planner.VaultRequest) (execution.Outcome, error) {
	return s.execute(ctx, func(ctx context.Context, p *planner.Planner) (execution.Operation, error) {
		return p.VaultWithdraw(ctx, req)
	})
}

func (s *Service) VaultRedeem(ctx context.Context, req planner.VaultRequest) (execution.Outcome, error) {
	return s.execute(ctx, func(ctx context.Context, p *planner.Planner) (execution.Operation, error) {
		return p.VaultRedeem(ctx, req)
	})
}

func (s *Service) Swap(ctx context.Context, req planner.SwapRequest) (execution.Outcome, error) {
	return s.execute(ctx, func(ctx context.Context, p *planner.Planner) (execution.Operation, error) {
		return p.Swap(ctx, req)
	})
}

func (s *Service) Bridge(ctx context.Context, req planner.BridgeRequest) (execution.Outcome, error) {
	return s.execute(ctx, func(ctx context.Context, p *planner.Planner) (execution.Operation, error) {
		return p.Bridge(ctx, req)
	})
}

const maxActionList = 200

// Actions lists persisted lifecycle runs, newest first.
func (s *Service) Actions(ctx context.Context, status string, limit int) ([]execution.Action, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch execution.ActionStatus(status) {
	case "", execution.ActionStatusRunning, execution.ActionStatusCompleted, execution.ActionStatusFailed:
	default:
		return nil, clierr.New(clierr.CodeUsage, "status must be running, completed or failed")
	}
	if limit <= 0 || limit > maxActionList {
		limit = maxActionList
	}
	store, err := s.actionStore()
	if err != nil {
		return nil, err
	}
	return store.List(ctx, status, limit)
}

func (s *Service) Action(ctx context.Context, actionID string) (execution.Action, error) {
	actionID = strings.TrimSpace(actionID)
	if actionID == "" {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "action id is required")
	}
	store, err := s.actionStore()
	if err != nil {
		return execution.Action{}, err
	}
	return store.Get(ctx, actionID)
}
