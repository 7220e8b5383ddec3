package execution

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/bera-mcp/internal/chain"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/id"
	"github.com/ggonzalez94/bera-mcp/internal/model"
	"github.com/ggonzalez94/bera-mcp/internal/tokens"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Chain is the write side of the chain facade.
type Chain interface {
	ChainID() *big.Int
	Account() (common.Address, error)
	Submit(ctx context.Context, contract chain.Contract, category chain.Category, value *big.Int, method string, args ...any) (*chain.PendingTx, error)
	Confirm(ctx context.Context, pending *chain.PendingTx) (*types.Receipt, error)
}

// Call is the operation-specific transaction the lifecycle submits.
type Call struct {
	Contract chain.Contract
	Category chain.Category
	Method   string
	Args     []any
	Value    *big.Int
	// Details are copied into the outcome, e.g. a swap's minimum output.
	Details map[string]string
}

type Role string

const (
	RoleSpent    Role = "spent"
	RoleReceived Role = "received"
)

// Leg is one balance the lifecycle snapshots around the submission.
type Leg struct {
	Key   string
	Asset tokens.Asset
	Role  Role
}

// Operation is a fully planned state-changing request.
type Operation struct {
	Type StepType
	// Amount is the caller's human amount of AmountAsset.
	Amount      string
	AmountAsset tokens.Asset
	Legs        []Leg
	// Available reads what the owner may move; nil reads the balance of AmountAsset.
	Available func(ctx context.Context, owner common.Address) (*big.Int, error)
	// Spender, when set, must be approved for AmountAsset before submission.
	Spender     *common.Address
	Constraints Constraints
	// Build is called once, during validation, before any approval.
	Build func(ctx context.Context, owner common.Address, amount *big.Int) (Call, error)
}

type Snapshot struct {
	Asset   tokens.Asset
	Raw     *big.Int
	TakenAt time.Time
}

type Delta struct {
	Symbol    string `json:"symbol"`
	Before    string `json:"before"`
	After     string `json:"after"`
	Change    string `json:"change"`
	RawBefore string `json:"rawBefore"`
	RawAfter  string `json:"rawAfter"`
	RawChange string `json:"rawChange"`
}

type Quantity struct {
	Amount    string `json:"amount"`
	RawAmount string `json:"rawAmount"`
	Symbol    string `json:"symbol"`
}

type Realized struct {
	Spent    *Quantity `json:"spent,omitempty"`
	Received *Quantity `json:"received,omitempty"`
}

type Approval struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	GasUsed         uint64 `json:"gasUsed"`
	Spender         string `json:"spender"`
	Amount          string `json:"amount"`
}

type Outcome struct {
	Status          string            `json:"status"`
	Operation       StepType          `json:"operation"`
	ActionID        string            `json:"actionId"`
	TransactionHash string            `json:"transactionHash"`
	BlockNumber     uint64            `json:"blockNumber"`
	GasUsed         uint64            `json:"gasUsed"`
	Approval        *Approval         `json:"approval,omitempty"`
	Requested       Quantity          `json:"requested"`
	Realized        Realized          `json:"realized"`
	BalanceChanges  map[string]Delta  `json:"balanceChanges"`
	Details         map[string]string `json:"details,omitempty"`
	Timestamp       string            `json:"timestamp"`
}

// Observer is told how every run ended, for metrics.
type Observer func(op StepType, phase Phase, err error, elapsed time.Duration)

type Config struct {
	Store    *Store
	Logger   *zap.Logger
	Observer Observer
}

// Lifecycle runs operations through validate, balance check, allowance,
// submit, confirm and reconcile. Nothing is ever resubmitted.
type Lifecycle struct {
	chain    Chain
	tokens   *tokens.Resolver
	store    *Store
	log      *zap.Logger
	observer Observer
	now      func() time.Time
}

func NewLifecycle(c Chain, resolver *tokens.Resolver, cfg Config) *Lifecycle {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Lifecycle{chain: c, tokens: resolver, store: cfg.Store, log: log, observer: cfg.Observer, now: time.Now}
}

type run struct {
	l      *Lifecycle
	action Action
	log    *zap.Logger
}

func (r *run) enter(ctx context.Context, phase Phase) {
	r.action.Phase = phase
	r.action.Touch()
	r.log.Debug("lifecycle phase", zap.String("phase", string(phase)))
	r.persist(ctx)
}

func (r *run) persist(ctx context.Context) {
	if r.l.store == nil {
		return
	}
	// Persist even when the caller's context is already cancelled.
	if err := r.l.store.Save(context.WithoutCancel(ctx), r.action); err != nil {
		r.log.Warn("persist action failed", zap.Error(err))
	}
}

// fail moves the run to the failed phase. The returned error carries the
// phase, the action id and every transaction hash already broadcast.
func (r *run) fail(ctx context.Context, err error) error {
	failedIn := r.action.Phase
	cliErr, ok := clierr.As(err)
	if !ok {
		cliErr = clierr.Wrap(clierr.CodeInternal, "lifecycle failed", err)
	}
	cliErr.WithDetail("phase", string(failedIn)).WithDetail("actionId", r.action.ActionID)
	if step := r.action.Step(StepTypeApproval); step != nil && step.TxHash != "" {
		cliErr.WithDetail("approvalTransactionHash", step.TxHash)
	}
	if step := r.action.Step(r.action.IntentType); step != nil && step.TxHash != "" {
		cliErr.WithDetail("transactionHash", step.TxHash)
	}
	r.action.Status = ActionStatusFailed
	r.action.FailedIn = failedIn
	r.action.Phase = PhaseFailed
	r.action.Error = cliErr.Error()
	r.action.Touch()
	r.persist(ctx)
	r.log.Warn("lifecycle failed", zap.String("phase", string(failedIn)), zap.Error(cliErr))
	return cliErr
}

func (l *Lifecycle) Run(ctx context.Context, op Operation) (Outcome, error) {
	start := l.now()
	r := &run{l: l, action: NewAction(NewActionID(), op.Type, id.CAIP2(l.chain.ChainID().Int64()), op.Constraints)}
	r.action.InputAmount = op.Amount
	r.action.InputSymbol = op.AmountAsset.Symbol
	r.log = l.log.With(zap.String("action_id", r.action.ActionID), zap.String("operation", string(op.Type)))

	outcome, err := l.run(ctx, r, op)
	if err != nil {
		err = r.fail(ctx, err)
	}
	if l.observer != nil {
		phase := r.action.Phase
		if err != nil {
			phase = r.action.FailedIn
		}
		l.observer(op.Type, phase, err, l.now().Sub(start))
	}
	return outcome, err
}

func (l *Lifecycle) run(ctx context.Context, r *run, op Operation) (Outcome, error) {
	r.enter(ctx, PhaseValidating)
	owner, err := l.chain.Account()
	if err != nil {
		return Outcome{}, err
	}
	r.action.FromAddress = owner.Hex()
	r.log = r.log.With(zap.String("wallet", owner.Hex()))
	amount, err := op.AmountAsset.Parse(op.Amount)
	if err != nil {
		return Outcome{}, err
	}
	if op.Build == nil || len(op.Legs) == 0 {
		return Outcome{}, clierr.New(clierr.CodeInternal, "operation is not fully planned")
	}
	call, err := op.Build(ctx, owner, amount)
	if err != nil {
		return Outcome{}, err
	}
	if err := checkCall(op, call, amount); err != nil {
		return Outcome{}, err
	}

	r.enter(ctx, PhaseBalanceChecking)
	if err := l.checkBalance(ctx, op, owner, amount); err != nil {
		return Outcome{}, err
	}

	var approval *Approval
	if op.Spender != nil {
		r.enter(ctx, PhaseAllowanceChecking)
		approval, err = l.ensureAllowance(ctx, r, op, owner, amount)
		if err != nil {
			return Outcome{}, err
		}
	}

	r.enter(ctx, PhaseSubmitting)
	before, err := l.snapshot(ctx, op.Legs, owner)
	if err != nil {
		return Outcome{}, err
	}
	step := r.addStep(op.Type, call)
	pending, err := l.chain.Submit(ctx, call.Contract, call.Category, call.Value, call.Method, call.Args...)
	if err != nil {
		step.Status = StepStatusFailed
		step.Error = err.Error()
		return Outcome{}, err
	}
	step.TxHash = pending.Hash.Hex()
	step.Status = StepStatusSubmitted
	r.log.Info("operation submitted", zap.String("tx_hash", step.TxHash))

	r.enter(ctx, PhaseConfirming)
	receipt, err := l.chain.Confirm(ctx, pending)
	if receipt != nil {
		step.BlockNumber = receipt.BlockNumber.Uint64()
		step.GasUsed = receipt.GasUsed
	}
	if err != nil {
		step.Status = StepStatusFailed
		step.Error = err.Error()
		return Outcome{}, err
	}
	step.Status = StepStatusConfirmed

	r.enter(ctx, PhaseReconciling)
	after, err := l.snapshot(ctx, op.Legs, owner)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{
		Status:          "success",
		Operation:       op.Type,
		ActionID:        r.action.ActionID,
		TransactionHash: step.TxHash,
		BlockNumber:     step.BlockNumber,
		GasUsed:         step.GasUsed,
		Approval:        approval,
		Requested: Quantity{
			Amount:    id.ToFormatted(amount, op.AmountAsset.Decimals),
			RawAmount: amount.String(),
			Symbol:    op.AmountAsset.Symbol,
		},
		BalanceChanges: make(map[string]Delta, len(op.Legs)),
		Details:        call.Details,
		Timestamp:      model.Timestamp(l.now()),
	}
	for i, leg := range op.Legs {
		change := new(big.Int).Sub(after[i].Raw, before[i].Raw)
		outcome.BalanceChanges[leg.Key] = NewDelta(before[i], after[i])
		switch leg.Role {
		case RoleSpent:
			spent := new(big.Int).Neg(change)
			outcome.Realized.Spent = &Quantity{Amount: leg.Asset.Format(spent), RawAmount: spent.String(), Symbol: leg.Asset.Symbol}
		case RoleReceived:
			outcome.Realized.Received = &Quantity{Amount: leg.Asset.Format(change), RawAmount: change.String(), Symbol: leg.Asset.Symbol}
		}
	}

	r.action.Status = ActionStatusCompleted
	r.action.Outcome = &outcome
	r.enter(ctx, PhaseDone)
	r.log.Info("operation reconciled", zap.String("tx_hash", step.TxHash), zap.Uint64("block", step.BlockNumber))
	return outcome, nil
}

// checkBalance is advisory: it narrows the failure window, the chain still
// has the final say.
func (l *Lifecycle) checkBalance(ctx context.Context, op Operation, owner common.Address, amount *big.Int) error {
	var (
		available *big.Int
		err       error
	)
	if op.Available != nil {
		available, err = op.Available(ctx, owner)
	} else {
		available, err = l.tokens.Balance(ctx, op.AmountAsset, owner)
	}
	if err != nil {
		return err
	}
	if available.Cmp(amount) >= 0 {
		return nil
	}
	required := op.AmountAsset.Format(amount)
	have := op.AmountAsset.Format(available)
	return clierr.New(clierr.CodeInsufficientBalance,
		fmt.Sprintf("insufficient %s balance: required %s, available %s", op.AmountAsset.Symbol, required, have)).
		WithDetail("required", required).
		WithDetail("available", have)
}

// ensureAllowance approves exactly the amount when the current allowance is
// short, and waits for the approval before returning.
func (l *Lifecycle) ensureAllowance(ctx context.Context, r *run, op Operation, owner common.Address, amount *big.Int) (*Approval, error) {
	token := common.HexToAddress(op.AmountAsset.Address)
	spender := *op.Spender
	current, err := l.tokens.Allowance(ctx, token, owner, spender)
	if err != nil {
		return nil, err
	}
	if current.Cmp(amount) >= 0 {
		r.log.Debug("allowance sufficient", zap.String("spender", spender.Hex()))
		return nil, nil
	}
	call := Call{
		Contract: chain.Bind(chain.FamilyERC20, token),
		Category: chain.CategoryApprove,
		Method:   "approve",
		Args:     []any{spender, amount},
	}
	step := r.addStep(StepTypeApproval, call)
	pending, err := l.chain.Submit(ctx, call.Contract, call.Category, nil, call.Method, call.Args...)
	if err != nil {
		step.Status = StepStatusFailed
		step.Error = err.Error()
		return nil, err
	}
	step.TxHash = pending.Hash.Hex()
	step.Status = StepStatusSubmitted
	r.persist(ctx)
	r.log.Info("approval submitted", zap.String("tx_hash", step.TxHash), zap.String("spender", spender.Hex()))

	receipt, err := l.chain.Confirm(ctx, pending)
	if err != nil {
		step.Status = StepStatusFailed
		step.Error = err.Error()
		return nil, err
	}
	step.Status = StepStatusConfirmed
	step.BlockNumber = receipt.BlockNumber.Uint64()
	step.GasUsed = receipt.GasUsed
	return &Approval{
		TransactionHash: step.TxHash,
		BlockNumber:     step.BlockNumber,
		GasUsed:         step.GasUsed,
		Spender:         spender.Hex(),
		Amount:          op.AmountAsset.Format(amount),
	}, nil
}

func (r *run) addStep(t StepType, call Call) *ActionStep {
	value := "0"
	if call.Value != nil {
		value = call.Value.String()
	}
	r.action.Steps = append(r.action.Steps, ActionStep{
		StepID:  fmt.Sprintf("%s-%d", t, len(r.action.Steps)+1),
		Type:    t,
		Status:  StepStatusPending,
		ChainID: r.action.ChainID,
		Target:  call.Contract.Address.Hex(),
		Method:  call.Method,
		Value:   value,
	})
	return &r.action.Steps[len(r.action.Steps)-1]
}

// snapshot reads every leg's balance concurrently.
func (l *Lifecycle) snapshot(ctx context.Context, legs []Leg, owner common.Address) ([]Snapshot, error) {
	out := make([]Snapshot, len(legs))
	g, gctx := errgroup.WithContext(ctx)
	for i, leg := range legs {
		g.Go(func() error {
			raw, err := l.tokens.Balance(gctx, leg.Asset, owner)
			if err != nil {
				return err
			}
			out[i] = Snapshot{Asset: leg.Asset, Raw: raw, TakenAt: l.now()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// NewDelta renders after minus before. Outflows come out negative.
func NewDelta(before, after Snapshot) Delta {
	change := new(big.Int).Sub(after.Raw, before.Raw)
	asset := before.Asset
	return Delta{
		Symbol:    asset.Symbol,
		Before:    asset.Format(before.Raw),
		After:     asset.Format(after.Raw),
		Change:    asset.Format(change),
		RawBefore: before.Raw.String(),
		RawAfter:  after.Raw.String(),
		RawChange: change.String(),
	}
}
