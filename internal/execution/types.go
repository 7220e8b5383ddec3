package execution

import "time"

type ActionStatus string

type StepStatus string

type StepType string

// Phase is a lifecycle state. Failed is reachable from every other phase.
type Phase string

const (
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusSubmitted StepStatus = "submitted"
	StepStatusConfirmed StepStatus = "confirmed"
	StepStatusFailed    StepStatus = "failed"
)

const (
	StepTypeApproval      StepType = "approval"
	StepTypeWrap          StepType = "wrap"
	StepTypeUnwrap        StepType = "unwrap"
	StepTypeVaultDeposit  StepType = "vault_deposit"
	StepTypeVaultWithdraw StepType = "vault_withdraw"
	StepTypeVaultRedeem   StepType = "vault_redeem"
	StepTypeSwap          StepType = "swap"
	StepTypeBridge        StepType = "bridge_send"
)

const (
	PhaseValidating        Phase = "validating"
	PhaseBalanceChecking   Phase = "balance_checking"
	PhaseAllowanceChecking Phase = "allowance_checking"
	PhaseSubmitting        Phase = "submitting"
	PhaseConfirming        Phase = "confirming"
	PhaseReconciling       Phase = "reconciling"
	PhaseDone              Phase = "done"
	PhaseFailed            Phase = "failed"
)

type Constraints struct {
	SlippageBps int64 `json:"slippage_bps,omitempty"`
	Simulate    bool  `json:"simulate"`
}

type ActionStep struct {
	StepID      string     `json:"step_id"`
	Type        StepType   `json:"type"`
	Status      StepStatus `json:"status"`
	ChainID     string     `json:"chain_id"`
	Description string     `json:"description,omitempty"`
	Target      string     `json:"target"`
	Method      string     `json:"method"`
	Value       string     `json:"value"`
	TxHash      string     `json:"tx_hash,omitempty"`
	BlockNumber uint64     `json:"block_number,omitempty"`
	GasUsed     uint64     `json:"gas_used,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Action is the persisted record of one lifecycle run.
type Action struct {
	ActionID    string       `json:"action_id"`
	IntentType  StepType     `json:"intent_type"`
	Status      ActionStatus `json:"status"`
	Phase       Phase        `json:"phase"`
	FailedIn    Phase        `json:"failed_in,omitempty"`
	ChainID     string       `json:"chain_id"`
	FromAddress string       `json:"from_address,omitempty"`
	InputAmount string       `json:"input_amount,omitempty"`
	InputSymbol string       `json:"input_symbol,omitempty"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at"`
	Constraints Constraints  `json:"constraints"`
	Steps       []ActionStep `json:"steps"`
	Outcome     *Outcome     `json:"outcome,omitempty"`
	Error       string       `json:"error,omitempty"`
}

func NewAction(actionID string, intent StepType, chainID string, constraints Constraints) Action {
	now := time.Now().UTC().Format(time.RFC3339)
	return Action{
		ActionID:    actionID,
		IntentType:  intent,
		Status:      ActionStatusRunning,
		Phase:       PhaseValidating,
		ChainID:     chainID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Constraints: constraints,
		Steps:       []ActionStep{},
	}
}

func (a *Action) Touch() {
	a.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Step returns the step of the given type, or nil.
func (a *Action) Step(t StepType) *ActionStep {
	for i := range a.Steps {
		if a.Steps[i].Type == t {
			return &a.Steps[i]
		}
	}
	return nil
}
