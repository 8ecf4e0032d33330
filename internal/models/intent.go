package models

import "time"

// Intent status: one-shot OPEN -> EXECUTED.
const (
	IntentStatusOpen     = "OPEN"
	IntentStatusExecuted = "EXECUTED"
)

type Intent struct {
	IntentID    string         `json:"intentId"`
	AgentID     string         `json:"agentId"`
	Goal        string         `json:"goal"`
	Budget      float64        `json:"budget"`
	Constraints map[string]any `json:"constraints,omitempty"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (i *Intent) VersionTime() time.Time {
	return maxTime(i.UpdatedAt, i.CreatedAt)
}

// ActionSettlement is the payout breakdown of an executed action.
type ActionSettlement struct {
	BaseFee          float64 `json:"baseFee"`
	Multiplier       float64 `json:"multiplier"`
	Payout           float64 `json:"payout"`
	OwnerClaimable   float64 `json:"ownerClaimable"`
	OperatingReserve float64 `json:"operatingReserve"`
	LockedSafety     float64 `json:"lockedSafety"`
}

// ProofOfAction is the signed receipt reference recorded with an action.
type ProofOfAction struct {
	ReceiptRef string    `json:"receiptRef"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

const ActionStatusExecuted = "EXECUTED"

// Action is created exactly once per executed intent.
type Action struct {
	ActionID      string           `json:"actionId"`
	IntentID      string           `json:"intentId"`
	AgentID       string           `json:"agentId"`
	Status        string           `json:"status"`
	Settlement    ActionSettlement `json:"settlement"`
	POA           ProofOfAction    `json:"poa"`
	QualitySignal float64          `json:"qualitySignal"`
	CreatedAt     time.Time        `json:"createdAt"`
}

func (a *Action) VersionTime() time.Time { return a.CreatedAt }
