package models

import "time"

// Claim lifecycle: REQUESTED -> EXECUTED, gated by the node-wide cooldown.
const (
	ClaimStatusRequested = "REQUESTED"
	ClaimStatusExecuted  = "EXECUTED"
)

type Claim struct {
	ClaimID      string     `json:"claimId"`
	AgentID      string     `json:"agentId"`
	Asset        string     `json:"asset"`
	Amount       float64    `json:"amount"`
	Status       string     `json:"status"`
	RequestedAt  time.Time  `json:"requestedAt"`
	ExecuteAfter time.Time  `json:"executeAfter"`
	ExecutedAt   *time.Time `json:"executedAt,omitempty"`
}

func (c *Claim) VersionTime() time.Time {
	v := maxTime(c.ExecuteAfter, c.RequestedAt)
	if c.ExecutedAt != nil {
		v = maxTime(v, *c.ExecutedAt)
	}
	return v
}
