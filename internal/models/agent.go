package models

import (
	"time"

	"github.com/mammothnet/mammoth-node/internal/money"
)

const AgentStatusActive = "ACTIVE"

// TreasuryBuckets is the four-bucket per-asset treasury of an agent.
// claimable + pending only grows via settlement and only shrinks via the
// claim lifecycle (claimable -> pending -> 0).
type TreasuryBuckets struct {
	OwnerClaimable   float64 `json:"ownerClaimable"`
	OperatingReserve float64 `json:"operatingReserve"`
	LockedSafety     float64 `json:"lockedSafety"`
	ClaimPending     float64 `json:"claimPending"`
}

// Wallet holds per-asset spendable/spent/earned balances plus chain
// addresses keyed by chain name (currently only "eth").
type Wallet struct {
	Spendable   map[string]float64 `json:"spendable"`
	Spent       map[string]float64 `json:"spent"`
	EarnedGross map[string]float64 `json:"earnedGross"`
	Addresses   map[string]string  `json:"addresses"`
}

// Policy controls automatic refusal of inbound contact offers.
type Policy struct {
	AutoRefuseMinReputation float64  `json:"autoRefuseMinReputation"`
	BlockedSenders          []string `json:"blockedSenders"`
}

type Agent struct {
	AgentID    string                     `json:"agentId"`
	Name       string                     `json:"name"`
	Topics     []string                   `json:"topics"`
	Status     string                     `json:"status"`
	Reputation float64                    `json:"reputation"`
	Treasury   map[string]TreasuryBuckets `json:"treasury"`
	Wallet     Wallet                     `json:"wallet"`
	Policy     Policy                     `json:"policy"`
	CreatedAt  time.Time                  `json:"createdAt"`
	UpdatedAt  time.Time                  `json:"updatedAt"`
}

// Normalize fills zero-valued maps so snapshots loaded from disk or merged
// from peers can be mutated without nil checks.
func (a *Agent) Normalize() {
	if a.Treasury == nil {
		a.Treasury = map[string]TreasuryBuckets{}
	}
	if a.Wallet.Spendable == nil {
		a.Wallet.Spendable = map[string]float64{}
	}
	if a.Wallet.Spent == nil {
		a.Wallet.Spent = map[string]float64{}
	}
	if a.Wallet.EarnedGross == nil {
		a.Wallet.EarnedGross = map[string]float64{}
	}
	if a.Wallet.Addresses == nil {
		a.Wallet.Addresses = map[string]string{}
	}
	if a.Topics == nil {
		a.Topics = []string{}
	}
	if a.Policy.BlockedSenders == nil {
		a.Policy.BlockedSenders = []string{}
	}
}

func (a *Agent) VersionTime() time.Time {
	return maxTime(a.UpdatedAt, a.CreatedAt)
}

// Spendable returns the rounded spendable balance for the asset.
func (a *Agent) Spendable(asset string) float64 {
	return money.Round(a.Wallet.Spendable[asset], asset)
}

// AddSpendable applies a delta to the spendable balance and returns the new
// rounded balance.
func (a *Agent) AddSpendable(asset string, delta float64) float64 {
	a.Wallet.Spendable[asset] = money.Round(a.Wallet.Spendable[asset]+delta, asset)
	return a.Wallet.Spendable[asset]
}

// AddSpent accumulates gross spend for the asset.
func (a *Agent) AddSpent(asset string, amount float64) {
	a.Wallet.Spent[asset] = money.Round(a.Wallet.Spent[asset]+amount, asset)
}

// AddEarnedGross accumulates gross earnings for the asset.
func (a *Agent) AddEarnedGross(asset string, amount float64) {
	a.Wallet.EarnedGross[asset] = money.Round(a.Wallet.EarnedGross[asset]+amount, asset)
}

// CreditTreasury adds a 40/40/20 settlement split into the asset's buckets.
func (a *Agent) CreditTreasury(asset string, claimable, reserve, locked float64) {
	t := a.Treasury[asset]
	t.OwnerClaimable = money.Round(t.OwnerClaimable+claimable, asset)
	t.OperatingReserve = money.Round(t.OperatingReserve+reserve, asset)
	t.LockedSafety = money.Round(t.LockedSafety+locked, asset)
	a.Treasury[asset] = t
}

// HasBlocked reports whether the sender id is on the agent's blocklist.
func (a *Agent) HasBlocked(senderID string) bool {
	for _, id := range a.Policy.BlockedSenders {
		if id == senderID {
			return true
		}
	}
	return false
}

// AdjustReputation applies a delta, clamped to [0,1] and rounded to 2dp.
func (a *Agent) AdjustReputation(delta float64) {
	a.Reputation = money.Round2(money.Clamp(a.Reputation+delta, 0, 1))
}

// HasTopic reports whether the agent advertises the topic.
func (a *Agent) HasTopic(topic string) bool {
	for _, t := range a.Topics {
		if t == topic {
			return true
		}
	}
	return false
}
