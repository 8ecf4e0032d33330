package models

import "time"

// Trade modes.
const (
	ModeFree   = "FREE"
	ModePaid   = "PAID"
	ModeBarter = "BARTER"
	// ModeAny is only valid as an ask's mode preference.
	ModeAny = "ANY"
)

// NormalizeMode validates a trade mode, returning "" when invalid.
func NormalizeMode(input, fallback string) string {
	mode := upper(input, fallback)
	switch mode {
	case ModeFree, ModePaid, ModeBarter:
		return mode
	}
	return ""
}

// NormalizeModePreference additionally admits ANY.
func NormalizeModePreference(input, fallback string) string {
	mode := upper(input, fallback)
	switch mode {
	case ModeAny, ModeFree, ModePaid, ModeBarter:
		return mode
	}
	return ""
}

// Ranking strategies for ask matching.
const (
	StrategyCheapest       = "cheapest"
	StrategyHighestQuality = "highest_quality"
	StrategyBestValue      = "best_value"
)

const OfferStatusActive = "ACTIVE"

// Offer is a standing advertisement to answer questions on a topic. Offers
// are upserted by (agent, topic, asset).
type Offer struct {
	OfferID          string    `json:"offerId"`
	AgentID          string    `json:"agentId"`
	Topic            string    `json:"topic"`
	Mode             string    `json:"mode"`
	Asset            string    `json:"asset"`
	PricePerQuestion float64   `json:"pricePerQuestion"`
	QualityHint      float64   `json:"qualityHint"`
	BarterRequest    string    `json:"barterRequest,omitempty"`
	BarterDueHours   int       `json:"barterDueHours,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (o *Offer) VersionTime() time.Time {
	return maxTime(o.UpdatedAt, o.CreatedAt)
}

// Ask lifecycle.
const (
	AskStatusOpen             = "OPEN"
	AskStatusNoMatch          = "NO_MATCH"
	AskStatusQuoted           = "QUOTED"
	AskStatusMatched          = "MATCHED"
	AskStatusDelivered        = "DELIVERED"
	AskStatusFailedFunds      = "FAILED_INSUFFICIENT_FUNDS"
	AskStatusFailedNoProvider = "FAILED_PROVIDER_MISSING"
)

type Ask struct {
	AskID                   string     `json:"askId"`
	RequesterAgentID        string     `json:"requesterAgentId"`
	Topic                   string     `json:"topic"`
	Question                string     `json:"question"`
	Asset                   string     `json:"asset"`
	MaxBudget               float64    `json:"maxBudget"`
	Strategy                string     `json:"strategy"`
	Status                  string     `json:"status"`
	ModePreference          string     `json:"modePreference"`
	BarterOffer             string     `json:"barterOffer,omitempty"`
	SelectedOfferID         string     `json:"selectedOfferId,omitempty"`
	SelectedProviderAgentID string     `json:"selectedProviderAgentId,omitempty"`
	SelectedMode            string     `json:"selectedMode,omitempty"`
	SelectedPrice           float64    `json:"selectedPrice"`
	Answer                  string     `json:"answer,omitempty"`
	Confidence              float64    `json:"confidence"`
	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`
	DeliveredAt             *time.Time `json:"deliveredAt,omitempty"`
}

func (a *Ask) VersionTime() time.Time {
	v := maxTime(a.UpdatedAt, a.CreatedAt)
	if a.DeliveredAt != nil {
		v = maxTime(v, *a.DeliveredAt)
	}
	return v
}

// ExecSettlement is the settlement breakdown attached to an execution.
// For PAID: price = platformTax + providerNet and providerNet splits
// 40/40/20 into the provider treasury buckets.
type ExecSettlement struct {
	Kind                 string     `json:"kind"`
	Asset                string     `json:"asset"`
	Price                float64    `json:"price"`
	PayerSpendableBefore float64    `json:"payerSpendableBefore"`
	PayerSpendableAfter  float64    `json:"payerSpendableAfter"`
	TaxBps               int        `json:"taxBps,omitempty"`
	PlatformTax          float64    `json:"platformTax,omitempty"`
	ProviderNet          float64    `json:"providerNet,omitempty"`
	OwnerClaimable       float64    `json:"ownerClaimable"`
	OperatingReserve     float64    `json:"operatingReserve"`
	LockedSafety         float64    `json:"lockedSafety"`
	ObligationID         string     `json:"obligationId,omitempty"`
	BarterRequest        string     `json:"barterRequest,omitempty"`
	BarterOffer          string     `json:"barterOffer,omitempty"`
	DueAt                *time.Time `json:"dueAt,omitempty"`
}

// Execution is immutable once created; one per delivered ask.
type Execution struct {
	ExecutionID      string         `json:"executionId"`
	AskID            string         `json:"askId"`
	RequesterAgentID string         `json:"requesterAgentId"`
	ProviderAgentID  string         `json:"providerAgentId"`
	OfferID          string         `json:"offerId"`
	Mode             string         `json:"mode"`
	Asset            string         `json:"asset"`
	Price            float64        `json:"price"`
	QualitySignal    float64        `json:"qualitySignal"`
	Answer           string         `json:"answer"`
	RepBefore        float64        `json:"repBefore"`
	RepAfter         float64        `json:"repAfter"`
	ObligationID     string         `json:"obligationId,omitempty"`
	Settlement       ExecSettlement `json:"settlement"`
	CreatedAt        time.Time      `json:"createdAt"`
}

func (e *Execution) VersionTime() time.Time { return e.CreatedAt }

// Obligation lifecycle: OPEN -> SUBMITTED -> {FULFILLED, REJECTED};
// REJECTED -> SUBMITTED allows resubmission.
const (
	ObligationStatusOpen      = "OPEN"
	ObligationStatusSubmitted = "SUBMITTED"
	ObligationStatusFulfilled = "FULFILLED"
	ObligationStatusRejected  = "REJECTED"
)

// Obligation review decisions.
const (
	DecisionAccept = "ACCEPT"
	DecisionReject = "REJECT"
)

// Obligation is the in-kind debt created by a BARTER execution.
type Obligation struct {
	ObligationID    string         `json:"obligationId"`
	AskID           string         `json:"askId"`
	ExecutionID     string         `json:"executionId"`
	DebtorAgentID   string         `json:"debtorAgentId"`
	CreditorAgentID string         `json:"creditorAgentId"`
	Status          string         `json:"status"`
	Topic           string         `json:"topic"`
	BarterRequest   string         `json:"barterRequest"`
	BarterOffer     string         `json:"barterOffer"`
	BarterDueHours  int            `json:"barterDueHours"`
	DueAt           time.Time      `json:"dueAt"`
	Proof           string         `json:"proof,omitempty"`
	Delivery        map[string]any `json:"delivery,omitempty"`
	SubmittedAt     *time.Time     `json:"submittedAt,omitempty"`
	ReviewedAt      *time.Time     `json:"reviewedAt,omitempty"`
	Decision        string         `json:"decision,omitempty"`
	ReviewNote      string         `json:"reviewNote,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (o *Obligation) VersionTime() time.Time {
	return maxTime(o.UpdatedAt, o.CreatedAt)
}

// CanSubmit reports whether submission is a legal transition.
func (o *Obligation) CanSubmit() bool {
	return o.Status == ObligationStatusOpen || o.Status == ObligationStatusRejected
}

// CanReview reports whether a review decision is a legal transition.
func (o *Obligation) CanReview() bool {
	return o.Status == ObligationStatusSubmitted
}
