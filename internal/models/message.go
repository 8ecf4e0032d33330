package models

import "time"

// Contact offer message states.
const (
	MessageStatusPending  = "PENDING"
	MessageStatusAccepted = "ACCEPTED"
	MessageStatusRefused  = "REFUSED"
)

// Origin of a contact offer.
const (
	MessageViaLocal = "local"
	MessageViaP2P   = "p2p"
)

// Refusal reason codes. RefuseContact rejects anything outside this set.
const (
	RefusalPolicyDeny        = "POLICY_DENY"
	RefusalBlockedSender     = "BLOCKED_SENDER"
	RefusalRateLimited       = "RATE_LIMITED"
	RefusalLowReputation     = "LOW_REPUTATION"
	RefusalUnsupportedTopic  = "UNSUPPORTED_TOPIC"
	RefusalInsufficientStake = "INSUFFICIENT_STAKE"
	RefusalBusy              = "BUSY"
	RefusalManualDeny        = "MANUAL_DENY"
)

var refusalCodes = map[string]bool{
	RefusalPolicyDeny:        true,
	RefusalBlockedSender:     true,
	RefusalRateLimited:       true,
	RefusalLowReputation:     true,
	RefusalUnsupportedTopic:  true,
	RefusalInsufficientStake: true,
	RefusalBusy:              true,
	RefusalManualDeny:        true,
}

// ValidRefusalCode reports whether code belongs to the fixed reason set.
func ValidRefusalCode(code string) bool { return refusalCodes[code] }

// Message is an inter-agent contact offer.
type Message struct {
	MsgID       string         `json:"msgId"`
	Type        string         `json:"type"`
	FromAgentID string         `json:"fromAgentId"`
	ToAgentID   string         `json:"toAgentId"`
	IntentID    string         `json:"intentId,omitempty"`
	Topic       string         `json:"topic"`
	Payload     map[string]any `json:"payload,omitempty"`
	Status      string         `json:"status"`
	ReasonCode  string         `json:"reasonCode,omitempty"`
	Permission  string         `json:"permission,omitempty"`
	Via         string         `json:"via"`
	FromNodeID  string         `json:"fromNodeId,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (m *Message) VersionTime() time.Time {
	return maxTime(m.UpdatedAt, m.CreatedAt)
}
