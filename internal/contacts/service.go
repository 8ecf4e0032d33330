// Package contacts implements the agent-to-agent contact protocol:
// offers, policy-driven auto refusal, accept/refuse/block, and the
// optional relay of an offer to a peer node.
package contacts

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mammothnet/mammoth-node/internal/apperr"
	"github.com/mammothnet/mammoth-node/internal/ids"
	"github.com/mammothnet/mammoth-node/internal/models"
	"github.com/mammothnet/mammoth-node/internal/money"
	"github.com/mammothnet/mammoth-node/internal/store"
)

// Relay delivers a contact offer to a remote node. Implemented by
// peersync.Client.
type Relay interface {
	RelayContactOffer(ctx context.Context, peerURL, peerToken string, body map[string]any) error
}

type Service struct {
	store  *store.Store
	logger *slog.Logger
	relay  Relay
}

func NewService(st *store.Store, relay Relay, logger *slog.Logger) *Service {
	return &Service{store: st, relay: relay, logger: logger}
}

// detectRefusal applies the recipient's policy to a prospective
// sender with the given reputation.
func detectRefusal(to *models.Agent, fromAgentID string, fromReputation float64) string {
	if to.HasBlocked(fromAgentID) {
		return models.RefusalBlockedSender
	}
	if fromReputation < to.Policy.AutoRefuseMinReputation {
		return models.RefusalLowReputation
	}
	return ""
}

type OfferParams struct {
	FromAgentID string
	ToAgentID   string
	Topic       string
	IntentID    string
	Payload     map[string]any
	PeerURL     string
	PeerToken   string
	FromNodeID  string
	ActorRole   string
}

type RelayInfo struct {
	Relayed bool   `json:"relayed"`
	Error   string `json:"error,omitempty"`
}

type OfferResult struct {
	Message *models.Message `json:"message"`
	Relay   RelayInfo       `json:"relay"`
}

// CreateOffer records a local contact offer, auto-refusing per the
// recipient's policy, then optionally relays it to a peer node. The
// relay runs after the local commit so a peer failure never loses the
// message.
func (s *Service) CreateOffer(ctx context.Context, p OfferParams) (*OfferResult, error) {
	topic := strings.TrimSpace(p.Topic)
	if topic == "" {
		topic = "general"
	}
	payload := p.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	now := time.Now().UTC()
	msg := &models.Message{
		MsgID:       ids.New("msg"),
		Type:        "contact_offer",
		FromAgentID: p.FromAgentID,
		ToAgentID:   p.ToAgentID,
		IntentID:    p.IntentID,
		Topic:       topic,
		Payload:     payload,
		Via:         models.MessageViaLocal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var out *models.Message
	var fromReputation float64
	err := s.store.Update(ctx, func(st *models.State) error {
		from, okFrom := st.Agents[p.FromAgentID]
		to, okTo := st.Agents[p.ToAgentID]
		if !okFrom || !okTo {
			return apperr.Validationf("fromAgentId and toAgentId must exist")
		}
		fromReputation = from.Reputation

		refusal := detectRefusal(to, p.FromAgentID, from.Reputation)
		if refusal != "" {
			msg.Status = models.MessageStatusRefused
			msg.ReasonCode = refusal
		} else {
			msg.Status = models.MessageStatusPending
		}
		st.Messages[msg.MsgID] = msg

		if refusal != "" {
			st.AppendEvent("contact_refused", models.ActorSystem, map[string]any{
				"msgId": msg.MsgID, "fromAgentId": p.FromAgentID,
				"toAgentId": p.ToAgentID, "reasonCode": refusal,
			})
		} else {
			st.AppendEvent("contact_offered", p.ActorRole, map[string]any{
				"msgId": msg.MsgID, "fromAgentId": p.FromAgentID,
				"toAgentId": p.ToAgentID, "topic": topic,
			})
		}
		// Clone under the store lock; the stored message may be mutated
		// by a concurrent accept/refuse as soon as Update returns.
		out = models.Clone(msg)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &OfferResult{Message: out}
	if p.PeerURL != "" && s.relay != nil {
		res.Relay = s.relayOffer(ctx, p, out, fromReputation)
	}
	return res, nil
}

func (s *Service) relayOffer(ctx context.Context, p OfferParams, msg *models.Message, fromReputation float64) RelayInfo {
	fromNodeID := p.FromNodeID
	if fromNodeID == "" {
		fromNodeID = s.store.NodeID()
	}
	body := map[string]any{
		"fromNodeId":     fromNodeID,
		"fromAgentId":    msg.FromAgentID,
		"fromReputation": fromReputation,
		"toAgentId":      msg.ToAgentID,
		"topic":          msg.Topic,
		"intentId":       msg.IntentID,
		"payload":        msg.Payload,
	}

	relayErr := s.relay.RelayContactOffer(ctx, p.PeerURL, p.PeerToken, body)

	recordErr := s.store.Update(ctx, func(st *models.State) error {
		if relayErr != nil {
			st.AppendEvent("p2p_relay_failed", models.ActorSystem, map[string]any{
				"msgId": msg.MsgID, "peerUrl": p.PeerURL, "error": relayErr.Error(),
			})
		} else {
			st.AppendEvent("p2p_relay_ok", models.ActorSystem, map[string]any{
				"msgId": msg.MsgID, "peerUrl": p.PeerURL,
			})
		}
		return nil
	})
	if recordErr != nil {
		s.logger.Error("relay event append failed", "error", recordErr)
	}
	if relayErr != nil {
		return RelayInfo{Relayed: false, Error: relayErr.Error()}
	}
	return RelayInfo{Relayed: true}
}

type InboundParams struct {
	FromNodeID     string
	FromAgentID    string
	FromReputation float64
	ToAgentID      string
	Topic          string
	IntentID       string
	Payload        map[string]any
}

// InboundOffer records a contact offer relayed from another node. The
// sender is not registered locally, so the policy check uses the
// reputation the relaying node claims for it.
func (s *Service) InboundOffer(ctx context.Context, p InboundParams) (*models.Message, error) {
	fromAgentID := strings.TrimSpace(p.FromAgentID)
	if fromAgentID == "" {
		fromAgentID = "external-agent"
	}
	fromNodeID := strings.TrimSpace(p.FromNodeID)
	if fromNodeID == "" {
		fromNodeID = "unknown"
	}
	topic := strings.TrimSpace(p.Topic)
	if topic == "" {
		topic = "general"
	}
	payload := p.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	inboundRep := money.Clamp(p.FromReputation, 0, 1)

	now := time.Now().UTC()
	msg := &models.Message{
		MsgID:       ids.New("msg"),
		Type:        "contact_offer",
		FromAgentID: fromAgentID,
		ToAgentID:   p.ToAgentID,
		IntentID:    p.IntentID,
		Topic:       topic,
		Payload:     payload,
		Via:         models.MessageViaP2P,
		FromNodeID:  fromNodeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var out *models.Message
	err := s.store.Update(ctx, func(st *models.State) error {
		to, ok := st.Agents[p.ToAgentID]
		if !ok {
			return apperr.Validationf("toAgentId not found on this node")
		}

		refusal := detectRefusal(to, fromAgentID, inboundRep)
		if refusal != "" {
			msg.Status = models.MessageStatusRefused
			msg.ReasonCode = refusal
		} else {
			msg.Status = models.MessageStatusPending
		}
		st.Messages[msg.MsgID] = msg

		if refusal != "" {
			st.AppendEvent("contact_refused", models.ActorSystem, map[string]any{
				"msgId": msg.MsgID, "fromAgentId": fromAgentID,
				"toAgentId": p.ToAgentID, "reasonCode": refusal,
			})
		} else {
			st.AppendEvent("contact_offered", models.ActorSystem, map[string]any{
				"msgId": msg.MsgID, "fromAgentId": fromAgentID,
				"toAgentId": p.ToAgentID, "topic": topic, "via": models.MessageViaP2P,
			})
		}
		out = models.Clone(msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Accept moves a pending offer to ACCEPTED and records the granted
// permission level.
func (s *Service) Accept(ctx context.Context, msgID, agentID, permission, actorRole string) (*models.Message, error) {
	permission = strings.TrimSpace(permission)
	if permission == "" {
		permission = "quote_only"
	}

	var out *models.Message
	err := s.store.Update(ctx, func(st *models.State) error {
		msg, ok := st.Messages[msgID]
		if !ok {
			return apperr.NotFoundf("message not found")
		}
		if msg.ToAgentID != agentID {
			return apperr.Forbiddenf("agent cannot accept this message")
		}
		if msg.Status != models.MessageStatusPending {
			return apperr.Conflictf("message status is %s", msg.Status)
		}

		msg.Status = models.MessageStatusAccepted
		msg.Permission = permission
		msg.UpdatedAt = time.Now().UTC()

		st.AppendEvent("contact_accepted", actorRole, map[string]any{
			"msgId": msgID, "fromAgentId": msg.FromAgentID,
			"toAgentId": msg.ToAgentID, "permission": permission,
		})
		out = models.Clone(msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Refuse moves a pending offer to REFUSED with a reason from the
// fixed code set.
func (s *Service) Refuse(ctx context.Context, msgID, agentID, reasonCode, actorRole string) (*models.Message, error) {
	reasonCode = strings.TrimSpace(reasonCode)
	if reasonCode == "" {
		reasonCode = models.RefusalManualDeny
	}

	var out *models.Message
	err := s.store.Update(ctx, func(st *models.State) error {
		msg, ok := st.Messages[msgID]
		if !ok {
			return apperr.NotFoundf("message not found")
		}
		if msg.ToAgentID != agentID {
			return apperr.Forbiddenf("agent cannot refuse this message")
		}
		if !models.ValidRefusalCode(reasonCode) {
			return apperr.Validationf("invalid reasonCode")
		}
		if msg.Status != models.MessageStatusPending {
			return apperr.Conflictf("message status is %s", msg.Status)
		}

		msg.Status = models.MessageStatusRefused
		msg.ReasonCode = reasonCode
		msg.UpdatedAt = time.Now().UTC()

		st.AppendEvent("contact_refused", actorRole, map[string]any{
			"msgId": msgID, "fromAgentId": msg.FromAgentID,
			"toAgentId": msg.ToAgentID, "reasonCode": reasonCode,
		})
		out = models.Clone(msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Block adds a sender to the agent's blocklist idempotently.
func (s *Service) Block(ctx context.Context, agentID, senderID, actorRole string) (*models.Agent, error) {
	if strings.TrimSpace(senderID) == "" {
		return nil, apperr.Validationf("senderId is required")
	}

	var out *models.Agent
	err := s.store.Update(ctx, func(st *models.State) error {
		agent, ok := st.Agents[agentID]
		if !ok {
			return apperr.NotFoundf("agent not found")
		}
		if !agent.HasBlocked(senderID) {
			agent.Policy.BlockedSenders = append(agent.Policy.BlockedSenders, senderID)
		}
		agent.UpdatedAt = time.Now().UTC()

		st.AppendEvent("contact_blocked", actorRole, map[string]any{
			"agentId": agentID, "senderId": senderID,
		})
		out = models.Clone(agent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Inbox lists messages involving the agent, newest first.
func (s *Service) Inbox(agentID string, limit int) ([]*models.Message, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, apperr.Validationf("agentId is required")
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	out := []*models.Message{}
	s.store.View(func(st *models.State) {
		for _, msg := range st.Messages {
			if msg.ToAgentID == agentID || msg.FromAgentID == agentID {
				out = append(out, models.Clone(msg))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
