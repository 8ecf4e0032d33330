package contacts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mammothnet/mammoth-node/internal/httpx"
	"github.com/mammothnet/mammoth-node/internal/middleware"
)

type Handler struct {
	Svc    *Service
	Logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{Svc: svc, Logger: logger}
}

type offerRequest struct {
	FromAgentID string         `json:"fromAgentId"`
	ToAgentID   string         `json:"toAgentId"`
	Topic       string         `json:"topic"`
	IntentID    string         `json:"intentId"`
	Payload     map[string]any `json:"payload"`
	PeerURL     string         `json:"peerUrl"`
	PeerToken   string         `json:"peerToken"`
	FromNodeID  string         `json:"fromNodeId"`
}

// CreateOffer handles POST /v1/a2a/contact-offers.
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	res, err := h.Svc.CreateOffer(r.Context(), OfferParams{
		FromAgentID: req.FromAgentID,
		ToAgentID:   req.ToAgentID,
		Topic:       req.Topic,
		IntentID:    req.IntentID,
		Payload:     req.Payload,
		PeerURL:     req.PeerURL,
		PeerToken:   req.PeerToken,
		FromNodeID:  req.FromNodeID,
		ActorRole:   middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"ok": true, "message": res.Message, "relay": res.Relay})
}

type inboundRequest struct {
	FromNodeID     string         `json:"fromNodeId"`
	FromAgentID    string         `json:"fromAgentId"`
	FromReputation float64        `json:"fromReputation"`
	ToAgentID      string         `json:"toAgentId"`
	Topic          string         `json:"topic"`
	IntentID       string         `json:"intentId"`
	Payload        map[string]any `json:"payload"`
}

// InboundOffer handles POST /v1/p2p/contact-offer.
func (h *Handler) InboundOffer(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	msg, err := h.Svc.InboundOffer(r.Context(), InboundParams{
		FromNodeID:     req.FromNodeID,
		FromAgentID:    req.FromAgentID,
		FromReputation: req.FromReputation,
		ToAgentID:      req.ToAgentID,
		Topic:          req.Topic,
		IntentID:       req.IntentID,
		Payload:        req.Payload,
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"ok": true, "message": msg})
}

type acceptRequest struct {
	MsgID      string `json:"msgId"`
	AgentID    string `json:"agentId"`
	Permission string `json:"permission"`
}

// Accept handles POST /v1/a2a/contact-accept.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	msg, err := h.Svc.Accept(r.Context(), req.MsgID, req.AgentID, req.Permission, middleware.RoleFromCtx(r.Context()))
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "message": msg})
}

type refuseRequest struct {
	MsgID      string `json:"msgId"`
	AgentID    string `json:"agentId"`
	ReasonCode string `json:"reasonCode"`
}

// Refuse handles POST /v1/a2a/contact-refuse.
func (h *Handler) Refuse(w http.ResponseWriter, r *http.Request) {
	var req refuseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	msg, err := h.Svc.Refuse(r.Context(), req.MsgID, req.AgentID, req.ReasonCode, middleware.RoleFromCtx(r.Context()))
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "message": msg})
}

type blockRequest struct {
	AgentID  string `json:"agentId"`
	SenderID string `json:"senderId"`
}

// Block handles POST /v1/a2a/block.
func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	agent, err := h.Svc.Block(r.Context(), req.AgentID, req.SenderID, middleware.RoleFromCtx(r.Context()))
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "agent": agent})
}

// Inbox handles GET /v1/a2a/inbox.
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	messages, err := h.Svc.Inbox(r.URL.Query().Get("agentId"), limit)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(messages), "messages": messages})
}
