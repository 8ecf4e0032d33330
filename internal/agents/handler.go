package agents

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

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

type registerRequest struct {
	Name                    string   `json:"name"`
	Topics                  []string `json:"topics"`
	AutoRefuseMinReputation float64  `json:"autoRefuseMinReputation"`
}

// Register handles POST /v1/agents/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	agent, err := h.Svc.Register(r.Context(), RegisterParams{
		Name:                    req.Name,
		Topics:                  req.Topics,
		AutoRefuseMinReputation: req.AutoRefuseMinReputation,
		ActorRole:               middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"ok": true, "agent": agent})
}

type policyRequest struct {
	AgentID                 string   `json:"agentId"`
	AutoRefuseMinReputation *float64 `json:"autoRefuseMinReputation"`
	BlockedSenders          []string `json:"blockedSenders"`
}

// SetPolicy handles POST /v1/agents/policy (owner only).
func (h *Handler) SetPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	agent, err := h.Svc.SetPolicy(r.Context(), PolicyParams{
		AgentID:                 strings.TrimSpace(req.AgentID),
		AutoRefuseMinReputation: req.AutoRefuseMinReputation,
		BlockedSenders:          req.BlockedSenders,
		ActorRole:               middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "agent": agent})
}

type fundRequest struct {
	AgentID string  `json:"agentId"`
	Asset   string  `json:"asset"`
	Amount  float64 `json:"amount"`
	Note    string  `json:"note"`
}

// Fund handles POST /v1/agents/fund (owner only).
func (h *Handler) Fund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	agent, err := h.Svc.Fund(r.Context(), FundParams{
		AgentID:   strings.TrimSpace(req.AgentID),
		Asset:     req.Asset,
		Amount:    req.Amount,
		Note:      req.Note,
		ActorRole: middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "agent": agent})
}

type walletAddressRequest struct {
	AgentID string `json:"agentId"`
	Chain   string `json:"chain"`
	Address string `json:"address"`
}

// SetWalletAddress handles POST /v1/agents/wallet/address (owner only).
func (h *Handler) SetWalletAddress(w http.ResponseWriter, r *http.Request) {
	var req walletAddressRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	agent, err := h.Svc.SetWalletAddress(r.Context(), WalletAddressParams{
		AgentID:   strings.TrimSpace(req.AgentID),
		Chain:     req.Chain,
		Address:   req.Address,
		ActorRole: middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "agent": agent})
}

// List handles GET /v1/agents and GET /v1/a2a/discover.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	minRep, _ := strconv.ParseFloat(r.URL.Query().Get("minReputation"), 64)
	agents := h.Svc.List(topic, minRep)
	sort.Slice(agents, func(i, j int) bool { return agents[i].CreatedAt.Before(agents[j].CreatedAt) })
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(agents), "agents": agents})
}

// Get handles GET /v1/agents/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Svc.Get(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "agent": agent})
}
