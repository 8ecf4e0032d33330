package claims

import (
	"log/slog"
	"net/http"

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

type requestBody struct {
	AgentID string  `json:"agentId"`
	Asset   string  `json:"asset"`
	Amount  float64 `json:"amount"`
}

// Request handles POST /v1/claims/request (owner only).
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	var req requestBody
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	res, err := h.Svc.Request(r.Context(), RequestParams{
		AgentID:   req.AgentID,
		Asset:     req.Asset,
		Amount:    req.Amount,
		ActorRole: middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"ok": true, "claim": res.Claim, "agent": res.Agent})
}

type executeBody struct {
	ClaimID string `json:"claimId"`
}

// Execute handles POST /v1/claims/execute (owner only).
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeBody
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	res, err := h.Svc.Execute(r.Context(), req.ClaimID, middleware.RoleFromCtx(r.Context()))
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "claim": res.Claim, "agent": res.Agent})
}

// List handles GET /v1/claims.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims := h.Svc.List(r.URL.Query().Get("agentId"), r.URL.Query().Get("asset"))
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(claims), "claims": claims})
}
