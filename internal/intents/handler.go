package intents

import (
	"log/slog"
	"net/http"
	"sort"

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

type createRequest struct {
	AgentID     string         `json:"agentId"`
	Goal        string         `json:"goal"`
	Budget      float64        `json:"budget"`
	Constraints map[string]any `json:"constraints"`
}

// Create handles POST /v1/intents.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	intent, err := h.Svc.Create(r.Context(), CreateParams{
		AgentID:     req.AgentID,
		Goal:        req.Goal,
		Budget:      req.Budget,
		Constraints: req.Constraints,
		ActorRole:   middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"ok": true, "intent": intent})
}

// List handles GET /v1/intents.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	intents := h.Svc.List(r.URL.Query().Get("agentId"), r.URL.Query().Get("status"))
	sort.Slice(intents, func(i, j int) bool { return intents[i].CreatedAt.Before(intents[j].CreatedAt) })
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(intents), "intents": intents})
}

type runRequest struct {
	AgentID       string   `json:"agentId"`
	IntentID      string   `json:"intentId"`
	BaseFee       *float64 `json:"baseFee"`
	QualitySignal *float64 `json:"qualitySignal"`
}

// RunAction handles POST /v1/actions/run. An omitted baseFee defaults
// to 10.
func (h *Handler) RunAction(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	baseFee := 10.0
	if req.BaseFee != nil {
		baseFee = *req.BaseFee
	}
	res, err := h.Svc.Run(r.Context(), RunParams{
		AgentID:       req.AgentID,
		IntentID:      req.IntentID,
		BaseFee:       baseFee,
		QualitySignal: req.QualitySignal,
		ActorRole:     middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "action": res.Action, "agent": res.Agent})
}

// ListActions handles GET /v1/actions.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	actions := h.Svc.ListActions(r.URL.Query().Get("agentId"))
	sort.Slice(actions, func(i, j int) bool { return actions[i].CreatedAt.Before(actions[j].CreatedAt) })
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(actions), "actions": actions})
}
