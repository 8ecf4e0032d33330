package market

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
	AgentID          string   `json:"agentId"`
	Topic            string   `json:"topic"`
	Mode             string   `json:"mode"`
	Asset            string   `json:"asset"`
	PricePerQuestion *float64 `json:"pricePerQuestion"`
	QualityHint      *float64 `json:"qualityHint"`
	BarterRequest    string   `json:"barterRequest"`
	BarterDueHours   float64  `json:"barterDueHours"`
}

// UpsertOffer handles POST /v1/market/offers.
func (h *Handler) UpsertOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	offer, err := h.Svc.UpsertOffer(r.Context(), OfferParams{
		AgentID:          req.AgentID,
		Topic:            req.Topic,
		Mode:             req.Mode,
		Asset:            req.Asset,
		PricePerQuestion: req.PricePerQuestion,
		QualityHint:      req.QualityHint,
		BarterRequest:    req.BarterRequest,
		BarterDueHours:   req.BarterDueHours,
		ActorRole:        middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "offer": offer})
}

// ListOffers handles GET /v1/market/offers.
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offers := h.Svc.ListOffers(OfferFilter{
		Topic:   q.Get("topic"),
		AgentID: q.Get("agentId"),
		Mode:    q.Get("mode"),
		Status:  q.Get("status"),
		Asset:   q.Get("asset"),
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(offers), "offers": offers})
}

type askRequest struct {
	RequesterAgentID string  `json:"requesterAgentId"`
	Topic            string  `json:"topic"`
	Question         string  `json:"question"`
	Asset            string  `json:"asset"`
	MaxBudget        float64 `json:"maxBudget"`
	Strategy         string  `json:"strategy"`
	AutoExecute      *bool   `json:"autoExecute"`
	ModePreference   string  `json:"modePreference"`
	BarterOffer      string  `json:"barterOffer"`
}

// Ask handles POST /v1/market/ask. autoExecute defaults to true; a
// delivered trade answers 201, a quote-only or unmatched ask 200.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	autoExecute := req.AutoExecute == nil || *req.AutoExecute

	res, err := h.Svc.Ask(r.Context(), AskParams{
		RequesterAgentID: req.RequesterAgentID,
		Topic:            req.Topic,
		Question:         req.Question,
		Asset:            req.Asset,
		MaxBudget:        req.MaxBudget,
		Strategy:         req.Strategy,
		AutoExecute:      autoExecute,
		ModePreference:   req.ModePreference,
		BarterOffer:      req.BarterOffer,
		ActorRole:        middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		if res != nil && res.Ask != nil {
			httpx.WriteJSON(w, httpx.StatusOf(err), map[string]any{
				"error": err.Error(), "ask": res.Ask,
			})
			return
		}
		httpx.WriteError(w, h.Logger, err)
		return
	}

	if res.Execution != nil {
		httpx.WriteJSON(w, http.StatusCreated, map[string]any{
			"ok": true, "ask": res.Ask, "execution": res.Execution,
			"obligation": res.Obligation, "provider": res.Provider,
			"requester": res.Requester,
		})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "ask": res.Ask, "quotes": res.Quotes})
}

// ListAsks handles GET /v1/market/asks.
func (h *Handler) ListAsks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	asks := h.Svc.ListAsks(AskFilter{
		RequesterAgentID: q.Get("requesterAgentId"),
		ProviderAgentID:  q.Get("providerAgentId"),
		Status:           q.Get("status"),
		Topic:            q.Get("topic"),
		Asset:            q.Get("asset"),
		Limit:            limit,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(asks), "asks": asks})
}

// ListExecutions handles GET /v1/market/executions.
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	executions := h.Svc.ListExecutions(ExecutionFilter{
		RequesterAgentID: q.Get("requesterAgentId"),
		ProviderAgentID:  q.Get("providerAgentId"),
		AskID:            q.Get("askId"),
		Asset:            q.Get("asset"),
		Limit:            limit,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(executions), "executions": executions})
}

// ListObligations handles GET /v1/market/obligations.
func (h *Handler) ListObligations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	obligations := h.Svc.ListObligations(ObligationFilter{
		DebtorAgentID:   q.Get("debtorAgentId"),
		CreditorAgentID: q.Get("creditorAgentId"),
		AskID:           q.Get("askId"),
		Status:          q.Get("status"),
		Limit:           limit,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(obligations), "obligations": obligations})
}

type submitRequest struct {
	ObligationID string         `json:"obligationId"`
	AgentID      string         `json:"agentId"`
	Proof        string         `json:"proof"`
	Delivery     map[string]any `json:"delivery"`
}

// SubmitObligation handles POST /v1/market/obligations/submit.
func (h *Handler) SubmitObligation(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	obligation, err := h.Svc.SubmitObligation(r.Context(), SubmitParams{
		ObligationID: req.ObligationID,
		AgentID:      req.AgentID,
		Proof:        req.Proof,
		Delivery:     req.Delivery,
		ActorRole:    middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "obligation": obligation})
}

type reviewRequest struct {
	ObligationID string `json:"obligationId"`
	AgentID      string `json:"agentId"`
	Decision     string `json:"decision"`
	Note         string `json:"note"`
}

// ReviewObligation handles POST /v1/market/obligations/review.
func (h *Handler) ReviewObligation(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	res, err := h.Svc.ReviewObligation(r.Context(), ReviewParams{
		ObligationID: req.ObligationID,
		AgentID:      req.AgentID,
		Decision:     req.Decision,
		Note:         req.Note,
		ActorRole:    middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"ok": true, "obligation": res.Obligation,
		"debtor": res.Debtor, "creditor": res.Creditor,
	})
}
