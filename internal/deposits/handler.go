package deposits

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

type verifyRequest struct {
	AgentID          string `json:"agentId"`
	Asset            string `json:"asset"`
	TxHash           string `json:"txHash"`
	ChainID          int64  `json:"chainId"`
	MinConfirmations int64  `json:"minConfirmations"`
}

// Verify handles POST /v1/crypto/deposits/verify (owner only).
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	res, err := h.Svc.Verify(r.Context(), VerifyParams{
		AgentID:          req.AgentID,
		Asset:            req.Asset,
		TxHash:           req.TxHash,
		ChainID:          req.ChainID,
		MinConfirmations: req.MinConfirmations,
		ActorRole:        middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"ok": true, "agentId": res.AgentID, "asset": res.Asset,
		"txHash": res.TxHash, "chainId": res.ChainID,
		"creditedAmount":              res.CreditedAmount,
		"matchedAddressTransferCount": res.MatchedAddressTransferCount,
		"balanceBefore":               res.BalanceBefore,
		"balanceAfter":                res.BalanceAfter,
		"count":                       res.Count,
		"deposits":                    res.Deposits,
		"agent":                       res.Agent,
	})
}

// List handles GET /v1/crypto/deposits.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	deposits := h.Svc.List(Filter{
		AgentID: q.Get("agentId"),
		Asset:   q.Get("asset"),
		TxHash:  q.Get("txHash"),
		Limit:   limit,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(deposits), "deposits": deposits})
}
