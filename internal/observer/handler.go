// Package observer serves the read-only node views: health, node info,
// platform treasury, the aggregate summary, and the event timeline.
package observer

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mammothnet/mammoth-node/internal/httpx"
	"github.com/mammothnet/mammoth-node/internal/models"
	"github.com/mammothnet/mammoth-node/internal/store"
)

// ServiceName identifies the daemon in health replies.
const ServiceName = "mammoth-node"

type Handler struct {
	Store  *store.Store
	Host   string
	Port   int
	Logger *slog.Logger
}

func NewHandler(st *store.Store, host string, port int, logger *slog.Logger) *Handler {
	return &Handler{Store: st, Host: host, Port: port, Logger: logger}
}

// Health handles GET /health. It is the only unauthenticated route.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": ServiceName,
		"host":    h.Host,
		"port":    h.Port,
		"now":     time.Now().UTC(),
		"nodeId":  h.Store.NodeID(),
	})
}

// NodeInfo handles GET /v1/node/info.
func (h *Handler) NodeInfo(w http.ResponseWriter, r *http.Request) {
	var (
		meta    models.Meta
		cfg     models.Config
		summary *models.Summary
	)
	h.Store.View(func(st *models.State) {
		meta = st.Meta
		cfg = st.Config
		summary = models.BuildSummary(st)
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"ok": true, "meta": meta, "config": cfg, "summary": summary,
	})
}

// PlatformTreasury handles GET /v1/platform/treasury.
func (h *Handler) PlatformTreasury(w http.ResponseWriter, r *http.Request) {
	var platform *models.Platform
	h.Store.View(func(st *models.State) {
		platform = models.Clone(&st.Platform)
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "platform": platform})
}

// Summary handles GET /v1/observer/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	var summary *models.Summary
	h.Store.View(func(st *models.State) {
		summary = models.BuildSummary(st)
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "summary": summary})
}

// Timeline handles GET /v1/observer/timeline: the newest events first,
// limited to [1, 200] with a default of 20.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	events := []*models.Event{}
	h.Store.View(func(st *models.State) {
		start := len(st.Events) - limit
		if start < 0 {
			start = 0
		}
		for i := len(st.Events) - 1; i >= start; i-- {
			events = append(events, models.Clone(st.Events[i]))
		}
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(events), "events": events})
}
