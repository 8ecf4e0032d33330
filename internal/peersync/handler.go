package peersync

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

// Snapshot handles POST /v1/p2p/snapshot (owner only).
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "snapshot": h.Svc.Snapshot()})
}

type addPeerRequest struct {
	PeerID    string `json:"peerId"`
	URL       string `json:"url"`
	PeerToken string `json:"peerToken"`
	AutoSync  *bool  `json:"autoSync"`
}

// AddPeer handles POST /v1/peers/add (owner only). autoSync defaults
// to true.
func (h *Handler) AddPeer(w http.ResponseWriter, r *http.Request) {
	var req addPeerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	peer, err := h.Svc.AddPeer(r.Context(), AddPeerParams{
		PeerID:    req.PeerID,
		URL:       req.URL,
		PeerToken: req.PeerToken,
		AutoSync:  req.AutoSync == nil || *req.AutoSync,
		ActorRole: middleware.RoleFromCtx(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"ok": true, "peer": peer})
}

// ListPeers handles GET /v1/peers.
func (h *Handler) ListPeers(w http.ResponseWriter, r *http.Request) {
	peers := h.Svc.ListPeers()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(peers), "peers": peers})
}

type pingRequest struct {
	PeerID    string `json:"peerId"`
	PeerToken string `json:"peerToken"`
}

// PingPeer handles POST /v1/peers/ping (owner only). An unreachable
// peer still answers 200 with ok=false.
func (h *Handler) PingPeer(w http.ResponseWriter, r *http.Request) {
	var req pingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	res, err := h.Svc.PingPeer(r.Context(), req.PeerID, req.PeerToken)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	if res.OK {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "peer": res.Peer, "health": res.Health})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": false, "peer": res.Peer, "error": res.Error})
}

type syncRequest struct {
	PeerID    string `json:"peerId"`
	PeerToken string `json:"peerToken"`
}

// SyncPeers handles POST /v1/peers/sync (owner only).
func (h *Handler) SyncPeers(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	results, totals, err := h.Svc.Sync(r.Context(), SyncParams{
		PeerID:    req.PeerID,
		PeerToken: req.PeerToken,
		Source:    SourceManual,
	})
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"ok": true, "count": len(results), "totals": totals, "results": results,
	})
}
