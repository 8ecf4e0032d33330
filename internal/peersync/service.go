// Package peersync implements the anti-entropy protocol: full-state
// snapshot exchange, last-write-wins merge, and the peer registry.
package peersync

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mammothnet/mammoth-node/internal/apperr"
	"github.com/mammothnet/mammoth-node/internal/ids"
	"github.com/mammothnet/mammoth-node/internal/models"
	"github.com/mammothnet/mammoth-node/internal/store"
)

// Sync sources. Auto syncs suppress quiet writes; manual ones always
// touch the peer record.
const (
	SourceManual = "manual"
	SourceAuto   = "auto"
)

// livenessRefresh is how stale a peer's lastSeenAt may grow during
// quiet auto syncs before the record is touched anyway.
const livenessRefresh = 60 * time.Second

// Fetcher is the remote side of a sync. *Client satisfies it; tests
// substitute a fake.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, peerURL, peerToken string) (*models.SyncSnapshot, error)
	Ping(ctx context.Context, peerURL, peerToken string) (map[string]any, error)
}

type Service struct {
	store  *store.Store
	client Fetcher
	logger *slog.Logger

	now func() time.Time
}

func NewService(st *store.Store, client Fetcher, logger *slog.Logger) *Service {
	return &Service{store: st, client: client, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Snapshot exports the current state for a requesting peer.
func (s *Service) Snapshot() *models.SyncSnapshot {
	var snap *models.SyncSnapshot
	s.store.View(func(st *models.State) {
		snap = models.Clone(Export(st))
	})
	return snap
}

type AddPeerParams struct {
	PeerID    string
	URL       string
	PeerToken string
	AutoSync  bool
	ActorRole string
}

// AddPeer registers or replaces a peer record.
func (s *Service) AddPeer(ctx context.Context, p AddPeerParams) (*models.PublicPeer, error) {
	url := strings.TrimSpace(p.URL)
	if url == "" {
		return nil, apperr.Validationf("url is required")
	}
	peerID := strings.TrimSpace(p.PeerID)
	if peerID == "" {
		peerID = ids.New("peer")
	}

	var out *models.PublicPeer
	err := s.store.Update(ctx, func(st *models.State) error {
		peer := &models.Peer{
			PeerID:         peerID,
			URL:            url,
			Status:         models.PeerStatusAdded,
			AddedAt:        s.now(),
			LastSyncStatus: models.SyncStatusNever,
			AutoSync:       p.AutoSync,
			AuthToken:      strings.TrimSpace(p.PeerToken),
		}
		st.Peers[peerID] = peer
		st.AppendEvent("peer_added", p.ActorRole, map[string]any{
			"peerId": peerID, "url": url,
		})
		out = peer.Public()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListPeers returns the registry in public form, oldest first.
func (s *Service) ListPeers() []*models.PublicPeer {
	out := []*models.PublicPeer{}
	s.store.View(func(st *models.State) {
		for _, peer := range st.Peers {
			out = append(out, peer.Public())
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out
}

type PingResult struct {
	OK     bool               `json:"ok"`
	Peer   *models.PublicPeer `json:"peer"`
	Health map[string]any     `json:"health,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// PingPeer checks the peer's health endpoint and records the outcome
// on its registry entry.
func (s *Service) PingPeer(ctx context.Context, peerID, peerToken string) (*PingResult, error) {
	var (
		peerURL    string
		storedToke string
	)
	found := false
	s.store.View(func(st *models.State) {
		if peer, ok := st.Peers[peerID]; ok {
			found = true
			peerURL = peer.URL
			storedToke = peer.AuthToken
		}
	})
	if !found {
		return nil, apperr.NotFoundf("peer not found")
	}

	token := strings.TrimSpace(peerToken)
	if token == "" {
		token = storedToke
	}
	health, pingErr := s.client.Ping(ctx, peerURL, token)

	res := &PingResult{OK: pingErr == nil, Health: health}
	err := s.store.Update(ctx, func(st *models.State) error {
		peer, ok := st.Peers[peerID]
		if !ok {
			return apperr.NotFoundf("peer not found")
		}
		if pingErr == nil {
			now := s.now()
			peer.Status = models.PeerStatusOnline
			peer.LastSeenAt = &now
			if strings.TrimSpace(peerToken) != "" {
				peer.AuthToken = strings.TrimSpace(peerToken)
			}
			st.AppendEvent("peer_ping_ok", models.ActorSystem, map[string]any{
				"peerId": peerID, "url": peer.URL,
			})
		} else {
			peer.Status = models.PeerStatusOffline
			res.Error = pingErr.Error()
			st.AppendEvent("peer_ping_failed", models.ActorSystem, map[string]any{
				"peerId": peerID, "url": peer.URL, "error": pingErr.Error(),
			})
		}
		res.Peer = peer.Public()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SyncResult is one peer's sync outcome.
type SyncResult struct {
	OK           bool        `json:"ok"`
	Changed      bool        `json:"changed"`
	PeerID       string      `json:"peerId"`
	URL          string      `json:"url"`
	RemoteNodeID string      `json:"remoteNodeId,omitempty"`
	Merge        *MergeStats `json:"merge,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// SyncTotals aggregates a multi-peer sync run.
type SyncTotals struct {
	Peers        int `json:"peers"`
	Success      int `json:"success"`
	Failed       int `json:"failed"`
	TotalChanges int `json:"totalChanges"`
}

type SyncParams struct {
	PeerID    string
	PeerToken string
	Source    string
}

// Sync pulls snapshots from one peer or all of them and merges each
// into local state. Zero configured peers is a validation error for
// manual syncs.
func (s *Service) Sync(ctx context.Context, p SyncParams) ([]SyncResult, SyncTotals, error) {
	source := p.Source
	if source == "" {
		source = SourceManual
	}

	type target struct {
		peerID string
		url    string
		token  string
	}
	targets := []target{}
	missing := false
	s.store.View(func(st *models.State) {
		if p.PeerID != "" {
			peer, ok := st.Peers[p.PeerID]
			if !ok {
				missing = true
				return
			}
			targets = append(targets, target{peer.PeerID, peer.URL, peer.AuthToken})
			return
		}
		for _, peer := range st.Peers {
			if source == SourceAuto && !peer.AutoSync {
				continue
			}
			targets = append(targets, target{peer.PeerID, peer.URL, peer.AuthToken})
		}
	})
	if missing {
		return nil, SyncTotals{}, apperr.NotFoundf("peer not found")
	}
	if len(targets) == 0 {
		if source == SourceAuto {
			return nil, SyncTotals{}, nil
		}
		return nil, SyncTotals{}, apperr.Validationf("no peers configured")
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].peerID < targets[j].peerID })

	results := make([]SyncResult, 0, len(targets))
	totals := SyncTotals{Peers: len(targets)}
	for _, t := range targets {
		token := strings.TrimSpace(p.PeerToken)
		if token == "" {
			token = t.token
		}
		result := s.syncOne(ctx, t.peerID, t.url, token, strings.TrimSpace(p.PeerToken), source)
		results = append(results, result)
		if result.OK {
			totals.Success++
			if result.Merge != nil {
				totals.TotalChanges += result.Merge.TotalChanges()
			}
		} else {
			totals.Failed++
		}
	}
	return results, totals, nil
}

// syncOne fetches the snapshot outside the store lock, then merges it
// under one write. During quiet auto syncs the peer record is left
// untouched so the loop does not rewrite the snapshot every interval;
// it is still refreshed when anything merged, when the peer's status
// changed, or once the liveness window lapses.
func (s *Service) syncOne(ctx context.Context, peerID, peerURL, token, explicitToken, source string) SyncResult {
	snapshot, fetchErr := s.client.FetchSnapshot(ctx, peerURL, token)

	result := SyncResult{PeerID: peerID, URL: peerURL}
	updateErr := s.store.UpdateIf(ctx, func(st *models.State) (bool, error) {
		peer, ok := st.Peers[peerID]
		if !ok {
			return false, apperr.NotFoundf("peer not found")
		}
		now := s.now()
		previousStatus := peer.LastSyncStatus
		changed := false

		if fetchErr != nil {
			result.Error = fetchErr.Error()
			touch := source == SourceManual ||
				previousStatus != models.SyncStatusFailed ||
				peer.LastSyncError != fetchErr.Error() ||
				peer.LastSyncAt == nil || now.Sub(*peer.LastSyncAt) >= livenessRefresh
			if touch {
				peer.Status = models.PeerStatusOffline
				peer.LastSyncAt = &now
				peer.LastSyncStatus = models.SyncStatusFailed
				peer.LastSyncError = fetchErr.Error()
				changed = true
			}
			if source == SourceManual || previousStatus != models.SyncStatusFailed {
				st.AppendEvent("peer_sync_failed", models.ActorSystem, map[string]any{
					"peerId": peerID, "url": peerURL, "error": fetchErr.Error(), "source": source,
				})
				changed = true
			}
			result.Changed = changed
			return changed, nil
		}

		merge := MergeSnapshot(st, snapshot)
		result.OK = true
		result.RemoteNodeID = snapshot.NodeID
		result.Merge = &merge

		touch := source == SourceManual ||
			merge.TotalChanges() > 0 ||
			previousStatus != models.SyncStatusOK ||
			peer.LastSeenAt == nil || now.Sub(*peer.LastSeenAt) >= livenessRefresh
		if touch {
			peer.Status = models.PeerStatusOnline
			peer.LastSeenAt = &now
			peer.LastSyncAt = &now
			peer.LastSyncStatus = models.SyncStatusOK
			peer.LastSyncError = ""
			changed = true
		}
		if explicitToken != "" && peer.AuthToken != explicitToken {
			peer.AuthToken = explicitToken
			changed = true
		}
		if source == SourceManual || merge.TotalChanges() > 0 || previousStatus != models.SyncStatusOK {
			st.AppendEvent("peer_sync_ok", models.ActorSystem, map[string]any{
				"peerId": peerID, "url": peerURL, "remoteNodeId": snapshot.NodeID,
				"totalChanges": merge.TotalChanges(), "source": source,
			})
			changed = true
		}
		result.Changed = changed || merge.TotalChanges() > 0
		return changed || merge.TotalChanges() > 0, nil
	})
	if updateErr != nil {
		result.OK = false
		result.Error = updateErr.Error()
	}
	return result
}
