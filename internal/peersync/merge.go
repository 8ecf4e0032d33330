package peersync

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/mammothnet/mammoth-node/internal/models"
	"github.com/mammothnet/mammoth-node/internal/money"
)

// versioned is any entity carrying a last-write timestamp.
type versioned interface {
	VersionTime() time.Time
}

// versionedPtr ties the constraint to pointer receivers.
type versionedPtr[E any] interface {
	*E
	versioned
}

// shouldReplace implements last-write-wins. On equal timestamps the
// larger marshaled document wins, so two nodes holding different
// same-second writes still converge on one of them.
func shouldReplace(local, remote versioned) bool {
	localAt := local.VersionTime()
	remoteAt := remote.VersionTime()
	if remoteAt.After(localAt) {
		return true
	}
	if remoteAt.Before(localAt) {
		return false
	}
	localDoc, _ := json.Marshal(local)
	remoteDoc, _ := json.Marshal(remote)
	return len(remoteDoc) > len(localDoc)
}

// MapStats counts one entity map's merge outcome.
type MapStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

func (m MapStats) total() int { return m.Inserted + m.Updated }

func mergeMap[E any, P versionedPtr[E]](local map[string]*E, remote map[string]*E) MapStats {
	var stats MapStats
	for id, remoteEntity := range remote {
		if remoteEntity == nil {
			continue
		}
		localEntity, ok := local[id]
		if !ok {
			local[id] = models.Clone(remoteEntity)
			stats.Inserted++
			continue
		}
		if shouldReplace(P(localEntity), P(remoteEntity)) {
			local[id] = models.Clone(remoteEntity)
			stats.Updated++
		}
	}
	return stats
}

// mergeEvents unions the journals by event id, re-sorts by timestamp,
// and re-applies the history cap.
func mergeEvents(st *models.State, remote []*models.Event) int {
	existing := make(map[string]bool, len(st.Events))
	for _, ev := range st.Events {
		existing[ev.EventID] = true
	}

	added := 0
	for _, ev := range remote {
		if ev == nil || ev.EventID == "" || existing[ev.EventID] {
			continue
		}
		st.Events = append(st.Events, models.Clone(ev))
		existing[ev.EventID] = true
		added++
	}

	sort.SliceStable(st.Events, func(i, j int) bool {
		return st.Events[i].Timestamp.Before(st.Events[j].Timestamp)
	})
	if limit := st.EventCap(); len(st.Events) > limit {
		st.Events = st.Events[len(st.Events)-limit:]
	}
	return added
}

// mergePlatform folds the remote platform ledger in. Tax revenue and
// the tax rate are monotone, so the maximum always wins.
func mergePlatform(st *models.State, remote models.Platform) int {
	updated := 0
	remoteTaxBps := models.NormalizeTaxBps(remote.TaxBps)
	if remoteTaxBps > st.Platform.TaxBps {
		st.Platform.TaxBps = remoteTaxBps
		updated++
	}
	if label := strings.TrimSpace(remote.Label); label != "" {
		st.Platform.Label = label
	}
	for asset, amount := range remote.Treasury {
		if amount > st.Platform.Treasury[asset] {
			st.Platform.Treasury[asset] = money.Round(amount, asset)
			updated++
		}
	}
	return updated
}

// mergePeers adopts remote peer records: unknown peers come in as
// DISCOVERED without a token, known peers update by recency. The local
// auth token is never overwritten.
func mergePeers(st *models.State, remote map[string]*models.PublicPeer) MapStats {
	var stats MapStats
	for peerID, remotePeer := range remote {
		if remotePeer == nil || peerID == "" || remotePeer.URL == "" {
			continue
		}
		local, ok := st.Peers[peerID]
		if !ok {
			added := remotePeer.AddedAt
			if added.IsZero() {
				added = time.Now().UTC()
			}
			status := remotePeer.Status
			if status == "" {
				status = models.PeerStatusDiscovered
			}
			syncStatus := remotePeer.LastSyncStatus
			if syncStatus == "" {
				syncStatus = models.SyncStatusNever
			}
			st.Peers[peerID] = &models.Peer{
				PeerID:         peerID,
				URL:            remotePeer.URL,
				Status:         status,
				AddedAt:        added,
				LastSeenAt:     remotePeer.LastSeenAt,
				LastSyncAt:     remotePeer.LastSyncAt,
				LastSyncStatus: syncStatus,
				LastSyncError:  remotePeer.LastSyncError,
				AutoSync:       remotePeer.AutoSync,
			}
			stats.Inserted++
			continue
		}
		if remotePeer.VersionTime().After(local.VersionTime()) {
			if remotePeer.URL != "" {
				local.URL = remotePeer.URL
			}
			if remotePeer.Status != "" {
				local.Status = remotePeer.Status
			}
			if remotePeer.LastSeenAt != nil {
				local.LastSeenAt = remotePeer.LastSeenAt
			}
			if remotePeer.LastSyncAt != nil {
				local.LastSyncAt = remotePeer.LastSyncAt
			}
			if remotePeer.LastSyncStatus != "" {
				local.LastSyncStatus = remotePeer.LastSyncStatus
			}
			local.LastSyncError = remotePeer.LastSyncError
			stats.Updated++
		}
	}
	return stats
}

// MergeStats is the per-collection outcome of one snapshot merge.
type MergeStats struct {
	Agents      MapStats `json:"agents"`
	Intents     MapStats `json:"intents"`
	Actions     MapStats `json:"actions"`
	Messages    MapStats `json:"messages"`
	Claims      MapStats `json:"claims"`
	Offers      MapStats `json:"offers"`
	Asks        MapStats `json:"asks"`
	Executions  MapStats `json:"executions"`
	Obligations MapStats `json:"obligations"`
	Deposits    MapStats `json:"deposits"`
	Platform    int      `json:"platformUpdated"`
	Peers       MapStats `json:"peers"`
	EventsAdded int      `json:"eventsAdded"`
}

// TotalChanges sums every insert, update, and event addition.
func (m MergeStats) TotalChanges() int {
	return m.Agents.total() + m.Intents.total() + m.Actions.total() +
		m.Messages.total() + m.Claims.total() + m.Offers.total() +
		m.Asks.total() + m.Executions.total() + m.Obligations.total() +
		m.Deposits.total() + m.Platform + m.Peers.total() + m.EventsAdded
}

// MergeSnapshot folds a remote snapshot into the local state and
// reports what changed. The merge is idempotent: replaying the same
// snapshot yields zero changes.
func MergeSnapshot(st *models.State, snapshot *models.SyncSnapshot) MergeStats {
	data := snapshot.Data
	stats := MergeStats{
		Agents:      mergeMap(st.Agents, data.Agents),
		Intents:     mergeMap(st.Intents, data.Intents),
		Actions:     mergeMap(st.Actions, data.Actions),
		Messages:    mergeMap(st.Messages, data.Messages),
		Claims:      mergeMap(st.Claims, data.Claims),
		Offers:      mergeMap(st.Market.Offers, data.Market.Offers),
		Asks:        mergeMap(st.Market.Asks, data.Market.Asks),
		Executions:  mergeMap(st.Market.Executions, data.Market.Executions),
		Obligations: mergeMap(st.Market.Obligations, data.Market.Obligations),
		Deposits:    mergeMap(st.Crypto.Deposits, data.Crypto.Deposits),
		Platform:    mergePlatform(st, data.Platform),
		Peers:       mergePeers(st, data.Peers),
		EventsAdded: mergeEvents(st, data.Events),
	}
	return stats
}
