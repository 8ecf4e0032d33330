package peersync

import (
	"testing"
	"time"

	"github.com/mammothnet/mammoth-node/internal/ids"
	"github.com/mammothnet/mammoth-node/internal/models"
)

func newState() *models.State {
	return models.NewState(models.Config{
		ClaimCooldownSec: 86400, MaxRunBaseFee: 100000,
		PeerSyncIntervalSec: 20, PeerSyncTimeoutMs: 7000, MaxEventHistory: 5000,
	}, "mammoth_protocol", 250)
}

func makeAgent(id, name string, updatedAt time.Time) *models.Agent {
	a := &models.Agent{
		AgentID: id, Name: name, Status: models.AgentStatusActive,
		Reputation: 0.5, CreatedAt: updatedAt.Add(-time.Hour), UpdatedAt: updatedAt,
	}
	a.Normalize()
	return a
}

// ---------------------------------------------------------------------------
// shouldReplace
// ---------------------------------------------------------------------------

func TestShouldReplaceLastWriteWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	local := makeAgent("agent_a", "old", base)
	remote := makeAgent("agent_a", "new", base.Add(time.Second))

	if !shouldReplace(local, remote) {
		t.Error("newer remote must win")
	}
	if shouldReplace(remote, local) {
		t.Error("older remote must lose")
	}
}

func TestShouldReplaceSizeTieBreak(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	small := makeAgent("agent_a", "x", base)
	large := makeAgent("agent_a", "a much longer display name", base)

	if !shouldReplace(small, large) {
		t.Error("equal timestamps: larger document must win")
	}
	if shouldReplace(large, small) {
		t.Error("equal timestamps: smaller document must lose")
	}
	// Two nodes applying the rule to the same pair converge either way.
	if shouldReplace(small, small) {
		t.Error("identical documents must not replace")
	}
}

// ---------------------------------------------------------------------------
// MergeSnapshot
// ---------------------------------------------------------------------------

func TestMergeSnapshotInsertsAndIsIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	local := newState()
	remote := newState()
	remote.Agents["agent_a"] = makeAgent("agent_a", "alice", base)
	remote.AppendEvent("agent_registered", "owner", map[string]any{"agentId": "agent_a"})
	remote.Platform.Treasury["CREDIT"] = 3.5

	stats := MergeSnapshot(local, Export(remote))
	if stats.Agents.Inserted != 1 || stats.EventsAdded != 1 {
		t.Errorf("first merge stats = %+v", stats)
	}
	if stats.TotalChanges() == 0 {
		t.Error("first merge reported no changes")
	}
	if local.Agents["agent_a"] == nil || local.Agents["agent_a"].Name != "alice" {
		t.Fatalf("agent not merged: %+v", local.Agents["agent_a"])
	}
	// merged entities are copies, not aliases of the remote state
	local.Agents["agent_a"].Name = "mutated"
	if remote.Agents["agent_a"].Name != "alice" {
		t.Error("merge aliased the remote entity")
	}
	local.Agents["agent_a"].Name = "alice"

	replay := MergeSnapshot(local, Export(remote))
	if replay.TotalChanges() != 0 {
		t.Errorf("replay changed state: %+v", replay)
	}
}

func TestMergeSnapshotPrefersNewerEntity(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	local := newState()
	local.Agents["agent_a"] = makeAgent("agent_a", "stale", base)
	remote := newState()
	remote.Agents["agent_a"] = makeAgent("agent_a", "fresh", base.Add(time.Minute))

	stats := MergeSnapshot(local, Export(remote))
	if stats.Agents.Updated != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if local.Agents["agent_a"].Name != "fresh" {
		t.Errorf("agent = %+v", local.Agents["agent_a"])
	}

	// A stale remote copy never rolls the entity back.
	older := newState()
	older.Agents["agent_a"] = makeAgent("agent_a", "ancient", base.Add(-time.Hour))
	stats = MergeSnapshot(local, Export(older))
	if stats.Agents.Updated != 0 || local.Agents["agent_a"].Name != "fresh" {
		t.Errorf("rollback: stats=%+v agent=%+v", stats, local.Agents["agent_a"])
	}
}

func TestMergePlatformTakesMaxima(t *testing.T) {
	local := newState()
	local.Platform.TaxBps = 250
	local.Platform.Treasury["CREDIT"] = 5

	remote := newState()
	remote.Platform.TaxBps = 300
	remote.Platform.Treasury["CREDIT"] = 2
	remote.Platform.Treasury["USDC"] = 1.5

	MergeSnapshot(local, Export(remote))
	if local.Platform.TaxBps != 300 {
		t.Errorf("taxBps = %d", local.Platform.TaxBps)
	}
	if local.Platform.Treasury["CREDIT"] != 5 {
		t.Errorf("CREDIT treasury rolled back to %v", local.Platform.Treasury["CREDIT"])
	}
	if local.Platform.Treasury["USDC"] != 1.5 {
		t.Errorf("USDC treasury = %v", local.Platform.Treasury["USDC"])
	}
}

func TestMergeEventsUnionSortedAndCapped(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	local := newState()
	local.Config.MaxEventHistory = 100
	remote := newState()
	remote.Config.MaxEventHistory = 100

	shared := &models.Event{EventID: ids.New("evt"), EventType: "shared", Timestamp: base}
	local.Events = append(local.Events, shared)
	remote.Events = append(remote.Events, models.Clone(shared))
	for i := 0; i < 150; i++ {
		remote.Events = append(remote.Events, &models.Event{
			EventID: ids.New("evt"), EventType: "filler",
			Timestamp: base.Add(time.Duration(i+1) * time.Second),
		})
	}

	stats := MergeSnapshot(local, Export(remote))
	if stats.EventsAdded != 150 {
		t.Errorf("eventsAdded = %d", stats.EventsAdded)
	}
	if len(local.Events) != 100 {
		t.Errorf("journal len = %d, want cap 100", len(local.Events))
	}
	for i := 1; i < len(local.Events); i++ {
		if local.Events[i].Timestamp.Before(local.Events[i-1].Timestamp) {
			t.Fatal("journal not sorted by timestamp")
		}
	}
}

// ---------------------------------------------------------------------------
// Peer registry merge
// ---------------------------------------------------------------------------

func TestMergePeersNeverAdoptsTokens(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seen := base.Add(time.Minute)

	local := newState()
	local.Peers["peer_known"] = &models.Peer{
		PeerID: "peer_known", URL: "http://known:7340",
		Status: models.PeerStatusAdded, AddedAt: base,
		LastSyncStatus: models.SyncStatusNever, AuthToken: "local-secret",
	}

	remote := newState()
	remote.Peers["peer_known"] = &models.Peer{
		PeerID: "peer_known", URL: "http://known:7340",
		Status: models.PeerStatusOnline, AddedAt: base, LastSeenAt: &seen,
		LastSyncStatus: models.SyncStatusOK, AuthToken: "remote-secret",
	}
	remote.Peers["peer_new"] = &models.Peer{
		PeerID: "peer_new", URL: "http://new:7340",
		AddedAt: base, AuthToken: "remote-secret",
	}

	snapshot := Export(remote)
	for _, p := range snapshot.Data.Peers {
		if p.AuthToken != "" {
			t.Fatalf("exported snapshot leaks a token for %s", p.PeerID)
		}
	}

	stats := MergeSnapshot(local, snapshot)
	if stats.Peers.Inserted != 1 || stats.Peers.Updated != 1 {
		t.Errorf("peer stats = %+v", stats.Peers)
	}
	known := local.Peers["peer_known"]
	if known.AuthToken != "local-secret" {
		t.Errorf("local token overwritten: %q", known.AuthToken)
	}
	if known.Status != models.PeerStatusOnline || known.LastSeenAt == nil {
		t.Errorf("known peer not refreshed: %+v", known)
	}
	inserted := local.Peers["peer_new"]
	if inserted.AuthToken != "" {
		t.Errorf("discovered peer carries a token: %q", inserted.AuthToken)
	}
	if inserted.Status != models.PeerStatusDiscovered || inserted.LastSyncStatus != models.SyncStatusNever {
		t.Errorf("discovered peer defaults: %+v", inserted)
	}
}
