package claims

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mammothnet/mammoth-node/internal/apperr"
	"github.com/mammothnet/mammoth-node/internal/config"
	"github.com/mammothnet/mammoth-node/internal/ids"
	"github.com/mammothnet/mammoth-node/internal/models"
	"github.com/mammothnet/mammoth-node/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(context.Background(), &store.MemPersister{}, config.Defaults(), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return NewService(st, logger), st
}

func seedAgent(t *testing.T, st *store.Store, claimable float64) string {
	t.Helper()
	id := ids.New("agent")
	err := st.Update(context.Background(), func(s *models.State) error {
		agent := &models.Agent{
			AgentID: id, Name: "alice", Status: models.AgentStatusActive,
			Reputation: 0.5, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}
		agent.Normalize()
		agent.Treasury["CREDIT"] = models.TreasuryBuckets{OwnerClaimable: claimable}
		s.Agents[id] = agent
		return nil
	})
	if err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	return id
}

// ---------------------------------------------------------------------------
// Request
// ---------------------------------------------------------------------------

func TestRequestMovesClaimableToPending(t *testing.T) {
	svc, st := newTestService(t)
	agentID := seedAgent(t, st, 8)

	res, err := svc.Request(context.Background(), RequestParams{
		AgentID: agentID, Asset: "credit", Amount: 5,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if res.Claim.Status != models.ClaimStatusRequested || res.Claim.Asset != "CREDIT" {
		t.Errorf("claim = %+v", res.Claim)
	}
	buckets := res.Agent.Treasury["CREDIT"]
	if buckets.OwnerClaimable != 3 || buckets.ClaimPending != 5 {
		t.Errorf("buckets = %+v, want claimable 3 pending 5", buckets)
	}
	cooldown := time.Duration(config.Defaults().ClaimCooldownSec) * time.Second
	if got := res.Claim.ExecuteAfter.Sub(res.Claim.RequestedAt); got != cooldown {
		t.Errorf("executeAfter offset = %v, want %v", got, cooldown)
	}
}

func TestRequestRejectsOverdraw(t *testing.T) {
	svc, st := newTestService(t)
	agentID := seedAgent(t, st, 2)

	_, err := svc.Request(context.Background(), RequestParams{
		AgentID: agentID, Amount: 2.01,
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}

	if _, err := svc.Request(context.Background(), RequestParams{AgentID: agentID, Amount: 0}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("zero amount: err = %v", err)
	}
	if _, err := svc.Request(context.Background(), RequestParams{AgentID: "agent_missing", Amount: 1}); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("missing agent: err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Execute
// ---------------------------------------------------------------------------

func TestExecuteHonorsCooldown(t *testing.T) {
	svc, st := newTestService(t)
	agentID := seedAgent(t, st, 10)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	res, err := svc.Request(context.Background(), RequestParams{AgentID: agentID, Amount: 10})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	claimID := res.Claim.ClaimID

	// 1. still inside the cooldown window
	svc.now = func() time.Time { return base.Add(23 * time.Hour) }
	if _, err := svc.Execute(context.Background(), claimID, "owner"); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("early execute: err = %v", err)
	}

	// 2. past the cooldown
	svc.now = func() time.Time { return base.Add(25 * time.Hour) }
	done, err := svc.Execute(context.Background(), claimID, "owner")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if done.Claim.Status != models.ClaimStatusExecuted || done.Claim.ExecutedAt == nil {
		t.Errorf("claim = %+v", done.Claim)
	}
	buckets := done.Agent.Treasury["CREDIT"]
	if buckets.ClaimPending != 0 || buckets.OwnerClaimable != 0 {
		t.Errorf("buckets = %+v, want both zero", buckets)
	}

	// 3. executing twice conflicts
	if _, err := svc.Execute(context.Background(), claimID, "owner"); !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("double execute: err = %v", err)
	}
}

func TestExecuteUnknownClaim(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Execute(context.Background(), "claim_missing", "owner"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestListNewestFirst(t *testing.T) {
	svc, st := newTestService(t)
	agentID := seedAgent(t, st, 10)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	first, _ := svc.Request(context.Background(), RequestParams{AgentID: agentID, Amount: 2})
	svc.now = func() time.Time { return base.Add(time.Minute) }
	second, _ := svc.Request(context.Background(), RequestParams{AgentID: agentID, Amount: 3})

	got := svc.List(agentID, "")
	if len(got) != 2 {
		t.Fatalf("List = %d claims", len(got))
	}
	if got[0].ClaimID != second.Claim.ClaimID || got[1].ClaimID != first.Claim.ClaimID {
		t.Errorf("claims not newest first: %s, %s", got[0].ClaimID, got[1].ClaimID)
	}
	if got := svc.List(agentID, "USDC"); len(got) != 0 {
		t.Errorf("asset filter returned %d claims", len(got))
	}
}
