package agents

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mammothnet/mammoth-node/internal/apperr"
	"github.com/mammothnet/mammoth-node/internal/config"
	"github.com/mammothnet/mammoth-node/internal/models"
	"github.com/mammothnet/mammoth-node/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(context.Background(), &store.MemPersister{}, config.Defaults(), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return NewService(st, logger)
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegisterDefaults(t *testing.T) {
	svc := newTestService(t)

	agent, err := svc.Register(context.Background(), RegisterParams{
		Name: "  alice ", Topics: []string{"k8s"}, ActorRole: "owner",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if agent.Name != "alice" {
		t.Errorf("name not trimmed: %q", agent.Name)
	}
	if !strings.HasPrefix(agent.AgentID, "agent_") {
		t.Errorf("agent id %q", agent.AgentID)
	}
	if agent.Status != models.AgentStatusActive || agent.Reputation != 0.5 {
		t.Errorf("status=%s reputation=%v", agent.Status, agent.Reputation)
	}
	addr := agent.Wallet.Addresses["eth"]
	if NormalizeEthAddress(addr) != addr || addr == "" {
		t.Errorf("auto wallet address %q is not a normalized eth address", addr)
	}
}

func TestRegisterRequiresName(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register(context.Background(), RegisterParams{Name: "   "})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

// ---------------------------------------------------------------------------
// Fund
// ---------------------------------------------------------------------------

func TestFundCreditsSpendable(t *testing.T) {
	svc := newTestService(t)
	agent, _ := svc.Register(context.Background(), RegisterParams{Name: "alice"})

	funded, err := svc.Fund(context.Background(), FundParams{
		AgentID: agent.AgentID, Asset: "credit", Amount: 10.005,
	})
	if err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if got := funded.Spendable("CREDIT"); got != 10.01 {
		t.Errorf("spendable = %v, want 10.01 (rounded)", got)
	}
}

func TestFundValidation(t *testing.T) {
	svc := newTestService(t)
	agent, _ := svc.Register(context.Background(), RegisterParams{Name: "alice"})

	if _, err := svc.Fund(context.Background(), FundParams{AgentID: agent.AgentID, Asset: "DOGE", Amount: 1}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("unknown asset: err = %v", err)
	}
	if _, err := svc.Fund(context.Background(), FundParams{AgentID: agent.AgentID, Amount: 0}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("zero amount: err = %v", err)
	}
	if _, err := svc.Fund(context.Background(), FundParams{AgentID: "agent_missing", Amount: 5}); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("missing agent: err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Policy / wallet address
// ---------------------------------------------------------------------------

func TestSetPolicyDedupesBlocklist(t *testing.T) {
	svc := newTestService(t)
	agent, _ := svc.Register(context.Background(), RegisterParams{Name: "alice"})

	minRep := 0.6
	updated, err := svc.SetPolicy(context.Background(), PolicyParams{
		AgentID:                 agent.AgentID,
		AutoRefuseMinReputation: &minRep,
		BlockedSenders:          []string{"agent_b", "agent_b", "", "agent_c"},
	})
	if err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}
	if updated.Policy.AutoRefuseMinReputation != 0.6 {
		t.Errorf("min reputation = %v", updated.Policy.AutoRefuseMinReputation)
	}
	if len(updated.Policy.BlockedSenders) != 2 {
		t.Errorf("blocklist = %v, want deduped pair", updated.Policy.BlockedSenders)
	}
}

func TestSetWalletAddress(t *testing.T) {
	svc := newTestService(t)
	agent, _ := svc.Register(context.Background(), RegisterParams{Name: "alice"})

	updated, err := svc.SetWalletAddress(context.Background(), WalletAddressParams{
		AgentID: agent.AgentID,
		Address: "0xAB5801A7D398351B8BE11C439E05C5B3259AEC9B",
	})
	if err != nil {
		t.Fatalf("SetWalletAddress: %v", err)
	}
	if got := updated.Wallet.Addresses["eth"]; got != "0xab5801a7d398351b8be11c439e05c5b3259aec9b" {
		t.Errorf("address not lowercased: %q", got)
	}

	if _, err := svc.SetWalletAddress(context.Background(), WalletAddressParams{
		AgentID: agent.AgentID, Chain: "SOL", Address: "whatever",
	}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("non-ETH chain: err = %v", err)
	}
	if _, err := svc.SetWalletAddress(context.Background(), WalletAddressParams{
		AgentID: agent.AgentID, Address: "0x1234",
	}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("short address: err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Discovery
// ---------------------------------------------------------------------------

func TestListFiltersTopicAndReputation(t *testing.T) {
	svc := newTestService(t)
	a, _ := svc.Register(context.Background(), RegisterParams{Name: "a", Topics: []string{"k8s"}})
	svc.Register(context.Background(), RegisterParams{Name: "b", Topics: []string{"security"}})

	got := svc.List("k8s", 0)
	if len(got) != 1 || got[0].AgentID != a.AgentID {
		t.Fatalf("topic filter returned %d agents", len(got))
	}
	if got := svc.List("", 0.9); len(got) != 0 {
		t.Errorf("reputation floor 0.9 returned %d agents", len(got))
	}
	if got := svc.List("", 0); len(got) != 2 {
		t.Errorf("unfiltered returned %d agents", len(got))
	}
}

func TestGetReturnsCloneNotAlias(t *testing.T) {
	svc := newTestService(t)
	agent, _ := svc.Register(context.Background(), RegisterParams{Name: "alice"})

	// the registration return is a snapshot too
	agent.Name = "scribbled"
	if again, _ := svc.Get(agent.AgentID); again.Name != "alice" {
		t.Errorf("stored agent mutated through Register return")
	}
	agent.Name = "alice"

	got, err := svc.Get(agent.AgentID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Name = "mutated"

	again, _ := svc.Get(agent.AgentID)
	if again.Name != "alice" {
		t.Errorf("stored agent mutated through returned value")
	}

	if _, err := svc.Get("agent_missing"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("missing agent: err = %v", err)
	}
}
