package market

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
	svc := NewService(st, config.Defaults().BarterDefaultDueHours, logger)
	svc.jitter = func() float64 { return 0 }
	return svc, st
}

func seedAgent(t *testing.T, st *store.Store, name string, reputation, spendable float64) string {
	t.Helper()
	id := ids.New("agent")
	err := st.Update(context.Background(), func(s *models.State) error {
		agent := &models.Agent{
			AgentID: id, Name: name, Status: models.AgentStatusActive,
			Reputation: reputation,
			CreatedAt:  time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}
		agent.Normalize()
		if spendable > 0 {
			agent.Wallet.Spendable["CREDIT"] = spendable
		}
		s.Agents[id] = agent
		return nil
	})
	if err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	return id
}

func floatPtr(f float64) *float64 { return &f }

// ---------------------------------------------------------------------------
// UpsertOffer
// ---------------------------------------------------------------------------

func TestUpsertOfferValidation(t *testing.T) {
	svc, st := newTestService(t)
	provider := seedAgent(t, st, "alice", 0.5, 0)

	if _, err := svc.UpsertOffer(context.Background(), OfferParams{AgentID: provider, Topic: ""}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("blank topic: err = %v", err)
	}
	if _, err := svc.UpsertOffer(context.Background(), OfferParams{AgentID: provider, Topic: "k8s", Mode: "PAID", PricePerQuestion: floatPtr(0)}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("zero price paid: err = %v", err)
	}
	if _, err := svc.UpsertOffer(context.Background(), OfferParams{AgentID: provider, Topic: "k8s", Mode: "BARTER"}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("barter without request: err = %v", err)
	}
	if _, err := svc.UpsertOffer(context.Background(), OfferParams{AgentID: "agent_missing", Topic: "k8s"}); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("unknown agent: err = %v", err)
	}
}

func TestUpsertOfferUsesConfiguredBarterDueHours(t *testing.T) {
	svc, st := newTestService(t)
	svc.barterDueHours = 24
	provider := seedAgent(t, st, "alice", 0.5, 0)

	offer, err := svc.UpsertOffer(context.Background(), OfferParams{
		AgentID: provider, Topic: "k8s", Mode: "BARTER", BarterRequest: "code review",
	})
	if err != nil {
		t.Fatalf("upsert barter offer: %v", err)
	}
	if offer.BarterDueHours != 24 {
		t.Errorf("BarterDueHours = %d, want node default 24", offer.BarterDueHours)
	}

	// an explicit deadline still wins over the node default
	offer, err = svc.UpsertOffer(context.Background(), OfferParams{
		AgentID: provider, Topic: "k8s", Mode: "BARTER", BarterRequest: "code review",
		BarterDueHours: 48,
	})
	if err != nil {
		t.Fatalf("upsert barter offer: %v", err)
	}
	if offer.BarterDueHours != 48 {
		t.Errorf("BarterDueHours = %d, want 48", offer.BarterDueHours)
	}
}

func TestUpsertOfferReplacesByAgentTopicAsset(t *testing.T) {
	svc, st := newTestService(t)
	provider := seedAgent(t, st, "alice", 0.5, 0)

	first, err := svc.UpsertOffer(context.Background(), OfferParams{
		AgentID: provider, Topic: "k8s", Mode: "PAID", PricePerQuestion: floatPtr(2),
	})
	if err != nil {
		t.Fatalf("UpsertOffer: %v", err)
	}
	second, err := svc.UpsertOffer(context.Background(), OfferParams{
		AgentID: provider, Topic: "k8s", Mode: "FREE",
	})
	if err != nil {
		t.Fatalf("UpsertOffer: %v", err)
	}
	if second.OfferID != first.OfferID {
		t.Errorf("upsert created a new offer: %s vs %s", second.OfferID, first.OfferID)
	}
	if second.Mode != models.ModeFree || second.PricePerQuestion != 0 {
		t.Errorf("free offer = %+v", second)
	}
	if got := svc.ListOffers(OfferFilter{AgentID: provider}); len(got) != 1 {
		t.Errorf("ListOffers = %d entries", len(got))
	}
}

// ---------------------------------------------------------------------------
// Ask: matching outcomes
// ---------------------------------------------------------------------------

func TestAskNoMatchPersistsAsk(t *testing.T) {
	svc, st := newTestService(t)
	requester := seedAgent(t, st, "rita", 0.5, 10)

	res, err := svc.Ask(context.Background(), AskParams{
		RequesterAgentID: requester, Topic: "k8s", Question: "q?",
		MaxBudget: 5, AutoExecute: true,
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Ask.Status != models.AskStatusNoMatch {
		t.Errorf("status = %s", res.Ask.Status)
	}
	if got := svc.ListAsks(AskFilter{RequesterAgentID: requester}); len(got) != 1 {
		t.Errorf("ask not persisted, got %d", len(got))
	}
}

func TestAskQuotedWithoutAutoExecute(t *testing.T) {
	svc, st := newTestService(t)
	requester := seedAgent(t, st, "rita", 0.5, 10)
	for i := 0; i < 7; i++ {
		provider := seedAgent(t, st, "p", 0.5, 0)
		if _, err := svc.UpsertOffer(context.Background(), OfferParams{
			AgentID: provider, Topic: "k8s", Mode: "PAID", PricePerQuestion: floatPtr(2),
		}); err != nil {
			t.Fatalf("UpsertOffer: %v", err)
		}
	}

	res, err := svc.Ask(context.Background(), AskParams{
		RequesterAgentID: requester, Topic: "k8s", Question: "q?",
		MaxBudget: 5, AutoExecute: false,
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Ask.Status != models.AskStatusQuoted {
		t.Errorf("status = %s", res.Ask.Status)
	}
	if len(res.Quotes) != 5 {
		t.Errorf("quotes = %d, want top 5", len(res.Quotes))
	}
	if res.Execution != nil {
		t.Error("quote-only ask must not execute")
	}
	if res.Ask.SelectedOfferID == "" {
		t.Error("quoted ask should still record the selected offer")
	}
}

func TestAskExcludesOwnOffers(t *testing.T) {
	svc, st := newTestService(t)
	requester := seedAgent(t, st, "rita", 0.5, 10)
	if _, err := svc.UpsertOffer(context.Background(), OfferParams{
		AgentID: requester, Topic: "k8s", Mode: "PAID", PricePerQuestion: floatPtr(1),
	}); err != nil {
		t.Fatalf("UpsertOffer: %v", err)
	}

	res, err := svc.Ask(context.Background(), AskParams{
		RequesterAgentID: requester, Topic: "k8s", Question: "q?",
		MaxBudget: 5, AutoExecute: true,
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Ask.Status != models.AskStatusNoMatch {
		t.Errorf("self-match: status = %s", res.Ask.Status)
	}
}

// ---------------------------------------------------------------------------
// Ask: PAID settlement
// ---------------------------------------------------------------------------

func TestAskPaidSettlement(t *testing.T) {
	svc, st := newTestService(t)
	requester := seedAgent(t, st, "rita", 0.5, 22)
	provider := seedAgent(t, st, "paula", 0.5, 0)
	if _, err := svc.UpsertOffer(context.Background(), OfferParams{
		AgentID: provider, Topic: "k8s", Mode: "PAID", PricePerQuestion: floatPtr(2),
	}); err != nil {
		t.Fatalf("UpsertOffer: %v", err)
	}

	res, err := svc.Ask(context.Background(), AskParams{
		RequesterAgentID: requester, Topic: "k8s", Question: "how do pods schedule?",
		MaxBudget: 5, AutoExecute: true,
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Ask.Status != models.AskStatusDelivered || res.Execution == nil {
		t.Fatalf("ask = %+v", res.Ask)
	}

	// price 2 at 250 bps: tax 0.05, provider net 1.95, split 0.78/0.78/0.39
	s := res.Execution.Settlement
	if s.PlatformTax != 0.05 || s.ProviderNet != 1.95 {
		t.Errorf("tax=%v net=%v", s.PlatformTax, s.ProviderNet)
	}
	if s.OwnerClaimable != 0.78 || s.OperatingReserve != 0.78 || s.LockedSafety != 0.39 {
		t.Errorf("split = %v/%v/%v", s.OwnerClaimable, s.OperatingReserve, s.LockedSafety)
	}
	if s.PayerSpendableBefore != 22 || s.PayerSpendableAfter != 20 {
		t.Errorf("payer spendable %v -> %v", s.PayerSpendableBefore, s.PayerSpendableAfter)
	}
	if got := res.Requester.Spendable("CREDIT"); got != 20 {
		t.Errorf("requester spendable = %v", got)
	}
	if got := res.Provider.Wallet.EarnedGross["CREDIT"]; got != 1.95 {
		t.Errorf("provider earned = %v", got)
	}
	buckets := res.Provider.Treasury["CREDIT"]
	if buckets.OwnerClaimable != 0.78 || buckets.OperatingReserve != 0.78 || buckets.LockedSafety != 0.39 {
		t.Errorf("provider buckets = %+v", buckets)
	}

	st.View(func(s *models.State) {
		if s.Platform.Treasury["CREDIT"] != 0.05 {
			t.Errorf("platform treasury = %v", s.Platform.Treasury["CREDIT"])
		}
	})

	// provider rep 0.5, quality hint 0.7, zero jitter:
	// quote score 0.56, signal round2(0.5*0.7 + 0.56*0.3) = 0.52,
	// rep delta round2((0.52-0.78)*0.06) = -0.02
	if res.Execution.QualitySignal != 0.52 {
		t.Errorf("quality signal = %v", res.Execution.QualitySignal)
	}
	if res.Provider.Reputation != 0.48 {
		t.Errorf("provider reputation = %v, want 0.48", res.Provider.Reputation)
	}
}

func TestAskInsufficientFundsPersistsFailure(t *testing.T) {
	svc, st := newTestService(t)
	requester := seedAgent(t, st, "rita", 0.5, 1)
	provider := seedAgent(t, st, "paula", 0.5, 0)
	if _, err := svc.UpsertOffer(context.Background(), OfferParams{
		AgentID: provider, Topic: "k8s", Mode: "PAID", PricePerQuestion: floatPtr(2),
	}); err != nil {
		t.Fatalf("UpsertOffer: %v", err)
	}

	res, err := svc.Ask(context.Background(), AskParams{
		RequesterAgentID: requester, Topic: "k8s", Question: "q?",
		MaxBudget: 5, AutoExecute: true,
	})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if res == nil || res.Ask == nil || res.Ask.Status != models.AskStatusFailedFunds {
		t.Fatalf("failed ask missing from result: %+v", res)
	}

	// The failed ask persists, balances do not move.
	asks := svc.ListAsks(AskFilter{RequesterAgentID: requester})
	if len(asks) != 1 || asks[0].Status != models.AskStatusFailedFunds {
		t.Errorf("persisted asks = %+v", asks)
	}
	st.View(func(s *models.State) {
		if got := s.Agents[requester].Spendable("CREDIT"); got != 1 {
			t.Errorf("requester spendable moved: %v", got)
		}
		if got := s.Agents[provider].Wallet.EarnedGross["CREDIT"]; got != 0 {
			t.Errorf("provider earned: %v", got)
		}
	})
}

// ---------------------------------------------------------------------------
// Ask: BARTER settlement and obligation lifecycle
// ---------------------------------------------------------------------------

func TestAskBarterCreatesObligation(t *testing.T) {
	svc, st := newTestService(t)
	requester := seedAgent(t, st, "rita", 0.5, 0)
	provider := seedAgent(t, st, "paula", 0.5, 0)
	if _, err := svc.UpsertOffer(context.Background(), OfferParams{
		AgentID: provider, Topic: "k8s", Mode: "BARTER",
		BarterRequest: "a security review",
	}); err != nil {
		t.Fatalf("UpsertOffer: %v", err)
	}

	res, err := svc.Ask(context.Background(), AskParams{
		RequesterAgentID: requester, Topic: "k8s", Question: "q?",
		ModePreference: "BARTER", BarterOffer: "a design doc", AutoExecute: true,
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Obligation == nil {
		t.Fatal("barter execution without obligation")
	}
	o := res.Obligation
	if o.DebtorAgentID != requester || o.CreditorAgentID != provider {
		t.Errorf("parties = %s / %s", o.DebtorAgentID, o.CreditorAgentID)
	}
	if o.Status != models.ObligationStatusOpen || o.BarterDueHours != 72 {
		t.Errorf("obligation = %+v", o)
	}
	if got := o.DueAt.Sub(o.CreatedAt); got != 72*time.Hour {
		t.Errorf("dueAt offset = %v", got)
	}
	if res.Execution.Settlement.ObligationID != o.ObligationID {
		t.Errorf("settlement obligation = %s", res.Execution.Settlement.ObligationID)
	}
}

func TestAskBarterRequiresBarterOffer(t *testing.T) {
	svc, st := newTestService(t)
	requester := seedAgent(t, st, "rita", 0.5, 0)

	_, err := svc.Ask(context.Background(), AskParams{
		RequesterAgentID: requester, Topic: "k8s", Question: "q?",
		ModePreference: "BARTER",
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestObligationSubmitAndReview(t *testing.T) {
	svc, st := newTestService(t)
	requester := seedAgent(t, st, "rita", 0.5, 0)
	provider := seedAgent(t, st, "paula", 0.5, 0)
	svc.UpsertOffer(context.Background(), OfferParams{
		AgentID: provider, Topic: "k8s", Mode: "BARTER", BarterRequest: "a review",
	})
	res, err := svc.Ask(context.Background(), AskParams{
		RequesterAgentID: requester, Topic: "k8s", Question: "q?",
		ModePreference: "BARTER", BarterOffer: "a doc", AutoExecute: true,
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	obID := res.Obligation.ObligationID

	// 1. only the debtor may submit
	if _, err := svc.SubmitObligation(context.Background(), SubmitParams{ObligationID: obID, AgentID: provider, Proof: "done"}); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("creditor submitting: err = %v", err)
	}
	// 2. proof required
	if _, err := svc.SubmitObligation(context.Background(), SubmitParams{ObligationID: obID, AgentID: requester}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("empty proof: err = %v", err)
	}
	// 3. review before submission conflicts
	if _, err := svc.ReviewObligation(context.Background(), ReviewParams{ObligationID: obID, AgentID: provider, Decision: "ACCEPT"}); !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("review of open obligation: err = %v", err)
	}

	submitted, err := svc.SubmitObligation(context.Background(), SubmitParams{
		ObligationID: obID, AgentID: requester, Proof: "the doc is at /docs/x",
	})
	if err != nil {
		t.Fatalf("SubmitObligation: %v", err)
	}
	if submitted.Status != models.ObligationStatusSubmitted || submitted.SubmittedAt == nil {
		t.Errorf("obligation = %+v", submitted)
	}

	// 4. only the creditor may review
	if _, err := svc.ReviewObligation(context.Background(), ReviewParams{ObligationID: obID, AgentID: requester, Decision: "ACCEPT"}); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("debtor reviewing: err = %v", err)
	}

	// 5. rejection penalizes the debtor and reopens submission
	rejected, err := svc.ReviewObligation(context.Background(), ReviewParams{
		ObligationID: obID, AgentID: provider, Decision: "reject", Note: "not what we agreed",
	})
	if err != nil {
		t.Fatalf("ReviewObligation: %v", err)
	}
	if rejected.Obligation.Status != models.ObligationStatusRejected {
		t.Errorf("status = %s", rejected.Obligation.Status)
	}
	if rejected.Debtor.Reputation != 0.47 {
		t.Errorf("debtor reputation after reject = %v, want 0.47", rejected.Debtor.Reputation)
	}

	if _, err := svc.SubmitObligation(context.Background(), SubmitParams{
		ObligationID: obID, AgentID: requester, Proof: "revised doc",
	}); err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}

	// 6. acceptance rewards both sides
	accepted, err := svc.ReviewObligation(context.Background(), ReviewParams{
		ObligationID: obID, AgentID: provider, Decision: "ACCEPT",
	})
	if err != nil {
		t.Fatalf("ReviewObligation: %v", err)
	}
	if accepted.Obligation.Status != models.ObligationStatusFulfilled {
		t.Errorf("status = %s", accepted.Obligation.Status)
	}
	if accepted.Debtor.Reputation != 0.51 {
		t.Errorf("debtor reputation after accept = %v, want 0.51", accepted.Debtor.Reputation)
	}
	// creditor: 0.48 after the delivery delta, +0.01 review reward
	if accepted.Creditor.Reputation != 0.49 {
		t.Errorf("creditor reputation after accept = %v, want 0.49", accepted.Creditor.Reputation)
	}

	obligations := svc.ListObligations(ObligationFilter{DebtorAgentID: requester})
	if len(obligations) != 1 || obligations[0].Status != models.ObligationStatusFulfilled {
		t.Errorf("ListObligations = %+v", obligations)
	}
}
