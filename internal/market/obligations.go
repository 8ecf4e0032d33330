package market

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/mammothnet/mammoth-node/internal/apperr"
	"github.com/mammothnet/mammoth-node/internal/models"
)

type SubmitParams struct {
	ObligationID string
	AgentID      string
	Proof        string
	Delivery     map[string]any
	ActorRole    string
}

// SubmitObligation records the debtor's proof of delivery. A rejected
// obligation may be resubmitted.
func (s *Service) SubmitObligation(ctx context.Context, p SubmitParams) (*models.Obligation, error) {
	proof := strings.TrimSpace(p.Proof)
	delivery := p.Delivery
	if delivery == nil {
		delivery = map[string]any{}
	}

	var out *models.Obligation
	err := s.store.Update(ctx, func(st *models.State) error {
		obligation, ok := st.Market.Obligations[p.ObligationID]
		if !ok {
			return apperr.NotFoundf("obligation not found")
		}
		if _, ok := st.Agents[p.AgentID]; !ok {
			return apperr.NotFoundf("agent not found")
		}
		if obligation.DebtorAgentID != p.AgentID {
			return apperr.Forbiddenf("only debtor can submit this obligation")
		}
		if !obligation.CanSubmit() {
			return apperr.Conflictf("obligation status is %s", obligation.Status)
		}
		if proof == "" {
			return apperr.Validationf("proof is required")
		}

		now := time.Now().UTC()
		obligation.Status = models.ObligationStatusSubmitted
		obligation.Proof = proof
		obligation.Delivery = delivery
		obligation.SubmittedAt = &now
		obligation.UpdatedAt = now

		st.AppendEvent("market_obligation_submitted", p.ActorRole, map[string]any{
			"obligationId": p.ObligationID, "agentId": p.AgentID,
			"creditorAgentId": obligation.CreditorAgentID,
		})
		out = models.Clone(obligation)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type ReviewParams struct {
	ObligationID string
	AgentID      string
	Decision     string
	Note         string
	ActorRole    string
}

type ReviewResult struct {
	Obligation *models.Obligation `json:"obligation"`
	Debtor     *models.Agent      `json:"debtor"`
	Creditor   *models.Agent      `json:"creditor"`
}

// ReviewObligation lets the creditor accept or reject the submitted
// proof. Acceptance fulfills the obligation and rewards both sides'
// reputation; rejection penalizes the debtor and reopens submission.
func (s *Service) ReviewObligation(ctx context.Context, p ReviewParams) (*ReviewResult, error) {
	decision := strings.ToUpper(strings.TrimSpace(p.Decision))
	note := strings.TrimSpace(p.Note)

	var res ReviewResult
	err := s.store.Update(ctx, func(st *models.State) error {
		obligation, ok := st.Market.Obligations[p.ObligationID]
		if !ok {
			return apperr.NotFoundf("obligation not found")
		}
		if _, ok := st.Agents[p.AgentID]; !ok {
			return apperr.NotFoundf("agent not found")
		}
		if obligation.CreditorAgentID != p.AgentID {
			return apperr.Forbiddenf("only creditor can review this obligation")
		}
		if !obligation.CanReview() {
			return apperr.Conflictf("obligation status is %s", obligation.Status)
		}
		if decision != models.DecisionAccept && decision != models.DecisionReject {
			return apperr.Validationf("decision must be ACCEPT or REJECT")
		}

		debtor := st.Agents[obligation.DebtorAgentID]
		creditor := st.Agents[obligation.CreditorAgentID]
		var debtorRepBefore, creditorRepBefore float64
		if debtor != nil {
			debtorRepBefore = debtor.Reputation
		}
		if creditor != nil {
			creditorRepBefore = creditor.Reputation
		}

		now := time.Now().UTC()
		obligation.ReviewedAt = &now
		obligation.UpdatedAt = now
		obligation.Decision = decision
		obligation.ReviewNote = note

		if decision == models.DecisionAccept {
			obligation.Status = models.ObligationStatusFulfilled
			if debtor != nil {
				debtor.AdjustReputation(0.04)
				debtor.UpdatedAt = now
			}
			if creditor != nil {
				creditor.AdjustReputation(0.01)
				creditor.UpdatedAt = now
			}
			payload := map[string]any{
				"obligationId":      p.ObligationID,
				"debtorAgentId":     obligation.DebtorAgentID,
				"creditorAgentId":   obligation.CreditorAgentID,
				"debtorRepBefore":   debtorRepBefore,
				"creditorRepBefore": creditorRepBefore,
			}
			if debtor != nil {
				payload["debtorRepAfter"] = debtor.Reputation
			}
			if creditor != nil {
				payload["creditorRepAfter"] = creditor.Reputation
			}
			st.AppendEvent("market_obligation_fulfilled", p.ActorRole, payload)
		} else {
			obligation.Status = models.ObligationStatusRejected
			if debtor != nil {
				debtor.AdjustReputation(-0.03)
				debtor.UpdatedAt = now
			}
			payload := map[string]any{
				"obligationId":    p.ObligationID,
				"debtorAgentId":   obligation.DebtorAgentID,
				"creditorAgentId": obligation.CreditorAgentID,
				"debtorRepBefore": debtorRepBefore,
			}
			if debtor != nil {
				payload["debtorRepAfter"] = debtor.Reputation
			}
			if note != "" {
				payload["note"] = note
			}
			st.AppendEvent("market_obligation_rejected", p.ActorRole, payload)
		}

		res.Obligation = models.Clone(obligation)
		res.Debtor = models.Clone(debtor)
		res.Creditor = models.Clone(creditor)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

type ObligationFilter struct {
	DebtorAgentID   string
	CreditorAgentID string
	AskID           string
	Status          string
	Limit           int
}

// ListObligations returns matching obligations, newest first.
func (s *Service) ListObligations(f ObligationFilter) []*models.Obligation {
	status := strings.ToUpper(strings.TrimSpace(f.Status))
	limit := clampLimit(f.Limit, 100)

	out := []*models.Obligation{}
	s.store.View(func(st *models.State) {
		for _, obligation := range st.Market.Obligations {
			if f.DebtorAgentID != "" && obligation.DebtorAgentID != f.DebtorAgentID {
				continue
			}
			if f.CreditorAgentID != "" && obligation.CreditorAgentID != f.CreditorAgentID {
				continue
			}
			if f.AskID != "" && obligation.AskID != f.AskID {
				continue
			}
			if status != "" && strings.ToUpper(obligation.Status) != status {
				continue
			}
			out = append(out, models.Clone(obligation))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
