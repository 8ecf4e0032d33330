// Package intents implements the intent ledger and one-shot action
// execution with its treasury settlement.
package intents

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/mammothnet/mammoth-node/internal/apperr"
	"github.com/mammothnet/mammoth-node/internal/ids"
	"github.com/mammothnet/mammoth-node/internal/models"
	"github.com/mammothnet/mammoth-node/internal/money"
	"github.com/mammothnet/mammoth-node/internal/store"
)

type Service struct {
	store  *store.Store
	logger *slog.Logger

	// quality returns the synthetic quality signal used when the caller
	// does not supply one. Overridden in tests.
	quality func() float64
}

func NewService(st *store.Store, logger *slog.Logger) *Service {
	return &Service{
		store:   st,
		logger:  logger,
		quality: func() float64 { return 0.75 + rand.Float64()*0.25 },
	}
}

type CreateParams struct {
	AgentID     string
	Goal        string
	Budget      float64
	Constraints map[string]any
	ActorRole   string
}

// Create opens a new intent for an existing agent.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Intent, error) {
	goal := strings.TrimSpace(p.Goal)
	if goal == "" {
		return nil, apperr.Validationf("goal is required")
	}
	if p.Budget < 0 {
		return nil, apperr.Validationf("budget must be a non-negative number")
	}
	constraints := p.Constraints
	if constraints == nil {
		constraints = map[string]any{}
	}

	now := time.Now().UTC()
	intent := &models.Intent{
		IntentID:    ids.New("intent"),
		AgentID:     p.AgentID,
		Goal:        goal,
		Budget:      p.Budget,
		Constraints: constraints,
		Status:      models.IntentStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var out *models.Intent
	err := s.store.Update(ctx, func(st *models.State) error {
		if _, ok := st.Agents[p.AgentID]; !ok {
			return apperr.Validationf("valid agentId is required")
		}
		st.Intents[intent.IntentID] = intent
		st.AppendEvent("intent_created", p.ActorRole, map[string]any{
			"intentId": intent.IntentID, "agentId": p.AgentID,
			"goal": goal, "budget": p.Budget,
		})
		out = models.Clone(intent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns intents filtered by agent and status.
func (s *Service) List(agentID, status string) []*models.Intent {
	out := []*models.Intent{}
	s.store.View(func(st *models.State) {
		for _, intent := range st.Intents {
			if agentID != "" && intent.AgentID != agentID {
				continue
			}
			if status != "" && intent.Status != status {
				continue
			}
			out = append(out, models.Clone(intent))
		}
	})
	return out
}

type RunParams struct {
	AgentID       string
	IntentID      string
	BaseFee       float64
	QualitySignal *float64
	ActorRole     string
}

type RunResult struct {
	Action *models.Action `json:"action"`
	Agent  *models.Agent  `json:"agent"`
}

// Run executes an open intent: the payout is baseFee scaled by a
// reputation multiplier, split 40/40/20 across the agent's treasury
// buckets, and a signed proof-of-action receipt is recorded.
func (s *Service) Run(ctx context.Context, p RunParams) (*RunResult, error) {
	if p.BaseFee < 0 {
		return nil, apperr.Validationf("baseFee must be a non-negative number")
	}

	var out RunResult
	err := s.store.Update(ctx, func(st *models.State) error {
		agent, ok := st.Agents[p.AgentID]
		if !ok {
			return apperr.Validationf("agent not found")
		}
		intent, ok := st.Intents[p.IntentID]
		if !ok || intent.AgentID != p.AgentID {
			return apperr.Validationf("intent not found for agent")
		}
		if intent.Status == models.IntentStatusExecuted {
			return apperr.Conflictf("intent already executed")
		}
		if p.BaseFee > intent.Budget {
			return apperr.Validationf("policy deny: baseFee exceeds intent budget")
		}
		if p.BaseFee > st.Config.MaxRunBaseFee {
			return apperr.Validationf("policy deny: baseFee exceeds node maxRunBaseFee")
		}

		repBefore := agent.Reputation
		multiplier := money.Clamp(0.8+0.7*repBefore, 0.8, 1.5)
		payout := money.Round2(p.BaseFee * multiplier)

		ownerClaimable := money.Round2(payout * 0.4)
		operatingReserve := money.Round2(payout * 0.4)
		lockedSafety := money.Round2(payout * 0.2)
		agent.CreditTreasury(money.AssetCredit, ownerClaimable, operatingReserve, lockedSafety)

		qualitySignal := s.quality()
		if p.QualitySignal != nil {
			qualitySignal = money.Clamp(*p.QualitySignal, 0, 1)
		}
		agent.AdjustReputation(money.Round2((qualitySignal - 0.8) * 0.08))

		now := time.Now().UTC()
		agent.UpdatedAt = now
		intent.Status = models.IntentStatusExecuted
		intent.UpdatedAt = now

		action := &models.Action{
			ActionID: ids.New("action"),
			IntentID: intent.IntentID,
			AgentID:  agent.AgentID,
			Status:   models.ActionStatusExecuted,
			Settlement: models.ActionSettlement{
				BaseFee:          money.Round2(p.BaseFee),
				Multiplier:       money.Round2(multiplier),
				Payout:           payout,
				OwnerClaimable:   ownerClaimable,
				OperatingReserve: operatingReserve,
				LockedSafety:     lockedSafety,
			},
			POA: models.ProofOfAction{
				ReceiptRef: ids.New("receipt"),
				Status:     "SIGNED",
				Timestamp:  now,
			},
			QualitySignal: money.Round2(qualitySignal),
			CreatedAt:     now,
		}
		st.Actions[action.ActionID] = action

		st.AppendEvent("action_executed", p.ActorRole, map[string]any{
			"actionId": action.ActionID, "intentId": intent.IntentID,
			"agentId": agent.AgentID, "payout": payout,
		})
		st.AppendEvent("poa_recorded", models.ActorSystem, map[string]any{
			"actionId": action.ActionID, "receiptRef": action.POA.ReceiptRef,
		})
		st.AppendEvent("settlement_posted", models.ActorSystem, map[string]any{
			"actionId": action.ActionID, "ownerClaimable": ownerClaimable,
			"operatingReserve": operatingReserve, "lockedSafety": lockedSafety,
			"repBefore": repBefore, "repAfter": agent.Reputation,
		})

		out.Action = models.Clone(action)
		out.Agent = models.Clone(agent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListActions returns executed actions, optionally for one agent.
func (s *Service) ListActions(agentID string) []*models.Action {
	out := []*models.Action{}
	s.store.View(func(st *models.State) {
		for _, action := range st.Actions {
			if agentID != "" && action.AgentID != agentID {
				continue
			}
			out = append(out, models.Clone(action))
		}
	})
	return out
}
