// Package claims implements owner withdrawals from agent treasuries
// with a mandatory cooldown between request and execution.
package claims

import (
	"context"
	"log/slog"
	"sort"
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

	// now is overridden in tests to cross the cooldown boundary.
	now func() time.Time
}

func NewService(st *store.Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

type RequestParams struct {
	AgentID   string
	Asset     string
	Amount    float64
	ActorRole string
}

type RequestResult struct {
	Claim *models.Claim `json:"claim"`
	Agent *models.Agent `json:"agent"`
}

// Request moves funds from the agent's ownerClaimable bucket into
// claimPending and schedules execution after the configured cooldown.
func (s *Service) Request(ctx context.Context, p RequestParams) (*RequestResult, error) {
	asset := money.Normalize(p.Asset, money.AssetCredit)
	if asset == "" {
		return nil, apperr.Validationf("asset must be one of %s", strings.Join(money.Assets(), ", "))
	}
	if p.Amount <= 0 {
		return nil, apperr.Validationf("amount must be > 0")
	}

	var res RequestResult
	err := s.store.Update(ctx, func(st *models.State) error {
		agent, ok := st.Agents[p.AgentID]
		if !ok {
			return apperr.NotFoundf("agent not found")
		}

		amount := money.Round(p.Amount, asset)
		buckets := agent.Treasury[asset]
		if amount > buckets.OwnerClaimable {
			return apperr.Validationf("amount exceeds ownerClaimable balance")
		}

		now := s.now()
		buckets.OwnerClaimable = money.Round(buckets.OwnerClaimable-amount, asset)
		buckets.ClaimPending = money.Round(buckets.ClaimPending+amount, asset)
		agent.Treasury[asset] = buckets
		agent.UpdatedAt = now

		claim := &models.Claim{
			ClaimID:      ids.New("claim"),
			AgentID:      p.AgentID,
			Asset:        asset,
			Amount:       amount,
			Status:       models.ClaimStatusRequested,
			RequestedAt:  now,
			ExecuteAfter: now.Add(time.Duration(st.Config.ClaimCooldownSec) * time.Second),
		}
		st.Claims[claim.ClaimID] = claim

		st.AppendEvent("claim_requested", p.ActorRole, map[string]any{
			"claimId": claim.ClaimID, "agentId": p.AgentID, "asset": asset,
			"amount": amount, "executeAfter": claim.ExecuteAfter,
		})
		res.Claim = models.Clone(claim)
		res.Agent = models.Clone(agent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Execute finalizes a requested claim once the cooldown has elapsed,
// clearing its pending amount.
func (s *Service) Execute(ctx context.Context, claimID, actorRole string) (*RequestResult, error) {
	var res RequestResult
	err := s.store.Update(ctx, func(st *models.State) error {
		claim, ok := st.Claims[claimID]
		if !ok {
			return apperr.NotFoundf("claim not found")
		}
		if claim.Status != models.ClaimStatusRequested {
			return apperr.Conflictf("claim status is %s", claim.Status)
		}
		now := s.now()
		if now.Before(claim.ExecuteAfter) {
			return apperr.Conflictf("claim cooldown not finished")
		}
		agent, ok := st.Agents[claim.AgentID]
		if !ok {
			return apperr.Transientf("claim agent missing")
		}

		asset := money.Normalize(claim.Asset, money.AssetCredit)
		buckets := agent.Treasury[asset]
		pending := buckets.ClaimPending - claim.Amount
		if pending < 0 {
			pending = 0
		}
		buckets.ClaimPending = money.Round(pending, asset)
		agent.Treasury[asset] = buckets
		agent.UpdatedAt = now

		claim.Status = models.ClaimStatusExecuted
		executedAt := now
		claim.ExecutedAt = &executedAt

		st.AppendEvent("claim_executed", actorRole, map[string]any{
			"claimId": claimID, "agentId": claim.AgentID,
			"asset": asset, "amount": claim.Amount,
		})
		res.Claim = models.Clone(claim)
		res.Agent = models.Clone(agent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// List returns claims filtered by agent and asset, newest first.
func (s *Service) List(agentID, asset string) []*models.Claim {
	asset = strings.ToUpper(strings.TrimSpace(asset))

	out := []*models.Claim{}
	s.store.View(func(st *models.State) {
		for _, claim := range st.Claims {
			if agentID != "" && claim.AgentID != agentID {
				continue
			}
			if asset != "" && strings.ToUpper(claim.Asset) != asset {
				continue
			}
			out = append(out, models.Clone(claim))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out
}
