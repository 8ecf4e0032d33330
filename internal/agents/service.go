// Package agents implements registration, funding, policy, and discovery of
// the node's economic actors.
package agents

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mammothnet/mammoth-node/internal/apperr"
	"github.com/mammothnet/mammoth-node/internal/ids"
	"github.com/mammothnet/mammoth-node/internal/models"
	"github.com/mammothnet/mammoth-node/internal/money"
	"github.com/mammothnet/mammoth-node/internal/store"
)

const defaultReputation = 0.5

var ethAddressRe = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// NormalizeEthAddress lowercases and validates a 20-byte hex address,
// returning "" when malformed.
func NormalizeEthAddress(addr string) string {
	a := strings.ToLower(strings.TrimSpace(addr))
	if !ethAddressRe.MatchString(a) {
		return ""
	}
	return a
}

type Service struct {
	store  *store.Store
	logger *slog.Logger
}

func NewService(st *store.Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger}
}

type RegisterParams struct {
	Name                    string
	Topics                  []string
	AutoRefuseMinReputation float64
	ActorRole               string
}

// Register creates an agent with zero balances, reputation 0.5, and an
// auto-generated deposit address.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*models.Agent, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, apperr.Validationf("name is required")
	}
	topics := p.Topics
	if topics == nil {
		topics = []string{}
	}

	now := time.Now().UTC()
	address := ids.NewEthAddress()
	agent := &models.Agent{
		AgentID:    ids.New("agent"),
		Name:       name,
		Topics:     topics,
		Status:     models.AgentStatusActive,
		Reputation: defaultReputation,
		Policy: models.Policy{
			AutoRefuseMinReputation: money.Clamp(p.AutoRefuseMinReputation, 0, 1),
			BlockedSenders:          []string{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	agent.Normalize()
	agent.Wallet.Addresses["eth"] = address

	var out *models.Agent
	err := s.store.Update(ctx, func(st *models.State) error {
		st.Agents[agent.AgentID] = agent
		st.AppendEvent("agent_registered", p.ActorRole, map[string]any{
			"agentId": agent.AgentID, "name": name, "topics": topics,
		})
		st.AppendEvent("agent_wallet_generated", models.ActorSystem, map[string]any{
			"agentId": agent.AgentID, "chain": "ETH", "address": address, "mode": "auto_on_register",
		})
		// Clone under the store lock; the stored agent may be mutated by
		// a concurrent writer as soon as Update returns.
		out = models.Clone(agent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type PolicyParams struct {
	AgentID                 string
	AutoRefuseMinReputation *float64
	BlockedSenders          []string
	ActorRole               string
}

// SetPolicy updates the reputation floor and/or blocklist.
func (s *Service) SetPolicy(ctx context.Context, p PolicyParams) (*models.Agent, error) {
	var out *models.Agent
	err := s.store.Update(ctx, func(st *models.State) error {
		agent, ok := st.Agents[p.AgentID]
		if !ok {
			return apperr.NotFoundf("agent not found")
		}
		if p.AutoRefuseMinReputation != nil {
			agent.Policy.AutoRefuseMinReputation = money.Clamp(*p.AutoRefuseMinReputation, 0, 1)
		}
		if p.BlockedSenders != nil {
			seen := map[string]bool{}
			deduped := []string{}
			for _, id := range p.BlockedSenders {
				if id != "" && !seen[id] {
					seen[id] = true
					deduped = append(deduped, id)
				}
			}
			agent.Policy.BlockedSenders = deduped
		}
		agent.UpdatedAt = time.Now().UTC()
		st.AppendEvent("agent_policy_updated", p.ActorRole, map[string]any{
			"agentId": agent.AgentID, "policy": agent.Policy,
		})
		out = models.Clone(agent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type FundParams struct {
	AgentID   string
	Asset     string
	Amount    float64
	Note      string
	ActorRole string
}

// Fund credits a named asset to the agent's spendable balance.
func (s *Service) Fund(ctx context.Context, p FundParams) (*models.Agent, error) {
	asset := money.Normalize(p.Asset, money.AssetCredit)
	if asset == "" {
		return nil, apperr.Validationf("asset must be one of %s", strings.Join(money.Assets(), ", "))
	}
	if p.Amount <= 0 {
		return nil, apperr.Validationf("amount must be > 0")
	}
	note := strings.TrimSpace(p.Note)
	if note == "" {
		note = "owner_funding"
	}

	var out *models.Agent
	err := s.store.Update(ctx, func(st *models.State) error {
		agent, ok := st.Agents[p.AgentID]
		if !ok {
			return apperr.NotFoundf("agent not found")
		}
		amount := money.Round(p.Amount, asset)
		before := agent.Spendable(asset)
		after := agent.AddSpendable(asset, amount)
		agent.UpdatedAt = time.Now().UTC()
		st.AppendEvent("agent_funded", p.ActorRole, map[string]any{
			"agentId": agent.AgentID, "asset": asset, "amount": amount,
			"spendableBefore": before, "spendableAfter": after, "note": note,
		})
		out = models.Clone(agent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type WalletAddressParams struct {
	AgentID   string
	Chain     string
	Address   string
	ActorRole string
}

// SetWalletAddress overrides the agent's deposit address for a chain.
func (s *Service) SetWalletAddress(ctx context.Context, p WalletAddressParams) (*models.Agent, error) {
	chain := strings.ToUpper(strings.TrimSpace(p.Chain))
	if chain == "" {
		chain = "ETH"
	}
	if chain != "ETH" {
		return nil, apperr.Validationf("only ETH chain is supported")
	}
	address := NormalizeEthAddress(p.Address)
	if address == "" {
		return nil, apperr.Validationf("valid ETH address is required")
	}

	var out *models.Agent
	err := s.store.Update(ctx, func(st *models.State) error {
		agent, ok := st.Agents[p.AgentID]
		if !ok {
			return apperr.NotFoundf("agent not found")
		}
		agent.Wallet.Addresses["eth"] = address
		agent.UpdatedAt = time.Now().UTC()
		st.AppendEvent("agent_wallet_updated", p.ActorRole, map[string]any{
			"agentId": agent.AgentID, "chain": chain, "address": address,
		})
		out = models.Clone(agent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a single agent.
func (s *Service) Get(agentID string) (*models.Agent, error) {
	var out *models.Agent
	s.store.View(func(st *models.State) {
		if agent, ok := st.Agents[agentID]; ok {
			out = models.Clone(agent)
		}
	})
	if out == nil {
		return nil, apperr.NotFoundf("agent not found")
	}
	return out, nil
}

// List returns agents filtered by topic and minimum reputation.
func (s *Service) List(topic string, minReputation float64) []*models.Agent {
	out := []*models.Agent{}
	s.store.View(func(st *models.State) {
		for _, agent := range st.Agents {
			if topic != "" && !agent.HasTopic(topic) {
				continue
			}
			if agent.Reputation < minReputation {
				continue
			}
			out = append(out, models.Clone(agent))
		}
	})
	return out
}
