// Package market implements the knowledge marketplace: standing
// offers, ask matching with quote ranking, settlement across FREE,
// PAID, and BARTER trades, and the barter obligation lifecycle.
package market

import (
	"context"
	"log/slog"
	"math/rand"
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

	// barterDueHours is the node default barter deadline applied when an
	// offer does not carry one.
	barterDueHours int

	// jitter perturbs the delivered quality signal. Overridden in tests.
	jitter func() float64
}

func NewService(st *store.Store, barterDueHours int, logger *slog.Logger) *Service {
	return &Service{
		store:          st,
		logger:         logger,
		barterDueHours: barterDueHours,
		jitter:         func() float64 { return (rand.Float64() - 0.5) * 0.08 },
	}
}

// qualitySignal blends provider reputation and the offer's quality
// score, plus noise, clamped to [0, 1].
func (s *Service) qualitySignal(providerRep, offerQuality float64) float64 {
	base := money.Clamp(providerRep*0.7+offerQuality*0.3, 0, 1)
	return money.Round2(money.Clamp(base+s.jitter(), 0, 1))
}

type OfferParams struct {
	AgentID          string
	Topic            string
	Mode             string
	Asset            string
	PricePerQuestion *float64
	QualityHint      *float64
	BarterRequest    string
	BarterDueHours   float64
	ActorRole        string
}

// UpsertOffer creates or refreshes the agent's offer for a
// (topic, asset) pair. FREE and BARTER offers always price at zero.
func (s *Service) UpsertOffer(ctx context.Context, p OfferParams) (*models.Offer, error) {
	topic := strings.TrimSpace(p.Topic)
	mode := models.NormalizeMode(p.Mode, models.ModePaid)
	asset := money.Normalize(p.Asset, money.AssetCredit)
	barterRequest := strings.TrimSpace(p.BarterRequest)

	if topic == "" {
		return nil, apperr.Validationf("topic is required")
	}
	if mode == "" {
		return nil, apperr.Validationf("mode must be FREE, PAID, or BARTER")
	}
	if asset == "" {
		return nil, apperr.Validationf("asset must be one of %s", strings.Join(money.Assets(), ", "))
	}

	price := 1.0
	if mode == models.ModeFree || mode == models.ModeBarter {
		price = 0
	}
	if p.PricePerQuestion != nil {
		price = *p.PricePerQuestion
	}
	if price < 0 {
		return nil, apperr.Validationf("pricePerQuestion must be a non-negative number")
	}
	if mode == models.ModePaid && price <= 0 {
		return nil, apperr.Validationf("pricePerQuestion must be > 0 for PAID mode")
	}
	if mode == models.ModeBarter && barterRequest == "" {
		return nil, apperr.Validationf("barterRequest is required for BARTER mode")
	}
	quality := 0.7
	if p.QualityHint != nil {
		quality = *p.QualityHint
	}

	var out *models.Offer
	err := s.store.Update(ctx, func(st *models.State) error {
		if _, ok := st.Agents[p.AgentID]; !ok {
			return apperr.NotFoundf("agent not found")
		}

		now := time.Now().UTC()
		offer := st.FindOffer(p.AgentID, topic, asset)
		if offer == nil {
			offer = &models.Offer{OfferID: ids.New("offer"), CreatedAt: now}
			st.Market.Offers[offer.OfferID] = offer
		}
		offer.AgentID = p.AgentID
		offer.Topic = topic
		offer.Mode = mode
		offer.Asset = asset
		offer.QualityHint = money.Round2(money.Clamp(quality, 0, 1))
		offer.Status = models.OfferStatusActive
		offer.UpdatedAt = now
		if mode == models.ModePaid {
			offer.PricePerQuestion = money.Round(price, asset)
			offer.BarterRequest = ""
			offer.BarterDueHours = 0
		} else {
			offer.PricePerQuestion = 0
			offer.BarterRequest = ""
			offer.BarterDueHours = 0
			if mode == models.ModeBarter {
				offer.BarterRequest = barterRequest
				offer.BarterDueHours = NormalizeBarterDueHours(p.BarterDueHours, s.barterDueHours)
			}
		}

		st.AppendEvent("market_offer_upserted", p.ActorRole, map[string]any{
			"offerId": offer.OfferID, "agentId": p.AgentID, "topic": topic,
			"mode": mode, "asset": asset,
			"pricePerQuestion": offer.PricePerQuestion,
			"barterRequest":    offer.BarterRequest,
			"barterDueHours":   offer.BarterDueHours,
		})
		out = models.Clone(offer)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type OfferFilter struct {
	Topic   string
	AgentID string
	Mode    string
	Status  string
	Asset   string
}

// ListOffers returns matching offers, most recently updated first.
func (s *Service) ListOffers(f OfferFilter) []*models.Offer {
	mode := strings.ToUpper(strings.TrimSpace(f.Mode))
	status := strings.ToUpper(strings.TrimSpace(f.Status))
	asset := strings.ToUpper(strings.TrimSpace(f.Asset))

	out := []*models.Offer{}
	s.store.View(func(st *models.State) {
		for _, offer := range st.Market.Offers {
			if f.Topic != "" && offer.Topic != f.Topic {
				continue
			}
			if f.AgentID != "" && offer.AgentID != f.AgentID {
				continue
			}
			if mode != "" && offer.Mode != mode {
				continue
			}
			if asset != "" && strings.ToUpper(offer.Asset) != asset {
				continue
			}
			if status != "" && strings.ToUpper(offer.Status) != status {
				continue
			}
			out = append(out, models.Clone(offer))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

type AskParams struct {
	RequesterAgentID string
	Topic            string
	Question         string
	Asset            string
	MaxBudget        float64
	Strategy         string
	AutoExecute      bool
	ModePreference   string
	BarterOffer      string
	ActorRole        string
}

type AskResult struct {
	Ask        *models.Ask        `json:"ask"`
	Quotes     []Quote            `json:"quotes"`
	Execution  *models.Execution  `json:"execution,omitempty"`
	Obligation *models.Obligation `json:"obligation,omitempty"`
	Provider   *models.Agent      `json:"provider,omitempty"`
	Requester  *models.Agent      `json:"requester,omitempty"`
}

// Ask records a question, matches it against standing offers, and,
// with autoExecute, settles the top quote immediately. The ask record
// persists in every outcome, including the failure statuses.
func (s *Service) Ask(ctx context.Context, p AskParams) (*AskResult, error) {
	topic := strings.TrimSpace(p.Topic)
	question := strings.TrimSpace(p.Question)
	asset := money.Normalize(p.Asset, money.AssetCredit)
	strategy := strings.ToLower(strings.TrimSpace(p.Strategy))
	if strategy == "" {
		strategy = models.StrategyBestValue
	}
	modePreference := models.NormalizeModePreference(p.ModePreference, models.ModeAny)
	barterOffer := strings.TrimSpace(p.BarterOffer)

	if topic == "" {
		return nil, apperr.Validationf("topic is required")
	}
	if question == "" {
		return nil, apperr.Validationf("question is required")
	}
	if asset == "" {
		return nil, apperr.Validationf("asset must be one of %s", strings.Join(money.Assets(), ", "))
	}
	if modePreference == "" {
		return nil, apperr.Validationf("modePreference must be ANY, FREE, PAID, or BARTER")
	}
	if p.MaxBudget < 0 {
		return nil, apperr.Validationf("maxBudget must be a non-negative number")
	}
	if modePreference == models.ModeBarter && barterOffer == "" {
		return nil, apperr.Validationf("barterOffer is required when modePreference is BARTER")
	}

	var (
		res   AskResult
		opErr error
	)
	err := s.store.Update(ctx, func(st *models.State) error {
		requester, ok := st.Agents[p.RequesterAgentID]
		if !ok {
			return apperr.NotFoundf("requester agent not found")
		}

		now := time.Now().UTC()
		ask := &models.Ask{
			AskID:            ids.New("ask"),
			RequesterAgentID: p.RequesterAgentID,
			Topic:            topic,
			Question:         question,
			Asset:            asset,
			MaxBudget:        money.Round(p.MaxBudget, asset),
			Strategy:         strategy,
			Status:           models.AskStatusOpen,
			ModePreference:   modePreference,
			BarterOffer:      barterOffer,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		st.Market.Asks[ask.AskID] = ask
		st.AppendEvent("market_ask_created", p.ActorRole, map[string]any{
			"askId": ask.AskID, "requesterAgentId": p.RequesterAgentID,
			"topic": topic, "asset": asset, "maxBudget": ask.MaxBudget,
			"modePreference": modePreference,
		})

		ranked := rankQuotes(collectCandidates(st, ask, s.barterDueHours), strategy)
		if len(ranked) == 0 {
			ask.Status = models.AskStatusNoMatch
			ask.UpdatedAt = time.Now().UTC()
			st.AppendEvent("market_ask_no_match", models.ActorSystem, map[string]any{
				"askId": ask.AskID, "requesterAgentId": p.RequesterAgentID,
				"topic": topic, "asset": asset, "maxBudget": ask.MaxBudget,
				"modePreference": modePreference,
			})
			res.Ask = models.Clone(ask)
			res.Quotes = []Quote{}
			return nil
		}

		selected := ranked[0]
		ask.SelectedOfferID = selected.OfferID
		ask.SelectedProviderAgentID = selected.ProviderAgentID
		ask.SelectedMode = selected.Mode
		ask.SelectedPrice = selected.Price
		if p.AutoExecute {
			ask.Status = models.AskStatusMatched
		} else {
			ask.Status = models.AskStatusQuoted
		}
		ask.UpdatedAt = time.Now().UTC()
		st.AppendEvent("market_quote_selected", models.ActorSystem, map[string]any{
			"askId": ask.AskID, "offerId": selected.OfferID,
			"requesterAgentId": p.RequesterAgentID,
			"providerAgentId":  selected.ProviderAgentID,
			"price":            selected.Price, "mode": selected.Mode,
			"asset": asset, "barterRequest": selected.BarterRequest,
		})

		if !p.AutoExecute {
			res.Ask = models.Clone(ask)
			if len(ranked) > 5 {
				ranked = ranked[:5]
			}
			res.Quotes = ranked
			return nil
		}

		opErr = s.execute(st, ask, selected, requester, &res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return &res, opErr
	}
	return &res, nil
}

// execute settles the selected quote in place. Failures persist the
// ask's failure status and surface through the returned error.
func (s *Service) execute(st *models.State, ask *models.Ask, selected Quote, requester *models.Agent, res *AskResult) error {
	provider, ok := st.Agents[selected.ProviderAgentID]
	if !ok {
		ask.Status = models.AskStatusFailedNoProvider
		ask.UpdatedAt = time.Now().UTC()
		st.AppendEvent("market_ask_failed", models.ActorSystem, map[string]any{
			"askId": ask.AskID, "reasonCode": "PROVIDER_MISSING",
		})
		res.Ask = models.Clone(ask)
		return apperr.Transientf("provider missing after selection")
	}

	asset := ask.Asset
	price := money.Round(selected.Price, asset)
	spendableBefore := requester.Spendable(asset)
	if price > spendableBefore {
		ask.Status = models.AskStatusFailedFunds
		ask.UpdatedAt = time.Now().UTC()
		st.AppendEvent("market_ask_failed", models.ActorSystem, map[string]any{
			"askId": ask.AskID, "reasonCode": "INSUFFICIENT_FUNDS",
			"required": price, "asset": asset, "spendable": spendableBefore,
		})
		res.Ask = models.Clone(ask)
		return apperr.Conflictf("insufficient requester spendable balance")
	}

	qualitySignal := s.qualitySignal(provider.Reputation, selected.QualityScore)
	answer := buildAnswer(ask.Question, ask.Topic, provider.Name, selected.Mode, qualitySignal)
	executionID := ids.New("mx")
	now := time.Now().UTC()

	settlement := models.ExecSettlement{
		Kind:                 selected.Mode,
		Asset:                asset,
		Price:                price,
		PayerSpendableBefore: spendableBefore,
		PayerSpendableAfter:  spendableBefore,
	}
	if selected.Mode == models.ModePaid && price == 0 {
		settlement.Kind = models.ModeFree
	}

	var obligation *models.Obligation
	switch {
	case selected.Mode == models.ModePaid && price > 0:
		taxBps := models.NormalizeTaxBps(st.Platform.TaxBps)
		platformTax := money.Round(money.Clamp(money.Round(price*float64(taxBps)/10000, asset), 0, price), asset)
		providerNet := money.Round(price-platformTax, asset)

		spendableAfter := requester.AddSpendable(asset, -price)
		requester.AddSpent(asset, price)
		provider.AddEarnedGross(asset, providerNet)

		ownerClaimable := money.Round(providerNet*0.4, asset)
		operatingReserve := money.Round(providerNet*0.4, asset)
		lockedSafety := money.Round(providerNet*0.2, asset)
		provider.CreditTreasury(asset, ownerClaimable, operatingReserve, lockedSafety)

		st.AddPlatformTax(asset, platformTax)
		st.AppendEvent("market_tax_collected", models.ActorSystem, map[string]any{
			"askId": ask.AskID, "executionId": executionID, "asset": asset,
			"platformTax": platformTax, "taxBps": taxBps,
			"providerNet": providerNet, "label": st.Platform.Label,
		})

		settlement.PayerSpendableAfter = spendableAfter
		settlement.TaxBps = taxBps
		settlement.PlatformTax = platformTax
		settlement.ProviderNet = providerNet
		settlement.OwnerClaimable = ownerClaimable
		settlement.OperatingReserve = operatingReserve
		settlement.LockedSafety = lockedSafety

		st.AppendEvent("market_settlement_posted", models.ActorSystem, map[string]any{
			"askId": ask.AskID, "executionId": executionID,
			"providerAgentId": provider.AgentID, "requesterAgentId": requester.AgentID,
			"asset": asset, "settlement": settlement,
		})

	case selected.Mode == models.ModeBarter:
		dueAt := now.Add(time.Duration(selected.BarterDueHours) * time.Hour)
		obligation = &models.Obligation{
			ObligationID:    ids.New("obg"),
			AskID:           ask.AskID,
			ExecutionID:     executionID,
			DebtorAgentID:   requester.AgentID,
			CreditorAgentID: provider.AgentID,
			Status:          models.ObligationStatusOpen,
			Topic:           ask.Topic,
			BarterRequest:   selected.BarterRequest,
			BarterOffer:     ask.BarterOffer,
			BarterDueHours:  selected.BarterDueHours,
			DueAt:           dueAt,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		st.Market.Obligations[obligation.ObligationID] = obligation

		settlement.ObligationID = obligation.ObligationID
		settlement.BarterRequest = obligation.BarterRequest
		settlement.BarterOffer = obligation.BarterOffer
		settlement.DueAt = &dueAt

		st.AppendEvent("market_obligation_created", models.ActorSystem, map[string]any{
			"obligationId": obligation.ObligationID, "askId": ask.AskID,
			"executionId":   executionID,
			"debtorAgentId": requester.AgentID, "creditorAgentId": provider.AgentID,
			"barterRequest": obligation.BarterRequest,
			"barterOffer":   obligation.BarterOffer, "dueAt": dueAt,
		})
		st.AppendEvent("market_settlement_posted", models.ActorSystem, map[string]any{
			"askId": ask.AskID, "executionId": executionID,
			"providerAgentId": provider.AgentID, "requesterAgentId": requester.AgentID,
			"asset": asset, "mode": models.ModeBarter, "settlement": settlement,
		})
	}

	repBefore := provider.Reputation
	provider.AdjustReputation(money.Round2((qualitySignal - 0.78) * 0.06))
	provider.UpdatedAt = now
	requester.UpdatedAt = now

	deliveredAt := time.Now().UTC()
	ask.Status = models.AskStatusDelivered
	ask.Answer = answer
	ask.Confidence = qualitySignal
	ask.UpdatedAt = deliveredAt
	ask.DeliveredAt = &deliveredAt

	execution := &models.Execution{
		ExecutionID:      executionID,
		AskID:            ask.AskID,
		RequesterAgentID: requester.AgentID,
		ProviderAgentID:  provider.AgentID,
		OfferID:          selected.OfferID,
		Mode:             selected.Mode,
		Asset:            asset,
		Price:            price,
		QualitySignal:    qualitySignal,
		Answer:           answer,
		RepBefore:        repBefore,
		RepAfter:         provider.Reputation,
		Settlement:       settlement,
		CreatedAt:        now,
	}
	if obligation != nil {
		execution.ObligationID = obligation.ObligationID
	}
	st.Market.Executions[executionID] = execution

	st.AppendEvent("market_answer_delivered", models.ActorSystem, map[string]any{
		"askId": ask.AskID, "executionId": executionID,
		"providerAgentId": provider.AgentID, "requesterAgentId": requester.AgentID,
		"asset": asset, "price": price, "mode": selected.Mode,
		"qualitySignal": qualitySignal, "obligationId": execution.ObligationID,
	})

	res.Ask = models.Clone(ask)
	res.Execution = models.Clone(execution)
	res.Obligation = models.Clone(obligation)
	res.Provider = models.Clone(provider)
	res.Requester = models.Clone(requester)
	return nil
}

type AskFilter struct {
	RequesterAgentID string
	ProviderAgentID  string
	Status           string
	Topic            string
	Asset            string
	Limit            int
}

// ListAsks returns matching asks, newest first.
func (s *Service) ListAsks(f AskFilter) []*models.Ask {
	status := strings.ToUpper(strings.TrimSpace(f.Status))
	asset := strings.ToUpper(strings.TrimSpace(f.Asset))
	limit := clampLimit(f.Limit, 100)

	out := []*models.Ask{}
	s.store.View(func(st *models.State) {
		for _, ask := range st.Market.Asks {
			if f.RequesterAgentID != "" && ask.RequesterAgentID != f.RequesterAgentID {
				continue
			}
			if f.ProviderAgentID != "" && ask.SelectedProviderAgentID != f.ProviderAgentID {
				continue
			}
			if status != "" && strings.ToUpper(ask.Status) != status {
				continue
			}
			if f.Topic != "" && ask.Topic != f.Topic {
				continue
			}
			if asset != "" && strings.ToUpper(ask.Asset) != asset {
				continue
			}
			out = append(out, models.Clone(ask))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

type ExecutionFilter struct {
	RequesterAgentID string
	ProviderAgentID  string
	AskID            string
	Asset            string
	Limit            int
}

// ListExecutions returns matching executions, newest first.
func (s *Service) ListExecutions(f ExecutionFilter) []*models.Execution {
	asset := strings.ToUpper(strings.TrimSpace(f.Asset))
	limit := clampLimit(f.Limit, 100)

	out := []*models.Execution{}
	s.store.View(func(st *models.State) {
		for _, exec := range st.Market.Executions {
			if f.RequesterAgentID != "" && exec.RequesterAgentID != f.RequesterAgentID {
				continue
			}
			if f.ProviderAgentID != "" && exec.ProviderAgentID != f.ProviderAgentID {
				continue
			}
			if f.AskID != "" && exec.AskID != f.AskID {
				continue
			}
			if asset != "" && strings.ToUpper(exec.Asset) != asset {
				continue
			}
			out = append(out, models.Clone(exec))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clampLimit(limit, fallback int) int {
	if limit < 1 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}
