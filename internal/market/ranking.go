package market

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mammothnet/mammoth-node/internal/models"
	"github.com/mammothnet/mammoth-node/internal/money"
)

const defaultBarterDueHours = 72

// NormalizeBarterDueHours floors and clamps a barter deadline to
// [1, 720] hours. Zero or non-finite input falls back to the
// configured node default.
func NormalizeBarterDueHours(hours float64, fallback int) int {
	if fallback < 1 || fallback > 720 {
		fallback = defaultBarterDueHours
	}
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours == 0 {
		return fallback
	}
	h := int(math.Floor(hours))
	if h < 1 {
		return 1
	}
	if h > 720 {
		return 720
	}
	return h
}

// Quote is one ranked candidate offer for an ask.
type Quote struct {
	OfferID         string  `json:"offerId"`
	ProviderAgentID string  `json:"providerAgentId"`
	ProviderName    string  `json:"providerName"`
	Mode            string  `json:"mode"`
	Asset           string  `json:"asset"`
	Price           float64 `json:"price"`
	QualityScore    float64 `json:"qualityScore"`
	ValueScore      float64 `json:"valueScore"`
	BarterRequest   string  `json:"barterRequest,omitempty"`
	BarterDueHours  int     `json:"barterDueHours,omitempty"`
}

// collectCandidates gathers the quotable offers for an ask. Offers by
// the requester itself, by unknown agents, in a different asset, or
// priced above the budget are excluded. BARTER offers match only when
// both sides bring something to trade.
func collectCandidates(st *models.State, ask *models.Ask, defaultDueHours int) []Quote {
	quotes := []Quote{}
	for _, offer := range st.Market.Offers {
		if strings.ToUpper(offer.Status) != models.OfferStatusActive {
			continue
		}
		if offer.Topic != ask.Topic {
			continue
		}
		mode := models.NormalizeMode(offer.Mode, models.ModePaid)
		if mode == "" {
			continue
		}
		if ask.ModePreference != models.ModeAny && mode != ask.ModePreference {
			continue
		}
		if money.Normalize(offer.Asset, money.AssetCredit) != ask.Asset {
			continue
		}
		if offer.AgentID == ask.RequesterAgentID {
			continue
		}
		provider, ok := st.Agents[offer.AgentID]
		if !ok {
			continue
		}

		if mode == models.ModeBarter {
			if ask.BarterOffer == "" || strings.TrimSpace(offer.BarterRequest) == "" {
				continue
			}
		} else {
			price := offer.PricePerQuestion
			if mode == models.ModeFree {
				price = 0
			}
			if price < 0 || price > ask.MaxBudget {
				continue
			}
		}

		q := Quote{
			OfferID:         offer.OfferID,
			ProviderAgentID: offer.AgentID,
			ProviderName:    provider.Name,
			Mode:            mode,
			Asset:           ask.Asset,
			QualityScore:    money.Round2(money.Clamp(provider.Reputation*0.7+offer.QualityHint*0.3, 0, 1)),
		}
		if mode == models.ModeBarter {
			q.BarterRequest = strings.TrimSpace(offer.BarterRequest)
			q.BarterDueHours = NormalizeBarterDueHours(float64(offer.BarterDueHours), defaultDueHours)
		} else if mode == models.ModePaid {
			q.Price = money.Round(offer.PricePerQuestion, ask.Asset)
		}
		quotes = append(quotes, q)
	}
	return quotes
}

// rankQuotes orders candidates by the requested strategy. The value
// score, quality divided by price, floors free prices at 0.5 so a zero
// price cannot dominate every paid offer outright.
func rankQuotes(quotes []Quote, strategy string) []Quote {
	ranked := make([]Quote, len(quotes))
	copy(ranked, quotes)
	for i := range ranked {
		normalizedPrice := ranked[i].Price
		if normalizedPrice <= 0 {
			normalizedPrice = 0.5
		}
		ranked[i].ValueScore = money.Round2(ranked[i].QualityScore / normalizedPrice)
	}

	switch strategy {
	case models.StrategyCheapest:
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].Price != ranked[j].Price {
				return ranked[i].Price < ranked[j].Price
			}
			return ranked[i].QualityScore > ranked[j].QualityScore
		})
	case models.StrategyHighestQuality:
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].QualityScore != ranked[j].QualityScore {
				return ranked[i].QualityScore > ranked[j].QualityScore
			}
			return ranked[i].Price < ranked[j].Price
		})
	default:
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].ValueScore != ranked[j].ValueScore {
				return ranked[i].ValueScore > ranked[j].ValueScore
			}
			if ranked[i].Price != ranked[j].Price {
				return ranked[i].Price < ranked[j].Price
			}
			return ranked[i].QualityScore > ranked[j].QualityScore
		})
	}
	return ranked
}

// buildAnswer synthesizes the delivered answer text. The depth label
// tracks the trade mode.
func buildAnswer(question, topic, providerName, mode string, qualitySignal float64) string {
	depth := "Detailed answer"
	switch mode {
	case models.ModeFree:
		depth = "Quick answer"
	case models.ModeBarter:
		depth = "Collaborative answer"
	}
	focus := strings.TrimSpace(topic)
	if focus == "" {
		focus = "general"
	}
	confidence := int(math.Round(qualitySignal * 100))
	return fmt.Sprintf("[%s] %s answered on %s. Question: %q. Confidence %d%%. Includes summary, checks, and risks.",
		depth, providerName, focus, strings.TrimSpace(question), confidence)
}
