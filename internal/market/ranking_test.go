package market

import (
	"math"
	"strings"
	"testing"

	"github.com/mammothnet/mammoth-node/internal/models"
)

// ---------------------------------------------------------------------------
// NormalizeBarterDueHours
// ---------------------------------------------------------------------------

func TestNormalizeBarterDueHours(t *testing.T) {
	cases := []struct {
		input    float64
		fallback int
		want     int
	}{
		{0, 72, 72},
		{math.NaN(), 72, 72},
		{math.Inf(1), 72, 72},
		{0.4, 72, 1},
		{48.9, 72, 48},
		{-3, 72, 1},
		{9000, 72, 720},

		// the configured node default wins over the built-in 72
		{0, 24, 24},
		{math.NaN(), 24, 24},

		// out-of-range fallbacks revert to 72
		{0, 0, 72},
		{0, 9000, 72},
	}
	for _, tc := range cases {
		if got := NormalizeBarterDueHours(tc.input, tc.fallback); got != tc.want {
			t.Errorf("NormalizeBarterDueHours(%v, %d) = %d, want %d", tc.input, tc.fallback, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// rankQuotes strategies
// ---------------------------------------------------------------------------

func sampleQuotes() []Quote {
	return []Quote{
		{OfferID: "offer_pricey", Mode: models.ModePaid, Price: 10, QualityScore: 0.9},
		{OfferID: "offer_cheap", Mode: models.ModePaid, Price: 1, QualityScore: 0.5},
		{OfferID: "offer_free", Mode: models.ModeFree, Price: 0, QualityScore: 0.6},
	}
}

func TestRankQuotesCheapest(t *testing.T) {
	ranked := rankQuotes(sampleQuotes(), models.StrategyCheapest)
	if ranked[0].OfferID != "offer_free" || ranked[1].OfferID != "offer_cheap" {
		t.Errorf("cheapest order: %s, %s, %s", ranked[0].OfferID, ranked[1].OfferID, ranked[2].OfferID)
	}
}

func TestRankQuotesHighestQuality(t *testing.T) {
	ranked := rankQuotes(sampleQuotes(), models.StrategyHighestQuality)
	if ranked[0].OfferID != "offer_pricey" || ranked[1].OfferID != "offer_free" {
		t.Errorf("quality order: %s, %s, %s", ranked[0].OfferID, ranked[1].OfferID, ranked[2].OfferID)
	}
}

func TestRankQuotesBestValueFloorsFreePrice(t *testing.T) {
	// value scores: free 0.6/0.5 = 1.2, cheap 0.5/1 = 0.5, pricey 0.9/10 = 0.09
	ranked := rankQuotes(sampleQuotes(), models.StrategyBestValue)
	if ranked[0].OfferID != "offer_free" {
		t.Fatalf("best value winner = %s", ranked[0].OfferID)
	}
	if ranked[0].ValueScore != 1.2 {
		t.Errorf("free value score = %v, want 1.2 (0.5 price floor)", ranked[0].ValueScore)
	}
	if ranked[2].OfferID != "offer_pricey" {
		t.Errorf("best value loser = %s", ranked[2].OfferID)
	}
}

func TestRankQuotesPriceBreaksValueTie(t *testing.T) {
	quotes := []Quote{
		{OfferID: "offer_a", Price: 2, QualityScore: 0.8},
		{OfferID: "offer_b", Price: 1, QualityScore: 0.4},
	}
	// both value 0.4
	ranked := rankQuotes(quotes, models.StrategyBestValue)
	if ranked[0].OfferID != "offer_b" {
		t.Errorf("tie should go to the cheaper offer, got %s", ranked[0].OfferID)
	}
}

// ---------------------------------------------------------------------------
// buildAnswer
// ---------------------------------------------------------------------------

func TestBuildAnswerDepthTracksMode(t *testing.T) {
	cases := []struct {
		mode  string
		depth string
	}{
		{models.ModeFree, "[Quick answer]"},
		{models.ModeBarter, "[Collaborative answer]"},
		{models.ModePaid, "[Detailed answer]"},
	}
	for _, tc := range cases {
		got := buildAnswer("how do pods schedule?", "k8s", "alice", tc.mode, 0.874)
		if !strings.HasPrefix(got, tc.depth) {
			t.Errorf("mode %s: answer %q", tc.mode, got)
		}
		if !strings.Contains(got, "Confidence 87%") {
			t.Errorf("mode %s: confidence missing in %q", tc.mode, got)
		}
		if !strings.Contains(got, "alice answered on k8s") {
			t.Errorf("mode %s: attribution missing in %q", tc.mode, got)
		}
	}
}
