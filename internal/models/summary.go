package models

import (
	"time"

	"github.com/mammothnet/mammoth-node/internal/money"
)

// Summary is the aggregate node view served to observers and embedded in
// exported sync snapshots.
type Summary struct {
	NodeID                     string             `json:"nodeId"`
	Agents                     int                `json:"agents"`
	Intents                    int                `json:"intents"`
	OpenIntents                int                `json:"openIntents"`
	ExecutedActions            int                `json:"executedActions"`
	Messages                   int                `json:"messages"`
	PendingMessages            int                `json:"pendingMessages"`
	Claims                     int                `json:"claims"`
	ClaimRequested             int                `json:"claimRequested"`
	ClaimExecuted              int                `json:"claimExecuted"`
	Peers                      int                `json:"peers"`
	PeersOnline                int                `json:"peersOnline"`
	AverageReputation          float64            `json:"averageReputation"`
	TotalPayout                float64            `json:"totalPayout"`
	MarketOffers               int                `json:"marketOffers"`
	MarketAsks                 int                `json:"marketAsks"`
	MarketPaidExecutions       int                `json:"marketPaidExecutions"`
	MarketVolume               float64            `json:"marketVolume"`
	MarketObligations          int                `json:"marketObligations"`
	MarketOpenObligations      int                `json:"marketOpenObligations"`
	MarketFulfilledObligations int                `json:"marketFulfilledObligations"`
	CryptoDeposits             int                `json:"cryptoDeposits"`
	PlatformTaxBps             int                `json:"platformTaxBps"`
	PlatformRevenue            map[string]float64 `json:"platformRevenue"`
}

// BuildSummary computes the aggregate view of the state.
func BuildSummary(s *State) *Summary {
	sum := &Summary{
		NodeID:            s.Meta.NodeID,
		Agents:            len(s.Agents),
		Intents:           len(s.Intents),
		Messages:          len(s.Messages),
		Claims:            len(s.Claims),
		Peers:             len(s.Peers),
		MarketOffers:      len(s.Market.Offers),
		MarketAsks:        len(s.Market.Asks),
		MarketObligations: len(s.Market.Obligations),
		CryptoDeposits:    len(s.Crypto.Deposits),
		PlatformTaxBps:    s.Platform.TaxBps,
		PlatformRevenue:   map[string]float64{},
	}
	for _, asset := range money.Assets() {
		sum.PlatformRevenue[asset] = money.Round(s.Platform.Treasury[asset], asset)
	}
	var repTotal float64
	for _, a := range s.Agents {
		repTotal += a.Reputation
	}
	if len(s.Agents) > 0 {
		sum.AverageReputation = money.Round2(repTotal / float64(len(s.Agents)))
	}
	for _, i := range s.Intents {
		if i.Status == IntentStatusOpen {
			sum.OpenIntents++
		}
	}
	var payout float64
	for _, a := range s.Actions {
		if a.Status == ActionStatusExecuted {
			sum.ExecutedActions++
			payout += a.Settlement.Payout
		}
	}
	sum.TotalPayout = money.Round2(payout)
	for _, m := range s.Messages {
		if m.Status == MessageStatusPending {
			sum.PendingMessages++
		}
	}
	for _, c := range s.Claims {
		switch c.Status {
		case ClaimStatusRequested:
			sum.ClaimRequested++
		case ClaimStatusExecuted:
			sum.ClaimExecuted++
		}
	}
	for _, p := range s.Peers {
		if p.Status == PeerStatusOnline {
			sum.PeersOnline++
		}
	}
	var volume float64
	for _, e := range s.Market.Executions {
		volume += e.Price
		if e.Price > 0 {
			sum.MarketPaidExecutions++
		}
	}
	sum.MarketVolume = money.Round2(volume)
	for _, o := range s.Market.Obligations {
		switch o.Status {
		case ObligationStatusOpen, ObligationStatusSubmitted:
			sum.MarketOpenObligations++
		case ObligationStatusFulfilled:
			sum.MarketFulfilledObligations++
		}
	}
	return sum
}

// SnapshotData is the entity payload of an exported sync snapshot. Peers are
// exported in their public (token-stripped) form.
type SnapshotData struct {
	Agents   map[string]*Agent      `json:"agents"`
	Intents  map[string]*Intent     `json:"intents"`
	Actions  map[string]*Action     `json:"actions"`
	Messages map[string]*Message    `json:"messages"`
	Claims   map[string]*Claim      `json:"claims"`
	Market   Market                 `json:"market"`
	Platform Platform               `json:"platform"`
	Crypto   Crypto                 `json:"crypto"`
	Events   []*Event               `json:"events"`
	Peers    map[string]*PublicPeer `json:"peers"`
}

// SyncSnapshot is the document exchanged by the anti-entropy protocol.
type SyncSnapshot struct {
	NodeID     string       `json:"nodeId"`
	ExportedAt time.Time    `json:"exportedAt"`
	Summary    *Summary     `json:"summary"`
	Data       SnapshotData `json:"data"`
}
