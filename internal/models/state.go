package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mammothnet/mammoth-node/internal/ids"
	"github.com/mammothnet/mammoth-node/internal/money"
)

// StateVersion is the snapshot document schema version.
const StateVersion = "0.3.0"

type Meta struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	NodeID    string    `json:"nodeId"`
}

// Config is the node configuration embedded in the snapshot document.
type Config struct {
	ClaimCooldownSec    int     `json:"claimCooldownSec"`
	MaxRunBaseFee       float64 `json:"maxRunBaseFee"`
	PeerSyncIntervalSec int     `json:"peerSyncIntervalSec"`
	PeerSyncTimeoutMs   int     `json:"peerSyncTimeoutMs"`
	MaxEventHistory     int     `json:"maxEventHistory"`
}

// Market groups the marketplace collections.
type Market struct {
	Offers      map[string]*Offer      `json:"offers"`
	Asks        map[string]*Ask        `json:"asks"`
	Executions  map[string]*Execution  `json:"executions"`
	Obligations map[string]*Obligation `json:"obligations"`
}

// Platform is the global platform ledger: tax rate and accrued tax revenue
// per asset.
type Platform struct {
	Label    string             `json:"label"`
	TaxBps   int                `json:"taxBps"`
	Treasury map[string]float64 `json:"treasury"`
}

// Crypto groups chain-derived collections.
type Crypto struct {
	Deposits map[string]*Deposit `json:"deposits"`
}

// State is the whole node ledger: the single source of truth, persisted as
// one document after every mutation and exchanged wholesale during peer
// synchronization.
type State struct {
	Meta     Meta                `json:"meta"`
	Config   Config              `json:"config"`
	Agents   map[string]*Agent   `json:"agents"`
	Intents  map[string]*Intent  `json:"intents"`
	Actions  map[string]*Action  `json:"actions"`
	Messages map[string]*Message `json:"messages"`
	Claims   map[string]*Claim   `json:"claims"`
	Peers    map[string]*Peer    `json:"peers"`
	Market   Market              `json:"market"`
	Platform Platform            `json:"platform"`
	Crypto   Crypto              `json:"crypto"`
	Events   []*Event            `json:"events"`
}

// NewState builds a fresh state with a generated node id.
func NewState(cfg Config, platformLabel string, taxBps int) *State {
	s := &State{
		Meta: Meta{
			Version:   StateVersion,
			CreatedAt: time.Now().UTC(),
			NodeID:    ids.New("node"),
		},
		Config: cfg,
		Platform: Platform{
			Label:  platformLabel,
			TaxBps: NormalizeTaxBps(taxBps),
		},
	}
	s.Normalize()
	return s
}

// Normalize fills every nil collection so loaded or merged snapshots are
// safe to mutate.
func (s *State) Normalize() {
	if s.Agents == nil {
		s.Agents = map[string]*Agent{}
	}
	if s.Intents == nil {
		s.Intents = map[string]*Intent{}
	}
	if s.Actions == nil {
		s.Actions = map[string]*Action{}
	}
	if s.Messages == nil {
		s.Messages = map[string]*Message{}
	}
	if s.Claims == nil {
		s.Claims = map[string]*Claim{}
	}
	if s.Peers == nil {
		s.Peers = map[string]*Peer{}
	}
	if s.Market.Offers == nil {
		s.Market.Offers = map[string]*Offer{}
	}
	if s.Market.Asks == nil {
		s.Market.Asks = map[string]*Ask{}
	}
	if s.Market.Executions == nil {
		s.Market.Executions = map[string]*Execution{}
	}
	if s.Market.Obligations == nil {
		s.Market.Obligations = map[string]*Obligation{}
	}
	if s.Crypto.Deposits == nil {
		s.Crypto.Deposits = map[string]*Deposit{}
	}
	if s.Platform.Treasury == nil {
		s.Platform.Treasury = map[string]float64{}
	}
	if s.Events == nil {
		s.Events = []*Event{}
	}
	s.Platform.TaxBps = NormalizeTaxBps(s.Platform.TaxBps)
	for _, a := range s.Agents {
		a.Normalize()
	}
}

// EventCap returns the effective journal bound.
func (s *State) EventCap() int {
	if s.Config.MaxEventHistory < 100 {
		return 100
	}
	return s.Config.MaxEventHistory
}

// AppendEvent appends a journal record and evicts the oldest entries past
// the cap.
func (s *State) AppendEvent(eventType, actorRole string, payload map[string]any) *Event {
	ev := &Event{
		EventID:   ids.New("evt"),
		EventType: eventType,
		ActorRole: actorRole,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	s.Events = append(s.Events, ev)
	if cap := s.EventCap(); len(s.Events) > cap {
		s.Events = append([]*Event{}, s.Events[len(s.Events)-cap:]...)
	}
	return ev
}

// AddPlatformTax accrues platform tax revenue for the asset.
func (s *State) AddPlatformTax(asset string, amount float64) {
	amount = money.Round(amount, asset)
	if amount <= 0 {
		return
	}
	s.Platform.Treasury[asset] = money.Round(s.Platform.Treasury[asset]+amount, asset)
}

// FindOffer returns the offer upsert target for (agent, topic, asset).
func (s *State) FindOffer(agentID, topic, asset string) *Offer {
	for _, o := range s.Market.Offers {
		if o.AgentID == agentID && o.Topic == topic && o.Asset == asset {
			return o
		}
	}
	return nil
}

// NormalizeTaxBps clamps a platform tax rate to [0, 5000] basis points.
func NormalizeTaxBps(bps int) int {
	if bps < 0 {
		return 0
	}
	if bps > 5000 {
		return 5000
	}
	return bps
}

// Clone deep-copies an entity via its JSON form. Handlers return clones so
// responses never alias state that a later operation mutates.
func Clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		return nil
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func upper(input, fallback string) string {
	v := strings.ToUpper(strings.TrimSpace(input))
	if v == "" {
		return strings.ToUpper(fallback)
	}
	return v
}
