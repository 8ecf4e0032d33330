// Package router wires the HTTP surface: the health probe stays open,
// everything else goes through the node credential check.
package router

import (
	"net/http"

	"github.com/mammothnet/mammoth-node/internal/agents"
	"github.com/mammothnet/mammoth-node/internal/claims"
	"github.com/mammothnet/mammoth-node/internal/contacts"
	"github.com/mammothnet/mammoth-node/internal/deposits"
	"github.com/mammothnet/mammoth-node/internal/intents"
	"github.com/mammothnet/mammoth-node/internal/market"
	"github.com/mammothnet/mammoth-node/internal/middleware"
	"github.com/mammothnet/mammoth-node/internal/observer"
	"github.com/mammothnet/mammoth-node/internal/peersync"
)

// Handlers carries every route group the node serves.
type Handlers struct {
	Agents   *agents.Handler
	Intents  *intents.Handler
	Contacts *contacts.Handler
	Market   *market.Handler
	Claims   *claims.Handler
	Deposits *deposits.Handler
	Peers    *peersync.Handler
	Observer *observer.Handler
}

// New builds the routing table and applies the auth wrapper.
func New(token string, h Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Observer.Health)
	mux.HandleFunc("GET /v1/node/info", h.Observer.NodeInfo)
	mux.HandleFunc("GET /v1/platform/treasury", h.Observer.PlatformTreasury)
	mux.HandleFunc("GET /v1/observer/summary", h.Observer.Summary)
	mux.HandleFunc("GET /v1/observer/timeline", h.Observer.Timeline)

	mux.HandleFunc("POST /v1/agents/register", h.Agents.Register)
	mux.HandleFunc("POST /v1/agents/policy", h.Agents.SetPolicy)
	mux.HandleFunc("POST /v1/agents/fund", h.Agents.Fund)
	mux.HandleFunc("POST /v1/agents/wallet/address", h.Agents.SetWalletAddress)
	mux.HandleFunc("GET /v1/agents", h.Agents.List)
	mux.HandleFunc("GET /v1/agents/{id}", h.Agents.Get)

	mux.HandleFunc("POST /v1/intents", h.Intents.Create)
	mux.HandleFunc("GET /v1/intents", h.Intents.List)
	mux.HandleFunc("POST /v1/actions/run", h.Intents.RunAction)
	mux.HandleFunc("GET /v1/actions", h.Intents.ListActions)

	mux.HandleFunc("GET /v1/a2a/discover", h.Agents.List)
	mux.HandleFunc("POST /v1/a2a/contact-offers", h.Contacts.CreateOffer)
	mux.HandleFunc("POST /v1/a2a/contact-accept", h.Contacts.Accept)
	mux.HandleFunc("POST /v1/a2a/contact-refuse", h.Contacts.Refuse)
	mux.HandleFunc("POST /v1/a2a/block", h.Contacts.Block)
	mux.HandleFunc("GET /v1/a2a/inbox", h.Contacts.Inbox)

	mux.HandleFunc("POST /v1/market/offers", h.Market.UpsertOffer)
	mux.HandleFunc("GET /v1/market/offers", h.Market.ListOffers)
	mux.HandleFunc("POST /v1/market/ask", h.Market.Ask)
	mux.HandleFunc("GET /v1/market/asks", h.Market.ListAsks)
	mux.HandleFunc("GET /v1/market/executions", h.Market.ListExecutions)
	mux.HandleFunc("GET /v1/market/obligations", h.Market.ListObligations)
	mux.HandleFunc("POST /v1/market/obligations/submit", h.Market.SubmitObligation)
	mux.HandleFunc("POST /v1/market/obligations/review", h.Market.ReviewObligation)

	mux.HandleFunc("POST /v1/claims/request", h.Claims.Request)
	mux.HandleFunc("POST /v1/claims/execute", h.Claims.Execute)
	mux.HandleFunc("GET /v1/claims", h.Claims.List)

	mux.HandleFunc("POST /v1/crypto/deposits/verify", h.Deposits.Verify)
	mux.HandleFunc("GET /v1/crypto/deposits", h.Deposits.List)

	mux.HandleFunc("POST /v1/peers/add", h.Peers.AddPeer)
	mux.HandleFunc("POST /v1/peers/ping", h.Peers.PingPeer)
	mux.HandleFunc("POST /v1/peers/sync", h.Peers.SyncPeers)
	mux.HandleFunc("GET /v1/peers", h.Peers.ListPeers)
	mux.HandleFunc("POST /v1/p2p/snapshot", h.Peers.Snapshot)
	mux.HandleFunc("POST /v1/p2p/contact-offer", h.Contacts.InboundOffer)

	return middleware.NodeAuth(token, mux)
}
