package peersync

import (
	"time"

	"github.com/mammothnet/mammoth-node/internal/models"
)

// Export builds the sync snapshot of the given state. Peer auth tokens
// never leave the node; each peer is exported in its public form.
func Export(st *models.State) *models.SyncSnapshot {
	peers := make(map[string]*models.PublicPeer, len(st.Peers))
	for peerID, peer := range st.Peers {
		peers[peerID] = peer.Public()
	}

	return &models.SyncSnapshot{
		NodeID:     st.Meta.NodeID,
		ExportedAt: time.Now().UTC(),
		Summary:    models.BuildSummary(st),
		Data: models.SnapshotData{
			Agents:   st.Agents,
			Intents:  st.Intents,
			Actions:  st.Actions,
			Messages: st.Messages,
			Claims:   st.Claims,
			Market:   st.Market,
			Platform: st.Platform,
			Crypto:   st.Crypto,
			Events:   st.Events,
			Peers:    peers,
		},
	}
}
