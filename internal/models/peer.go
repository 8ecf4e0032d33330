package models

import "time"

// Peer states.
const (
	PeerStatusAdded      = "ADDED"
	PeerStatusOnline     = "ONLINE"
	PeerStatusOffline    = "OFFLINE"
	PeerStatusDiscovered = "DISCOVERED"
)

// Last-sync outcomes.
const (
	SyncStatusNever  = "NEVER"
	SyncStatusOK     = "OK"
	SyncStatusFailed = "FAILED"
)

// Peer is a known remote node. AuthToken is persisted locally but stripped
// from exported snapshots.
type Peer struct {
	PeerID         string     `json:"peerId"`
	URL            string     `json:"url"`
	Status         string     `json:"status"`
	AddedAt        time.Time  `json:"addedAt"`
	LastSeenAt     *time.Time `json:"lastSeenAt,omitempty"`
	LastSyncAt     *time.Time `json:"lastSyncAt,omitempty"`
	LastSyncStatus string     `json:"lastSyncStatus"`
	LastSyncError  string     `json:"lastSyncError,omitempty"`
	AutoSync       bool       `json:"autoSync"`
	AuthToken      string     `json:"authToken,omitempty"`
}

// VersionTime is the recency used when merging peer registries.
func (p *Peer) VersionTime() time.Time {
	v := p.AddedAt
	if p.LastSeenAt != nil {
		v = maxTime(v, *p.LastSeenAt)
	}
	if p.LastSyncAt != nil {
		v = maxTime(v, *p.LastSyncAt)
	}
	return v
}

// PublicPeer is a peer with the auth token replaced by a presence flag.
type PublicPeer struct {
	Peer
	HasAuthToken bool `json:"hasAuthToken"`
}

// Public returns the exportable view of the peer.
func (p *Peer) Public() *PublicPeer {
	out := &PublicPeer{Peer: *p, HasAuthToken: p.AuthToken != ""}
	out.AuthToken = ""
	return out
}
