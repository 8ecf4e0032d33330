package peersync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mammothnet/mammoth-node/internal/middleware"
	"github.com/mammothnet/mammoth-node/internal/models"
)

// Client talks to remote nodes. The zero timeout falls back to the
// peer sync default.
type Client struct {
	http  *http.Client
	token string
}

// NewClient builds a peer client. token is this node's own token, used
// when a peer has no stored token of its own.
func NewClient(token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 7 * time.Second
	}
	return &Client{
		http:  &http.Client{Timeout: timeout},
		token: token,
	}
}

func peerEndpoint(peerURL, path string) string {
	return strings.TrimRight(strings.TrimSpace(peerURL), "/") + path
}

func (c *Client) authToken(peerToken string) string {
	if strings.TrimSpace(peerToken) != "" {
		return peerToken
	}
	return c.token
}

type snapshotEnvelope struct {
	OK       bool                 `json:"ok"`
	Snapshot *models.SyncSnapshot `json:"snapshot"`
}

// FetchSnapshot requests a full sync snapshot from the peer.
func (c *Client) FetchSnapshot(ctx context.Context, peerURL, peerToken string) (*models.SyncSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peerEndpoint(peerURL, "/v1/p2p/snapshot"), bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TokenHeader, c.authToken(peerToken))
	req.Header.Set(middleware.RoleHeader, middleware.RoleOwner)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 180))
		return nil, fmt.Errorf("snapshot failed (%d): %s", resp.StatusCode, string(raw))
	}

	var envelope snapshotEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("snapshot payload invalid: %w", err)
	}
	if !envelope.OK || envelope.Snapshot == nil {
		return nil, fmt.Errorf("snapshot payload invalid")
	}
	return envelope.Snapshot, nil
}

// Ping hits the peer's health endpoint and returns its reply document.
func (c *Client) Ping(ctx context.Context, peerURL, peerToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peerEndpoint(peerURL, "/health"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(middleware.TokenHeader, c.authToken(peerToken))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer health check failed (%d)", resp.StatusCode)
	}
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	return health, nil
}

// RelayContactOffer forwards a contact offer to the peer's inbound
// endpoint. Satisfies contacts.Relay.
func (c *Client) RelayContactOffer(ctx context.Context, peerURL, peerToken string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peerEndpoint(peerURL, "/v1/p2p/contact-offer"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TokenHeader, c.authToken(peerToken))
	req.Header.Set(middleware.RoleHeader, middleware.RoleAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 180))
		return fmt.Errorf("relay failed (%d): %s", resp.StatusCode, string(raw))
	}
	return nil
}
