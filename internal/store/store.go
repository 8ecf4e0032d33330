// Package store owns the node's single mutable ledger. Every mutating
// operation runs inside one critical section and the whole snapshot
// document is rewritten to durable storage before the call returns
// (write-through). Reads take a shared lock and must copy anything they
// hand out past the callback.
package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mammothnet/mammoth-node/internal/config"
	"github.com/mammothnet/mammoth-node/internal/models"
)

// Persister writes and reads the whole snapshot document. Load returns
// (nil, nil) when no prior snapshot exists.
type Persister interface {
	Load(ctx context.Context) (*models.State, error)
	Save(ctx context.Context, s *models.State) error
}

type Store struct {
	mu        sync.RWMutex
	state     *models.State
	persister Persister
	logger    *slog.Logger
}

// Open loads the persisted state or creates a fresh one from config.
func Open(ctx context.Context, p Persister, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	state, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = models.NewState(models.Config{
			ClaimCooldownSec:    cfg.ClaimCooldownSec,
			MaxRunBaseFee:       cfg.MaxRunBaseFee,
			PeerSyncIntervalSec: cfg.PeerSyncIntervalSec,
			PeerSyncTimeoutMs:   cfg.PeerSyncTimeoutMs,
			MaxEventHistory:     cfg.MaxEventHistory,
		}, cfg.PlatformTaxLabel, cfg.PlatformTaxBps)
		if err := p.Save(ctx, state); err != nil {
			return nil, err
		}
	}
	state.Normalize()
	return &Store{state: state, persister: p, logger: logger}, nil
}

// View runs fn with shared access to the state. fn must not mutate and must
// not retain references past the call; copy (models.Clone) anything returned.
func (s *Store) View(fn func(*models.State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// Update runs fn exclusively and persists the snapshot when fn succeeds.
// Operations validate before mutating: when fn returns an error nothing is
// persisted and fn is expected to have left the state untouched.
func (s *Store) Update(ctx context.Context, fn func(*models.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.state); err != nil {
		return err
	}
	return s.persister.Save(ctx, s.state)
}

// UpdateIf is Update with write suppression: fn reports whether anything
// changed, and the snapshot is only persisted when it did. The autosync loop
// uses this to stay quiet in steady state.
func (s *Store) UpdateIf(ctx context.Context, fn func(*models.State) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed, err := fn(s.state)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.persister.Save(ctx, s.state)
}

// NodeID returns the stable node identity.
func (s *Store) NodeID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Meta.NodeID
}
