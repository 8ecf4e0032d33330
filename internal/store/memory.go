package store

import (
	"context"

	"github.com/mammothnet/mammoth-node/internal/models"
)

// MemPersister keeps the last saved snapshot in memory. Used by tests and
// useful for ephemeral nodes.
type MemPersister struct {
	Saved *models.State
	Saves int
}

func (m *MemPersister) Load(_ context.Context) (*models.State, error) {
	return m.Saved, nil
}

func (m *MemPersister) Save(_ context.Context, s *models.State) error {
	m.Saved = s
	m.Saves++
	return nil
}
