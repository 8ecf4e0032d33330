package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mammothnet/mammoth-node/internal/models"
)

// FilePersister stores the snapshot as pretty-printed JSON on disk, written
// atomically via a temp file rename.
type FilePersister struct {
	Path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

func (f *FilePersister) Load(_ context.Context) (*models.State, error) {
	raw, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	state := &models.State{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	state.Normalize()
	return state, nil
}

func (f *FilePersister) Save(_ context.Context, s *models.State) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
