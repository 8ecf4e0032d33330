package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mammothnet/mammoth-node/internal/config"
	"github.com/mammothnet/mammoth-node/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---------------------------------------------------------------------------
// Open
// ---------------------------------------------------------------------------

func TestOpenCreatesAndPersistsFreshState(t *testing.T) {
	mem := &MemPersister{}
	st, err := Open(context.Background(), mem, config.Defaults(), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if mem.Saves != 1 {
		t.Errorf("fresh state should be saved once, got %d saves", mem.Saves)
	}
	if st.NodeID() == "" {
		t.Error("fresh state has no node id")
	}
	st.View(func(s *models.State) {
		if s.Config.ClaimCooldownSec != 86400 {
			t.Errorf("claim cooldown = %d", s.Config.ClaimCooldownSec)
		}
		if s.Platform.TaxBps != 250 || s.Platform.Label != "mammoth_protocol" {
			t.Errorf("platform = %+v", s.Platform)
		}
	})
}

func TestOpenReusesPersistedState(t *testing.T) {
	mem := &MemPersister{}
	first, err := Open(context.Background(), mem, config.Defaults(), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	nodeID := first.NodeID()

	second, err := Open(context.Background(), mem, config.Defaults(), testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if second.NodeID() != nodeID {
		t.Errorf("node id changed across reopen: %s vs %s", second.NodeID(), nodeID)
	}
	if mem.Saves != 1 {
		t.Errorf("reopen should not save, got %d saves", mem.Saves)
	}
}

// ---------------------------------------------------------------------------
// Update / UpdateIf
// ---------------------------------------------------------------------------

func TestUpdateWritesThrough(t *testing.T) {
	mem := &MemPersister{}
	st, _ := Open(context.Background(), mem, config.Defaults(), testLogger())
	before := mem.Saves

	err := st.Update(context.Background(), func(s *models.State) error {
		s.AppendEvent("test_event", "owner", map[string]any{"n": 1})
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if mem.Saves != before+1 {
		t.Errorf("expected one save, got %d", mem.Saves-before)
	}
	if len(mem.Saved.Events) != 1 {
		t.Errorf("event not persisted, journal len %d", len(mem.Saved.Events))
	}
}

func TestUpdateErrorSkipsSave(t *testing.T) {
	mem := &MemPersister{}
	st, _ := Open(context.Background(), mem, config.Defaults(), testLogger())
	before := mem.Saves

	wantErr := errors.New("boom")
	err := st.Update(context.Background(), func(s *models.State) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	if mem.Saves != before {
		t.Errorf("failed update must not save, got %d extra saves", mem.Saves-before)
	}
}

func TestUpdateIfSuppressesQuietWrites(t *testing.T) {
	mem := &MemPersister{}
	st, _ := Open(context.Background(), mem, config.Defaults(), testLogger())
	before := mem.Saves

	// 1. no change reported: no save
	if err := st.UpdateIf(context.Background(), func(s *models.State) (bool, error) {
		return false, nil
	}); err != nil {
		t.Fatalf("UpdateIf: %v", err)
	}
	if mem.Saves != before {
		t.Errorf("quiet UpdateIf saved anyway")
	}

	// 2. change reported: saves
	if err := st.UpdateIf(context.Background(), func(s *models.State) (bool, error) {
		s.AppendEvent("test_event", "owner", nil)
		return true, nil
	}); err != nil {
		t.Fatalf("UpdateIf: %v", err)
	}
	if mem.Saves != before+1 {
		t.Errorf("changed UpdateIf did not save")
	}
}

// ---------------------------------------------------------------------------
// Event journal cap
// ---------------------------------------------------------------------------

func TestAppendEventEvictsPastCap(t *testing.T) {
	cfg := config.Defaults()
	cfg.MaxEventHistory = 50 // below the 100 floor
	mem := &MemPersister{}
	st, _ := Open(context.Background(), mem, cfg, testLogger())

	err := st.Update(context.Background(), func(s *models.State) error {
		for i := 0; i < 150; i++ {
			s.AppendEvent("test_event", "owner", nil)
		}
		if len(s.Events) != 100 {
			t.Errorf("journal len = %d, want the 100 floor", len(s.Events))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}
