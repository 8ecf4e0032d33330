package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mammothnet/mammoth-node/internal/models"
)

// PostgresPersister keeps the snapshot document as a single jsonb row. The
// node remains single-writer; Postgres only provides durability, not
// coordination.
type PostgresPersister struct {
	pool *pgxpool.Pool
}

const stateKey = "state"

// NewPostgresPersister connects and ensures the node_state table exists.
func NewPostgresPersister(ctx context.Context, databaseURL string) (*PostgresPersister, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS node_state (
			id         text PRIMARY KEY,
			doc        jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure node_state table: %w", err)
	}
	return &PostgresPersister{pool: pool}, nil
}

func (p *PostgresPersister) Load(ctx context.Context) (*models.State, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM node_state WHERE id = $1`, stateKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state row: %w", err)
	}
	state := &models.State{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("parse state row: %w", err)
	}
	state.Normalize()
	return state, nil
}

func (p *PostgresPersister) Save(ctx context.Context, s *models.State) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO node_state (id, doc, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		stateKey, raw)
	if err != nil {
		return fmt.Errorf("save state row: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PostgresPersister) Close() { p.pool.Close() }
