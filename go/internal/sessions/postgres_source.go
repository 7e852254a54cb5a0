package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/musicbingo/go/internal/models"
)

const getSessionQuery = `SELECT config FROM session_configs WHERE id = $1`

// PostgresSource looks sessions up in the session_configs table written by the
// preparation workflow. The config column holds the JSON form of models.SessionConfig.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource wraps an existing pool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Get loads and validates a session configuration.
func (p *PostgresSource) Get(ctx context.Context, id string) (*models.SessionConfig, error) {
	var raw []byte
	if err := p.pool.QueryRow(ctx, getSessionQuery, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to query session config: %w", err)
	}

	var cfg models.SessionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode session config %s: %w", id, err)
	}
	if cfg.ID == "" {
		cfg.ID = id
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
