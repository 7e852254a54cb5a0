package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/musicbingo/go/internal/dbconfig"
	"github.com/mcdev12/musicbingo/go/internal/sessions"
)

const createTable = `
CREATE TABLE IF NOT EXISTS session_configs (
  id         TEXT PRIMARY KEY,
  config     JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func main() {
	path := "sessions.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load and validate the YAML catalogue
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read catalogue: %v\n", err)
		os.Exit(1)
	}
	catalogue, err := sessions.ParseCatalogue(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse catalogue: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "db config: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, createTable); err != nil {
		fmt.Fprintf(os.Stderr, "create table: %v\n", err)
		os.Exit(1)
	}

	// 3) Upsert and count
	var (
		total   = len(catalogue.Sessions)
		written int
		errs    int
	)

	for _, s := range catalogue.Sessions {
		raw, err := json.Marshal(s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error encoding session %s: %v\n", s.ID, err)
			errs++
			continue
		}
		_, err = pool.Exec(ctx, `
            INSERT INTO session_configs (id, config, updated_at)
            VALUES ($1, $2, now())
            ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, updated_at = now()
        `, s.ID, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error upserting session %s: %v\n", s.ID, err)
			errs++
			continue
		}
		written++
	}

	// 4) Print summary
	fmt.Printf("Sessions seed complete: %d total, %d written, %d errors\n", total, written, errs)
}
