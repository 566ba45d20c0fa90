// Package database persists final game results to Postgres. Like the Redis
// history, persistence is fire-and-forget: a missing database disables the
// sink without affecting play.
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rikiyaaa/auction-server/internal/game"
)

// DB is the shared connection pool. Nil when Postgres is not configured.
var DB *pgxpool.Pool

// Connect opens the pool and ensures the schema exists.
func Connect(ctx context.Context, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("postgres ping: %w", err)
	}
	DB = pool
	return createTables(ctx)
}

func createTables(ctx context.Context) error {
	_, err := DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS game_results (
			id          BIGSERIAL PRIMARY KEY,
			game_id     UUID        NOT NULL,
			winner_name TEXT        NOT NULL DEFAULT '',
			results     JSONB       NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create game_results table: %w", err)
	}
	return nil
}

// StoreFinalResults writes one finished game's standings.
func StoreFinalResults(ctx context.Context, gameID uuid.UUID, results game.FinalResultsPayload) error {
	if DB == nil {
		return nil
	}
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal final results: %w", err)
	}
	winner := ""
	if results.Winner != nil {
		winner = results.Winner.Name
	}
	_, err = DB.Exec(ctx,
		`INSERT INTO game_results (game_id, winner_name, results) VALUES ($1, $2, $3)`,
		gameID, winner, data)
	if err != nil {
		return fmt.Errorf("insert game results: %w", err)
	}
	return nil
}
