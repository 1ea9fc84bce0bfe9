package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var DB *pgxpool.Pool

// Connect initializes the audit connection pool and makes sure the schema exists.
func Connect(dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}

	DB = pool

	return pool, nil
}

// ClosePool is for graceful shutdown
func ClosePool() {
	if DB != nil {
		DB.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id BIGSERIAL PRIMARY KEY,
	room_code CHAR(6) NOT NULL,
	quiz_id TEXT NOT NULL,
	host_user_id BIGINT,
	status TEXT NOT NULL,
	current_question_index INT NOT NULL DEFAULT -1,
	max_players INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	ended_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS rooms_room_code_idx ON rooms (room_code, created_at DESC);

CREATE TABLE IF NOT EXISTS players (
	id UUID PRIMARY KEY,
	room_code CHAR(6) NOT NULL,
	username VARCHAR(50) NOT NULL,
	avatar TEXT NOT NULL,
	score INT NOT NULL DEFAULT 0,
	position INT NOT NULL DEFAULT 1,
	joined_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS answers (
	id BIGSERIAL PRIMARY KEY,
	room_code CHAR(6) NOT NULL,
	player_id UUID NOT NULL REFERENCES players (id) ON DELETE CASCADE,
	question_id TEXT NOT NULL,
	question_index INT NOT NULL,
	answer TEXT NOT NULL,
	time_taken DOUBLE PRECISION,
	correct BOOLEAN NOT NULL,
	points INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT unique_player_question UNIQUE (player_id, question_index)
);
`
