package store

import (
	"context"
	"fmt"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlayerStore struct {
	db *pgxpool.Pool
}

func NewPlayerStore(db *pgxpool.Pool) *PlayerStore {
	return &PlayerStore{db: db}
}

// InsertPlayer never stores the player secret.
func (s *PlayerStore) InsertPlayer(ctx context.Context, p models.Player) error {
	query := `
		INSERT INTO players (id, room_code, username, avatar, score, position, joined_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.Exec(ctx, query,
		p.ID,
		p.RoomCode,
		p.Username,
		p.Avatar,
		p.Score,
		p.Position,
		p.JoinedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert player %s: %w", p.ID, mapPgError(err))
	}
	return nil
}

func (s *PlayerStore) UpdatePlayerScore(ctx context.Context, p models.Player) error {
	query := `
		UPDATE players
		SET score = $2, position = $3, updated_at = $4
		WHERE id = $1
	`

	tag, err := s.db.Exec(ctx, query, p.ID, p.Score, p.Position, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update player %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update player %s: no row", p.ID)
	}
	return nil
}
