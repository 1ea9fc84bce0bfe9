package store

import (
	"context"
	"fmt"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomStore struct {
	db *pgxpool.Pool
}

func NewRoomStore(db *pgxpool.Pool) *RoomStore {
	return &RoomStore{db: db}
}

func (s *RoomStore) InsertRoom(ctx context.Context, r models.Room) error {
	query := `
		INSERT INTO rooms (room_code, quiz_id, host_user_id, status, current_question_index,
			max_players, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.Exec(ctx, query,
		r.Code,
		r.QuizID,
		r.HostUserID,
		string(r.Status),
		r.CurrentQuestionIndex,
		r.MaxPlayers,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert room %s: %w", r.Code, mapPgError(err))
	}
	return nil
}

// UpdateRoom writes the mutable part of a room. Room codes are reused after reaping, so the
// latest row for the code is the one updated.
func (s *RoomStore) UpdateRoom(ctx context.Context, r models.Room) error {
	query := `
		UPDATE rooms
		SET status = $2, current_question_index = $3, started_at = $4, ended_at = $5, updated_at = $6
		WHERE id = (SELECT id FROM rooms WHERE room_code = $1 ORDER BY created_at DESC LIMIT 1)
	`

	tag, err := s.db.Exec(ctx, query,
		r.Code,
		string(r.Status),
		r.CurrentQuestionIndex,
		r.StartedAt,
		r.EndedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update room %s: %w", r.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update room %s: no row", r.Code)
	}
	return nil
}
