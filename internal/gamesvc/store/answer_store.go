package store

import (
	"context"
	"fmt"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AnswerStore struct {
	db *pgxpool.Pool
}

func NewAnswerStore(db *pgxpool.Pool) *AnswerStore {
	return &AnswerStore{db: db}
}

// InsertAnswer fails with ErrDuplicate when the player already answered that question
// (unique_player_question constraint).
func (s *AnswerStore) InsertAnswer(ctx context.Context, a models.Answer) error {
	query := `
		INSERT INTO answers (room_code, player_id, question_id, question_index, answer,
			time_taken, correct, points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.Exec(ctx, query,
		a.RoomCode,
		a.PlayerID,
		a.QuestionID,
		a.QuestionIndex,
		a.Value,
		a.Elapsed,
		a.Correct,
		a.Points,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert answer of player %s: %w", a.PlayerID, mapPgError(err))
	}
	return nil
}
