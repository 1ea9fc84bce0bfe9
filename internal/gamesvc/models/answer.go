package models

import "time"

// Answer is one player's response to one question. At most one exists per (player, question index).
type Answer struct {
	RoomCode      string    `json:"room_code"`
	PlayerID      string    `json:"player_id"`
	QuestionID    string    `json:"question_id"`
	QuestionIndex int       `json:"question_index"`
	Value         string    `json:"answer"`
	Elapsed       *float64  `json:"time_taken"`
	Correct       bool      `json:"correct"`
	Points        int       `json:"points"`
	CreatedAt     time.Time `json:"created_at"`
}
