package comm

import (
	"time"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
)

// Room broadcasts.
const (
	EventConnected        = "connected"
	EventPlayerJoined     = "player_joined"
	EventGameStarted      = "game_started"
	EventNextQuestion     = "next_question"
	EventPositionsUpdated = "positions_updated"
	EventGameEnded        = "game_ended"
	EventPlayerReady      = "player_ready"
)

// Private replies.
const (
	EventAnswerReceived = "answer_received"
	EventJoinResponse   = "join_response"
	EventError          = "error"
)

// RoomState is the externally visible state of a room.
type RoomState struct {
	RoomCode             string            `json:"room_code"`
	Status               models.RoomStatus `json:"status"`
	PlayerCount          int               `json:"player_count"`
	MaxPlayers           int               `json:"max_players"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	TotalQuestions       int               `json:"total_questions"`
	Quiz                 models.Quiz       `json:"quiz"`
	StartedAt            *time.Time        `json:"started_at,omitempty"`
	EndedAt              *time.Time        `json:"ended_at,omitempty"`
	CanStart             bool              `json:"can_start"`
	Full                 bool              `json:"full"`
}

type Connected struct {
	Room RoomState `json:"room"`
}

type PlayerJoined struct {
	Player      models.PublicPlayer `json:"player"`
	PlayerCount int                 `json:"player_count"`
}

type GameStarted struct {
	StartedAt string `json:"started_at"`
}

type NextQuestion struct {
	Question       models.PublicQuestion `json:"question"`
	QuestionIndex  int                   `json:"question_index"`
	TotalQuestions int                   `json:"total_questions"`
}

type PositionsUpdated struct {
	Players []models.PublicPlayer `json:"players"`
}

type GameEnded struct {
	FinalStandings []models.PublicPlayer `json:"final_standings"`
}

type PlayerReady struct {
	PlayerID string `json:"player_id"`
}

type AnswerReceived struct {
	Correct     bool `json:"correct"`
	EarnedScore int  `json:"earned_score"`
	TotalScore  int  `json:"total_score"`
}

// JoinedPlayer is the joining player's own view, the only place the secret is ever sent.
type JoinedPlayer struct {
	models.PublicPlayer
	RoomCode string `json:"room_code"`
	Secret   string `json:"secret"`
}

type JoinResponse struct {
	Player JoinedPlayer `json:"player"`
	Room   RoomState    `json:"room"`
}

type ErrorMessage struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
