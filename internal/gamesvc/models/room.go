package models

import (
	"fmt"
	"time"
)

type RoomStatus string

const (
	RoomLobby   RoomStatus = "lobby"
	RoomPlaying RoomStatus = "playing"
	RoomEnded   RoomStatus = "ended"
)

const (
	DefaultMaxPlayers = 500
	MaxRoomCapacity   = 1000
	RoomCodeLength    = 6
)

func (s RoomStatus) rank() int {
	switch s {
	case RoomLobby:
		return 0
	case RoomPlaying:
		return 1
	case RoomEnded:
		return 2
	default:
		return -1
	}
}

// CanMoveTo reports whether s -> next is a forward transition.
func (s RoomStatus) CanMoveTo(next RoomStatus) bool {
	return s.rank() >= 0 && next.rank() == s.rank()+1
}

// Room is the persisted shape of a game session.
type Room struct {
	Code                 string     `json:"room_code"`
	QuizID               string     `json:"quiz_id"`
	HostUserID           *int64     `json:"host_user_id,omitempty"`
	Status               RoomStatus `json:"status"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	MaxPlayers           int        `json:"max_players"`
	CreatedAt            time.Time  `json:"created_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	EndedAt              *time.Time `json:"ended_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewRoom applies defaults and validates capacity. A zero maxPlayers means DefaultMaxPlayers.
func NewRoom(code, quizID string, maxPlayers int, hostUserID *int64, now time.Time) (*Room, error) {
	if maxPlayers == 0 {
		maxPlayers = DefaultMaxPlayers
	}
	if maxPlayers < 0 || maxPlayers > MaxRoomCapacity {
		return nil, fmt.Errorf("max players must be in (0, %d], got %d", MaxRoomCapacity, maxPlayers)
	}
	if len(code) != RoomCodeLength {
		return nil, fmt.Errorf("room code must be %d characters, got %q", RoomCodeLength, code)
	}
	return &Room{
		Code:                 code,
		QuizID:               quizID,
		HostUserID:           hostUserID,
		Status:               RoomLobby,
		CurrentQuestionIndex: -1,
		MaxPlayers:           maxPlayers,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}
