package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultAvatar     = "🏎️"
	MaxUsernameLength = 50
)

// Player is one participant of a room. Secret is only ever returned to the player who joined.
type Player struct {
	ID        string    `json:"id"`
	RoomCode  string    `json:"room_code"`
	Secret    string    `json:"-"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar"`
	Score     int       `json:"score"`
	Position  int       `json:"position"`
	JoinedAt  time.Time `json:"joined_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublicPlayer is what other participants see.
type PublicPlayer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Score    int    `json:"score"`
	Position int    `json:"position"`
}

// NewPlayer validates the display fields and issues a fresh identity and secret.
func NewPlayer(roomCode, username, avatar string, now time.Time) (*Player, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return nil, fmt.Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if strings.TrimSpace(avatar) == "" {
		avatar = DefaultAvatar
	}

	secret, err := newSecret()
	if err != nil {
		return nil, err
	}

	return &Player{
		ID:        uuid.New().String(),
		RoomCode:  roomCode,
		Secret:    secret,
		Username:  username,
		Avatar:    avatar,
		Score:     0,
		Position:  1,
		JoinedAt:  now,
		UpdatedAt: now,
	}, nil
}

func (p *Player) Public() PublicPlayer {
	return PublicPlayer{
		ID:       p.ID,
		Username: p.Username,
		Avatar:   p.Avatar,
		Score:    p.Score,
		Position: p.Position,
	}
}

func newSecret() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate player secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
