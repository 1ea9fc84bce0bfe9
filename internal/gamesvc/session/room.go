// Package session holds the authoritative in-memory state of active rooms.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
)

var (
	ErrBadTransition   = errors.New("room status can only move forward")
	ErrDuplicatePlayer = errors.New("player already in room")
	ErrAnswered        = errors.New("player already answered this question")
)

type answerKey struct {
	playerID string
	index    int
}

// Room is one active game session. Every exported method that touches state expects the
// caller to hold the room lock via Lock/Unlock; Snapshot takes it itself.
type Room struct {
	mu sync.Mutex

	room      models.Room
	quiz      models.Quiz
	questions []models.Question
	players   map[string]*models.Player
	joinOrder map[string]int
	answers   map[answerKey]models.Answer
	joined    int
	touched   time.Time
	closed    bool
}

func NewRoom(r *models.Room, quiz models.Quiz, questions []models.Question) *Room {
	return &Room{
		room:      *r,
		quiz:      quiz,
		questions: questions,
		players:   make(map[string]*models.Player),
		joinOrder: make(map[string]int),
		answers:   make(map[answerKey]models.Answer),
		touched:   r.CreatedAt,
	}
}

func (r *Room) Lock() { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

func (r *Room) Code() string { return r.room.Code }
func (r *Room) Status() models.RoomStatus { return r.room.Status }
func (r *Room) CurrentQuestionIndex() int { return r.room.CurrentQuestionIndex }
func (r *Room) MaxPlayers() int { return r.room.MaxPlayers }
func (r *Room) PlayerCount() int { return len(r.players) }
func (r *Room) Quiz() models.Quiz { return r.quiz }
func (r *Room) TotalQuestions() int { return len(r.questions) }
func (r *Room) Record() models.Room { return r.room }
func (r *Room) Full() bool { return len(r.players) >= r.room.MaxPlayers }

// Close marks the room as removed. Callers that fetched the room earlier see Closed once
// they hold the lock.
func (r *Room) Close()       { r.closed = true }
func (r *Room) Closed() bool { return r.closed }

func (r *Room) Player(id string) (*models.Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// CanStart reports whether the room is in the lobby with at least one player.
func (r *Room) CanStart() bool {
	return r.room.Status == models.RoomLobby && len(r.players) > 0
}

// Question returns the question at a 0-based index.
func (r *Room) Question(index int) (models.Question, bool) {
	if index < 0 || index >= len(r.questions) {
		return models.Question{}, false
	}
	return r.questions[index], true
}

// QuestionByID looks a question up within this room's quiz.
func (r *Room) QuestionByID(id string) (models.Question, int, bool) {
	for i, q := range r.questions {
		if q.ID == id {
			return q, i, true
		}
	}
	return models.Question{}, -1, false
}

func (r *Room) AddPlayer(p *models.Player) error {
	if _, ok := r.players[p.ID]; ok {
		return ErrDuplicatePlayer
	}
	r.players[p.ID] = p
	r.joinOrder[p.ID] = r.joined
	r.joined++
	r.touch(p.JoinedAt)
	return nil
}

func (r *Room) SetStatus(next models.RoomStatus, now time.Time) error {
	if !r.room.Status.CanMoveTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, r.room.Status, next)
	}
	r.room.Status = next
	switch next {
	case models.RoomPlaying:
		r.room.StartedAt = &now
	case models.RoomEnded:
		r.room.EndedAt = &now
	}
	r.touch(now)
	return nil
}

// Advance moves the question pointer forward and returns the new index.
func (r *Room) Advance(now time.Time) int {
	r.room.CurrentQuestionIndex++
	r.touch(now)
	return r.room.CurrentQuestionIndex
}

func (r *Room) HasAnswered(playerID string, index int) bool {
	_, ok := r.answers[answerKey{playerID, index}]
	return ok
}

func (r *Room) RecordAnswer(a models.Answer) error {
	key := answerKey{a.PlayerID, a.QuestionIndex}
	if _, ok := r.answers[key]; ok {
		return ErrAnswered
	}
	r.answers[key] = a
	r.touch(a.CreatedAt)
	return nil
}

// AddScore credits points and bumps the player's recency used for tie-breaks.
func (r *Room) AddScore(playerID string, points int, now time.Time) (int, error) {
	p, ok := r.players[playerID]
	if !ok {
		return 0, fmt.Errorf("player %s not in room %s", playerID, r.room.Code)
	}
	p.Score += points
	p.UpdatedAt = now
	r.touch(now)
	return p.Score, nil
}

// RankPlayers recomputes positions and returns the ordered standings.
func (r *Room) RankPlayers() []models.PublicPlayer {
	ordered := Standings(r.players, r.joinOrder)
	out := make([]models.PublicPlayer, len(ordered))
	for i, p := range ordered {
		p.Position = i + 1
		out[i] = p.Public()
	}
	return out
}

func (r *Room) touch(t time.Time) {
	if t.After(r.touched) {
		r.touched = t
	}
	r.room.UpdatedAt = r.touched
}

// Snapshot is a consistent copy of a room's state for readers outside the lock.
type Snapshot struct {
	Room           models.Room
	Quiz           models.Quiz
	TotalQuestions int
	PlayerCount    int
	CanStart       bool
	Full           bool
	LastActivity   time.Time
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.SnapshotLocked()
}

func (r *Room) SnapshotLocked() Snapshot {
	return Snapshot{
		Room:           r.room,
		Quiz:           r.quiz,
		TotalQuestions: len(r.questions),
		PlayerCount:    len(r.players),
		CanStart:       r.CanStart(),
		Full:           r.Full(),
		LastActivity:   r.touched,
	}
}
