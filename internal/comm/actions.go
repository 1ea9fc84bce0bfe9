package comm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	ActionJoin         = "join"
	ActionStart        = "start"
	ActionAdvance      = "advance_question"
	ActionNextQuestion = "next_question"
	ActionSubmitAnswer = "submit_answer"
	ActionPlayerReady  = "player_ready"
	ActionSubscribe    = "subscribe"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrInvalidAction = errors.New("invalid action")
)

// Action is one validated client request. The set of implementations is closed.
type Action interface {
	actionType() string
}

type JoinAction struct {
	RoomCode string `json:"-"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type StartAction struct {
	RoomCode string `json:"-"`
}

type AdvanceAction struct {
	RoomCode string `json:"-"`
}

type SubmitAnswerAction struct {
	RoomCode     string   `json:"-"`
	PlayerID     string   `json:"player_id"`
	PlayerSecret string   `json:"player_secret"`
	QuestionID   string   `json:"question_id"`
	Answer       string   `json:"answer"`
	TimeTaken    *float64 `json:"time_taken"`
}

type PlayerReadyAction struct {
	PlayerID string `json:"player_id"`
}

type SubscribeAction struct {
	RoomCode string `json:"-"`
}

func (JoinAction) actionType() string         { return ActionJoin }
func (StartAction) actionType() string        { return ActionStart }
func (AdvanceAction) actionType() string      { return ActionAdvance }
func (SubmitAnswerAction) actionType() string { return ActionSubmitAnswer }
func (PlayerReadyAction) actionType() string  { return ActionPlayerReady }
func (SubscribeAction) actionType() string    { return ActionSubscribe }

// ParseAction validates the envelope and decodes its data into the matching Action.
func ParseAction(msg WSMessage) (Action, error) {
	switch msg.Type {
	case ActionJoin:
		var a JoinAction
		if err := decodeData(msg, &a); err != nil {
			return nil, err
		}
		a.RoomCode = msg.RoomCode
		if err := requireRoomCode(a.RoomCode); err != nil {
			return nil, err
		}
		if strings.TrimSpace(a.Username) == "" {
			return nil, invalid("username is required")
		}
		return a, nil

	case ActionStart:
		if err := requireRoomCode(msg.RoomCode); err != nil {
			return nil, err
		}
		return StartAction{RoomCode: msg.RoomCode}, nil

	case ActionAdvance, ActionNextQuestion:
		if err := requireRoomCode(msg.RoomCode); err != nil {
			return nil, err
		}
		return AdvanceAction{RoomCode: msg.RoomCode}, nil

	case ActionSubmitAnswer:
		var a SubmitAnswerAction
		if err := decodeData(msg, &a); err != nil {
			return nil, err
		}
		a.RoomCode = msg.RoomCode
		if err := requireRoomCode(a.RoomCode); err != nil {
			return nil, err
		}
		switch {
		case a.PlayerID == "":
			return nil, invalid("player_id is required")
		case a.PlayerSecret == "":
			return nil, invalid("player_secret is required")
		case a.QuestionID == "":
			return nil, invalid("question_id is required")
		case a.Answer == "":
			return nil, invalid("answer is required")
		case a.TimeTaken != nil && *a.TimeTaken < 0:
			return nil, invalid("time_taken must not be negative")
		}
		return a, nil

	case ActionPlayerReady:
		var a PlayerReadyAction
		if err := decodeData(msg, &a); err != nil {
			return nil, err
		}
		if a.PlayerID == "" {
			return nil, invalid("player_id is required")
		}
		return a, nil

	case ActionSubscribe:
		if err := requireRoomCode(msg.RoomCode); err != nil {
			return nil, err
		}
		return SubscribeAction{RoomCode: msg.RoomCode}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Type)
}

func decodeData(msg WSMessage, v any) error {
	if len(msg.Data) == 0 {
		return invalid(msg.Type + " requires data")
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return invalid(fmt.Sprintf("malformed %s data: %s", msg.Type, err))
	}
	return nil
}

// ValidRoomCode reports whether code has the 6-digit room code shape.
func ValidRoomCode(code string) bool {
	if len(code) != 6 || code[0] == '0' {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func requireRoomCode(code string) error {
	if !ValidRoomCode(code) {
		return invalid(fmt.Sprintf("invalid room code %q", code))
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidAction, msg)
}
