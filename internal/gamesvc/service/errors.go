package service

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	NotFound
	Unauthorized
	InvalidState
	Conflict
	ValidationFailed
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	case InvalidState:
		return "invalid_state"
	case Conflict:
		return "conflict"
	case ValidationFailed:
		return "validation_failed"
	default:
		return "internal"
	}
}

// Error is a domain failure. Two errors with the same Code match under errors.Is, so a
// sentinel still matches after details are added with withDetail.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrRoomNotFound     = &Error{NotFound, "room_not_found", "room not found"}
	ErrQuizNotFound     = &Error{NotFound, "quiz_not_found", "quiz not found"}
	ErrInvalidCapacity  = &Error{ValidationFailed, "invalid_capacity", "max players must be between 1 and 1000"}
	ErrRoomEnded        = &Error{Conflict, "room_ended", "game has already ended"}
	ErrRoomFull         = &Error{Conflict, "room_full", "room is full"}
	ErrCannotStart      = &Error{InvalidState, "cannot_start", "game cannot be started"}
	ErrNotPlaying       = &Error{InvalidState, "not_playing", "game is not in progress"}
	ErrNoLiveQuestion   = &Error{InvalidState, "no_live_question", "no question is live"}
	ErrPlayerNotFound   = &Error{NotFound, "player_not_found", "player not found"}
	ErrQuestionNotFound = &Error{NotFound, "question_not_found", "question not found"}
	ErrStaleQuestion    = &Error{InvalidState, "stale_question", "question is not the live question"}
	ErrUnauthorized     = &Error{Unauthorized, "unauthorized", "invalid player credentials"}
	ErrDuplicateAnswer  = &Error{Conflict, "duplicate_answer", "answer already submitted"}
	ErrInvalidInput     = &Error{ValidationFailed, "invalid_input", "invalid input"}
)

func withDetail(e *Error, format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message + ": " + fmt.Sprintf(format, args...)}
}

// KindOf classifies err. Anything that is not a domain error is KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine readable code of err, "internal" for non-domain errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
