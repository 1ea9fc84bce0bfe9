package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
	"github.com/stretchr/testify/assert"
)

func TestErrorMatching(t *testing.T) {
	err := withDetail(ErrRoomNotFound, "%s", "123456")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.NotErrorIs(t, err, ErrPlayerNotFound)
	assert.Equal(t, "room not found: 123456", err.Error())

	wrapped := fmt.Errorf("join: %w", err)
	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.Equal(t, "room_not_found", CodeOf(wrapped))

	plain := errors.New("disk on fire")
	assert.Equal(t, KindInternal, KindOf(plain))
	assert.Equal(t, "internal", CodeOf(plain))
	assert.Equal(t, "validation_failed", ValidationFailed.String())
}

func TestIsCorrect(t *testing.T) {
	tf := models.Question{Type: models.TrueFalse, CorrectAnswer: "true"}
	mc := models.Question{Type: models.MultipleChoice, CorrectAnswer: "Paris"}
	img := models.Question{Type: models.MultipleChoiceWithImages, CorrectAnswer: "cat.png"}
	odd := models.Question{Type: "open_text", CorrectAnswer: "x"}

	tests := []struct {
		name  string
		q     models.Question
		value string
		want  bool
	}{
		{"true false exact", tf, "true", true},
		{"true false case insensitive", tf, "True", true},
		{"true false wrong", tf, "false", false},
		{"multiple choice exact", mc, "Paris", true},
		{"multiple choice case sensitive", mc, "paris", false},
		{"images exact", img, "cat.png", true},
		{"unknown type", odd, "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCorrect(tt.q, tt.value))
		})
	}
}
