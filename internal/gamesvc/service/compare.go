package service

import (
	"strings"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
)

// IsCorrect compares a submitted value with the question's correct answer. True/false
// answers ignore case, multiple choice answers must match exactly and unknown question
// types are never correct.
func IsCorrect(q models.Question, value string) bool {
	switch q.Type {
	case models.TrueFalse:
		return strings.EqualFold(value, q.CorrectAnswer)
	case models.MultipleChoice, models.MultipleChoiceWithImages:
		return value == q.CorrectAnswer
	default:
		return false
	}
}
