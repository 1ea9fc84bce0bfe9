package models

import (
	"fmt"
	"unicode/utf8"
)

type QuestionType string

const (
	TrueFalse                QuestionType = "true_false"
	MultipleChoice           QuestionType = "multiple_choice"
	MultipleChoiceWithImages QuestionType = "multiple_choice_images"
)

const (
	DefaultTimeLimit = 10
	DefaultPoints    = 100
	MinTimeLimit     = 3
	MaxTimeLimit     = 60
)

// Question is a catalog entry. CorrectAnswer never leaves the game service.
type Question struct {
	ID              string       `json:"id" bson:"_id"`
	QuizID          string       `json:"quiz_id" bson:"quiz_id"`
	Number          int          `json:"question_number" bson:"question_number"`
	Sentence        string       `json:"sentence" bson:"sentence"`
	Type            QuestionType `json:"question_type" bson:"question_type"`
	TimeLimit       int          `json:"time_limit" bson:"time_limit"`
	Points          int          `json:"points" bson:"points"`
	PossibleAnswers []string     `json:"possible_answers" bson:"possible_answers"`
	CorrectAnswer   string       `json:"-" bson:"correct_answer"`
}

// PublicQuestion is the projection broadcast to players.
type PublicQuestion struct {
	ID              string       `json:"id"`
	QuizID          string       `json:"quiz_id"`
	Number          int          `json:"question_number"`
	Sentence        string       `json:"sentence"`
	Type            QuestionType `json:"question_type"`
	TimeLimit       int          `json:"time_limit"`
	Points          int          `json:"points"`
	PossibleAnswers []string     `json:"possible_answers"`
}

// WithDefaults fills the catalog defaults for unset time limit and points.
func (q Question) WithDefaults() Question {
	if q.TimeLimit == 0 {
		q.TimeLimit = DefaultTimeLimit
	}
	if q.Points == 0 {
		q.Points = DefaultPoints
	}
	if q.PossibleAnswers == nil {
		q.PossibleAnswers = []string{}
	}
	return q
}

func (q Question) Validate() error {
	n := utf8.RuneCountInString(q.Sentence)
	switch {
	case q.ID == "":
		return fmt.Errorf("question id is required")
	case n < 3 || n > 200:
		return fmt.Errorf("question %s: sentence must be 3-200 characters", q.ID)
	case q.TimeLimit < MinTimeLimit || q.TimeLimit > MaxTimeLimit:
		return fmt.Errorf("question %s: time limit %d outside [%d, %d]", q.ID, q.TimeLimit, MinTimeLimit, MaxTimeLimit)
	case q.Points <= 0:
		return fmt.Errorf("question %s: points must be positive", q.ID)
	case q.Number <= 0:
		return fmt.Errorf("question %s: question number must be positive", q.ID)
	case q.Type == "":
		return fmt.Errorf("question %s: question type is required", q.ID)
	case len(q.PossibleAnswers) == 0:
		return fmt.Errorf("question %s: possible answers are required", q.ID)
	}
	return nil
}

func (q Question) Public() PublicQuestion {
	answers := make([]string, len(q.PossibleAnswers))
	copy(answers, q.PossibleAnswers)
	return PublicQuestion{
		ID:              q.ID,
		QuizID:          q.QuizID,
		Number:          q.Number,
		Sentence:        q.Sentence,
		Type:            q.Type,
		TimeLimit:       q.TimeLimit,
		Points:          q.Points,
		PossibleAnswers: answers,
	}
}
