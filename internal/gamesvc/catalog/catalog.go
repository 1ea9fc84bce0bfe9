// Package catalog is the read-only source of quizzes and their questions.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
)

var (
	ErrNotFound        = errors.New("catalog entry not found")
	ErrInvalidQuestion = errors.New("invalid question")
)

// Catalog looks quizzes and questions up. Ordinal is the 0-based position of a question
// when the quiz's questions are sorted by question number.
type Catalog interface {
	GetQuiz(ctx context.Context, id string) (models.Quiz, error)
	GetQuestion(ctx context.Context, quizID string, ordinal int) (models.Question, error)
}

// MemoryCatalog serves a fixed set of quizzes. Used in tests and local runs without Mongo.
type MemoryCatalog struct {
	mu        sync.RWMutex
	quizzes   map[string]models.Quiz
	questions map[string][]models.Question
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		quizzes:   make(map[string]models.Quiz),
		questions: make(map[string][]models.Question),
	}
}

// Put stores a quiz with its questions, replacing any previous entry. QuestionCount is
// taken from the questions given.
func (c *MemoryCatalog) Put(quiz models.Quiz, questions ...models.Question) {
	qs := make([]models.Question, len(questions))
	copy(qs, questions)
	for i := range qs {
		qs[i].QuizID = quiz.ID
	}
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Number < qs[j].Number })
	quiz.QuestionCount = len(qs)

	c.mu.Lock()
	c.quizzes[quiz.ID] = quiz
	c.questions[quiz.ID] = qs
	c.mu.Unlock()
}

func (c *MemoryCatalog) GetQuiz(_ context.Context, id string) (models.Quiz, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quizzes[id]
	if !ok {
		return models.Quiz{}, ErrNotFound
	}
	return q, nil
}

func (c *MemoryCatalog) GetQuestion(_ context.Context, quizID string, ordinal int) (models.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	qs := c.questions[quizID]
	if ordinal < 0 || ordinal >= len(qs) {
		return models.Question{}, ErrNotFound
	}
	return qs[ordinal], nil
}

// LoadQuestions fetches every question of quiz in order, applying catalog defaults and
// validating each one. Invalid questions fail with ErrInvalidQuestion.
func LoadQuestions(ctx context.Context, c Catalog, quiz models.Quiz) ([]models.Question, error) {
	out := make([]models.Question, 0, quiz.QuestionCount)
	for i := 0; i < quiz.QuestionCount; i++ {
		q, err := c.GetQuestion(ctx, quiz.ID, i)
		if err != nil {
			return nil, err
		}
		q = q.WithDefaults()
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuestion, err)
		}
		out = append(out, q)
	}
	return out, nil
}
