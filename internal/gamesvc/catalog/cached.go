package catalog

import (
	"context"
	"sync"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
)

type questionKey struct {
	quizID  string
	ordinal int
}

// Cached memoizes successful lookups of another Catalog. Misses and errors are not cached.
type Cached struct {
	next Catalog

	mu        sync.RWMutex
	quizzes   map[string]models.Quiz
	questions map[questionKey]models.Question
}

func NewCached(next Catalog) *Cached {
	return &Cached{
		next:      next,
		quizzes:   make(map[string]models.Quiz),
		questions: make(map[questionKey]models.Question),
	}
}

func (c *Cached) GetQuiz(ctx context.Context, id string) (models.Quiz, error) {
	c.mu.RLock()
	q, ok := c.quizzes[id]
	c.mu.RUnlock()
	if ok {
		return q, nil
	}

	q, err := c.next.GetQuiz(ctx, id)
	if err != nil {
		return models.Quiz{}, err
	}
	c.mu.Lock()
	c.quizzes[id] = q
	c.mu.Unlock()
	return q, nil
}

func (c *Cached) GetQuestion(ctx context.Context, quizID string, ordinal int) (models.Question, error) {
	key := questionKey{quizID, ordinal}
	c.mu.RLock()
	q, ok := c.questions[key]
	c.mu.RUnlock()
	if ok {
		return q, nil
	}

	q, err := c.next.GetQuestion(ctx, quizID, ordinal)
	if err != nil {
		return models.Question{}, err
	}
	c.mu.Lock()
	c.questions[key] = q
	c.mu.Unlock()
	return q, nil
}

// Invalidate drops everything cached for a quiz.
func (c *Cached) Invalidate(quizID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.quizzes, quizID)
	for k := range c.questions {
		if k.quizID == quizID {
			delete(c.questions, k)
		}
	}
}
