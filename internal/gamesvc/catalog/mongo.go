package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	quizCollection     = "quizzes"
	questionCollection = "questions"
)

type MongoCatalog struct {
	quizzes   *mongo.Collection
	questions *mongo.Collection
}

func NewMongoCatalog(db *mongo.Database) *MongoCatalog {
	return &MongoCatalog{
		quizzes:   db.Collection(quizCollection),
		questions: db.Collection(questionCollection),
	}
}

func (c *MongoCatalog) GetQuiz(ctx context.Context, id string) (models.Quiz, error) {
	var quiz models.Quiz
	err := c.quizzes.FindOne(ctx, bson.M{"_id": id}).Decode(&quiz)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Quiz{}, ErrNotFound
		}
		return models.Quiz{}, fmt.Errorf("find quiz %s: %w", id, err)
	}
	return quiz, nil
}

func (c *MongoCatalog) GetQuestion(ctx context.Context, quizID string, ordinal int) (models.Question, error) {
	if ordinal < 0 {
		return models.Question{}, ErrNotFound
	}

	opts := options.FindOne().
		SetSort(bson.D{{Key: "question_number", Value: 1}}).
		SetSkip(int64(ordinal))

	var q models.Question
	err := c.questions.FindOne(ctx, bson.M{"quiz_id": quizID}, opts).Decode(&q)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Question{}, ErrNotFound
		}
		return models.Question{}, fmt.Errorf("find question %d of quiz %s: %w", ordinal, quizID, err)
	}
	return q, nil
}

// EnsureIndexes creates the lookup index used by GetQuestion.
func (c *MongoCatalog) EnsureIndexes(ctx context.Context) error {
	_, err := c.questions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "quiz_id", Value: 1}, {Key: "question_number", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create question index: %w", err)
	}
	return nil
}
