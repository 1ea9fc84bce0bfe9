package models

import (
	"fmt"
	"unicode/utf8"
)

type Quiz struct {
	ID            string `json:"id" bson:"_id"`
	Name          string `json:"name" bson:"name"`
	QuestionCount int    `json:"questions_count" bson:"questions_count"`
}

func (q Quiz) Validate() error {
	n := utf8.RuneCountInString(q.Name)
	switch {
	case q.ID == "":
		return fmt.Errorf("quiz id is required")
	case n < 3 || n > 100:
		return fmt.Errorf("quiz %s: name must be 3-100 characters", q.ID)
	case q.QuestionCount < 0:
		return fmt.Errorf("quiz %s: negative question count", q.ID)
	}
	return nil
}
