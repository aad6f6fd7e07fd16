package seed

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"askhub_backend/internal/model"
)

const demoPassword = "askhub-demo"

// Demo holds the rows created by SeedDemoData.
type Demo struct {
	User     model.User
	Question model.Question
	Answer   model.Answer
}

// SeedDemoData inserts a demo user with one question and one answer. It is
// safe to run on every start.
func SeedDemoData(db *gorm.DB, log zerolog.Logger) (*Demo, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	demo := &Demo{}
	err = db.Transaction(func(tx *gorm.DB) error {
		demo.User = model.User{
			Email:     "demo@askhub.dev",
			Username:  "demo",
			FirstName: "Demo",
			LastName:  "User",
			Password:  string(hash),
		}
		if err := tx.Where(model.User{Email: demo.User.Email}).FirstOrCreate(&demo.User).Error; err != nil {
			return fmt.Errorf("seed user: %w", err)
		}

		demo.Question = model.Question{
			UserID: demo.User.ID,
			Title:  "How do webhooks stay idempotent?",
			Body:   "Stripe may deliver the same event more than once.",
		}
		if err := tx.Where(model.Question{UserID: demo.User.ID, Title: demo.Question.Title}).FirstOrCreate(&demo.Question).Error; err != nil {
			return fmt.Errorf("seed question: %w", err)
		}

		demo.Answer = model.Answer{
			QuestionID: demo.Question.ID,
			UserID:     demo.User.ID,
			Body:       "Record each event id and skip the ones you have seen.",
		}
		if err := tx.Where(model.Answer{QuestionID: demo.Question.ID, UserID: demo.User.ID}).FirstOrCreate(&demo.Answer).Error; err != nil {
			return fmt.Errorf("seed answer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Uint("user_id", demo.User.ID).
		Uint("question_id", demo.Question.ID).
		Uint("answer_id", demo.Answer.ID).
		Msg("demo data seeded")
	return demo, nil
}
