package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"askhub_backend/internal/model"
	"askhub_backend/pkg/database"
)

type QuestionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// FindByID returns nil when the question does not exist.
func (r *QuestionRepository) FindByID(ctx context.Context, id uint) (*model.Question, error) {
	var q model.Question
	if err := database.Conn(ctx, r.db).First(&q, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &q, nil
}

type AnswerRepository struct {
	db *gorm.DB
}

func NewAnswerRepository(db *gorm.DB) *AnswerRepository {
	return &AnswerRepository{db: db}
}

// FindByID returns nil when the answer does not exist.
func (r *AnswerRepository) FindByID(ctx context.Context, id uint) (*model.Answer, error) {
	var a model.Answer
	if err := database.Conn(ctx, r.db).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}
