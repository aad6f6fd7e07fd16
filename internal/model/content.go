package model

import "gorm.io/gorm"

// Question and Answer are managed by plain CRUD elsewhere; the core only
// needs to know they exist.
type Question struct {
	gorm.Model
	UserID uint   `json:"user_id" gorm:"index;not null"`
	Title  string `json:"title" gorm:"not null"`
	Body   string `json:"body" gorm:"type:text"`
}

type Answer struct {
	gorm.Model
	QuestionID uint   `json:"question_id" gorm:"index;not null"`
	UserID     uint   `json:"user_id" gorm:"index;not null"`
	Body       string `json:"body" gorm:"type:text"`
}
