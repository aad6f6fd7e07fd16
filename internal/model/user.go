package model

import (
	"strings"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email     string `json:"email" gorm:"uniqueIndex;not null"`
	Password  string `json:"-" gorm:"not null"`
	Username  string `json:"username" gorm:"uniqueIndex;not null"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	Subscription *Subscription `json:"-" gorm:"foreignKey:UserID"`
}

// DisplayName is what notifications greet the user with.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Username
}
