package models

import (
	"time"
)

type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Name              string     `json:"name"`
	TokenKey          string     `json:"-"` // Per-user secret for composite token signing; rotated on password reset
	Role              string     `json:"role"` // "user", "admin"
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	PasswordChangedAt *time.Time `json:"-"`
}

func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
