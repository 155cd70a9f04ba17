package models

import (
	"github.com/golang-jwt/jwt/v5"
)

type TokenClaims struct {
	Type   string `json:"type"` // "access" or "refresh"
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the access/refresh pair issued on login, registration and
// token refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
