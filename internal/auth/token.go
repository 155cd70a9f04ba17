package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/aquameter/aquameter/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserTokenKeyFetcher defines interface for retrieving user's TokenKey
type UserTokenKeyFetcher interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// TokenManager handles JWT token generation and validation. Tokens are
// signed with a composite of the global secret and the per-user TokenKey,
// so rotating a user's key (e.g. after a password reset) invalidates all
// their outstanding tokens at once.
type TokenManager struct {
	secret             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	userRepo           UserTokenKeyFetcher
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration, userRepo UserTokenKeyFetcher) *TokenManager {
	return &TokenManager{
		secret:             secret,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
		userRepo:           userRepo,
	}
}

// getSigningKey returns the composite key (global secret + user TokenKey),
// falling back to the global secret when the user cannot be loaded.
func (tm *TokenManager) getSigningKey(userID string) []byte {
	if tm.userRepo == nil {
		return []byte(tm.secret)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	user, err := tm.userRepo.GetByID(ctx, userID)
	if err != nil {
		return []byte(tm.secret)
	}

	return []byte(tm.secret + user.TokenKey)
}

// GenerateTokenPair creates an access/refresh pair for the user.
func (tm *TokenManager) GenerateTokenPair(user *models.User) (*models.TokenPair, error) {
	accessToken, err := tm.generateToken(user, "access", tm.accessTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, err := tm.generateToken(user, "refresh", tm.refreshTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (tm *TokenManager) generateToken(user *models.User, tokenType string, expiry time.Duration) (string, error) {
	claims := &models.TokenClaims{
		Type:   tokenType,
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.getSigningKey(user.ID))
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		if tmpClaims, ok := token.Claims.(*models.TokenClaims); ok && tmpClaims.UserID != "" {
			return tm.getSigningKey(tmpClaims.UserID), nil
		}

		return []byte(tm.secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type == "" {
		return nil, fmt.Errorf("invalid token: missing type")
	}

	return claims, nil
}
