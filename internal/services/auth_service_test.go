package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquameter/aquameter/internal/auth"
	"github.com/aquameter/aquameter/internal/models"
	pkgauth "github.com/aquameter/aquameter/pkg/auth"
	pkglogger "github.com/aquameter/aquameter/pkg/logger"
)

func newAuthService(userRepo UserRepository, verifier OtpVerifier, sender EmailSender) *AuthService {
	logger := slog.Default()
	tm := auth.NewTokenManager("test-secret-0123456789abcdef0123456789abcdef", 15*time.Minute, 24*time.Hour, nil)
	return NewAuthService(userRepo, verifier, tm, sender, logger, pkglogger.NewAuditLogger(logger))
}

func TestAuthService_Register_Success(t *testing.T) {
	userRepo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			user.ID = "user123"
			user.TokenKey = "test-token-key"
			user.Role = "user"
			user.CreatedAt = time.Now()
			user.UpdatedAt = time.Now()
			return user, nil
		},
	}

	welcomed := make(chan string, 1)
	sender := &MockEmailSender{
		SendWelcomeEmailFunc: func(ctx context.Context, email, name string) error {
			welcomed <- email
			return nil
		},
	}

	svc := newAuthService(userRepo, &MockOtpVerifier{}, sender)

	result, err := svc.Register(context.Background(), "User@Example.com", "SecurePass123", "Ada", "482913")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "user@example.com", result.User.Email, "email must be normalized")
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.NotEqual(t, "SecurePass123", result.User.PasswordHash)

	select {
	case email := <-welcomed:
		assert.Equal(t, "user@example.com", email)
	case <-time.After(2 * time.Second):
		t.Fatal("welcome email was never dispatched")
	}
}

func TestAuthService_Register_OtpNotVerified(t *testing.T) {
	verifier := &MockOtpVerifier{
		RequireVerifiedFunc: func(ctx context.Context, email, purpose, code string) error {
			assert.Equal(t, models.OtpPurposeRegistration, purpose)
			return models.ErrOtpNotVerified
		},
	}

	svc := newAuthService(&MockUserRepository{}, verifier, nil)

	_, err := svc.Register(context.Background(), "user@example.com", "SecurePass123", "Ada", "000000")
	assert.ErrorIs(t, err, models.ErrOtpNotVerified)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	userRepo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}

	svc := newAuthService(userRepo, &MockOtpVerifier{}, nil)

	_, err := svc.Register(context.Background(), "user@example.com", "SecurePass123", "Ada", "482913")
	assert.ErrorIs(t, err, models.ErrEmailAlreadyRegistered)
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	svc := newAuthService(&MockUserRepository{}, &MockOtpVerifier{}, nil)

	_, err := svc.Register(context.Background(), "user@example.com", "short", "Ada", "482913")
	assert.Error(t, err)
}

func TestAuthService_Login_Success(t *testing.T) {
	hash, err := pkgauth.HashPassword("SecurePass123")
	require.NoError(t, err)

	user := NewTestUser("user123", "user@example.com", "Ada")
	user.PasswordHash = hash

	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			assert.Equal(t, "user@example.com", email)
			return user, nil
		},
	}

	svc := newAuthService(userRepo, &MockOtpVerifier{}, nil)

	result, err := svc.Login(context.Background(), "  User@example.com ", "SecurePass123")
	require.NoError(t, err)
	assert.Equal(t, "user123", result.User.ID)
	assert.NotEmpty(t, result.Tokens.AccessToken)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	svc := newAuthService(&MockUserRepository{}, &MockOtpVerifier{}, nil)

	_, err := svc.Login(context.Background(), "nobody@example.com", "SecurePass123")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	hash, err := pkgauth.HashPassword("SecurePass123")
	require.NoError(t, err)

	user := NewTestUser("user123", "user@example.com", "Ada")
	user.PasswordHash = hash

	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}

	svc := newAuthService(userRepo, &MockOtpVerifier{}, nil)

	_, err = svc.Login(context.Background(), "user@example.com", "WrongPass123")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials,
		"wrong password and unknown email must be indistinguishable")
}

func TestAuthService_ResetPassword_Success(t *testing.T) {
	user := NewTestUser("user123", "user@example.com", "Ada")

	var updatedHash string
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string) (*models.User, error) {
			assert.Equal(t, "user123", id)
			updatedHash = passwordHash
			return user, nil
		},
	}

	verifier := &MockOtpVerifier{
		RequireVerifiedFunc: func(ctx context.Context, email, purpose, code string) error {
			assert.Equal(t, models.OtpPurposePasswordReset, purpose)
			return nil
		},
	}

	svc := newAuthService(userRepo, verifier, nil)

	err := svc.ResetPassword(context.Background(), "user@example.com", "NewSecure456", "482913")
	require.NoError(t, err)
	require.NotEmpty(t, updatedHash)
	assert.NoError(t, pkgauth.ComparePassword(updatedHash, "NewSecure456"))
}

func TestAuthService_ResetPassword_OtpNotVerified(t *testing.T) {
	verifier := &MockOtpVerifier{
		RequireVerifiedFunc: func(ctx context.Context, email, purpose, code string) error {
			return models.ErrOtpNotVerified
		},
	}

	svc := newAuthService(&MockUserRepository{}, verifier, nil)

	err := svc.ResetPassword(context.Background(), "user@example.com", "NewSecure456", "000000")
	assert.ErrorIs(t, err, models.ErrOtpNotVerified)
}

func TestAuthService_ResetPassword_CodeSingleUse(t *testing.T) {
	user := NewTestUser("user123", "user@example.com", "Ada")

	updates := 0
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string) (*models.User, error) {
			updates++
			return user, nil
		},
	}

	// Stateful verifier mirroring the store: once the code is spent, both
	// the gate and the conditional retire reject it
	spent := false
	verifier := &MockOtpVerifier{
		RequireVerifiedFunc: func(ctx context.Context, email, purpose, code string) error {
			if spent {
				return models.ErrOtpNotVerified
			}
			return nil
		},
		FinalizeFunc: func(ctx context.Context, email, purpose, code string) error {
			if spent {
				return models.ErrOtpNotVerified
			}
			spent = true
			return nil
		},
	}

	svc := newAuthService(userRepo, verifier, nil)
	ctx := context.Background()

	err := svc.ResetPassword(ctx, "user@example.com", "NewSecure456", "482913")
	require.NoError(t, err)

	err = svc.ResetPassword(ctx, "user@example.com", "NewSecure789", "482913")
	assert.ErrorIs(t, err, models.ErrOtpNotVerified)
	assert.Equal(t, 1, updates, "a verified code must reset the password at most once")
}

func TestAuthService_ResetPassword_UnknownEmailDoesNotLeak(t *testing.T) {
	svc := newAuthService(&MockUserRepository{}, &MockOtpVerifier{}, nil)

	err := svc.ResetPassword(context.Background(), "nobody@example.com", "NewSecure456", "482913")
	assert.ErrorIs(t, err, models.ErrOtpNotVerified)
}

func TestAuthService_RefreshToken_Success(t *testing.T) {
	user := NewTestUser("user123", "user@example.com", "Ada")

	userRepo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	}

	svc := newAuthService(userRepo, &MockOtpVerifier{}, nil)

	pair, err := svc.tokenManager.GenerateTokenPair(user)
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
}

func TestAuthService_RefreshToken_AccessTokenRejected(t *testing.T) {
	user := NewTestUser("user123", "user@example.com", "Ada")

	svc := newAuthService(&MockUserRepository{}, &MockOtpVerifier{}, nil)

	pair, err := svc.tokenManager.GenerateTokenPair(user)
	require.NoError(t, err)

	_, err = svc.RefreshToken(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAuthService_RefreshToken_RejectedAfterPasswordChange(t *testing.T) {
	user := NewTestUser("user123", "user@example.com", "Ada")

	svc := newAuthService(&MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			changed := time.Now().Add(time.Hour)
			stale := *user
			stale.PasswordChangedAt = &changed
			return &stale, nil
		},
	}, &MockOtpVerifier{}, nil)

	pair, err := svc.tokenManager.GenerateTokenPair(user)
	require.NoError(t, err)

	_, err = svc.RefreshToken(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAuthService_RefreshToken_Garbage(t *testing.T) {
	svc := newAuthService(&MockUserRepository{}, &MockOtpVerifier{}, nil)

	_, err := svc.RefreshToken(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAuthService_Me(t *testing.T) {
	user := NewTestUser("user123", "user@example.com", "Ada")

	svc := newAuthService(&MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	}, &MockOtpVerifier{}, nil)

	got, err := svc.Me(context.Background(), "user123")
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)
}
