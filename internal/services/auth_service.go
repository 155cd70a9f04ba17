package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aquameter/aquameter/internal/auth"
	"github.com/aquameter/aquameter/internal/models"
	pkgauth "github.com/aquameter/aquameter/pkg/auth"
	pkglogger "github.com/aquameter/aquameter/pkg/logger"
)

// UserRepository defines the interface for account persistence
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) (*models.User, error)
}

// OtpVerifier is the slice of OtpService that AuthService depends on
type OtpVerifier interface {
	RequireVerified(ctx context.Context, email, purpose, code string) error
	Finalize(ctx context.Context, email, purpose, code string) error
}

// AuthService handles registration, login, and password reset. Account
// creation and password reset both require a previously verified one-time
// code for the address.
type AuthService struct {
	userRepo     UserRepository
	otpVerifier  OtpVerifier
	tokenManager *auth.TokenManager
	emailSender  EmailSender
	logger       *slog.Logger
	auditLogger  *pkglogger.AuditLogger
}

func NewAuthService(userRepo UserRepository, otpVerifier OtpVerifier, tokenManager *auth.TokenManager, emailSender EmailSender, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		userRepo:     userRepo,
		otpVerifier:  otpVerifier,
		tokenManager: tokenManager,
		emailSender:  emailSender,
		logger:       logger,
		auditLogger:  auditLogger,
	}
}

// AuthResult bundles the authenticated user with a fresh token pair
type AuthResult struct {
	User   *models.User
	Tokens *models.TokenPair
}

// Register creates an account for an address that has verified a
// registration code. The code must match the most recent verified one
// and still be within its validity window.
func (s *AuthService) Register(ctx context.Context, email, password, name, otpCode string) (*AuthResult, error) {
	email = normalizeEmail(email)

	if err := s.otpVerifier.RequireVerified(ctx, email, models.OtpPurposeRegistration, otpCode); err != nil {
		s.auditLogger.LogAccountAction(pkglogger.AuditEvent{
			EventType:     "registration_failed",
			Email:         email,
			Success:       false,
			FailureReason: "otp_not_verified",
		})
		return nil, err
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.userRepo.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.auditLogger.LogAccountAction(pkglogger.AuditEvent{
				EventType:     "registration_failed",
				Email:         email,
				Success:       false,
				FailureReason: "email_taken",
			})
			return nil, models.ErrEmailAlreadyRegistered
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// The account exists now; retire the code so it cannot gate anything
	// else. A lost race here is harmless, the unique email already blocks
	// a second registration.
	if err := s.otpVerifier.Finalize(ctx, email, models.OtpPurposeRegistration, otpCode); err != nil && !errors.Is(err, models.ErrOtpNotVerified) {
		s.logger.Error("failed to retire registration otp", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	tokens, err := s.tokenManager.GenerateTokenPair(user)
	if err != nil {
		s.logger.Error("failed to generate tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(pkglogger.AuditEvent{
		EventType: "registration_succeeded",
		UserID:    user.ID,
		Email:     email,
		Success:   true,
	})

	if s.emailSender != nil {
		go func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.emailSender.SendWelcomeEmail(sendCtx, user.Email, user.Name); err != nil {
				s.logger.Warn("welcome email dispatch failed",
					slog.String("email", pkglogger.SanitizedEmail(user.Email)),
					slog.Any("error", err))
			}
		}()
	}

	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Login authenticates by email and password. A missing account and a
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				Email:         email,
				Success:       false,
				FailureReason: "unknown_email",
			})
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to load user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			Email:         email,
			Success:       false,
			FailureReason: "bad_password",
		})
		return nil, models.ErrInvalidCredentials
	}

	tokens, err := s.tokenManager.GenerateTokenPair(user)
	if err != nil {
		s.logger.Error("failed to generate tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_succeeded",
		UserID:    user.ID,
		Email:     email,
		Success:   true,
	})

	return &AuthResult{User: user, Tokens: tokens}, nil
}

// ResetPassword replaces the password for an address that has verified a
// password_reset code. The per-user token key rotates with the hash, so
// every session issued before the reset stops validating.
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword, otpCode string) error {
	email = normalizeEmail(email)

	if err := s.otpVerifier.RequireVerified(ctx, email, models.OtpPurposePasswordReset, otpCode); err != nil {
		s.auditLogger.LogAccountAction(pkglogger.AuditEvent{
			EventType:     "password_reset_failed",
			Email:         email,
			Success:       false,
			FailureReason: "otp_not_verified",
		})
		return err
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// A verified code for an unregistered address should not happen,
			// but do not leak account existence either way
			s.auditLogger.LogAccountAction(pkglogger.AuditEvent{
				EventType:     "password_reset_failed",
				Email:         email,
				Success:       false,
				FailureReason: "unknown_email",
			})
			return models.ErrOtpNotVerified
		}
		s.logger.Error("failed to load user", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	// Retiring the code before the write makes it single-use: a replay,
	// concurrent or later, loses the conditional update and stops here
	if err := s.otpVerifier.Finalize(ctx, email, models.OtpPurposePasswordReset, otpCode); err != nil {
		s.auditLogger.LogAccountAction(pkglogger.AuditEvent{
			EventType:     "password_reset_failed",
			UserID:        user.ID,
			Email:         email,
			Success:       false,
			FailureReason: "code_already_used",
		})
		return err
	}

	if _, err := s.userRepo.UpdatePassword(ctx, user.ID, hash); err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(pkglogger.AuditEvent{
		EventType: "password_reset_succeeded",
		UserID:    user.ID,
		Email:     email,
		Success:   true,
	})

	return nil
}

// RefreshToken exchanges a valid refresh token for a new pair. Tokens
// minted before the account's last password change are rejected.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.tokenManager.ValidateToken(refreshToken)
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != "refresh" {
		return nil, models.ErrUnauthorized
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to load user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.PasswordChangedAt != nil && claims.IssuedAt != nil &&
		claims.IssuedAt.Time.Before(*user.PasswordChangedAt) {
		return nil, models.ErrUnauthorized
	}

	tokens, err := s.tokenManager.GenerateTokenPair(user)
	if err != nil {
		s.logger.Error("failed to generate tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return tokens, nil
}

// Me returns the account behind a set of validated claims
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
