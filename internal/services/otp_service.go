package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/aquameter/aquameter/internal/config"
	"github.com/aquameter/aquameter/internal/models"
	pkglogger "github.com/aquameter/aquameter/pkg/logger"
)

// OtpRepository defines the interface for one-time code persistence
type OtpRepository interface {
	Issue(ctx context.Context, rec *models.OtpRecord) (*models.OtpRecord, error)
	GetLatestUnconsumed(ctx context.Context, email, purpose string) (*models.OtpRecord, error)
	GetLatestConsumed(ctx context.Context, email, purpose string) (*models.OtpRecord, error)
	IncrementAttempts(ctx context.Context, id string, observedAttempts int) (*models.OtpRecord, error)
	Consume(ctx context.Context, id string) error
	Finalize(ctx context.Context, id string) error
	CountIssuedSince(ctx context.Context, email string, since time.Time) (int, error)
}

// OtpService issues, verifies, and consumes one-time codes. A code is
// good for one successful verification within its validity window and
// attempt budget; issuing a new code supersedes any active one for the
// same (email, purpose).
type OtpService struct {
	repo        OtpRepository
	emailSender EmailSender
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	cfg         config.OtpConfig
}

func NewOtpService(repo OtpRepository, emailSender EmailSender, logger *slog.Logger, auditLogger *pkglogger.AuditLogger, cfg config.OtpConfig) *OtpService {
	return &OtpService{
		repo:        repo,
		emailSender: emailSender,
		logger:      logger,
		auditLogger: auditLogger,
		cfg:         cfg,
	}
}

// IssueResult reports the outcome of code issuance. DeliveryWarning is
// set when email dispatch could not be attempted; the code itself is
// always created.
type IssueResult struct {
	Record          *models.OtpRecord
	DeliveryWarning bool
}

// Issue creates a new code for (email, purpose), superseding any active
// one, and dispatches it by email without blocking the caller.
func (s *OtpService) Issue(ctx context.Context, email, purpose string) (*IssueResult, error) {
	if !models.ValidOtpPurpose(purpose) {
		return nil, models.ErrBadRequest
	}

	code, err := generateNumericCode(s.cfg.CodeLength)
	if err != nil {
		s.logger.Error("failed to generate otp code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	rec, err := s.repo.Issue(ctx, &models.OtpRecord{
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Expiry),
	})
	if err != nil {
		s.logger.Error("failed to persist otp", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogOtpEvent(pkglogger.AuditEvent{
		EventType: "otp_issued",
		Email:     email,
		Purpose:   purpose,
		Success:   true,
	})

	// Repeated requests for the same address are worth a look
	if count, err := s.repo.CountIssuedSince(ctx, email, now.Add(-1*time.Hour)); err == nil && count >= 5 {
		s.logger.Warn("high otp issuance rate",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Int("issued_last_hour", count))
	}

	result := &IssueResult{Record: rec}

	if s.emailSender == nil {
		result.DeliveryWarning = true
		return result, nil
	}

	// Dispatch must not delay the response; failure is logged, never
	// propagated as a request error.
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := s.emailSender.SendOtpEmail(sendCtx, email, code, purpose, s.cfg.Expiry); err != nil {
			s.logger.Error("otp email dispatch failed",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.String("purpose", purpose),
				slog.Any("error", err))
		}
	}()

	return result, nil
}

// Verify checks a submitted code against the active record for
// (email, purpose). An expired or exhausted record stays in place and
// keeps answering with the same error, so the caller always learns why
// the code is dead; issuing a new code is the only way to retire it. A
// matching code consumes the record so it can never verify again.
func (s *OtpService) Verify(ctx context.Context, email, purpose, code string) error {
	if !models.ValidOtpPurpose(purpose) {
		return models.ErrBadRequest
	}

	rec, err := s.repo.GetLatestUnconsumed(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit("otp_verify_failed", email, purpose, "not_found")
			return models.ErrOtpNotFound
		}
		s.logger.Error("failed to load otp", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if rec.IsExpired() {
		s.audit("otp_verify_failed", email, purpose, "expired")
		return models.ErrOtpExpired
	}

	if rec.AttemptCount >= s.cfg.MaxAttempts {
		s.audit("otp_verify_failed", email, purpose, "attempts_exceeded")
		return models.ErrOtpAttemptsExceeded
	}

	// Conditional increment serializes concurrent verifies; a lost race
	// means the record changed under us and this attempt never existed.
	updated, err := s.repo.IncrementAttempts(ctx, rec.ID, rec.AttemptCount)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.audit("otp_verify_failed", email, purpose, "concurrent_update")
			return models.ErrOtpNotFound
		}
		s.logger.Error("failed to record otp attempt", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if subtle.ConstantTimeCompare([]byte(updated.Code), []byte(code)) != 1 {
		s.audit("otp_verify_failed", email, purpose, "mismatch")
		return models.ErrOtpMismatch
	}

	// Exactly one concurrent correct verification can win consumption
	if err := s.repo.Consume(ctx, updated.ID); err != nil {
		if errors.Is(err, models.ErrOtpNotFound) {
			s.audit("otp_verify_failed", email, purpose, "already_consumed")
			return models.ErrOtpNotFound
		}
		s.logger.Error("failed to consume otp", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogOtpEvent(pkglogger.AuditEvent{
		EventType: "otp_verified",
		Email:     email,
		Purpose:   purpose,
		Success:   true,
	})

	return nil
}

// RequireVerified checks that the most recent consumed record for
// (email, purpose) carries the given code, is still within its validity
// window, and has not already been spent on a follow-up action; the gate
// between verifying a code and acting on it.
func (s *OtpService) RequireVerified(ctx context.Context, email, purpose, code string) error {
	_, err := s.verifiedRecord(ctx, email, purpose, code)
	return err
}

// Finalize retires the verified record for (email, purpose) so the code
// cannot gate a second follow-up action. The conditional update means at
// most one of any set of concurrent callers succeeds; the rest get
// ErrOtpNotVerified.
func (s *OtpService) Finalize(ctx context.Context, email, purpose, code string) error {
	rec, err := s.verifiedRecord(ctx, email, purpose, code)
	if err != nil {
		return err
	}

	if err := s.repo.Finalize(ctx, rec.ID); err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.audit("otp_finalize_failed", email, purpose, "already_used")
			return models.ErrOtpNotVerified
		}
		s.logger.Error("failed to finalize otp", slog.String("otp_id", rec.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	return nil
}

func (s *OtpService) verifiedRecord(ctx context.Context, email, purpose, code string) (*models.OtpRecord, error) {
	rec, err := s.repo.GetLatestConsumed(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrOtpNotVerified
		}
		s.logger.Error("failed to load consumed otp", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		return nil, models.ErrOtpNotVerified
	}

	if rec.IsExpired() || rec.FinalizedAt != nil {
		return nil, models.ErrOtpNotVerified
	}

	return rec, nil
}

func (s *OtpService) audit(eventType, email, purpose, reason string) {
	s.auditLogger.LogOtpEvent(pkglogger.AuditEvent{
		EventType:     eventType,
		Email:         email,
		Purpose:       purpose,
		Success:       false,
		FailureReason: reason,
	})
}

// generateNumericCode returns a uniformly random numeric code of the
// given length, leading zeros preserved.
func generateNumericCode(length int) (string, error) {
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to draw random digit: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}
