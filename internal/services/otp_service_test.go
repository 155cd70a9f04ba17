package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquameter/aquameter/internal/config"
	"github.com/aquameter/aquameter/internal/models"
	pkglogger "github.com/aquameter/aquameter/pkg/logger"
)

func newOtpService(repo *MockOtpRepository, sender EmailSender) *OtpService {
	logger := slog.Default()
	return NewOtpService(repo, sender, logger, pkglogger.NewAuditLogger(logger), config.OtpConfig{
		CodeLength:  6,
		Expiry:      10 * time.Minute,
		MaxAttempts: 3,
	})
}

func TestOtpService_Issue_Success(t *testing.T) {
	var issued *models.OtpRecord
	repo := &MockOtpRepository{
		IssueFunc: func(ctx context.Context, rec *models.OtpRecord) (*models.OtpRecord, error) {
			issued = rec
			rec.ID = "otp123"
			return rec, nil
		},
	}

	sent := make(chan string, 1)
	sender := &MockEmailSender{
		SendOtpEmailFunc: func(ctx context.Context, email, code, purpose string, expiry time.Duration) error {
			sent <- code
			return nil
		},
	}

	svc := newOtpService(repo, sender)

	result, err := svc.Issue(context.Background(), "user@example.com", models.OtpPurposeRegistration)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.DeliveryWarning)

	require.NotNil(t, issued)
	assert.Len(t, issued.Code, 6)
	for _, c := range issued.Code {
		assert.True(t, c >= '0' && c <= '9', "code must be numeric")
	}
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), issued.ExpiresAt, 2*time.Second)

	select {
	case code := <-sent:
		assert.Equal(t, issued.Code, code)
	case <-time.After(2 * time.Second):
		t.Fatal("otp email was never dispatched")
	}
}

func TestOtpService_Issue_InvalidPurpose(t *testing.T) {
	svc := newOtpService(&MockOtpRepository{}, &MockEmailSender{})

	_, err := svc.Issue(context.Background(), "user@example.com", "mfa_enroll")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestOtpService_Issue_NoSenderSetsWarning(t *testing.T) {
	svc := newOtpService(&MockOtpRepository{}, nil)

	result, err := svc.Issue(context.Background(), "user@example.com", models.OtpPurposePasswordReset)
	require.NoError(t, err)
	assert.True(t, result.DeliveryWarning)
}

func TestOtpService_Verify_Success(t *testing.T) {
	rec := NewTestOtp("user@example.com", models.OtpPurposeRegistration, "482913")

	consumed := false
	repo := &MockOtpRepository{
		GetLatestUnconsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			return rec, nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, id string, observedAttempts int) (*models.OtpRecord, error) {
			assert.Equal(t, 0, observedAttempts)
			updated := *rec
			updated.AttemptCount = observedAttempts + 1
			return &updated, nil
		},
		ConsumeFunc: func(ctx context.Context, id string) error {
			assert.Equal(t, rec.ID, id)
			consumed = true
			return nil
		},
	}

	svc := newOtpService(repo, nil)

	err := svc.Verify(context.Background(), "user@example.com", models.OtpPurposeRegistration, "482913")
	assert.NoError(t, err)
	assert.True(t, consumed)
}

func TestOtpService_Verify_NoActiveRecord(t *testing.T) {
	svc := newOtpService(&MockOtpRepository{}, nil)

	err := svc.Verify(context.Background(), "user@example.com", models.OtpPurposeRegistration, "000000")
	assert.ErrorIs(t, err, models.ErrOtpNotFound)
}

func TestOtpService_Verify_Expired(t *testing.T) {
	rec := NewTestOtp("user@example.com", models.OtpPurposeRegistration, "482913")
	rec.ExpiresAt = time.Now().Add(-time.Minute)

	repo := &MockOtpRepository{
		GetLatestUnconsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			return rec, nil
		},
	}

	svc := newOtpService(repo, nil)

	// The record stays in place; every verify of a dead code reports why
	for i := 0; i < 2; i++ {
		err := svc.Verify(context.Background(), "user@example.com", models.OtpPurposeRegistration, "482913")
		assert.ErrorIs(t, err, models.ErrOtpExpired)
	}
}

func TestOtpService_Verify_AttemptsAlreadyExhausted(t *testing.T) {
	rec := NewTestOtp("user@example.com", models.OtpPurposeRegistration, "482913")
	rec.AttemptCount = 3

	repo := &MockOtpRepository{
		GetLatestUnconsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			return rec, nil
		},
	}

	svc := newOtpService(repo, nil)

	err := svc.Verify(context.Background(), "user@example.com", models.OtpPurposeRegistration, "482913")
	assert.ErrorIs(t, err, models.ErrOtpAttemptsExceeded)
}

func TestOtpService_Verify_Mismatch(t *testing.T) {
	rec := NewTestOtp("user@example.com", models.OtpPurposeRegistration, "482913")

	repo := &MockOtpRepository{
		GetLatestUnconsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			return rec, nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, id string, observedAttempts int) (*models.OtpRecord, error) {
			updated := *rec
			updated.AttemptCount = observedAttempts + 1
			return &updated, nil
		},
	}

	svc := newOtpService(repo, nil)

	err := svc.Verify(context.Background(), "user@example.com", models.OtpPurposeRegistration, "999999")
	assert.ErrorIs(t, err, models.ErrOtpMismatch)
}

func TestOtpService_Verify_CorrectCodeAfterThreeMismatches(t *testing.T) {
	// Stateful mock mirroring the store's conditional updates, so the
	// lockout is exercised as a sequence rather than a fabricated state
	rec := NewTestOtp("user@example.com", models.OtpPurposeRegistration, "482913")

	repo := &MockOtpRepository{
		GetLatestUnconsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			if rec.Consumed {
				return nil, models.ErrNotFound
			}
			snapshot := *rec
			return &snapshot, nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, id string, observedAttempts int) (*models.OtpRecord, error) {
			if rec.Consumed || rec.AttemptCount != observedAttempts {
				return nil, models.ErrConflict
			}
			rec.AttemptCount++
			snapshot := *rec
			return &snapshot, nil
		},
		ConsumeFunc: func(ctx context.Context, id string) error {
			if rec.Consumed {
				return models.ErrOtpNotFound
			}
			rec.Consumed = true
			return nil
		},
	}

	svc := newOtpService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := svc.Verify(ctx, "user@example.com", models.OtpPurposeRegistration, "999999")
		assert.ErrorIs(t, err, models.ErrOtpMismatch)
	}

	// The budget is spent; even the right code must not get through
	err := svc.Verify(ctx, "user@example.com", models.OtpPurposeRegistration, "482913")
	assert.ErrorIs(t, err, models.ErrOtpAttemptsExceeded)
	assert.False(t, rec.Consumed, "exhausted record stays in place until superseded")

	// And it keeps answering the same way
	err = svc.Verify(ctx, "user@example.com", models.OtpPurposeRegistration, "482913")
	assert.ErrorIs(t, err, models.ErrOtpAttemptsExceeded)
}

func TestOtpService_Verify_ConcurrentIncrementLosesRace(t *testing.T) {
	rec := NewTestOtp("user@example.com", models.OtpPurposeRegistration, "482913")

	repo := &MockOtpRepository{
		GetLatestUnconsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			return rec, nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, id string, observedAttempts int) (*models.OtpRecord, error) {
			return nil, models.ErrConflict
		},
	}

	svc := newOtpService(repo, nil)

	err := svc.Verify(context.Background(), "user@example.com", models.OtpPurposeRegistration, "482913")
	assert.ErrorIs(t, err, models.ErrOtpNotFound)
}

func TestOtpService_Verify_ConsumeLosesRace(t *testing.T) {
	rec := NewTestOtp("user@example.com", models.OtpPurposeRegistration, "482913")

	repo := &MockOtpRepository{
		GetLatestUnconsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			return rec, nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, id string, observedAttempts int) (*models.OtpRecord, error) {
			updated := *rec
			updated.AttemptCount = observedAttempts + 1
			return &updated, nil
		},
		ConsumeFunc: func(ctx context.Context, id string) error {
			return models.ErrOtpNotFound
		},
	}

	svc := newOtpService(repo, nil)

	err := svc.Verify(context.Background(), "user@example.com", models.OtpPurposeRegistration, "482913")
	assert.ErrorIs(t, err, models.ErrOtpNotFound)
}

func TestOtpService_RequireVerified_Success(t *testing.T) {
	rec := NewTestOtp("user@example.com", models.OtpPurposeRegistration, "482913")
	rec.Consumed = true

	repo := &MockOtpRepository{
		GetLatestConsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			return rec, nil
		},
	}

	svc := newOtpService(repo, nil)

	err := svc.RequireVerified(context.Background(), "user@example.com", models.OtpPurposeRegistration, "482913")
	assert.NoError(t, err)
}

func TestOtpService_RequireVerified_WrongCode(t *testing.T) {
	rec := NewTestOtp("user@example.com", models.OtpPurposeRegistration, "482913")
	rec.Consumed = true

	repo := &MockOtpRepository{
		GetLatestConsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			return rec, nil
		},
	}

	svc := newOtpService(repo, nil)

	err := svc.RequireVerified(context.Background(), "user@example.com", models.OtpPurposeRegistration, "111111")
	assert.ErrorIs(t, err, models.ErrOtpNotVerified)
}

func TestOtpService_RequireVerified_ExpiredWindow(t *testing.T) {
	rec := NewTestOtp("user@example.com", models.OtpPurposeRegistration, "482913")
	rec.Consumed = true
	rec.ExpiresAt = time.Now().Add(-time.Minute)

	repo := &MockOtpRepository{
		GetLatestConsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			return rec, nil
		},
	}

	svc := newOtpService(repo, nil)

	err := svc.RequireVerified(context.Background(), "user@example.com", models.OtpPurposeRegistration, "482913")
	assert.ErrorIs(t, err, models.ErrOtpNotVerified)
}

func TestOtpService_RequireVerified_NothingVerified(t *testing.T) {
	svc := newOtpService(&MockOtpRepository{}, nil)

	err := svc.RequireVerified(context.Background(), "user@example.com", models.OtpPurposeRegistration, "482913")
	assert.ErrorIs(t, err, models.ErrOtpNotVerified)
}

func TestOtpService_RequireVerified_AlreadyFinalized(t *testing.T) {
	rec := NewTestOtp("user@example.com", models.OtpPurposePasswordReset, "482913")
	rec.Consumed = true
	finalized := time.Now().Add(-time.Minute)
	rec.FinalizedAt = &finalized

	repo := &MockOtpRepository{
		GetLatestConsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			return rec, nil
		},
	}

	svc := newOtpService(repo, nil)

	err := svc.RequireVerified(context.Background(), "user@example.com", models.OtpPurposePasswordReset, "482913")
	assert.ErrorIs(t, err, models.ErrOtpNotVerified)
}

func TestOtpService_Finalize_SingleUse(t *testing.T) {
	rec := NewTestOtp("user@example.com", models.OtpPurposePasswordReset, "482913")
	rec.Consumed = true

	repo := &MockOtpRepository{
		GetLatestConsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			snapshot := *rec
			return &snapshot, nil
		},
		FinalizeFunc: func(ctx context.Context, id string) error {
			if rec.FinalizedAt != nil {
				return models.ErrConflict
			}
			now := time.Now()
			rec.FinalizedAt = &now
			return nil
		},
	}

	svc := newOtpService(repo, nil)
	ctx := context.Background()

	err := svc.Finalize(ctx, "user@example.com", models.OtpPurposePasswordReset, "482913")
	assert.NoError(t, err)

	err = svc.Finalize(ctx, "user@example.com", models.OtpPurposePasswordReset, "482913")
	assert.ErrorIs(t, err, models.ErrOtpNotVerified)
}

func TestOtpService_Finalize_WrongCode(t *testing.T) {
	rec := NewTestOtp("user@example.com", models.OtpPurposePasswordReset, "482913")
	rec.Consumed = true

	repo := &MockOtpRepository{
		GetLatestConsumedFunc: func(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
			return rec, nil
		},
		FinalizeFunc: func(ctx context.Context, id string) error {
			t.Fatal("record must not be finalized on a code mismatch")
			return nil
		},
	}

	svc := newOtpService(repo, nil)

	err := svc.Finalize(context.Background(), "user@example.com", models.OtpPurposePasswordReset, "111111")
	assert.ErrorIs(t, err, models.ErrOtpNotVerified)
}

func TestGenerateNumericCode_LengthAndCharset(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateNumericCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9')
		}
	}
}
