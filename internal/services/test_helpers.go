package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aquameter/aquameter/internal/models"
	"github.com/aquameter/aquameter/internal/repositories"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc        func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc     func(ctx context.Context, email string) (*models.User, error)
	CreateFunc         func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordFunc func(ctx context.Context, id, passwordHash string) (*models.User, error)
	ListFunc           func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CountFunc          func(ctx context.Context) (int, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (*models.User, error) {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Count(ctx context.Context) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

// MockOtpRepository implements OtpRepository for testing
type MockOtpRepository struct {
	IssueFunc               func(ctx context.Context, rec *models.OtpRecord) (*models.OtpRecord, error)
	GetLatestUnconsumedFunc func(ctx context.Context, email, purpose string) (*models.OtpRecord, error)
	GetLatestConsumedFunc   func(ctx context.Context, email, purpose string) (*models.OtpRecord, error)
	IncrementAttemptsFunc   func(ctx context.Context, id string, observedAttempts int) (*models.OtpRecord, error)
	ConsumeFunc             func(ctx context.Context, id string) error
	FinalizeFunc            func(ctx context.Context, id string) error
	CountIssuedSinceFunc    func(ctx context.Context, email string, since time.Time) (int, error)
}

func (m *MockOtpRepository) Issue(ctx context.Context, rec *models.OtpRecord) (*models.OtpRecord, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, rec)
	}
	rec.ID = "otp123"
	return rec, nil
}

func (m *MockOtpRepository) GetLatestUnconsumed(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
	if m.GetLatestUnconsumedFunc != nil {
		return m.GetLatestUnconsumedFunc(ctx, email, purpose)
	}
	return nil, models.ErrNotFound
}

func (m *MockOtpRepository) GetLatestConsumed(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
	if m.GetLatestConsumedFunc != nil {
		return m.GetLatestConsumedFunc(ctx, email, purpose)
	}
	return nil, models.ErrNotFound
}

func (m *MockOtpRepository) IncrementAttempts(ctx context.Context, id string, observedAttempts int) (*models.OtpRecord, error) {
	if m.IncrementAttemptsFunc != nil {
		return m.IncrementAttemptsFunc(ctx, id, observedAttempts)
	}
	return nil, models.ErrInternalServer
}

func (m *MockOtpRepository) Consume(ctx context.Context, id string) error {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, id)
	}
	return nil
}

func (m *MockOtpRepository) Finalize(ctx context.Context, id string) error {
	if m.FinalizeFunc != nil {
		return m.FinalizeFunc(ctx, id)
	}
	return nil
}

func (m *MockOtpRepository) CountIssuedSince(ctx context.Context, email string, since time.Time) (int, error) {
	if m.CountIssuedSinceFunc != nil {
		return m.CountIssuedSinceFunc(ctx, email, since)
	}
	return 0, nil
}

// MockOtpVerifier implements OtpVerifier for testing
type MockOtpVerifier struct {
	RequireVerifiedFunc func(ctx context.Context, email, purpose, code string) error
	FinalizeFunc        func(ctx context.Context, email, purpose, code string) error
}

func (m *MockOtpVerifier) RequireVerified(ctx context.Context, email, purpose, code string) error {
	if m.RequireVerifiedFunc != nil {
		return m.RequireVerifiedFunc(ctx, email, purpose, code)
	}
	return nil
}

func (m *MockOtpVerifier) Finalize(ctx context.Context, email, purpose, code string) error {
	if m.FinalizeFunc != nil {
		return m.FinalizeFunc(ctx, email, purpose, code)
	}
	return nil
}

// MockUsageRepository implements UsageRepository for testing
type MockUsageRepository struct {
	InsertFunc        func(ctx context.Context, q repositories.Querier, reading *models.UsageReading) (*models.UsageReading, error)
	RecentAmountsFunc func(ctx context.Context, q repositories.Querier, userID string, limit int) ([]float64, error)
	ListFunc          func(ctx context.Context, userID string, since time.Time, limit int) ([]*models.UsageReading, error)
	ListAllFunc       func(ctx context.Context, limit int) ([]*models.UsageReading, error)
	StatsFunc         func(ctx context.Context, userID string, now time.Time) (*models.UsageStats, error)
}

func (m *MockUsageRepository) Insert(ctx context.Context, q repositories.Querier, reading *models.UsageReading) (*models.UsageReading, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, q, reading)
	}
	reading.ID = "reading123"
	return reading, nil
}

func (m *MockUsageRepository) RecentAmounts(ctx context.Context, q repositories.Querier, userID string, limit int) ([]float64, error) {
	if m.RecentAmountsFunc != nil {
		return m.RecentAmountsFunc(ctx, q, userID, limit)
	}
	return []float64{}, nil
}

func (m *MockUsageRepository) List(ctx context.Context, userID string, since time.Time, limit int) ([]*models.UsageReading, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID, since, limit)
	}
	return []*models.UsageReading{}, nil
}

func (m *MockUsageRepository) ListAll(ctx context.Context, limit int) ([]*models.UsageReading, error) {
	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx, limit)
	}
	return []*models.UsageReading{}, nil
}

func (m *MockUsageRepository) Stats(ctx context.Context, userID string, now time.Time) (*models.UsageStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, userID, now)
	}
	return &models.UsageStats{}, nil
}

// MockAlertRepository implements AlertRepository and UsageAlertWriter
// for testing
type MockAlertRepository struct {
	InsertFunc             func(ctx context.Context, q repositories.Querier, alert *models.Alert) (*models.Alert, error)
	HasUnresolvedSinceFunc func(ctx context.Context, q repositories.Querier, userID, alertType string, since time.Time) (bool, error)
	GetByIDFunc            func(ctx context.Context, id string) (*models.Alert, error)
	ListFunc               func(ctx context.Context, userID, status string, limit int) ([]*models.Alert, error)
	ListAllFunc            func(ctx context.Context, limit int) ([]*models.Alert, error)
	UpdateStatusFunc       func(ctx context.Context, id, fromStatus, toStatus string) (*models.Alert, error)
}

func (m *MockAlertRepository) Insert(ctx context.Context, q repositories.Querier, alert *models.Alert) (*models.Alert, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, q, alert)
	}
	alert.ID = "alert123"
	alert.Status = models.AlertStatusNew
	alert.CreatedAt = time.Now()
	return alert, nil
}

func (m *MockAlertRepository) HasUnresolvedSince(ctx context.Context, q repositories.Querier, userID, alertType string, since time.Time) (bool, error) {
	if m.HasUnresolvedSinceFunc != nil {
		return m.HasUnresolvedSinceFunc(ctx, q, userID, alertType, since)
	}
	return false, nil
}

func (m *MockAlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAlertRepository) List(ctx context.Context, userID, status string, limit int) ([]*models.Alert, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID, status, limit)
	}
	return []*models.Alert{}, nil
}

func (m *MockAlertRepository) ListAll(ctx context.Context, limit int) ([]*models.Alert, error) {
	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx, limit)
	}
	return []*models.Alert{}, nil
}

func (m *MockAlertRepository) UpdateStatus(ctx context.Context, id, fromStatus, toStatus string) (*models.Alert, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, fromStatus, toStatus)
	}
	return nil, models.ErrInternalServer
}

// MockTxRunner implements TxRunner for testing. The callback receives a
// nil transaction; mocks taking a Querier ignore it.
type MockTxRunner struct {
	WithUserLockFunc func(ctx context.Context, userID string, fn func(tx pgx.Tx) error) error
}

func (m *MockTxRunner) WithUserLock(ctx context.Context, userID string, fn func(tx pgx.Tx) error) error {
	if m.WithUserLockFunc != nil {
		return m.WithUserLockFunc(ctx, userID, fn)
	}
	return fn(nil)
}

// MockEmailSender implements EmailSender for testing
type MockEmailSender struct {
	SendOtpEmailFunc     func(ctx context.Context, email, code, purpose string, expiry time.Duration) error
	SendWelcomeEmailFunc func(ctx context.Context, email, name string) error
}

func (m *MockEmailSender) SendOtpEmail(ctx context.Context, email, code, purpose string, expiry time.Duration) error {
	if m.SendOtpEmailFunc != nil {
		return m.SendOtpEmailFunc(ctx, email, code, purpose, expiry)
	}
	return nil
}

func (m *MockEmailSender) SendWelcomeEmail(ctx context.Context, email, name string) error {
	if m.SendWelcomeEmailFunc != nil {
		return m.SendWelcomeEmailFunc(ctx, email, name)
	}
	return nil
}

// NewTestUser returns a user populated with sensible defaults for tests
func NewTestUser(id, email, name string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        id,
		Email:     email,
		Name:      name,
		TokenKey:  "test-token-key",
		Role:      "user",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestOtp returns an active, unconsumed code record for tests
func NewTestOtp(email, purpose, code string) *models.OtpRecord {
	now := time.Now()
	return &models.OtpRecord{
		ID:        "otp123",
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	}
}
