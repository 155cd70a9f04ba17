package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aquameter/aquameter/internal/auth"
	"github.com/aquameter/aquameter/internal/models"
	"github.com/aquameter/aquameter/internal/services"
)

// NewTestRequest creates an HTTP request with a JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to the request context for testing
// authenticated endpoints
func WithAuthContext(req *http.Request, userID, email, role string) *http.Request {
	claims := &models.TokenClaims{
		Type:   "access",
		UserID: userID,
		Email:  email,
		Role:   role,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks status and decodes the JSON body into target
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	if target != nil {
		err := json.NewDecoder(w.Body).Decode(target)
		assert.NoError(t, err, "Failed to decode response body")
	}
}

// MockOtpService implements OtpServiceInterface for testing
type MockOtpService struct {
	IssueFunc  func(ctx context.Context, email, purpose string) (*services.IssueResult, error)
	VerifyFunc func(ctx context.Context, email, purpose, code string) error
}

func (m *MockOtpService) Issue(ctx context.Context, email, purpose string) (*services.IssueResult, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, email, purpose)
	}
	return &services.IssueResult{
		Record: &models.OtpRecord{
			ID:        "otp123",
			Email:     email,
			Purpose:   purpose,
			ExpiresAt: time.Now().Add(10 * time.Minute),
		},
	}, nil
}

func (m *MockOtpService) Verify(ctx context.Context, email, purpose, code string) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, email, purpose, code)
	}
	return nil
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc      func(ctx context.Context, email, password, name, otpCode string) (*services.AuthResult, error)
	LoginFunc         func(ctx context.Context, email, password string) (*services.AuthResult, error)
	ResetPasswordFunc func(ctx context.Context, email, newPassword, otpCode string) error
	RefreshTokenFunc  func(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	MeFunc            func(ctx context.Context, userID string) (*models.User, error)
}

func (m *MockAuthService) Register(ctx context.Context, email, password, name, otpCode string) (*services.AuthResult, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, email, password, name, otpCode)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*services.AuthResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockAuthService) ResetPassword(ctx context.Context, email, newPassword, otpCode string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, email, newPassword, otpCode)
	}
	return nil
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken)
	}
	return nil, models.ErrUnauthorized
}

func (m *MockAuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	if m.MeFunc != nil {
		return m.MeFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

// MockUsageService implements UsageServiceInterface for testing
type MockUsageService struct {
	SubmitFunc func(ctx context.Context, userID string, amount float64, location string, timestamp time.Time) (*services.SubmitResult, error)
	ListFunc   func(ctx context.Context, userID string, since time.Time, limit int) ([]*models.UsageReading, error)
	StatsFunc  func(ctx context.Context, userID string) (*models.UsageStats, error)
}

func (m *MockUsageService) Submit(ctx context.Context, userID string, amount float64, location string, timestamp time.Time) (*services.SubmitResult, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, userID, amount, location, timestamp)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUsageService) List(ctx context.Context, userID string, since time.Time, limit int) ([]*models.UsageReading, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID, since, limit)
	}
	return []*models.UsageReading{}, nil
}

func (m *MockUsageService) Stats(ctx context.Context, userID string) (*models.UsageStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, userID)
	}
	return &models.UsageStats{}, nil
}

// MockAlertService implements AlertServiceInterface for testing
type MockAlertService struct {
	ListFunc         func(ctx context.Context, userID, status string, limit int) ([]*models.Alert, error)
	GetFunc          func(ctx context.Context, claims *models.TokenClaims, alertID string) (*models.Alert, error)
	UpdateStatusFunc func(ctx context.Context, claims *models.TokenClaims, alertID, newStatus string) (*models.Alert, error)
}

func (m *MockAlertService) List(ctx context.Context, userID, status string, limit int) ([]*models.Alert, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID, status, limit)
	}
	return []*models.Alert{}, nil
}

func (m *MockAlertService) Get(ctx context.Context, claims *models.TokenClaims, alertID string) (*models.Alert, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, claims, alertID)
	}
	return nil, models.ErrNotFound
}

func (m *MockAlertService) UpdateStatus(ctx context.Context, claims *models.TokenClaims, alertID, newStatus string) (*models.Alert, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, claims, alertID, newStatus)
	}
	return nil, models.ErrNotFound
}
