package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aquameter/aquameter/internal/models"
	"github.com/aquameter/aquameter/internal/services"
)

func TestSendOtp_Success(t *testing.T) {
	handler := NewAuthHandler(&MockOtpService{}, &MockAuthService{})

	req := NewTestRequest(t, http.MethodPost, "/auth/send-otp", SendOtpRequest{
		Email:   "user@example.com",
		Purpose: models.OtpPurposeRegistration,
	})
	w := httptest.NewRecorder()

	handler.SendOtp(w, req)

	var resp map[string]any
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Contains(t, resp, "expires_at")
	assert.NotContains(t, resp, "code", "the code must never appear in the response")
}

func TestSendOtp_InvalidPurpose(t *testing.T) {
	handler := NewAuthHandler(&MockOtpService{}, &MockAuthService{})

	req := NewTestRequest(t, http.MethodPost, "/auth/send-otp", SendOtpRequest{
		Email:   "user@example.com",
		Purpose: "mfa",
	})
	w := httptest.NewRecorder()

	handler.SendOtp(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendOtp_InvalidEmail(t *testing.T) {
	handler := NewAuthHandler(&MockOtpService{}, &MockAuthService{})

	req := NewTestRequest(t, http.MethodPost, "/auth/send-otp", SendOtpRequest{
		Email:   "not-an-email",
		Purpose: models.OtpPurposeRegistration,
	})
	w := httptest.NewRecorder()

	handler.SendOtp(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyOtp_Success(t *testing.T) {
	handler := NewAuthHandler(&MockOtpService{}, &MockAuthService{})

	req := NewTestRequest(t, http.MethodPost, "/auth/verify-otp", VerifyOtpRequest{
		Email:   "user@example.com",
		Purpose: models.OtpPurposeRegistration,
		Code:    "482913",
	})
	w := httptest.NewRecorder()

	handler.VerifyOtp(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerifyOtp_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantCode   string
	}{
		{"not found", models.ErrOtpNotFound, "otp_not_found"},
		{"expired", models.ErrOtpExpired, "otp_expired"},
		{"attempts exceeded", models.ErrOtpAttemptsExceeded, "otp_attempts_exceeded"},
		{"mismatch", models.ErrOtpMismatch, "otp_mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			otpService := &MockOtpService{
				VerifyFunc: func(ctx context.Context, email, purpose, code string) error {
					return tt.serviceErr
				},
			}
			handler := NewAuthHandler(otpService, &MockAuthService{})

			req := NewTestRequest(t, http.MethodPost, "/auth/verify-otp", VerifyOtpRequest{
				Email:   "user@example.com",
				Purpose: models.OtpPurposeRegistration,
				Code:    "482913",
			})
			w := httptest.NewRecorder()

			handler.VerifyOtp(w, req)

			var resp map[string]string
			AssertJSONResponse(t, w, http.StatusBadRequest, &resp)
			assert.Equal(t, tt.wantCode, resp["error"])
		})
	}
}

func TestVerifyOtp_RejectsShortCode(t *testing.T) {
	handler := NewAuthHandler(&MockOtpService{}, &MockAuthService{})

	req := NewTestRequest(t, http.MethodPost, "/auth/verify-otp", VerifyOtpRequest{
		Email:   "user@example.com",
		Purpose: models.OtpPurposeRegistration,
		Code:    "123",
	})
	w := httptest.NewRecorder()

	handler.VerifyOtp(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_Success(t *testing.T) {
	authService := &MockAuthService{
		RegisterFunc: func(ctx context.Context, email, password, name, otpCode string) (*services.AuthResult, error) {
			return &services.AuthResult{
				User:   &models.User{ID: "user123", Email: email, Name: name},
				Tokens: &models.TokenPair{AccessToken: "access", RefreshToken: "refresh"},
			}, nil
		},
	}
	handler := NewAuthHandler(&MockOtpService{}, authService)

	req := NewTestRequest(t, http.MethodPost, "/auth/register", RegisterRequest{
		Email:    "user@example.com",
		Password: "SecurePass123",
		Name:     "Ada",
		Code:     "482913",
	})
	w := httptest.NewRecorder()

	handler.Register(w, req)

	var resp AuthResponse
	AssertJSONResponse(t, w, http.StatusCreated, &resp)
	assert.Equal(t, "user123", resp.User.ID)
	assert.Equal(t, "access", resp.Tokens.AccessToken)
}

func TestRegister_OtpNotVerified(t *testing.T) {
	authService := &MockAuthService{
		RegisterFunc: func(ctx context.Context, email, password, name, otpCode string) (*services.AuthResult, error) {
			return nil, models.ErrOtpNotVerified
		},
	}
	handler := NewAuthHandler(&MockOtpService{}, authService)

	req := NewTestRequest(t, http.MethodPost, "/auth/register", RegisterRequest{
		Email:    "user@example.com",
		Password: "SecurePass123",
		Name:     "Ada",
		Code:     "482913",
	})
	w := httptest.NewRecorder()

	handler.Register(w, req)

	var resp map[string]string
	AssertJSONResponse(t, w, http.StatusBadRequest, &resp)
	assert.Equal(t, "otp_not_verified", resp["error"])
}

func TestRegister_DuplicateEmail(t *testing.T) {
	authService := &MockAuthService{
		RegisterFunc: func(ctx context.Context, email, password, name, otpCode string) (*services.AuthResult, error) {
			return nil, models.ErrEmailAlreadyRegistered
		},
	}
	handler := NewAuthHandler(&MockOtpService{}, authService)

	req := NewTestRequest(t, http.MethodPost, "/auth/register", RegisterRequest{
		Email:    "user@example.com",
		Password: "SecurePass123",
		Name:     "Ada",
		Code:     "482913",
	})
	w := httptest.NewRecorder()

	handler.Register(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogin_Success(t *testing.T) {
	authService := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password string) (*services.AuthResult, error) {
			return &services.AuthResult{
				User:   &models.User{ID: "user123", Email: email},
				Tokens: &models.TokenPair{AccessToken: "access", RefreshToken: "refresh"},
			}, nil
		},
	}
	handler := NewAuthHandler(&MockOtpService{}, authService)

	req := NewTestRequest(t, http.MethodPost, "/auth/login", LoginRequest{
		Email:    "user@example.com",
		Password: "SecurePass123",
	})
	w := httptest.NewRecorder()

	handler.Login(w, req)

	var resp AuthResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	handler := NewAuthHandler(&MockOtpService{}, &MockAuthService{})

	req := NewTestRequest(t, http.MethodPost, "/auth/login", LoginRequest{
		Email:    "user@example.com",
		Password: "WrongPass123",
	})
	w := httptest.NewRecorder()

	handler.Login(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestResetPassword_Success(t *testing.T) {
	handler := NewAuthHandler(&MockOtpService{}, &MockAuthService{})

	req := NewTestRequest(t, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{
		Email:       "user@example.com",
		NewPassword: "NewSecure456",
		Code:        "482913",
	})
	w := httptest.NewRecorder()

	handler.ResetPassword(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMe_Success(t *testing.T) {
	authService := &MockAuthService{
		MeFunc: func(ctx context.Context, userID string) (*models.User, error) {
			return &models.User{ID: userID, Email: "user@example.com"}, nil
		},
	}
	handler := NewAuthHandler(&MockOtpService{}, authService)

	req := WithAuthContext(NewTestRequest(t, http.MethodGet, "/auth/me", nil), "user123", "user@example.com", "user")
	w := httptest.NewRecorder()

	handler.Me(w, req)

	var user models.User
	AssertJSONResponse(t, w, http.StatusOK, &user)
	assert.Equal(t, "user123", user.ID)
}

func TestMe_Unauthenticated(t *testing.T) {
	handler := NewAuthHandler(&MockOtpService{}, &MockAuthService{})

	req := NewTestRequest(t, http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()

	handler.Me(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
