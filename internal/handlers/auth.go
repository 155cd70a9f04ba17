package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aquameter/aquameter/internal/auth"
	"github.com/aquameter/aquameter/internal/models"
	"github.com/aquameter/aquameter/internal/services"
	pkghttp "github.com/aquameter/aquameter/pkg/http"
)

// OtpServiceInterface defines the interface for one-time code issuance
// and verification
type OtpServiceInterface interface {
	Issue(ctx context.Context, email, purpose string) (*services.IssueResult, error)
	Verify(ctx context.Context, email, purpose, code string) error
}

// AuthServiceInterface defines the interface for account business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password, name, otpCode string) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	ResetPassword(ctx context.Context, email, newPassword, otpCode string) error
	RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Me(ctx context.Context, userID string) (*models.User, error)
}

// AuthHandler handles authentication and one-time code HTTP requests
type AuthHandler struct {
	otpService  OtpServiceInterface
	authService AuthServiceInterface
}

func NewAuthHandler(otpService OtpServiceInterface, authService AuthServiceInterface) *AuthHandler {
	return &AuthHandler{
		otpService:  otpService,
		authService: authService,
	}
}

// Request DTOs

type SendOtpRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required,oneof=registration password_reset"`
}

type VerifyOtpRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required,oneof=registration password_reset"`
	Code    string `json:"code" validate:"required,len=6,numeric"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"new_password" validate:"required"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AuthResponse is the body returned on register and login
type AuthResponse struct {
	User   *models.User      `json:"user"`
	Tokens *models.TokenPair `json:"tokens"`
}

// SendOtp issues a one-time code to the given address. The response is
// identical whether or not the address is registered.
func (h *AuthHandler) SendOtp(w http.ResponseWriter, r *http.Request) {
	var req SendOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.otpService.Issue(r.Context(), req.Email, req.Purpose)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid purpose")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := map[string]any{
		"message":    "Verification code sent",
		"expires_at": result.Record.ExpiresAt,
	}
	if result.DeliveryWarning {
		resp["warning"] = "Email delivery is not configured"
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// VerifyOtp checks a submitted code. Failure reasons are distinguished so
// clients can prompt for a resend versus a retry.
func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req VerifyOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.otpService.Verify(r.Context(), req.Email, req.Purpose, req.Code); err != nil {
		switch {
		case errors.Is(err, models.ErrOtpNotFound):
			pkghttp.WriteError(w, http.StatusBadRequest, "otp_not_found", "No active verification code. Request a new one.")
		case errors.Is(err, models.ErrOtpExpired):
			pkghttp.WriteError(w, http.StatusBadRequest, "otp_expired", "Verification code has expired. Request a new one.")
		case errors.Is(err, models.ErrOtpAttemptsExceeded):
			pkghttp.WriteError(w, http.StatusBadRequest, "otp_attempts_exceeded", "Too many attempts. Request a new code.")
		case errors.Is(err, models.ErrOtpMismatch):
			pkghttp.WriteError(w, http.StatusBadRequest, "otp_mismatch", "Incorrect verification code")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid purpose")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Code verified"})
}

// Register creates an account for an address with a verified
// registration code.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.authService.Register(r.Context(), req.Email, req.Password, req.Name, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrOtpNotVerified):
			pkghttp.WriteError(w, http.StatusBadRequest, "otp_not_verified", "Email has not been verified. Complete verification first.")
		case errors.Is(err, models.ErrEmailAlreadyRegistered):
			pkghttp.WriteConflict(w, "Email is already registered")
		case errors.Is(err, models.ErrInternalServer):
			pkghttp.WriteInternalError(w, "Internal server error")
		default:
			// Password policy violations carry their own message
			pkghttp.WriteBadRequest(w, err.Error())
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, AuthResponse{User: result.User, Tokens: result.Tokens})
}

// Login authenticates by email and password
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			pkghttp.WriteUnauthorized(w, "Invalid email or password")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AuthResponse{User: result.User, Tokens: result.Tokens})
}

// ResetPassword replaces the password for an address with a verified
// password_reset code.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Email, req.NewPassword, req.Code); err != nil {
		switch {
		case errors.Is(err, models.ErrOtpNotVerified):
			pkghttp.WriteError(w, http.StatusBadRequest, "otp_not_verified", "Email has not been verified. Complete verification first.")
		case errors.Is(err, models.ErrInternalServer):
			pkghttp.WriteInternalError(w, "Internal server error")
		default:
			pkghttp.WriteBadRequest(w, err.Error())
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset"})
}

// RefreshToken exchanges a refresh token for a fresh pair
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	tokens, err := h.authService.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Invalid or expired refresh token")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, tokens)
}

// Me returns the authenticated account
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.authService.Me(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}
