package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// OTP state errors
	ErrOtpNotFound         = errors.New("otp not found")
	ErrOtpExpired          = errors.New("otp expired")
	ErrOtpAttemptsExceeded = errors.New("otp verification attempts exceeded")
	ErrOtpMismatch         = errors.New("otp code mismatch")
	ErrOtpNotVerified      = errors.New("otp not verified")

	// Account state errors
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid email or password")

	// Alert lifecycle errors
	ErrInvalidTransition = errors.New("invalid alert status transition")
)
