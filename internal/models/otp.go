package models

import (
	"time"
)

// OTP purposes
const (
	OtpPurposeRegistration  = "registration"
	OtpPurposePasswordReset = "password_reset"
)

// OtpRecord represents a one-time code issued to an email for a bounded
// purpose. Records are never deleted; superseded codes are marked
// consumed and remain as an audit trail. FinalizedAt is stamped when a
// verified code has been spent on its follow-up action (registration or
// password reset) and can no longer gate another one.
type OtpRecord struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Purpose      string     `json:"purpose"`
	Code         string     `json:"-"` // Never expose the code
	AttemptCount int        `json:"attempt_count"`
	Consumed     bool       `json:"consumed"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
}

// IsExpired reports whether the code's validity window has passed.
func (o *OtpRecord) IsExpired() bool {
	return time.Now().After(o.ExpiresAt)
}

// IsActive reports whether the record can still accept verification attempts.
func (o *OtpRecord) IsActive() bool {
	return !o.Consumed && !o.IsExpired()
}

// ValidOtpPurpose reports whether purpose is one of the supported purposes.
func ValidOtpPurpose(purpose string) bool {
	return purpose == OtpPurposeRegistration || purpose == OtpPurposePasswordReset
}
