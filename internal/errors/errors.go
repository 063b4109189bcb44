package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy used across the hub. Provider errors unwrap to exactly one of these kinds.
var (
	// Session persistence
	ErrStorage        = errors.New("session storage failure")
	ErrSessionMissing = errors.New("session missing")

	// Auth Service
	ErrTransientNetwork      = errors.New("transient network error")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrRateLimited           = errors.New("rate limited")
	ErrEmailUnconfirmed      = errors.New("email not confirmed")
	ErrTokenInvalidOrExpired = errors.New("token invalid or expired")
	ErrProviderRejected      = errors.New("auth service rejected request")
	ErrAccountExists         = errors.New("account already exists")

	// Access decisions
	ErrMembershipDenied = errors.New("membership denied")
	ErrProfileLookup    = errors.New("profile lookup failure")

	// Credential workflows
	ErrStaffResetNotAllowed = errors.New("staff accounts cannot request a password reset")
	ErrWeakSecret           = errors.New("secret does not meet requirements")
	ErrWeakPIN              = fmt.Errorf("pin: %w", ErrWeakSecret)
	ErrSecretMismatch       = errors.New("secrets do not match")
	ErrCurrentSecretInvalid = errors.New("current secret is incorrect")
	ErrTermsNotAccepted     = errors.New("terms not accepted")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
)

// ProviderError is an error reported by the external Auth Service. Status is the HTTP status
// code, zero when the request never produced a response.
type ProviderError struct {
	Message string
	Status  int
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("auth service: %s", e.Message)
	}
	return fmt.Sprintf("auth service (%d): %s", e.Status, e.Message)
}

// Unwrap exposes the taxonomy kind so callers can use errors.Is(err, ErrInvalidCredentials).
func (e *ProviderError) Unwrap() error {
	return Classify(e.Message, e.Status)
}

// Classify maps a provider message and HTTP status onto a taxonomy kind. Matching is case
// insensitive and checked in this order:
//
//   - status 429, "rate limit" or "too many requests"          -> ErrRateLimited
//   - "invalid" and "credentials"                              -> ErrInvalidCredentials
//   - "email" and "confirmed"                                  -> ErrEmailUnconfirmed
//   - "expired", "refresh" with "invalid", "jwt" with "invalid" -> ErrTokenInvalidOrExpired
//   - "already" with "registered" or "exists"                  -> ErrAccountExists
//   - status 0 or >= 500                                       -> ErrTransientNetwork
//
// Anything else is ErrProviderRejected.
func Classify(message string, status int) error {
	msg := strings.ToLower(message)
	has := func(s string) bool { return strings.Contains(msg, s) }

	switch {
	case status == 429 || has("rate limit") || has("too many requests"):
		return ErrRateLimited
	case has("invalid") && has("credentials"):
		return ErrInvalidCredentials
	case has("email") && has("confirmed"):
		return ErrEmailUnconfirmed
	case has("expired") || (has("refresh") && has("invalid")) || (has("jwt") && has("invalid")):
		return ErrTokenInvalidOrExpired
	case has("already") && (has("registered") || has("exists")):
		return ErrAccountExists
	case status == 0 || status >= 500:
		return ErrTransientNetwork
	}
	return ErrProviderRejected
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrStorage, "storage"},
	{ErrSessionMissing, "session_missing"},
	{ErrTransientNetwork, "transient_network"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrRateLimited, "rate_limited"},
	{ErrEmailUnconfirmed, "email_unconfirmed"},
	{ErrTokenInvalidOrExpired, "token_invalid_or_expired"},
	{ErrAccountExists, "account_exists"},
	{ErrMembershipDenied, "membership_denied"},
	{ErrProfileLookup, "profile_lookup"},
	{ErrStaffResetNotAllowed, "staff_reset_not_allowed"},
	{ErrWeakPIN, "weak_pin"},
	{ErrWeakSecret, "weak_secret"},
	{ErrCurrentSecretInvalid, "current_secret_invalid"},
	{ErrSecretMismatch, "secret_mismatch"},
	{ErrTermsNotAccepted, "terms_not_accepted"},
	{ErrProviderRejected, "provider_rejected"},
}

// Kind returns a stable label for err, used for metrics and log fields.
func Kind(err error) string {
	if err == nil {
		return "none"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}
