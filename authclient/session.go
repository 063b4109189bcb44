package authclient

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the token bundle issued by the Auth Service. Its JSON form is what the session
// store persists under the storage key, shared by every cooperating app.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         User   `json:"user"`
}

// Subject returns the user id, empty for a nil session.
func (s *Session) Subject() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// Expiry reads the access token exp claim without verifying the signature, falling back to
// ExpiresAt. The zero time means unknown.
func (s *Session) Expiry() time.Time {
	if s == nil {
		return time.Time{}
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	return time.Time{}
}

// ExpiredAt reports whether the access token is expired at now, allowing leeway.
func (s *Session) ExpiredAt(now time.Time, leeway time.Duration) bool {
	exp := s.Expiry()
	if exp.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(exp)
}

func (s *Session) valid() bool {
	return s != nil && s.AccessToken != "" && s.User.ID != ""
}
