package credentials

import (
	"context"
	"fmt"
	"unicode"

	"github.com/jrsteele09/sso-hub/authclient"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/rs/zerolog/log"
)

type SecretKind string

const (
	KindPassword SecretKind = "password"
	// KindPIN is the secret of simplified worker accounts.
	KindPIN SecretKind = "pin"
)

// ParseKind defaults to KindPassword.
func ParseKind(v string) SecretKind {
	if SecretKind(v) == KindPIN {
		return KindPIN
	}
	return KindPassword
}

// MinRecoveryLength applies to secrets set through a password recovery link.
const MinRecoveryLength = 6

// ValidatePassword checks a password meets the requirements:
// - At least 8 characters long
// - Contains an uppercase letter
// - Contains a number or a special character
func ValidatePassword(password string) error {
	if len([]rune(password)) < 8 {
		return fmt.Errorf("password must be at least 8 characters long: %w", errors.ErrWeakSecret)
	}

	var (
		hasUpper          bool
		hasDigitOrSpecial bool
	)
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsDigit(char), unicode.IsPunct(char), unicode.IsSymbol(char):
			hasDigitOrSpecial = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter: %w", errors.ErrWeakSecret)
	}
	if !hasDigitOrSpecial {
		return fmt.Errorf("password must contain at least one number or special character: %w", errors.ErrWeakSecret)
	}
	return nil
}

// ValidatePIN checks a PIN is exactly six digits and not a trivial sequence.
func ValidatePIN(pin string) error {
	if len(pin) != 6 {
		return fmt.Errorf("pin must be 6 digits: %w", errors.ErrWeakPIN)
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return fmt.Errorf("pin must be numeric: %w", errors.ErrWeakPIN)
		}
	}
	if isSimpleSequence(pin) {
		return fmt.Errorf("pin is too simple: %w", errors.ErrWeakPIN)
	}
	return nil
}

// isSimpleSequence rejects 111111, 123456, 654321, 112233 style pairs and 121212.
func isSimpleSequence(pin string) bool {
	same, asc, desc := true, true, true
	for i := 1; i < len(pin); i++ {
		d := int(pin[i]) - int(pin[i-1])
		same = same && d == 0
		asc = asc && d == 1
		desc = desc && d == -1
	}
	if same || asc || desc {
		return true
	}

	// 121212
	if pin[0:2] == pin[2:4] && pin[2:4] == pin[4:6] {
		return true
	}
	// 112233
	if pin[0] == pin[1] && pin[2] == pin[3] && pin[4] == pin[5] {
		return true
	}
	return false
}

func Validate(kind SecretKind, secret string) error {
	if kind == KindPIN {
		return ValidatePIN(secret)
	}
	return ValidatePassword(secret)
}

// ValidateRecovery checks a secret chosen on the recovery screen.
func ValidateRecovery(secret, repeat string) error {
	if secret != repeat {
		return errors.ErrSecretMismatch
	}
	if len([]rune(secret)) < MinRecoveryLength {
		return fmt.Errorf("secret must be at least %d characters long: %w", MinRecoveryLength, errors.ErrWeakSecret)
	}
	return nil
}

// Authenticator is the part of the auth client used to change a secret.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, identifier, secret string) (*authclient.Session, error)
	UpdateCredentials(ctx context.Context, newSecret string) error
}

var _ Authenticator = (*authclient.Client)(nil)

// ResetFlags clears the forced reset flag once a secret has been changed.
type ResetFlags interface {
	ClearMustReset(ctx context.Context, userID string) error
}

type ChangeRequest struct {
	SubjectID string
	Email     string
	Kind      SecretKind
	Current   string
	New       string
	Repeat    string
}

// Change validates the new secret, confirms the current one with a silent sign-in, updates
// it at the Auth Service and clears the subject's forced reset flag.
func Change(ctx context.Context, auth Authenticator, flags ResetFlags, req ChangeRequest) error {
	if req.Email == "" || req.SubjectID == "" {
		return errors.ErrSessionMissing
	}
	if err := Validate(req.Kind, req.New); err != nil {
		return err
	}
	if req.New != req.Repeat {
		return errors.ErrSecretMismatch
	}

	if _, err := auth.SignInWithPassword(ctx, req.Email, req.Current); err != nil {
		if errors.Is(err, errors.ErrInvalidCredentials) || errors.Is(err, errors.ErrInvalidRequest) {
			return errors.Wrapf(errors.ErrCurrentSecretInvalid, "[credentials Change] %v", err)
		}
		return fmt.Errorf("[credentials Change] verify current secret: %w", err)
	}

	if err := auth.UpdateCredentials(ctx, req.New); err != nil {
		return fmt.Errorf("[credentials Change] %w", err)
	}

	// The new secret is already live; a retry only has to clear the flag.
	if err := flags.ClearMustReset(ctx, req.SubjectID); err != nil && !errors.Is(err, errors.ErrNotFound) {
		log.Err(err).Str("subject", req.SubjectID).Msg("[credentials Change] failed to clear must reset flag")
		return errors.Wrapf(errors.ErrTransientNetwork, "[credentials Change] clear must reset: %v", err)
	}
	return nil
}
