package authfakes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/sso-hub/authclient"
	"github.com/jrsteele09/sso-hub/authservice"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"golang.org/x/oauth2"
)

var signingKey = []byte("fake-auth-service")

type fakeUser struct {
	id       string
	email    string
	password string
}

// FakeBackend is an in-memory Auth Service. Every call is recorded as "<op>[:<arg>]".
type FakeBackend struct {
	mu sync.Mutex

	users    map[string]*fakeUser // email -> user
	refresh  map[string]string    // refresh token -> email
	access   map[string]string    // access token -> email
	codes    map[string]string    // auth code -> email
	calls    []string
	verifier string

	// TokenTTL is the lifetime of minted access tokens. Defaults to one hour.
	TokenTTL time.Duration
	Now      func() time.Time
	// RefreshDelay holds refresh calls open, for exercising coalescing.
	RefreshDelay time.Duration

	// SignUpConfirms makes SignUp return the new user without tokens, as when email
	// confirmation is enabled.
	SignUpConfirms bool

	SignInErr  error
	SignUpErr  error
	RefreshErr error
	SignOutErr error
	UpdateErr  error
	RecoverErr error
	CreateErr  error
	DeleteErr  error
}

var _ authclient.Backend = (*FakeBackend)(nil)

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		users:    map[string]*fakeUser{},
		refresh:  map[string]string{},
		access:   map[string]string{},
		codes:    map[string]string{},
		TokenTTL: time.Hour,
		Now:      time.Now,
	}
}

// AddUser registers a user and returns its id.
func (f *FakeBackend) AddUser(id, email, password string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	f.users[email] = &fakeUser{id: id, email: email, password: password}
	return id
}

// AddAuthCode makes code exchangeable for a session of email.
func (f *FakeBackend) AddAuthCode(code, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[code] = email
}

// MintSession issues a session for an existing user, as if they had signed in elsewhere.
func (f *FakeBackend) MintSession(email string, ttl time.Duration) *authclient.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mint(f.users[email], ttl)
}

func (f *FakeBackend) Password(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[email]; ok {
		return u.password
	}
	return ""
}

func (f *FakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many recorded calls start with prefix.
func (f *FakeBackend) Count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *FakeBackend) LastVerifier() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifier
}

func (f *FakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *FakeBackend) mint(u *fakeUser, ttl time.Duration) *authclient.Session {
	if u == nil {
		return nil
	}
	if ttl == 0 {
		ttl = f.TokenTTL
	}
	exp := f.Now().Add(ttl)
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   u.id,
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}).SignedString(signingKey)

	rt := uuid.NewString()
	f.refresh[rt] = u.email
	f.access[token] = u.email
	return &authclient.Session{
		AccessToken:  token,
		RefreshToken: rt,
		TokenType:    "bearer",
		ExpiresIn:    int(ttl.Seconds()),
		ExpiresAt:    exp.Unix(),
		User:         authclient.User{ID: u.id, Email: u.email},
	}
}

func (f *FakeBackend) SignInWithPassword(_ context.Context, email, password string) (*authclient.Session, error) {
	f.record("sign_in:" + email)
	if f.SignInErr != nil {
		return nil, f.SignInErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok || u.password != password {
		return nil, &errors.ProviderError{Message: "Invalid login credentials", Status: 400}
	}
	return f.mint(u, 0), nil
}

func (f *FakeBackend) SignUp(_ context.Context, email, password, redirectTo string) (*authclient.Session, error) {
	f.record("sign_up:" + email)
	if f.SignUpErr != nil {
		return nil, f.SignUpErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[email]; ok {
		return nil, &errors.ProviderError{Message: "User already registered", Status: 422}
	}
	u := &fakeUser{id: uuid.NewString(), email: email, password: password}
	f.users[email] = u
	if f.SignUpConfirms {
		return &authclient.Session{User: authclient.User{ID: u.id, Email: u.email}}, nil
	}
	return f.mint(u, 0), nil
}

func (f *FakeBackend) RefreshSession(ctx context.Context, refreshToken string) (*authclient.Session, error) {
	f.record("refresh")
	if f.RefreshDelay > 0 {
		select {
		case <-time.After(f.RefreshDelay):
		case <-ctx.Done():
			return nil, &errors.ProviderError{Message: ctx.Err().Error()}
		}
	}
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.refresh[refreshToken]
	if !ok {
		return nil, &errors.ProviderError{Message: "Invalid Refresh Token: Refresh Token Not Found", Status: 400}
	}
	delete(f.refresh, refreshToken)
	return f.mint(f.users[email], 0), nil
}

func (f *FakeBackend) ExchangeCode(_ context.Context, authCode, codeVerifier string) (*authclient.Session, error) {
	f.record("exchange_code")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifier = codeVerifier
	email, ok := f.codes[authCode]
	if !ok || codeVerifier == "" {
		return nil, &errors.ProviderError{Message: "invalid flow state, no valid flow state found", Status: 404}
	}
	delete(f.codes, authCode)
	return f.mint(f.users[email], 0), nil
}

func (f *FakeBackend) AuthorizeURL(provider, redirectTo, codeVerifier string) (string, error) {
	f.record("authorize:" + provider)
	if provider == "" {
		return "", fmt.Errorf("provider is required")
	}
	return fmt.Sprintf("https://auth.example.com/authorize?provider=%s&redirect_to=%s&code_challenge=%s",
		provider, redirectTo, oauth2.S256ChallengeFromVerifier(codeVerifier)), nil
}

func (f *FakeBackend) SignOut(_ context.Context, accessToken string, scope authclient.SignOutScope) error {
	f.record("sign_out:" + string(scope))
	return f.SignOutErr
}

func (f *FakeBackend) UpdateUser(_ context.Context, accessToken, password string) (*authclient.User, error) {
	f.record("update_user")
	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.access[accessToken]
	if !ok {
		return nil, &errors.ProviderError{Message: "invalid JWT: unable to parse or verify signature", Status: 401}
	}
	u := f.users[email]
	u.password = password
	return &authclient.User{ID: u.id, Email: u.email}, nil
}

func (f *FakeBackend) RecoverPassword(_ context.Context, email, redirectTo, codeVerifier string) error {
	f.record("recover:" + email)
	f.mu.Lock()
	f.verifier = codeVerifier
	f.mu.Unlock()
	return f.RecoverErr
}

// HasUser reports whether an account exists for email.
func (f *FakeBackend) HasUser(email string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[email]
	return ok
}

func (f *FakeBackend) CreateUser(_ context.Context, params authservice.CreateUserParams) (*authclient.User, error) {
	f.record("create_user:" + params.Email)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[params.Email]; ok {
		return nil, &errors.ProviderError{Message: "A user with this email address has already been registered", Status: 422}
	}
	u := &fakeUser{id: uuid.NewString(), email: params.Email, password: params.Password}
	f.users[params.Email] = u
	return &authclient.User{ID: u.id, Email: u.email}, nil
}

func (f *FakeBackend) DeleteUser(_ context.Context, userID string) error {
	f.record("delete_user:" + userID)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, u := range f.users {
		if u.id == userID {
			delete(f.users, email)
			return nil
		}
	}
	return &errors.ProviderError{Message: "User not found", Status: 404}
}
