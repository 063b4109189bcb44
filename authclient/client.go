package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/internal/metrics"
	"github.com/jrsteele09/sso-hub/sessionstore"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// refreshLeeway refreshes tokens that are about to expire.
const refreshLeeway = 30 * time.Second

const DefaultStorageKey = "domio-auth-token"

type SignOutScope string

const (
	// ScopeLocal wipes local state only.
	ScopeLocal SignOutScope = "local"
	// ScopeGlobal also revokes every session of the user at the Auth Service.
	ScopeGlobal SignOutScope = "global"
)

// Backend is the external Auth Service.
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password, redirectTo string) (*Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*Session, error)
	AuthorizeURL(provider, redirectTo, codeVerifier string) (string, error)
	SignOut(ctx context.Context, accessToken string, scope SignOutScope) error
	UpdateUser(ctx context.Context, accessToken, password string) (*User, error)
	RecoverPassword(ctx context.Context, email, redirectTo, codeVerifier string) error
}

type Options struct {
	// StorageKey must be identical in every app sharing the session.
	StorageKey   string
	ParentDomain string
	// Verifier is optional; without it tokens are trusted as stored.
	Verifier TokenVerifier
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Factory creates per-request clients that share process-wide state such as in-flight refreshes.
type Factory struct {
	backend   Backend
	opts      Options
	refreshes singleflight.Group
}

func NewFactory(backend Backend, opts Options) *Factory {
	if opts.StorageKey == "" {
		opts.StorageKey = DefaultStorageKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Factory{backend: backend, opts: opts}
}

// Client binds the Auth Service to one session store.
func (f *Factory) Client(store sessionstore.Store) *Client {
	return &Client{
		backend:   f.backend,
		store:     store,
		opts:      f.opts,
		refreshes: &f.refreshes,
	}
}

// Client is the Auth Service client for one mount. It holds no state beyond a cache of the
// session read from its store.
type Client struct {
	backend   Backend
	store     sessionstore.Store
	opts      Options
	refreshes *singleflight.Group

	mu             sync.Mutex
	cached         *Session
	initialEmitted bool
	events         broadcaster
}

// NormalizeIdentifier rewrites a staff login without "@" to <login>@staff.<parentDomain>.
func NormalizeIdentifier(identifier, parentDomain string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || strings.Contains(identifier, "@") {
		return identifier
	}
	return identifier + "@staff." + strings.Trim(parentDomain, ".")
}

func (c *Client) verifierKey() string {
	return c.opts.StorageKey + "-code-verifier"
}

// Subscribe opens a new event stream. Events emitted before the call are not replayed.
func (c *Client) Subscribe() *Subscription {
	return c.events.subscribe()
}

// GetSession returns the current session or nil. An expired access token is refreshed once.
// The first call emits InitialSession.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	s, err := c.currentSession(ctx)
	c.emitInitial(s)
	return s, err
}

func (c *Client) currentSession(ctx context.Context) (*Session, error) {
	s := c.cachedSession()
	if s == nil {
		return nil, nil
	}

	if s.ExpiredAt(c.opts.Now(), refreshLeeway) {
		refreshed, err := c.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		s = refreshed
	}

	if c.opts.Verifier != nil {
		if err := c.opts.Verifier.Verify(ctx, s.AccessToken); err != nil {
			return nil, fmt.Errorf("[authclient GetSession] %w", err)
		}
	}
	return s, nil
}

// Refresh exchanges the stored refresh token for a new session. Concurrent refreshes of the
// same token in this process share one Auth Service call.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	s := c.cachedSession()
	if s == nil || s.RefreshToken == "" {
		return nil, errors.ErrSessionMissing
	}

	v, err, _ := c.refreshes.Do(s.RefreshToken, func() (interface{}, error) {
		return c.backend.RefreshSession(ctx, s.RefreshToken)
	})
	c.opts.Metrics.AuthCall("refresh", err)
	if err != nil {
		return nil, fmt.Errorf("[authclient Refresh] refresh session: %w", err)
	}

	refreshed := v.(*Session)
	c.persist(refreshed)
	c.events.emit(Event{Kind: TokenRefreshed, Session: refreshed})
	return refreshed, nil
}

// SignInWithPassword signs in with an email or a staff login.
func (c *Client) SignInWithPassword(ctx context.Context, identifier, secret string) (*Session, error) {
	email := NormalizeIdentifier(identifier, c.opts.ParentDomain)
	if email == "" || secret == "" {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "identifier and secret are required")
	}

	s, err := c.backend.SignInWithPassword(ctx, email, secret)
	c.opts.Metrics.AuthCall("sign_in", err)
	if err != nil {
		return nil, fmt.Errorf("[authclient SignInWithPassword] %w", err)
	}

	c.persist(s)
	c.events.emit(Event{Kind: SignedIn, Session: s})
	return s, nil
}

// SignUp registers an email account. A session with tokens is stored and signs the user in;
// without tokens the Auth Service has sent a confirmation link to redirectTo first.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") || password == "" {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "email and password are required")
	}

	s, err := c.backend.SignUp(ctx, email, password, redirectTo)
	c.opts.Metrics.AuthCall("sign_up", err)
	if err != nil {
		return nil, fmt.Errorf("[authclient SignUp] %w", err)
	}

	if s.valid() {
		c.persist(s)
		c.events.emit(Event{Kind: SignedIn, Session: s})
	}
	return s, nil
}

// SignInWithOAuth starts a federated PKCE flow and returns the URL to send the user to.
func (c *Client) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	verifier := oauth2.GenerateVerifier()
	c.store.Set(c.verifierKey(), verifier)

	authURL, err := c.backend.AuthorizeURL(provider, redirectTo, verifier)
	if err != nil {
		c.store.Remove(c.verifierKey())
		return "", fmt.Errorf("[authclient SignInWithOAuth] %w", err)
	}
	return authURL, nil
}

// ExchangeCode completes a federated flow with the verifier stored by SignInWithOAuth.
func (c *Client) ExchangeCode(ctx context.Context, authCode string) (*Session, error) {
	verifier, ok := c.store.Get(c.verifierKey())
	if !ok || authCode == "" {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "missing code or code verifier")
	}

	s, err := c.backend.ExchangeCode(ctx, authCode, verifier)
	c.opts.Metrics.AuthCall("exchange_code", err)
	c.store.Remove(c.verifierKey())
	if err != nil {
		return nil, fmt.Errorf("[authclient ExchangeCode] %w", err)
	}

	c.persist(s)
	c.events.emit(Event{Kind: SignedIn, Session: s})
	return s, nil
}

// SignOut wipes the local session. With ScopeGlobal the session is revoked at the Auth
// Service first; a revocation failure is returned but never prevents the local wipe.
func (c *Client) SignOut(ctx context.Context, scope SignOutScope) error {
	s := c.cachedSession()

	var remoteErr error
	if scope != ScopeLocal && s != nil {
		remoteErr = c.backend.SignOut(ctx, s.AccessToken, scope)
		c.opts.Metrics.AuthCall("sign_out", remoteErr)
		if remoteErr != nil {
			log.Warn().Err(remoteErr).Str("subject", s.Subject()).Msg("remote sign out failed, wiping local session")
		}
	}

	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
	c.store.Remove(c.opts.StorageKey)
	c.store.Remove(c.verifierKey())

	c.events.emit(Event{Kind: SignedOut})
	if remoteErr != nil {
		return fmt.Errorf("[authclient SignOut] %w", remoteErr)
	}
	return nil
}

// UpdateCredentials sets a new secret for the signed-in user.
func (c *Client) UpdateCredentials(ctx context.Context, newSecret string) error {
	s, err := c.currentSession(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		return errors.ErrSessionMissing
	}
	_, err = c.backend.UpdateUser(ctx, s.AccessToken, newSecret)
	c.opts.Metrics.AuthCall("update_user", err)
	if err != nil {
		return fmt.Errorf("[authclient UpdateCredentials] %w", err)
	}
	return nil
}

// RequestPasswordReset sends a reset link. Staff logins cannot reset themselves. The link
// carries a PKCE code that ExchangeCode turns into a recovery session.
func (c *Client) RequestPasswordReset(ctx context.Context, identifier, redirectTo string) error {
	identifier = strings.TrimSpace(identifier)
	if !strings.Contains(identifier, "@") {
		return errors.ErrStaffResetNotAllowed
	}
	verifier := oauth2.GenerateVerifier()
	c.store.Set(c.verifierKey(), verifier)

	err := c.backend.RecoverPassword(ctx, identifier, redirectTo, verifier)
	c.opts.Metrics.AuthCall("recover", err)
	if err != nil {
		c.store.Remove(c.verifierKey())
		return fmt.Errorf("[authclient RequestPasswordReset] %w", err)
	}
	return nil
}

func (c *Client) emitInitial(s *Session) {
	c.mu.Lock()
	if c.initialEmitted {
		c.mu.Unlock()
		return
	}
	c.initialEmitted = true
	c.mu.Unlock()
	c.events.emit(Event{Kind: InitialSession, Session: s})
}

// cachedSession returns the cached session, loading it from the store on first use.
func (c *Client) cachedSession() *Session {
	c.mu.Lock()
	s := c.cached
	c.mu.Unlock()
	if s != nil {
		return s
	}

	s = c.load()
	if s == nil {
		return nil
	}
	c.mu.Lock()
	c.cached = s
	c.mu.Unlock()
	return s
}

func (c *Client) load() *Session {
	raw, ok := c.store.Get(c.opts.StorageKey)
	if !ok || raw == "" {
		return nil
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || !s.valid() {
		log.Warn().Err(err).Msg("discarding unreadable stored session")
		c.store.Remove(c.opts.StorageKey)
		return nil
	}
	return &s
}

func (c *Client) persist(s *Session) {
	c.mu.Lock()
	c.cached = s
	c.mu.Unlock()

	data, err := json.Marshal(s)
	if err != nil {
		log.Err(err).Msg("failed to encode session")
		return
	}
	c.store.Set(c.opts.StorageKey, string(data))
}
