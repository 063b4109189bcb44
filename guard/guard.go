// Package guard bootstraps the session for one mount and keeps an immutable AuthContext
// current as auth events arrive.
package guard

import (
	"context"
	"sync"

	"github.com/jrsteele09/sso-hub/access"
	"github.com/jrsteele09/sso-hub/authclient"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/internal/metrics"
	"github.com/jrsteele09/sso-hub/internal/telemetry"
	"github.com/jrsteele09/sso-hub/navigation"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

type State int

const (
	Initializing State = iota
	Unauthenticated
	Authenticated
	AuthenticatedMustReset
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case AuthenticatedMustReset:
		return "authenticated_must_reset"
	}
	return "initializing"
}

const (
	MarkerNoMembership   = access.ReasonNoMembership
	MarkerSessionExpired = "session_expired"
)

// AuthContext is the auth state handed to screens. Values are never mutated after creation.
type AuthContext struct {
	State    State
	Session  *authclient.Session
	Subject  string
	Decision access.Decision
	// PendingReturn is the validated return target of the mount, None when absent or unsafe.
	PendingReturn navigation.Destination
	ErrorMarker   string
	Err           error
}

func (a AuthContext) IsAuthenticated() bool {
	return a.State == Authenticated || a.State == AuthenticatedMustReset
}

// AuthClient is the subset of *authclient.Client the guard drives.
type AuthClient interface {
	Subscribe() *authclient.Subscription
	GetSession(ctx context.Context) (*authclient.Session, error)
	Refresh(ctx context.Context) (*authclient.Session, error)
	SignOut(ctx context.Context, scope authclient.SignOutScope) error
}

var _ AuthClient = (*authclient.Client)(nil)

type Resolver interface {
	Resolve(ctx context.Context, req access.Request) access.Decision
}

var _ Resolver = (*access.Resolver)(nil)

// Navigator performs redirects decided by the guard.
type Navigator interface {
	Navigate(dest navigation.Destination)
}

type NavigatorFunc func(dest navigation.Destination)

func (f NavigatorFunc) Navigate(dest navigation.Destination) { f(dest) }

type Options struct {
	ParentDomain string
	Metrics      *metrics.Metrics
}

type MountOptions struct {
	// ForceLogout wipes the local session before anything is evaluated.
	ForceLogout   bool
	CurrentPath   string
	PendingReturn string
	TargetTenant  string
}

type Guard struct {
	client   AuthClient
	resolver Resolver
	nav      Navigator
	opts     Options

	// handling serializes event evaluation so the last-handled check and the resolver call are atomic.
	handling sync.Mutex

	mu          sync.RWMutex
	sub         *authclient.Subscription
	mount       MountOptions
	pending     navigation.Destination
	current     AuthContext
	lastHandled string
	// resetSent is the subject already sent to the reset screen in this mount.
	resetSent string
}

func New(client AuthClient, resolver Resolver, nav Navigator, opts Options) *Guard {
	if nav == nil {
		nav = NavigatorFunc(func(navigation.Destination) {})
	}
	return &Guard{
		client:   client,
		resolver: resolver,
		nav:      nav,
		opts:     opts,
		current:  AuthContext{State: Initializing},
	}
}

// Context returns the current AuthContext.
func (g *Guard) Context() AuthContext {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// Mount subscribes, optionally wipes the local session, bootstraps the session and processes
// every event queued meanwhile. It always returns a settled state.
func (g *Guard) Mount(ctx context.Context, opts MountOptions) AuthContext {
	ctx, span := telemetry.Tracer().Start(ctx, "guard.Mount")
	defer span.End()

	g.mu.Lock()
	g.mount = opts
	g.pending = navigation.ValidateReturnTarget(opts.PendingReturn, g.opts.ParentDomain)
	g.current = AuthContext{State: Initializing, PendingReturn: g.pending}
	g.lastHandled = ""
	g.resetSent = ""
	if g.sub == nil {
		g.sub = g.client.Subscribe()
	}
	sub := g.sub
	g.mu.Unlock()

	if opts.ForceLogout {
		if err := g.client.SignOut(ctx, authclient.ScopeLocal); err != nil {
			log.Warn().Err(err).Msg("[guard Mount] forced logout failed")
		}
		g.drain(ctx, sub)
	}

	g.bootstrap(ctx)
	g.drain(ctx, sub)

	ac := g.Context()
	if ac.State == Initializing {
		// Only reachable when the session vanished without a SignedOut event.
		ac = g.settle(AuthContext{State: Unauthenticated})
	}
	span.SetAttributes(attribute.String("guard.state", ac.State.String()))
	g.opts.Metrics.GuardOutcome(ac.State.String())
	return ac
}

// Sync handles the events queued since the last Mount or Sync and returns the resulting context.
// It does not block; after Unmount it only returns the current context.
func (g *Guard) Sync(ctx context.Context) AuthContext {
	g.mu.RLock()
	sub := g.sub
	g.mu.RUnlock()
	if sub != nil {
		g.drain(ctx, sub)
	}
	return g.Context()
}

// Unmount releases the event subscription. The guard may be mounted again afterwards.
func (g *Guard) Unmount() {
	g.mu.Lock()
	sub := g.sub
	g.sub = nil
	g.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (g *Guard) drain(ctx context.Context, sub *authclient.Subscription) {
	for {
		e, ok := sub.Next()
		if !ok {
			return
		}
		g.handle(ctx, e)
	}
}

func (g *Guard) bootstrap(ctx context.Context) {
	s, err := g.client.GetSession(ctx)
	if err == nil && s == nil {
		s, err = g.client.Refresh(ctx)
	}

	switch {
	case err == nil && s != nil:
		g.evaluate(ctx, s)
	case errors.Is(err, errors.ErrTokenInvalidOrExpired):
		log.Info().Err(err).Msg("[guard bootstrap] stored session is no longer valid, signing out")
		if signOutErr := g.client.SignOut(ctx, authclient.ScopeLocal); signOutErr != nil {
			log.Warn().Err(signOutErr).Msg("[guard bootstrap] proactive sign out failed")
		}
		g.settle(AuthContext{State: Unauthenticated, ErrorMarker: MarkerSessionExpired, Err: err})
	case err == nil, errors.Is(err, errors.ErrSessionMissing):
		g.settleIfInitializing(AuthContext{State: Unauthenticated})
	default:
		log.Warn().Err(err).Msg("[guard bootstrap] session bootstrap failed")
		g.settleIfInitializing(AuthContext{State: Unauthenticated, Err: err})
	}
}

func (g *Guard) handle(ctx context.Context, e authclient.Event) {
	switch e.Kind {
	case authclient.SignedIn, authclient.InitialSession:
		if e.Session != nil && e.Session.Subject() != "" {
			g.evaluate(ctx, e.Session)
		}
	case authclient.SignedOut:
		g.handling.Lock()
		g.mu.Lock()
		g.pending = navigation.None
		g.lastHandled = ""
		marker := ""
		if g.current.State == Unauthenticated {
			marker = g.current.ErrorMarker
		}
		g.current = AuthContext{State: Unauthenticated, ErrorMarker: marker, Err: g.current.Err}
		g.mu.Unlock()
		g.handling.Unlock()
	case authclient.TokenRefreshed:
		g.mu.Lock()
		if g.current.IsAuthenticated() && e.Session != nil && e.Session.Subject() == g.current.Subject {
			next := g.current
			next.Session = e.Session
			g.current = next
		}
		g.mu.Unlock()
	}
}

// evaluate is the single code path for a present session, whether it came from bootstrap or
// from a SignedIn/InitialSession event. A subject already handled in this mount is skipped.
func (g *Guard) evaluate(ctx context.Context, s *authclient.Session) {
	g.handling.Lock()
	defer g.handling.Unlock()

	subject := s.Subject()
	g.mu.Lock()
	if subject == g.lastHandled {
		g.mu.Unlock()
		return
	}
	g.lastHandled = subject
	mount := g.mount
	pending := g.pending
	g.mu.Unlock()

	decision := g.resolver.Resolve(ctx, access.Request{SubjectID: subject, TargetTenant: mount.TargetTenant})
	base := AuthContext{Session: s, Subject: subject, Decision: decision, PendingReturn: pending, Err: decision.Err}

	if decision.Deferred {
		// Let the next event for this subject retry the membership check.
		g.mu.Lock()
		g.lastHandled = ""
		g.mu.Unlock()
	}

	switch decision.Verdict {
	case access.Deny:
		g.deny(ctx, subject)
	case access.MustReset:
		base.State = AuthenticatedMustReset
		g.setCurrent(base)
		if !onResetScreen(mount.CurrentPath) && g.markResetSent(subject) {
			g.opts.Metrics.GuardRedirect("must_reset")
			g.nav.Navigate(navigation.WithQuery(navigation.PathChangePassword, navigation.ParamReturnTo, pending.Location()))
		}
	default:
		base.State = Authenticated
		g.setCurrent(base)
	}
}

func (g *Guard) deny(ctx context.Context, subject string) {
	log.Warn().Str("subject", subject).Msg("[guard evaluate] simplified account has no membership, signing out")
	if err := g.client.SignOut(ctx, authclient.ScopeGlobal); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("[guard evaluate] sign out after denial failed")
	}
	g.mu.Lock()
	g.pending = navigation.None
	g.current = AuthContext{
		State:       Unauthenticated,
		ErrorMarker: MarkerNoMembership,
		Err:         errors.Wrapf(errors.ErrMembershipDenied, "subject %s", subject),
	}
	g.mu.Unlock()
	g.opts.Metrics.GuardRedirect(MarkerNoMembership)
	g.nav.Navigate(navigation.WithQuery(navigation.PathLogin, navigation.ParamError, MarkerNoMembership))
}

func onResetScreen(path string) bool {
	return path == navigation.PathChangePassword || path == navigation.PathResetPassword
}

func (g *Guard) markResetSent(subject string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resetSent == subject {
		return false
	}
	g.resetSent = subject
	return true
}

func (g *Guard) setCurrent(ac AuthContext) {
	g.mu.Lock()
	g.current = ac
	g.mu.Unlock()
}

func (g *Guard) settle(ac AuthContext) AuthContext {
	g.mu.Lock()
	defer g.mu.Unlock()
	ac.PendingReturn = g.pending
	g.current = ac
	return ac
}

// settleIfInitializing keeps a state already reached through events.
func (g *Guard) settleIfInitializing(ac AuthContext) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current.State != Initializing {
		return
	}
	ac.PendingReturn = g.pending
	g.current = ac
}
