package guard_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/sso-hub/access"
	"github.com/jrsteele09/sso-hub/authclient"
	"github.com/jrsteele09/sso-hub/authclient/authfakes"
	"github.com/jrsteele09/sso-hub/directory"
	"github.com/jrsteele09/sso-hub/directory/repofakes"
	"github.com/jrsteele09/sso-hub/guard"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/navigation"
	"github.com/jrsteele09/sso-hub/sessionstore/storefakes"
	"github.com/stretchr/testify/require"
)

const (
	parentDomain = "example.com"
	storageKey   = "domio-auth-token"
	email        = "anna@example.com"
	password     = "Secret123!"
)

type recordingNavigator struct {
	mu    sync.Mutex
	dests []navigation.Destination
}

func (n *recordingNavigator) Navigate(d navigation.Destination) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dests = append(n.dests, d)
}

func (n *recordingNavigator) all() []navigation.Destination {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]navigation.Destination(nil), n.dests...)
}

type testFixture struct {
	backend *authfakes.FakeBackend
	dir     *repofakes.FakeDirectory
	store   *storefakes.MapStore
	client  *authclient.Client
	nav     *recordingNavigator
	guard   *guard.Guard
	userID  string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	backend := authfakes.NewFakeBackend()
	userID := backend.AddUser("", email, password)
	dir := repofakes.NewFakeDirectory()
	store := storefakes.NewMapStore()
	client := authclient.NewFactory(backend, authclient.Options{StorageKey: storageKey, ParentDomain: parentDomain}).Client(store)
	nav := &recordingNavigator{}
	resolver := access.NewResolver(dir, access.Options{FleetAppURL: "https://fleet.example.com"})

	g := guard.New(client, resolver, nav, guard.Options{ParentDomain: parentDomain})
	t.Cleanup(g.Unmount)

	return &testFixture{
		backend: backend,
		dir:     dir,
		store:   store,
		client:  client,
		nav:     nav,
		guard:   g,
		userID:  userID,
	}
}

func (f *testFixture) storeSession(t *testing.T, ttl time.Duration) *authclient.Session {
	t.Helper()
	s := f.backend.MintSession(email, ttl)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	f.store.Set(storageKey, string(data))
	return s
}

func (f *testFixture) profile(t *testing.T, p directory.Profile) {
	t.Helper()
	p.ID = f.userID
	require.NoError(t, f.dir.UpsertProfile(context.Background(), &p))
}

func TestMountWithoutSession(t *testing.T) {
	f := setupTestFixture(t)

	ac := f.guard.Mount(context.Background(), guard.MountOptions{CurrentPath: navigation.PathDashboard})
	require.Equal(t, guard.Unauthenticated, ac.State)
	require.Empty(t, ac.ErrorMarker)
	require.NoError(t, ac.Err)
	require.Empty(t, f.nav.all())
	require.Zero(t, f.backend.Count("sign_out"))
}

func TestMountAuthenticated(t *testing.T) {
	f := setupTestFixture(t)
	f.profile(t, directory.Profile{AccountType: directory.AccountNormal})
	f.storeSession(t, time.Hour)

	ac := f.guard.Mount(context.Background(), guard.MountOptions{CurrentPath: navigation.PathDashboard})
	require.Equal(t, guard.Authenticated, ac.State)
	require.True(t, ac.IsAuthenticated())
	require.Equal(t, f.userID, ac.Subject)
	require.Equal(t, access.Allow, ac.Decision.Verdict)
	require.Empty(t, f.nav.all())
	require.Equal(t, 1, f.dir.Calls("get_profile"))
}

func TestMountDeniesSimplifiedAccountWithoutMembership(t *testing.T) {
	f := setupTestFixture(t)
	f.profile(t, directory.Profile{AccountType: directory.AccountSimplified})
	f.storeSession(t, time.Hour)

	ac := f.guard.Mount(context.Background(), guard.MountOptions{CurrentPath: navigation.PathDashboard})
	require.Equal(t, guard.Unauthenticated, ac.State)
	require.Equal(t, guard.MarkerNoMembership, ac.ErrorMarker)
	require.ErrorIs(t, ac.Err, errors.ErrMembershipDenied)
	require.Nil(t, ac.Session)

	require.Equal(t, 1, f.backend.Count("sign_out:global"))
	_, ok := f.store.Get(storageKey)
	require.False(t, ok)
	require.Equal(t, []navigation.Destination{navigation.Internal("/login?error=no_membership")}, f.nav.all())
}

func TestMountMustReset(t *testing.T) {
	t.Run("redirects once away from the reset screen", func(t *testing.T) {
		f := setupTestFixture(t)
		f.profile(t, directory.Profile{MustResetCredentials: true})
		f.storeSession(t, time.Hour)

		ac := f.guard.Mount(context.Background(), guard.MountOptions{
			CurrentPath:   navigation.PathDashboard,
			PendingReturn: "https://app.example.com/x",
		})
		require.Equal(t, guard.AuthenticatedMustReset, ac.State)

		// Further sign-ins of the same subject do not redirect again.
		_, err := f.client.SignInWithPassword(context.Background(), email, password)
		require.NoError(t, err)
		_, err = f.client.SignInWithPassword(context.Background(), email, password)
		require.NoError(t, err)
		f.guard.Sync(context.Background())

		require.Equal(t, []navigation.Destination{
			navigation.Internal("/change-password?returnTo=https%3A%2F%2Fapp.example.com%2Fx"),
		}, f.nav.all())
	})

	t.Run("no redirect on the reset screen", func(t *testing.T) {
		f := setupTestFixture(t)
		f.profile(t, directory.Profile{MustResetCredentials: true})
		f.storeSession(t, time.Hour)

		ac := f.guard.Mount(context.Background(), guard.MountOptions{CurrentPath: navigation.PathChangePassword})
		require.Equal(t, guard.AuthenticatedMustReset, ac.State)
		require.Empty(t, f.nav.all())
	})

	t.Run("unsafe return target is dropped", func(t *testing.T) {
		f := setupTestFixture(t)
		f.profile(t, directory.Profile{MustResetCredentials: true})
		f.storeSession(t, time.Hour)

		ac := f.guard.Mount(context.Background(), guard.MountOptions{
			CurrentPath:   navigation.PathDashboard,
			PendingReturn: "https://evil.example/x",
		})
		require.True(t, ac.PendingReturn.IsNone())
		require.Equal(t, []navigation.Destination{navigation.Internal("/change-password")}, f.nav.all())
	})

	t.Run("deferred decisions still redirect once", func(t *testing.T) {
		f := setupTestFixture(t)
		f.profile(t, directory.Profile{AccountType: directory.AccountSimplified, MustResetCredentials: true})
		f.dir.MembershipErr = stderrors.New("timeout")
		f.storeSession(t, time.Hour)

		ac := f.guard.Mount(context.Background(), guard.MountOptions{CurrentPath: navigation.PathDashboard})
		require.Equal(t, guard.AuthenticatedMustReset, ac.State)

		_, err := f.client.SignInWithPassword(context.Background(), email, password)
		require.NoError(t, err)
		f.guard.Sync(context.Background())

		require.Len(t, f.nav.all(), 1)
		require.Greater(t, f.dir.Calls("list_memberships"), 1)
	})
}

func TestMountMembershipLookupFailureIsNotDenial(t *testing.T) {
	f := setupTestFixture(t)
	f.profile(t, directory.Profile{AccountType: directory.AccountSimplified})
	f.dir.MembershipErr = stderrors.New("connection refused")
	f.storeSession(t, time.Hour)

	ac := f.guard.Mount(context.Background(), guard.MountOptions{CurrentPath: navigation.PathDashboard})
	require.Equal(t, guard.Authenticated, ac.State)
	require.True(t, ac.Decision.Deferred)
	require.ErrorIs(t, ac.Err, errors.ErrTransientNetwork)
	require.Zero(t, f.backend.Count("sign_out"))
	require.Empty(t, f.nav.all())
}

func TestMountForceLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.profile(t, directory.Profile{})
	f.storeSession(t, time.Hour)

	ac := f.guard.Mount(context.Background(), guard.MountOptions{ForceLogout: true, CurrentPath: navigation.PathLogin})
	require.Equal(t, guard.Unauthenticated, ac.State)
	_, ok := f.store.Get(storageKey)
	require.False(t, ok)
	require.Zero(t, f.backend.Count("sign_out"))
	require.Zero(t, f.dir.Calls("get_profile"))
}

func TestMountExpiredSessionSignsOutProactively(t *testing.T) {
	f := setupTestFixture(t)
	f.profile(t, directory.Profile{})
	f.storeSession(t, -time.Minute)
	f.backend.RefreshErr = &errors.ProviderError{Message: "Invalid Refresh Token: Already Used", Status: 400}

	ac := f.guard.Mount(context.Background(), guard.MountOptions{CurrentPath: navigation.PathDashboard})
	require.Equal(t, guard.Unauthenticated, ac.State)
	require.Equal(t, guard.MarkerSessionExpired, ac.ErrorMarker)
	require.ErrorIs(t, ac.Err, errors.ErrTokenInvalidOrExpired)
	_, ok := f.store.Get(storageKey)
	require.False(t, ok)
}

func TestMountRefreshesExpiredSession(t *testing.T) {
	f := setupTestFixture(t)
	f.profile(t, directory.Profile{})
	old := f.storeSession(t, -time.Minute)

	ac := f.guard.Mount(context.Background(), guard.MountOptions{CurrentPath: navigation.PathDashboard})
	require.Equal(t, guard.Authenticated, ac.State)
	require.NotEqual(t, old.AccessToken, ac.Session.AccessToken)
	require.Equal(t, 1, f.backend.Count("refresh"))
}

func TestMountTransientFailureSettlesUnauthenticated(t *testing.T) {
	f := setupTestFixture(t)
	f.storeSession(t, -time.Minute)
	f.backend.RefreshErr = &errors.ProviderError{Message: "connection reset by peer"}

	ac := f.guard.Mount(context.Background(), guard.MountOptions{CurrentPath: navigation.PathDashboard})
	require.Equal(t, guard.Unauthenticated, ac.State)
	require.ErrorIs(t, ac.Err, errors.ErrTransientNetwork)
	require.Empty(t, ac.ErrorMarker)
}

func TestSignedOutClearsState(t *testing.T) {
	f := setupTestFixture(t)
	f.profile(t, directory.Profile{})
	f.storeSession(t, time.Hour)

	ac := f.guard.Mount(context.Background(), guard.MountOptions{
		CurrentPath:   navigation.PathDashboard,
		PendingReturn: "/dashboard?tab=apps",
	})
	require.Equal(t, guard.Authenticated, ac.State)
	require.Equal(t, navigation.Internal("/dashboard?tab=apps"), ac.PendingReturn)

	require.NoError(t, f.client.SignOut(context.Background(), authclient.ScopeLocal))
	f.guard.Sync(context.Background())

	after := f.guard.Context()
	require.Equal(t, guard.Unauthenticated, after.State)
	require.True(t, after.PendingReturn.IsNone())
	require.Empty(t, after.Subject)

	// The earlier context value is unchanged.
	require.Equal(t, guard.Authenticated, ac.State)
}

func TestTokenRefreshedUpdatesSession(t *testing.T) {
	f := setupTestFixture(t)
	f.profile(t, directory.Profile{})
	f.storeSession(t, time.Hour)

	ac := f.guard.Mount(context.Background(), guard.MountOptions{CurrentPath: navigation.PathDashboard})
	refreshed, err := f.client.Refresh(context.Background())
	require.NoError(t, err)
	f.guard.Sync(context.Background())

	require.Equal(t, refreshed.AccessToken, f.guard.Context().Session.AccessToken)
	require.NotEqual(t, ac.Session.AccessToken, refreshed.AccessToken)
}

func TestSyncAfterUnmountIgnoresEvents(t *testing.T) {
	f := setupTestFixture(t)
	f.profile(t, directory.Profile{})
	f.storeSession(t, time.Hour)

	ac := f.guard.Mount(context.Background(), guard.MountOptions{CurrentPath: navigation.PathDashboard})
	require.Equal(t, guard.Authenticated, ac.State)
	f.guard.Unmount()

	require.NoError(t, f.client.SignOut(context.Background(), authclient.ScopeLocal))
	require.Equal(t, guard.Authenticated, f.guard.Sync(context.Background()).State)
}

