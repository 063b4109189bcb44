package access_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/jrsteele09/sso-hub/access"
	"github.com/jrsteele09/sso-hub/directory"
	"github.com/jrsteele09/sso-hub/directory/repofakes"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/internal/metrics"
	"github.com/jrsteele09/sso-hub/navigation"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const fleetURL = "https://fleet.example.com"

type testFixture struct {
	dir      *repofakes.FakeDirectory
	metrics  *metrics.Metrics
	resolver *access.Resolver
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	dir := repofakes.NewFakeDirectory()
	m := metrics.New()
	return &testFixture{
		dir:      dir,
		metrics:  m,
		resolver: access.NewResolver(dir, access.Options{FleetAppURL: fleetURL, Metrics: m}),
	}
}

func (f *testFixture) addProfile(t *testing.T, p directory.Profile) {
	t.Helper()
	require.NoError(t, f.dir.UpsertProfile(context.Background(), &p))
}

func (f *testFixture) addMembership(t *testing.T, userID, tenantID string) {
	t.Helper()
	require.NoError(t, f.dir.AddMembership(context.Background(), directory.Membership{UserID: userID, TenantID: tenantID}))
}

func TestResolveVerdicts(t *testing.T) {
	ctx := context.Background()

	t.Run("simplified account without memberships is denied", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addProfile(t, directory.Profile{ID: "u1", AccountType: directory.AccountSimplified, MustResetCredentials: true})
		f.dir.AddOperationalRole(directory.OperationalRole{UserID: "u1", App: directory.AppFleet, Role: directory.FleetRoleDriver})

		d := f.resolver.Resolve(ctx, access.Request{SubjectID: "u1"})
		require.Equal(t, access.Deny, d.Verdict)
		require.Equal(t, access.ReasonNoMembership, d.Reason)
		require.False(t, d.Deferred)
		require.NoError(t, d.Err)
		require.True(t, d.Destination.IsNone())
	})

	t.Run("simplified account outside the target tenant is denied", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addProfile(t, directory.Profile{ID: "u1", AccountType: directory.AccountSimplified})
		f.addMembership(t, "u1", "org-a")

		require.Equal(t, access.Deny, f.resolver.Resolve(ctx, access.Request{SubjectID: "u1", TargetTenant: "org-b"}).Verdict)
		require.Equal(t, access.Allow, f.resolver.Resolve(ctx, access.Request{SubjectID: "u1", TargetTenant: "org-a"}).Verdict)
	})

	t.Run("normal account with no memberships is allowed", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addProfile(t, directory.Profile{ID: "u1", AccountType: directory.AccountNormal})

		d := f.resolver.Resolve(ctx, access.Request{SubjectID: "u1", TargetTenant: "org-b"})
		require.Equal(t, access.Allow, d.Verdict)
		require.NotNil(t, d.Profile)
	})

	t.Run("must reset beats external redirect", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addProfile(t, directory.Profile{ID: "u1", MustResetCredentials: true})
		f.dir.AddOperationalRole(directory.OperationalRole{UserID: "u1", App: directory.AppFleet, Role: directory.FleetRoleAdmin})

		require.Equal(t, access.MustReset, f.resolver.Resolve(ctx, access.Request{SubjectID: "u1"}).Verdict)
	})

	t.Run("fleet role without memberships redirects externally", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addProfile(t, directory.Profile{ID: "u1"})
		f.dir.AddOperationalRole(directory.OperationalRole{UserID: "u1", App: directory.AppFleet, Role: directory.FleetRoleDriver})

		d := f.resolver.Resolve(ctx, access.Request{SubjectID: "u1"})
		require.Equal(t, access.RedirectExternal, d.Verdict)
		require.Equal(t, navigation.External(fleetURL), d.Destination)
	})

	t.Run("fleet role with a membership stays on the hub", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addProfile(t, directory.Profile{ID: "u1"})
		f.addMembership(t, "u1", "org-a")
		f.dir.AddOperationalRole(directory.OperationalRole{UserID: "u1", App: directory.AppFleet, Role: directory.FleetRoleDriver})

		require.Equal(t, access.Allow, f.resolver.Resolve(ctx, access.Request{SubjectID: "u1"}).Verdict)
	})

	t.Run("other fleet roles do not redirect", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addProfile(t, directory.Profile{ID: "u1"})
		f.dir.AddOperationalRole(directory.OperationalRole{UserID: "u1", App: directory.AppFleet, Role: "viewer"})

		require.Equal(t, access.Allow, f.resolver.Resolve(ctx, access.Request{SubjectID: "u1"}).Verdict)
	})

	t.Run("missing profile is allowed", func(t *testing.T) {
		f := setupTestFixture(t)
		d := f.resolver.Resolve(ctx, access.Request{SubjectID: "ghost"})
		require.Equal(t, access.Allow, d.Verdict)
		require.Nil(t, d.Profile)
	})
}

func TestResolveLookupFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("membership failure defers instead of denying", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addProfile(t, directory.Profile{ID: "u1", AccountType: directory.AccountSimplified})
		f.dir.MembershipErr = stderrors.New("connection reset")

		d := f.resolver.Resolve(ctx, access.Request{SubjectID: "u1"})
		require.NotEqual(t, access.Deny, d.Verdict)
		require.True(t, d.Deferred)
		require.ErrorIs(t, d.Err, errors.ErrTransientNetwork)
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AccessDecisionsTotal.WithLabelValues("allow", "true")))
	})

	t.Run("membership failure still honours must reset", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addProfile(t, directory.Profile{ID: "u1", AccountType: directory.AccountSimplified, MustResetCredentials: true})
		f.dir.MembershipErr = stderrors.New("timeout")

		d := f.resolver.Resolve(ctx, access.Request{SubjectID: "u1"})
		require.Equal(t, access.MustReset, d.Verdict)
		require.True(t, d.Deferred)
	})

	t.Run("profile failure is non fatal", func(t *testing.T) {
		f := setupTestFixture(t)
		f.dir.ProfileErr = stderrors.New("profiles unavailable")

		d := f.resolver.Resolve(ctx, access.Request{SubjectID: "u1"})
		require.Equal(t, access.Allow, d.Verdict)
		require.NoError(t, d.Err)
	})

	t.Run("operational role failure skips external redirect", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addProfile(t, directory.Profile{ID: "u1"})
		f.dir.AddOperationalRole(directory.OperationalRole{UserID: "u1", App: directory.AppFleet, Role: directory.FleetRoleAdmin})
		f.dir.RolesErr = stderrors.New("roles unavailable")

		d := f.resolver.Resolve(ctx, access.Request{SubjectID: "u1"})
		require.Equal(t, access.Allow, d.Verdict)
		require.False(t, d.Deferred)
	})

	t.Run("cancelled lookup is a soft failure", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addProfile(t, directory.Profile{ID: "u1", AccountType: directory.AccountSimplified})
		f.dir.Delay = time.Second

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		d := f.resolver.Resolve(cctx, access.Request{SubjectID: "u1"})
		require.NotEqual(t, access.Deny, d.Verdict)
		require.NoError(t, d.Err)
	})
}

func TestResolveRunsLookupsConcurrently(t *testing.T) {
	f := setupTestFixture(t)
	f.addProfile(t, directory.Profile{ID: "u1"})
	f.dir.Delay = 100 * time.Millisecond

	start := time.Now()
	f.resolver.Resolve(context.Background(), access.Request{SubjectID: "u1"})
	require.Less(t, time.Since(start), 250*time.Millisecond)
	require.Equal(t, 1, f.dir.Calls("get_profile"))
	require.Equal(t, 1, f.dir.Calls("list_memberships"))
	require.Equal(t, 1, f.dir.Calls("list_operational_roles"))
}
