package routegate_test

import (
	"testing"

	"github.com/jrsteele09/sso-hub/access"
	"github.com/jrsteele09/sso-hub/guard"
	"github.com/jrsteele09/sso-hub/navigation"
	"github.com/jrsteele09/sso-hub/routegate"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want routegate.Access
	}{
		{"/", routegate.Entry},
		{"/login", routegate.SignIn},
		{"/login?returnTo=/dashboard", routegate.SignIn},
		{"/signup", routegate.SignIn},
		{"/forgot-password", routegate.Public},
		{"/auth/callback", routegate.Public},
		{"/change-password", routegate.CredentialReset},
		{"/reset-password/", routegate.CredentialReset},
		{"/dashboard", routegate.Protected},
		{"/settings", routegate.Protected},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Equal(t, tt.want, routegate.Classify(tt.path))
		})
	}
}

func TestDecideUnauthenticated(t *testing.T) {
	ac := guard.AuthContext{State: guard.Unauthenticated}

	t.Run("sign in screen always renders", func(t *testing.T) {
		require.Equal(t, routegate.Render, routegate.Decide(ac, "/login?returnTo=https://app.example.com").Action)
	})

	t.Run("public screens render", func(t *testing.T) {
		require.False(t, routegate.Decide(ac, "/forgot-password").IsRedirect())
	})

	t.Run("protected screen keeps the return target", func(t *testing.T) {
		out := routegate.Decide(ac, "/dashboard?tab=apps")
		require.True(t, out.IsRedirect())
		require.Equal(t, navigation.Internal("/login?returnTo=%2Fdashboard%3Ftab%3Dapps"), out.Destination)
	})

	t.Run("reset screen needs a session", func(t *testing.T) {
		out := routegate.Decide(ac, "/change-password")
		require.Equal(t, navigation.Internal("/login?returnTo=%2Fchange-password"), out.Destination)
	})

	t.Run("entry goes to sign in", func(t *testing.T) {
		require.Equal(t, navigation.Internal("/login"), routegate.Decide(ac, "/").Destination)
	})

	t.Run("error marker is carried", func(t *testing.T) {
		expired := guard.AuthContext{State: guard.Unauthenticated, ErrorMarker: guard.MarkerSessionExpired}
		out := routegate.Decide(expired, "/dashboard")
		require.Equal(t, navigation.Internal("/login?error=session_expired&returnTo=%2Fdashboard"), out.Destination)
	})

	t.Run("initializing is treated as unauthenticated", func(t *testing.T) {
		require.True(t, routegate.Decide(guard.AuthContext{}, "/dashboard").IsRedirect())
	})
}

func TestDecideMustReset(t *testing.T) {
	ac := guard.AuthContext{
		State:         guard.AuthenticatedMustReset,
		PendingReturn: navigation.External("https://app.example.com/x"),
	}

	require.Equal(t, routegate.Render, routegate.Decide(ac, "/change-password").Action)
	require.Equal(t, routegate.Render, routegate.Decide(ac, "/auth/callback?code=abc").Action)

	for _, path := range []string{"/dashboard", "/login", "/", "/forgot-password"} {
		out := routegate.Decide(ac, path)
		require.True(t, out.IsRedirect(), path)
		require.Equal(t, navigation.Internal("/change-password?returnTo=https%3A%2F%2Fapp.example.com%2Fx"), out.Destination, path)
	}
}

func TestDecideAuthenticated(t *testing.T) {
	ac := guard.AuthContext{State: guard.Authenticated}

	require.Equal(t, routegate.Render, routegate.Decide(ac, "/dashboard").Action)
	require.Equal(t, routegate.Render, routegate.Decide(ac, "/change-password").Action)
	require.Equal(t, navigation.Internal("/dashboard"), routegate.Decide(ac, "/").Destination)

	t.Run("sign in screen forwards to the pending return target", func(t *testing.T) {
		withReturn := ac
		withReturn.PendingReturn = navigation.External("https://app.example.com/dashboard")
		out := routegate.Decide(withReturn, "/login?returnTo=https://app.example.com/dashboard")
		require.True(t, out.IsRedirect())
		require.Equal(t, navigation.External("https://app.example.com/dashboard"), out.Destination)
	})

	t.Run("sign in screen forwards to the landing screen", func(t *testing.T) {
		require.Equal(t, navigation.Internal("/dashboard"), routegate.Decide(ac, "/login").Destination)
	})
}

func TestPostLogin(t *testing.T) {
	fleet := navigation.External("https://fleet.example.com")
	pending := navigation.Internal("/dashboard?tab=apps")

	tests := []struct {
		name string
		ac   guard.AuthContext
		want navigation.Destination
	}{
		{
			name: "landing by default",
			ac:   guard.AuthContext{State: guard.Authenticated},
			want: navigation.Internal("/dashboard"),
		},
		{
			name: "pending return target",
			ac:   guard.AuthContext{State: guard.Authenticated, PendingReturn: pending},
			want: pending,
		},
		{
			name: "external application beats pending return target",
			ac: guard.AuthContext{
				State:         guard.Authenticated,
				PendingReturn: pending,
				Decision:      access.Decision{Verdict: access.RedirectExternal, Destination: fleet},
			},
			want: fleet,
		},
		{
			name: "reset beats everything",
			ac: guard.AuthContext{
				State:         guard.AuthenticatedMustReset,
				PendingReturn: pending,
				Decision:      access.Decision{Verdict: access.MustReset},
			},
			want: navigation.Internal("/change-password?returnTo=%2Fdashboard%3Ftab%3Dapps"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, routegate.PostLogin(tt.ac))
		})
	}
}
