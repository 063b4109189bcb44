// Package routegate maps the guard's AuthContext and a requested screen to either rendering
// that screen or redirecting elsewhere.
package routegate

import (
	"strings"

	"github.com/jrsteele09/sso-hub/access"
	"github.com/jrsteele09/sso-hub/guard"
	"github.com/jrsteele09/sso-hub/navigation"
)

type Access int

const (
	// Protected screens need an authenticated subject. Unknown paths are protected.
	Protected Access = iota
	Public
	SignIn
	CredentialReset
	Entry
)

func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case SignIn:
		return "sign_in"
	case CredentialReset:
		return "credential_reset"
	case Entry:
		return "entry"
	}
	return "protected"
}

var screens = map[string]Access{
	navigation.PathRoot:           Entry,
	navigation.PathLogin:          SignIn,
	navigation.PathSignup:         SignIn,
	navigation.PathForgotPassword: Public,
	navigation.PathAuthCallback:   Public,
	navigation.PathResetPassword:  CredentialReset,
	navigation.PathChangePassword: CredentialReset,
	navigation.PathDashboard:      Protected,
}

// Classify returns the access class of path. Query strings are ignored.
func Classify(path string) Access {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if a, ok := screens[path]; ok {
		return a
	}
	return Protected
}

type Action int

const (
	Render Action = iota
	Redirect
)

type Outcome struct {
	Action      Action
	Destination navigation.Destination
}

func render() Outcome {
	return Outcome{Action: Render}
}

func redirect(d navigation.Destination) Outcome {
	return Outcome{Action: Redirect, Destination: d}
}

func (o Outcome) IsRedirect() bool {
	return o.Action == Redirect
}

// Decide gates a request for requestURI (path plus query) with the given auth context.
func Decide(ac guard.AuthContext, requestURI string) Outcome {
	class := Classify(requestURI)

	switch ac.State {
	case guard.AuthenticatedMustReset:
		// The callback completes a sign-in and must stay reachable.
		if class == CredentialReset || strings.HasPrefix(requestURI, navigation.PathAuthCallback) {
			return render()
		}
		return redirect(ResetDestination(ac))

	case guard.Authenticated:
		switch class {
		case SignIn, Entry:
			return redirect(PostLogin(ac))
		}
		return render()
	}

	// Unauthenticated, or a context that never settled.
	switch class {
	case SignIn, Public:
		return render()
	case Entry:
		return redirect(navigation.Internal(navigation.PathLogin))
	}
	return redirect(LoginDestination(requestURI, ac.ErrorMarker))
}

// LoginDestination is the sign-in screen with requestURI kept as the pending return target.
func LoginDestination(requestURI, errorMarker string) navigation.Destination {
	returnTo := requestURI
	if Classify(requestURI) == SignIn || Classify(requestURI) == Entry {
		returnTo = ""
	}
	return navigation.WithQuery(navigation.PathLogin,
		navigation.ParamReturnTo, returnTo,
		navigation.ParamError, errorMarker,
	)
}

// ResetDestination is the credential reset screen, preserving the pending return target.
func ResetDestination(ac guard.AuthContext) navigation.Destination {
	return navigation.WithQuery(navigation.PathChangePassword, navigation.ParamReturnTo, ac.PendingReturn.Location())
}

// PostLogin picks where a signed-in subject goes next: the reset screen when a reset is due,
// then an external application for operational-only roles, then the validated pending return
// target, then the dashboard.
func PostLogin(ac guard.AuthContext) navigation.Destination {
	switch {
	case ac.State == guard.AuthenticatedMustReset || ac.Decision.Verdict == access.MustReset:
		return ResetDestination(ac)
	case ac.Decision.Verdict == access.RedirectExternal && !ac.Decision.Destination.IsNone():
		return ac.Decision.Destination
	case !ac.PendingReturn.IsNone():
		return ac.PendingReturn
	}
	return navigation.Internal(navigation.PathDashboard)
}
