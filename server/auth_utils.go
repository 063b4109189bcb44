package server

import (
	"math"
	"net/http"
	"strings"

	"github.com/jrsteele09/sso-hub/authclient"
	"github.com/jrsteele09/sso-hub/guard"
	"github.com/jrsteele09/sso-hub/navigation"
	"github.com/jrsteele09/sso-hub/routegate"
)

// requestAuth is one mount: the auth client bound to this request's session store and the
// guard that evaluated it.
type requestAuth struct {
	client *authclient.Client
	guard  *guard.Guard
	opts   guard.MountOptions
	ac     guard.AuthContext
	// navigated is the last redirect the guard asked for during this request.
	navigated navigation.Destination
}

func (s *Server) mountOptions(r *http.Request) guard.MountOptions {
	q := r.URL.Query()
	pending := q.Get(navigation.ParamReturnTo)
	if r.Method == http.MethodPost {
		if v := r.PostFormValue(navigation.ParamReturnTo); v != "" {
			pending = v
		}
	}
	return guard.MountOptions{
		ForceLogout:   isTruthy(q.Get(navigation.ParamForceLogout)),
		CurrentPath:   r.URL.Path,
		PendingReturn: pending,
		TargetTenant:  q.Get(navigation.ParamTenant),
	}
}

// mount runs the session bootstrap for r. The caller must release it.
func (s *Server) mount(w http.ResponseWriter, r *http.Request) *requestAuth {
	ra := &requestAuth{
		client: s.deps.Factory.Client(s.deps.Sessions.For(w, r)),
		opts:   s.mountOptions(r),
	}
	ra.guard = guard.New(ra.client, s.deps.Resolver, guard.NavigatorFunc(func(dest navigation.Destination) {
		ra.navigated = dest
	}), guard.Options{
		ParentDomain: s.config.GetParentDomain(),
		Metrics:      s.deps.Metrics,
	})
	ra.ac = ra.guard.Mount(r.Context(), ra.opts)
	return ra
}

// remount evaluates the session again after a sign-in or credential change in this request.
// A forced logout is never repeated.
func (ra *requestAuth) remount(r *http.Request) guard.AuthContext {
	ra.opts.ForceLogout = false
	ra.navigated = navigation.None
	ra.ac = ra.guard.Mount(r.Context(), ra.opts)
	return ra.ac
}

// sync picks up a sign-in made in this request by a subject the mount has not seen yet.
func (ra *requestAuth) sync(r *http.Request) guard.AuthContext {
	ra.navigated = navigation.None
	ra.ac = ra.guard.Sync(r.Context())
	return ra.ac
}

func (ra *requestAuth) release() {
	ra.guard.Unmount()
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// navigate performs dest, htmx-aware.
func navigate(w http.ResponseWriter, r *http.Request, dest navigation.Destination) {
	location := dest.Location()
	if location == "" {
		location = navigation.PathRoot
	}
	redirectSuccess(w, r, location)
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects. marker is a stable error key, never
// provider text.
func redirectWithError(w http.ResponseWriter, r *http.Request, path, marker string) {
	redirectSuccess(w, r, navigation.WithQuery(path, navigation.ParamError, marker).Location())
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get(headerHTMX) == "true"
}

// completeSignIn sends a freshly signed-in user on. The guard's own redirect (denial, reset)
// wins over the post-login destination.
func (s *Server) completeSignIn(w http.ResponseWriter, r *http.Request, ra *requestAuth) {
	ac := ra.remount(r)
	if !ra.navigated.IsNone() {
		navigate(w, r, ra.navigated)
		return
	}
	if !ac.IsAuthenticated() {
		redirectWithError(w, r, RouteLogin, ac.ErrorMarker)
		return
	}
	s.redirectAfterLogin(w, r, routegate.PostLogin(ac))
}

// redirectAfterLogin honours the configured post-login delay with an interstitial page.
func (s *Server) redirectAfterLogin(w http.ResponseWriter, r *http.Request, dest navigation.Destination) {
	if s.redirectDelay <= 0 || isHTMXRequest(r) {
		navigate(w, r, dest)
		return
	}
	tag := s.languageFrom(r)
	s.render(w, r, http.StatusOK, templateInterstitial, interstitialData{
		pageData: s.page(r, tag, "redirect.wait"),
		Location: dest.Location(),
		Seconds:  int(math.Ceil(s.redirectDelay.Seconds())),
	})
}
