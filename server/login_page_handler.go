package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/sso-hub/authclient"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/internal/i18n"
	"github.com/jrsteele09/sso-hub/navigation"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	pageData
	Providers []string
}

var oauthProviders = []string{"google", "facebook"}

// LoginPageUIHandler displays the login page (GET /login)
func (s *Server) LoginPageUIHandler() http.HandlerFunc {
	return s.screen(func(w http.ResponseWriter, r *http.Request, ra *requestAuth) {
		tag := s.languageFrom(r)
		data := LoginPageData{
			pageData:  s.page(r, tag, "login.welcome"),
			Providers: oauthProviders,
		}
		data.ReturnTo = ra.ac.PendingReturn.Location()
		if data.Error == "" && ra.ac.ErrorMarker != "" {
			data.Error = s.deps.Messages.Marker(tag, ra.ac.ErrorMarker)
		}
		s.render(w, r, http.StatusOK, templateLogin, data)
	})
}

// loginRetry sends the user back to the sign-in screen with an error marker, keeping the
// pending return target. Identifiers never travel in the URL.
func loginRetry(w http.ResponseWriter, r *http.Request, marker, returnTo string) {
	redirectSuccess(w, r, navigation.WithQuery(RouteLogin,
		navigation.ParamError, marker,
		navigation.ParamReturnTo, returnTo,
	).Location())
}

// LoginSubmissionHandler processes the login form submission (POST /auth/login)
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		identifier := strings.TrimSpace(r.PostFormValue(fieldIdentifier))
		secret := r.PostFormValue(fieldSecret)
		returnTo := r.PostFormValue(navigation.ParamReturnTo)

		if identifier == "" || secret == "" {
			loginRetry(w, r, "invalid_credentials", returnTo)
			return
		}

		if s.deps.Limiter != nil {
			key := authclient.NormalizeIdentifier(identifier, s.config.GetParentDomain())
			if err := s.deps.Limiter.Allow(r.Context(), key); err != nil {
				s.deps.Metrics.SigninAttempt(err)
				logger(r).Warn().Err(err).Str("identifier", key).Msg("[server Login] sign-in attempts exceeded")
				loginRetry(w, r, i18n.MarkerFor(err), returnTo)
				return
			}
		}

		ra := s.mount(w, r)
		defer ra.release()

		_, err := ra.client.SignInWithPassword(r.Context(), identifier, secret)
		s.deps.Metrics.SigninAttempt(err)
		if err != nil {
			event := logger(r).Info()
			if errors.Is(err, errors.ErrTransientNetwork) {
				event = logger(r).Warn()
			}
			event.Err(err).Str("kind", errors.Kind(err)).Msg("[server Login] sign in failed")
			loginRetry(w, r, i18n.MarkerFor(err), ra.ac.PendingReturn.Location())
			return
		}

		s.completeSignIn(w, r, ra)
	}
}

// LogoutHandler revokes the session everywhere and returns to the sign-in screen.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ra := s.mount(w, r)
		defer ra.release()

		if err := ra.client.SignOut(r.Context(), authclient.ScopeGlobal); err != nil {
			logger(r).Warn().Err(err).Msg("[server Logout] remote sign out failed")
		}
		redirectSuccess(w, r, RouteLogin)
	}
}

// OAuthStartHandler starts a federated sign-in (GET /auth/oauth/{provider}).
func (s *Server) OAuthStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")
		ra := s.mount(w, r)
		defer ra.release()

		callback := navigation.WithQuery(RouteAuthCallback, navigation.ParamReturnTo, ra.ac.PendingReturn.Location())
		authURL, err := ra.client.SignInWithOAuth(r.Context(), provider, absoluteURL(r, callback.Location()))
		if err != nil {
			logger(r).Warn().Err(err).Str("provider", provider).Msg("[server OAuth] failed to start federated sign in")
			loginRetry(w, r, i18n.MarkerFor(err), ra.ac.PendingReturn.Location())
			return
		}
		redirectSuccess(w, r, authURL)
	}
}

// OAuthCallbackHandler completes federated sign-in and password recovery links
// (GET /auth/callback).
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if providerErr := q.Get(navigation.ParamError); providerErr != "" {
			logger(r).Warn().
				Str("error", providerErr).
				Str("description", q.Get("error_description")).
				Msg("[server Callback] auth service returned an error")
			redirectWithError(w, r, RouteLogin, "generic")
			return
		}

		ra := s.mount(w, r)
		defer ra.release()

		if _, err := ra.client.ExchangeCode(r.Context(), q.Get(paramCode)); err != nil {
			s.deps.Metrics.SigninAttempt(err)
			logger(r).Warn().Err(err).Msg("[server Callback] code exchange failed")
			loginRetry(w, r, i18n.MarkerFor(err), ra.ac.PendingReturn.Location())
			return
		}
		s.deps.Metrics.SigninAttempt(nil)

		if q.Get(paramNext) == RouteResetPassword {
			ra.sync(r)
			if !ra.navigated.IsNone() && !ra.ac.IsAuthenticated() {
				navigate(w, r, ra.navigated)
				return
			}
			redirectSuccess(w, r, RouteResetPassword)
			return
		}
		s.completeSignIn(w, r, ra)
	}
}
