package server

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/sso-hub/credentials"
	"github.com/jrsteele09/sso-hub/directory"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/internal/i18n"
	"github.com/jrsteele09/sso-hub/navigation"
)

// termsVersion is the version of the Terms of Service accepted at sign-up.
const termsVersion = "1.0"

type signupData struct {
	pageData
	Providers []string
	Sent      bool
}

// SignupGetHandler renders the signup page
func (s *Server) SignupGetHandler() http.HandlerFunc {
	return s.screen(func(w http.ResponseWriter, r *http.Request, ra *requestAuth) {
		tag := s.languageFrom(r)
		data := signupData{
			pageData:  s.page(r, tag, "signup.title"),
			Providers: oauthProviders,
			Sent:      isTruthy(r.URL.Query().Get(paramSent)),
		}
		data.ReturnTo = ra.ac.PendingReturn.Location()
		s.render(w, r, http.StatusOK, templateSignup, data)
	})
}

func signupRetry(w http.ResponseWriter, r *http.Request, marker, returnTo string) {
	redirectSuccess(w, r, navigation.WithQuery(RouteSignup,
		navigation.ParamError, marker,
		navigation.ParamReturnTo, returnTo,
	).Location())
}

// SignupPostHandler creates an email account, records the consent on the profile and signs the
// new user in. When the Auth Service confirms emails first, the page asks the user to check their inbox.
func (s *Server) SignupPostHandler() http.HandlerFunc {
	return s.screen(func(w http.ResponseWriter, r *http.Request, ra *requestAuth) {
		email := strings.TrimSpace(r.PostFormValue(fieldEmail))
		secret := r.PostFormValue(fieldNew)
		returnTo := ra.ac.PendingReturn.Location()

		err := credentials.ValidateRecovery(secret, r.PostFormValue(fieldRepeat))
		if err == nil && !isTruthy(r.PostFormValue(fieldTerms)) {
			err = errors.ErrTermsNotAccepted
		}
		if err != nil {
			signupRetry(w, r, i18n.MarkerFor(err), returnTo)
			return
		}

		callback := navigation.WithQuery(RouteAuthCallback, navigation.ParamReturnTo, returnTo)
		session, err := ra.client.SignUp(r.Context(), email, secret, absoluteURL(r, callback.Location()))
		if err != nil {
			event := logger(r).Info()
			if errors.Is(err, errors.ErrTransientNetwork) {
				event = logger(r).Warn()
			}
			event.Err(err).Str("kind", errors.Kind(err)).Msg("[server Signup] sign up failed")
			signupRetry(w, r, i18n.MarkerFor(err), returnTo)
			return
		}

		accepted := time.Now().UTC()
		profile := &directory.Profile{
			ID:               session.Subject(),
			Email:            session.User.Email,
			AccountType:      directory.AccountNormal,
			IsActive:         true,
			AcceptedTermsAt:  &accepted,
			TermsVersion:     termsVersion,
			MarketingConsent: isTruthy(r.PostFormValue(fieldMarketing)),
			IPAddress:        clientIP(r),
		}
		if profile.Email == "" {
			profile.Email = strings.ToLower(email)
		}
		// The account already exists; a failed consent write does not undo it.
		if err := s.deps.Directory.UpsertProfile(r.Context(), profile); err != nil {
			logger(r).Err(err).Str("subject", profile.ID).Msg("[server Signup] failed to record consent")
		}

		if session.AccessToken == "" {
			redirectSuccess(w, r, navigation.WithQuery(RouteSignup, paramSent, "1").Location())
			return
		}
		s.completeSignIn(w, r, ra)
	})
}

// clientIP is the first X-Forwarded-For hop, falling back to the connection address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
