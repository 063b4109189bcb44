package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/sso-hub/credentials"
	"github.com/jrsteele09/sso-hub/guard"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/internal/i18n"
	"github.com/jrsteele09/sso-hub/navigation"
)

type changePasswordData struct {
	pageData
	MustReset bool
	Kind      string
	Done      bool
}

func secretKindFor(ac guard.AuthContext) credentials.SecretKind {
	if ac.Decision.Profile.IsSimplified() {
		return credentials.KindPIN
	}
	return credentials.KindPassword
}

// ChangePasswordGetHandler renders the change-password screen. Subjects that must reset land
// here from every other screen.
func (s *Server) ChangePasswordGetHandler() http.HandlerFunc {
	return s.screen(func(w http.ResponseWriter, r *http.Request, ra *requestAuth) {
		tag := s.languageFrom(r)
		data := changePasswordData{
			pageData:  s.page(r, tag, "change.title"),
			MustReset: ra.ac.State == guard.AuthenticatedMustReset,
			Kind:      string(secretKindFor(ra.ac)),
			Done:      isTruthy(r.URL.Query().Get(paramDone)),
		}
		data.ReturnTo = ra.ac.PendingReturn.Location()
		s.render(w, r, http.StatusOK, templateChangePassword, data)
	})
}

func (s *Server) ChangePasswordPostHandler() http.HandlerFunc {
	return s.screen(func(w http.ResponseWriter, r *http.Request, ra *requestAuth) {
		kind := credentials.ParseKind(r.PostFormValue(fieldKind))
		if r.PostFormValue(fieldKind) == "" {
			kind = secretKindFor(ra.ac)
		}
		email := ""
		if ra.ac.Session != nil {
			email = ra.ac.Session.User.Email
		}

		err := credentials.Change(r.Context(), ra.client, s.deps.Directory, credentials.ChangeRequest{
			SubjectID: ra.ac.Subject,
			Email:     email,
			Kind:      kind,
			Current:   r.PostFormValue(fieldCurrent),
			New:       r.PostFormValue(fieldNew),
			Repeat:    r.PostFormValue(fieldRepeat),
		})
		if err != nil {
			logger(r).Info().Err(err).Str("subject", ra.ac.Subject).Str("kind", errors.Kind(err)).
				Msg("[server ChangePassword] credential change rejected")
			redirectSuccess(w, r, navigation.WithQuery(RouteChangePassword,
				navigation.ParamError, i18n.MarkerFor(err),
				navigation.ParamReturnTo, ra.ac.PendingReturn.Location(),
			).Location())
			return
		}

		wasReset := ra.ac.State == guard.AuthenticatedMustReset
		if !wasReset && ra.ac.PendingReturn.IsNone() {
			redirectSuccess(w, r, navigation.WithQuery(RouteChangePassword, paramDone, "1").Location())
			return
		}
		s.completeSignIn(w, r, ra)
	})
}

type forgotPasswordData struct {
	pageData
	Sent bool
}

// ForgotPasswordGetHandler renders the forgot-password page
func (s *Server) ForgotPasswordGetHandler() http.HandlerFunc {
	return s.screen(func(w http.ResponseWriter, r *http.Request, _ *requestAuth) {
		tag := s.languageFrom(r)
		s.render(w, r, http.StatusOK, templateForgotPassword, forgotPasswordData{
			pageData: s.page(r, tag, "forgot.title"),
			Sent:     isTruthy(r.URL.Query().Get(paramSent)),
		})
	})
}

// ForgotPasswordPostHandler mails a recovery link. Whether the account exists is never
// revealed; staff logins are told to contact their supervisor.
func (s *Server) ForgotPasswordPostHandler() http.HandlerFunc {
	return s.screen(func(w http.ResponseWriter, r *http.Request, ra *requestAuth) {
		identifier := strings.TrimSpace(r.PostFormValue(fieldEmail))
		callback := navigation.WithQuery(RouteAuthCallback, paramNext, RouteResetPassword)

		err := ra.client.RequestPasswordReset(r.Context(), identifier, absoluteURL(r, callback.Location()))
		switch {
		case errors.Is(err, errors.ErrStaffResetNotAllowed), errors.Is(err, errors.ErrRateLimited),
			errors.Is(err, errors.ErrTransientNetwork):
			redirectWithError(w, r, RouteForgotPassword, i18n.MarkerFor(err))
			return
		case err != nil:
			logger(r).Warn().Err(err).Msg("[server ForgotPassword] recovery request failed")
		}
		redirectSuccess(w, r, navigation.WithQuery(RouteForgotPassword, paramSent, "1").Location())
	})
}

// ResetPasswordGetHandler renders the new-password form of a recovery session.
func (s *Server) ResetPasswordGetHandler() http.HandlerFunc {
	return s.screen(func(w http.ResponseWriter, r *http.Request, _ *requestAuth) {
		tag := s.languageFrom(r)
		s.render(w, r, http.StatusOK, templateResetPassword, s.page(r, tag, "reset.title"))
	})
}

// ResetPasswordPostHandler sets the new secret without asking for the current one; the
// recovery link already proved ownership.
func (s *Server) ResetPasswordPostHandler() http.HandlerFunc {
	return s.screen(func(w http.ResponseWriter, r *http.Request, ra *requestAuth) {
		secret := r.PostFormValue(fieldNew)
		err := credentials.ValidateRecovery(secret, r.PostFormValue(fieldRepeat))
		if err == nil {
			err = ra.client.UpdateCredentials(r.Context(), secret)
		}
		if err != nil {
			logger(r).Info().Err(err).Str("subject", ra.ac.Subject).Msg("[server ResetPassword] reset rejected")
			redirectWithError(w, r, RouteResetPassword, i18n.MarkerFor(err))
			return
		}

		if err := s.deps.Directory.ClearMustReset(r.Context(), ra.ac.Subject); err != nil && !errors.Is(err, errors.ErrNotFound) {
			logger(r).Err(err).Str("subject", ra.ac.Subject).Msg("[server ResetPassword] failed to clear must reset flag")
			redirectWithError(w, r, RouteResetPassword, i18n.MarkerFor(errors.ErrTransientNetwork))
			return
		}
		s.completeSignIn(w, r, ra)
	})
}
