package authservice_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jrsteele09/sso-hub/authclient"
	"github.com/jrsteele09/sso-hub/authservice"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   map[string]interface{}
}

func newServer(t *testing.T, status int, response string) (*authservice.Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.Query(), header: r.Header.Clone()}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return authservice.New(srv.URL+"/auth/v1/", "anon-key", "service-key"), &calls
}

const tokenResponse = `{"access_token":"at","token_type":"bearer","expires_in":3600,"refresh_token":"rt","user":{"id":"u1","email":"anna@example.com"}}`

func TestSignInWithPassword(t *testing.T) {
	c, calls := newServer(t, http.StatusOK, tokenResponse)

	s, err := c.SignInWithPassword(context.Background(), "jdoe@staff.example.com", "482913")
	require.NoError(t, err)
	require.Equal(t, "at", s.AccessToken)
	require.Equal(t, "u1", s.Subject())
	require.NotZero(t, s.ExpiresAt)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, http.MethodPost, call.method)
	require.Equal(t, "/auth/v1/token", call.path)
	require.Equal(t, "password", call.query.Get("grant_type"))
	require.Equal(t, "anon-key", call.header.Get("apikey"))
	require.Equal(t, "Bearer anon-key", call.header.Get("Authorization"))
	require.Equal(t, "domio-sso", call.header.Get("X-Client-Info"))
	require.Equal(t, "jdoe@staff.example.com", call.body["email"])
}

func TestSignUp(t *testing.T) {
	t.Run("auto confirmed account is signed in", func(t *testing.T) {
		c, calls := newServer(t, http.StatusOK, tokenResponse)

		s, err := c.SignUp(context.Background(), "anna@example.com", "Secret123!", "")
		require.NoError(t, err)
		require.Equal(t, "at", s.AccessToken)
		require.Equal(t, "u1", s.Subject())
		require.NotZero(t, s.ExpiresAt)

		call := (*calls)[0]
		require.Equal(t, http.MethodPost, call.method)
		require.Equal(t, "/auth/v1/signup", call.path)
		require.Empty(t, call.query.Get("redirect_to"))
		require.Equal(t, "anna@example.com", call.body["email"])
		require.Equal(t, "Secret123!", call.body["password"])
	})

	t.Run("confirmation pending returns the user only", func(t *testing.T) {
		c, calls := newServer(t, http.StatusOK, `{"id":"u2","email":"new@example.com","confirmation_sent_at":"2026-10-17T10:00:00Z"}`)

		s, err := c.SignUp(context.Background(), "new@example.com", "Secret123!", "https://hub.example.com/auth/callback")
		require.NoError(t, err)
		require.Empty(t, s.AccessToken)
		require.Equal(t, "u2", s.Subject())
		require.Equal(t, "new@example.com", s.User.Email)
		require.Equal(t, "https://hub.example.com/auth/callback", (*calls)[0].query.Get("redirect_to"))
	})

	t.Run("existing account", func(t *testing.T) {
		c, _ := newServer(t, http.StatusUnprocessableEntity, `{"code":422,"msg":"User already registered"}`)

		_, err := c.SignUp(context.Background(), "anna@example.com", "Secret123!", "")
		require.ErrorIs(t, err, errors.ErrAccountExists)
	})
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"oauth style", 400, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`, errors.ErrInvalidCredentials},
		{"msg style", 400, `{"code":400,"msg":"Email not confirmed"}`, errors.ErrEmailUnconfirmed},
		{"rate limit", 429, `{"msg":"slow down"}`, errors.ErrRateLimited},
		{"refresh token", 400, `{"error_description":"Invalid Refresh Token: Already Used"}`, errors.ErrTokenInvalidOrExpired},
		{"server error without body", 502, ``, errors.ErrTransientNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newServer(t, tt.status, tt.body)
			_, err := c.SignInWithPassword(context.Background(), "a@example.com", "x")
			require.ErrorIs(t, err, tt.want)

			var pe *errors.ProviderError
			require.ErrorAs(t, err, &pe)
			require.Equal(t, tt.status, pe.Status)
		})
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := authservice.New(srv.URL, "anon-key", "")
	_, err := c.RefreshSession(context.Background(), "rt")
	require.ErrorIs(t, err, errors.ErrTransientNetwork)
}

func TestRefreshAndExchange(t *testing.T) {
	c, calls := newServer(t, http.StatusOK, tokenResponse)

	_, err := c.RefreshSession(context.Background(), "rt-old")
	require.NoError(t, err)
	_, err = c.ExchangeCode(context.Background(), "code", "verifier")
	require.NoError(t, err)

	require.Equal(t, "refresh_token", (*calls)[0].query.Get("grant_type"))
	require.Equal(t, "rt-old", (*calls)[0].body["refresh_token"])
	require.Equal(t, "pkce", (*calls)[1].query.Get("grant_type"))
	require.Equal(t, "code", (*calls)[1].body["auth_code"])
	require.Equal(t, "verifier", (*calls)[1].body["code_verifier"])
}

func TestSignOutUsesAccessToken(t *testing.T) {
	c, calls := newServer(t, http.StatusNoContent, "")

	require.NoError(t, c.SignOut(context.Background(), "user-token", authclient.ScopeGlobal))
	call := (*calls)[0]
	require.Equal(t, "/auth/v1/logout", call.path)
	require.Equal(t, "global", call.query.Get("scope"))
	require.Equal(t, "Bearer user-token", call.header.Get("Authorization"))
	require.Equal(t, "anon-key", call.header.Get("apikey"))
}

func TestUpdateUserAndRecover(t *testing.T) {
	c, calls := newServer(t, http.StatusOK, `{"id":"u1","email":"anna@example.com"}`)

	u, err := c.UpdateUser(context.Background(), "user-token", "NewSecret1!")
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)

	require.NoError(t, c.RecoverPassword(context.Background(), "anna@example.com", "https://hub.example.com/reset-password", "verifier"))

	require.Equal(t, http.MethodPut, (*calls)[0].method)
	require.Equal(t, "NewSecret1!", (*calls)[0].body["password"])
	require.Equal(t, "/auth/v1/recover", (*calls)[1].path)
	require.Equal(t, "https://hub.example.com/reset-password", (*calls)[1].query.Get("redirect_to"))
	require.Equal(t, "anna@example.com", (*calls)[1].body["email"])
	require.Equal(t, "s256", (*calls)[1].body["code_challenge_method"])
	require.NotEmpty(t, (*calls)[1].body["code_challenge"])
}

func TestAuthorizeURL(t *testing.T) {
	c := authservice.New("https://auth.example.com/auth/v1", "anon-key", "")

	raw, err := c.AuthorizeURL("google", "https://hub.example.com/auth/callback", "verifier-123")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "/auth/v1/authorize", u.Path)
	require.Equal(t, "google", u.Query().Get("provider"))
	require.Equal(t, "https://hub.example.com/auth/callback", u.Query().Get("redirect_to"))
	require.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	require.NotEmpty(t, u.Query().Get("code_challenge"))

	_, err = c.AuthorizeURL("", "", "v")
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestAdminOperationsUseServiceKey(t *testing.T) {
	c, calls := newServer(t, http.StatusOK, `{"id":"u9","email":"jan@staff.example.com"}`)

	u, err := c.CreateUser(context.Background(), authservice.CreateUserParams{
		Email:        "jan@staff.example.com",
		Password:     "482913",
		EmailConfirm: true,
	})
	require.NoError(t, err)
	require.Equal(t, "u9", u.ID)
	require.NoError(t, c.DeleteUser(context.Background(), "u9"))

	require.Equal(t, "service-key", (*calls)[0].header.Get("apikey"))
	require.Equal(t, "Bearer service-key", (*calls)[0].header.Get("Authorization"))
	require.Equal(t, true, (*calls)[0].body["email_confirm"])
	require.Equal(t, http.MethodDelete, (*calls)[1].method)
	require.Equal(t, "/auth/v1/admin/users/u9", (*calls)[1].path)

	noKey := authservice.New("http://127.0.0.1:1", "anon-key", "")
	_, err = noKey.CreateUser(context.Background(), authservice.CreateUserParams{Email: "x@example.com"})
	require.ErrorIs(t, err, errors.ErrUnauthorized)
}
