package authservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/sso-hub/authclient"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// ClientInfo identifies the hub to the Auth Service.
const ClientInfo = "domio-sso"

// Client talks to a GoTrue compatible Auth Service over REST.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	http       *http.Client
	now        func() time.Time
}

var _ authclient.Backend = (*Client)(nil)

// New creates a client for baseURL, e.g. https://project.supabase.co/auth/v1.
// serviceKey may be empty when admin operations are not used.
func New(baseURL, anonKey, serviceKey string) *Client {
	return NewWithHTTPClient(baseURL, anonKey, serviceKey, &http.Client{
		Timeout:   15 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
}

func NewWithHTTPClient(baseURL, anonKey, serviceKey string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		serviceKey: serviceKey,
		http:       httpClient,
		now:        time.Now,
	}
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (b errorBody) text() string {
	for _, s := range []string{b.ErrorDescription, b.Msg, b.Message, b.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	// bearer overrides the anon key in the Authorization header.
	bearer string
	admin  bool
}

func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	key := c.anonKey
	if req.admin {
		if c.serviceKey == "" {
			return errors.Wrapf(errors.ErrUnauthorized, "service key not configured")
		}
		key = c.serviceKey
	}
	bearer := key
	if req.bearer != "" {
		bearer = req.bearer
	}
	httpReq.Header.Set("apikey", key)
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	httpReq.Header.Set("X-Client-Info", ClientInfo)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &errors.ProviderError{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &errors.ProviderError{Message: err.Error()}
	}

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		msg := eb.text()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &errors.ProviderError{Message: msg, Status: resp.StatusCode}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &errors.ProviderError{Message: "decode response: " + err.Error(), Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) token(ctx context.Context, grantType string, body interface{}) (*authclient.Session, error) {
	var s authclient.Session
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/token",
		query:  url.Values{"grant_type": {grantType}},
		body:   body,
	}, &s)
	if err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, &errors.ProviderError{Message: "token response without access token", Status: http.StatusBadGateway}
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	return &s, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*authclient.Session, error) {
	return c.token(ctx, "password", map[string]string{"email": email, "password": password})
}

// SignUp registers an email account. When the Auth Service confirms emails first the
// returned session carries the new user but no tokens.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) (*authclient.Session, error) {
	var resp struct {
		authclient.Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/signup",
		query:  query,
		body:   map[string]string{"email": email, "password": password},
	}, &resp)
	if err != nil {
		return nil, err
	}

	s := resp.Session
	if s.AccessToken == "" {
		if resp.ID == "" {
			return nil, &errors.ProviderError{Message: "signup response without user", Status: http.StatusBadGateway}
		}
		return &authclient.Session{User: authclient.User{ID: resp.ID, Email: resp.Email}}, nil
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	return &s, nil
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*authclient.Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *Client) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*authclient.Session, error) {
	return c.token(ctx, "pkce", map[string]string{"auth_code": authCode, "code_verifier": codeVerifier})
}

// AuthorizeURL builds the federated sign-in URL with an S256 code challenge.
func (c *Client) AuthorizeURL(provider, redirectTo, codeVerifier string) (string, error) {
	if provider == "" {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "provider is required")
	}
	cfg := oauth2.Config{
		Endpoint: oauth2.Endpoint{AuthURL: c.baseURL + "/authorize"},
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(codeVerifier),
		oauth2.SetAuthURLParam("provider", provider),
	}
	if redirectTo != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_to", redirectTo))
	}
	return cfg.AuthCodeURL("", opts...), nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string, scope authclient.SignOutScope) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/logout",
		query:  url.Values{"scope": {string(scope)}},
		bearer: accessToken,
	}, nil)
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*authclient.User, error) {
	var u authclient.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/user", bearer: accessToken}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) UpdateUser(ctx context.Context, accessToken, password string) (*authclient.User, error) {
	var u authclient.User
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/user",
		body:   map[string]string{"password": password},
		bearer: accessToken,
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// RecoverPassword asks the Auth Service to mail a recovery link. A non-empty codeVerifier
// makes the link return a PKCE auth code instead of tokens in the fragment.
func (c *Client) RecoverPassword(ctx context.Context, email, redirectTo, codeVerifier string) error {
	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	body := map[string]string{"email": email}
	if codeVerifier != "" {
		body["code_challenge"] = oauth2.S256ChallengeFromVerifier(codeVerifier)
		body["code_challenge_method"] = "s256"
	}
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/recover",
		query:  q,
		body:   body,
	}, nil)
}
