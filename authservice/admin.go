package authservice

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/sso-hub/authclient"
)

type CreateUserParams struct {
	Email        string                 `json:"email"`
	Password     string                 `json:"password"`
	EmailConfirm bool                   `json:"email_confirm"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// CreateUser creates an account with the service key.
func (c *Client) CreateUser(ctx context.Context, params CreateUserParams) (*authclient.User, error) {
	var u authclient.User
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/admin/users",
		body:   params,
		admin:  true,
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/admin/users/" + url.PathEscape(userID),
		admin:  true,
	}, nil)
}
