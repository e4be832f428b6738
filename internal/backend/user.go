package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/memeindex/memeindex/internal/metrics"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// IsRegistered looks up the registration record keyed by an address or a
// launch identity id.
func (c *Client) IsRegistered(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, apperr.WithDetails(apperr.ErrInvalidInput, map[string]string{"key": "required"})
	}

	resp, err := c.do(ctx, metrics.EndpointUser, http.MethodGet, "/api/user/is-registered/"+url.PathEscape(key), nil)
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		return false, statusError(resp)
	}

	var out isRegisteredResponse
	if err := decode(resp, &out); err != nil {
		return false, err
	}
	return out.IsRegistered, nil
}

// Register creates the registration record. The returned result is always
// populated; its Err is set when the user is not registered afterwards.
func (c *Client) Register(ctx context.Context, req RegisterRequest) RegisterResult {
	resp, err := c.do(ctx, metrics.EndpointUser, http.MethodPost, "/api/user/register", req)
	if err != nil {
		return ClassifyRegister(0, "", err)
	}

	res := ClassifyRegister(resp.Status, resp.Message, nil)
	if res.Outcome == Registered {
		var out registerResponse
		if decode(resp, &out) == nil {
			res.User = out.User
		}
	}
	return res
}
