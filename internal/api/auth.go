package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/theirongolddev/sitebook/internal/logging"
	"github.com/theirongolddev/sitebook/internal/model"
)

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

type loginResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    *model.User `json:"user"`
}

// Login authenticates and stores the session. Failures are reported in the
// result, never as an error.
func (c *Client) Login(ctx context.Context, username, password string) model.AuthResult {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.AuthResult{Error: "Username and password are required"}
	}

	r, err := jsonRequest(http.MethodPost, "/auth/login/", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return model.AuthResult{Error: "Login failed"}
	}
	r.auth = false

	var resp loginResponse
	if err := c.do(ctx, r, &resp); err != nil {
		c.log.Info("login failed", zap.String(logging.FieldUser, username), zap.Error(err))
		return model.AuthResult{Error: errorField(err, "Login failed")}
	}
	if resp.Access == "" {
		return model.AuthResult{Error: "Login failed"}
	}

	if err := c.tokens.SetTokens(ctx, model.Tokens{Access: resp.Access, Refresh: resp.Refresh}); err != nil {
		c.log.Error("storing tokens", zap.Error(err))
		return model.AuthResult{Error: "Login failed"}
	}
	if resp.User == nil {
		resp.User = &model.User{Username: username}
	}
	if err := c.tokens.SetUser(ctx, resp.User); err != nil {
		c.log.Error("storing user", zap.Error(err))
	}
	return model.AuthResult{Success: true, User: resp.User}
}

// Logout revokes the refresh token on the server when one is stored, then
// clears the local session whatever the server said.
func (c *Client) Logout(ctx context.Context) model.AuthResult {
	var callErr error
	tok, err := c.tokens.Tokens(ctx)
	if err != nil {
		callErr = err
	} else if tok.Refresh != "" {
		r, err := jsonRequest(http.MethodPost, "/auth/logout/", map[string]string{"refresh": tok.Refresh})
		if err == nil {
			_, err = c.roundTripChecked(ctx, r)
		}
		callErr = err
	}

	if err := c.tokens.Clear(ctx); err != nil {
		callErr = errors.Join(callErr, err)
	}
	if c.cache != nil {
		c.cache.Purge()
	}

	if callErr != nil {
		return model.AuthResult{Error: callErr.Error()}
	}
	return model.AuthResult{Success: true}
}

// Register creates an account. It does not log the user in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) model.AuthResult {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return model.AuthResult{Error: "Username and password are required"}
	}
	r, err := jsonRequest(http.MethodPost, "/auth/register/", req)
	if err != nil {
		return model.AuthResult{Error: "Registration failed"}
	}
	r.auth = false

	var raw json.RawMessage
	if err := c.do(ctx, r, &raw); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Message() != "" {
			return model.AuthResult{Error: se.Message()}
		}
		return model.AuthResult{Error: "Registration failed"}
	}
	u := decodeUser(raw)
	return model.AuthResult{Success: true, User: u}
}

// Profile fetches the current user from the server and refreshes the cached
// copy.
func (c *Client) Profile(ctx context.Context) model.AuthResult {
	var u model.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/profile/", auth: true}, &u); err != nil {
		return model.AuthResult{Error: err.Error()}
	}
	if err := c.tokens.SetUser(ctx, &u); err != nil {
		c.log.Error("storing user", zap.Error(err))
	}
	return model.AuthResult{Success: true, User: &u}
}

// CurrentUser returns the cached user when a session is stored.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	tok, err := c.tokens.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	if tok.Access == "" {
		return nil, nil
	}
	return c.tokens.User(ctx)
}

// roundTripChecked sends r once, with no refresh, and maps the status.
func (c *Client) roundTripChecked(ctx context.Context, r request) ([]byte, error) {
	code, body, err := c.roundTrip(ctx, r)
	if err != nil {
		return nil, err
	}
	return body, checkStatus(code, body)
}

// errorField returns the "error" message of a failed auth response, or
// fallback.
func errorField(err error, fallback string) string {
	var se *StatusError
	if !errors.As(err, &se) {
		return fallback
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(se.Body), &body) == nil && body.Error != "" {
		return body.Error
	}
	return fallback
}

// decodeUser accepts either {"user": {...}} or a bare user object.
func decodeUser(raw json.RawMessage) *model.User {
	var wrapped struct {
		User *model.User `json:"user"`
	}
	if json.Unmarshal(raw, &wrapped) == nil && wrapped.User != nil {
		return wrapped.User
	}
	var u model.User
	if json.Unmarshal(raw, &u) == nil {
		return &u
	}
	return nil
}
