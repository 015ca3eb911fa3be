// Package api is a client for the construction backend REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theirongolddev/sitebook/internal/cache"
	"github.com/theirongolddev/sitebook/internal/logging"
)

const (
	// DefaultBaseURL is the backend served by the development stack.
	DefaultBaseURL = "http://localhost:8000/api/v1"

	defaultTimeout = 15 * time.Second
	maxBodySize    = 8 << 20 // 8 MB
	userAgent      = "sitebook/1.0"
	requestIDKey   = "X-Request-ID"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	// Tokens persists the session. Defaults to an in-memory store.
	Tokens TokenStore
	// Cache, when set, serves repeated reads of reference lists (suppliers,
	// floors, budget categories, estimator rates). Any write empties it.
	Cache  *cache.LRU[[]byte]
	Logger *zap.Logger
}

// Client talks to the backend. It attaches the bearer token to every
// authenticated request and refreshes it once on a 401.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	tokens  TokenStore
	cache   *cache.LRU[[]byte]
	log     *zap.Logger

	refreshMu sync.Mutex
}

// New creates a client.
func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	return &Client{
		baseURL: base,
		timeout: timeout,
		http:    hc,
		tokens:  tokens,
		cache:   opts.Cache,
		log:     logging.OrNop(opts.Logger).Named(logging.ComponentAPI),
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Tokens returns the client's token store.
func (c *Client) Tokens() TokenStore {
	return c.tokens
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	auth        bool
}

func jsonRequest(method, path string, payload any) (request, error) {
	r := request{method: method, path: path, auth: true}
	if payload == nil {
		return r, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return r, fmt.Errorf("api: encoding %s %s: %w", method, path, err)
	}
	r.body = b
	r.contentType = "application/json"
	return r, nil
}

func (r request) cacheKey() string {
	if len(r.query) == 0 {
		return r.path
	}
	return r.path + "?" + r.query.Encode()
}

// do sends r and decodes the JSON response into out (unless out is nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	body, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("api: decoding %s %s: %w", r.method, r.path, err)
	}
	return nil
}

// send performs r, refreshing the access token and retrying once on a 401.
func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	cacheable := c.cache != nil && r.method == http.MethodGet && r.auth && referencePath(r.path)
	if cacheable {
		if body, ok := c.cache.Get(r.cacheKey()); ok {
			return body, nil
		}
	}

	code, body, err := c.roundTrip(ctx, r)
	if err != nil {
		return nil, err
	}
	if code == http.StatusUnauthorized && r.auth {
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
		code, body, err = c.roundTrip(ctx, r)
		if err != nil {
			return nil, err
		}
	}
	if err := checkStatus(code, body); err != nil {
		return nil, err
	}

	// Writes have server-side effects on other collections (a material
	// transaction moves stock), so no cached read survives one.
	if c.cache != nil && r.method != http.MethodGet {
		c.cache.Purge()
	}
	if cacheable {
		c.cache.Set(r.cacheKey(), body)
	}
	return body, nil
}

// roundTrip performs a single HTTP exchange.
func (c *Client) roundTrip(ctx context.Context, r request) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var reader io.Reader
	if r.body != nil {
		reader = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("api: creating request: %w", err)
	}

	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(requestIDKey, reqID)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.auth {
		tok, err := c.tokens.Tokens(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("api: reading tokens: %w", err)
		}
		if tok.Access != "" {
			req.Header.Set("Authorization", "Bearer "+tok.Access)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("api: %s %s: %w", r.method, r.path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("api: reading response: %w", err)
	}

	c.log.Debug("request",
		zap.String(logging.FieldMethod, r.method),
		zap.String(logging.FieldPath, r.path),
		zap.Int(logging.FieldStatusCode, resp.StatusCode),
		zap.String(logging.FieldRequestID, reqID),
		zap.Duration(logging.FieldDuration, time.Since(start)),
	)
	return resp.StatusCode, body, nil
}

// refresh exchanges the refresh token for a new access token. On any failure
// the stored session is cleared and ErrSessionExpired is returned.
func (c *Client) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	tok, err := c.tokens.Tokens(ctx)
	if err != nil {
		return fmt.Errorf("api: reading tokens: %w", err)
	}
	if tok.Refresh == "" {
		c.expire(ctx, errors.New("no refresh token"))
		return ErrSessionExpired
	}

	r, err := jsonRequest(http.MethodPost, "/auth/token/refresh/", map[string]string{"refresh": tok.Refresh})
	if err != nil {
		return err
	}
	r.auth = false

	code, body, err := c.roundTrip(ctx, r)
	if err == nil {
		err = checkStatus(code, body)
	}
	var resp struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err == nil {
		if uerr := json.Unmarshal(body, &resp); uerr != nil || resp.Access == "" {
			err = errors.New("api: refresh response carried no access token")
		}
	}
	if err != nil {
		c.expire(ctx, err)
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	next := tok
	next.Access = resp.Access
	if resp.Refresh != "" {
		next.Refresh = resp.Refresh
	}
	if err := c.tokens.SetTokens(ctx, next); err != nil {
		return fmt.Errorf("api: storing refreshed token: %w", err)
	}
	c.log.Debug("access token refreshed", zap.String(logging.FieldOperation, logging.OpTokenRefresh))
	return nil
}

func (c *Client) expire(ctx context.Context, cause error) {
	c.log.Warn("session expired", zap.Error(cause))
	if err := c.tokens.Clear(ctx); err != nil {
		c.log.Error("clearing tokens", zap.Error(err))
	}
	if c.cache != nil {
		c.cache.Purge()
	}
}

// referenceResources change rarely and only through this client's own writes.
var referenceResources = []Resource{Suppliers, Floors, BudgetCategories, EstimatorRates}

// referencePath reports whether reads of path may be served from the cache.
// Live collections (tasks, materials, expenses...) and the dashboard are
// always fetched.
func referencePath(path string) bool {
	for _, res := range referenceResources {
		if strings.HasPrefix(path, res.Path()) {
			return true
		}
	}
	return false
}
