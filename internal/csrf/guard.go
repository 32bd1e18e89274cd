// Package csrf keeps the client's CSRF token in step with the server
// before mutating requests are sent.
package csrf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/phozos/phozos-client/internal/tokenstore"
	"github.com/tidwall/gjson"
)

var (
	// ErrFetchFailed means the token endpoint could not be reached or
	// answered with a non-2xx status.
	ErrFetchFailed = errors.New("could not obtain CSRF token")

	// ErrTokenMissing means the endpoint answered 2xx without a token.
	ErrTokenMissing = errors.New("CSRF token missing from response")
)

const (
	// DefaultCookieName is the cookie the server mirrors the token into.
	DefaultCookieName = "_csrf"

	defaultTimeout = 30 * time.Second

	// maxTokenResponseBytes caps the token endpoint body.
	maxTokenResponseBytes = 64 * 1024
)

// Options configures a Guard.
type Options struct {
	Store *tokenstore.Store
	// HTTPClient must carry the cookie jar so the endpoint can set the
	// paired cookie.
	HTTPClient *http.Client
	// Endpoint is the absolute URL of the token-issuing endpoint.
	Endpoint   string
	CookieName string
	// Timeout bounds one refresh.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Guard ensures a usable CSRF token exists. Concurrent callers that need
// a refresh share one network call.
type Guard struct {
	store      *tokenstore.Store
	client     *http.Client
	endpoint   string
	cookieName string
	timeout    time.Duration
	logger     *slog.Logger

	// mu makes "is a refresh running, and if not do we need one" a
	// single decision. pending is non-nil from the moment a refresh is
	// started until its result has been stored.
	mu      sync.Mutex
	pending *refreshCall
}

// refreshCall is one refresh episode shared by every caller that joins it.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// NewGuard creates a Guard.
func NewGuard(opts Options) *Guard {
	g := &Guard{
		store:      opts.Store,
		client:     opts.HTTPClient,
		endpoint:   opts.Endpoint,
		cookieName: opts.CookieName,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}

	if g.client == nil {
		g.client = http.DefaultClient
	}

	if g.cookieName == "" {
		g.cookieName = DefaultCookieName
	}

	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}

	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}

	return g
}

// EnsureReady returns once a CSRF token is held. It joins a refresh that
// is already running, otherwise it starts one when there is no token or
// the visible cookie disagrees with it. An unreadable or empty cookie
// never triggers a refresh on its own.
func (g *Guard) EnsureReady(ctx context.Context) error {
	_, err := g.Token(ctx)
	return err
}

// Token is EnsureReady returning the token it settled on. Requests send
// this value instead of reading the store again, which a concurrent
// refresh may already have moved on.
func (g *Guard) Token(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.pending == nil && !g.needsRefresh() {
		token := g.store.CSRFToken()
		g.mu.Unlock()

		return token, nil
	}

	c := g.joinLocked(ctx)
	g.mu.Unlock()

	return c.wait(ctx)
}

// ForceRefresh fetches a new token, joining a refresh that is already
// running. The held token stays in use until the new one is stored.
func (g *Guard) ForceRefresh(ctx context.Context) error {
	g.mu.Lock()
	c := g.joinLocked(ctx)
	g.mu.Unlock()

	_, err := c.wait(ctx)

	return err
}

// Replace refreshes after the server rejected the token sent as
// rejected. A running refresh is joined. When the held token has already
// moved past rejected, it is returned without another network call, so
// many callers rejected with the same token cost one refresh.
func (g *Guard) Replace(ctx context.Context, rejected string) (string, error) {
	g.mu.Lock()
	if g.pending == nil && rejected != "" {
		if token := g.store.CSRFToken(); token != "" && token != rejected {
			g.mu.Unlock()
			return token, nil
		}
	}

	c := g.joinLocked(ctx)
	g.mu.Unlock()

	return c.wait(ctx)
}

func (g *Guard) needsRefresh() bool {
	token := g.store.CSRFToken()
	if token == "" {
		return true
	}

	cookie, ok := g.store.CookieValue(g.cookieName)

	return ok && cookie != "" && cookie != token
}

// joinLocked returns the running refresh, starting one if needed. g.mu
// must be held. The refresh is detached from the caller's cancellation
// so one caller giving up does not fail the others.
func (g *Guard) joinLocked(ctx context.Context) *refreshCall {
	if g.pending != nil {
		return g.pending
	}

	c := &refreshCall{done: make(chan struct{})}
	g.pending = c
	detached := context.WithoutCancel(ctx)

	go func() {
		c.token, c.err = g.refresh(detached)

		g.mu.Lock()
		g.pending = nil
		g.mu.Unlock()

		close(c.done)
	}()

	return c
}

func (c *refreshCall) wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return c.token, c.err
	}
}

func (g *Guard) refresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	g.logger.Debug("refreshing csrf token", slog.String("endpoint", g.endpoint))

	token, err := g.fetch(ctx)
	if err != nil {
		g.logger.Warn("csrf token refresh failed", slog.String("error", err.Error()))
		return "", err
	}

	g.store.SetCSRFToken(token)

	if cookie, ok := g.store.CookieValue(g.cookieName); ok && cookie != "" && cookie != token {
		g.logger.Warn("csrf cookie does not match issued token",
			slog.String("cookie", g.cookieName),
		)
	}

	return token, nil
}

func (g *Guard) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %w", ErrFetchFailed, err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", ErrFetchFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	token := extractToken(body)
	if token == "" {
		return "", ErrTokenMissing
	}

	return token, nil
}

// extractToken accepts {"csrfToken": "..."} and {"data": {"csrfToken": "..."}}.
func extractToken(body []byte) string {
	for _, path := range []string{"csrfToken", "data.csrfToken"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}

	return ""
}
