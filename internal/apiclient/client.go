// Package apiclient is the request pipeline every Phozos API call goes
// through. It attaches credentials, keeps the CSRF token ready for
// mutating requests, classifies failures into *apierr.Error and retries
// once when the server rejects a stale CSRF token.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phozos/phozos-client/internal/apierr"
	"github.com/phozos/phozos-client/internal/csrf"
	"github.com/phozos/phozos-client/internal/tokenstore"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// defaultTimeout bounds one attempt when Options.Timeout is unset.
	defaultTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads. Exports can be large,
	// so this is well above typical JSON payloads.
	maxResponseBytes = 16 << 20

	// DefaultCSRFEndpoint issues CSRF tokens.
	DefaultCSRFEndpoint = "/api/auth/csrf-token"

	// DefaultCSRFHeader carries the CSRF token on mutating requests.
	DefaultCSRFHeader = "x-csrf-token"

	// RequestIDHeader correlates a request with server logs.
	RequestIDHeader = "X-Request-ID"
)

// Options configures a Client.
type Options struct {
	// Origin is the document origin. Relative URLs are resolved against
	// it unless APIBase is set.
	Origin string
	// APIBase is the API prefix for split frontend/backend deployments.
	APIBase string

	Store *tokenstore.Store
	// Jar holds cookies for credentialed requests. When nil a private
	// jar is used and no cookie is visible to the token store.
	Jar http.CookieJar
	// HTTPClient supplies the transport. Its Jar is ignored.
	HTTPClient *http.Client

	CSRFEndpoint string
	CSRFHeader   string
	CSRFCookie   string
	// StalePolicy decides when to refresh and retry. Nil selects
	// apierr.DefaultStalePolicy.
	StalePolicy *apierr.StalePolicy

	// Timeout bounds each attempt, including the CSRF refresh.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client sends requests through the pipeline. It is safe for concurrent use.
type Client struct {
	base       string
	store      *tokenstore.Store
	guard      *csrf.Guard
	withCreds  *http.Client
	anonymous  *http.Client
	csrfHeader string
	stale      apierr.StalePolicy
	timeout    time.Duration
	logger     *slog.Logger
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, errors.New("apiclient: token store is required")
	}

	base := strings.TrimRight(opts.APIBase, "/")
	if base == "" {
		base = strings.TrimRight(opts.Origin, "/")
	}

	if !isAbsolute(base) {
		return nil, fmt.Errorf("apiclient: base URL %q must be absolute", base)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	jar := opts.Jar
	if jar == nil {
		j, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}

		jar = j
	}

	proto := opts.HTTPClient
	if proto == nil {
		proto = &http.Client{CheckRedirect: sameHostRedirectPolicy}
	}

	withCreds := *proto
	withCreds.Jar = jar

	anonymous := *proto
	anonymous.Jar = nil

	stale := apierr.DefaultStalePolicy
	if opts.StalePolicy != nil {
		stale = *opts.StalePolicy
	}

	c := &Client{
		base:       base,
		store:      opts.Store,
		withCreds:  &withCreds,
		anonymous:  &anonymous,
		csrfHeader: opts.CSRFHeader,
		stale:      stale,
		timeout:    timeout,
		logger:     logger,
	}

	if c.csrfHeader == "" {
		c.csrfHeader = DefaultCSRFHeader
	}

	endpoint := opts.CSRFEndpoint
	if endpoint == "" {
		endpoint = DefaultCSRFEndpoint
	}

	c.guard = csrf.NewGuard(csrf.Options{
		Store:      opts.Store,
		HTTPClient: c.withCreds,
		Endpoint:   c.resolve(endpoint),
		CookieName: opts.CSRFCookie,
		Timeout:    timeout,
		Logger:     logger,
	})

	return c, nil
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the bearer token
// and CSRF header from leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// Tokens returns the token store the client reads credentials from.
func (c *Client) Tokens() *tokenstore.Store {
	return c.store
}

// Timeout returns the bound applied to each attempt.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// RefreshCSRF fetches a new CSRF token regardless of the one held.
func (c *Client) RefreshCSRF(ctx context.Context) error {
	return c.guard.ForceRefresh(ctx)
}

// Do sends req and returns the decoded response. Every failure is an
// *apierr.Error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	req.Method = strings.ToUpper(req.Method)

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, &apierr.Error{Kind: apierr.KindUnknown, Message: "encoding request body", Err: err}
	}

	return c.do(ctx, req, body)
}

func (c *Client) do(ctx context.Context, req Request, body payload) (*Response, error) {
	resp, sent, err := c.attempt(ctx, req, body)
	if err == nil || req.retried || !c.stale.IsStale(err) {
		return resp, err
	}

	c.logger.Info("csrf token rejected, refreshing and retrying",
		slog.String("method", req.Method),
		slog.String("url", req.URL),
	)

	if _, refreshErr := c.guard.Replace(ctx, sent); refreshErr != nil {
		c.logger.Warn("csrf refresh before retry failed",
			slog.String("error", refreshErr.Error()),
		)

		return nil, err
	}

	req.retried = true

	return c.do(ctx, req, body)
}

// attempt sends req once. It also returns the CSRF token it sent, empty
// when none was attached.
func (c *Client) attempt(ctx context.Context, req Request, body payload) (*Response, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	needsCSRF := isMutating(req.Method) && !req.SkipCSRF

	header := make(http.Header)
	if body.contentType != "" {
		header.Set("Content-Type", body.contentType)
	}

	for k, vs := range req.Headers {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	if header.Get(RequestIDHeader) == "" {
		header.Set(RequestIDHeader, uuid.NewString())
	}

	if token := c.store.AuthToken(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	if needsCSRF {
		token, err := c.guard.Token(ctx)
		if err != nil {
			return nil, "", apierr.CSRFNotReady(err)
		}

		if token == "" {
			return nil, "", apierr.CSRFNotReady(nil)
		}

		header.Set(c.csrfHeader, token)
	}

	sent := header.Get(c.csrfHeader)

	var reader io.Reader
	if body.present {
		reader = bytes.NewReader(body.data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.resolve(req.URL), reader)
	if err != nil {
		return nil, sent, &apierr.Error{Kind: apierr.KindUnknown, Message: "creating request", Err: err}
	}

	httpReq.Header = header

	client := c.anonymous
	if needsCSRF || req.IncludeCredentials {
		client = c.withCreds
	}

	start := time.Now()

	resp, err := client.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed",
			slog.String("method", req.Method),
			slog.String("url", httpReq.URL.Redacted()),
			slog.String("request_id", header.Get(RequestIDHeader)),
			slog.String("error", err.Error()),
		)

		return nil, sent, apierr.Network(fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, sent, apierr.Network(fmt.Errorf("reading response: %w", err))
	}

	c.logger.Debug("request completed",
		slog.String("method", req.Method),
		slog.String("url", httpReq.URL.Redacted()),
		slog.String("request_id", header.Get(RequestIDHeader)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if len(raw) > maxResponseBytes {
		return nil, sent, apierr.Parse(resp.StatusCode, fmt.Errorf("response exceeds %d bytes", maxResponseBytes))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, sent, apierr.FromResponse(resp.StatusCode, raw)
	}

	decoded, err := decodeResponse(resp.StatusCode, resp.Header, raw)

	return decoded, sent, err
}

// resolve prefixes relative targets with the base URL. Absolute URLs
// pass through untouched.
func (c *Client) resolve(target string) string {
	if isAbsolute(target) {
		return target
	}

	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}

	return c.base + target
}

func isAbsolute(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}

	return false
}
