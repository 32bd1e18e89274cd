// Package query binds the request pipeline to a small read cache with
// retry, and to mutations that report failures to the user.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/phozos/phozos-client/internal/apiclient"
	"github.com/phozos/phozos-client/internal/apierr"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRetries   = 3
	DefaultRetryBase = time.Second
	DefaultRetryMax  = 30 * time.Second

	// defaultAttemptTimeout is assumed per attempt when there is no
	// pipeline client to ask.
	defaultAttemptTimeout = 30 * time.Second
)

// Options configures a Client. Zero retry fields select the defaults;
// set Retries to a negative value to disable retries.
type Options struct {
	Retries   int
	RetryBase time.Duration
	RetryMax  time.Duration
	// StaleTime is how long a cached read is served without refetching.
	// Zero disables caching.
	StaleTime time.Duration
	// Notifier receives mutation failures that have no OnError handler.
	Notifier Notifier
	Logger   *slog.Logger
}

type entry struct {
	value     any
	fetchedAt time.Time
}

// Client caches reads by key and deduplicates concurrent fetches.
type Client struct {
	api       *apiclient.Client
	retries   int
	retryBase time.Duration
	retryMax  time.Duration
	staleTime time.Duration
	notifier  Notifier
	logger    *slog.Logger

	// budget bounds a shared fetch: every attempt timing out plus every
	// backoff delay at its cap.
	budget time.Duration

	mu    sync.Mutex
	cache map[string]entry
	// gen counts invalidations. A fetch started before one must not
	// store its result.
	gen   uint64
	group singleflight.Group
}

// New creates a Client over api.
func New(api *apiclient.Client, opts Options) *Client {
	qc := &Client{
		api:       api,
		retries:   opts.Retries,
		retryBase: opts.RetryBase,
		retryMax:  opts.RetryMax,
		staleTime: opts.StaleTime,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
		cache:     make(map[string]entry),
	}

	switch {
	case qc.retries == 0:
		qc.retries = DefaultRetries
	case qc.retries < 0:
		qc.retries = 0
	}

	if qc.retryBase <= 0 {
		qc.retryBase = DefaultRetryBase
	}

	if qc.retryMax <= 0 {
		qc.retryMax = DefaultRetryMax
	}

	if qc.logger == nil {
		qc.logger = slog.New(slog.DiscardHandler)
	}

	if qc.notifier == nil {
		qc.notifier = LogNotifier{Logger: qc.logger}
	}

	attempt := defaultAttemptTimeout
	if api != nil {
		attempt = api.Timeout()
	}

	qc.budget = time.Duration(qc.retries+1)*attempt + time.Duration(qc.retries)*qc.retryMax

	return qc
}

// API returns the underlying pipeline client.
func (qc *Client) API() *apiclient.Client {
	return qc.api
}

// Invalidate drops every cached key that starts with one of prefixes.
func (qc *Client) Invalidate(prefixes ...string) {
	if len(prefixes) == 0 {
		return
	}

	qc.mu.Lock()
	defer qc.mu.Unlock()

	qc.gen++

	for key := range qc.cache {
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				delete(qc.cache, key)
				break
			}
		}
	}
}

func (qc *Client) lookup(key string) (any, bool) {
	if qc.staleTime <= 0 {
		return nil, false
	}

	qc.mu.Lock()
	defer qc.mu.Unlock()

	e, ok := qc.cache[key]
	if !ok || time.Since(e.fetchedAt) > qc.staleTime {
		return nil, false
	}

	return e.value, true
}

func (qc *Client) generation() uint64 {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	return qc.gen
}

// remember caches value unless the cache was invalidated after gen.
func (qc *Client) remember(key string, value any, gen uint64) {
	if qc.staleTime <= 0 {
		return
	}

	qc.mu.Lock()
	defer qc.mu.Unlock()

	if qc.gen != gen {
		return
	}

	qc.cache[key] = entry{value: value, fetchedAt: time.Now()}
}

// ShouldRetry reports whether a failed read is worth retrying: server
// errors and network failures are, everything the client got wrong is not.
func ShouldRetry(err error) bool {
	ae, ok := apierr.As(err)
	if !ok {
		return false
	}

	if ae.Kind == apierr.KindNetwork {
		return true
	}

	return ae.Status >= 500
}

// newBackOff returns base, 2*base, 4*base, ... capped at max, without jitter.
func (qc *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = qc.retryBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = qc.retryMax
	b.Reset()

	return b
}

// Fetch returns the cached value for key while it is fresh, otherwise
// runs fetch with retry. Concurrent fetches of one key share a call. The
// shared call is detached from the caller that started it and bounded by
// the retry budget, so one caller cancelling does not fail the others;
// each caller still returns when its own ctx is done.
func Fetch[T any](ctx context.Context, qc *Client, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	if v, ok := qc.lookup(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}

	detached := context.WithoutCancel(ctx)

	ch := qc.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(detached, qc.budget)
		defer cancel()

		gen := qc.generation()

		res, err := retry(ctx, qc, key, fetch)
		if err != nil {
			return nil, err
		}

		qc.remember(key, res, gen)

		return res, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}

	if res.Err != nil {
		return zero, res.Err
	}

	t, ok := res.Val.(T)
	if !ok {
		return zero, fmt.Errorf("query %q: shared result is %T, not %T", key, res.Val, zero)
	}

	if res.Shared {
		qc.logger.Debug("query result shared", slog.String("key", key))
	}

	return t, nil
}

func retry[T any](ctx context.Context, qc *Client, key string, fetch func(context.Context) (T, error)) (T, error) {
	op := func() (T, error) {
		v, err := fetch(ctx)
		if err != nil && !ShouldRetry(err) {
			return v, backoff.Permanent(err)
		}

		return v, err
	}

	notify := func(err error, next time.Duration) {
		qc.logger.Debug("retrying query",
			slog.String("key", key),
			slog.Duration("delay", next),
			slog.String("error", err.Error()),
		)
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(qc.newBackOff()),
		backoff.WithMaxTries(uint(qc.retries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)

	// The last attempt can end the loop before the permanent marker
	// is stripped.
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}

	return v, err
}

// Get fetches req through the cache under key.
func Get[T any](ctx context.Context, qc *Client, key string, req apiclient.Request, opts ...apiclient.CallOption) (T, error) {
	return Fetch(ctx, qc, key, func(ctx context.Context) (T, error) {
		return apiclient.Call[T](ctx, qc.api, req, opts...)
	})
}

// MutationOptions configures Mutate.
type MutationOptions struct {
	// OnError replaces the default notification.
	OnError func(error)
	// Invalidate lists cache key prefixes dropped after success.
	Invalidate []string
}

// Mutate sends req once. A failure is reported through OnError when set,
// otherwise as exactly one notification. Success invalidates the listed
// cache prefixes.
func Mutate[T any](ctx context.Context, qc *Client, req apiclient.Request, mo MutationOptions, opts ...apiclient.CallOption) (T, error) {
	v, err := apiclient.Call[T](ctx, qc.api, req, opts...)
	if err != nil {
		if mo.OnError != nil {
			mo.OnError(err)
		} else {
			qc.notifier.Notify(ctx, NotificationFor(err))
		}

		return v, err
	}

	qc.Invalidate(mo.Invalidate...)

	return v, nil
}
