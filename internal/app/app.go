// Package app assembles the client from configuration: token
// persistence, the cookie jar, the request pipeline, the query adapters
// and the typed Phozos bindings.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phozos/phozos-client/internal/apiclient"
	"github.com/phozos/phozos-client/internal/config"
	"github.com/phozos/phozos-client/internal/phozos"
	"github.com/phozos/phozos-client/internal/query"
	"github.com/phozos/phozos-client/internal/state"
	"github.com/phozos/phozos-client/internal/tokenstore"
)

// Options overrides parts of the assembly.
type Options struct {
	Logger     *slog.Logger
	Notifier   query.Notifier
	HTTPClient *http.Client
}

// App is a fully wired client.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Tokens *tokenstore.Store
	API    *apiclient.Client
	Query  *query.Client
	Phozos *phozos.Service

	closers []func() error
}

// New wires an App. Call Close to release the token storage.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	a := &App{Config: cfg, Logger: logger}

	persister, closer, err := newPersister(cfg)
	if err != nil {
		return nil, err
	}

	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	jar, err := tokenstore.NewDocumentJar(cfg.Origin)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	a.Tokens = tokenstore.New(tokenstore.Options{
		Persister: persister,
		Cookies:   jar,
		Logger:    logger.With(slog.String("component", "tokenstore")),
	})

	stale := cfg.StalePolicy()

	a.API, err = apiclient.New(apiclient.Options{
		Origin:       cfg.Origin,
		APIBase:      cfg.APIBase,
		Store:        a.Tokens,
		Jar:          jar,
		HTTPClient:   opts.HTTPClient,
		CSRFEndpoint: cfg.CSRFEndpoint,
		CSRFHeader:   cfg.CSRFHeader,
		CSRFCookie:   cfg.CSRFCookie,
		StalePolicy:  &stale,
		Timeout:      cfg.RequestTimeout,
		Logger:       logger.With(slog.String("component", "apiclient")),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	// A configured zero means no retries, not the query default.
	retries := cfg.QueryRetries
	if retries == 0 {
		retries = -1
	}

	a.Query = query.New(a.API, query.Options{
		Retries:   retries,
		RetryBase: cfg.QueryRetryBase,
		RetryMax:  cfg.QueryRetryMax,
		StaleTime: cfg.QueryStaleTime,
		Notifier:  opts.Notifier,
		Logger:    logger.With(slog.String("component", "query")),
	})

	a.Phozos = phozos.New(a.Query)

	return a, nil
}

// Close releases the token storage.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}

	a.closers = nil

	return errors.Join(errs...)
}

// newPersister opens the configured token storage. The returned closer
// may be nil.
func newPersister(cfg *config.Config) (tokenstore.Persister, func() error, error) {
	switch cfg.TokenStorage {
	case config.StorageBolt:
		s, err := state.LoadAt(cfg.StatePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening state: %w", err)
		}

		return s, s.Close, nil
	case config.StorageKeyring:
		return tokenstore.KeyringPersister{Service: cfg.KeyringService}, nil, nil
	case config.StorageMemory:
		return tokenstore.NewMemoryPersister(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown token storage %q", cfg.TokenStorage)
	}
}
