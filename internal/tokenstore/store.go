// Package tokenstore holds the two credentials every API call depends
// on: the bearer token, mirrored to durable storage, and the CSRF token,
// held in memory only.
package tokenstore

//go:generate mockgen -source=store.go -destination=mock_store_test.go -package=tokenstore

import (
	"errors"
	"log/slog"
	"sync"
)

// AuthTokenKey is the durable storage key for the bearer token.
const AuthTokenKey = "phozos_auth_token"

// ErrNotFound is returned by a Persister when the key has no value.
var ErrNotFound = errors.New("not found")

// Persister is durable key/value storage for the bearer token.
type Persister interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// CookieSource exposes the cookies script could read for the document
// origin. HttpOnly cookies are not visible.
type CookieSource interface {
	CookieValue(name string) (string, bool)
}

// Options configures a Store. A nil Persister keeps the bearer token in
// memory only. A nil Cookies means there is no document to read.
type Options struct {
	Persister Persister
	Cookies   CookieSource
	Logger    *slog.Logger
}

// Store is the single source of truth for the bearer and CSRF tokens.
// It is safe for concurrent use.
type Store struct {
	persister Persister
	cookies   CookieSource
	logger    *slog.Logger

	mu        sync.RWMutex
	authToken string
	// cleared is set by an explicit clear and stops AuthToken from
	// reading the persister until a new token is set.
	cleared   bool
	csrfToken string
}

// New creates a Store.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Store{
		persister: opts.Persister,
		cookies:   opts.Cookies,
		logger:    logger,
	}
}

// SetAuthToken replaces the bearer token. A non-empty token is persisted
// and a persistence failure is returned. An empty token clears memory and
// removes the durable entry; a failed removal is logged and ignored.
func (s *Store) SetAuthToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		s.authToken = ""
		s.cleared = true

		if s.persister == nil {
			return nil
		}

		if err := s.persister.Delete(AuthTokenKey); err != nil {
			s.logger.Warn("failed to remove stored auth token",
				slog.String("error", err.Error()),
			)
		}

		return nil
	}

	s.authToken = token
	s.cleared = false

	if s.persister == nil {
		return nil
	}

	return s.persister.Set(AuthTokenKey, token)
}

// AuthToken returns the bearer token, or "" when none is held. When
// memory is empty it reads the persister once and caches a hit.
func (s *Store) AuthToken() string {
	s.mu.RLock()
	token, cleared := s.authToken, s.cleared
	s.mu.RUnlock()

	if token != "" || cleared || s.persister == nil {
		return token
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.authToken != "" || s.cleared {
		return s.authToken
	}

	stored, err := s.persister.Get(AuthTokenKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Debug("reading stored auth token",
				slog.String("error", err.Error()),
			)
		}

		return ""
	}

	s.authToken = stored

	return stored
}

// SetCSRFToken replaces the in-memory CSRF token.
func (s *Store) SetCSRFToken(token string) {
	s.mu.Lock()
	s.csrfToken = token
	s.mu.Unlock()
}

// CSRFToken returns the in-memory CSRF token, or "".
func (s *Store) CSRFToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.csrfToken
}

// CookieValue returns the named cookie as script on the document origin
// would see it. The second result is false when the cookie is absent or
// there is no document.
func (s *Store) CookieValue(name string) (string, bool) {
	if s.cookies == nil {
		return "", false
	}

	return s.cookies.CookieValue(name)
}
