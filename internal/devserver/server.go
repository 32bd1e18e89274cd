// Package devserver is an in-memory double of the Phozos API for local
// development and end-to-end tests. It issues CSRF tokens paired with a
// readable _csrf cookie, signs HS256 bearer tokens, and answers with the
// same envelopes and error codes as the production backend.
// All state is in-memory and lost on restart.
package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phozos/phozos-client/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// CSRFCookieName pairs the issued token with the browser session.
	CSRFCookieName = "_csrf"

	// CSRFHeaderName carries the token on mutating requests.
	CSRFHeaderName = "x-csrf-token"

	defaultTokenTTL = 24 * time.Hour
	defaultCSRFTTL  = time.Hour

	// csrfTokenBytes is hex-encoded to twice this length.
	csrfTokenBytes = 16

	// maxRequestBody caps JSON request bodies.
	maxRequestBody = 1 << 20

	// maxUploadBytes caps document uploads.
	maxUploadBytes = 10 << 20
)

// SeedUser is an account created when the server starts.
type SeedUser struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// Config configures a Server.
type Config struct {
	// JWTSecret signs bearer tokens. Empty generates a random secret, so
	// tokens do not survive a restart.
	JWTSecret []byte
	TokenTTL  time.Duration
	CSRFTTL   time.Duration
	// Users replaces DefaultUsers when non-nil.
	Users []SeedUser
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// LegacyCSRFErrors rejects bad CSRF tokens with a bare 403 message
	// and no error code.
	LegacyCSRFErrors bool
	Logger           *slog.Logger
}

type account struct {
	user models.User
	hash []byte
}

// Server holds the API state.
type Server struct {
	secret     []byte
	tokenTTL   time.Duration
	csrfTTL    time.Duration
	legacyCSRF bool
	logger     *slog.Logger
	validate   *validator.Validate
	limiter    *loginRateLimiter
	// dummyHash keeps unknown-email logins as slow as wrong passwords.
	dummyHash []byte

	mu           sync.RWMutex
	accounts     map[string]*account // lower-cased email -> account
	csrf         map[string]time.Time
	revoked      map[string]time.Time // token id -> expiry
	universities []models.University
	posts        []models.ForumPost
	documents    map[string][]models.Document // user id -> documents
	applications []models.Application
}

// DefaultUsers returns the accounts seeded when Config.Users is nil.
func DefaultUsers() []SeedUser {
	return []SeedUser{
		{Email: "student@phozos.dev", Password: "student-pass", FirstName: "Amara", LastName: "Okafor", Role: models.RoleStudent},
		{Email: "counselor@phozos.dev", Password: "counselor-pass", FirstName: "Jonas", LastName: "Weber", Role: models.RoleCounselor},
	}
}

// New creates a Server seeded with cfg.Users and sample data.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	secret := cfg.JWTSecret
	if len(secret) == 0 {
		secret = []byte(randomHex(32))
	}

	s := &Server{
		secret:     secret,
		tokenTTL:   cfg.TokenTTL,
		csrfTTL:    cfg.CSRFTTL,
		legacyCSRF: cfg.LegacyCSRFErrors,
		logger:     logger,
		validate:   newValidator(),
		limiter:    newLoginRateLimiter(time.Now),
		accounts:   make(map[string]*account),
		csrf:       make(map[string]time.Time),
		revoked:    make(map[string]time.Time),
		documents:  make(map[string][]models.Document),
	}

	if s.tokenTTL <= 0 {
		s.tokenTTL = defaultTokenTTL
	}

	if s.csrfTTL <= 0 {
		s.csrfTTL = defaultCSRFTTL
	}

	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	users := cfg.Users
	if users == nil {
		users = DefaultUsers()
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(randomHex(8)), cost)
	if err != nil {
		return nil, fmt.Errorf("hashing placeholder password: %w", err)
	}

	s.dummyHash = dummy

	for _, u := range users {
		if err := s.addUser(u, cost); err != nil {
			return nil, err
		}
	}

	s.seed()

	return s, nil
}

func (s *Server) addUser(u SeedUser, cost int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
	if err != nil {
		return fmt.Errorf("hashing password for %s: %w", u.Email, err)
	}

	role := u.Role
	if role == "" {
		role = models.RoleStudent
	}

	s.accounts[strings.ToLower(u.Email)] = &account{
		user: models.User{
			ID:        uuid.NewString(),
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Role:      role,
		},
		hash: hash,
	}

	return nil
}

// Handler returns the API mux wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/auth/csrf-token", s.handleCSRFToken)
	mux.Handle("POST /api/auth/login", s.requireCSRF(http.HandlerFunc(s.handleLogin)))
	mux.Handle("POST /api/auth/logout", s.requireCSRF(s.requireAuth(http.HandlerFunc(s.handleLogout))))
	mux.Handle("GET /api/auth/me", s.requireAuth(http.HandlerFunc(s.handleMe)))

	mux.HandleFunc("GET /api/universities", s.handleUniversities)
	mux.HandleFunc("GET /api/forum/posts", s.handleListPosts)
	mux.Handle("POST /api/forum/posts", s.requireCSRF(s.requireAuth(http.HandlerFunc(s.handleCreatePost))))

	mux.Handle("GET /api/applications/export", s.requireAuth(http.HandlerFunc(s.handleExportApplications)))

	mux.Handle("GET /api/documents", s.requireAuth(http.HandlerFunc(s.handleListDocuments)))
	mux.Handle("POST /api/documents", s.requireCSRF(s.requireAuth(http.HandlerFunc(s.handleUploadDocument))))

	return s.logRequests(mux)
}

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if id := r.Header.Get("X-Request-ID"); id != "" {
			w.Header().Set("X-Request-ID", id)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", r.Header.Get("X-Request-ID")),
		)
	})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}

		return name
	})

	return v
}

// randomHex generates a cryptographically random hex string of the given byte length.
func randomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	return hex.EncodeToString(b)
}
