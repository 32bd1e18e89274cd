package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phozos/phozos-client/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer is the iss claim of every bearer token.
const TokenIssuer = "phozos-devserver"

// Claims are the bearer token claims.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

type contextKey int

const ctxClaims contextKey = iota

// requestClaims returns the authenticated claims from the context.
func requestClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(ctxClaims).(*Claims)
	return c
}

// remoteIP extracts the IP address from r.RemoteAddr, stripping the
// port. Falls back to the raw value if parsing fails.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func (s *Server) issueToken(u models.User) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
		Email: u.Email,
		Role:  u.Role,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return signed, nil
}

var errTokenRevoked = errors.New("token revoked")

func (s *Server) parseToken(raw string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	_, revoked := s.revoked[claims.ID]
	s.mu.RUnlock()

	if revoked {
		return nil, errTokenRevoked
	}

	return claims, nil
}

// requireAuth validates the bearer token and stores its claims in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, apiError{Code: codeAuthRequired, Message: "Authentication required"})
			return
		}

		claims, err := s.parseToken(raw)
		if err != nil {
			s.logger.Debug("bearer token rejected",
				slog.String("path", r.URL.Path),
				slog.String("ip", remoteIP(r)),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusUnauthorized, apiError{Code: codeAuthInvalid, Message: "Invalid or expired token"})

			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxClaims, claims)))
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)

	if wait := s.limiter.check(ip); wait > 0 {
		s.logger.Warn("login rate limited", slog.String("ip", ip))
		writeError(w, http.StatusTooManyRequests, apiError{
			Code:    codeRateLimited,
			Message: "Too many failed login attempts",
			Hint:    fmt.Sprintf("Try again in %d minutes.", int(math.Ceil(wait.Minutes()))),
		})

		return
	}

	var in models.LoginInput
	if !s.decodeBody(w, r, &in) {
		return
	}

	s.mu.RLock()
	acct := s.accounts[strings.ToLower(in.Email)]
	s.mu.RUnlock()

	hash := s.dummyHash
	if acct != nil {
		hash = acct.hash
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(in.Password)); err != nil || acct == nil {
		s.logger.Warn("login failed", slog.String("email", in.Email), slog.String("ip", ip))
		s.limiter.record(ip)
		writeError(w, http.StatusUnauthorized, apiError{Code: codeBadLogin, Message: "Invalid email or password"})

		return
	}

	token, err := s.issueToken(acct.user)
	if err != nil {
		s.logger.Error("issuing token", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, apiError{Code: "INTERNAL_ERROR", Message: "could not issue token"})

		return
	}

	s.limiter.reset(ip)
	s.logger.Info("login successful", slog.String("email", acct.user.Email))

	writeData(w, http.StatusOK, models.LoginResult{Token: token, User: acct.user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r.Context())

	s.mu.Lock()
	s.revoked[claims.ID] = claims.ExpiresAt.Time
	s.mu.Unlock()

	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userByID(requestClaims(r.Context()).Subject)
	if !ok {
		writeError(w, http.StatusUnauthorized, apiError{Code: codeAuthInvalid, Message: "Account no longer exists"})
		return
	}

	writeData(w, http.StatusOK, u)
}

func (s *Server) userByID(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.user.ID == id {
			return a.user, true
		}
	}

	return models.User{}, false
}
