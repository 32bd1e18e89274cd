package devserver

import (
	"log/slog"
	"net/http"
	"time"
)

type csrfTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// handleCSRFToken issues a token and sets the matching _csrf cookie.
// The cookie is readable by script so clients can detect rotation.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token := randomHex(csrfTokenBytes)
	expires := time.Now().Add(s.csrfTTL)

	s.mu.Lock()
	s.pruneCSRFLocked()
	s.csrf[token] = expires
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, csrfTokenResponse{CSRFToken: token})
}

func (s *Server) pruneCSRFLocked() {
	now := time.Now()
	for k, exp := range s.csrf {
		if now.After(exp) {
			delete(s.csrf, k)
		}
	}
}

// RotateCSRF invalidates every issued CSRF token, as a backend restart
// or secret rotation would.
func (s *Server) RotateCSRF() {
	s.mu.Lock()
	s.csrf = make(map[string]time.Time)
	s.mu.Unlock()

	s.logger.Info("csrf tokens rotated")
}

// requireCSRF rejects requests whose x-csrf-token header is unknown,
// expired, or does not match the _csrf cookie.
func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(CSRFHeaderName)

		cookie, err := r.Cookie(CSRFCookieName)
		if header == "" || err != nil || cookie.Value != header || !s.validCSRF(header) {
			s.logger.Debug("csrf rejected",
				slog.String("path", r.URL.Path),
				slog.Bool("header", header != ""),
				slog.Bool("cookie", err == nil),
			)
			s.rejectCSRF(w)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) validCSRF(token string) bool {
	s.mu.RLock()
	exp, ok := s.csrf[token]
	s.mu.RUnlock()

	return ok && time.Now().Before(exp)
}

func (s *Server) rejectCSRF(w http.ResponseWriter) {
	if s.legacyCSRF {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "invalid csrf token"})
		return
	}

	writeError(w, http.StatusForbidden, apiError{
		Code:    codeCSRFInvalid,
		Message: "Invalid or expired CSRF token",
	})
}
