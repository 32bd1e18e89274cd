package e2e_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phozos/phozos-client/internal/app"
	"github.com/phozos/phozos-client/internal/config"
	"github.com/phozos/phozos-client/internal/devserver"
	"github.com/phozos/phozos-client/internal/models"
	"github.com/phozos/phozos-client/internal/query"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	studentEmail    = "student@phozos.dev"
	studentPassword = "student-pass"
)

type harnessOptions struct {
	legacyCSRF bool
	// httpOnlyCSRF marks the _csrf cookie HttpOnly so the client cannot
	// read it.
	httpOnlyCSRF bool
	// rotateBeforePost invalidates CSRF tokens before every forum post.
	rotateBeforePost bool
}

// harness is a devserver behind an httptest server plus counters for
// the requests the tests care about.
type harness struct {
	t         *testing.T
	URL       string
	Server    *devserver.Server
	StateDir  string
	CSRFCalls atomic.Int32
	notifier  *recordingNotifier
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	srv, err := devserver.New(devserver.Config{
		BcryptCost:       bcrypt.MinCost,
		LegacyCSRFErrors: opts.legacyCSRF,
	})
	require.NoError(t, err)

	h := &harness{t: t, Server: srv, StateDir: t.TempDir(), notifier: &recordingNotifier{}}
	api := srv.Handler()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/auth/csrf-token":
			h.CSRFCalls.Add(1)

			if opts.httpOnlyCSRF {
				w = httpOnlyCookies{w}
			}
		case r.URL.Path == "/api/forum/posts" && r.Method == http.MethodPost && opts.rotateBeforePost:
			srv.RotateCSRF()
		}

		api.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	h.URL = ts.URL

	return h
}

// httpOnlyCookies adds the HttpOnly attribute to every cookie set.
type httpOnlyCookies struct {
	http.ResponseWriter
}

func (w httpOnlyCookies) WriteHeader(status int) {
	cookies := w.Header().Values("Set-Cookie")
	w.Header().Del("Set-Cookie")

	for _, c := range cookies {
		if !strings.Contains(strings.ToLower(c), "httponly") {
			c += "; HttpOnly"
		}

		w.Header().Add("Set-Cookie", c)
	}

	w.ResponseWriter.WriteHeader(status)
}

func (h *harness) config() *config.Config {
	return &config.Config{
		Origin:                h.URL,
		TokenStorage:          config.StorageBolt,
		StatePath:             filepath.Join(h.StateDir, "state.db"),
		RequestTimeout:        5 * time.Second,
		CSRFEndpoint:          "/api/auth/csrf-token",
		CSRFHeader:            "x-csrf-token",
		CSRFCookie:            "_csrf",
		CSRFStaleCodePrefix:   "CSRF_",
		CSRFStaleMessageMatch: "csrf",
		QueryRetries:          2,
		QueryRetryBase:        time.Millisecond,
		QueryRetryMax:         5 * time.Millisecond,
		QueryStaleTime:        time.Minute,
	}
}

// newApp wires a client process. Apps created by one harness share the
// token state file but not cookies.
func (h *harness) newApp() *app.App {
	h.t.Helper()

	a, err := app.New(h.config(), app.Options{Notifier: h.notifier})
	require.NoError(h.t, err)
	h.t.Cleanup(func() { a.Close() })

	return a
}

func (h *harness) login(a *app.App) {
	h.t.Helper()

	_, err := a.Phozos.Login(h.t.Context(), models.LoginInput{Email: studentEmail, Password: studentPassword})
	require.NoError(h.t, err)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []query.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n query.Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.notes)
}
