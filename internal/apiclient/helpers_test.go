package apiclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phozos/phozos-client/internal/tokenstore"
	"github.com/stretchr/testify/require"
)

// fakeAPI issues CSRF tokens tok-1, tok-2, ... (mirrored into the _csrf
// cookie) and routes everything else to handler.
type fakeAPI struct {
	*httptest.Server

	csrfCalls  atomic.Int32
	csrfStatus atomic.Int32

	mu      sync.Mutex
	handler http.HandlerFunc
	seen    []*http.Request
	bodies  [][]byte
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.csrfStatus.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/csrf-token", func(w http.ResponseWriter, r *http.Request) {
		n := f.csrfCalls.Add(1)
		if s := int(f.csrfStatus.Load()); s != http.StatusOK {
			w.WriteHeader(s)
			return
		}

		token := fmt.Sprintf("tok-%d", n)
		http.SetCookie(w, &http.Cookie{Name: "_csrf", Value: token, Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"csrfToken":%q}`, token)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		f.mu.Lock()
		f.seen = append(f.seen, r)
		f.bodies = append(f.bodies, body)
		h := f.handler
		f.mu.Unlock()

		if h == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAPI) handle(h http.HandlerFunc) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeAPI) requests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.seen...)
}

func (f *fakeAPI) requestBodies() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.bodies...)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

type testClient struct {
	*Client
	store *tokenstore.Store
	jar   *tokenstore.DocumentJar
}

func newTestClient(t *testing.T, f *fakeAPI, mutate ...func(*Options)) testClient {
	t.Helper()
	jar, err := tokenstore.NewDocumentJar(f.URL)
	require.NoError(t, err)

	store := tokenstore.New(tokenstore.Options{Cookies: jar})
	opts := Options{
		Origin:  f.URL,
		Store:   store,
		Jar:     jar,
		Timeout: 2 * time.Second,
	}
	for _, m := range mutate {
		m(&opts)
	}

	c, err := New(opts)
	require.NoError(t, err)
	return testClient{Client: c, store: store, jar: jar}
}
