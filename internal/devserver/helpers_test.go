package devserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.MinCost
	}

	s, err := New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return s, ts
}

// session is a browser-like client: it keeps cookies and remembers the
// CSRF and bearer tokens it was given.
type session struct {
	t      *testing.T
	base   string
	client *http.Client
	csrf   string
	token  string
}

func newSession(t *testing.T, ts *httptest.Server) *session {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &session{t: t, base: ts.URL, client: &http.Client{Jar: jar}}
}

type result struct {
	status int
	header http.Header
	body   []byte
}

func (r result) get(path string) gjson.Result {
	return gjson.GetBytes(r.body, path)
}

func (s *session) send(req *http.Request) result {
	s.t.Helper()

	if s.csrf != "" {
		req.Header.Set(CSRFHeaderName, s.csrf)
	}

	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)

	return result{status: resp.StatusCode, header: resp.Header, body: body}
}

func (s *session) do(method, path string, body any) result {
	s.t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)

		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.base+path, r)
	require.NoError(s.t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return s.send(req)
}

func (s *session) fetchCSRF() {
	s.t.Helper()

	res := s.do(http.MethodGet, "/api/auth/csrf-token", nil)
	require.Equal(s.t, http.StatusOK, res.status)

	s.csrf = res.get("csrfToken").String()
	require.NotEmpty(s.t, s.csrf)
}

func (s *session) login(email, password string) result {
	s.t.Helper()

	if s.csrf == "" {
		s.fetchCSRF()
	}

	res := s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password})
	if res.status == http.StatusOK {
		s.token = res.get("data.token").String()
	}

	return res
}

func (s *session) loginStudent() {
	s.t.Helper()

	res := s.login("student@phozos.dev", "student-pass")
	require.Equal(s.t, http.StatusOK, res.status, string(res.body))
}
