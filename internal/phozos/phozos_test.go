package phozos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phozos/phozos-client/internal/apiclient"
	"github.com/phozos/phozos-client/internal/apierr"
	"github.com/phozos/phozos-client/internal/devserver"
	"github.com/phozos/phozos-client/internal/models"
	"github.com/phozos/phozos-client/internal/query"
	"github.com/phozos/phozos-client/internal/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []query.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n query.Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []query.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]query.Notification(nil), r.notes...)
}

type fixture struct {
	svc      *Service
	tokens   *tokenstore.Store
	server   *devserver.Server
	notifier *recordingNotifier
	hits     map[string]*atomic.Int32
}

func (f *fixture) count(path string) int32 {
	return f.hits[path].Load()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv, err := devserver.New(devserver.Config{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	f := &fixture{
		server:   srv,
		notifier: &recordingNotifier{},
		hits: map[string]*atomic.Int32{
			"/api/universities": {},
			"/api/forum/posts":  {},
		},
	}

	handler := srv.Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := f.hits[r.URL.Path]; ok && r.Method == http.MethodGet {
			c.Add(1)
		}

		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	jar, err := tokenstore.NewDocumentJar(ts.URL)
	require.NoError(t, err)

	f.tokens = tokenstore.New(tokenstore.Options{Cookies: jar})

	api, err := apiclient.New(apiclient.Options{
		Origin:  ts.URL,
		Store:   f.tokens,
		Jar:     jar,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	qc := query.New(api, query.Options{
		StaleTime: time.Minute,
		RetryBase: time.Millisecond,
		Notifier:  f.notifier,
	})
	f.svc = New(qc)

	return f
}

func (f *fixture) login(t *testing.T) models.LoginResult {
	t.Helper()

	res, err := f.svc.Login(t.Context(), models.LoginInput{Email: "student@phozos.dev", Password: "student-pass"})
	require.NoError(t, err)

	return res
}

func TestLogin_StoresToken(t *testing.T) {
	f := newFixture(t)

	res := f.login(t)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, res.Token, f.tokens.AuthToken())
	assert.Equal(t, models.RoleStudent, res.User.Role)

	me, err := f.svc.Me(t.Context())
	require.NoError(t, err)
	assert.Equal(t, res.User, me)
}

func TestLogin_SwitchingUsersDropsCachedReads(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	me, err := f.svc.Me(t.Context())
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, me.Role)

	_, err = f.svc.Login(t.Context(), models.LoginInput{Email: "counselor@phozos.dev", Password: "counselor-pass"})
	require.NoError(t, err)

	me, err = f.svc.Me(t.Context())
	require.NoError(t, err)
	assert.Equal(t, models.RoleCounselor, me.Role)
}

func TestLogin_FailureIsReturnedNotNotified(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(t.Context(), models.LoginInput{Email: "student@phozos.dev", Password: "wrong"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrAuth)
	assert.Empty(t, f.tokens.AuthToken())
	assert.Empty(t, f.notifier.all())
}

func TestLogin_ValidationField(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(t.Context(), models.LoginInput{Email: "nobody", Password: "x"})
	require.ErrorIs(t, err, apierr.ErrValidation)
	assert.Equal(t, "email: must be a valid email address", query.UserMessage(err))
}

func TestMe_WithoutSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Me(t.Context())
	assert.ErrorIs(t, err, apierr.ErrAuth)
	assert.Equal(t, query.SessionExpiredMessage, query.UserMessage(err))
}

func TestUniversities_SearchAndCache(t *testing.T) {
	f := newFixture(t)

	unis, err := f.svc.Universities(t.Context(), "zürich")
	require.NoError(t, err)
	require.Len(t, unis, 1)
	assert.Equal(t, "ETH Zürich", unis[0].Name)

	_, err = f.svc.Universities(t.Context(), "zürich")
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.count("/api/universities"), "second read served from cache")

	all, err := f.svc.Universities(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.EqualValues(t, 2, f.count("/api/universities"))
}

func TestCreateForumPost_InvalidatesList(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	before, err := f.svc.ForumPosts(t.Context(), "")
	require.NoError(t, err)

	post, err := f.svc.CreateForumPost(t.Context(), models.CreateForumPostInput{
		Title:   "Blocked account for Germany",
		Content: "Which bank did you use?",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, post.ID)

	after, err := f.svc.ForumPosts(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, after, len(before)+1)
	assert.EqualValues(t, 2, f.count("/api/forum/posts"))
}

func TestCreateForumPost_FailureNotifiesOnce(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateForumPost(t.Context(), models.CreateForumPostInput{Title: "t", Content: "c"})
	require.ErrorIs(t, err, apierr.ErrAuth)

	notes := f.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, "Session expired", notes[0].Title)
}

func TestCreateForumPost_SurvivesCSRFRotation(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.server.RotateCSRF()

	_, err := f.svc.CreateForumPost(t.Context(), models.CreateForumPostInput{Title: "t", Content: "c"})
	require.NoError(t, err)
	assert.Empty(t, f.notifier.all())
}

func TestExportApplications(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	csv, err := f.svc.ExportApplications(t.Context())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(csv, "id,university,program,status,submitted_at\n"))
	assert.Contains(t, csv, `"MSc Informatics, Data Engineering"`)
}

func TestUploadDocument(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	docs, err := f.svc.Documents(t.Context())
	require.NoError(t, err)
	assert.Empty(t, docs)

	doc, err := f.svc.UploadDocument(t.Context(), "passport.png", strings.NewReader("not really a png"))
	require.NoError(t, err)
	assert.Equal(t, "passport.png", doc.Name)
	assert.EqualValues(t, 16, doc.Size)

	docs, err = f.svc.Documents(t.Context())
	require.NoError(t, err)
	require.Len(t, docs, 1, "upload invalidates the cached list")
	assert.Equal(t, doc.ID, docs[0].ID)
}

func TestLogout_ClearsSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	require.NoError(t, f.svc.Logout(t.Context()))
	assert.Empty(t, f.tokens.AuthToken())

	_, err := f.svc.Me(t.Context())
	assert.ErrorIs(t, err, apierr.ErrAuth, "cached user was dropped")
}

func TestLogout_WithoutSessionStillClears(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.SetAuthToken("stale-token"))

	require.NoError(t, f.svc.Logout(t.Context()))
	assert.Empty(t, f.tokens.AuthToken())
}
