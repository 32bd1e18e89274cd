// Package phozos binds the Phozos endpoints the CLI uses to typed calls
// through the query and mutation adapters.
package phozos

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/phozos/phozos-client/internal/apiclient"
	"github.com/phozos/phozos-client/internal/apierr"
	"github.com/phozos/phozos-client/internal/models"
	"github.com/phozos/phozos-client/internal/query"
)

// Cache key prefixes. Mutations invalidate by prefix.
const (
	KeyMe           = "auth/me"
	KeyUniversities = "universities"
	KeyForum        = "forum/"
	KeyDocuments    = "documents"
)

// Service is the typed Phozos API.
type Service struct {
	qc *query.Client
}

// New creates a Service over qc.
func New(qc *query.Client) *Service {
	return &Service{qc: qc}
}

func (s *Service) api() *apiclient.Client {
	return s.qc.API()
}

// Login exchanges credentials for a bearer token and stores it. Every
// cached read belongs to the previous session and is dropped. Failures
// are only returned, since the caller shows them next to the prompt.
func (s *Service) Login(ctx context.Context, in models.LoginInput) (models.LoginResult, error) {
	res, err := query.Mutate[models.LoginResult](ctx, s.qc, apiclient.Request{
		Method: http.MethodPost,
		URL:    "/api/auth/login",
		Body:   in,
	}, query.MutationOptions{
		OnError: func(error) {},
	}, apiclient.WithSchema(apiclient.Tags))
	if err != nil {
		return res, err
	}

	if err := s.api().Tokens().SetAuthToken(res.Token); err != nil {
		return res, fmt.Errorf("saving session: %w", err)
	}

	s.qc.Invalidate("")

	return res, nil
}

// Logout ends the session on the server and always clears the local
// token. A server-side auth failure means the session was already gone
// and is not reported.
func (s *Service) Logout(ctx context.Context) error {
	_, err := apiclient.Call[any](ctx, s.api(), apiclient.Request{
		Method: http.MethodPost,
		URL:    "/api/auth/logout",
	})

	_ = s.api().Tokens().SetAuthToken("")
	s.qc.Invalidate("")

	if err != nil && apierr.KindOf(err) != apierr.KindAuth {
		return err
	}

	return nil
}

// Me returns the signed-in user.
func (s *Service) Me(ctx context.Context) (models.User, error) {
	return query.Get[models.User](ctx, s.qc, KeyMe,
		apiclient.Request{URL: "/api/auth/me"},
		apiclient.WithSchema(apiclient.Tags))
}

// Universities lists universities whose name, city or country matches
// search. An empty search lists all of them.
func (s *Service) Universities(ctx context.Context, search string) ([]models.University, error) {
	path := "/api/universities"
	if search != "" {
		path += "?" + url.Values{"search": {search}}.Encode()
	}

	return query.Get[[]models.University](ctx, s.qc, KeyUniversities+"?search="+search,
		apiclient.Request{URL: path},
		apiclient.WithSchema(apiclient.Tags))
}

// ForumPosts lists forum posts, optionally restricted to one category.
func (s *Service) ForumPosts(ctx context.Context, category string) ([]models.ForumPost, error) {
	path := "/api/forum/posts"
	if category != "" {
		path += "?" + url.Values{"category": {category}}.Encode()
	}

	return query.Get[[]models.ForumPost](ctx, s.qc, KeyForum+"posts?category="+category,
		apiclient.Request{URL: path},
		apiclient.WithSchema(apiclient.Tags))
}

// CreateForumPost publishes a post. Failures are reported through the
// query client's notifier.
func (s *Service) CreateForumPost(ctx context.Context, in models.CreateForumPostInput) (models.ForumPost, error) {
	return query.Mutate[models.ForumPost](ctx, s.qc, apiclient.Request{
		Method: http.MethodPost,
		URL:    "/api/forum/posts",
		Body:   in,
	}, query.MutationOptions{
		Invalidate: []string{KeyForum},
	}, apiclient.WithSchema(apiclient.Tags))
}

// ExportApplications downloads the caller's applications as CSV.
func (s *Service) ExportApplications(ctx context.Context) (string, error) {
	return apiclient.Call[string](ctx, s.api(), apiclient.Request{
		URL:     "/api/applications/export",
		Headers: http.Header{"Accept": {"text/csv"}},
	})
}

// Documents lists the caller's uploaded documents.
func (s *Service) Documents(ctx context.Context) ([]models.Document, error) {
	return query.Get[[]models.Document](ctx, s.qc, KeyDocuments,
		apiclient.Request{URL: "/api/documents"},
		apiclient.WithSchema(apiclient.Tags))
}

// UploadDocument uploads r as a file named name.
func (s *Service) UploadDocument(ctx context.Context, name string, r io.Reader) (models.Document, error) {
	body, err := multipartFile(name, r)
	if err != nil {
		return models.Document{}, err
	}

	return query.Mutate[models.Document](ctx, s.qc, apiclient.Request{
		Method: http.MethodPost,
		URL:    "/api/documents",
		Body:   body,
	}, query.MutationOptions{
		Invalidate: []string{KeyDocuments},
	}, apiclient.WithSchema(apiclient.Tags))
}

func multipartFile(name string, r io.Reader) (apiclient.Multipart, error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return apiclient.Multipart{}, fmt.Errorf("creating form file: %w", err)
	}

	if _, err := io.Copy(part, r); err != nil {
		return apiclient.Multipart{}, fmt.Errorf("reading %s: %w", name, err)
	}

	if err := mw.Close(); err != nil {
		return apiclient.Multipart{}, fmt.Errorf("closing multipart body: %w", err)
	}

	return apiclient.Multipart{Body: &buf, ContentType: mw.FormDataContentType()}, nil
}
