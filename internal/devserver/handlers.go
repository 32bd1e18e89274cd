package devserver

import (
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phozos/phozos-client/internal/models"
	"golang.org/x/text/cases"
)

// handleUniversities lists universities, filtered by a case-folded
// substring match of ?search against name, city and country.
func (s *Server) handleUniversities(w http.ResponseWriter, r *http.Request) {
	fold := cases.Fold()
	search := fold.String(strings.TrimSpace(r.URL.Query().Get("search")))

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.University, 0, len(s.universities))
	for _, u := range s.universities {
		if search == "" ||
			strings.Contains(fold.String(u.Name), search) ||
			strings.Contains(fold.String(u.City), search) ||
			strings.Contains(fold.String(u.Country), search) {
			out = append(out, u)
		}
	}

	writeData(w, http.StatusOK, out)
}

// handleListPosts lists forum posts newest first, optionally filtered
// by ?category.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	fold := cases.Fold()
	category := fold.String(r.URL.Query().Get("category"))

	s.mu.RLock()
	out := make([]models.ForumPost, 0, len(s.posts))
	for _, p := range s.posts {
		if category == "" || fold.String(p.Category) == category {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b models.ForumPost) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	writeData(w, http.StatusOK, out)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var in models.CreateForumPostInput
	if !s.decodeBody(w, r, &in) {
		return
	}

	post := models.ForumPost{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Content:   in.Content,
		Category:  in.Category,
		AuthorID:  requestClaims(r.Context()).Subject,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.posts = append(s.posts, post)
	s.mu.Unlock()

	writeData(w, http.StatusCreated, post)
}

var applicationsCSVHeader = []string{"id", "university", "program", "status", "submitted_at"}

// handleExportApplications streams the caller's applications as CSV.
func (s *Server) handleExportApplications(w http.ResponseWriter, r *http.Request) {
	userID := requestClaims(r.Context()).Subject

	s.mu.RLock()
	names := make(map[string]string, len(s.universities))
	for _, u := range s.universities {
		names[u.ID] = u.Name
	}

	var rows [][]string
	for _, a := range s.applications {
		if a.StudentID != userID {
			continue
		}

		rows = append(rows, []string{a.ID, names[a.UniversityID], a.Program, a.Status, a.SubmittedAt.Format(time.RFC3339)})
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="applications.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write(applicationsCSVHeader)
	_ = cw.WriteAll(rows)

	if err := cw.Error(); err != nil {
		s.logger.Warn("writing export", slog.String("error", err.Error()))
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	userID := requestClaims(r.Context()).Subject

	s.mu.RLock()
	out := slices.Clone(s.documents[userID])
	s.mu.RUnlock()

	if out == nil {
		out = []models.Document{}
	}

	writeData(w, http.StatusOK, out)
}

// handleUploadDocument accepts a multipart form with a "file" part.
// Only the metadata is kept.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, apiError{Code: codeValidation, Message: "file is too large", Field: "file"})
			return
		}

		writeError(w, http.StatusBadRequest, apiError{Code: codeValidation, Message: "expected a multipart form", Field: "file"})

		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, apiError{Code: codeValidation, Message: "is required", Field: "file"})
		return
	}
	defer file.Close()

	contentType := hdr.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc := models.Document{
		ID:          uuid.NewString(),
		Name:        filepath.Base(hdr.Filename),
		ContentType: contentType,
		Size:        hdr.Size,
		UploadedAt:  time.Now().UTC(),
	}

	userID := requestClaims(r.Context()).Subject

	s.mu.Lock()
	s.documents[userID] = append(s.documents[userID], doc)
	s.mu.Unlock()

	writeData(w, http.StatusCreated, doc)
}
