package devserver

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/phozos/phozos-client/internal/models"
)

// seed fills the catalogue and gives the first student sample posts
// and applications.
func (s *Server) seed() {
	s.universities = []models.University{
		{ID: "uni-eth", Name: "ETH Zürich", Country: "Switzerland", City: "Zürich", Ranking: 7, Website: "https://ethz.ch"},
		{ID: "uni-tum", Name: "Technische Universität München", Country: "Germany", City: "München", Ranking: 28, Website: "https://www.tum.de"},
		{ID: "uni-uoft", Name: "University of Toronto", Country: "Canada", City: "Toronto", Ranking: 21, Website: "https://www.utoronto.ca"},
		{ID: "uni-melb", Name: "University of Melbourne", Country: "Australia", City: "Melbourne", Ranking: 14, Website: "https://www.unimelb.edu.au"},
		{ID: "uni-ucd", Name: "University College Dublin", Country: "Ireland", City: "Dublin"},
	}

	var student *account
	for _, email := range slices.Sorted(maps.Keys(s.accounts)) {
		if a := s.accounts[email]; a.user.Role == models.RoleStudent {
			student = a
			break
		}
	}

	if student == nil {
		return
	}

	studentID := student.user.ID
	now := time.Now().UTC()

	s.posts = []models.ForumPost{
		{ID: uuid.NewString(), Title: "Student visa timelines for Germany", Content: "How long did your appointment take?", Category: "visa", AuthorID: studentID, ReplyCount: 3, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: uuid.NewString(), Title: "Housing in Zürich", Content: "Any tips for finding a WG room?", Category: "housing", AuthorID: studentID, ReplyCount: 1, CreatedAt: now.Add(-24 * time.Hour)},
	}

	s.applications = []models.Application{
		{ID: uuid.NewString(), StudentID: studentID, UniversityID: "uni-eth", Program: "MSc Computer Science", Status: "submitted", SubmittedAt: now.Add(-72 * time.Hour)},
		{ID: uuid.NewString(), StudentID: studentID, UniversityID: "uni-tum", Program: "MSc Informatics, Data Engineering", Status: "under_review", SubmittedAt: now.Add(-96 * time.Hour)},
	}
}
