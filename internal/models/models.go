// Package models defines the Phozos API payloads shared by the client
// bindings and the development server. The validate tags double as the
// response schema checked after every typed call.
package models

import "time"

// User roles issued by the API.
const (
	RoleStudent   = "student"
	RoleCounselor = "counselor"
	RoleAdmin     = "admin"
)

// User is an authenticated account.
type User struct {
	ID        string `json:"id" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role" validate:"required,oneof=student counselor admin"`
}

// LoginInput is the body of POST /api/auth/login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult carries the bearer token issued on login.
type LoginResult struct {
	Token string `json:"token" validate:"required"`
	User  User   `json:"user"`
}

// University is a searchable institution.
type University struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Country string `json:"country" validate:"required"`
	City    string `json:"city,omitempty"`
	// Ranking is 0 when unranked.
	Ranking int    `json:"ranking,omitempty" validate:"gte=0"`
	Website string `json:"website,omitempty" validate:"omitempty,url"`
}

// ForumPost is a community forum entry.
type ForumPost struct {
	ID         string    `json:"id" validate:"required"`
	Title      string    `json:"title" validate:"required"`
	Content    string    `json:"content"`
	Category   string    `json:"category,omitempty"`
	AuthorID   string    `json:"authorId" validate:"required"`
	ReplyCount int       `json:"replyCount" validate:"gte=0"`
	CreatedAt  time.Time `json:"createdAt" validate:"required"`
}

// CreateForumPostInput is the body of POST /api/forum/posts.
type CreateForumPostInput struct {
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content" validate:"required"`
	Category string `json:"category,omitempty" validate:"omitempty,max=50"`
}

// Document is an uploaded file's metadata.
type Document struct {
	ID          string    `json:"id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size" validate:"gte=0"`
	UploadedAt  time.Time `json:"uploadedAt" validate:"required"`
}

// Application is a student's application to a university. The API only
// exposes applications as a CSV export.
type Application struct {
	ID           string
	StudentID    string
	UniversityID string
	Program      string
	Status       string
	SubmittedAt  time.Time
}
