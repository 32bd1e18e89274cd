package devserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Error codes shared with the production API.
const (
	codeValidation   = "VALIDATION_ERROR"
	codeRateLimited  = "RATE_LIMITED"
	codeCSRFInvalid  = "CSRF_INVALID"
	codeAuthRequired = "AUTH_REQUIRED"
	codeAuthInvalid  = "AUTH_TOKEN_INVALID"
	codeBadLogin     = "AUTH_INVALID_CREDENTIALS"
	codeNotFound     = "NOT_FOUND"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

type failure struct {
	Success bool     `json:"success"`
	Error   apiError `json:"error"`
}

type success struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, success{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, failure{Error: e})
}

// decodeBody reads a JSON body into v and validates it. It writes the
// error response and returns false on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Code: codeValidation, Message: "invalid JSON body"})
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		field, msg := describeValidation(err)
		writeError(w, http.StatusBadRequest, apiError{Code: codeValidation, Message: msg, Field: field})

		return false
	}

	return true
}

// describeValidation reports the first failed field by its json name.
func describeValidation(err error) (field, message string) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "", err.Error()
	}

	fe := ve[0]

	switch fe.Tag() {
	case "required":
		return fe.Field(), "is required"
	case "email":
		return fe.Field(), "must be a valid email address"
	case "max":
		return fe.Field(), "must be at most " + fe.Param() + " characters"
	default:
		return fe.Field(), "is invalid"
	}
}
