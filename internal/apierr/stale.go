package apierr

import (
	"net/http"
	"strings"
)

// StalePolicy decides whether a failed call was rejected because the
// CSRF token it carried is stale. An empty field disables that check.
type StalePolicy struct {
	// CodePrefix matches error codes such as CSRF_INVALID.
	CodePrefix string
	// ForbiddenSubstring matches 403 messages case-insensitively.
	ForbiddenSubstring string
}

// DefaultStalePolicy matches codes starting with CSRF_ and 403 responses
// whose message mentions csrf.
var DefaultStalePolicy = StalePolicy{
	CodePrefix:         "CSRF_",
	ForbiddenSubstring: "csrf",
}

// IsStale reports whether err is a stale-token rejection. Errors raised
// before a request reached the server never count.
func (p StalePolicy) IsStale(err error) bool {
	ae, ok := As(err)
	if !ok || ae.Status == 0 || ae.Kind == KindCSRFNotReady {
		return false
	}

	if p.CodePrefix != "" && strings.HasPrefix(ae.Code, p.CodePrefix) {
		return true
	}

	return p.ForbiddenSubstring != "" &&
		ae.Status == http.StatusForbidden &&
		strings.Contains(strings.ToLower(ae.Message), strings.ToLower(p.ForbiddenSubstring))
}
