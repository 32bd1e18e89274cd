package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Kind classifies a failed API call.
type Kind string

const (
	KindAuth          Kind = "auth"
	KindValidation    Kind = "validation"
	KindRateLimit     Kind = "rate_limit"
	KindNetwork       Kind = "network"
	KindResponseParse Kind = "response_parse"
	KindResponseShape Kind = "response_shape"
	KindCSRFNotReady  Kind = "csrf_not_ready"
	KindUnknown       Kind = "unknown"
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrAuth          = errors.New("authentication failed")
	ErrValidation    = errors.New("validation failed")
	ErrRateLimit     = errors.New("rate limited")
	ErrNetwork       = errors.New("network failure")
	ErrResponseParse = errors.New("invalid response")
	ErrResponseShape = errors.New("response does not match expected shape")
	ErrCSRFNotReady  = errors.New("CSRF token not ready")
	ErrUnknown       = errors.New("API request failed")
)

// Well-known codes.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
	CodeCSRFNotReady = "CSRF_NOT_READY"
	CodeNetwork      = "NETWORK_ERROR"
	CodeInvalidBody  = "INVALID_RESPONSE"
	CodeShape        = "RESPONSE_SHAPE"

	authCodePrefix = "AUTH_"
)

var sentinels = map[Kind]error{
	KindAuth:          ErrAuth,
	KindValidation:    ErrValidation,
	KindRateLimit:     ErrRateLimit,
	KindNetwork:       ErrNetwork,
	KindResponseParse: ErrResponseParse,
	KindResponseShape: ErrResponseShape,
	KindCSRFNotReady:  ErrCSRFNotReady,
	KindUnknown:       ErrUnknown,
}

// Error is the single error type returned by the request pipeline.
// Status is 0 when no response was received.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	Field   string
	Hint    string
	Details json.RawMessage
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = sentinels[e.Kind].Error()
	}

	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}

	return nil, false
}

// KindOf returns the kind of err, or KindUnknown for errors that did
// not come from the pipeline.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}

	return KindUnknown
}

// Classify maps a status and code to a kind. The checks run in a fixed
// order so a 401 carrying VALIDATION_ERROR is still an auth failure.
func Classify(status int, code string) Kind {
	switch {
	case status == http.StatusUnauthorized || strings.HasPrefix(code, authCodePrefix):
		return KindAuth
	case code == CodeValidation || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusTooManyRequests || code == CodeRateLimited:
		return KindRateLimit
	default:
		return KindUnknown
	}
}

// FromResponse builds an error from a non-2xx response. It accepts the
// flat {code,message,...} shape and the {success:false,error:{...}}
// envelope, and falls back to the raw body or the status line when the
// body is not JSON.
func FromResponse(status int, body []byte) *Error {
	e := &Error{Status: status}

	if gjson.ValidBytes(body) {
		root := gjson.ParseBytes(body)

		obj := root
		if nested := root.Get("error"); nested.IsObject() {
			obj = nested
		}

		if obj.IsObject() {
			e.Code = obj.Get("code").String()
			e.Message = obj.Get("message").String()
			e.Field = obj.Get("field").String()
			e.Hint = obj.Get("hint").String()

			if d := obj.Get("details"); d.Exists() {
				e.Details = json.RawMessage(d.Raw)
			}

			if e.Message == "" {
				// {"error":"..."} is common on hand-written routes.
				if s := root.Get("error"); s.Type == gjson.String {
					e.Message = s.Str
				}
			}
		}
	}

	if e.Message == "" {
		e.Message = strings.TrimSpace(Sanitize(body))
	}

	if e.Message == "" {
		e.Message = statusLine(status)
	}

	e.Kind = Classify(status, e.Code)

	return e
}

// Network wraps a transport failure where no response was received.
func Network(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Code:    CodeNetwork,
		Message: "could not reach server",
		Err:     err,
	}
}

// Parse reports a 2xx body that should have been JSON but was not.
func Parse(status int, err error) *Error {
	return &Error{
		Kind:    KindResponseParse,
		Code:    CodeInvalidBody,
		Message: "invalid response from server",
		Status:  status,
		Err:     err,
	}
}

// Shape reports a payload rejected by a response schema.
func Shape(status int, err error) *Error {
	return &Error{
		Kind:    KindResponseShape,
		Code:    CodeShape,
		Message: "response does not match expected shape",
		Status:  status,
		Err:     err,
	}
}

// CSRFNotReady reports that no CSRF token could be obtained before a
// mutating request.
func CSRFNotReady(err error) *Error {
	return &Error{
		Kind:    KindCSRFNotReady,
		Code:    CodeCSRFNotReady,
		Message: "CSRF token not ready",
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func statusLine(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("%d %s", status, text)
	}

	return fmt.Sprintf("HTTP %d", status)
}

// Sanitize truncates a response body and replaces control characters
// so it can be embedded in error messages and logs.
func Sanitize(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}
