package apiclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Request describes one API call. The zero Method is GET.
type Request struct {
	Method string
	// URL is absolute, or a path resolved against the client's base.
	URL string
	// Body is nil, []byte, io.Reader, Multipart, or any value encoded
	// as JSON.
	Body    any
	Headers http.Header
	// SkipCSRF sends a mutating request without the CSRF token.
	SkipCSRF bool
	// IncludeCredentials sends cookies on requests that would not
	// otherwise carry them.
	IncludeCredentials bool

	retried bool
}

// Multipart is a pre-encoded multipart body with its boundary-bearing
// content type, as produced by mime/multipart.Writer.
type Multipart struct {
	Body        io.Reader
	ContentType string
}

// payload is a request body buffered once so the stale-CSRF retry can
// send the same bytes again.
type payload struct {
	data        []byte
	contentType string
	present     bool
}

func encodeBody(body any) (payload, error) {
	switch b := body.(type) {
	case nil:
		return payload{}, nil
	case json.RawMessage:
		return payload{data: b, contentType: "application/json", present: true}, nil
	case []byte:
		return payload{data: b, present: true}, nil
	case Multipart:
		return readMultipart(b)
	case *Multipart:
		return readMultipart(*b)
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return payload{}, fmt.Errorf("reading body: %w", err)
		}

		return payload{data: data, present: true}, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return payload{}, fmt.Errorf("marshalling body: %w", err)
		}

		return payload{data: data, contentType: "application/json", present: true}, nil
	}
}

func readMultipart(m Multipart) (payload, error) {
	if m.Body == nil {
		return payload{}, fmt.Errorf("multipart body is nil")
	}

	data, err := io.ReadAll(m.Body)
	if err != nil {
		return payload{}, fmt.Errorf("reading multipart body: %w", err)
	}

	return payload{data: data, contentType: m.ContentType, present: true}, nil
}
