package apiclient

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/phozos/phozos-client/internal/apierr"
	"github.com/tidwall/gjson"
)

// EnvelopeKind tells how a JSON body was shaped.
type EnvelopeKind int

const (
	// Bare bodies carry no success field and are the payload themselves.
	Bare EnvelopeKind = iota
	// Success bodies are {"success": true, "data": ...}.
	Success
	// Failure bodies are {"success": false, "error": {...}}.
	Failure
)

func (k EnvelopeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "bare"
	}
}

// Envelope is a JSON body decoded once at the transport boundary.
type Envelope struct {
	Kind EnvelopeKind
	// Data is the success payload, "null" when the server omitted it.
	Data json.RawMessage
	// Error is the failure object.
	Error json.RawMessage
	// Body is the whole document.
	Body json.RawMessage
}

// DecodeEnvelope classifies a valid JSON document. Only a boolean
// success field selects an envelope kind.
func DecodeEnvelope(body []byte) Envelope {
	env := Envelope{Kind: Bare, Body: body}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return env
	}

	switch root.Get("success").Type {
	case gjson.True:
		env.Kind = Success
		env.Data = json.RawMessage("null")

		if d := root.Get("data"); d.Exists() {
			env.Data = json.RawMessage(d.Raw)
		}
	case gjson.False:
		env.Kind = Failure

		if e := root.Get("error"); e.Exists() {
			env.Error = json.RawMessage(e.Raw)
		}
	}

	return env
}

// Payload is what callers receive: the data of a success envelope,
// otherwise the body unchanged.
func (e Envelope) Payload() json.RawMessage {
	if e.Kind == Success {
		return e.Data
	}

	return e.Body
}

// Response is a decoded 2xx response. Exactly one of Raw and Envelope
// is meaningful, selected by IsRaw.
type Response struct {
	Status      int
	Header      http.Header
	ContentType string

	// IsRaw is set for CSV, octet-stream and image bodies, which are
	// returned unparsed.
	IsRaw    bool
	Raw      []byte
	Envelope Envelope
}

// Payload returns the unwrapped JSON payload, or nil for raw bodies.
func (r *Response) Payload() json.RawMessage {
	if r.IsRaw {
		return nil
	}

	return r.Envelope.Payload()
}

func decodeResponse(status int, header http.Header, body []byte) (*Response, error) {
	mediaType := mediaTypeOf(header.Get("Content-Type"))

	resp := &Response{
		Status:      status,
		Header:      header,
		ContentType: mediaType,
	}

	if isRawMediaType(mediaType) {
		resp.IsRaw = true
		resp.Raw = body

		return resp, nil
	}

	// 204 has no body by definition.
	if status == http.StatusNoContent && len(strings.TrimSpace(string(body))) == 0 {
		resp.Envelope = Envelope{Kind: Bare, Body: json.RawMessage("null")}
		return resp, nil
	}

	if !json.Valid(body) {
		return nil, apierr.Parse(status, &invalidJSONError{mediaType: mediaType, snippet: apierr.Sanitize(body)})
	}

	resp.Envelope = DecodeEnvelope(body)

	return resp, nil
}

type invalidJSONError struct {
	mediaType string
	snippet   string
}

func (e *invalidJSONError) Error() string {
	if e.snippet == "" {
		return "empty body where JSON was expected"
	}

	return "body is not JSON (content type " + e.mediaTypeOrUnknown() + "): " + e.snippet
}

func (e *invalidJSONError) mediaTypeOrUnknown() string {
	if e.mediaType == "" {
		return "unknown"
	}

	return e.mediaType
}

func mediaTypeOf(contentType string) string {
	if contentType == "" {
		return ""
	}

	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}

	return mt
}

func isRawMediaType(mt string) bool {
	return mt == "text/csv" ||
		mt == "application/octet-stream" ||
		strings.HasPrefix(mt, "image/")
}
