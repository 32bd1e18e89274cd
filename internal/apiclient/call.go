package apiclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phozos/phozos-client/internal/apierr"
)

// CallOption configures Call.
type CallOption func(*callOptions)

type callOptions struct {
	schema Schema
}

// WithSchema validates the decoded payload before it is returned.
func WithSchema(s Schema) CallOption {
	return func(o *callOptions) {
		o.schema = s
	}
}

// Call sends req and decodes the unwrapped payload into T. Raw bodies
// (CSV, binary, images) can only be received as string or []byte.
// A payload rejected by the schema is never returned.
func Call[T any](ctx context.Context, c *Client, req Request, opts ...CallOption) (T, error) {
	var zero T

	o := callOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return zero, err
	}

	return Decode[T](resp, o.schema)
}

// Decode converts a response into T, validating it with schema when one
// is given.
func Decode[T any](resp *Response, schema Schema) (T, error) {
	var out T

	if resp.IsRaw {
		switch p := any(&out).(type) {
		case *string:
			*p = string(resp.Raw)
		case *[]byte:
			*p = resp.Raw
		default:
			return out, apierr.Parse(resp.Status,
				fmt.Errorf("%s body cannot be decoded into %T", resp.ContentType, out))
		}
	} else if err := json.Unmarshal(resp.Payload(), &out); err != nil {
		var zero T
		return zero, apierr.Shape(resp.Status, fmt.Errorf("decoding payload into %T: %w", out, err))
	}

	if schema != nil {
		if err := schema.Validate(out); err != nil {
			var zero T
			return zero, apierr.Shape(resp.Status, err)
		}
	}

	return out, nil
}
