package apiclient

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Schema validates a decoded response payload.
type Schema interface {
	Validate(v any) error
}

// SchemaFunc adapts a function to Schema.
type SchemaFunc func(v any) error

func (f SchemaFunc) Validate(v any) error { return f(v) }

// StructSchema validates structs by their `validate` tags. Slices and
// arrays are validated element by element. Field names in diagnostics
// use the json tag.
type StructSchema struct {
	v *validator.Validate
}

// NewStructSchema returns a StructSchema.
func NewStructSchema() *StructSchema {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		if name == "" {
			return f.Name
		}

		return name
	})

	return &StructSchema{v: v}
}

// Tags is the shared struct-tag schema.
var Tags = NewStructSchema()

// Validate implements Schema.
func (s *StructSchema) Validate(v any) error {
	return s.validate(reflect.ValueOf(v), "")
}

func (s *StructSchema) validate(rv reflect.Value, path string) error {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			if path == "" {
				return errors.New("payload is null")
			}

			return fmt.Errorf("%s: element is null", path)
		}

		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		if err := s.v.Struct(rv.Interface()); err != nil {
			if path != "" {
				return fmt.Errorf("%s: %w", path, err)
			}

			return err
		}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() && path == "" {
			return errors.New("payload is null")
		}

		for i := 0; i < rv.Len(); i++ {
			if err := s.validate(rv.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}

	return nil
}
