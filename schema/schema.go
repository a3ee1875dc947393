// Package schema describes message payloads as ordered lists of named, typed fields and
// walks any payload field by field given only its schema.
//
// A field is reached through an accessor that returns a pointer into the payload, so the
// codec, the pretty printer and the tests all share one traversal instead of carrying
// per-message code.
package schema

import (
	"fmt"

	"portal-rpc/scalar"
)

// Field describes one member of a payload of type T.
type Field[T any] struct {
	Name string
	Type scalar.Type
	// Ref returns a pointer to the field inside msg: *int32, *float32 or *scalar.String.
	Ref func(msg *T) any
}

// Int declares an Integer field.
func Int[T any](name string, ref func(*T) *int32) Field[T] {
	return Field[T]{Name: name, Type: scalar.Integer, Ref: func(m *T) any { return ref(m) }}
}

// Float declares a Float field.
func Float[T any](name string, ref func(*T) *float32) Field[T] {
	return Field[T]{Name: name, Type: scalar.Float, Ref: func(m *T) any { return ref(m) }}
}

// String declares a bounded string field.
func String[T any](name string, ref func(*T) *scalar.String) Field[T] {
	return Field[T]{Name: name, Type: scalar.Text, Ref: func(m *T) any { return ref(m) }}
}

// Schema is an immutable, ordered field list. Order is declaration order and wire order.
type Schema[T any] struct {
	name   string
	fields []Field[T]
}

// New builds a schema. It panics on duplicate field names since schemas are package-level
// declarations.
func New[T any](name string, fields ...Field[T]) *Schema[T] {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.Name]; dup {
			panic(fmt.Sprintf("schema %s: duplicate field %q", name, f.Name))
		}
		seen[f.Name] = struct{}{}
	}
	return &Schema[T]{name: name, fields: append([]Field[T](nil), fields...)}
}

func (s *Schema[T]) Name() string { return s.name }

// Len returns the field count.
func (s *Schema[T]) Len() int { return len(s.fields) }

// Field returns the i-th field in declaration order.
func (s *Schema[T]) Field(i int) Field[T] { return s.fields[i] }

// Names lists the field names in declaration order.
func (s *Schema[T]) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Visitor is called once per field with a pointer to the field value.
type Visitor[T any] func(field any, f Field[T]) error

// ForEach calls visit for every field of msg in declaration order. The first error stops the
// walk; fields after the failing one are never visited.
func ForEach[T any](msg *T, s *Schema[T], visit Visitor[T]) error {
	for _, f := range s.fields {
		if err := visit(f.Ref(msg), f); err != nil {
			return &FieldError{Schema: s.name, Field: f.Name, Err: err}
		}
	}
	return nil
}

// ForEachConst is the read-only form of ForEach. The visitor receives pointers into a copy
// of msg, so writes through them never reach the caller's value.
func ForEachConst[T any](msg *T, s *Schema[T], visit Visitor[T]) error {
	cp := *msg
	return ForEach(&cp, s, visit)
}

// FieldError reports which field a traversal stopped at.
type FieldError struct {
	Schema string
	Field  string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Schema, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }
