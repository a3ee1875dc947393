package schema

import (
	"errors"
	"testing"

	"portal-rpc/scalar"
)

type sample struct {
	Count int32
	Ratio float32
	Label scalar.String
}

var sampleSchema = New("sample",
	Int("count", func(m *sample) *int32 { return &m.Count }),
	Float("ratio", func(m *sample) *float32 { return &m.Ratio }),
	String("label", func(m *sample) *scalar.String { return &m.Label }),
)

func TestSchemaDescribesFieldsInOrder(t *testing.T) {
	if sampleSchema.Len() != 3 {
		t.Fatalf("Len = %d", sampleSchema.Len())
	}
	want := []string{"count", "ratio", "label"}
	for i, name := range sampleSchema.Names() {
		if name != want[i] {
			t.Fatalf("field %d = %s, want %s", i, name, want[i])
		}
	}
	types := []scalar.Type{scalar.Integer, scalar.Float, scalar.Text}
	for i, typ := range types {
		if sampleSchema.Field(i).Type != typ {
			t.Fatalf("field %d type = %s, want %s", i, sampleSchema.Field(i).Type, typ)
		}
	}
}

func TestForEachInitializesEveryField(t *testing.T) {
	var m sample
	err := ForEach(&m, sampleSchema, func(field any, f Field[sample]) error {
		switch p := field.(type) {
		case *int32:
			*p = 1597
		case *float32:
			*p = 0.5
		case *scalar.String:
			return p.Set("initialized string!")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.Count != 1597 || m.Ratio != 0.5 || m.Label.String() != "initialized string!" {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestForEachShortCircuits(t *testing.T) {
	stop := errors.New("stop")
	var m sample
	var visited []string
	err := ForEach(&m, sampleSchema, func(field any, f Field[sample]) error {
		visited = append(visited, f.Name)
		if f.Type == scalar.Float {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expect stop error, got %v", err)
	}
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != "ratio" || fe.Schema != "sample" {
		t.Fatalf("expect FieldError at sample.ratio, got %v", err)
	}
	if len(visited) != 2 || visited[1] != "ratio" {
		t.Fatalf("fields after the failing one were visited: %v", visited)
	}
}

func TestForEachConstDoesNotMutate(t *testing.T) {
	m := sample{Count: 7}
	var seen int32
	err := ForEachConst(&m, sampleSchema, func(field any, f Field[sample]) error {
		if p, ok := field.(*int32); ok {
			seen = *p
			*p = 99
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if seen != 7 {
		t.Fatalf("visitor saw %d", seen)
	}
	if m.Count != 7 {
		t.Fatalf("const traversal mutated message: %d", m.Count)
	}
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expect panic on duplicate field")
		}
	}()
	New("dup",
		Int("x", func(m *sample) *int32 { return &m.Count }),
		Int("x", func(m *sample) *int32 { return &m.Count }),
	)
}
