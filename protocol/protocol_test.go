package protocol

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"

	"portal-rpc/scalar"
	"portal-rpc/schema"
	"portal-rpc/transport"
)

type query struct {
	Name  scalar.String
	Count int32
}

var testGroup = NewGroup("query",
	schema.New("by_name", schema.String("name", func(q *query) *scalar.String { return &q.Name })),
	schema.New("by_count", schema.Int("count", func(q *query) *int32 { return &q.Count })),
)

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer
	s := transport.NewStream(&buf)

	in := query{Name: scalar.MustString("pesos")}
	if err := testGroup.Write(s, 0, &in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if want := "\x00" + "0005" + "pesos"; buf.String() != want {
		t.Fatalf("wire mismatch: got %q, want %q", buf.String(), want)
	}

	var out query
	d, err := testGroup.Read(s, &out)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if d != 0 || out.Name != in.Name {
		t.Errorf("decoded %d %+v", d, out)
	}
}

func TestWriteRejectsBadDiscriminant(t *testing.T) {
	var buf bytes.Buffer
	err := testGroup.Write(transport.NewStream(&buf), 2, &query{})
	if !errors.Is(err, ErrBadDiscriminant) {
		t.Fatalf("expect ErrBadDiscriminant, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes written for a rejected message", buf.Len())
	}
}

func TestReadRejectsBadDiscriminantBeforePayload(t *testing.T) {
	buf := bytes.NewBufferString("\x07" + "0002" + "42")
	before := query{Count: 9}
	out := before

	_, err := testGroup.Read(transport.NewStream(buf), &out)
	if !errors.Is(err, ErrBadDiscriminant) {
		t.Fatalf("expect ErrBadDiscriminant, got %v", err)
	}
	if buf.Len() != 6 {
		t.Errorf("payload consumed after bad discriminant: %d bytes left", buf.Len())
	}
	if out != before {
		t.Errorf("message modified: %+v", out)
	}
}

func TestReadFailureLeavesMessage(t *testing.T) {
	before := query{Name: scalar.MustString("kept"), Count: 3}
	out := before

	_, err := testGroup.Read(transport.NewStream(bytes.NewBufferString("\x01"+"0003"+"4x2")), &out)
	if !errors.Is(err, scalar.ErrParse) {
		t.Fatalf("expect ErrParse, got %v", err)
	}
	if out != before {
		t.Errorf("message modified on failure: %+v", out)
	}
}

func TestReadEmpty(t *testing.T) {
	var out query
	_, err := testGroup.Read(transport.NewStream(&bytes.Buffer{}), &out)
	if err == nil {
		t.Fatal("expect error on empty stream")
	}
}

func TestJSON(t *testing.T) {
	in := query{Count: 12}
	data, err := testGroup.EncodeJSON(1, &in)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"@type":"by_count","count":12}` {
		t.Fatalf("unexpected json %s", data)
	}

	var out query
	d, err := testGroup.DecodeJSON(data, &out)
	if err != nil {
		t.Fatal(err)
	}
	if d != 1 || out.Count != 12 {
		t.Errorf("decoded %d %+v", d, out)
	}

	if _, err := testGroup.DecodeJSON([]byte(`{"@type":"by_color"}`), &out); !errors.Is(err, ErrBadDiscriminant) {
		t.Errorf("expect ErrBadDiscriminant, got %v", err)
	}
}

func TestGroupIsNotAJSONMarshaler(t *testing.T) {
	// a Group renders messages; it is not itself a JSON value
	if _, ok := any(testGroup).(json.Marshaler); ok {
		t.Error("Group must not implement json.Marshaler")
	}
	if _, ok := any(testGroup).(json.Unmarshaler); ok {
		t.Error("Group must not implement json.Unmarshaler")
	}
}

func TestLookup(t *testing.T) {
	if d, ok := testGroup.Lookup("by_count"); !ok || d != 1 {
		t.Errorf("Lookup(by_count) = %d, %v", d, ok)
	}
	if _, ok := testGroup.Lookup("nope"); ok {
		t.Error("Lookup(nope) succeeded")
	}
	if testGroup.Len() != 2 || testGroup.Name() != "query" {
		t.Errorf("group %s has %d variants", testGroup.Name(), testGroup.Len())
	}
}
