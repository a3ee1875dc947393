package codec

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/cockroachdb/errors"

	"portal-rpc/scalar"
	"portal-rpc/schema"
)

// TypeKey names the variant in the JSON form of a message.
const TypeKey = "@type"

var (
	ErrMissingField = errors.New("codec: missing field")
	ErrTypeMismatch = errors.New("codec: json value has wrong type")
)

// EncodeJSON renders msg as a JSON object whose first key is TypeKey holding the schema
// name, followed by the fields in schema order.
func EncodeJSON[T any](s *schema.Schema[T], msg *T) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeKey(&buf, TypeKey)
	writeJSONString(&buf, s.Name())

	err := schema.ForEachConst(msg, s, func(field any, f schema.Field[T]) error {
		buf.WriteByte(',')
		writeKey(&buf, f.Name)
		switch v := field.(type) {
		case *float32:
			if math.IsNaN(float64(*v)) || math.IsInf(float64(*v), 0) {
				return errors.Wrapf(ErrTypeMismatch, "%v is not representable", *v)
			}
			text, err := scalar.Format(v)
			if err != nil {
				return err
			}
			buf.WriteString(text)
		case *int32:
			text, err := scalar.Format(v)
			if err != nil {
				return err
			}
			buf.WriteString(text)
		case *scalar.String:
			writeJSONString(&buf, v.String())
		default:
			return errors.Wrapf(scalar.ErrUnsupported, "%T", field)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// PeekType returns the TypeKey value of a JSON object.
func PeekType(data []byte) (string, error) {
	var head struct {
		Type *string `json:"@type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", errors.Wrap(err, "codec: json")
	}
	if head.Type == nil {
		return "", errors.Wrapf(ErrMissingField, "%s", TypeKey)
	}
	return *head.Type, nil
}

// DecodeJSON fills msg from the JSON form produced by EncodeJSON. Every schema field must
// be present with a value of the declared type; unknown keys are ignored.
func DecodeJSON[T any](data []byte, s *schema.Schema[T], msg *T) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.Wrap(err, "codec: json")
	}
	return schema.ForEach(msg, s, func(field any, f schema.Field[T]) error {
		raw, ok := obj[f.Name]
		if !ok {
			return ErrMissingField
		}
		switch v := field.(type) {
		case *int32:
			if err := json.Unmarshal(raw, v); err != nil {
				return errors.Wrapf(ErrTypeMismatch, "want integer, got %s", raw)
			}
		case *float32:
			if err := json.Unmarshal(raw, v); err != nil {
				return errors.Wrapf(ErrTypeMismatch, "want number, got %s", raw)
			}
		case *scalar.String:
			var str string
			if err := json.Unmarshal(raw, &str); err != nil {
				return errors.Wrapf(ErrTypeMismatch, "want string, got %s", raw)
			}
			return v.Set(str)
		default:
			return errors.Wrapf(scalar.ErrUnsupported, "%T", field)
		}
		return nil
	})
}

func writeKey(buf *bytes.Buffer, key string) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
}

func writeJSONString(buf *bytes.Buffer, s string) {
	// json.Marshal of a string cannot fail.
	b, _ := json.Marshal(s)
	buf.Write(b)
}
