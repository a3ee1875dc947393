package message

import (
	"fmt"
	"io"
	"strings"

	"portal-rpc/scalar"
	"portal-rpc/schema"
)

// Format prints the response fields as "name: value" lines.
func (r *Response) Format(w io.Writer) error {
	s, err := r.Schema()
	if err != nil {
		return err
	}
	return printFields(w, s, r)
}

// Format prints the request fields as "name: value" lines.
func (r *Request) Format(w io.Writer) error {
	s, err := r.Schema()
	if err != nil {
		return err
	}
	return printFields(w, s, r)
}

func printFields[T any](w io.Writer, s *schema.Schema[T], msg *T) error {
	return schema.ForEachConst(msg, s, func(field any, f schema.Field[T]) error {
		text, err := scalar.Format(field)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s: %s\n", f.Name, text)
		return err
	})
}

func (r *Request) String() string {
	s, err := r.Schema()
	if err != nil {
		return fmt.Sprintf("request(%d)", r.Type)
	}
	return describe(s, r)
}

func (r *Response) String() string {
	s, err := r.Schema()
	if err != nil {
		return fmt.Sprintf("response(%d)", r.Type)
	}
	return describe(s, r)
}

func describe[T any](s *schema.Schema[T], msg *T) string {
	var b strings.Builder
	b.WriteString(s.Name())
	b.WriteByte('{')
	_ = schema.ForEachConst(msg, s, func(field any, f schema.Field[T]) error {
		if b.Len() > len(s.Name())+1 {
			b.WriteString(", ")
		}
		text, err := scalar.Format(field)
		if err != nil {
			text = "?"
		}
		if f.Type == scalar.Text {
			text = fmt.Sprintf("%q", text)
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(text)
		return nil
	})
	b.WriteByte('}')
	return b.String()
}

// MarshalJSON renders the request as {"@type": variant, fields...}.
func (r *Request) MarshalJSON() ([]byte, error) {
	return Requests.EncodeJSON(uint8(r.Type), r)
}

// UnmarshalJSON selects the variant from the "@type" key.
func (r *Request) UnmarshalJSON(data []byte) error {
	var req Request
	d, err := Requests.DecodeJSON(data, &req)
	if err != nil {
		return err
	}
	req.Type = RequestType(d)
	*r = req
	return nil
}

func (r *Response) MarshalJSON() ([]byte, error) {
	return Responses.EncodeJSON(uint8(r.Type), r)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var resp Response
	d, err := Responses.DecodeJSON(data, &resp)
	if err != nil {
		return err
	}
	resp.Type = ResponseType(d)
	*r = resp
	return nil
}
