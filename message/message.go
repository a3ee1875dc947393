// Package message defines the request and response groups exchanged between the client, the
// gateway and the microservices.
//
// A Request or Response holds the payload of every variant; Type selects the one that is
// meaningful. The variant schemas below are the single source of wire order.
package message

import (
	"github.com/cockroachdb/errors"

	"portal-rpc/protocol"
	"portal-rpc/scalar"
	"portal-rpc/schema"
	"portal-rpc/transport"
)

// NoValue marks a numeric update field that must leave the stored value unchanged.
const NoValue = -999

type RequestType uint8

const (
	RequestWeather RequestType = iota
	RequestCurrency
	RequestPostWeather
	RequestPostCurrency
	requestLast
)

type ResponseType uint8

const (
	ResponseWeather ResponseType = iota
	ResponseCurrency
	ResponseResult
	responseLast
)

type WeatherQuery struct {
	City scalar.String
}

type CurrencyQuery struct {
	Currency scalar.String
}

// WeatherUpdate fields equal to NoValue are not applied.
type WeatherUpdate struct {
	City        scalar.String
	Temperature float32
	Pressure    float32
	Humidity    int32
}

type CurrencyUpdate struct {
	Currency scalar.String
	Value    float32
}

// Request is one value of the request group.
type Request struct {
	Type         RequestType
	Weather      WeatherQuery
	Currency     CurrencyQuery
	PostWeather  WeatherUpdate
	PostCurrency CurrencyUpdate
}

type WeatherReport struct {
	Humidity    int32
	Pressure    float32
	Temperature float32
}

type CurrencyReport struct {
	Quote float32
}

// Result carries acknowledgements and errors.
type Result struct {
	Message scalar.String
}

// Response is one value of the response group.
type Response struct {
	Type     ResponseType
	Weather  WeatherReport
	Currency CurrencyReport
	Result   Result
}

// Requests is the request group; variant ordinals match RequestType.
var Requests = protocol.NewGroup("request",
	schema.New("weather",
		schema.String("city", func(r *Request) *scalar.String { return &r.Weather.City }),
	),
	schema.New("currency",
		schema.String("currency", func(r *Request) *scalar.String { return &r.Currency.Currency }),
	),
	schema.New("post_weather",
		schema.String("city", func(r *Request) *scalar.String { return &r.PostWeather.City }),
		schema.Float("temperature", func(r *Request) *float32 { return &r.PostWeather.Temperature }),
		schema.Float("pressure", func(r *Request) *float32 { return &r.PostWeather.Pressure }),
		schema.Int("humidity", func(r *Request) *int32 { return &r.PostWeather.Humidity }),
	),
	schema.New("post_currency",
		schema.String("currency", func(r *Request) *scalar.String { return &r.PostCurrency.Currency }),
		schema.Float("value", func(r *Request) *float32 { return &r.PostCurrency.Value }),
	),
)

// Responses is the response group; variant ordinals match ResponseType.
var Responses = protocol.NewGroup("response",
	schema.New("weather",
		schema.Int("humidity", func(r *Response) *int32 { return &r.Weather.Humidity }),
		schema.Float("pressure", func(r *Response) *float32 { return &r.Weather.Pressure }),
		schema.Float("temperature", func(r *Response) *float32 { return &r.Weather.Temperature }),
	),
	schema.New("currency",
		schema.Float("quote", func(r *Response) *float32 { return &r.Currency.Quote }),
	),
	schema.New("result",
		schema.String("message", func(r *Response) *scalar.String { return &r.Result.Message }),
	),
)

func init() {
	if Requests.Len() != int(requestLast) || Responses.Len() != int(responseLast) {
		panic("message: variant table out of sync with type enumeration")
	}
}

// Schema returns the schema of the request's variant.
func (r *Request) Schema() (*schema.Schema[Request], error) {
	return Requests.Schema(uint8(r.Type))
}

// Variant returns the wire name of the request type, or "" when Type is out of range.
func (r *Request) Variant() string {
	s, err := r.Schema()
	if err != nil {
		return ""
	}
	return s.Name()
}

// Domain returns the base type that owns the request: queries and updates of the same
// records share a domain.
func (r *Request) Domain() (Domain, error) {
	switch r.Type {
	case RequestWeather, RequestPostWeather:
		return DomainWeather, nil
	case RequestCurrency, RequestPostCurrency:
		return DomainCurrency, nil
	}
	return 0, errors.Wrapf(protocol.ErrBadDiscriminant, "request type %d", r.Type)
}

// Key returns the record the request addresses: a city or a currency name.
func (r *Request) Key() string {
	switch r.Type {
	case RequestWeather:
		return r.Weather.City.String()
	case RequestCurrency:
		return r.Currency.Currency.String()
	case RequestPostWeather:
		return r.PostWeather.City.String()
	case RequestPostCurrency:
		return r.PostCurrency.Currency.String()
	}
	return ""
}

// IsUpdate reports whether the request modifies stored state.
func (r *Request) IsUpdate() bool {
	return r.Type == RequestPostWeather || r.Type == RequestPostCurrency
}

func (r *Response) Schema() (*schema.Schema[Response], error) {
	return Responses.Schema(uint8(r.Type))
}

func (r *Response) Variant() string {
	s, err := r.Schema()
	if err != nil {
		return ""
	}
	return s.Name()
}

// WriteRequest sends req as one envelope.
func WriteRequest(w transport.ExactWriter, req *Request) error {
	return Requests.Write(w, uint8(req.Type), req)
}

// ReadRequest reads one request envelope. On error the returned request is the zero value.
func ReadRequest(r transport.ExactReader) (Request, error) {
	var req Request
	d, err := Requests.Read(r, &req)
	if err != nil {
		return Request{}, err
	}
	req.Type = RequestType(d)
	return req, nil
}

// WriteResponse sends resp as one envelope.
func WriteResponse(w transport.ExactWriter, resp *Response) error {
	return Responses.Write(w, uint8(resp.Type), resp)
}

// ReadResponse reads one response envelope. On error the returned response is the zero value.
func ReadResponse(r transport.ExactReader) (Response, error) {
	var resp Response
	d, err := Responses.Read(r, &resp)
	if err != nil {
		return Response{}, err
	}
	resp.Type = ResponseType(d)
	return resp, nil
}
