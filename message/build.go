package message

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"portal-rpc/scalar"
)

func NewWeatherQuery(city string) (Request, error) {
	req := Request{Type: RequestWeather}
	if err := req.Weather.City.Set(city); err != nil {
		return Request{}, errors.Wrap(err, "city")
	}
	return req, nil
}

func NewCurrencyQuery(currency string) (Request, error) {
	req := Request{Type: RequestCurrency}
	if err := req.Currency.Currency.Set(currency); err != nil {
		return Request{}, errors.Wrap(err, "currency")
	}
	return req, nil
}

// NewWeatherUpdate builds a post_weather request. Pass NoValue for fields to keep.
func NewWeatherUpdate(city string, temperature, pressure float32, humidity int32) (Request, error) {
	req := Request{
		Type: RequestPostWeather,
		PostWeather: WeatherUpdate{
			Temperature: temperature,
			Pressure:    pressure,
			Humidity:    humidity,
		},
	}
	if err := req.PostWeather.City.Set(city); err != nil {
		return Request{}, errors.Wrap(err, "city")
	}
	return req, nil
}

func NewCurrencyUpdate(currency string, value float32) (Request, error) {
	req := Request{Type: RequestPostCurrency, PostCurrency: CurrencyUpdate{Value: value}}
	if err := req.PostCurrency.Currency.Set(currency); err != nil {
		return Request{}, errors.Wrap(err, "currency")
	}
	return req, nil
}

func NewWeatherReport(humidity int32, pressure, temperature float32) Response {
	return Response{
		Type:    ResponseWeather,
		Weather: WeatherReport{Humidity: humidity, Pressure: pressure, Temperature: temperature},
	}
}

func NewCurrencyReport(quote float32) Response {
	return Response{Type: ResponseCurrency, Currency: CurrencyReport{Quote: quote}}
}

// NewResult builds a result response. The text is cut to fit a bounded string on a rune
// boundary; NUL bytes and invalid UTF-8 are dropped.
func NewResult(text string) Response {
	text = strings.ToValidUTF8(strings.ReplaceAll(text, "\x00", ""), "")
	if len(text) > scalar.MaxLen {
		cut := scalar.MaxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return Response{Type: ResponseResult, Result: Result{Message: scalar.MustString(text)}}
}

// Errorf builds a result response from a formatted message.
func Errorf(format string, args ...any) Response {
	return NewResult(fmt.Sprintf(format, args...))
}
