package service

import (
	"context"

	"portal-rpc/message"
	"portal-rpc/store"
)

type WeatherRecord struct {
	Humidity    int32   `json:"humidity"`
	Pressure    float32 `json:"pressure"`
	Temperature float32 `json:"temperature"`
}

// Weather serves weather reports by city.
type Weather struct {
	records *store.Store[WeatherRecord]
}

func NewWeather(records *store.Store[WeatherRecord]) *Weather {
	return &Weather{records: records}
}

func (w *Weather) Domain() message.Domain { return message.DomainWeather }

func (w *Weather) Handle(_ context.Context, req *message.Request) (message.Response, error) {
	switch req.Type {
	case message.RequestWeather:
		city := req.Weather.City.String()
		rec, ok := w.records.Lookup(city)
		if !ok {
			return message.Errorf("unknown city %s", city), nil
		}
		return message.NewWeatherReport(rec.Humidity, rec.Pressure, rec.Temperature), nil

	case message.RequestPostWeather:
		if err := req.Validate(); err != nil {
			return message.Errorf("rejected: %v", err), nil
		}
		u := req.PostWeather
		city := u.City.String()
		_, err := w.records.Update(city, func(rec *WeatherRecord, _ bool) {
			if u.Temperature != message.NoValue {
				rec.Temperature = u.Temperature
			}
			if u.Pressure != message.NoValue {
				rec.Pressure = u.Pressure
			}
			if u.Humidity != message.NoValue {
				rec.Humidity = u.Humidity
			}
		})
		if err != nil {
			return message.Errorf("rejected: %v", err), nil
		}
		return updated(city), nil
	}
	return message.Response{}, unsupported(w.Domain(), req)
}

func (w *Weather) Persist() error { return w.records.Persist() }
