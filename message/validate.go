package message

import (
	"strings"

	"github.com/cockroachdb/errors"
)

var ErrInvalid = errors.New("message: invalid request")

// Lowest accepted temperature, in degrees Celsius.
const minTemperature = -273

// Validate checks the request's key and the values an update would store. Update fields
// holding NoValue are not checked.
func (r *Request) Validate() error {
	if _, err := r.Domain(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Key()) == "" {
		return errors.Wrapf(ErrInvalid, "%s: empty key", r.Variant())
	}
	switch r.Type {
	case RequestPostWeather:
		u := r.PostWeather
		if u.Temperature != NoValue && u.Temperature <= minTemperature {
			return errors.Wrapf(ErrInvalid, "temperature %.4f below %d", u.Temperature, minTemperature)
		}
		if u.Pressure != NoValue && u.Pressure <= 0 {
			return errors.Wrapf(ErrInvalid, "pressure %.4f must be positive", u.Pressure)
		}
		if u.Humidity != NoValue && u.Humidity <= 0 {
			return errors.Wrapf(ErrInvalid, "humidity %d must be positive", u.Humidity)
		}
	case RequestPostCurrency:
		if r.PostCurrency.Value <= 0 {
			return errors.Wrapf(ErrInvalid, "value %.4f must be positive", r.PostCurrency.Value)
		}
	}
	return nil
}
