// Package service implements the business handlers that answer requests inside a
// microservice. Each handler owns the store of one domain.
package service

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"portal-rpc/message"
	"portal-rpc/store"
)

var ErrUnsupported = errors.New("service: request type not handled here")

// Handler answers the requests of one domain.
type Handler interface {
	Domain() message.Domain
	// Handle returns a response for every request it accepts. Lookups of absent records and
	// invalid updates are answered with a result response; an error means the request could
	// not be served at all.
	Handle(ctx context.Context, req *message.Request) (message.Response, error)
	// Persist saves the domain state.
	Persist() error
}

// StatePath is where a domain's state lives under dataDir. An empty dataDir keeps state in
// memory only.
func StatePath(dataDir string, d message.Domain) string {
	if dataDir == "" {
		return ""
	}
	return filepath.Join(dataDir, d.String()+".json")
}

// Open loads the state of domain d and returns its handler.
func Open(d message.Domain, dataDir string) (Handler, error) {
	path := StatePath(dataDir, d)
	switch d {
	case message.DomainWeather:
		st, err := store.Open[WeatherRecord](path)
		if err != nil {
			return nil, err
		}
		return NewWeather(st), nil
	case message.DomainCurrency:
		st, err := store.Open[CurrencyRecord](path)
		if err != nil {
			return nil, err
		}
		return NewCurrency(st), nil
	}
	return nil, errors.Wrapf(message.ErrUnknownDomain, "%d", d)
}

func updated(key string) message.Response {
	return message.NewResult("updated " + store.Key(key))
}

func unsupported(d message.Domain, req *message.Request) error {
	return errors.Wrapf(ErrUnsupported, "%s service got %s", d, req.Variant())
}
