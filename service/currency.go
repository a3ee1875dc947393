package service

import (
	"context"

	"portal-rpc/message"
	"portal-rpc/store"
)

type CurrencyRecord struct {
	Quote float32 `json:"quote"`
}

// Currency serves exchange quotes by currency name.
type Currency struct {
	records *store.Store[CurrencyRecord]
}

func NewCurrency(records *store.Store[CurrencyRecord]) *Currency {
	return &Currency{records: records}
}

func (c *Currency) Domain() message.Domain { return message.DomainCurrency }

func (c *Currency) Handle(_ context.Context, req *message.Request) (message.Response, error) {
	switch req.Type {
	case message.RequestCurrency:
		name := req.Currency.Currency.String()
		rec, ok := c.records.Lookup(name)
		if !ok {
			return message.Errorf("unknown currency %s", name), nil
		}
		return message.NewCurrencyReport(rec.Quote), nil

	case message.RequestPostCurrency:
		if err := req.Validate(); err != nil {
			return message.Errorf("rejected: %v", err), nil
		}
		name := req.PostCurrency.Currency.String()
		value := req.PostCurrency.Value
		if _, err := c.records.Update(name, func(rec *CurrencyRecord, _ bool) { rec.Quote = value }); err != nil {
			return message.Errorf("rejected: %v", err), nil
		}
		return updated(name), nil
	}
	return message.Response{}, unsupported(c.Domain(), req)
}

func (c *Currency) Persist() error { return c.records.Persist() }
