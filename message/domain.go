package message

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var ErrUnknownDomain = errors.New("message: unknown domain")

// Domain is the base type shared by the query and update requests of one kind of record.
// Each domain is served by its own microservice.
type Domain uint8

const (
	DomainWeather Domain = iota
	DomainCurrency
	domainLast
)

var domainNames = [...]string{
	DomainWeather:  "weather",
	DomainCurrency: "currency",
}

func (d Domain) String() string {
	if d >= domainLast {
		return "domain(" + strconv.Itoa(int(d)) + ")"
	}
	return domainNames[d]
}

func (d Domain) Valid() bool { return d < domainLast }

// Query returns the request type that reads records of the domain.
func (d Domain) Query() RequestType {
	if d == DomainCurrency {
		return RequestCurrency
	}
	return RequestWeather
}

// ParseDomain accepts a domain name, case-insensitively.
func ParseDomain(s string) (Domain, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d, n := range domainNames {
		if n == name {
			return Domain(d), nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownDomain, "%q", s)
}

// Domains lists every domain in ordinal order.
func Domains() []Domain {
	ds := make([]Domain, 0, domainLast)
	for d := Domain(0); d < domainLast; d++ {
		ds = append(ds, d)
	}
	return ds
}
