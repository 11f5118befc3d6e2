package common

import (
	"github.com/erpc/walletrpc/util"
)

// Endpoint is one concrete JSON-RPC address. Its identity is the url.
type Endpoint struct {
	Url string
}

func NewEndpoint(url string) Endpoint {
	return Endpoint{Url: url}
}

// Redacted returns a form of the url that is safe to log.
func (e Endpoint) Redacted() string {
	return util.RedactEndpoint(e.Url)
}

func (e Endpoint) String() string {
	return e.Redacted()
}

// Candidates returns the ordered candidate endpoints of a network.
func (c *NetworkConfig) Candidates() []Endpoint {
	out := make([]Endpoint, 0, len(c.Endpoints))
	for _, u := range c.Endpoints {
		out = append(out, NewEndpoint(u))
	}
	return out
}
