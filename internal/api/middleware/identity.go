package middleware

import (
	"net/http"

	"leilao/internal/domain"
)

// IdentityProvider resolves the opaque caller identity from a request. The
// core never inspects the identity beyond comparing it with the auction's
// seller and stamping it on accepted bids.
type IdentityProvider interface {
	Resolve(r *http.Request) (string, error)
}

const DefaultIdentityHeader = "X-User-ID"

// HeaderIdentity trusts an upstream gateway to authenticate the caller and
// forward the resolved identity in a header.
type HeaderIdentity struct {
	Header string
}

func NewHeaderIdentity() HeaderIdentity {
	return HeaderIdentity{Header: DefaultIdentityHeader}
}

func (h HeaderIdentity) Resolve(r *http.Request) (string, error) {
	id := r.Header.Get(h.Header)
	if id == "" {
		return "", domain.ErrNoIdentity
	}
	return id, nil
}
