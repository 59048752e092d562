// Package sigverify checks signatures made by vault identities. Each identity
// method (did:ethr, pgp) has its own Scheme; the Registry picks one from the
// identity prefix.
package sigverify

import (
	"errors"
	"fmt"

	"vault/internal/domain"
)

var (
	// ErrMalformed means the signature or key could not be decoded at all.
	ErrMalformed = errors.New("malformed signature")
	// ErrMismatch means the signature decoded but was not made by the identity.
	ErrMismatch = errors.New("signature does not match identity")
	// ErrKeyBound is returned when a key is presented for an identity that
	// already has one.
	ErrKeyBound = errors.New("identity already has a bound key")
	ErrNoKey    = errors.New("identity has no bound key")
	ErrUnknown  = errors.New("unsupported identity method")
)

type Scheme interface {
	Method() string
	// Verify checks sig over message for id. bound is the key already stored
	// for the identity and presented is one sent with the request; either may
	// be nil. The returned key, if non-nil, must be bound to the identity.
	Verify(id domain.Identity, message, sig string, bound, presented []byte) ([]byte, error)
}

type Registry struct {
	schemes map[string]Scheme
}

func NewRegistry(schemes ...Scheme) *Registry {
	r := &Registry{schemes: make(map[string]Scheme, len(schemes))}
	for _, s := range schemes {
		r.schemes[s.Method()] = s
	}
	return r
}

// Default knows every identity method ParseIdentity can produce.
func Default() *Registry {
	return NewRegistry(Ethr{}, PGP{})
}

func (r *Registry) For(id domain.Identity) (Scheme, error) {
	s, ok := r.schemes[id.Method()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, id.Method())
	}
	return s, nil
}

func (r *Registry) Verify(id domain.Identity, message, sig string, bound, presented []byte) ([]byte, error) {
	s, err := r.For(id)
	if err != nil {
		return nil, err
	}
	return s.Verify(id, message, sig, bound, presented)
}

// DeletionMessage is the text a client signs to authorize deleting one record.
func DeletionMessage(id int64) string {
	return fmt.Sprintf("delete data id %d", id)
}
