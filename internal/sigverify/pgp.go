package sigverify

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/openpgp"
	pgperrors "golang.org/x/crypto/openpgp/errors"

	"vault/internal/domain"
)

// PGP verifies armored detached OpenPGP signatures for pgp: identities. The
// armored public key is presented once, on the first validation, and bound to
// the identity; later signatures are checked against the bound key only.
type PGP struct{}

func (PGP) Method() string { return "pgp" }

func (PGP) Verify(id domain.Identity, message, sig string, bound, presented []byte) ([]byte, error) {
	if len(bound) > 0 && len(presented) > 0 {
		return nil, ErrKeyBound
	}
	key, bind := bound, []byte(nil)
	if len(key) == 0 {
		if len(presented) == 0 {
			return nil, ErrNoKey
		}
		key, bind = presented, presented
	}

	ring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrMalformed, err)
	}
	if len(ring) != 1 {
		return nil, fmt.Errorf("%w: expected one public key, got %d", ErrMalformed, len(ring))
	}
	fp := ring[0].PrimaryKey.Fingerprint
	if hex.EncodeToString(fp[:]) != id.Subject() {
		return nil, ErrMismatch
	}

	_, err = openpgp.CheckArmoredDetachedSignature(ring, strings.NewReader(message), strings.NewReader(sig))
	if err != nil {
		var sigErr pgperrors.SignatureError
		if errors.As(err, &sigErr) || errors.Is(err, pgperrors.ErrUnknownIssuer) {
			return nil, ErrMismatch
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return bind, nil
}
