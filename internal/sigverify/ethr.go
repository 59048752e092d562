package sigverify

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"vault/internal/domain"
)

// Ethr verifies EIP-191 personal_sign signatures for did:ethr identities by
// recovering the signer address.
type Ethr struct{}

func (Ethr) Method() string { return "ethr" }

func (Ethr) Verify(id domain.Identity, message, sig string, _, _ []byte) ([]byte, error) {
	addr, err := RecoverAddress(message, sig)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(addr.Hex(), id.Subject()) {
		return nil, ErrMismatch
	}
	return nil, nil
}

// RecoverAddress returns the address that produced a 65-byte r||s||v
// personal_sign signature over message. v may be 0/1 or 27/28.
func RecoverAddress(message, sig string) (common.Address, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(sig, "0x"), "0X"))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformed, crypto.SignatureLength, len(raw))
	}
	if raw[crypto.RecoveryIDOffset] >= 27 {
		raw[crypto.RecoveryIDOffset] -= 27
	}
	if raw[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: bad recovery id", ErrMalformed)
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
