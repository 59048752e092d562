// Package sigverifytest builds identities and signatures for tests of code
// that sits behind sigverify.
package sigverifytest

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"

	"vault/internal/domain"
)

// EthrSigner signs like a wallet's personal_sign.
type EthrSigner struct {
	Key *ecdsa.PrivateKey
}

func NewEthr(t testing.TB) *EthrSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &EthrSigner{Key: key}
}

// EthrFromHex loads a fixed private key.
func EthrFromHex(t testing.TB, hexKey string) *EthrSigner {
	t.Helper()
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	return &EthrSigner{Key: key}
}

func (s *EthrSigner) Identity() domain.Identity {
	addr := crypto.PubkeyToAddress(s.Key.PublicKey)
	return domain.Identity(domain.EthrPrefix + strings.ToLower(addr.Hex()))
}

func (s *EthrSigner) Sign(t testing.TB, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.Key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return "0x" + hex.EncodeToString(sig)
}

// PGPSigner holds a freshly generated OpenPGP entity.
type PGPSigner struct {
	Entity *openpgp.Entity
}

func NewPGP(t testing.TB, name string) *PGPSigner {
	t.Helper()
	e, err := openpgp.NewEntity(name, "", name+"@example.test", nil)
	if err != nil {
		t.Fatalf("new entity: %v", err)
	}
	return &PGPSigner{Entity: e}
}

func (s *PGPSigner) Identity() domain.Identity {
	fp := s.Entity.PrimaryKey.Fingerprint
	return domain.Identity(domain.PGPPrefix + hex.EncodeToString(fp[:]))
}

// PublicKey returns the armored public key.
func (s *PGPSigner) PublicKey(t testing.TB) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatalf("armor: %v", err)
	}
	if err := s.Entity.Serialize(w); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("armor close: %v", err)
	}
	return buf.String()
}

func (s *PGPSigner) Sign(t testing.TB, message string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, s.Entity, strings.NewReader(message), nil); err != nil {
		t.Fatalf("detach sign: %v", err)
	}
	return buf.String()
}
