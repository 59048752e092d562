package domain

import (
	"regexp"
	"strings"
)

// Identity is the normalized key of an entity. Values are only produced by
// ParseIdentity, so two spellings of the same DID or fingerprint always
// compare equal.
type Identity string

const (
	EthrPrefix = "did:ethr:"
	PGPPrefix  = "pgp:"
)

var (
	ethrDID     = regexp.MustCompile(`^did:ethr:0x[0-9a-f]{40}$`)
	fingerprint = regexp.MustCompile(`^[0-9a-f]{40}$`)

	fingerprintSeparators = strings.NewReplacer("-", "", ":", "", " ", "")
)

// ParseIdentity accepts an Ethereum DID (did:ethr:0x...) or an OpenPGP v4
// fingerprint, with or without the pgp: prefix and common separators.
func ParseIdentity(raw string) (Identity, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", Missing("did")
	}
	if strings.HasPrefix(s, EthrPrefix) {
		if !ethrDID.MatchString(s) {
			return "", BadFormat("did")
		}
		return Identity(s), nil
	}

	fp := fingerprintSeparators.Replace(strings.TrimPrefix(s, PGPPrefix))
	fp = strings.TrimPrefix(fp, "0x")
	if !fingerprint.MatchString(fp) {
		return "", BadFormat("did")
	}
	return Identity(PGPPrefix + fp), nil
}

func (id Identity) String() string { return string(id) }

// Method names the identity family, which selects the signature scheme.
func (id Identity) Method() string {
	switch {
	case strings.HasPrefix(string(id), EthrPrefix):
		return "ethr"
	case strings.HasPrefix(string(id), PGPPrefix):
		return "pgp"
	}
	return ""
}

// Subject is the identity without its method prefix: the 0x address for
// did:ethr identities, the hex fingerprint for pgp ones.
func (id Identity) Subject() string {
	s := strings.TrimPrefix(string(id), EthrPrefix)
	return strings.TrimPrefix(s, PGPPrefix)
}
