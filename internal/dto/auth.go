package dto

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"vault/internal/domain"
)

var uuidRE = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

type RequestToken struct {
	DID        domain.Identity
	Initialize bool
}

func ParseRequestToken(q url.Values) (RequestToken, error) {
	id, err := ParseDID(q)
	if err != nil {
		return RequestToken{}, err
	}
	return RequestToken{DID: id, Initialize: parseBool(q.Get("initialize"))}, nil
}

// ParseDID reads the did query parameter.
func ParseDID(q url.Values) (domain.Identity, error) {
	return domain.ParseIdentity(q.Get("did"))
}

// parseBool accepts the spellings clients send for a flag; anything else is
// false.
func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ValidateTokenRequest struct {
	AccessToken string `json:"accessToken"`
	DID         string `json:"did"`
	Signature   string `json:"signature"`
	// PublicKey is an armored OpenPGP key, sent once by pgp identities.
	PublicKey string `json:"publicKey,omitempty"`
}

type ValidatedToken struct {
	// Token is the accessToken as sent; it is the signed message.
	Token     string
	TokenID   uuid.UUID
	DID       domain.Identity
	Signature string
	PublicKey []byte
}

func (r ValidateTokenRequest) Validate() (ValidatedToken, error) {
	if r.AccessToken == "" {
		return ValidatedToken{}, domain.Missing("accessToken")
	}
	if !uuidRE.MatchString(r.AccessToken) {
		return ValidatedToken{}, domain.BadFormat("accessToken")
	}
	tokenID, err := uuid.Parse(r.AccessToken)
	if err != nil {
		return ValidatedToken{}, domain.BadFormat("accessToken")
	}
	id, err := domain.ParseIdentity(r.DID)
	if err != nil {
		return ValidatedToken{}, err
	}
	if r.Signature == "" {
		return ValidatedToken{}, domain.Missing("signature")
	}

	out := ValidatedToken{Token: r.AccessToken, TokenID: tokenID, DID: id, Signature: r.Signature}
	if r.PublicKey != "" {
		out.PublicKey = []byte(r.PublicKey)
	}
	return out, nil
}

type ValidateTokenResponse struct {
	ExpiresAt int64 `json:"expiresAt"`
}
