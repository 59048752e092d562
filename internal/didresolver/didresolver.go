// Package didresolver builds DID documents for identities the vault knows how
// to describe without a network lookup.
package didresolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"vault/internal/domain"
)

var ErrUnsupported = errors.New("did method not supported")

type Resolver interface {
	Resolve(ctx context.Context, id domain.Identity) (*Document, error)
}

type VerificationMethod struct {
	ID                  string `json:"id"`
	Type                string `json:"type"`
	Controller          string `json:"controller"`
	BlockchainAccountID string `json:"blockchainAccountId"`
}

type Document struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod"`
}

// Ethr describes did:ethr identities that have never changed owner or added
// delegates, which is all the vault can tell without reading the registry
// contract.
type Ethr struct {
	ChainID int64
}

func (e Ethr) Resolve(_ context.Context, id domain.Identity) (*Document, error) {
	if id.Method() != "ethr" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, id.Method())
	}
	chain := e.ChainID
	if chain == 0 {
		chain = 1
	}

	did := id.String()
	controller := did + "#controller"
	addr := common.HexToAddress(id.Subject())
	return &Document{
		Context: []string{
			"https://www.w3.org/ns/did/v1",
			"https://w3id.org/security/suites/secp256k1recovery-2020/v2",
		},
		ID: did,
		VerificationMethod: []VerificationMethod{{
			ID:                  controller,
			Type:                "EcdsaSecp256k1RecoveryMethod2020",
			Controller:          did,
			BlockchainAccountID: fmt.Sprintf("eip155:%d:%s", chain, addr.Hex()),
		}},
		Authentication:  []string{controller},
		AssertionMethod: []string{controller},
	}, nil
}
