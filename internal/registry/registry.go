// Package registry resolves token identities within and across chains.
// Cross-chain equivalence is decided by origin denom and origin chain, never
// by name matching.
package registry

import (
	"fmt"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

// Registry is an immutable lookup table of known tokens keyed by
// (chainID, denom).
type Registry struct {
	tokens map[string]domain.Token
}

func key(chainID, denom string) string {
	return chainID + "/" + denom
}

// New builds a Registry from a token list. Later duplicates of the same
// (chainID, denom) pair overwrite earlier ones.
func New(tokens []domain.Token) *Registry {
	m := make(map[string]domain.Token, len(tokens))
	for _, t := range tokens {
		m[key(t.ChainID, t.Denom)] = t
	}
	return &Registry{tokens: m}
}

// Get returns the token registered under (chainID, denom).
func (r *Registry) Get(chainID, denom string) (domain.Token, error) {
	t, ok := r.tokens[key(chainID, denom)]
	if !ok {
		return domain.Token{}, fmt.Errorf("%w: %s on %s", domain.ErrTokenNotFound, denom, chainID)
	}
	return t, nil
}

// Counterpart returns the representation of the same economic asset on
// another chain, resolved through the token's origin identity.
func (r *Registry) Counterpart(token domain.Token, chainID string) (domain.Token, error) {
	if token.ChainID == chainID {
		return token, nil
	}
	for _, t := range r.tokens {
		if t.ChainID == chainID && t.SameOrigin(token) {
			return t, nil
		}
	}
	return domain.Token{}, fmt.Errorf("%w: no counterpart of %s/%s on %s",
		domain.ErrTokenNotFound, token.ChainID, token.Denom, chainID)
}

// NativeToken returns the chain's gas token.
func (r *Registry) NativeToken(chain domain.ChainInfo) (domain.Token, error) {
	return r.Get(chain.ID, chain.NativeDenom)
}
