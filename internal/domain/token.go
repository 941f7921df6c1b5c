// Package domain defines the core data model of the rebalancer: tokens and
// amounts, chains, pools and positions, ledger records, and the narrow
// collaborator interfaces through which all chain access happens.
package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Token is the immutable identity of a fungible asset on one chain. Tokens on
// different chains that represent the same economic asset are linked via
// OriginDenom/OriginChainID, never by name matching.
type Token struct {
	ChainID       string `json:"chain_id"`
	Denom         string `json:"denom"`
	Decimals      int    `json:"decimals"`
	Name          string `json:"name"`
	OriginDenom   string `json:"origin_denom,omitempty"`
	OriginChainID string `json:"origin_chain_id,omitempty"`
}

// Origin returns the token's home-chain identity. For a native token this is
// the token itself.
func (t Token) Origin() (chainID, denom string) {
	if t.OriginDenom == "" {
		return t.ChainID, t.Denom
	}
	return t.OriginChainID, t.OriginDenom
}

// SameOrigin reports whether two tokens represent the same economic asset.
func (t Token) SameOrigin(other Token) bool {
	tc, td := t.Origin()
	oc, od := other.Origin()
	return tc == oc && td == od
}

// TokenAmount is a quantity of a token expressed as a non-negative base-10
// integer string in the token's smallest units. It is a value type and is
// copied freely.
type TokenAmount struct {
	Amount string `json:"amount"`
	Token  Token  `json:"token"`
}

// NewTokenAmount builds a TokenAmount from a big integer of base units.
// Negative inputs are clamped to zero; amounts never go negative.
func NewTokenAmount(amount *big.Int, token Token) TokenAmount {
	if amount == nil || amount.Sign() < 0 {
		return TokenAmount{Amount: "0", Token: token}
	}
	return TokenAmount{Amount: amount.String(), Token: token}
}

// TokenAmountFromString builds a TokenAmount from a base-unit integer string
// as returned by chain and venue APIs. Empty strings become zero.
func TokenAmountFromString(amount string, token Token) TokenAmount {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		amount = "0"
	}
	return TokenAmount{Amount: amount, Token: token}
}

// ZeroAmount returns a zero quantity of the given token.
func ZeroAmount(token Token) TokenAmount {
	return TokenAmount{Amount: "0", Token: token}
}

// BigInt parses the amount into a big integer of base units.
func (a TokenAmount) BigInt() (*big.Int, error) {
	s := strings.TrimSpace(a.Amount)
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("domain: invalid token amount %q for %s", a.Amount, a.Token.Denom)
	}
	return n, nil
}

// Decimal returns the amount in base units as an arbitrary-precision decimal.
func (a TokenAmount) Decimal() (*apd.Decimal, error) {
	n, err := a.BigInt()
	if err != nil {
		return nil, err
	}
	d, _, err := apd.NewFromString(n.String())
	if err != nil {
		return nil, fmt.Errorf("domain: parse token amount %q: %w", a.Amount, err)
	}
	return d, nil
}

// IsZero reports whether the amount is zero (or empty).
func (a TokenAmount) IsZero() bool {
	n, err := a.BigInt()
	return err == nil && n.Sign() == 0
}

// Human renders the amount shifted by the token's decimals, e.g. 1500000
// uosmo with 6 decimals becomes "1.500000".
func (a TokenAmount) Human() string {
	n, err := a.BigInt()
	if err != nil {
		return a.Amount
	}
	s := n.String()
	d := a.Token.Decimals
	if d <= 0 {
		return s
	}
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	return s[:len(s)-d] + "." + s[len(s)-d:]
}

func (a TokenAmount) String() string {
	return a.Amount + a.Token.Denom
}

// ChainInfo is static per-chain configuration.
type ChainInfo struct {
	ID           string `toml:"id" json:"id"`
	Name         string `toml:"name" json:"name"`
	Prefix       string `toml:"prefix" json:"prefix"`
	RPCEndpoint  string `toml:"rpc_endpoint" json:"rpc_endpoint"`
	RESTEndpoint string `toml:"rest_endpoint" json:"rest_endpoint"`
	NativeDenom  string `toml:"native_denom" json:"native_denom"`
}
