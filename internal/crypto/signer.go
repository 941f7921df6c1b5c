package crypto

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

// WalletSigner signs transaction payloads with a secp256k1 key and derives
// the wallet's bech32 account address from it. It implements domain.Signer.
type WalletSigner struct {
	key     *ecdsa.PrivateKey
	address string
}

var _ domain.Signer = (*WalletSigner)(nil)

// NewWalletSigner creates a signer from a hex-encoded secp256k1 private key.
// prefix is the chain's bech32 account prefix (e.g. "osmo").
func NewWalletSigner(privateKeyHex, prefix string) (*WalletSigner, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	if prefix == "" {
		return nil, fmt.Errorf("crypto: bech32 prefix must not be empty")
	}

	addr, err := accountAddress(&key.PublicKey, prefix)
	if err != nil {
		return nil, err
	}
	return &WalletSigner{key: key, address: addr}, nil
}

// Address returns the wallet's bech32 account address.
func (s *WalletSigner) Address() string {
	return s.address
}

// Sign produces a 64-byte secp256k1 signature (r || s) over the SHA-256
// digest of the payload.
func (s *WalletSigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	sig, err := ethcrypto.Sign(digest[:], s.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: signing: %w", err)
	}
	// Drop the recovery byte; chain verification only needs r || s.
	return sig[:64], nil
}

// StaticSigner carries a fixed address with no key material. Sign always
// fails; it exists so address-only configurations can still read chain state.
type StaticSigner struct {
	address string
}

var _ domain.Signer = (*StaticSigner)(nil)

// NewStaticSigner creates a read-only signer for the given address.
func NewStaticSigner(address string) *StaticSigner {
	return &StaticSigner{address: address}
}

func (s *StaticSigner) Address() string {
	return s.address
}

func (s *StaticSigner) Sign(context.Context, []byte) ([]byte, error) {
	return nil, fmt.Errorf("crypto: no private key configured for %s", s.address)
}

// accountAddress derives the standard Cosmos account address:
// bech32(prefix, ripemd160(sha256(compressed_pubkey))).
func accountAddress(pub *ecdsa.PublicKey, prefix string) (string, error) {
	compressed := ethcrypto.CompressPubkey(pub)
	sum := sha256.Sum256(compressed)
	hasher := ripemd160.New()
	hasher.Write(sum[:])
	return bech32Encode(prefix, hasher.Sum(nil))
}
