package crypto

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKeyHex = "fad9c8855b740a0b7ed4c221dbad0f33a83a49cad6b3fe8d5817ac83d38b6a19"

func TestWalletSigner_Address(t *testing.T) {
	s, err := NewWalletSigner(testKeyHex, "osmo")
	require.NoError(t, err)

	addr := s.Address()
	require.True(t, strings.HasPrefix(addr, "osmo1"), "address %q", addr)
	require.Len(t, addr, 43)

	// Same key, same address.
	s2, err := NewWalletSigner("0x"+testKeyHex, "osmo")
	require.NoError(t, err)
	require.Equal(t, addr, s2.Address())

	// Different prefix, different rendering of the same key hash.
	s3, err := NewWalletSigner(testKeyHex, "arch")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(s3.Address(), "arch1"))
	require.NotEqual(t, addr, s3.Address())
}

func TestWalletSigner_Sign(t *testing.T) {
	s, err := NewWalletSigner(testKeyHex, "osmo")
	require.NoError(t, err)

	sig, err := s.Sign(context.Background(), []byte("payload"))
	require.NoError(t, err)
	require.Len(t, sig, 64)

	// RFC 6979 deterministic nonces: identical payloads sign identically.
	sig2, err := s.Sign(context.Background(), []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, sig, sig2)

	sig3, err := s.Sign(context.Background(), []byte("other payload"))
	require.NoError(t, err)
	require.NotEqual(t, sig, sig3)
}

func TestNewWalletSigner_Invalid(t *testing.T) {
	_, err := NewWalletSigner("not-hex", "osmo")
	require.Error(t, err)

	_, err = NewWalletSigner(testKeyHex, "")
	require.Error(t, err)
}

func TestBech32Encode_ReferenceVector(t *testing.T) {
	// BIP-173 valid test vector: hrp "a" with empty data.
	enc, err := bech32Encode("a", nil)
	require.NoError(t, err)
	require.Equal(t, "a12uel5l", enc)
}

func TestKeyfileRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	require.Equal(t, testKeyHex, got)

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
}

func TestEncryptKey_Validation(t *testing.T) {
	_, err := EncryptKey(testKeyHex, "")
	require.Error(t, err)

	_, err = EncryptKey("abcd", "pw")
	require.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	// Raw key takes precedence and strips the 0x prefix.
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	require.Equal(t, testKeyHex, got)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "zz"})
	require.Error(t, err)

	_, err = LoadKey(KeyConfig{})
	require.Error(t, err)

	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadKey(KeyConfig{KeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	require.Equal(t, testKeyHex, got)
}
