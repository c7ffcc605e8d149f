// Package cryptobox holds the per-connection encryption context negotiated in the
// crypto handshake: a NaCl box (X25519 + XSalsa20-Poly1305) precomputed from the
// server's static secret key and the client's public key.
package cryptobox

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	// KeySize is the size of public and secret keys
	KeySize = 32
	// NonceSize is the size of the nonce prepended to every sealed message
	NonceSize = 24
)

// Errors
var (
	ErrInvalidKey    = errors.New("invalid key")
	ErrShortMessage  = errors.New("sealed message too short")
	ErrDecryptFailed = errors.New("message authentication failed")
	ErrZeroPublicKey = errors.New("public key is all zeroes")
)

// KeyPair is a static X25519 key pair
type KeyPair struct {
	Public [KeySize]byte
	Secret [KeySize]byte
}

// GenerateKeyPair creates a new random key pair
func GenerateKeyPair() (*KeyPair, error) {
	return generateKeyPair(rand.Reader)
}

func generateKeyPair(r io.Reader) (*KeyPair, error) {
	pub, sec, err := box.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return &KeyPair{Public: *pub, Secret: *sec}, nil
}

// KeyPairFromSecret derives the public key for a hex-encoded secret key
func KeyPairFromSecret(secretHex string) (*KeyPair, error) {
	secret, err := ParseKey(secretHex)
	if err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	kp := &KeyPair{Secret: secret}
	copy(kp.Public[:], pub)
	return kp, nil
}

// ParseKey decodes a hex-encoded 32-byte key
func ParseKey(s string) ([KeySize]byte, error) {
	var key [KeySize]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) != KeySize {
		return key, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(b))
	}
	copy(key[:], b)
	return key, nil
}

// EncodeKey hex-encodes a key
func EncodeKey(key [KeySize]byte) string {
	return hex.EncodeToString(key[:])
}

// Box is an established encryption context
type Box struct {
	shared [KeySize]byte
}

// NewBox precomputes the shared key for a peer public key and our secret key
func NewBox(peerPublic, secret *[KeySize]byte) (*Box, error) {
	if *peerPublic == [KeySize]byte{} {
		return nil, ErrZeroPublicKey
	}
	b := &Box{}
	box.Precompute(&b.shared, peerPublic, secret)
	return b, nil
}

// Seal encrypts plaintext under a fresh random nonce; the nonce is prepended
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+box.Overhead)
	copy(out, nonce[:])
	return box.SealAfterPrecomputation(out, plaintext, &nonce, &b.shared), nil
}

// Open decrypts a message produced by Seal on the peer's side
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < NonceSize+box.Overhead {
		return nil, ErrShortMessage
	}
	var nonce [NonceSize]byte
	copy(nonce[:], sealed[:NonceSize])
	out, ok := box.OpenAfterPrecomputation(nil, sealed[NonceSize:], &nonce, &b.shared)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return out, nil
}
