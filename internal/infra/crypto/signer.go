package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Signer holds Ed25519 key material. It is initialized once at startup
// and read-only afterwards.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// NewSignerFromSeed loads a key from a raw 32-byte seed.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func NewSignerFromSeedHex(seedHex string) (*Signer, error) {
	raw, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decode seed hex: %w", err)
	}
	return NewSignerFromSeed(raw)
}

// NewSignerFromMnemonic derives the seed from a 25-word mnemonic: the
// words are lowercased, joined by single spaces, and hashed with SHA-256.
// The same phrase always yields the same key.
func NewSignerFromMnemonic(mnemonic string) (*Signer, error) {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(mnemonic)))
	if len(words) != 25 {
		return nil, fmt.Errorf("mnemonic must have 25 words, got %d", len(words))
	}
	seed := sha256.Sum256([]byte(strings.Join(words, " ")))
	return NewSignerFromSeed(seed[:])
}

func (s *Signer) Sign(payload []byte) []byte {
	return ed25519.Sign(s.priv, payload)
}

func (s *Signer) Public() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), s.pub...)
}

// PublicKeyHex is the signer identifier recorded in signature blocks.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.pub)
}

func VerifyEd25519(pubKey, payload, sig []byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid ed25519 public key length: %d", len(pubKey))
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid ed25519 signature length: %d", len(sig))
	}
	if !ed25519.Verify(pubKey, payload, sig) {
		return errors.New("signature verification failed")
	}
	return nil
}

// VerifyEncoded verifies a base64 signature against a hex public key.
func VerifyEncoded(pubKeyHex, sigBase64 string, payload []byte) error {
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(sigBase64)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	return VerifyEd25519(pub, payload, sig)
}
