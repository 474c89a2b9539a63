package crypto

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

const testMnemonic = "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike november oscar papa quebec romeo sierra tango uniform victor whiskey xray yankee"

func TestSignerFromSeed_Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, err := NewSignerFromSeed(seed)
	if err != nil {
		t.Fatalf("from seed: %v", err)
	}
	b, err := NewSignerFromSeed(seed)
	if err != nil {
		t.Fatalf("from seed: %v", err)
	}
	if a.PublicKeyHex() != b.PublicKeyHex() {
		t.Fatal("same seed produced different keys")
	}
}

func TestSignerFromSeed_RejectsBadLength(t *testing.T) {
	if _, err := NewSignerFromSeed([]byte("short")); err == nil {
		t.Fatal("short seed accepted")
	}
}

func TestSignerFromMnemonic(t *testing.T) {
	if len(strings.Fields(testMnemonic)) != 25 {
		t.Fatal("test mnemonic must have 25 words")
	}
	a, err := NewSignerFromMnemonic(testMnemonic)
	if err != nil {
		t.Fatalf("from mnemonic: %v", err)
	}
	b, err := NewSignerFromMnemonic("  " + strings.ToUpper(testMnemonic) + " ")
	if err != nil {
		t.Fatalf("from normalized mnemonic: %v", err)
	}
	if a.PublicKeyHex() != b.PublicKeyHex() {
		t.Fatal("mnemonic normalization changed the derived key")
	}
	if _, err := NewSignerFromMnemonic("only three words"); err == nil {
		t.Fatal("short mnemonic accepted")
	}
}

func TestSignAndVerify(t *testing.T) {
	signer, err := NewSigner()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	payload := []byte("attestation package digest")
	sig := signer.Sign(payload)

	if err := VerifyEd25519(signer.Public(), payload, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyEd25519(signer.Public(), []byte("other"), sig); err == nil {
		t.Fatal("signature verified over wrong payload")
	}

	encoded := base64.StdEncoding.EncodeToString(sig)
	if err := VerifyEncoded(signer.PublicKeyHex(), encoded, payload); err != nil {
		t.Fatalf("verify encoded: %v", err)
	}
	if err := VerifyEncoded(signer.PublicKeyHex(), "!!!", payload); err == nil {
		t.Fatal("malformed signature accepted")
	}
}
