package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"zkpad/internal/domain"
	cryptoinfra "zkpad/internal/infra/crypto"
)

type packageDoc struct {
	Package       json.RawMessage       `json:"package"`
	PackageDigest string                `json:"package_digest"`
	Signature     domain.SignatureBlock `json:"signature"`
}

type verifyOutput struct {
	PackageDigestValid bool   `json:"package_digest_valid"`
	SignatureValid     bool   `json:"signature_valid"`
	SignerPublicKey    string `json:"signer_public_key"`
	AttestationID      string `json:"attestation_id,omitempty"`
}

// runVerify checks a downloaded attestation package offline: the digest
// must reproduce from the canonical bytes and the Ed25519 signature must
// verify against the embedded public key.
func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var inPath string
	var pubHex string
	var outPath string
	fs.StringVar(&inPath, "in", "", "downloaded package JSON path")
	fs.StringVar(&pubHex, "pubkey-hex", "", "expected signer public key (hex, optional)")
	fs.StringVar(&outPath, "out", "", "output JSON path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if inPath == "" {
		fmt.Fprintln(os.Stderr, "verify requires --in")
		return 1
	}

	payload, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read package: %v\n", err)
		return 1
	}
	var doc packageDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		fmt.Fprintf(os.Stderr, "decode package: %v\n", err)
		return 2
	}
	if len(doc.Package) == 0 || doc.Signature.Value == "" {
		fmt.Fprintln(os.Stderr, "package document is missing package body or signature")
		return 2
	}
	if pubHex != "" && pubHex != doc.Signature.SignerPublicKey {
		fmt.Fprintln(os.Stderr, "signer public key does not match --pubkey-hex")
		return 2
	}

	canonical, err := cryptoinfra.CanonicalizeJSON(doc.Package)
	if err != nil {
		fmt.Fprintf(os.Stderr, "canonicalize package: %v\n", err)
		return 2
	}

	out := verifyOutput{
		SignerPublicKey: doc.Signature.SignerPublicKey,
	}
	out.PackageDigestValid = cryptoinfra.SHA256Hex(canonical) == doc.PackageDigest
	digest := cryptoinfra.SHA256Bytes(canonical)
	out.SignatureValid = cryptoinfra.VerifyEncoded(doc.Signature.SignerPublicKey, doc.Signature.Value, digest) == nil

	var body struct {
		AttestationID string `json:"attestation_id"`
	}
	if json.Unmarshal(doc.Package, &body) == nil {
		out.AttestationID = body.AttestationID
	}

	encoded, err := cryptoinfra.CanonicalizeAny(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return 4
	}
	if err := writeOutput(outPath, encoded); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 4
	}
	if !out.PackageDigestValid || !out.SignatureValid {
		return 2
	}
	return 0
}
