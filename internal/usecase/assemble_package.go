package usecase

import (
	"encoding/base64"
	"fmt"
	"time"

	"zkpad/internal/domain"
	cryptoinfra "zkpad/internal/infra/crypto"
)

const (
	PackageProtocol = "zkpa"
	PackageVersion  = "1.1"
)

// AssemblePackage canonicalizes the ZKPA package, hashes the canonical
// bytes, and signs the digest. Signing always operates on bytes; the
// top-level key order comes from the canonical sort, never insertion.
type AssemblePackage struct {
	Signer *cryptoinfra.Signer
	Clock  func() time.Time
}

func NewAssemblePackage(signer *cryptoinfra.Signer, clock func() time.Time) *AssemblePackage {
	if clock == nil {
		clock = time.Now
	}
	return &AssemblePackage{Signer: signer, Clock: clock}
}

func (uc *AssemblePackage) Execute(a *domain.Attestation) (*domain.PackageRecord, error) {
	canonical, err := CanonicalPackageBytes(a)
	if err != nil {
		return nil, err
	}
	digest := cryptoinfra.SHA256Bytes(canonical)
	sig := uc.Signer.Sign(digest)
	return &domain.PackageRecord{
		Digest:    cryptoinfra.SHA256Hex(canonical),
		SizeBytes: len(canonical),
		Signature: domain.SignatureBlock{
			Algorithm:       "Ed25519",
			Value:           base64.StdEncoding.EncodeToString(sig),
			SignerPublicKey: uc.Signer.PublicKeyHex(),
			SignedAt:        uc.Clock().UTC(),
		},
	}, nil
}

// CanonicalPackageBytes rebuilds the package's canonical form from the
// attestation. Verification recomputes these bytes and must reproduce
// the stored digest and signature.
func CanonicalPackageBytes(a *domain.Attestation) ([]byte, error) {
	if a.Evidence == nil {
		return nil, fmt.Errorf("%w: package requires an evidence record", domain.ErrInvalidRequest)
	}
	if a.Proof == nil {
		return nil, fmt.Errorf("%w: package requires a proof record", domain.ErrInvalidRequest)
	}

	items := make([]any, 0, len(a.Evidence.Items))
	for i, item := range a.Evidence.Items {
		// The package carries references only; anything resembling an
		// inline payload was rejected at commit time, and the schema
		// here has no field that could hold one.
		if item.URI == "" || item.Digest == "" {
			return nil, fmt.Errorf("%w: evidence item %d lacks uri or digest", domain.ErrInvalidRequest, i)
		}
		items = append(items, map[string]any{
			"evidence_id": item.LocalID,
			"uri":         item.URI,
			"hash":        item.Digest,
			"type":        item.Type,
		})
	}

	inputs := make([]any, 0, len(a.Proof.PublicInputs))
	for _, in := range a.Proof.PublicInputs {
		inputs = append(inputs, in)
	}

	pkg := map[string]any{
		"protocol":       PackageProtocol,
		"version":        PackageVersion,
		"attestation_id": a.ID,
		"evidence": map[string]any{
			"items":           items,
			"merkle_root":     a.Evidence.MerkleRoot,
			"commitment_hash": a.Evidence.CommitmentHash,
			"leaf_count":      a.Evidence.LeafCount,
		},
		"proof": map[string]any{
			"algorithm":     a.Proof.Algorithm,
			"digest":        a.Proof.Digest,
			"public_inputs": inputs,
			"size_bytes":    a.Proof.SizeBytes,
		},
		"metadata": map[string]any{
			"policy":      a.Metadata.Policy,
			"issuer":      a.Metadata.Issuer,
			"issued_at":   a.Metadata.IssuedAt.UTC().Format(time.RFC3339),
			"valid_until": a.Metadata.ValidUntil.UTC().Format(time.RFC3339),
			"control": map[string]any{
				"framework":         a.Control.Framework,
				"control_id":        a.Control.ControlID,
				"assessment_result": string(a.Control.AssessmentResult),
			},
		},
	}

	canonical, err := cryptoinfra.CanonicalizeAny(pkg)
	if err != nil {
		return nil, fmt.Errorf("canonicalize package: %w", err)
	}
	return canonical, nil
}

// VerifyPackageSignature recomputes canonical bytes and checks the stored
// Ed25519 signature against the recorded public key.
func VerifyPackageSignature(a *domain.Attestation) error {
	if a.Package == nil {
		return fmt.Errorf("%w: attestation has no package", domain.ErrSignatureInvalid)
	}
	canonical, err := CanonicalPackageBytes(a)
	if err != nil {
		return err
	}
	if cryptoinfra.SHA256Hex(canonical) != a.Package.Digest {
		return fmt.Errorf("%w: canonical bytes do not reproduce package digest", domain.ErrSignatureInvalid)
	}
	digest := cryptoinfra.SHA256Bytes(canonical)
	if err := cryptoinfra.VerifyEncoded(a.Package.Signature.SignerPublicKey, a.Package.Signature.Value, digest); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	return nil
}
