package usecase

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"zkpad/internal/domain"
	cryptoinfra "zkpad/internal/infra/crypto"
)

// VerifyAttestation runs the requested checks against a stored
// attestation and returns a receipt signed with the verifier's own key.
// A check that cannot complete is marked FAIL with the reason in its
// detail; receipts are never suppressed by errors.
type VerifyAttestation struct {
	Store    domain.StateStore
	Verifier *cryptoinfra.Signer
	Backend  ProofBackend
	Ledger   domain.LedgerLookup
	Clock    func() time.Time
}

func (uc *VerifyAttestation) Execute(ctx context.Context, attestationID string, checks []string) (*domain.VerificationReceipt, error) {
	a, err := uc.Store.Get(ctx, attestationID)
	if err != nil {
		return nil, err
	}
	if len(checks) == 0 {
		checks = domain.DefaultChecks()
	}
	for _, name := range checks {
		if !domain.KnownCheck(name) {
			return nil, fmt.Errorf("%w: unknown check %q", domain.ErrInvalidRequest, name)
		}
	}

	now := uc.now()
	outcomes := make([]domain.CheckOutcome, 0, len(checks))
	for _, name := range checks {
		outcomes = append(outcomes, uc.runCheck(ctx, a, name, now))
	}

	overall := domain.CheckPass
	for _, o := range outcomes {
		if o.Result == domain.CheckFail {
			overall = domain.CheckFail
			break
		}
	}

	receipt := &domain.VerificationReceipt{
		ID:            "RCP-" + uuid.NewString(),
		AttestationID: a.ID,
		Result:        overall,
		Checks:        outcomes,
		VerifiedAt:    now,
	}
	if err := uc.signReceipt(receipt); err != nil {
		return nil, fmt.Errorf("%w: sign receipt: %v", domain.ErrInternal, err)
	}
	if err := uc.Store.PutReceipt(ctx, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (uc *VerifyAttestation) runCheck(ctx context.Context, a *domain.Attestation, name string, now time.Time) domain.CheckOutcome {
	switch name {
	case domain.CheckProofValidity:
		return uc.checkProofValidity(a)
	case domain.CheckIntegrity:
		return checkIntegrity(a)
	case domain.CheckExpiry:
		return checkExpiry(a, now)
	case domain.CheckRevocation:
		return checkRevocation(a)
	case domain.CheckAnchor:
		return uc.checkAnchor(ctx, a)
	case domain.CheckSignature:
		return checkSignature(a)
	}
	return domain.CheckOutcome{Name: name, Result: domain.CheckFail, Detail: "unknown check"}
}

func (uc *VerifyAttestation) checkProofValidity(a *domain.Attestation) domain.CheckOutcome {
	out := domain.CheckOutcome{Name: domain.CheckProofValidity}
	if a.Proof == nil {
		out.Result = domain.CheckFail
		out.Detail = "attestation has no proof artifact"
		return out
	}
	if a.Evidence == nil {
		out.Result = domain.CheckFail
		out.Detail = "attestation has no evidence commitment"
		return out
	}
	want := PublicInputs(a.Evidence.MerkleRoot, a.Control.Statement, a.Metadata.Policy)
	if len(want) != len(a.Proof.PublicInputs) {
		out.Result = domain.CheckFail
		out.Detail = "public input count mismatch"
		return out
	}
	for i := range want {
		if want[i] != a.Proof.PublicInputs[i] {
			out.Result = domain.CheckFail
			out.Detail = fmt.Sprintf("public input %d does not match recomputed value", i)
			return out
		}
	}
	if cryptoinfra.SHA256Hex(a.Proof.ProofBytes) != a.Proof.Digest {
		out.Result = domain.CheckFail
		out.Detail = "proof digest does not match proof bytes"
		return out
	}
	if uc.Backend != nil && uc.Backend.Algorithm() == a.Proof.Algorithm {
		if err := uc.Backend.Verify(a.Proof.ProofBytes, a.Proof.PublicInputs); err != nil {
			out.Result = domain.CheckFail
			out.Detail = err.Error()
			return out
		}
	}
	out.Result = domain.CheckPass
	out.Detail = fmt.Sprintf("proof artifact valid (%s)", a.Proof.Algorithm)
	return out
}

func checkIntegrity(a *domain.Attestation) domain.CheckOutcome {
	out := domain.CheckOutcome{Name: domain.CheckIntegrity}
	if a.Evidence == nil || len(a.Evidence.Leaves) == 0 {
		out.Result = domain.CheckFail
		out.Detail = "attestation has no evidence commitment"
		return out
	}
	leaves := make([][]byte, 0, len(a.Evidence.Leaves))
	for i, leafHex := range a.Evidence.Leaves {
		leaf, err := hex.DecodeString(leafHex)
		if err != nil {
			out.Result = domain.CheckFail
			out.Detail = fmt.Sprintf("stored leaf %d is not hex", i)
			return out
		}
		leaves = append(leaves, leaf)
	}
	tree, err := cryptoinfra.NewMerkleTree(leaves)
	if err != nil {
		out.Result = domain.CheckFail
		out.Detail = err.Error()
		return out
	}
	if hex.EncodeToString(tree.Root()) != a.Evidence.MerkleRoot {
		out.Result = domain.CheckFail
		out.Detail = "recomputed merkle root does not match stored root"
		return out
	}
	out.Result = domain.CheckPass
	out.Detail = fmt.Sprintf("merkle root verified over %d leaves", len(leaves))
	return out
}

func checkExpiry(a *domain.Attestation, now time.Time) domain.CheckOutcome {
	out := domain.CheckOutcome{Name: domain.CheckExpiry}
	if now.After(a.Metadata.ValidUntil) {
		out.Result = domain.CheckFail
		out.Detail = fmt.Sprintf("attestation expired at %s", a.Metadata.ValidUntil.UTC().Format(time.RFC3339))
		return out
	}
	out.Result = domain.CheckPass
	out.Detail = fmt.Sprintf("valid until %s", a.Metadata.ValidUntil.UTC().Format(time.RFC3339))
	return out
}

func checkRevocation(a *domain.Attestation) domain.CheckOutcome {
	out := domain.CheckOutcome{Name: domain.CheckRevocation}
	if a.State == domain.StateRevoked {
		out.Result = domain.CheckFail
		out.Detail = "Attestation revoked"
		if a.Revocation != nil && a.Revocation.Reason != "" {
			out.Detail = "Attestation revoked: " + a.Revocation.Reason
		}
		return out
	}
	out.Result = domain.CheckPass
	out.Detail = "attestation is not revoked"
	return out
}

func (uc *VerifyAttestation) checkAnchor(ctx context.Context, a *domain.Attestation) domain.CheckOutcome {
	out := domain.CheckOutcome{Name: domain.CheckAnchor}
	if a.Anchor == nil {
		out.Result = domain.CheckWarn
		out.Detail = "attestation was not anchored"
		return out
	}
	if a.Anchor.Error != "" {
		out.Result = domain.CheckFail
		out.Detail = "anchor submission failed: " + a.Anchor.Error
		return out
	}
	if uc.Ledger == nil {
		out.Result = domain.CheckWarn
		out.Detail = "anchor record present but no ledger lookup configured"
		return out
	}
	note, err := uc.Ledger.Lookup(ctx, a.Anchor.TransactionID)
	if err != nil {
		out.Result = domain.CheckFail
		out.Detail = "ledger lookup failed: " + err.Error()
		return out
	}
	if cryptoinfra.SHA256Hex(note) != a.Anchor.NoteDigest {
		out.Result = domain.CheckFail
		out.Detail = "on-chain note does not match recorded digest"
		return out
	}
	out.Result = domain.CheckPass
	out.Detail = fmt.Sprintf("anchored in transaction %s", a.Anchor.TransactionID)
	return out
}

func checkSignature(a *domain.Attestation) domain.CheckOutcome {
	out := domain.CheckOutcome{Name: domain.CheckSignature}
	if a.Package == nil {
		out.Result = domain.CheckFail
		out.Detail = "attestation has no signed package"
		return out
	}
	if err := VerifyPackageSignature(a); err != nil {
		out.Result = domain.CheckFail
		out.Detail = err.Error()
		return out
	}
	out.Result = domain.CheckPass
	out.Detail = "package signature verified"
	return out
}

// signReceipt signs the canonical receipt body; the signature block is
// excluded from the signed bytes.
func (uc *VerifyAttestation) signReceipt(r *domain.VerificationReceipt) error {
	canonical, err := CanonicalReceiptBytes(r)
	if err != nil {
		return err
	}
	sig := uc.Verifier.Sign(canonical)
	r.Signature = domain.SignatureBlock{
		Algorithm:       "Ed25519",
		Value:           base64.StdEncoding.EncodeToString(sig),
		SignerPublicKey: uc.Verifier.PublicKeyHex(),
		SignedAt:        r.VerifiedAt,
	}
	return nil
}

// CanonicalReceiptBytes is the receipt body without its signature block.
func CanonicalReceiptBytes(r *domain.VerificationReceipt) ([]byte, error) {
	checks := make([]any, 0, len(r.Checks))
	for _, c := range r.Checks {
		checks = append(checks, map[string]any{
			"name":   c.Name,
			"result": string(c.Result),
			"detail": c.Detail,
		})
	}
	return cryptoinfra.CanonicalizeAny(map[string]any{
		"receipt_id":     r.ID,
		"attestation_id": r.AttestationID,
		"result":         string(r.Result),
		"checks":         checks,
		"verified_at":    r.VerifiedAt.UTC().Format(time.RFC3339Nano),
	})
}

// VerifyReceiptSignature checks a stored receipt against its embedded
// verifier public key.
func VerifyReceiptSignature(r *domain.VerificationReceipt) error {
	canonical, err := CanonicalReceiptBytes(r)
	if err != nil {
		return err
	}
	if err := cryptoinfra.VerifyEncoded(r.Signature.SignerPublicKey, r.Signature.Value, canonical); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	return nil
}

func (uc *VerifyAttestation) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock().UTC()
	}
	return time.Now().UTC()
}
