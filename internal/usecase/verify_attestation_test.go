package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"zkpad/internal/domain"
	cryptoinfra "zkpad/internal/infra/crypto"
	"zkpad/internal/infra/storemem"
)

// buildValidAttestation runs the synchronous create phase plus the proof
// and package stages directly, leaving a valid attestation in the store.
func buildValidAttestation(t *testing.T, store domain.StateStore, signer *cryptoinfra.Signer) *domain.Attestation {
	t.Helper()
	uc := newCreateUC(store)
	result, err := uc.Execute(context.Background(), s1Request(), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	proofBuilder := NewBuildProof(nil)
	assembler := NewAssemblePackage(signer, nil)
	now := time.Now().UTC()

	updated, err := store.UpdateWith(context.Background(), result.ClaimID, func(a *domain.Attestation) error {
		if err := a.Transition(domain.StateGeneratingProof, now, ""); err != nil {
			return err
		}
		proof, err := proofBuilder.Execute(a.Evidence, a.Interpret, a.Control, a.Metadata.Policy)
		if err != nil {
			return err
		}
		a.Proof = proof
		if err := a.Transition(domain.StateAssemblingPackage, now, ""); err != nil {
			return err
		}
		pkg, err := assembler.Execute(a)
		if err != nil {
			return err
		}
		a.Package = pkg
		return a.Transition(domain.StateValid, now, "")
	})
	if err != nil {
		t.Fatalf("finish pipeline: %v", err)
	}
	return updated
}

func newVerifyUC(store domain.StateStore, verifier *cryptoinfra.Signer) *VerifyAttestation {
	return &VerifyAttestation{
		Store:    store,
		Verifier: verifier,
		Backend:  CommitmentV1Backend{},
	}
}

func TestVerify_DefaultChecksPassWithAnchorWarn(t *testing.T) {
	store := storemem.New()
	signer, _ := cryptoinfra.NewSigner()
	a := buildValidAttestation(t, store, signer)

	verifier, _ := cryptoinfra.NewSigner()
	receipt, err := newVerifyUC(store, verifier).Execute(context.Background(), a.ID, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if receipt.Result != domain.CheckPass {
		t.Fatalf("overall %s, want PASS: %+v", receipt.Result, receipt.Checks)
	}
	if len(receipt.Checks) != 6 {
		t.Fatalf("%d checks, want all six", len(receipt.Checks))
	}
	for _, c := range receipt.Checks {
		switch c.Name {
		case domain.CheckAnchor:
			if c.Result != domain.CheckWarn {
				t.Fatalf("anchor = %s (%s), want WARN without adapter", c.Result, c.Detail)
			}
		default:
			if c.Result != domain.CheckPass {
				t.Fatalf("check %s = %s (%s)", c.Name, c.Result, c.Detail)
			}
		}
	}

	stored, err := store.GetReceipt(context.Background(), receipt.ID)
	if err != nil {
		t.Fatalf("receipt not stored: %v", err)
	}
	if err := VerifyReceiptSignature(stored); err != nil {
		t.Fatalf("receipt signature: %v", err)
	}
	if stored.Signature.SignerPublicKey != verifier.PublicKeyHex() {
		t.Fatal("receipt signed with the wrong key")
	}
}

func TestVerify_ReceiptsAreDistinctPerCall(t *testing.T) {
	store := storemem.New()
	signer, _ := cryptoinfra.NewSigner()
	a := buildValidAttestation(t, store, signer)
	uc := newVerifyUC(store, signer)

	first, err := uc.Execute(context.Background(), a.ID, []string{domain.CheckIntegrity})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	second, err := uc.Execute(context.Background(), a.ID, []string{domain.CheckIntegrity})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("repeated verifications shared a receipt id")
	}
}

func TestVerify_TamperedLeafFailsIntegrityOnly(t *testing.T) {
	store := storemem.New()
	signer, _ := cryptoinfra.NewSigner()
	a := buildValidAttestation(t, store, signer)

	_, err := store.UpdateWith(context.Background(), a.ID, func(n *domain.Attestation) error {
		n.Evidence.Leaves[0] = strings.Repeat("bb", 32)
		return nil
	})
	if err != nil {
		t.Fatalf("tamper: %v", err)
	}

	receipt, err := newVerifyUC(store, signer).Execute(context.Background(), a.ID, []string{domain.CheckIntegrity})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if receipt.Result != domain.CheckFail {
		t.Fatalf("overall %s, want FAIL", receipt.Result)
	}
	if receipt.Checks[0].Name != domain.CheckIntegrity || receipt.Checks[0].Result != domain.CheckFail {
		t.Fatalf("integrity check %+v", receipt.Checks[0])
	}
}

func TestVerify_ExpiredAttestationFailsExpiry(t *testing.T) {
	store := storemem.New()
	signer, _ := cryptoinfra.NewSigner()
	a := buildValidAttestation(t, store, signer)

	uc := newVerifyUC(store, signer)
	uc.Clock = func() time.Time { return a.Metadata.ValidUntil.Add(2 * time.Second) }

	receipt, err := uc.Execute(context.Background(), a.ID, []string{domain.CheckExpiry})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if receipt.Result != domain.CheckFail {
		t.Fatalf("overall %s, want FAIL after expiry", receipt.Result)
	}
}

func TestVerify_RevokedAttestation(t *testing.T) {
	store := storemem.New()
	signer, _ := cryptoinfra.NewSigner()
	a := buildValidAttestation(t, store, signer)

	_, err := store.UpdateWith(context.Background(), a.ID, func(n *domain.Attestation) error {
		if err := n.Transition(domain.StateRevoked, time.Now().UTC(), "operator request"); err != nil {
			return err
		}
		n.Revocation = &domain.RevocationRecord{RevokedAt: time.Now().UTC()}
		return nil
	})
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}

	receipt, err := newVerifyUC(store, signer).Execute(context.Background(), a.ID, []string{domain.CheckRevocation})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if receipt.Result != domain.CheckFail {
		t.Fatalf("overall %s, want FAIL", receipt.Result)
	}
	if !strings.HasPrefix(receipt.Checks[0].Detail, "Attestation revoked") {
		t.Fatalf("revocation detail %q", receipt.Checks[0].Detail)
	}
}

func TestVerify_PackageSignatureSurvivesRoundTrip(t *testing.T) {
	store := storemem.New()
	signer, _ := cryptoinfra.NewSigner()
	a := buildValidAttestation(t, store, signer)

	if err := VerifyPackageSignature(a); err != nil {
		t.Fatalf("package signature: %v", err)
	}

	// Any field in the signed surface invalidates the signature.
	a.Metadata.Policy = "tampered"
	if err := VerifyPackageSignature(a); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("tampered package verified: %v", err)
	}
}

func TestVerify_MissingAttestation(t *testing.T) {
	store := storemem.New()
	signer, _ := cryptoinfra.NewSigner()
	if _, err := newVerifyUC(store, signer).Execute(context.Background(), "ATT-missing", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestVerify_UnknownCheckRejected(t *testing.T) {
	store := storemem.New()
	signer, _ := cryptoinfra.NewSigner()
	a := buildValidAttestation(t, store, signer)
	if _, err := newVerifyUC(store, signer).Execute(context.Background(), a.ID, []string{"clairvoyance"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("got %v, want ErrInvalidRequest", err)
	}
}

func TestVerify_MissingProofFailsProofValidity(t *testing.T) {
	store := storemem.New()
	signer, _ := cryptoinfra.NewSigner()
	uc := newCreateUC(store)
	result, err := uc.Execute(context.Background(), s1Request(), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	receipt, err := newVerifyUC(store, signer).Execute(context.Background(), result.ClaimID, []string{domain.CheckProofValidity})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if receipt.Result != domain.CheckFail {
		t.Fatalf("overall %s, want FAIL without proof", receipt.Result)
	}
}
