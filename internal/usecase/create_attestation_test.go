package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"zkpad/internal/domain"
	"zkpad/internal/infra/storemem"
)

func newCreateUC(store domain.StateStore) *CreateAttestation {
	return &CreateAttestation{
		Store:       store,
		Interpreter: &InterpretControl{},
		Committer:   NewCommitEvidence(nil),
		Validity:    90 * 24 * time.Hour,
		Issuer:      "zkpad-test",
	}
}

func s1Request() CreateRequest {
	return CreateRequest{
		Evidence: []EvidenceInput{{
			URI:    "demo://ev/1",
			Digest: strings.Repeat("aa", 32),
			Type:   "log",
		}},
		Policy: "zkpa-default-v1",
		Control: domain.Control{
			Framework:        "NIST 800-53",
			ControlID:        "AC-2",
			Statement:        "The organization manages information system accounts",
			AssessmentResult: domain.AssessmentPass,
			AssessmentWindow: "2025-Q1",
		},
	}
}

func TestCreate_HappyPath(t *testing.T) {
	store := storemem.New()
	uc := newCreateUC(store)
	enqueued := make([]string, 0, 1)
	uc.Enqueue = func(id string) { enqueued = append(enqueued, id) }

	result, err := uc.Execute(context.Background(), s1Request(), "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.State != domain.StateComputingCommitment {
		t.Fatalf("state %s, want computing_commitment", result.State)
	}
	if !strings.HasPrefix(result.ClaimID, "ATT-") || len(result.ClaimID) != len("ATT-20250101000000-abcdef") {
		t.Fatalf("malformed claim id %q", result.ClaimID)
	}
	if len(enqueued) != 1 || enqueued[0] != result.ClaimID {
		t.Fatalf("enqueued %v", enqueued)
	}

	stored, err := store.Get(context.Background(), result.ClaimID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Interpret == nil || stored.Interpret.ClaimType != domain.ClaimControlEffectiveness {
		t.Fatalf("interpretation missing or wrong: %+v", stored.Interpret)
	}
	if stored.Interpret.ProofTemplate != domain.TemplateZKPredicate || stored.Interpret.RiskLevel != domain.RiskHigh {
		t.Fatalf("S1 interpretation mismatch: %+v", stored.Interpret)
	}
	if stored.Evidence == nil || stored.Evidence.LeafCount != 1 {
		t.Fatal("evidence record missing")
	}
	if want := stored.Metadata.IssuedAt.Add(90 * 24 * time.Hour); !stored.Metadata.ValidUntil.Equal(want) {
		t.Fatalf("valid_until %v, want issued_at+90d", stored.Metadata.ValidUntil)
	}
	if len(stored.Events) != 1 || stored.Events[0].From != domain.StatePending || stored.Events[0].To != domain.StateComputingCommitment {
		t.Fatalf("event log %+v", stored.Events)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateRequest)
		want   error
	}{
		{"empty statement", func(r *CreateRequest) { r.Control.Statement = "" }, domain.ErrInvalidRequest},
		{"missing framework", func(r *CreateRequest) { r.Control.Framework = "" }, domain.ErrInvalidRequest},
		{"bad assessment result", func(r *CreateRequest) { r.Control.AssessmentResult = "MAYBE" }, domain.ErrInvalidRequest},
		{"bad callback scheme", func(r *CreateRequest) { r.CallbackURL = "ftp://example.com/x" }, domain.ErrInvalidRequest},
		{"empty evidence", func(r *CreateRequest) { r.Evidence = nil }, domain.ErrInvalidEvidence},
		{"malformed digest", func(r *CreateRequest) { r.Evidence[0].Digest = "xyz" }, domain.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := storemem.New()
			uc := newCreateUC(store)
			req := s1Request()
			tc.mutate(&req)
			_, err := uc.Execute(context.Background(), req, "")
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if _, total, _ := store.List(context.Background(), domain.ListFilter{}); total != 0 {
				t.Fatalf("failed create persisted %d attestations", total)
			}
		})
	}
}

func TestCreate_FailedSyncPhaseReleasesIdempotencyKey(t *testing.T) {
	store := storemem.New()
	uc := newCreateUC(store)
	req := s1Request()
	req.Evidence = nil

	if _, err := uc.Execute(context.Background(), req, "k-1"); !errors.Is(err, domain.ErrInvalidEvidence) {
		t.Fatalf("got %v", err)
	}
	// The key must be reusable by a later valid request.
	result, err := uc.Execute(context.Background(), s1Request(), "k-1")
	if err != nil {
		t.Fatalf("retry with released key: %v", err)
	}
	if _, err := store.Get(context.Background(), result.ClaimID); err != nil {
		t.Fatalf("attestation not stored: %v", err)
	}
}

func TestCreate_IdempotencyCollapsesConcurrentRequests(t *testing.T) {
	store := storemem.New()
	uc := newCreateUC(store)

	const n = 16
	results := make([]*CreateResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = uc.Execute(context.Background(), s1Request(), "k-1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		if results[i].ClaimID != results[0].ClaimID {
			t.Fatalf("claim ids diverged: %s vs %s", results[i].ClaimID, results[0].ClaimID)
		}
	}

	_, total, _ := store.List(context.Background(), domain.ListFilter{})
	if total != 1 {
		t.Fatalf("store holds %d attestations for one key, want 1", total)
	}
}

func TestCreate_IdempotentReplayReturnsCurrentState(t *testing.T) {
	store := storemem.New()
	uc := newCreateUC(store)

	first, err := uc.Execute(context.Background(), s1Request(), "k-2")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err = store.UpdateWith(context.Background(), first.ClaimID, func(a *domain.Attestation) error {
		if err := a.Transition(domain.StateGeneratingProof, time.Now(), ""); err != nil {
			return err
		}
		return a.Transition(domain.StateFailedProof, time.Now(), "boom")
	})
	if err != nil {
		t.Fatalf("advance: %v", err)
	}

	replay, err := uc.Execute(context.Background(), s1Request(), "k-2")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.ClaimID != first.ClaimID {
		t.Fatal("replay minted a new attestation")
	}
	if replay.State != domain.StateFailedProof {
		t.Fatalf("replay state %s, want current state", replay.State)
	}
}
