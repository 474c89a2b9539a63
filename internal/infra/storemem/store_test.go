package storemem

import (
	"context"
	"sync"
	"testing"
	"time"

	"zkpad/internal/domain"
)

func testAttestation(id string) *domain.Attestation {
	return &domain.Attestation{
		ID:        id,
		State:     domain.StatePending,
		CreatedAt: time.Now().UTC(),
		Control: domain.Control{
			Framework:        "NIST 800-53",
			ControlID:        "AC-2",
			Statement:        "The organization manages information system accounts",
			AssessmentResult: domain.AssessmentPass,
		},
	}
}

func TestPutIfAbsent_Conflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.PutIfAbsent(ctx, testAttestation("ATT-1")); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := s.PutIfAbsent(ctx, testAttestation("ATT-1")); err != domain.ErrConflict {
		t.Fatalf("second put: got %v, want ErrConflict", err)
	}
}

func TestUpdateWith_BumpsRevisionAndIsolatesReaders(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.PutIfAbsent(ctx, testAttestation("ATT-1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	before, _ := s.Get(ctx, "ATT-1")
	updated, err := s.UpdateWith(ctx, "ATT-1", func(a *domain.Attestation) error {
		a.ErrorReason = "x"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Revision != before.Revision+1 {
		t.Fatalf("revision %d, want %d", updated.Revision, before.Revision+1)
	}
	if before.ErrorReason != "" {
		t.Fatal("previously read copy was mutated")
	}
}

func TestUpdateWith_ErrorLeavesStateUntouched(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.PutIfAbsent(ctx, testAttestation("ATT-1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	_, err := s.UpdateWith(ctx, "ATT-1", func(a *domain.Attestation) error {
		a.ErrorReason = "partial write"
		return domain.ErrInvalidTransition
	})
	if err != domain.ErrInvalidTransition {
		t.Fatalf("update error: %v", err)
	}
	got, _ := s.Get(ctx, "ATT-1")
	if got.ErrorReason != "" {
		t.Fatal("failed update leaked a partial write")
	}
	if got.Revision != 1 {
		t.Fatalf("revision advanced to %d on failed update", got.Revision)
	}
}

func TestUpdateWith_ConcurrentSerializes(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.PutIfAbsent(ctx, testAttestation("ATT-1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.UpdateWith(ctx, "ATT-1", func(a *domain.Attestation) error { return nil })
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, "ATT-1")
	if got.Revision != n+1 {
		t.Fatalf("revision %d after %d updates, want %d", got.Revision, n, n+1)
	}
}

func TestList_FilterAndPagination(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, id := range []string{"ATT-20250101000001-aa", "ATT-20250101000002-bb", "ATT-20250101000003-cc"} {
		a := testAttestation(id)
		if err := s.PutIfAbsent(ctx, a); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	_, _ = s.UpdateWith(ctx, "ATT-20250101000002-bb", func(a *domain.Attestation) error {
		a.State = domain.StateValid
		return nil
	})

	all, total, err := s.List(ctx, domain.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("total=%d len=%d, want 3/3", total, len(all))
	}
	if all[0].ID != "ATT-20250101000001-aa" {
		t.Fatalf("list not in creation order: first is %s", all[0].ID)
	}

	valid, _, _ := s.List(ctx, domain.ListFilter{State: domain.StateValid})
	if len(valid) != 1 || valid[0].ID != "ATT-20250101000002-bb" {
		t.Fatalf("state filter returned %d items", len(valid))
	}

	page, total, _ := s.List(ctx, domain.ListFilter{Limit: 1, Offset: 1})
	if total != 3 || len(page) != 1 || page[0].ID != "ATT-20250101000002-bb" {
		t.Fatalf("pagination wrong: %d items, total %d", len(page), total)
	}

	empty, _, _ := s.List(ctx, domain.ListFilter{Offset: 10})
	if len(empty) != 0 {
		t.Fatalf("offset past end returned %d items", len(empty))
	}
}

func TestIdempotency_RaceHasSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	const n = 20
	winners := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "ATT-" + string(rune('a'+i))
			winner, _, _ := s.PutIdempotency(ctx, "k-1", id, now)
			winners[i] = winner
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if winners[i] != winners[0] {
			t.Fatalf("winner diverged: %s vs %s", winners[i], winners[0])
		}
	}
}

func TestIdempotency_TTLBoundary(t *testing.T) {
	s := New()
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, ok, _ := s.PutIdempotency(ctx, "k-1", "ATT-1", created); !ok {
		t.Fatal("initial insert lost")
	}

	justBefore := created.Add(domain.IdempotencyTTL - time.Second)
	if _, err := s.GetIdempotency(ctx, "k-1", justBefore); err != nil {
		t.Fatalf("entry expired one second early: %v", err)
	}

	atBoundary := created.Add(domain.IdempotencyTTL)
	if _, err := s.GetIdempotency(ctx, "k-1", atBoundary); err != domain.ErrNotFound {
		t.Fatalf("entry survived the TTL boundary: %v", err)
	}

	// A new creator may take over the expired key.
	winner, ok, _ := s.PutIdempotency(ctx, "k-1", "ATT-2", atBoundary.Add(time.Second))
	if !ok || winner != "ATT-2" {
		t.Fatalf("expired key not reclaimable: ok=%v winner=%s", ok, winner)
	}

	if removed := s.ExpireIdempotency(ctx, atBoundary.Add(domain.IdempotencyTTL+2*time.Second)); removed != 1 {
		t.Fatalf("sweep removed %d entries, want 1", removed)
	}
}

func TestReceipts_PutGetImmutable(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := &domain.VerificationReceipt{
		ID:            "RCP-1",
		AttestationID: "ATT-1",
		Result:        domain.CheckPass,
		Checks:        []domain.CheckOutcome{{Name: "integrity", Result: domain.CheckPass}},
		VerifiedAt:    time.Now().UTC(),
	}
	if err := s.PutReceipt(ctx, r); err != nil {
		t.Fatalf("put receipt: %v", err)
	}
	if err := s.PutReceipt(ctx, r); err != domain.ErrConflict {
		t.Fatalf("duplicate receipt: got %v, want ErrConflict", err)
	}
	got, err := s.GetReceipt(ctx, "RCP-1")
	if err != nil {
		t.Fatalf("get receipt: %v", err)
	}
	got.Checks[0].Result = domain.CheckFail
	again, _ := s.GetReceipt(ctx, "RCP-1")
	if again.Checks[0].Result != domain.CheckPass {
		t.Fatal("stored receipt mutated through a read copy")
	}
}

func TestResetAll(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.PutIfAbsent(ctx, testAttestation("ATT-1"))
	_, _, _ = s.PutIdempotency(ctx, "k", "ATT-1", time.Now())
	s.ResetAll(ctx)
	if _, err := s.Get(ctx, "ATT-1"); err != domain.ErrNotFound {
		t.Fatalf("attestation survived reset: %v", err)
	}
}
