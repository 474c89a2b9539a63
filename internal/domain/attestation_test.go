package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to State }{
		{StatePending, StateComputingCommitment},
		{StatePending, StateFailedEvidence},
		{StateComputingCommitment, StateGeneratingProof},
		{StateComputingCommitment, StateFailedEvidence},
		{StateGeneratingProof, StateAssemblingPackage},
		{StateGeneratingProof, StateFailedProof},
		{StateAssemblingPackage, StateAnchoring},
		{StateAssemblingPackage, StateValid},
		{StateAssemblingPackage, StateFailed},
		{StateAnchoring, StateValid},
		{StateAnchoring, StateFailedAnchor},
		{StateValid, StateRevoked},
		{StateValid, StateExpired},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to State }{
		{StatePending, StateValid},
		{StateValid, StatePending},
		{StateRevoked, StateValid},
		{StateExpired, StateValid},
		{StateFailedProof, StateGeneratingProof},
		{StateAnchoring, StateFailed},
		{StateComputingCommitment, StateAssemblingPackage},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be illegal", tc.from, tc.to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StateValid, StateRevoked, StateExpired, StateFailedEvidence, StateFailedProof, StateFailedAnchor, StateFailed} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StatePending, StateComputingCommitment, StateGeneratingProof, StateAssemblingPackage, StateAnchoring} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestTransition_RecordsEventsAndCompletion(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Attestation{State: StatePending}

	if err := a.Transition(StateComputingCommitment, now, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if a.CompletedAt != nil {
		t.Fatal("completed_at set on non-terminal state")
	}
	if err := a.Transition(StateValid, now, ""); err != ErrInvalidTransition {
		t.Fatalf("illegal transition error: %v", err)
	}
	if len(a.Events) != 1 {
		t.Fatalf("failed transition appended an event: %d", len(a.Events))
	}

	steps := []State{StateGeneratingProof, StateAssemblingPackage, StateValid}
	for _, s := range steps {
		if err := a.Transition(s, now.Add(time.Second), ""); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if a.CompletedAt == nil {
		t.Fatal("completed_at not set on terminal state")
	}
	if len(a.Events) != 4 {
		t.Fatalf("%d events", len(a.Events))
	}
}

func TestTransition_EventLogBounded(t *testing.T) {
	a := &Attestation{State: StateValid}
	now := time.Now()
	// Events can only be appended MaxEvents+ times via repeated
	// revocation cycles in theory; exercise the bound directly.
	for i := 0; i < MaxEvents+10; i++ {
		a.Events = append(a.Events, Event{From: StatePending, To: StateComputingCommitment, At: now})
	}
	if err := a.Transition(StateRevoked, now, "r"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if len(a.Events) != MaxEvents {
		t.Fatalf("event log %d entries, want bound %d", len(a.Events), MaxEvents)
	}
	if a.Events[len(a.Events)-1].To != StateRevoked {
		t.Fatal("latest event dropped by the bound")
	}
}

func TestForceFail(t *testing.T) {
	now := time.Now()
	a := &Attestation{State: StateGeneratingProof}
	if err := a.ForceFail(now, "cancelled"); err != nil {
		t.Fatalf("force fail: %v", err)
	}
	if a.State != StateFailed || a.CompletedAt == nil {
		t.Fatalf("state %s", a.State)
	}

	b := &Attestation{State: StateValid}
	if err := b.ForceFail(now, "cancelled"); err != ErrInvalidTransition {
		t.Fatalf("force fail on terminal: %v", err)
	}
}

func TestClone_DeepCopies(t *testing.T) {
	a := &Attestation{
		ID:    "ATT-1",
		State: StateValid,
		Evidence: &EvidenceRecord{
			Items:  []EvidenceItem{{LocalID: "EV-1", URI: "u", Digest: "d", Type: "t"}},
			Leaves: []string{"d"},
		},
		Proof:  &ProofRecord{ProofBytes: []byte("proof"), PublicInputs: []string{"a"}},
		Events: []Event{{From: StatePending, To: StateComputingCommitment}},
	}
	c := a.Clone()
	c.Evidence.Leaves[0] = "tampered"
	c.Proof.ProofBytes[0] = 'X'
	c.Events[0].Reason = "edited"

	if a.Evidence.Leaves[0] != "d" {
		t.Fatal("leaves shared between clone and original")
	}
	if a.Proof.ProofBytes[0] != 'p' {
		t.Fatal("proof bytes shared")
	}
	if a.Events[0].Reason != "" {
		t.Fatal("events shared")
	}
}
