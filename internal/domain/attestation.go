package domain

import "time"

type State string

const (
	StatePending             State = "pending"
	StateComputingCommitment State = "computing_commitment"
	StateGeneratingProof     State = "generating_proof"
	StateAssemblingPackage   State = "assembling_package"
	StateAnchoring           State = "anchoring"
	StateValid               State = "valid"
	StateFailedEvidence      State = "failed_evidence"
	StateFailedProof         State = "failed_proof"
	StateFailedAnchor        State = "failed_anchor"
	StateFailed              State = "failed"
	StateRevoked             State = "revoked"
	StateExpired             State = "expired"
)

var transitions = map[State][]State{
	StatePending:             {StateComputingCommitment, StateFailedEvidence},
	StateComputingCommitment: {StateGeneratingProof, StateFailedEvidence},
	StateGeneratingProof:     {StateAssemblingPackage, StateFailedProof},
	StateAssemblingPackage:   {StateAnchoring, StateValid, StateFailed},
	StateAnchoring:           {StateValid, StateFailedAnchor},
	StateValid:               {StateRevoked, StateExpired},
}

func (s State) Terminal() bool {
	switch s {
	case StateValid, StateRevoked, StateExpired,
		StateFailedEvidence, StateFailedProof, StateFailedAnchor, StateFailed:
		return true
	}
	return false
}

// Valid is terminal for pipeline processing but still admits
// revoked/expired; Settled reports states with no outgoing edges at all.
func (s State) Settled() bool {
	return s.Terminal() && s != StateValid
}

func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type AssessmentResult string

const (
	AssessmentPass    AssessmentResult = "PASS"
	AssessmentFail    AssessmentResult = "FAIL"
	AssessmentPartial AssessmentResult = "PARTIAL"
)

func ValidAssessmentResult(r AssessmentResult) bool {
	switch r {
	case AssessmentPass, AssessmentFail, AssessmentPartial:
		return true
	}
	return false
}

type Control struct {
	Framework        string           `json:"framework"`
	ControlID        string           `json:"control_id,omitempty"`
	Statement        string           `json:"statement"`
	AssessmentResult AssessmentResult `json:"assessment_result"`
	AssessmentWindow string           `json:"assessment_window,omitempty"`
}

type Metadata struct {
	Policy      string    `json:"policy"`
	IssuedAt    time.Time `json:"issued_at"`
	ValidUntil  time.Time `json:"valid_until"`
	Issuer      string    `json:"issuer"`
	CallbackURL string    `json:"callback_url,omitempty"`
}

type SignatureBlock struct {
	Algorithm       string    `json:"algorithm"`
	Value           string    `json:"value"` // base64
	SignerPublicKey string    `json:"signer_public_key"`
	SignedAt        time.Time `json:"signed_at"`
}

type PackageRecord struct {
	Digest    string         `json:"digest"`
	Signature SignatureBlock `json:"signature"`
	SizeBytes int            `json:"size_bytes"`
	URI       string         `json:"uri,omitempty"`
}

type RevocationRecord struct {
	RevokedAt time.Time `json:"revoked_at"`
	Reason    string    `json:"reason"`
	RevokedBy string    `json:"revoked_by,omitempty"`
}

type Event struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// MaxEvents bounds the per-attestation event log to the most recent entries.
const MaxEvents = 32

type Attestation struct {
	ID          string            `json:"claim_id"`
	State       State             `json:"status"`
	Revision    int64             `json:"revision"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Control     Control           `json:"control"`
	Interpret   *Interpretation   `json:"interpretation,omitempty"`
	Evidence    *EvidenceRecord   `json:"evidence,omitempty"`
	Proof       *ProofRecord      `json:"proof,omitempty"`
	Package     *PackageRecord    `json:"package,omitempty"`
	Anchor      *AnchorRecord     `json:"anchor,omitempty"`
	Metadata    Metadata          `json:"metadata"`
	Revocation  *RevocationRecord `json:"revocation,omitempty"`
	Events      []Event           `json:"events,omitempty"`
	ErrorReason string            `json:"error_reason,omitempty"`

	cancelRequested bool
}

// Transition moves the attestation to the next state, appending an event
// record. Terminal states admit no transitions other than valid->revoked
// and valid->expired, which the transition table encodes.
func (a *Attestation) Transition(to State, at time.Time, reason string) error {
	if !CanTransition(a.State, to) {
		return ErrInvalidTransition
	}
	a.Events = append(a.Events, Event{From: a.State, To: to, At: at, Reason: reason})
	if len(a.Events) > MaxEvents {
		a.Events = a.Events[len(a.Events)-MaxEvents:]
	}
	a.State = to
	if to.Terminal() && a.CompletedAt == nil {
		done := at
		a.CompletedAt = &done
	}
	return nil
}

// ForceFail moves any non-terminal attestation to failed, bypassing the
// pipeline edges. Cancellation is its only caller.
func (a *Attestation) ForceFail(at time.Time, reason string) error {
	if a.State.Terminal() {
		return ErrInvalidTransition
	}
	a.Events = append(a.Events, Event{From: a.State, To: StateFailed, At: at, Reason: reason})
	if len(a.Events) > MaxEvents {
		a.Events = a.Events[len(a.Events)-MaxEvents:]
	}
	a.State = StateFailed
	if a.CompletedAt == nil {
		done := at
		a.CompletedAt = &done
	}
	return nil
}

func (a *Attestation) RequestCancel() {
	a.cancelRequested = true
}

func (a *Attestation) CancelRequested() bool {
	return a.cancelRequested
}

// Clone returns a deep copy so store readers never alias writer state.
func (a *Attestation) Clone() *Attestation {
	if a == nil {
		return nil
	}
	out := *a
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	if a.Interpret != nil {
		v := *a.Interpret
		v.RequiredEvidence = append([]string(nil), a.Interpret.RequiredEvidence...)
		out.Interpret = &v
	}
	if a.Evidence != nil {
		v := *a.Evidence
		v.Items = append([]EvidenceItem(nil), a.Evidence.Items...)
		v.Leaves = append([]string(nil), a.Evidence.Leaves...)
		out.Evidence = &v
	}
	if a.Proof != nil {
		v := *a.Proof
		v.ProofBytes = append([]byte(nil), a.Proof.ProofBytes...)
		v.PublicInputs = append([]string(nil), a.Proof.PublicInputs...)
		out.Proof = &v
	}
	if a.Package != nil {
		v := *a.Package
		out.Package = &v
	}
	if a.Anchor != nil {
		v := *a.Anchor
		out.Anchor = &v
	}
	if a.Revocation != nil {
		v := *a.Revocation
		out.Revocation = &v
	}
	out.Events = append([]Event(nil), a.Events...)
	return &out
}
