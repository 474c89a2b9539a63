package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"zkpad/internal/domain"
)

// AdmissionEngine optionally gates create requests with a policy
// decision before any state is written.
type AdmissionEngine interface {
	Admit(ctx context.Context, req CreateRequest) (allowed bool, reasons []string, err error)
}

type CreateRequest struct {
	Evidence    []EvidenceInput `json:"evidence"`
	Policy      string          `json:"policy"`
	Control     domain.Control  `json:"control"`
	CallbackURL string          `json:"callback_url,omitempty"`
}

type CreateResult struct {
	ClaimID   string       `json:"claim_id"`
	State     domain.State `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// CreateAttestation is the pipeline entrypoint. The synchronous phase
// runs interpretation and evidence commitment on the caller's goroutine;
// the rest of the pipeline continues on the lifecycle engine's workers.
type CreateAttestation struct {
	Store       domain.StateStore
	Interpreter *InterpretControl
	Committer   *CommitEvidence
	Admission   AdmissionEngine
	Clock       func() time.Time
	Validity    time.Duration
	Issuer      string

	// Enqueue hands the persisted attestation to the background pipeline.
	Enqueue func(id string)
}

const idAttempts = 3

func (uc *CreateAttestation) Execute(ctx context.Context, req CreateRequest, idempotencyKey string) (*CreateResult, error) {
	if err := uc.validate(ctx, req); err != nil {
		return nil, err
	}
	now := uc.now()

	if idempotencyKey != "" {
		if existing, err := uc.Store.GetIdempotency(ctx, idempotencyKey, now); err == nil {
			return uc.existingResult(ctx, existing.AttestationID)
		}
	}

	id, err := newAttestationID(now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}

	if idempotencyKey != "" {
		winner, created, err := uc.Store.PutIdempotency(ctx, idempotencyKey, id, now)
		if err != nil {
			return nil, err
		}
		if !created {
			return uc.existingResult(ctx, winner)
		}
	}

	result, err := uc.runSynchronousPhase(ctx, req, id, now)
	if err != nil {
		if idempotencyKey != "" {
			uc.Store.DeleteIdempotency(ctx, idempotencyKey)
		}
		return nil, err
	}
	return result, nil
}

func (uc *CreateAttestation) runSynchronousPhase(ctx context.Context, req CreateRequest, id string, now time.Time) (*CreateResult, error) {
	interp, err := uc.Interpreter.Execute(ctx, req.Control.Statement, req.Control.Framework, req.Control.ControlID)
	if err != nil {
		return nil, err
	}
	evidence, err := uc.Committer.Execute(req.Evidence)
	if err != nil {
		return nil, err
	}

	issued := now.Truncate(time.Second)
	a := &domain.Attestation{
		ID:        id,
		State:     domain.StatePending,
		CreatedAt: now,
		Control:   req.Control,
		Interpret: &interp,
		Evidence:  evidence,
		Metadata: domain.Metadata{
			Policy:      req.Policy,
			IssuedAt:    issued,
			ValidUntil:  issued.Add(uc.validity()),
			Issuer:      uc.Issuer,
			CallbackURL: req.CallbackURL,
		},
	}
	// The commitment already succeeded, so the stored attestation starts
	// past the pending boundary.
	if err := a.Transition(domain.StateComputingCommitment, now, ""); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}

	for attempt := 0; ; attempt++ {
		err := uc.Store.PutIfAbsent(ctx, a)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		if attempt+1 >= idAttempts {
			return nil, fmt.Errorf("%w: attestation id space exhausted", domain.ErrConflict)
		}
		next, idErr := newAttestationID(uc.now())
		if idErr != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInternal, idErr)
		}
		a.ID = next
	}

	if uc.Enqueue != nil {
		uc.Enqueue(a.ID)
	}
	return &CreateResult{ClaimID: a.ID, State: a.State, CreatedAt: a.CreatedAt}, nil
}

func (uc *CreateAttestation) validate(ctx context.Context, req CreateRequest) error {
	if strings.TrimSpace(req.Control.Statement) == "" {
		return fmt.Errorf("%w: control.statement is required", domain.ErrInvalidRequest)
	}
	if req.Control.Framework == "" {
		return fmt.Errorf("%w: control.framework is required", domain.ErrInvalidRequest)
	}
	if !domain.ValidAssessmentResult(req.Control.AssessmentResult) {
		return fmt.Errorf("%w: control.assessment_result must be PASS, FAIL, or PARTIAL", domain.ErrInvalidRequest)
	}
	if req.CallbackURL != "" {
		u, err := url.Parse(req.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: callback_url must be an http(s) URL", domain.ErrInvalidRequest)
		}
	}
	if uc.Admission != nil {
		allowed, reasons, err := uc.Admission.Admit(ctx, req)
		if err != nil {
			return fmt.Errorf("%w: admission policy: %v", domain.ErrInternal, err)
		}
		if !allowed {
			return fmt.Errorf("%w: denied by admission policy: %s", domain.ErrInvalidRequest, strings.Join(reasons, "; "))
		}
	}
	return nil
}

func (uc *CreateAttestation) existingResult(ctx context.Context, id string) (*CreateResult, error) {
	a, err := uc.Store.Get(ctx, id)
	if err != nil {
		// The winner has reserved the key but not yet persisted; report
		// the id with the initial state.
		return &CreateResult{ClaimID: id, State: domain.StatePending, CreatedAt: uc.now()}, nil
	}
	return &CreateResult{ClaimID: a.ID, State: a.State, CreatedAt: a.CreatedAt}, nil
}

func (uc *CreateAttestation) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock().UTC()
	}
	return time.Now().UTC()
}

func (uc *CreateAttestation) validity() time.Duration {
	if uc.Validity > 0 {
		return uc.Validity
	}
	return 90 * 24 * time.Hour
}

// newAttestationID builds ATT-YYYYMMDDHHMMSS-XXXXXX with six hex
// characters from a CSPRNG.
func newAttestationID(now time.Time) (string, error) {
	var buf [3]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("ATT-%s-%s", now.UTC().Format("20060102150405"), hex.EncodeToString(buf[:])), nil
}
