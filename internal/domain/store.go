package domain

import (
	"context"
	"time"
)

// IdempotencyTTL bounds how long a client key collapses repeated creates.
const IdempotencyTTL = 24 * time.Hour

type IdempotencyRecord struct {
	Key           string    `json:"key"`
	AttestationID string    `json:"attestation_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type ListFilter struct {
	State  State
	Limit  int
	Offset int
}

// StateStore owns attestations, verification receipts, and idempotency
// records. Readers never observe partial writes; UpdateWith serializes
// per identifier via compare-and-set on the revision counter.
type StateStore interface {
	PutIfAbsent(ctx context.Context, a *Attestation) error
	Get(ctx context.Context, id string) (*Attestation, error)
	UpdateWith(ctx context.Context, id string, fn func(*Attestation) error) (*Attestation, error)
	List(ctx context.Context, filter ListFilter) ([]*Attestation, int, error)

	PutReceipt(ctx context.Context, r *VerificationReceipt) error
	GetReceipt(ctx context.Context, id string) (*VerificationReceipt, error)

	// PutIdempotency resolves creation races: the returned attestation id
	// is the winner's, and created reports whether the caller won.
	PutIdempotency(ctx context.Context, key, attestationID string, now time.Time) (string, bool, error)
	GetIdempotency(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	// DeleteIdempotency releases a key whose create failed before persisting.
	DeleteIdempotency(ctx context.Context, key string)
	ExpireIdempotency(ctx context.Context, now time.Time) int

	// ResetAll clears every container. Demo mode only.
	ResetAll(ctx context.Context)
}

// ArchiveStore is the optional SQL collaborator; writes are append-only
// per revision and never gate the in-memory pipeline.
type ArchiveStore interface {
	SaveAttestation(ctx context.Context, a *Attestation) error
	SaveReceipt(ctx context.Context, r *VerificationReceipt) error
	SaveIdempotency(ctx context.Context, rec IdempotencyRecord, expiresAt time.Time) error
}
