package domain

import "errors"

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidEvidence   = errors.New("invalid evidence")
	ErrProofFailure      = errors.New("proof failure")
	ErrAnchorTransient   = errors.New("anchor transient failure")
	ErrAnchorPermanent   = errors.New("anchor permanent failure")
	ErrSignatureInvalid  = errors.New("signature invalid")
	ErrCancelled         = errors.New("cancelled")
	ErrInternal          = errors.New("internal error")
)
