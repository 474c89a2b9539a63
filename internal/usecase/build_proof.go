package usecase

import (
	"fmt"
	"time"

	"zkpad/internal/domain"
	cryptoinfra "zkpad/internal/infra/crypto"
)

// ProofBackend is the extension point for a real SNARK prover. The
// default commitment-v1 backend emits the canonical commitment claim as
// the proof body; any replacement must preserve the public-input layout
// and the Verify predicate.
type ProofBackend interface {
	Algorithm() string
	Generate(publicInputs []string, template domain.ProofTemplate, risk domain.RiskLevel, merkleRoot string) ([]byte, error)
	Verify(proofBytes []byte, publicInputs []string) error
}

// BuildProof derives the public inputs from the commitment and the
// control descriptor and delegates artifact generation to the backend.
type BuildProof struct {
	Backend ProofBackend
	Clock   func() time.Time
}

func NewBuildProof(clock func() time.Time) *BuildProof {
	if clock == nil {
		clock = time.Now
	}
	return &BuildProof{Backend: CommitmentV1Backend{}, Clock: clock}
}

func (uc *BuildProof) Execute(evidence *domain.EvidenceRecord, interp *domain.Interpretation, control domain.Control, policy string) (*domain.ProofRecord, error) {
	if evidence == nil || evidence.MerkleRoot == "" {
		return nil, fmt.Errorf("%w: missing evidence commitment", domain.ErrProofFailure)
	}
	if interp == nil {
		return nil, fmt.Errorf("%w: missing interpretation", domain.ErrProofFailure)
	}

	publicInputs := PublicInputs(evidence.MerkleRoot, control.Statement, policy)
	proofBytes, err := uc.Backend.Generate(publicInputs, interp.ProofTemplate, interp.RiskLevel, evidence.MerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProofFailure, err)
	}

	return &domain.ProofRecord{
		Algorithm:    uc.Backend.Algorithm(),
		ProofBytes:   proofBytes,
		PublicInputs: publicInputs,
		Digest:       cryptoinfra.SHA256Hex(proofBytes),
		SizeBytes:    len(proofBytes),
		GeneratedAt:  uc.Clock().UTC(),
	}, nil
}

// PublicInputs is [merkle_root, H(statement), H(policy)], all hex.
func PublicInputs(merkleRoot, statement, policy string) []string {
	return []string{
		merkleRoot,
		cryptoinfra.SHA256Hex([]byte(statement)),
		cryptoinfra.SHA256Hex([]byte(policy)),
	}
}

// CommitmentV1Backend is the placeholder proof layer: the artifact is the
// canonical JSON of the commitment claim, so verification is
// re-canonicalization plus digest equality.
type CommitmentV1Backend struct{}

func (CommitmentV1Backend) Algorithm() string {
	return domain.ProofAlgorithmCommitmentV1
}

func (CommitmentV1Backend) Generate(publicInputs []string, template domain.ProofTemplate, risk domain.RiskLevel, merkleRoot string) ([]byte, error) {
	inputs := make([]any, 0, len(publicInputs))
	for _, in := range publicInputs {
		inputs = append(inputs, in)
	}
	return cryptoinfra.CanonicalizeAny(map[string]any{
		"merkle_root":   merkleRoot,
		"public_inputs": inputs,
		"template":      string(template),
		"risk":          string(risk),
	})
}

func (CommitmentV1Backend) Verify(proofBytes []byte, publicInputs []string) error {
	canonical, err := cryptoinfra.CanonicalizeJSON(proofBytes)
	if err != nil {
		return fmt.Errorf("proof bytes are not canonical JSON: %w", err)
	}
	if string(canonical) != string(proofBytes) {
		return fmt.Errorf("proof bytes are not in canonical form")
	}
	if len(publicInputs) < 1 {
		return fmt.Errorf("public inputs are empty")
	}
	return nil
}
