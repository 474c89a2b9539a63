package usecase

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"zkpad/internal/domain"
	cryptoinfra "zkpad/internal/infra/crypto"
)

// EvidenceInput is one item of a create request before local ids are
// assigned.
type EvidenceInput struct {
	URI    string `json:"uri"`
	Digest string `json:"hash"`
	Type   string `json:"type"`
}

// CommitEvidence validates evidence references and binds them with a
// Merkle root plus a commitment hash over the items in input order. Raw evidence
// bytes never pass through here; only URIs and declared digests do.
type CommitEvidence struct {
	Clock func() time.Time

	mu      sync.Mutex
	day     string
	counter int
}

func NewCommitEvidence(clock func() time.Time) *CommitEvidence {
	if clock == nil {
		clock = time.Now
	}
	return &CommitEvidence{Clock: clock}
}

func (uc *CommitEvidence) Execute(items []EvidenceInput) (*domain.EvidenceRecord, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: evidence list is empty", domain.ErrInvalidEvidence)
	}

	record := &domain.EvidenceRecord{
		Items:  make([]domain.EvidenceItem, 0, len(items)),
		Leaves: make([]string, 0, len(items)),
	}
	leaves := make([][]byte, 0, len(items))

	for i, item := range items {
		if err := validateEvidenceInput(i, item); err != nil {
			return nil, err
		}
		leaf, err := hex.DecodeString(item.Digest)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: digest is not hex", domain.ErrInvalidRequest, i)
		}
		record.Items = append(record.Items, domain.EvidenceItem{
			LocalID: uc.nextLocalID(),
			URI:     item.URI,
			Digest:  item.Digest,
			Type:    item.Type,
		})
		record.Leaves = append(record.Leaves, item.Digest)
		leaves = append(leaves, leaf)
	}

	tree, err := cryptoinfra.NewMerkleTree(leaves)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvidence, err)
	}
	record.MerkleRoot = hex.EncodeToString(tree.Root())
	record.LeafCount = tree.LeafCount()
	record.TreeHeight = tree.Height()

	// The commitment hash binds the item set independently of the Merkle
	// layout; local ids are excluded so it is a pure function of input.
	canonical, err := cryptoinfra.CanonicalizeAny(evidenceCommitmentPayload(items))
	if err != nil {
		return nil, fmt.Errorf("canonicalize evidence: %w", err)
	}
	record.CommitmentHash = cryptoinfra.SHA256Hex(canonical)
	return record, nil
}

func validateEvidenceInput(i int, item EvidenceInput) error {
	if item.URI == "" {
		return fmt.Errorf("%w: item %d: uri is required", domain.ErrInvalidRequest, i)
	}
	if len(item.URI) > domain.MaxEvidenceURILen {
		return fmt.Errorf("%w: item %d: uri exceeds %d characters", domain.ErrInvalidRequest, i, domain.MaxEvidenceURILen)
	}
	if strings.HasPrefix(strings.ToLower(item.URI), "data:") {
		return fmt.Errorf("%w: item %d: uri must reference evidence, not embed it", domain.ErrInvalidRequest, i)
	}
	if pos, ok := cryptoinfra.ValidHexDigest(item.Digest); !ok {
		if len(item.Digest) != 64 {
			return fmt.Errorf("%w: item %d: digest must be 64 hex characters, got %d", domain.ErrInvalidRequest, i, len(item.Digest))
		}
		return fmt.Errorf("%w: item %d: digest has invalid character at position %d", domain.ErrInvalidRequest, i, pos)
	}
	if item.Type == "" {
		return fmt.Errorf("%w: item %d: type is required", domain.ErrInvalidRequest, i)
	}
	if len(item.Type) > domain.MaxEvidenceTypeLen {
		return fmt.Errorf("%w: item %d: type exceeds %d characters", domain.ErrInvalidRequest, i, domain.MaxEvidenceTypeLen)
	}
	return nil
}

// nextLocalID assigns EV-YYYYMMDD-NNNN with a per-day monotonic counter.
func (uc *CommitEvidence) nextLocalID() string {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	day := uc.Clock().UTC().Format("20060102")
	if day != uc.day {
		uc.day = day
		uc.counter = 0
	}
	uc.counter++
	return fmt.Sprintf("EV-%s-%04d", day, uc.counter)
}

func evidenceCommitmentPayload(items []EvidenceInput) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"uri":  item.URI,
			"hash": item.Digest,
			"type": item.Type,
		})
	}
	return out
}
