package anchor

import (
	"errors"
	"time"

	"zkpad/internal/domain"
	cryptoinfra "zkpad/internal/infra/crypto"
)

// MaxNoteSize is the largest note a supported chain accepts (Algorand's
// note field limit).
const MaxNoteSize = 1024

// Note is the canonical anchor payload plus its digest. The digest is
// what a later ledger lookup is compared against.
type Note struct {
	Canonical []byte
	DigestHex string
}

func BuildNote(attestationID, merkleRoot, packageHash string, at time.Time) (Note, error) {
	if attestationID == "" {
		return Note{}, errors.New("attestation id is required")
	}
	if merkleRoot == "" {
		return Note{}, errors.New("merkle root is required")
	}
	if packageHash == "" {
		return Note{}, errors.New("package hash is required")
	}
	canonical, err := cryptoinfra.CanonicalizeAny(domain.AnchorNote{
		Protocol:      "zkpa",
		Version:       "1.1",
		AttestationID: attestationID,
		MerkleRoot:    merkleRoot,
		PackageHash:   packageHash,
		Timestamp:     at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Note{}, err
	}
	if len(canonical) > MaxNoteSize {
		return Note{}, errors.New("anchor note exceeds maximum size")
	}
	return Note{
		Canonical: canonical,
		DigestHex: cryptoinfra.SHA256Hex(canonical),
	}, nil
}
