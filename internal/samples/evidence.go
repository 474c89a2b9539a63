package samples

import (
	"fmt"

	cryptoinfra "zkpad/internal/infra/crypto"
	"zkpad/internal/usecase"
)

var evidenceTypes = []string{"log", "config_snapshot", "access_review", "policy_document", "backup_report"}

// SyntheticEvidence builds the fixed evidence set for a sample control.
// Items are deterministic: the same control always commits to the same
// Merkle root, which makes demo attestations reproducible.
func SyntheticEvidence(c Control) []usecase.EvidenceInput {
	items := make([]usecase.EvidenceInput, 0, c.EvidenceCount)
	for i := 0; i < c.EvidenceCount; i++ {
		seed := fmt.Sprintf("zkpad-demo-evidence|%s|%s|%d", c.Framework, c.ControlID, i)
		items = append(items, usecase.EvidenceInput{
			URI:    fmt.Sprintf("demo://evidence/%s/%d", c.ControlID, i+1),
			Digest: cryptoinfra.SHA256Hex([]byte(seed)),
			Type:   evidenceTypes[i%len(evidenceTypes)],
		})
	}
	return items
}
