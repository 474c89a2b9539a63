// Package oscal maps a finished attestation onto an OSCAL
// assessment-results document for the download endpoint.
package oscal

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"zkpad/internal/domain"
)

const oscalVersion = "1.1.2"

// AssessmentResults renders the attestation as an OSCAL
// assessment-results skeleton. Evidence appears only as back-matter
// resources carrying URIs and digests, never payloads.
func AssessmentResults(a *domain.Attestation) (map[string]any, error) {
	if a.Evidence == nil {
		return nil, fmt.Errorf("%w: attestation has no evidence record", domain.ErrInvalidRequest)
	}

	resources := make([]any, 0, len(a.Evidence.Items))
	for _, item := range a.Evidence.Items {
		resources = append(resources, map[string]any{
			"uuid":  uuid.NewString(),
			"title": item.LocalID,
			"rlinks": []any{
				map[string]any{"href": item.URI},
			},
			"props": []any{
				map[string]any{"name": "type", "value": item.Type},
				map[string]any{"name": "hash-sha256", "value": item.Digest},
			},
		})
	}

	findingTarget := map[string]any{
		"type":      "objective-id",
		"target-id": a.Control.ControlID,
		"status": map[string]any{
			"state": findingState(a.Control.AssessmentResult),
		},
	}

	props := []any{
		map[string]any{"name": "attestation-id", "value": a.ID},
		map[string]any{"name": "merkle-root", "value": a.Evidence.MerkleRoot},
		map[string]any{"name": "commitment-hash", "value": a.Evidence.CommitmentHash},
	}
	if a.Proof != nil {
		props = append(props, map[string]any{"name": "proof-digest", "value": a.Proof.Digest})
	}
	if a.Package != nil {
		props = append(props, map[string]any{"name": "package-digest", "value": a.Package.Digest})
	}

	doc := map[string]any{
		"assessment-results": map[string]any{
			"uuid": uuid.NewString(),
			"metadata": map[string]any{
				"title":         fmt.Sprintf("Attestation of %s %s", a.Control.Framework, a.Control.ControlID),
				"last-modified": time.Now().UTC().Format(time.RFC3339),
				"version":       "1.0",
				"oscal-version": oscalVersion,
			},
			"results": []any{
				map[string]any{
					"uuid":        uuid.NewString(),
					"title":       fmt.Sprintf("%s assessment over %s", a.Control.ControlID, a.Control.AssessmentWindow),
					"description": a.Control.Statement,
					"start":       a.Metadata.IssuedAt.UTC().Format(time.RFC3339),
					"end":         a.Metadata.ValidUntil.UTC().Format(time.RFC3339),
					"props":       props,
					"findings": []any{
						map[string]any{
							"uuid":        uuid.NewString(),
							"title":       a.Control.ControlID,
							"description": a.Control.Statement,
							"target":      findingTarget,
						},
					},
				},
			},
			"back-matter": map[string]any{
				"resources": resources,
			},
		},
	}
	return doc, nil
}

func findingState(result domain.AssessmentResult) string {
	switch result {
	case domain.AssessmentPass:
		return "satisfied"
	case domain.AssessmentPartial:
		return "not-satisfied"
	default:
		return "not-satisfied"
	}
}
