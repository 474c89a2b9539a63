// Package ai implements the optional control-interpretation adapter
// against an HTTP model endpoint. The caller owns the timeout and falls
// back to the rule-based interpreter on any error, so this client only
// reports; it never retries.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"zkpad/internal/domain"
)

type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}
}

type interpretRequest struct {
	ControlStatement string `json:"control_statement"`
	Framework        string `json:"framework"`
	ControlID        string `json:"control_id,omitempty"`
}

type interpretResponse struct {
	ClaimType            string   `json:"claim_type"`
	ProofTemplate        string   `json:"proof_template"`
	EvidenceRequirements []string `json:"evidence_requirements"`
	RiskLevel            string   `json:"risk_level"`
	Reasoning            string   `json:"reasoning"`
	Confidence           float64  `json:"confidence"`
}

func (c *Client) Interpret(ctx context.Context, statement, framework, controlID string) (domain.Interpretation, error) {
	body, err := json.Marshal(interpretRequest{
		ControlStatement: statement,
		Framework:        framework,
		ControlID:        controlID,
	})
	if err != nil {
		return domain.Interpretation{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Interpretation{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Interpretation{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Interpretation{}, fmt.Errorf("interpreter endpoint returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Interpretation{}, err
	}
	var parsed interpretResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.Interpretation{}, fmt.Errorf("decode interpretation: %w", err)
	}

	return domain.Interpretation{
		ClaimType:        domain.ClaimType(parsed.ClaimType),
		ProofTemplate:    domain.ProofTemplate(parsed.ProofTemplate),
		RiskLevel:        domain.RiskLevel(parsed.RiskLevel),
		RequiredEvidence: parsed.EvidenceRequirements,
		Reasoning:        parsed.Reasoning,
		Confidence:       parsed.Confidence,
		Source:           domain.InterpretationSourceAI,
	}, nil
}

var _ domain.AIAdapter = (*Client)(nil)
