// Package policyopa gates attestation creation with a Rego admission
// policy. The bundle is loaded and compiled once at startup; a denied
// request never reaches the pipeline.
package policyopa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/rego"

	"zkpad/internal/usecase"
)

const defaultQuery = "data.zkpad.admission.result"

type Engine struct {
	query      rego.PreparedEvalQuery
	bundleHash string
	bundleID   string
}

type admissionInput struct {
	Framework        string `json:"framework"`
	ControlID        string `json:"control_id"`
	Statement        string `json:"statement"`
	AssessmentResult string `json:"assessment_result"`
	EvidenceCount    int    `json:"evidence_count"`
	Policy           string `json:"policy"`
	HasCallback      bool   `json:"has_callback"`
}

type admissionResult struct {
	Allow   bool     `json:"allow"`
	Reasons []string `json:"reasons"`
}

func NewEngineFromBundlePath(ctx context.Context, bundlePath, bundleID string) (*Engine, error) {
	bundleHash, err := ComputeBundleHashFromPath(bundlePath)
	if err != nil {
		return nil, err
	}

	r := rego.New(
		rego.Query(defaultQuery),
		rego.StrictBuiltinErrors(true),
		rego.Load([]string{bundlePath}, nil),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare admission policy: %w", err)
	}
	return &Engine{
		query:      prepared,
		bundleHash: bundleHash,
		bundleID:   bundleID,
	}, nil
}

func (e *Engine) BundleHash() string {
	return e.bundleHash
}

func (e *Engine) BundleID() string {
	return e.bundleID
}

func (e *Engine) Admit(ctx context.Context, req usecase.CreateRequest) (bool, []string, error) {
	if e == nil {
		return true, nil, nil
	}
	input := admissionInput{
		Framework:        req.Control.Framework,
		ControlID:        req.Control.ControlID,
		Statement:        req.Control.Statement,
		AssessmentResult: string(req.Control.AssessmentResult),
		EvidenceCount:    len(req.Evidence),
		Policy:           req.Policy,
		HasCallback:      req.CallbackURL != "",
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, nil, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil, errors.New("empty admission policy result")
	}
	decision, err := decodeResult(results[0].Expressions[0].Value)
	if err != nil {
		return false, nil, err
	}
	sort.Strings(decision.Reasons)
	return decision.Allow, decision.Reasons, nil
}

func decodeResult(value any) (admissionResult, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return admissionResult{}, err
	}
	var result admissionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return admissionResult{}, err
	}
	return result, nil
}

var _ usecase.AdmissionEngine = (*Engine)(nil)
