package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zkpad/internal/domain"
)

// InterpretationCache stores AI interpretations keyed by the request
// triple so repeated statements skip the adapter round-trip.
type InterpretationCache interface {
	Get(ctx context.Context, key string) (*domain.Interpretation, bool, error)
	Put(ctx context.Context, key string, value domain.Interpretation, ttl time.Duration) error
}

// InterpretControl maps a control statement to a claim type, proof
// template, and risk level. The rule-based path is authoritative and
// total; the AI adapter, when configured, is consulted first and
// validated, falling back to rules on any error.
type InterpretControl struct {
	AI        domain.AIAdapter
	AITimeout time.Duration
	Cache     InterpretationCache
	CacheTTL  time.Duration
}

const (
	ruleConfidence      = 0.85
	defaultAIConfidence = 0.95
)

// Keyword groups scanned in order; the earliest matching group wins.
type keywordGroup struct {
	keywords []string
	claim    domain.ClaimType
	template domain.ProofTemplate
	risk     domain.RiskLevel
}

var keywordGroups = []keywordGroup{
	{
		keywords: []string{"integrity", "backup", "log", "retention"},
		claim:    domain.ClaimEvidenceIntegrity,
		template: domain.TemplateMerkleCommitment,
		risk:     domain.RiskMedium,
	},
	{
		keywords: []string{"access", "authenticat", "account", "identity", "least privilege", "mfa"},
		claim:    domain.ClaimControlEffectiveness,
		template: domain.TemplateZKPredicate,
		risk:     domain.RiskHigh,
	},
	{
		keywords: []string{"monitor", "audit", "track", "trail", "event"},
		claim:    domain.ClaimAuditTrail,
		template: domain.TemplateSignatureChain,
		risk:     domain.RiskMedium,
	},
}

// Required evidence kinds fixed per (claim type, framework). The empty
// framework key is the default row.
var evidenceKinds = map[domain.ClaimType]map[string][]string{
	domain.ClaimEvidenceIntegrity: {
		"":            {"log", "backup_report", "config_snapshot"},
		"NIST 800-53": {"audit_log", "backup_report", "config_snapshot"},
		"SOC 2":       {"log", "backup_report", "change_ticket"},
		"ISO 27001":   {"log", "backup_report", "retention_policy"},
	},
	domain.ClaimControlEffectiveness: {
		"":            {"policy_document", "access_review", "config_snapshot"},
		"NIST 800-53": {"policy_document", "access_review", "account_inventory"},
		"SOC 2":       {"policy_document", "access_review", "provisioning_ticket"},
		"ISO 27001":   {"policy_document", "access_review", "scope_statement"},
	},
	domain.ClaimAuditTrail: {
		"":            {"log", "audit_report", "monitoring_export"},
		"NIST 800-53": {"audit_log", "audit_report", "siem_export"},
		"SOC 2":       {"log", "audit_report", "monitoring_export"},
		"ISO 27001":   {"log", "audit_report", "review_minutes"},
	},
}

func (uc *InterpretControl) Execute(ctx context.Context, statement, framework, controlID string) (domain.Interpretation, error) {
	if strings.TrimSpace(statement) == "" {
		return domain.Interpretation{}, fmt.Errorf("%w: control statement is required", domain.ErrInvalidRequest)
	}
	if uc.AI != nil {
		if interp, ok := uc.interpretWithAI(ctx, statement, framework, controlID); ok {
			return interp, nil
		}
	}
	return uc.interpretWithRules(statement, framework), nil
}

// interpretWithRules is deterministic: the output is a function of the
// lowercased statement and the framework.
func (uc *InterpretControl) interpretWithRules(statement, framework string) domain.Interpretation {
	lower := strings.ToLower(statement)

	group := keywordGroup{
		claim:    domain.ClaimControlEffectiveness,
		template: domain.TemplateMerkleCommitment,
		risk:     domain.RiskMedium,
	}
	matched := ""
	for _, g := range keywordGroups {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				group = g
				matched = kw
				break
			}
		}
		if matched != "" {
			break
		}
	}

	reasoning := "no keyword matched; defaulted to control effectiveness over a merkle commitment"
	if matched != "" {
		reasoning = fmt.Sprintf("matched keyword %q; classified as %s via %s", matched, group.claim, group.template)
	}

	return domain.Interpretation{
		ClaimType:        group.claim,
		ProofTemplate:    group.template,
		RiskLevel:        group.risk,
		RequiredEvidence: requiredEvidence(group.claim, framework),
		Reasoning:        reasoning,
		Confidence:       ruleConfidence,
		Source:           domain.InterpretationSourceRules,
	}
}

func (uc *InterpretControl) interpretWithAI(ctx context.Context, statement, framework, controlID string) (domain.Interpretation, bool) {
	cacheKey := interpretationCacheKey(statement, framework, controlID)
	if uc.Cache != nil {
		if cached, ok, err := uc.Cache.Get(ctx, cacheKey); err == nil && ok && cached != nil {
			return *cached, true
		}
	}

	timeout := uc.AITimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	aiCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interp, err := uc.AI.Interpret(aiCtx, statement, framework, controlID)
	if err != nil {
		return domain.Interpretation{}, false
	}
	if err := validateInterpretation(interp); err != nil {
		return domain.Interpretation{}, false
	}
	if interp.Confidence <= 0 {
		interp.Confidence = defaultAIConfidence
	}
	if len(interp.RequiredEvidence) == 0 {
		interp.RequiredEvidence = requiredEvidence(interp.ClaimType, framework)
	}
	interp.Source = domain.InterpretationSourceAI

	if uc.Cache != nil {
		_ = uc.Cache.Put(ctx, cacheKey, interp, uc.CacheTTL)
	}
	return interp, true
}

func validateInterpretation(i domain.Interpretation) error {
	if !domain.ValidClaimType(i.ClaimType) {
		return fmt.Errorf("unknown claim type %q", i.ClaimType)
	}
	if !domain.ValidProofTemplate(i.ProofTemplate) {
		return fmt.Errorf("unknown proof template %q", i.ProofTemplate)
	}
	if !domain.ValidRiskLevel(i.RiskLevel) {
		return fmt.Errorf("unknown risk level %q", i.RiskLevel)
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", i.Confidence)
	}
	return nil
}

func requiredEvidence(claim domain.ClaimType, framework string) []string {
	byFramework, ok := evidenceKinds[claim]
	if !ok {
		return nil
	}
	if kinds, ok := byFramework[framework]; ok {
		return append([]string(nil), kinds...)
	}
	return append([]string(nil), byFramework[""]...)
}

func interpretationCacheKey(statement, framework, controlID string) string {
	return strings.ToLower(statement) + "|" + framework + "|" + controlID
}
