package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/boq-extractor/internal/learning"
	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/store"
)

// CorrectionRequest is an explicit fix to one extracted field.
type CorrectionRequest struct {
	ItemDescription string  `json:"itemDescription"`
	FieldName       string  `json:"fieldName"`
	OriginalValue   *string `json:"originalValue"`
	CorrectedValue  string  `json:"correctedValue"`
}

// RecordCorrection stores a correction under "{description}::{field}".
func (p *Pipeline) RecordCorrection(ctx context.Context, req CorrectionRequest) (*model.LearningRule, error) {
	return p.learning.RecordCorrection(ctx, req.ItemDescription, req.FieldName, req.OriginalValue, req.CorrectedValue)
}

// SeedRule creates an admin relevance rule.
func (p *Pipeline) SeedRule(ctx context.Context, r learning.SeedRule) (*model.LearningRule, error) {
	return p.learning.Seed(ctx, r)
}

// SeedRules creates each rule, skipping keys that already have an active
// rule.
func (p *Pipeline) SeedRules(ctx context.Context, rules []learning.SeedRule) (created, skipped int, err error) {
	return p.learning.SeedAll(ctx, rules)
}

// GetExtraction returns one extraction.
func (p *Pipeline) GetExtraction(ctx context.Context, id string) (*model.Extraction, error) {
	ext, err := p.store.GetExtraction(ctx, id)
	return ext, eris.Wrapf(err, "pipeline: get extraction %s", id)
}

// ListClarifications returns the clarifications of an extraction, optionally
// restricted to one status.
func (p *Pipeline) ListClarifications(ctx context.Context, extractionID string, status model.ClarificationStatus) ([]model.Clarification, error) {
	cs, err := p.store.ListClarifications(ctx, store.ClarificationFilter{
		ExtractionID: extractionID,
		Status:       status,
	})
	return cs, eris.Wrap(err, "pipeline: list clarifications")
}

// ListRules returns learning rules, optionally of one type.
func (p *Pipeline) ListRules(ctx context.Context, t model.LearningType, activeOnly bool) ([]model.LearningRule, error) {
	rules, err := p.store.ListRules(ctx, store.RuleFilter{LearningType: t, ActiveOnly: activeOnly})
	return rules, eris.Wrap(err, "pipeline: list rules")
}
