// Package pipeline drives one document through routing, extraction,
// learning replay and clarification generation, and owns the
// clarification lifecycle that follows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/boq-extractor/internal/ai"
	"github.com/sells-group/boq-extractor/internal/clarify"
	"github.com/sells-group/boq-extractor/internal/config"
	"github.com/sells-group/boq-extractor/internal/document"
	"github.com/sells-group/boq-extractor/internal/extract"
	"github.com/sells-group/boq-extractor/internal/learning"
	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/store"
)

// Pipeline orchestrates extraction runs and clarification handling.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	parser    *document.Parser
	extractor *extract.Extractor
	ai        *ai.Service
	learning  *learning.Service
	clarify   clarify.Options
	now       func() time.Time
}

// New creates a new Pipeline. aiSvc may be nil, in which case only the
// deterministic extractors run.
func New(cfg *config.Config, st store.Store, parser *document.Parser, aiSvc *ai.Service) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		store:  st,
		parser: parser,
		extractor: extract.New(extract.Options{
			DescriptionMaxLen: cfg.Extraction.DescriptionMaxLen,
			SpecRawTextMaxLen: cfg.Extraction.SpecRawTextMaxLen,
		}),
		ai:       aiSvc,
		learning: learning.NewService(st),
		clarify: clarify.Options{
			MaxItems:      cfg.Extraction.MaxItemClarifications,
			RawTextMaxLen: cfg.Extraction.SpecRawTextMaxLen,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Request is one document submitted for extraction.
type Request struct {
	Filename     string
	Data         []byte
	Provider     string
	ProductTypes []string
}

// PendingClarification is the caller-facing view of an open question.
type PendingClarification struct {
	ID       string         `json:"id"`
	Question string         `json:"question"`
	Context  map[string]any `json:"context"`
}

// Result is the outcome of Process.
type Result struct {
	ExtractionID          string                    `json:"extractionId"`
	Status                model.ExtractionStatus    `json:"status"`
	Items                 []model.ExtractedItem     `json:"items"`
	SpecificationCells    []model.SpecificationCell `json:"specificationCells"`
	PendingClarifications []PendingClarification    `json:"pendingClarifications"`
	Error                 *string                   `json:"error,omitempty"`
}

// Process runs one extraction. Document problems (unsupported type,
// unreadable content) produce a failed Result, not an error; the returned
// error is reserved for the record store.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	docType := document.DetectType(req.Filename)
	log := zap.L().With(
		zap.String("document", req.Filename),
		zap.String("document_type", string(docType)),
	)

	ext := &model.Extraction{
		Filename:     req.Filename,
		DocumentType: docType,
		Status:       model.StatusProcessing,
		Provider:     req.Provider,
		ProductTypes: req.ProductTypes,
	}
	if err := p.store.CreateExtraction(ctx, ext); err != nil {
		return nil, eris.Wrap(err, "pipeline: create extraction")
	}
	log = log.With(zap.String("extraction_id", ext.ID))

	if !docType.Supported() {
		log.Info("pipeline: unsupported document type")
		return p.fail(ctx, log, ext, unsupportedMessage(docType))
	}

	start := time.Now()
	parsed, err := p.parser.Parse(ctx, req.Filename, req.Data)
	if err != nil {
		log.Warn("pipeline: document could not be read", zap.Error(err))
		if errors.Is(err, document.ErrUnsupportedFormat) {
			return p.fail(ctx, log, ext, unsupportedMessage(docType))
		}
		return p.fail(ctx, log, ext, err.Error())
	}

	items, cells := p.extractItems(ctx, log, req, parsed, ext)

	rules, err := p.learning.ActiveRules(ctx, "")
	if err != nil {
		log.Warn("pipeline: learned rules unavailable", zap.Error(err))
	}
	if p.cfg.Extraction.ApplyLearnedCorrections {
		if n := learning.Replay(items, rules); n > 0 {
			log.Info("pipeline: replayed learned corrections", zap.Int("applied", n))
		}
	}
	learning.ScoreRelevance(items, rules)

	ext.Items = items
	ext.SpecificationCells = cells
	ext.RelevanceScore = model.MeanConfidence(items)

	cs := clarify.Generate(ext.ID, cells, items, p.clarify)
	if err := p.store.CreateClarifications(ctx, cs); err != nil {
		p.setFailed(ctx, log, ext, "clarifications could not be saved")
		return nil, eris.Wrap(err, "pipeline: save clarifications")
	}

	next := model.StatusCompleted
	if len(cs) > 0 {
		next = model.StatusNeedsClarification
	}
	if err := ext.Transition(next); err != nil {
		return nil, eris.Wrap(err, "pipeline: finish extraction")
	}
	if err := p.store.UpdateExtraction(ctx, ext); err != nil {
		return nil, eris.Wrap(err, "pipeline: save extraction")
	}

	log.Info("pipeline: extraction complete",
		zap.String("status", string(ext.Status)),
		zap.String("provider", ext.Provider),
		zap.Int("items", len(items)),
		zap.Int("spec_cells", len(cells)),
		zap.Int("clarifications", len(cs)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return buildResult(ext, cs), nil
}

// extractItems tries the model-assisted path and falls back to the
// deterministic extractors on any failure.
func (p *Pipeline) extractItems(ctx context.Context, log *zap.Logger, req Request, parsed *document.Parsed, ext *model.Extraction) ([]model.ExtractedItem, []model.SpecificationCell) {
	if p.aiEnabled() {
		res, err := p.ai.Extract(ctx, ai.Request{
			Filename:     req.Filename,
			DocumentType: parsed.Type,
			Text:         parsed.RawText,
			ProductTypes: req.ProductTypes,
			Provider:     req.Provider,
		})
		if err == nil {
			ext.Provider = res.Provider
			cells := res.Cells
			if len(cells) == 0 {
				cells = p.extractor.SpecCells(parsed)
			}
			return res.Items, cells
		}
		log.Warn("pipeline: ai extraction failed, using deterministic extractors", zap.Error(err))
	}

	ext.Provider = ""
	det := p.extractor.Extract(parsed)
	return det.Items, det.Cells
}

func (p *Pipeline) aiEnabled() bool {
	return p.ai != nil && p.cfg.AI.Enabled && p.ai.Available()
}

// fail records a document failure and returns it as a Result.
func (p *Pipeline) fail(ctx context.Context, log *zap.Logger, ext *model.Extraction, msg string) (*Result, error) {
	if err := ext.Fail(msg); err != nil {
		return nil, eris.Wrap(err, "pipeline: fail extraction")
	}
	if err := p.store.UpdateExtraction(ctx, ext); err != nil {
		return nil, eris.Wrap(err, "pipeline: save failed extraction")
	}
	log.Info("pipeline: extraction failed", zap.String("reason", msg))
	return buildResult(ext, nil), nil
}

// setFailed is a best-effort status write used when the run is already
// returning an error.
func (p *Pipeline) setFailed(ctx context.Context, log *zap.Logger, ext *model.Extraction, msg string) {
	if err := ext.Fail(msg); err != nil {
		log.Warn("pipeline: cannot mark extraction failed", zap.Error(err))
		return
	}
	if err := p.store.UpdateExtraction(ctx, ext); err != nil {
		log.Warn("pipeline: failed to save failed status", zap.Error(err))
	}
}

func unsupportedMessage(t model.DocumentType) string {
	return fmt.Sprintf("Unsupported document type: %s", t)
}

func buildResult(ext *model.Extraction, cs []model.Clarification) *Result {
	res := &Result{
		ExtractionID:          ext.ID,
		Status:                ext.Status,
		Items:                 ext.Items,
		SpecificationCells:    ext.SpecificationCells,
		PendingClarifications: make([]PendingClarification, 0, len(cs)),
		Error:                 ext.ErrorMessage,
	}
	if res.Items == nil {
		res.Items = []model.ExtractedItem{}
	}
	if res.SpecificationCells == nil {
		res.SpecificationCells = []model.SpecificationCell{}
	}
	for _, c := range cs {
		if c.Status != model.ClarificationPending {
			continue
		}
		res.PendingClarifications = append(res.PendingClarifications, PendingClarification{
			ID:       c.ID,
			Question: c.Question,
			Context:  c.Context,
		})
	}
	return res
}
