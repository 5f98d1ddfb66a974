package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/store"
)

var (
	// ErrClarificationNotFound is returned when no clarification has the
	// given ID. Nothing is changed.
	ErrClarificationNotFound = eris.New("pipeline: clarification not found")
	// ErrClarificationResolved is returned when the clarification is no
	// longer pending.
	ErrClarificationResolved = eris.New("pipeline: clarification already resolved")
	// ErrInvalidAnswer is returned for an unknown response type or an
	// answer that carries no content.
	ErrInvalidAnswer = eris.New("pipeline: invalid answer")
)

// AnswerRequest is a human answer to one clarification.
type AnswerRequest struct {
	ClarificationID string             `json:"clarificationId"`
	ResponseType    model.ResponseType `json:"responseType"`
	ResponseText    string             `json:"responseText,omitempty"`
	ScreenshotPath  string             `json:"screenshotPath,omitempty"`
	DocumentRef     string             `json:"documentRef,omitempty"`
	// AllowLearning defaults to true when nil.
	AllowLearning *bool `json:"allowLearning,omitempty"`
}

// AnswerResult reports the state of the owning extraction after a
// clarification was resolved.
type AnswerResult struct {
	Success                 bool              `json:"success"`
	RemainingClarifications int               `json:"remainingClarifications"`
	UpdatedExtraction       *model.Extraction `json:"updatedExtraction,omitempty"`
}

// AnswerClarification records an answer, feeds it to the learning store
// unless suppressed, and re-evaluates the owning extraction.
func (p *Pipeline) AnswerClarification(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	if !req.ResponseType.Valid() {
		return nil, eris.Wrapf(ErrInvalidAnswer, "unknown response type %q", req.ResponseType)
	}
	text := strings.TrimSpace(req.ResponseText)
	ref := answerRef(req)
	if text == "" && ref == "" {
		return nil, eris.Wrap(ErrInvalidAnswer, "answer has no text or reference")
	}

	c, err := p.pending(ctx, req.ClarificationID)
	if err != nil {
		return nil, err
	}
	if err := c.Resolve(model.ClarificationAnswered, p.now()); err != nil {
		return nil, eris.Wrap(ErrClarificationResolved, err.Error())
	}
	rt := req.ResponseType
	c.ResponseType = &rt
	if text != "" {
		c.ResponseText = &text
	}
	if ref != "" {
		c.ResponseDocumentRef = &ref
	}
	if err := p.resolve(ctx, c); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("clarification_id", c.ID),
		zap.String("extraction_id", c.ExtractionID),
	)
	if req.AllowLearning == nil || *req.AllowLearning {
		if _, err := p.learning.RecordAnswer(ctx, *c, text); err != nil {
			log.Warn("pipeline: failed to learn from answer", zap.Error(err))
		}
	}

	return p.reevaluate(ctx, log, c.ExtractionID)
}

// SkipClarification marks a pending clarification skipped.
func (p *Pipeline) SkipClarification(ctx context.Context, id string) (*AnswerResult, error) {
	c, err := p.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Resolve(model.ClarificationSkipped, p.now()); err != nil {
		return nil, eris.Wrap(ErrClarificationResolved, err.Error())
	}
	if err := p.resolve(ctx, c); err != nil {
		return nil, err
	}
	log := zap.L().With(
		zap.String("clarification_id", c.ID),
		zap.String("extraction_id", c.ExtractionID),
	)
	return p.reevaluate(ctx, log, c.ExtractionID)
}

// ExpireClarifications marks every clarification still pending after
// olderThan as expired and re-evaluates the affected extractions. It
// returns the number expired.
func (p *Pipeline) ExpireClarifications(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := p.now().Add(-olderThan)
	log := zap.L().With(zap.Time("cutoff", cutoff))

	expired := 0
	touched := make(map[string]struct{})
	for {
		batch, err := p.store.ListClarifications(ctx, store.ClarificationFilter{
			Status:        model.ClarificationPending,
			CreatedBefore: cutoff,
			Limit:         expireBatchSize,
		})
		if err != nil {
			return expired, eris.Wrap(err, "pipeline: list stale clarifications")
		}

		progressed := false
		for i := range batch {
			c := &batch[i]
			if err := c.Resolve(model.ClarificationExpired, p.now()); err != nil {
				continue
			}
			err := p.store.ResolveClarification(ctx, c)
			if eris.Is(err, store.ErrConflict) || eris.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return expired, eris.Wrapf(err, "pipeline: expire clarification %s", c.ID)
			}
			progressed = true
			expired++
			touched[c.ExtractionID] = struct{}{}
		}

		if len(batch) < expireBatchSize || !progressed {
			break
		}
	}

	for id := range touched {
		if _, err := p.reevaluate(ctx, log.With(zap.String("extraction_id", id)), id); err != nil {
			return expired, err
		}
	}

	log.Info("pipeline: expired clarifications",
		zap.Int("expired", expired),
		zap.Int("extractions", len(touched)),
	)
	return expired, nil
}

const expireBatchSize = 200

// pending loads a clarification that must still be open.
func (p *Pipeline) pending(ctx context.Context, id string) (*model.Clarification, error) {
	c, err := p.store.GetClarification(ctx, id)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrClarificationNotFound, "id %s", id)
		}
		return nil, eris.Wrap(err, "pipeline: get clarification")
	}
	if c.Status != model.ClarificationPending {
		return nil, eris.Wrapf(ErrClarificationResolved, "id %s is %s", id, c.Status)
	}
	return c, nil
}

// resolve writes the terminal state, mapping lost races to the pipeline
// sentinels.
func (p *Pipeline) resolve(ctx context.Context, c *model.Clarification) error {
	err := p.store.ResolveClarification(ctx, c)
	switch {
	case err == nil:
		return nil
	case eris.Is(err, store.ErrConflict):
		return eris.Wrapf(ErrClarificationResolved, "id %s", c.ID)
	case eris.Is(err, store.ErrNotFound):
		return eris.Wrapf(ErrClarificationNotFound, "id %s", c.ID)
	}
	return eris.Wrap(err, "pipeline: resolve clarification")
}

// reevaluate recounts the open clarifications of an extraction and
// completes it when none remain.
func (p *Pipeline) reevaluate(ctx context.Context, log *zap.Logger, extractionID string) (*AnswerResult, error) {
	remaining, err := p.store.CountPending(ctx, extractionID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: count pending clarifications")
	}
	ext, err := p.store.GetExtraction(ctx, extractionID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: get extraction")
	}

	if remaining == 0 && ext.Status == model.StatusNeedsClarification {
		if err := ext.Transition(model.StatusCompleted); err != nil {
			return nil, eris.Wrap(err, "pipeline: complete extraction")
		}
		if err := p.store.UpdateExtraction(ctx, ext); err != nil {
			return nil, eris.Wrap(err, "pipeline: save completed extraction")
		}
		log.Info("pipeline: all clarifications resolved, extraction completed")
	}

	return &AnswerResult{
		Success:                 true,
		RemainingClarifications: remaining,
		UpdatedExtraction:       ext,
	}, nil
}

func answerRef(req AnswerRequest) string {
	switch req.ResponseType {
	case model.ResponseScreenshot:
		if s := strings.TrimSpace(req.ScreenshotPath); s != "" {
			return s
		}
	case model.ResponseDocumentReference:
		if s := strings.TrimSpace(req.DocumentRef); s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(req.DocumentRef); s != "" {
		return s
	}
	return strings.TrimSpace(req.ScreenshotPath)
}

// IsNotFound reports whether err means the requested record does not exist.
func IsNotFound(err error) bool {
	return eris.Is(err, ErrClarificationNotFound) || eris.Is(err, store.ErrNotFound)
}
