package store

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/boq-extractor/internal/model"
)

// extractionJSON holds the JSON-encoded columns of an extraction row.
type extractionJSON struct {
	productTypes []byte
	items        []byte
	cells        []byte
}

func encodeExtraction(e *model.Extraction) (extractionJSON, error) {
	var out extractionJSON
	var err error
	if out.productTypes, err = marshalList(e.ProductTypes); err != nil {
		return out, eris.Wrap(err, "store: marshal product types")
	}
	if out.items, err = marshalList(e.Items); err != nil {
		return out, eris.Wrap(err, "store: marshal items")
	}
	if out.cells, err = marshalList(e.SpecificationCells); err != nil {
		return out, eris.Wrap(err, "store: marshal specification cells")
	}
	return out, nil
}

func decodeExtraction(e *model.Extraction, j extractionJSON) error {
	if err := unmarshalOptional(j.productTypes, &e.ProductTypes); err != nil {
		return eris.Wrap(err, "store: unmarshal product types")
	}
	if err := unmarshalOptional(j.items, &e.Items); err != nil {
		return eris.Wrap(err, "store: unmarshal items")
	}
	if err := unmarshalOptional(j.cells, &e.SpecificationCells); err != nil {
		return eris.Wrap(err, "store: unmarshal specification cells")
	}
	if e.Items == nil {
		e.Items = []model.ExtractedItem{}
	}
	if e.SpecificationCells == nil {
		e.SpecificationCells = []model.SpecificationCell{}
	}
	return nil
}

// marshalList encodes a nil slice as [] so stored rows never hold null lists.
func marshalList[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}

func unmarshalOptional(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func marshalContext(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	return b, eris.Wrap(err, "store: marshal clarification context")
}

// prepareExtraction assigns an ID and timestamps to a new extraction.
func prepareExtraction(e *model.Extraction) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = model.StatusPending
	}
}

func prepareClarification(c *model.Clarification) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = model.ClarificationPending
	}
}

func prepareRule(r *model.LearningRule) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}

// isUniqueViolation reports whether err is a unique-constraint failure
// from either backend.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func responseTypePtr(s *string) *model.ResponseType {
	if s == nil || *s == "" {
		return nil
	}
	rt := model.ResponseType(*s)
	return &rt
}

func responseTypeArg(rt *model.ResponseType) *string {
	if rt == nil {
		return nil
	}
	s := string(*rt)
	return &s
}
