package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ErrInvalidTransition is returned when a status change is not permitted
// by the lifecycle state machine.
var ErrInvalidTransition = eris.New("model: invalid status transition")

// DocumentType is the routed class of an input document.
type DocumentType string

const (
	DocPDF        DocumentType = "pdf"
	DocExcel      DocumentType = "excel"
	DocWord       DocumentType = "word"
	DocCAD        DocumentType = "cad"
	DocSolidworks DocumentType = "solidworks"
	DocImage      DocumentType = "image"
	DocUnknown    DocumentType = "unknown"
)

// Supported reports whether the extraction pipeline handles this type.
func (d DocumentType) Supported() bool {
	return d == DocPDF || d == DocExcel || d == DocWord
}

// ExtractionStatus represents the lifecycle state of an extraction.
type ExtractionStatus string

const (
	StatusPending            ExtractionStatus = "pending"
	StatusProcessing         ExtractionStatus = "processing"
	StatusNeedsClarification ExtractionStatus = "needs_clarification"
	StatusCompleted          ExtractionStatus = "completed"
	StatusFailed             ExtractionStatus = "failed"
)

// extractionTransitions lists the allowed next states for each state.
// Completed and failed are terminal.
var extractionTransitions = map[ExtractionStatus][]ExtractionStatus{
	StatusPending:            {StatusProcessing, StatusFailed},
	StatusProcessing:         {StatusNeedsClarification, StatusCompleted, StatusFailed},
	StatusNeedsClarification: {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal status change.
func (s ExtractionStatus) CanTransition(to ExtractionStatus) bool {
	for _, next := range extractionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s ExtractionStatus) Terminal() bool {
	return len(extractionTransitions[s]) == 0
}

// Extraction is the aggregate run over one document.
type Extraction struct {
	ID                 string              `json:"id"`
	Filename           string              `json:"filename"`
	DocumentType       DocumentType        `json:"documentType"`
	Status             ExtractionStatus    `json:"status"`
	Provider           string              `json:"provider,omitempty"`
	ProductTypes       []string            `json:"productTypes,omitempty"`
	Items              []ExtractedItem     `json:"items"`
	SpecificationCells []SpecificationCell `json:"specificationCells"`
	RelevanceScore     float64             `json:"relevanceScore"`
	ErrorMessage       *string             `json:"errorMessage"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// Transition moves the extraction to the given status, enforcing the
// lifecycle state machine.
func (e *Extraction) Transition(to ExtractionStatus) error {
	if !e.Status.CanTransition(to) {
		return eris.Wrapf(ErrInvalidTransition, "extraction %s: %s -> %s", e.ID, e.Status, to)
	}
	e.Status = to
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail transitions to failed and records the message.
func (e *Extraction) Fail(msg string) error {
	if err := e.Transition(StatusFailed); err != nil {
		return err
	}
	e.ErrorMessage = &msg
	return nil
}

// MeanConfidence returns the mean item confidence, or 0 with no items.
func MeanConfidence(items []ExtractedItem) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += it.Confidence
	}
	return sum / float64(len(items))
}
