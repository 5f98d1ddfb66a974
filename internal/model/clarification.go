package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ClarificationType classifies the gap a question addresses.
type ClarificationType string

const (
	ClarifyMissingInfo  ClarificationType = "missing_info"
	ClarifyAmbiguous    ClarificationType = "ambiguous"
	ClarifyConfirmation ClarificationType = "confirmation"
	ClarifyRelevance    ClarificationType = "relevance"
)

// ClarificationStatus is the lifecycle state of a clarification.
type ClarificationStatus string

const (
	ClarificationPending  ClarificationStatus = "pending"
	ClarificationAnswered ClarificationStatus = "answered"
	ClarificationSkipped  ClarificationStatus = "skipped"
	ClarificationExpired  ClarificationStatus = "expired"
)

// ResponseType is how a human supplied the answer.
type ResponseType string

const (
	ResponseText              ResponseType = "text"
	ResponseScreenshot        ResponseType = "screenshot"
	ResponseDocumentReference ResponseType = "document_reference"
	ResponseSelection         ResponseType = "selection"
)

// Valid reports whether r is a known response type.
func (r ResponseType) Valid() bool {
	switch r {
	case ResponseText, ResponseScreenshot, ResponseDocumentReference, ResponseSelection:
		return true
	}
	return false
}

// Clarification targets one item or specification cell of an extraction.
type Clarification struct {
	ID                  string              `json:"id"`
	ExtractionID        string              `json:"extractionId"`
	Type                ClarificationType   `json:"clarificationType"`
	Status              ClarificationStatus `json:"status"`
	Question            string              `json:"question"`
	Context             map[string]any      `json:"context"`
	ItemIndex           *int                `json:"itemIndex,omitempty"`
	Subject             string              `json:"subject"`
	Field               string              `json:"field,omitempty"`
	ResponseType        *ResponseType       `json:"responseType"`
	ResponseText        *string             `json:"responseText"`
	ResponseDocumentRef *string             `json:"responseDocumentRef"`
	CreatedAt           time.Time           `json:"createdAt"`
	ResolvedAt          *time.Time          `json:"resolvedAt"`
}

// Resolve moves a pending clarification into a terminal status once.
func (c *Clarification) Resolve(to ClarificationStatus, at time.Time) error {
	if c.Status != ClarificationPending {
		return eris.Wrapf(ErrInvalidTransition, "clarification %s already %s", c.ID, c.Status)
	}
	if to == ClarificationPending {
		return eris.Wrapf(ErrInvalidTransition, "clarification %s: cannot resolve to pending", c.ID)
	}
	c.Status = to
	c.ResolvedAt = &at
	return nil
}
