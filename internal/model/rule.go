package model

import "time"

// LearningType separates replayable corrections from relevance keywords.
type LearningType string

const (
	LearningCorrection    LearningType = "correction"
	LearningRelevanceRule LearningType = "relevance_rule"
)

// RuleSource records who produced a rule.
type RuleSource string

const (
	SourceUserCorrection RuleSource = "user_correction"
	SourceAdminSeeded    RuleSource = "admin_seeded"
)

// LearningRule is a persisted pattern -> value mapping.
type LearningRule struct {
	ID                     string       `json:"id"`
	LearningType           LearningType `json:"learningType"`
	Source                 RuleSource   `json:"source"`
	Category               string       `json:"category,omitempty"`
	PatternKey             string       `json:"patternKey"`
	LearnedValue           string       `json:"learnedValue"`
	OriginalValue          *string      `json:"originalValue"`
	ApplicableProductTypes []string     `json:"applicableProductTypes,omitempty"`
	Confidence             float64      `json:"confidence"`
	ConfirmationCount      int          `json:"confirmationCount"`
	IsActive               bool         `json:"isActive"`
	CreatedAt              time.Time    `json:"createdAt"`
	UpdatedAt              time.Time    `json:"updatedAt"`
}
