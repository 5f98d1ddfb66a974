// Package store persists extractions, clarifications and learning rules.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/boq-extractor/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrConflict is returned when a conditional write lost to a concurrent
	// writer, or a unique active rule already exists for the key.
	ErrConflict = eris.New("store: conflict")
)

// ClarificationFilter specifies criteria for listing clarifications.
// Zero fields are not filtered on.
type ClarificationFilter struct {
	ExtractionID  string                    `json:"extraction_id,omitempty"`
	Status        model.ClarificationStatus `json:"status,omitempty"`
	CreatedBefore time.Time                 `json:"created_before,omitempty"`
	Limit         int                       `json:"limit,omitempty"`
}

// RuleFilter specifies criteria for listing learning rules.
type RuleFilter struct {
	LearningType model.LearningType `json:"learning_type,omitempty"`
	ActiveOnly   bool               `json:"active_only,omitempty"`
}

// RuleUpdate derives the rule to write from the active rule for a key, or
// from nil when none exists. It runs inside the store transaction.
type RuleUpdate func(existing *model.LearningRule) (*model.LearningRule, error)

// Store defines the persistence interface for the extraction engine.
type Store interface {
	// Extractions
	CreateExtraction(ctx context.Context, e *model.Extraction) error
	UpdateExtraction(ctx context.Context, e *model.Extraction) error
	GetExtraction(ctx context.Context, id string) (*model.Extraction, error)

	// Clarifications
	CreateClarifications(ctx context.Context, cs []model.Clarification) error
	GetClarification(ctx context.Context, id string) (*model.Clarification, error)
	// ResolveClarification writes the terminal state of c only if the
	// stored row is still pending; otherwise it returns ErrConflict.
	ResolveClarification(ctx context.Context, c *model.Clarification) error
	ListClarifications(ctx context.Context, filter ClarificationFilter) ([]model.Clarification, error)
	CountPending(ctx context.Context, extractionID string) (int, error)

	// Learning rules
	UpsertRule(ctx context.Context, learningType model.LearningType, patternKey string, fn RuleUpdate) (*model.LearningRule, error)
	CreateRule(ctx context.Context, r *model.LearningRule) error
	FindActiveRule(ctx context.Context, learningType model.LearningType, patternKey string) (*model.LearningRule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]model.LearningRule, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver      string
	DatabaseURL string
	Pool        *PoolConfig
}

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	}
	return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
}

const defaultListLimit = 500

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
