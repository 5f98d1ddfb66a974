// Package learning owns the learning-rule contract: idempotent upserts from
// clarification answers and corrections, admin-seeded relevance rules, and
// the replay and relevance passes that read them back.
package learning

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/store"
)

// Rule confidence levels.
const (
	InitialConfidence = 0.6
	ConfirmStep       = 0.05
	SeedConfidence    = 0.9
)

// KeySeparator joins an item description and a field name in correction keys.
const KeySeparator = "::"

// ErrInvalidRule is returned for observations without a key or value.
var ErrInvalidRule = eris.New("learning: pattern key and learned value are required")

// RuleStore is the subset of store.Store the learning loop writes through.
type RuleStore interface {
	UpsertRule(ctx context.Context, learningType model.LearningType, patternKey string, fn store.RuleUpdate) (*model.LearningRule, error)
	CreateRule(ctx context.Context, r *model.LearningRule) error
	ListRules(ctx context.Context, filter store.RuleFilter) ([]model.LearningRule, error)
	FindActiveRule(ctx context.Context, learningType model.LearningType, patternKey string) (*model.LearningRule, error)
}

// Observation is one value seen for a key by a human or admin.
type Observation struct {
	LearningType  model.LearningType
	Source        model.RuleSource
	Category      string
	PatternKey    string
	Value         string
	OriginalValue *string
	ProductTypes  []string
}

// CorrectionKey builds the "{description}::{field}" key of a correction.
func CorrectionKey(description, field string) string {
	return strings.TrimSpace(description) + KeySeparator + strings.TrimSpace(field)
}

// SplitKey splits a correction key into description and field. ok is false
// for keys without a field part.
func SplitKey(key string) (description, field string, ok bool) {
	i := strings.LastIndex(key, KeySeparator)
	if i < 0 {
		return key, "", false
	}
	return key[:i], key[i+len(KeySeparator):], true
}

// sameValue compares learned values ignoring case and surrounding space.
func sameValue(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Apply is the upsert contract. A new key starts at InitialConfidence with
// one confirmation. Repeating the stored value confirms it and nudges
// confidence up by ConfirmStep, capped at 1. A different value replaces the
// stored one and resets to InitialConfidence with one confirmation.
func Apply(existing *model.LearningRule, obs Observation, now time.Time) *model.LearningRule {
	if existing == nil {
		return &model.LearningRule{
			LearningType:           obs.LearningType,
			Source:                 obs.Source,
			Category:               obs.Category,
			PatternKey:             obs.PatternKey,
			LearnedValue:           obs.Value,
			OriginalValue:          obs.OriginalValue,
			ApplicableProductTypes: obs.ProductTypes,
			Confidence:             InitialConfidence,
			ConfirmationCount:      1,
			IsActive:               true,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
	}

	next := *existing
	next.UpdatedAt = now
	next.IsActive = true
	if sameValue(existing.LearnedValue, obs.Value) {
		next.ConfirmationCount++
		next.Confidence = math.Min(1, roundConfidence(existing.Confidence+ConfirmStep))
		return &next
	}
	next.LearnedValue = obs.Value
	if obs.OriginalValue != nil {
		next.OriginalValue = obs.OriginalValue
	}
	next.ConfirmationCount = 1
	next.Confidence = InitialConfidence
	return &next
}

// roundConfidence avoids drift from repeated float steps (0.6+0.05 != 0.65).
func roundConfidence(c float64) float64 {
	return math.Round(c*1e6) / 1e6
}

// Service serializes rule writes per key and exposes the two write paths.
type Service struct {
	store RuleStore
	locks *keyLocks
	now   func() time.Time
}

// NewService creates a Service over st.
func NewService(st RuleStore) *Service {
	return &Service{
		store: st,
		locks: newKeyLocks(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Learn folds obs into the active rule for its key.
func (s *Service) Learn(ctx context.Context, obs Observation) (*model.LearningRule, error) {
	obs.PatternKey = strings.TrimSpace(obs.PatternKey)
	obs.Value = strings.TrimSpace(obs.Value)
	if obs.PatternKey == "" || obs.Value == "" {
		return nil, ErrInvalidRule
	}
	if obs.LearningType == "" {
		obs.LearningType = model.LearningCorrection
	}

	unlock := s.locks.lock(string(obs.LearningType) + "\x00" + obs.PatternKey)
	defer unlock()

	r, err := s.store.UpsertRule(ctx, obs.LearningType, obs.PatternKey, func(existing *model.LearningRule) (*model.LearningRule, error) {
		return Apply(existing, obs, s.now()), nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "learning: upsert %q", obs.PatternKey)
	}

	zap.L().Debug("learning: rule updated",
		zap.String("pattern_key", r.PatternKey),
		zap.String("learning_type", string(r.LearningType)),
		zap.Float64("confidence", r.Confidence),
		zap.Int("confirmation_count", r.ConfirmationCount),
	)
	return r, nil
}

// RecordCorrection learns an explicit field correction for an item description.
func (s *Service) RecordCorrection(ctx context.Context, description, field string, original *string, corrected string) (*model.LearningRule, error) {
	if strings.TrimSpace(description) == "" || strings.TrimSpace(field) == "" {
		return nil, eris.Wrap(ErrInvalidRule, "learning: correction needs description and field")
	}
	return s.Learn(ctx, Observation{
		LearningType:  model.LearningCorrection,
		Source:        model.SourceUserCorrection,
		Category:      strings.TrimSpace(field),
		PatternKey:    CorrectionKey(description, field),
		Value:         corrected,
		OriginalValue: original,
	})
}

// RecordAnswer learns a clarification answer keyed by the clarified
// subject. Empty answers are not learned.
func (s *Service) RecordAnswer(ctx context.Context, c model.Clarification, answer string) (*model.LearningRule, error) {
	if strings.TrimSpace(answer) == "" || strings.TrimSpace(c.Subject) == "" {
		return nil, nil
	}
	return s.Learn(ctx, Observation{
		LearningType: model.LearningCorrection,
		Source:       model.SourceUserCorrection,
		Category:     c.Field,
		PatternKey:   c.Subject,
		Value:        answer,
	})
}

// SeedRule is an admin-provided relevance rule.
type SeedRule struct {
	Category               string   `yaml:"category" json:"category"`
	PatternKey             string   `yaml:"pattern_key" json:"patternKey"`
	LearnedValue           string   `yaml:"learned_value" json:"learnedValue"`
	ApplicableProductTypes []string `yaml:"applicable_product_types" json:"applicableProductTypes,omitempty"`
}

// Seed creates a relevance rule directly at SeedConfidence, bypassing the
// upsert contract. An active rule for the same key yields store.ErrConflict.
func (s *Service) Seed(ctx context.Context, in SeedRule) (*model.LearningRule, error) {
	key := strings.TrimSpace(in.PatternKey)
	value := strings.TrimSpace(in.LearnedValue)
	if key == "" || value == "" {
		return nil, ErrInvalidRule
	}
	now := s.now()
	r := &model.LearningRule{
		LearningType:           model.LearningRelevanceRule,
		Source:                 model.SourceAdminSeeded,
		Category:               strings.TrimSpace(in.Category),
		PatternKey:             key,
		LearnedValue:           value,
		ApplicableProductTypes: in.ApplicableProductTypes,
		Confidence:             SeedConfidence,
		ConfirmationCount:      1,
		IsActive:               true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	unlock := s.locks.lock(string(r.LearningType) + "\x00" + key)
	defer unlock()
	existing, err := s.store.FindActiveRule(ctx, r.LearningType, key)
	switch {
	case err == nil:
		return nil, eris.Wrapf(store.ErrConflict, "learning: %q already seeded as rule %s", key, existing.ID)
	case !eris.Is(err, store.ErrNotFound):
		return nil, eris.Wrapf(err, "learning: seed %q", key)
	}
	if err := s.store.CreateRule(ctx, r); err != nil {
		return nil, eris.Wrapf(err, "learning: seed %q", key)
	}
	return r, nil
}

// SeedAll seeds every rule, skipping keys that already have an active rule.
func (s *Service) SeedAll(ctx context.Context, rules []SeedRule) (created, skipped int, err error) {
	for _, in := range rules {
		if _, err := s.Seed(ctx, in); err != nil {
			if eris.Is(err, store.ErrConflict) {
				zap.L().Info("learning: seed rule exists, skipping", zap.String("pattern_key", in.PatternKey))
				skipped++
				continue
			}
			return created, skipped, err
		}
		created++
	}
	return created, skipped, nil
}

// ActiveRules lists the active rules of one learning type.
func (s *Service) ActiveRules(ctx context.Context, t model.LearningType) ([]model.LearningRule, error) {
	rules, err := s.store.ListRules(ctx, store.RuleFilter{LearningType: t, ActiveOnly: true})
	return rules, eris.Wrapf(err, "learning: list %s rules", t)
}

// keyLocks is a set of mutexes keyed by string, released when unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (k *keyLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
