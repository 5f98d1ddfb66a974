package learning

import (
	"math"
	"strings"

	"github.com/sells-group/boq-extractor/internal/model"
)

const (
	relevanceBase = 0.5
	relevanceStep = 0.1
)

// Relevance scores a description against relevance rules: 0.5 plus
// 0.1 x rule confidence for every rule whose key occurs in the description,
// case-insensitively, capped at 1.
func Relevance(description string, rules []model.LearningRule) float64 {
	desc := strings.ToLower(description)
	score := relevanceBase
	for _, r := range rules {
		if !r.IsActive || r.LearningType != model.LearningRelevanceRule {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(r.PatternKey))
		if key == "" || !strings.Contains(desc, key) {
			continue
		}
		score += relevanceStep * r.Confidence
	}
	return math.Min(1, roundConfidence(score))
}

// ScoreRelevance sets RelevanceScore on every item in place.
func ScoreRelevance(items []model.ExtractedItem, rules []model.LearningRule) {
	for i := range items {
		items[i].RelevanceScore = Relevance(items[i].Description, rules)
	}
}
