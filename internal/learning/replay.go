package learning

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/boq-extractor/internal/extract"
	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/patterns"
)

// Replay applies active correction rules to items whose description
// matches the rule key, case-insensitively and trimmed. Items that change
// have their clarification flags recomputed. It returns the number of
// field values applied.
func Replay(items []model.ExtractedItem, rules []model.LearningRule) int {
	byDesc := make(map[string][]model.LearningRule)
	for _, r := range rules {
		if !r.IsActive || r.LearningType != model.LearningCorrection {
			continue
		}
		desc, field, ok := SplitKey(r.PatternKey)
		if !ok || field == "" {
			continue
		}
		k := descKey(desc)
		byDesc[k] = append(byDesc[k], r)
	}
	if len(byDesc) == 0 {
		return 0
	}

	applied := 0
	for i := range items {
		matches := byDesc[descKey(items[i].Description)]
		if len(matches) == 0 {
			continue
		}
		changed := false
		for _, r := range matches {
			_, field, _ := SplitKey(r.PatternKey)
			if applyField(&items[i], field, r.LearnedValue) {
				changed = true
				applied++
			} else {
				zap.L().Debug("learning: correction not applicable",
					zap.String("pattern_key", r.PatternKey),
					zap.String("value", r.LearnedValue),
				)
			}
		}
		if changed {
			extract.Flag(&items[i])
		}
	}
	return applied
}

func descKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// normalizeField accepts snake_case, camelCase and spaced field names.
func normalizeField(f string) string {
	f = strings.ToLower(strings.TrimSpace(f))
	return strings.NewReplacer("_", "", " ", "", "-", "").Replace(f)
}

// applyField sets one field from a learned value. It reports false when the
// field is unknown or the value does not parse for it.
func applyField(it *model.ExtractedItem, field, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	switch normalizeField(field) {
	case "material":
		if m, ok := patterns.Material(value); ok {
			value = m
		}
		it.Material = &value
	case "materialgrade", "grade":
		it.MaterialGrade = &value
	case "itemtype", "type":
		t := model.ParseItemType(value)
		if t == model.ItemUnknown {
			return false
		}
		it.ItemType = t
	case "diameter":
		return setPositive(&it.Diameter, value)
	case "secondarydiameter":
		return setPositive(&it.SecondaryDiameter, value)
	case "length":
		return setPositive(&it.Length, value)
	case "wallthickness":
		return setPositive(&it.WallThickness, value)
	case "angle":
		v, ok := patterns.LeadingNumber(value)
		if !ok || v <= 0 || v > 180 {
			return false
		}
		it.Angle = &v
	case "flangeconfig", "flange":
		fc := model.ParseFlangeConfig(value)
		if fc == nil {
			return false
		}
		it.FlangeConfig = fc
	case "quantity", "qty":
		v, ok := patterns.LeadingNumber(value)
		if !ok || v <= 0 {
			return false
		}
		it.Quantity = v
	case "unit":
		if u, ok := patterns.NormalizeUnit(value); ok {
			it.Unit = u
		} else {
			it.Unit = strings.ToLower(value)
		}
	default:
		return false
	}
	return true
}

func setPositive(dst **float64, value string) bool {
	v, ok := patterns.LeadingNumber(value)
	if !ok || v <= 0 {
		return false
	}
	*dst = &v
	return true
}
