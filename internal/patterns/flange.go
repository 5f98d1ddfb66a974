package patterns

import "github.com/sells-group/boq-extractor/internal/model"

// FlangeConfigs is ordered: fitting-specific flanges first, then end
// configurations. FBE is a coating term here and never a flange cue.
var FlangeConfigs = []Rule[model.FlangeConfig]{
	{Name: "blind", Expr: compile(`\b(?:blind|blank)\s*flanges?\b|\bblanking\s+plates?\b`), Value: model.FlangeBlind},
	{Name: "puddle", Expr: compile(`\bpuddle\s*(?:flanges?|pipes?)?\b`), Value: model.FlangePuddle},
	{Name: "both ends", Expr: compile(`\bflanged?\s+(?:at\s+|to\s+)?(?:both|each)\s+ends?\b|\bdouble\s+flanged\b|\bflgd?\s*(?:x|/)\s*flgd?\b|\bF/F\b|\bflanges?\s+b/e\b`), Value: model.FlangeBothEnds},
	{Name: "one end", Expr: compile(`\bflanged?\s+(?:at\s+|to\s+)?one\s+end\b|\bsingle\s+flanged\b|\bflanged?\s*(?:x|/)\s*plain\b|\bF/P\b|\bflgd?\s*(?:x|/)\s*(?:pe|plain)\b`), Value: model.FlangeOneEnd},
	{Name: "none", Expr: compile(`\bplain\s+ends?\b|\bP/E\b|\bunflanged\b|\bbutt[\s-]?weld(?:ed|ing)?\b|\bspigot\s*(?:x|/|and)\s*socket\b`), Value: model.FlangeNone},
}

// FlangeConfig returns the flange configuration named in text, or nil.
func FlangeConfig(text string) *model.FlangeConfig {
	r, ok := first(FlangeConfigs, text)
	if !ok {
		return nil
	}
	v := r.Value
	return &v
}
