package patterns

import "github.com/sells-group/boq-extractor/internal/model"

// ItemTypes is ordered by precedence. Elbow and S-bend precede the generic
// bend/degree rule, the reducer rule refuses "reducing tee", and the blind
// and puddle flange rules precede the generic flange rule. A puddle flange
// followed by pipe vocabulary is a pipe with a puddle flange.
var ItemTypes = []Rule[model.ItemType]{
	{
		Name:  "expansion joint",
		Expr:  compile(`\bexpansion\s*joints?\b|\bbellows\b|\bcompensators?\b`),
		Value: model.ItemExpansionJoint,
	},
	{
		Name:  "elbow",
		Expr:  compile(`\belbows?\b`),
		Value: model.ItemBend,
	},
	{
		Name:  "s-bend",
		Expr:  compile(`\bs[\s-]?bends?\b`),
		Value: model.ItemBend,
	},
	{
		Name:  "bend or degree",
		Expr:  compile(`\bbends?\b|\b\d{1,3}(?:\.\d+)?\s*(?:°|deg(?:ree)?s?\b)`),
		Value: model.ItemBend,
	},
	{
		Name:  "reducer",
		Expr:  compile(`\breduc(?:er|ers|ing)\b(?!\s+tees?\b)|\btapers?\b|\b(?:concentric|eccentric)\b`),
		Value: model.ItemReducer,
	},
	{
		Name:  "tee",
		Expr:  compile(`\btees?\b`),
		Value: model.ItemTee,
	},
	{
		Name:  "blind flange",
		Expr:  compile(`\b(?:blind|blank)\s+flanges?\b|\bblanking\s+plates?\b`),
		Value: model.ItemFlange,
	},
	{
		Name:  "puddle flange",
		Expr:  compile(`\bpuddle\s+flanges?\b(?!\s+(?:pipes?|piping|pipework|spools?)\b)`),
		Value: model.ItemFlange,
	},
	{
		Name:  "flange",
		Expr:  compile(`(?<!puddle\s*)\bflanges?\b(?!\s+(?:at\s+)?(?:both|one|each)\s+ends?\b)`),
		Value: model.ItemFlange,
	},
	{
		Name:  "pipe",
		Expr:  compile(`\b(?:pipes?|piping|pipework|pipeline|spools?|straights?)\b`),
		Value: model.ItemPipe,
	},
}

// ItemType classifies text. The boolean is false when no rule matched,
// in which case the type is unknown.
func ItemType(text string) (model.ItemType, bool) {
	r, ok := first(ItemTypes, text)
	if !ok {
		return model.ItemUnknown, false
	}
	return r.Value, true
}

// HasTypeKeyword reports whether text names any known component.
func HasTypeKeyword(text string) bool {
	_, ok := ItemType(text)
	return ok
}
