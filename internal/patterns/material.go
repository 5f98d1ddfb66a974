package patterns

import "strings"

// Materials maps material vocabulary to a canonical name. Specific
// materials precede the bare "steel" rule.
var Materials = []Rule[string]{
	{Name: "stainless", Expr: compile(`\bstainless(?:\s+steel)?\b|\bs/?s\s*3(?:04|16)L?\b|\b3(?:04|16)L?\s*(?:s/?s|stainless)\b`), Value: "stainless steel"},
	{Name: "ductile iron", Expr: compile(`\bductile(?:\s+iron)?\b|\bD\.I\.(?=\s|$)|(?-i:\bDI\b)`), Value: "ductile iron"},
	{Name: "cast iron", Expr: compile(`\bcast\s+iron\b`), Value: "cast iron"},
	{Name: "carbon steel", Expr: compile(`\b(?:carbon|mild)\s+steel\b|(?-i:\b[CM]\.?S\.?\s+(?=pipe|bend|tee|reducer|flange))`), Value: "carbon steel"},
	{Name: "hdpe", Expr: compile(`\bHDPE\b|\bPE\s*(?:80|100)\b|\bpolyethylene\s+pipe`), Value: "HDPE"},
	{Name: "pvc", Expr: compile(`\b[uUmM]?PVC(?:-[UOM])?\b`), Value: "PVC"},
	{Name: "grp", Expr: compile(`\bGRP\b|\bFRP\b|\bfib(?:re|er)\s*glass\b`), Value: "GRP"},
	{Name: "copper", Expr: compile(`\bcopper\b`), Value: "copper"},
	{Name: "steel", Expr: compile(`\bsteel\b`), Value: "steel"},
}

// standardMaterials lists standards that imply a material on their own.
var standardMaterials = []Rule[string]{
	{Name: "api 5l", Expr: compile(`\bAPI\s*5L\b`), Value: "carbon steel"},
	{Name: "sans 719", Expr: compile(`\bSA[BN]S\s*719\b`), Value: "carbon steel"},
	{Name: "sans 62", Expr: compile(`\bSA[BN]S\s*62\b`), Value: "carbon steel"},
	{Name: "astm a53/a106", Expr: compile(`\bASTM\s*A\s*(?:53|106|252)\b`), Value: "carbon steel"},
	{Name: "astm a312", Expr: compile(`\bASTM\s*A\s*(?:312|403|778)\b`), Value: "stainless steel"},
	{Name: "iso 2531", Expr: compile(`\b(?:ISO|EN)\s*(?:2531|545)\b`), Value: "ductile iron"},
	{Name: "sans 4427", Expr: compile(`\bSANS\s*4427\b|\bISO\s*4427\b`), Value: "HDPE"},
}

// Material returns the canonical material named in text, falling back to
// a material implied by a governing standard.
func Material(text string) (string, bool) {
	if r, ok := first(Materials, text); ok {
		return r.Value, true
	}
	if r, ok := first(standardMaterials, text); ok {
		return r.Value, true
	}
	return "", false
}

// Grades captures a grade token; Value is the display prefix.
var Grades = []Rule[string]{
	{Name: "grade label", Expr: compile(`\b(?:grade|gr\.|gr(?=\s))\s*:?\s*([A-Z]?\d{0,3}[A-Z]?)\b`), Value: "Grade "},
	{Name: "api x-grade", Expr: compileExact(`\b(X(?:42|46|52|56|60|65|70|80))\b`)},
	{Name: "stainless grade", Expr: compile(`\b(?:AISI|SS|stainless(?:\s+steel)?|type)\s*(3(?:04|16)L?)\b|\b(3(?:04|16)L)\b`)},
	{Name: "structural grade", Expr: compile(`\b(S\d{3}(?:J[R0-2])?)\b`)},
}

// Grade returns a material grade such as "Grade B", "X42" or "316L".
func Grade(text string) (string, bool) {
	for _, r := range Grades {
		gs := groups(r.Expr, text)
		if gs == nil {
			continue
		}
		v := strings.ToUpper(strings.ReplaceAll(firstGroup(gs), " ", ""))
		if v == "" {
			continue
		}
		return r.Value + v, true
	}
	return "", false
}
