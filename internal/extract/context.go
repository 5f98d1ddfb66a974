package extract

import (
	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/patterns"
)

// Context is the inherited material state at one point of a scan. It is a
// value: Observe returns the next snapshot and never mutates the receiver.
type Context struct {
	Material      *string
	MaterialGrade *string
	WallThickness *float64
}

// Seed builds the starting context from consolidated specification data.
// A standard that implies a material seeds the material too.
func Seed(spec model.ParsedSpec) Context {
	c := Context{
		MaterialGrade: spec.MaterialGrade,
		WallThickness: spec.WallThickness,
	}
	if spec.Standard != nil {
		if m, ok := patterns.Material(*spec.Standard); ok {
			c.Material = &m
		}
	}
	return c
}

// Observe folds the material, grade and wall-thickness cues of text into
// the next context.
func (c Context) Observe(text string) Context {
	next := c
	if m, ok := patterns.Material(text); ok {
		next.Material = &m
	}
	if g, ok := patterns.Grade(text); ok {
		next.MaterialGrade = &g
	}
	if wt := patterns.WallThickness(text); wt != nil {
		next.WallThickness = wt
	}
	return next
}
