package model

import "strings"

// ItemType classifies a physical piping component.
type ItemType string

const (
	ItemPipe           ItemType = "pipe"
	ItemBend           ItemType = "bend"
	ItemReducer        ItemType = "reducer"
	ItemTee            ItemType = "tee"
	ItemFlange         ItemType = "flange"
	ItemExpansionJoint ItemType = "expansion_joint"
	ItemUnknown        ItemType = "unknown"
)

// ParseItemType maps free-form vocabulary onto an ItemType.
// Unrecognised values map to ItemUnknown.
func ParseItemType(s string) ItemType {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)
	switch v {
	case "pipe", "pipes", "spool", "pipe_spool", "straight":
		return ItemPipe
	case "bend", "bends", "elbow", "elbows", "s_bend":
		return ItemBend
	case "reducer", "reducers", "taper", "concentric_reducer", "eccentric_reducer":
		return ItemReducer
	case "tee", "tees", "reducing_tee", "equal_tee", "branch":
		return ItemTee
	case "flange", "flanges", "blind_flange", "blank_flange", "puddle_flange":
		return ItemFlange
	case "expansion_joint", "expansion_joints", "bellows", "expansion":
		return ItemExpansionJoint
	}
	return ItemUnknown
}

// FlangeConfig describes how a component is flanged.
type FlangeConfig string

const (
	FlangeNone     FlangeConfig = "none"
	FlangeOneEnd   FlangeConfig = "one_end"
	FlangeBothEnds FlangeConfig = "both_ends"
	FlangePuddle   FlangeConfig = "puddle"
	FlangeBlind    FlangeConfig = "blind"
)

// ParseFlangeConfig normalises flange vocabulary. It returns nil for
// empty or unrecognised input.
func ParseFlangeConfig(s string) *FlangeConfig {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)
	var fc FlangeConfig
	switch v {
	case "none", "plain", "plain_ends", "pe", "no_flange", "unflanged":
		fc = FlangeNone
	case "one_end", "single", "flanged_one_end", "foe", "one":
		fc = FlangeOneEnd
	case "both_ends", "both", "double", "flanged_both_ends", "fbe_flanged", "ff":
		fc = FlangeBothEnds
	case "puddle", "puddle_flange":
		fc = FlangePuddle
	case "blind", "blind_flange", "blank":
		fc = FlangeBlind
	default:
		return nil
	}
	return &fc
}

// ExtractedItem is one candidate physical component found in a document.
type ExtractedItem struct {
	RowIndex            int           `json:"rowIndex"`
	ItemLabel           string        `json:"itemLabel"`
	Description         string        `json:"description"`
	ItemType            ItemType      `json:"itemType"`
	Material            *string       `json:"material"`
	MaterialGrade       *string       `json:"materialGrade"`
	Diameter            *float64      `json:"diameter"`
	SecondaryDiameter   *float64      `json:"secondaryDiameter"`
	Length              *float64      `json:"length"`
	WallThickness       *float64      `json:"wallThickness"`
	Angle               *float64      `json:"angle"`
	FlangeConfig        *FlangeConfig `json:"flangeConfig"`
	Quantity            float64       `json:"quantity"`
	Unit                string        `json:"unit"`
	Confidence          float64       `json:"confidence"`
	RelevanceScore      float64       `json:"relevanceScore"`
	NeedsClarification  bool          `json:"needsClarification"`
	ClarificationReason *string       `json:"clarificationReason"`
}

// HasMaterial reports whether a non-empty material is resolved.
func (i ExtractedItem) HasMaterial() bool {
	return i.Material != nil && strings.TrimSpace(*i.Material) != ""
}

// HasDiameter reports whether a positive diameter is resolved.
func (i ExtractedItem) HasDiameter() bool {
	return i.Diameter != nil && *i.Diameter > 0
}

// ParsedSpec holds the fields recovered from a specification block.
type ParsedSpec struct {
	MaterialGrade   *string  `json:"materialGrade"`
	WallThickness   *float64 `json:"wallThickness"`
	Lining          *string  `json:"lining"`
	ExternalCoating *string  `json:"externalCoating"`
	Standard        *string  `json:"standard"`
	Schedule        *string  `json:"schedule"`
}

// Empty reports whether no field is set.
func (p ParsedSpec) Empty() bool {
	return p.MaterialGrade == nil && p.WallThickness == nil && p.Lining == nil &&
		p.ExternalCoating == nil && p.Standard == nil && p.Schedule == nil
}

// Missing lists the clarifiable fields that remain null, in question order.
// Schedule is informational and never listed.
func (p ParsedSpec) Missing() []string {
	var out []string
	if p.MaterialGrade == nil {
		out = append(out, "material grade")
	}
	if p.WallThickness == nil {
		out = append(out, "wall thickness")
	}
	if p.Lining == nil {
		out = append(out, "lining")
	}
	if p.ExternalCoating == nil {
		out = append(out, "external coating")
	}
	if p.Standard == nil {
		out = append(out, "standard")
	}
	return out
}

// Resolved returns the non-null fields keyed by their JSON names.
func (p ParsedSpec) Resolved() map[string]any {
	out := map[string]any{}
	if p.MaterialGrade != nil {
		out["materialGrade"] = *p.MaterialGrade
	}
	if p.WallThickness != nil {
		out["wallThickness"] = *p.WallThickness
	}
	if p.Lining != nil {
		out["lining"] = *p.Lining
	}
	if p.ExternalCoating != nil {
		out["externalCoating"] = *p.ExternalCoating
	}
	if p.Standard != nil {
		out["standard"] = *p.Standard
	}
	if p.Schedule != nil {
		out["schedule"] = *p.Schedule
	}
	return out
}

// SpecificationCell is a detected document-level specification block.
type SpecificationCell struct {
	LocationRef string     `json:"locationRef"`
	RawText     string     `json:"rawText"`
	ParsedData  ParsedSpec `json:"parsedData"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
