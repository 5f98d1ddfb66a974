package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want ItemType
	}{
		{"pipe", ItemPipe},
		{"Elbow", ItemBend},
		{"S-Bend", ItemBend},
		{"reducing tee", ItemTee},
		{"Eccentric Reducer", ItemReducer},
		{"blind flange", ItemFlange},
		{"Expansion Joint", ItemExpansionJoint},
		{"bellows", ItemExpansionJoint},
		{"valve", ItemUnknown},
		{"", ItemUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseItemType(tt.in))
		})
	}
}

func TestParseFlangeConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want FlangeConfig
	}{
		{"both ends", FlangeBothEnds},
		{"Both-Ends", FlangeBothEnds},
		{"one end", FlangeOneEnd},
		{"puddle", FlangePuddle},
		{"blind", FlangeBlind},
		{"none", FlangeNone},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := ParseFlangeConfig(tt.in)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}

	assert.Nil(t, ParseFlangeConfig(""))
	assert.Nil(t, ParseFlangeConfig("victaulic"))
}

func TestParsedSpecMissing(t *testing.T) {
	var p ParsedSpec
	assert.True(t, p.Empty())
	assert.Equal(t, []string{"material grade", "wall thickness", "lining", "external coating", "standard"}, p.Missing())

	p.WallThickness = Ptr(8.0)
	p.Schedule = Ptr("40")
	assert.False(t, p.Empty())
	assert.Equal(t, []string{"material grade", "lining", "external coating", "standard"}, p.Missing())
	assert.Equal(t, map[string]any{"wallThickness": 8.0, "schedule": "40"}, p.Resolved())
}

func TestExtractedItemHas(t *testing.T) {
	it := ExtractedItem{Material: Ptr("  "), Diameter: Ptr(0.0)}
	assert.False(t, it.HasMaterial())
	assert.False(t, it.HasDiameter())

	it.Material = Ptr("carbon steel")
	it.Diameter = Ptr(200.0)
	assert.True(t, it.HasMaterial())
	assert.True(t, it.HasDiameter())
}
