package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/boq-extractor/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedExtraction(t *testing.T, st Store) *model.Extraction {
	t.Helper()
	e := &model.Extraction{
		Filename:     "tender.pdf",
		DocumentType: model.DocPDF,
		ProductTypes: []string{"pipe"},
	}
	require.NoError(t, st.CreateExtraction(context.Background(), e))
	return e
}

// --- Extractions ---

func TestSQLite_Extraction_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	e := seedExtraction(t, st)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, model.StatusPending, e.Status)

	got, err := st.GetExtraction(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "tender.pdf", got.Filename)
	assert.Equal(t, model.DocPDF, got.DocumentType)
	assert.Equal(t, []string{"pipe"}, got.ProductTypes)
	assert.Empty(t, got.Items)
	assert.NotNil(t, got.Items)
	assert.Nil(t, got.ErrorMessage)
}

func TestSQLite_Extraction_Update(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	e := seedExtraction(t, st)
	require.NoError(t, e.Transition(model.StatusProcessing))
	e.Items = []model.ExtractedItem{{
		RowIndex:    1,
		ItemLabel:   "1.1",
		Description: "200NB carbon steel pipe",
		ItemType:    model.ItemPipe,
		Material:    model.Ptr("carbon steel"),
		Diameter:    model.Ptr(200.0),
		Quantity:    12,
		Unit:        "m",
		Confidence:  0.9,
	}}
	e.SpecificationCells = []model.SpecificationCell{{
		LocationRef: "L1",
		RawText:     "Material: API 5L Grade B",
		ParsedData:  model.ParsedSpec{Standard: model.Ptr("API 5L")},
	}}
	e.RelevanceScore = 0.9
	e.Provider = "deterministic"
	require.NoError(t, e.Transition(model.StatusCompleted))
	require.NoError(t, st.UpdateExtraction(ctx, e))

	got, err := st.GetExtraction(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, "deterministic", got.Provider)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 200.0, *got.Items[0].Diameter)
	assert.Equal(t, "carbon steel", *got.Items[0].Material)
	require.Len(t, got.SpecificationCells, 1)
	assert.Equal(t, "API 5L", *got.SpecificationCells[0].ParsedData.Standard)
	assert.InDelta(t, 0.9, got.RelevanceScore, 1e-9)
}

func TestSQLite_Extraction_FailedMessage(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	e := seedExtraction(t, st)
	require.NoError(t, e.Fail("Unsupported document type: cad"))
	require.NoError(t, st.UpdateExtraction(ctx, e))

	got, err := st.GetExtraction(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "Unsupported document type: cad", *got.ErrorMessage)
}

func TestSQLite_Extraction_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetExtraction(context.Background(), "missing")
	assert.True(t, eris.Is(err, ErrNotFound))

	err = st.UpdateExtraction(context.Background(), &model.Extraction{ID: "missing"})
	assert.True(t, eris.Is(err, ErrNotFound))
}

// --- Clarifications ---

func pendingClarifications(extractionID string, n int) []model.Clarification {
	out := make([]model.Clarification, n)
	for i := range out {
		idx := i
		out[i] = model.Clarification{
			ExtractionID: extractionID,
			Type:         model.ClarifyMissingInfo,
			Question:     "What material is item?",
			Context:      map[string]any{"description": "200NB pipe"},
			ItemIndex:    &idx,
			Subject:      "200NB pipe",
			Field:        "material",
		}
	}
	return out
}

func TestSQLite_Clarifications_CreateListCount(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	e := seedExtraction(t, st)

	cs := pendingClarifications(e.ID, 3)
	require.NoError(t, st.CreateClarifications(ctx, cs))
	for _, c := range cs {
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, model.ClarificationPending, c.Status)
	}

	n, err := st.CountPending(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := st.ListClarifications(ctx, ClarificationFilter{ExtractionID: e.ID})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "200NB pipe", list[0].Context["description"])
	require.NotNil(t, list[2].ItemIndex)
	assert.Equal(t, 2, *list[2].ItemIndex)
	assert.Nil(t, list[0].ResponseType)
}

func TestSQLite_Clarifications_EmptyBatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.CreateClarifications(context.Background(), nil))
}

func TestSQLite_ResolveClarification(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	e := seedExtraction(t, st)

	cs := pendingClarifications(e.ID, 2)
	require.NoError(t, st.CreateClarifications(ctx, cs))

	c, err := st.GetClarification(ctx, cs[0].ID)
	require.NoError(t, err)
	require.NoError(t, c.Resolve(model.ClarificationAnswered, time.Now().UTC()))
	rt := model.ResponseText
	c.ResponseType = &rt
	c.ResponseText = model.Ptr("ductile iron")
	require.NoError(t, st.ResolveClarification(ctx, c))

	got, err := st.GetClarification(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClarificationAnswered, got.Status)
	require.NotNil(t, got.ResponseType)
	assert.Equal(t, model.ResponseText, *got.ResponseType)
	assert.Equal(t, "ductile iron", *got.ResponseText)
	assert.NotNil(t, got.ResolvedAt)

	n, err := st.CountPending(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A second resolve of the same row loses.
	err = st.ResolveClarification(ctx, c)
	assert.True(t, eris.Is(err, ErrConflict))

	err = st.ResolveClarification(ctx, &model.Clarification{ID: "missing", Status: model.ClarificationSkipped})
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ListClarifications_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	e := seedExtraction(t, st)

	old := pendingClarifications(e.ID, 1)
	old[0].CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	fresh := pendingClarifications(e.ID, 1)
	require.NoError(t, st.CreateClarifications(ctx, append(old, fresh...)))

	stale, err := st.ListClarifications(ctx, ClarificationFilter{
		Status:        model.ClarificationPending,
		CreatedBefore: time.Now().UTC().Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, stale, 1)

	answered, err := st.ListClarifications(ctx, ClarificationFilter{ExtractionID: e.ID, Status: model.ClarificationAnswered})
	require.NoError(t, err)
	assert.Empty(t, answered)

	_, err = st.GetClarification(ctx, "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
}

// --- Learning rules ---

func newRule(key, value string) *model.LearningRule {
	return &model.LearningRule{
		LearningType:      model.LearningCorrection,
		Source:            model.SourceUserCorrection,
		PatternKey:        key,
		LearnedValue:      value,
		Confidence:        0.6,
		ConfirmationCount: 1,
		IsActive:          true,
	}
}

func TestSQLite_UpsertRule_InsertThenUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	key := "200NB pipe::material"

	var seen []*model.LearningRule
	fn := func(value string) RuleUpdate {
		return func(existing *model.LearningRule) (*model.LearningRule, error) {
			seen = append(seen, existing)
			if existing == nil {
				return newRule(key, value), nil
			}
			next := *existing
			next.ConfirmationCount++
			next.Confidence += 0.05
			return &next, nil
		}
	}

	first, err := st.UpsertRule(ctx, model.LearningCorrection, key, fn("carbon steel"))
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	second, err := st.UpsertRule(ctx, model.LearningCorrection, key, fn("carbon steel"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	require.Len(t, seen, 2)
	assert.Nil(t, seen[0])
	require.NotNil(t, seen[1])
	assert.Equal(t, 1, seen[1].ConfirmationCount)

	got, err := st.FindActiveRule(ctx, model.LearningCorrection, key)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ConfirmationCount)
	assert.InDelta(t, 0.65, got.Confidence, 1e-9)

	rules, err := st.ListRules(ctx, RuleFilter{LearningType: model.LearningCorrection, ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestSQLite_UpsertRule_CallbackError(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertRule(ctx, model.LearningCorrection, "k", func(*model.LearningRule) (*model.LearningRule, error) {
		return nil, eris.New("rejected")
	})
	require.Error(t, err)

	_, err = st.FindActiveRule(ctx, model.LearningCorrection, "k")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_CreateRule_ActiveKeyConflict(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r := newRule("stainless", "relevant")
	r.LearningType = model.LearningRelevanceRule
	r.Source = model.SourceAdminSeeded
	r.Category = "material"
	r.ApplicableProductTypes = []string{"pipe", "bend"}
	require.NoError(t, st.CreateRule(ctx, r))

	dup := newRule("stainless", "relevant")
	dup.LearningType = model.LearningRelevanceRule
	err := st.CreateRule(ctx, dup)
	assert.True(t, eris.Is(err, ErrConflict))

	// Same key under another learning type is independent.
	require.NoError(t, st.CreateRule(ctx, newRule("stainless", "316L")))

	got, err := st.FindActiveRule(ctx, model.LearningRelevanceRule, "stainless")
	require.NoError(t, err)
	assert.Equal(t, []string{"pipe", "bend"}, got.ApplicableProductTypes)
	assert.Equal(t, "material", got.Category)
	assert.Nil(t, got.OriginalValue)

	all, err := st.ListRules(ctx, RuleFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), Config{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "o.db")})
	require.NoError(t, err)
	assert.NoError(t, st.Close())
}
