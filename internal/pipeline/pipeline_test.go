package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/boq-extractor/internal/ai"
	"github.com/sells-group/boq-extractor/internal/ai/mocks"
	"github.com/sells-group/boq-extractor/internal/config"
	"github.com/sells-group/boq-extractor/internal/document"
	"github.com/sells-group/boq-extractor/internal/learning"
	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/store"
)

const boqCSV = "Item,Description,Unit,Qty\n" +
	"1,Stainless steel 316L pipe 150NB,m,24\n" +
	"2,Elbow 90° 150NB,No,6\n" +
	"3,Blind flange,No,2\n"

const aiResponse = `{"items":[{"itemLabel":"1","description":"200NB pipe","itemType":"pipe","material":"HDPE","diameter":200,"quantity":3,"unit":"m","confidence":0.9}]}`

func testConfig() *config.Config {
	return &config.Config{
		Extraction: config.ExtractionConfig{
			DescriptionMaxLen:       500,
			SpecRawTextMaxLen:       200,
			MaxItemClarifications:   10,
			ApplyLearnedCorrections: true,
		},
		AI: config.AIConfig{Enabled: true, Provider: "auto", TimeoutSecs: 5, MaxChars: 100000},
	}
}

func newTestPipeline(t *testing.T, aiSvc *ai.Service) (*Pipeline, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(testConfig(), st, document.NewParser(), aiSvc), st
}

func aiWith(t *testing.T, response string, err error) *ai.Service {
	p := mocks.NewMockProvider(t)
	p.On("Name").Return(ai.ProviderAnthropic).Maybe()
	p.On("Available").Return(true).Maybe()
	p.On("Complete", mock.Anything, mock.Anything).Return(response, err).Once()
	return ai.NewService(ai.Options{}, p)
}

func findItem(t *testing.T, items []model.ExtractedItem, desc string) model.ExtractedItem {
	t.Helper()
	for _, it := range items {
		if it.Description == desc {
			return it
		}
	}
	t.Fatalf("item %q not found", desc)
	return model.ExtractedItem{}
}

func TestProcess_Deterministic(t *testing.T) {
	p, st := newTestPipeline(t, nil)
	ctx := context.Background()

	res, err := p.Process(ctx, Request{Filename: "boq.csv", Data: []byte(boqCSV)})
	require.NoError(t, err)
	assert.Equal(t, model.StatusNeedsClarification, res.Status)
	assert.Nil(t, res.Error)
	require.Len(t, res.Items, 3)
	require.NotEmpty(t, res.PendingClarifications)

	flange := findItem(t, res.Items, "Blind flange")
	assert.True(t, flange.NeedsClarification)
	for _, it := range res.Items {
		assert.GreaterOrEqual(t, it.Confidence, 0.1)
		assert.LessOrEqual(t, it.Confidence, 1.0)
		assert.Equal(t, 0.5, it.RelevanceScore)
	}

	ext, err := st.GetExtraction(ctx, res.ExtractionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNeedsClarification, ext.Status)
	assert.Equal(t, model.DocExcel, ext.DocumentType)
	assert.Len(t, ext.Items, 3)
	assert.InDelta(t, model.MeanConfidence(res.Items), ext.RelevanceScore, 1e-9)

	pending, err := st.CountPending(ctx, res.ExtractionID)
	require.NoError(t, err)
	assert.Equal(t, len(res.PendingClarifications), pending)
}

func TestProcess_NoLineItems(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	res, err := p.Process(context.Background(), Request{Filename: "notes.csv", Data: []byte("Notes\nSupply only\nDelivery to site\n")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Empty(t, res.Items)
	assert.Empty(t, res.PendingClarifications)
}

func TestProcess_UnsupportedType(t *testing.T) {
	p, st := newTestPipeline(t, nil)

	for _, name := range []string{"drawing.dwg", "part.sldprt", "photo.png", "notes.txt"} {
		res, err := p.Process(context.Background(), Request{Filename: name, Data: []byte(boqCSV)})
		require.NoError(t, err, name)
		assert.Equal(t, model.StatusFailed, res.Status, name)
		require.NotNil(t, res.Error, name)
		assert.Contains(t, *res.Error, "Unsupported document type", name)
		assert.Empty(t, res.Items, name)

		ext, err := st.GetExtraction(context.Background(), res.ExtractionID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, ext.Status)
	}
}

// statusRecorder logs the status each extraction write carries.
type statusRecorder struct {
	store.Store
	writes []model.ExtractionStatus
}

func (r *statusRecorder) CreateExtraction(ctx context.Context, e *model.Extraction) error {
	r.writes = append(r.writes, e.Status)
	return r.Store.CreateExtraction(ctx, e)
}

func (r *statusRecorder) UpdateExtraction(ctx context.Context, e *model.Extraction) error {
	r.writes = append(r.writes, e.Status)
	return r.Store.UpdateExtraction(ctx, e)
}

func TestProcess_CreatesExtractionProcessing(t *testing.T) {
	_, st := newTestPipeline(t, nil)
	rec := &statusRecorder{Store: st}
	p := New(testConfig(), rec, document.NewParser(), nil)

	res, err := p.Process(context.Background(), Request{Filename: "boq.csv", Data: []byte(boqCSV)})
	require.NoError(t, err)
	assert.Equal(t, []model.ExtractionStatus{model.StatusProcessing, res.Status}, rec.writes)

	rec.writes = nil
	res, err = p.Process(context.Background(), Request{Filename: "drawing.dwg", Data: []byte(boqCSV)})
	require.NoError(t, err)
	assert.Equal(t, []model.ExtractionStatus{model.StatusProcessing, model.StatusFailed}, rec.writes)
	assert.Equal(t, model.StatusFailed, res.Status)
}

func TestProcess_ParseFailure(t *testing.T) {
	p, st := newTestPipeline(t, nil)

	res, err := p.Process(context.Background(), Request{Filename: "boq.xlsx", Data: []byte("not a zip archive")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, res.Status)
	require.NotNil(t, res.Error)

	ext, err := st.GetExtraction(context.Background(), res.ExtractionID)
	require.NoError(t, err)
	require.NotNil(t, ext.ErrorMessage)
	assert.Equal(t, *res.Error, *ext.ErrorMessage)
}

func TestProcess_AIResult(t *testing.T) {
	p, _ := newTestPipeline(t, aiWith(t, aiResponse, nil))

	res, err := p.Process(context.Background(), Request{Filename: "boq.csv", Data: []byte(boqCSV)})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Status)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "200NB pipe", res.Items[0].Description)

	ext, err := p.GetExtraction(context.Background(), res.ExtractionID)
	require.NoError(t, err)
	assert.Equal(t, ai.ProviderAnthropic, ext.Provider)
}

func TestProcess_AIFailureFallsBack(t *testing.T) {
	p, _ := newTestPipeline(t, aiWith(t, "", errors.New("connection reset by peer")))

	res, err := p.Process(context.Background(), Request{Filename: "boq.csv", Data: []byte(boqCSV), Provider: "anthropic"})
	require.NoError(t, err)
	assert.NotEqual(t, model.StatusFailed, res.Status)
	assert.Len(t, res.Items, 3)

	ext, err := p.GetExtraction(context.Background(), res.ExtractionID)
	require.NoError(t, err)
	assert.Empty(t, ext.Provider)
}

func TestProcess_AIUnparsableFallsBack(t *testing.T) {
	p, _ := newTestPipeline(t, aiWith(t, "Sorry, I cannot help with that.", nil))

	res, err := p.Process(context.Background(), Request{Filename: "boq.csv", Data: []byte(boqCSV)})
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
}

func TestProcess_AIDisabledSkipsProvider(t *testing.T) {
	prov := mocks.NewMockProvider(t)
	prov.On("Name").Return(ai.ProviderOpenAI).Maybe()
	prov.On("Available").Return(true).Maybe()

	p, _ := newTestPipeline(t, ai.NewService(ai.Options{}, prov))
	p.cfg.AI.Enabled = false

	res, err := p.Process(context.Background(), Request{Filename: "boq.csv", Data: []byte(boqCSV)})
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	prov.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestProcess_ReplaysLearnedCorrections(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	_, err := p.RecordCorrection(ctx, CorrectionRequest{
		ItemDescription: "blind flange",
		FieldName:       "diameter",
		CorrectedValue:  "150",
	})
	require.NoError(t, err)

	res, err := p.Process(ctx, Request{Filename: "boq.csv", Data: []byte(boqCSV)})
	require.NoError(t, err)
	flange := findItem(t, res.Items, "Blind flange")
	require.NotNil(t, flange.Diameter)
	assert.Equal(t, 150.0, *flange.Diameter)
	assert.False(t, flange.NeedsClarification)

	p.cfg.Extraction.ApplyLearnedCorrections = false
	res, err = p.Process(ctx, Request{Filename: "boq.csv", Data: []byte(boqCSV)})
	require.NoError(t, err)
	assert.Nil(t, findItem(t, res.Items, "Blind flange").Diameter)
}

func TestProcess_RelevanceRules(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	_, err := p.RecordCorrection(ctx, CorrectionRequest{ItemDescription: "x", FieldName: "material", CorrectedValue: "y"})
	require.NoError(t, err)
	rule, err := p.SeedRule(ctx, learning.SeedRule{Category: "material", PatternKey: "stainless", LearnedValue: "relevant"})
	require.NoError(t, err)
	assert.Equal(t, 0.9, rule.Confidence)

	res, err := p.Process(ctx, Request{Filename: "boq.csv", Data: []byte(boqCSV)})
	require.NoError(t, err)
	pipe := findItem(t, res.Items, "Stainless steel 316L pipe 150NB")
	assert.InDelta(t, 0.59, pipe.RelevanceScore, 1e-9)
	assert.Equal(t, 0.5, findItem(t, res.Items, "Blind flange").RelevanceScore)
}
