package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/internal/reconciler"
	"insurance-coverage-reconciler/pkg/errors"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleBatch(at time.Time) *reconciler.BatchResult {
	premium := int64(35000)
	return &reconciler.BatchResult{
		ProcessedAt: at,
		Documents: []reconciler.DocumentResult{
			{
				Name: "kb.pdf",
				Info: &models.DocumentInfo{
					Issuer:      models.IssuerKB,
					ProductName: "KB 플러스 운전자보험",
					Premium:     &premium,
					Strategy:    "kb_line",
					Coverages:   []models.RawCoverageItem{{Name: "벌금", Amount: 20_000_000}},
				},
				Report: &models.ReconciliationReport{
					Matched: []models.MatchResult{{
						Target:     models.TargetLabel{Text: "벌금", Row: 20, Column: 2},
						Amount:     20_000_000,
						Provenance: "벌금",
						Confidence: models.RuleConfidence,
					}},
					UnmatchedTargets: []models.TargetLabel{},
					UnmatchedRaw:     []models.RawCoverageItem{},
				},
			},
			{Name: "broken.pdf", Error: "document could not be read: broken.pdf"},
		},
		Summary: reconciler.BatchSummary{
			Documents:      2,
			Succeeded:      1,
			Failed:         1,
			Coverages:      1,
			MatchedTargets: 1,
			Duration:       1500 * time.Millisecond,
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 9, 0, 0, 123456789, time.UTC)

	run := NewRun("cli", "홍길동", sampleBatch(at))
	run.Template = "template.xlsx"
	run.Output = "out.xlsx"

	id, err := store.Record(ctx, run)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, run.ID)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "cli", got.Source)
	assert.Equal(t, "홍길동", got.Customer)
	assert.Equal(t, "template.xlsx", got.Template)
	assert.True(t, at.Equal(got.CreatedAt))
	assert.Equal(t, 2, got.Summary.Documents)
	assert.Equal(t, 1, got.Summary.Succeeded)
	assert.Equal(t, 1500*time.Millisecond, got.Summary.Duration)

	require.Len(t, got.Documents, 2)
	kb := got.Documents[0]
	assert.Equal(t, models.IssuerKB, kb.Issuer)
	require.NotNil(t, kb.Premium)
	assert.Equal(t, int64(35000), *kb.Premium)
	assert.Equal(t, 1, kb.Coverages)
	assert.Equal(t, 1, kb.Matched)
	require.NotNil(t, kb.Report)
	assert.Equal(t, int64(20_000_000), kb.Report.Matched[0].Amount)

	broken := got.Documents[1]
	assert.Nil(t, broken.Premium)
	assert.Nil(t, broken.Report)
	assert.Equal(t, "document could not be read: broken.pdf", broken.Error)
}

func TestGetUnknownRun(t *testing.T) {
	store := openStore(t)

	_, err := store.Get(context.Background(), "missing")
	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidData, rerr.Code)
}

func TestListAndPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.Record(ctx, NewRun("http", "", sampleBatch(base.Add(time.Duration(i)*time.Hour))))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)
	assert.Empty(t, runs[0].Documents)

	runs, err = store.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	removed, err := store.Prune(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	runs, err = store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ids[2], runs[0].ID)

	// documents of pruned runs go with them
	_, err = store.Get(ctx, ids[0])
	assert.Error(t, err)
}

func TestRecordDuplicateID(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run := NewRun("cli", "", sampleBatch(time.Now()))
	_, err := store.Record(ctx, run)
	require.NoError(t, err)

	again := NewRun("cli", "", sampleBatch(time.Now()))
	again.ID = run.ID
	_, err = store.Record(ctx, again)
	assert.Error(t, err)
}

func TestInMemoryStore(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	id, err := store.Record(context.Background(), &Run{Source: "test"})
	require.NoError(t, err)

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Empty(t, got.Documents)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{Enabled: true}).Validate())
	assert.NoError(t, (&Config{Enabled: false}).Validate())
}
