//go:build integration

package index

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docfunnel/internal/document"
)

// setupTestIndex connects to a local Qdrant and ensures the collection
// exists. Skips the test if Qdrant is not running.
func setupTestIndex(t *testing.T) *QdrantIndex {
	t.Helper()
	idx, err := NewQdrantIndex("localhost", 6334, DefaultVectorDimension)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	err = idx.EnsureCollection(context.Background())
	require.NoError(t, err, "Failed to ensure collection")

	return idx
}

func fillVector(v float32) []float32 {
	vec := make([]float32, DefaultVectorDimension)
	for i := range vec {
		vec[i] = v
	}
	return vec
}

func testRecord(documentID string, chunkIndex int, vec []float32) Record {
	return Record{
		ChunkID:    uuid.New().String(),
		DocumentID: documentID,
		ChunkIndex: chunkIndex,
		Section:    "Chapter 1: Introduction",
		StartPage:  1,
		EndPage:    3,
		Type:       document.ChunkTypeText,
		Tokens:     42,
		Text:       fmt.Sprintf("chunk %d content", chunkIndex),
		Vector:     vec,
	}
}

func TestQdrantRoundTrip(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	ctx := context.Background()
	documentID := "roundtrip-" + uuid.New().String()

	rec := testRecord(documentID, 0, fillVector(0.1))
	require.NoError(t, idx.Upsert(ctx, documentID, []Record{rec}))

	results, err := idx.Search(ctx, documentID, fillVector(0.1), 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0].Record
	assert.Equal(t, rec.ChunkID, got.ChunkID)
	assert.Equal(t, documentID, got.DocumentID)
	assert.Equal(t, rec.ChunkIndex, got.ChunkIndex)
	assert.Equal(t, rec.Section, got.Section)
	assert.Equal(t, rec.StartPage, got.StartPage)
	assert.Equal(t, rec.EndPage, got.EndPage)
	assert.Equal(t, rec.Type, got.Type)
	assert.Equal(t, rec.Tokens, got.Tokens)
	assert.Equal(t, rec.Text, got.Text)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestQdrantNamespaceIsolation(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	ctx := context.Background()
	docA := "iso-a-" + uuid.New().String()
	docB := "iso-b-" + uuid.New().String()

	require.NoError(t, idx.Upsert(ctx, docA, []Record{testRecord(docA, 0, fillVector(0.2))}))
	require.NoError(t, idx.Upsert(ctx, docB, []Record{testRecord(docB, 0, fillVector(0.2))}))

	results, err := idx.Search(ctx, docA, fillVector(0.2), 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, docA, results[0].Record.DocumentID)
}

func TestQdrantDeleteNamespace(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	ctx := context.Background()
	documentID := "delete-" + uuid.New().String()

	require.NoError(t, idx.Upsert(ctx, documentID, []Record{
		testRecord(documentID, 0, fillVector(0.3)),
		testRecord(documentID, 1, fillVector(0.3)),
	}))
	require.NoError(t, idx.Delete(ctx, documentID))

	// Qdrant applies deletes with eventual consistency.
	time.Sleep(100 * time.Millisecond)

	results, err := idx.Search(ctx, documentID, fillVector(0.3), 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "deleted namespace must return no results")

	// Deleting an already-empty namespace is a no-op.
	require.NoError(t, idx.Delete(ctx, documentID))
}

func TestQdrantUpsertOverwrites(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	ctx := context.Background()
	documentID := "overwrite-" + uuid.New().String()

	rec := testRecord(documentID, 0, fillVector(0.4))
	require.NoError(t, idx.Upsert(ctx, documentID, []Record{rec}))

	rec.Text = "updated content"
	rec.Vector = fillVector(0.5)
	require.NoError(t, idx.Upsert(ctx, documentID, []Record{rec}))

	results, err := idx.Search(ctx, documentID, fillVector(0.5), 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1, "same chunk ID must overwrite, not duplicate")
	assert.Equal(t, "updated content", results[0].Record.Text)
}

func TestQdrantBatchUpsert(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	ctx := context.Background()
	documentID := "batch-" + uuid.New().String()

	// More than one batch of 100.
	records := make([]Record, 250)
	for i := range records {
		records[i] = testRecord(documentID, i, fillVector(0.6))
	}
	require.NoError(t, idx.Upsert(ctx, documentID, records))

	results, err := idx.Search(ctx, documentID, fillVector(0.6), 300, nil)
	require.NoError(t, err)
	assert.Len(t, results, 250)
}

func TestQdrantFilter(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	ctx := context.Background()
	documentID := "filter-" + uuid.New().String()

	textRec := testRecord(documentID, 0, fillVector(0.7))
	tableRec := testRecord(documentID, 1, fillVector(0.7))
	tableRec.Type = document.ChunkTypeTable
	require.NoError(t, idx.Upsert(ctx, documentID, []Record{textRec, tableRec}))

	results, err := idx.Search(ctx, documentID, fillVector(0.7), 10, &Filter{Type: document.ChunkTypeTable})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, document.ChunkTypeTable, results[0].Record.Type)
}

func TestQdrantDimensionValidation(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	ctx := context.Background()
	documentID := "dim-" + uuid.New().String()

	rec := testRecord(documentID, 0, make([]float32, 512))
	err := idx.Upsert(ctx, documentID, []Record{rec})
	assert.ErrorIs(t, err, ErrDimensionMismatch, "should reject wrong record dimension")

	_, err = idx.Search(ctx, documentID, make([]float32, 512), 10, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch, "should reject wrong query dimension")
}

func TestQdrantEmptyNamespace(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	results, err := idx.Search(context.Background(), "missing-"+uuid.New().String(), fillVector(0.8), 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
