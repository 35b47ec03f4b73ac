package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/substratehq/corpus/internal/models"
	"github.com/substratehq/corpus/pkg/store"
)

func getTestStore(t *testing.T) *store.VectorStore {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set")
	}

	s, err := store.NewWithConfig(store.VectorStoreConfig{
		ConnString:     connString,
		DocumentsTable: "test_documents",
		ChunksTable:    "test_chunks",
		VectorDim:      1536,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Init(context.Background()))
	// Init is idempotent
	require.NoError(t, s.Init(context.Background()))

	return s
}

func testVector(seed float32) []float32 {
	v := make([]float32, 1536)
	v[0] = seed
	v[1] = 1 - seed
	return v
}

func TestUpsertAndQuery(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertDocument(ctx, models.Document{
		ExternalID: "doc-query",
		Title:      "Test Document",
		Source:     "text",
		Owner:      "tenant-a",
		Metadata:   map[string]interface{}{"source": "test"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	err = s.InsertChunks(ctx, id, []models.Chunk{
		{Ordinal: 0, Text: "This is chunk 1", Vector: testVector(0.1)},
		{Ordinal: 1, Text: "This is chunk 2", Vector: testVector(0.9)},
	})
	require.NoError(t, err)

	results, err := s.NearestNeighbors(ctx, testVector(0.1), 1, "tenant-a")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "This is chunk 1", results[0].Text)
	assert.Equal(t, "Test Document", results[0].Title)
}

func TestReingestReplacesChunks(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertDocument(ctx, models.Document{
		ExternalID: "doc-A",
		Title:      "First",
		Source:     "text",
	})
	require.NoError(t, err)

	err = s.InsertChunks(ctx, first, []models.Chunk{
		{Ordinal: 0, Text: "old chunk 0", Vector: testVector(0.2)},
		{Ordinal: 1, Text: "old chunk 1", Vector: testVector(0.3)},
		{Ordinal: 2, Text: "old chunk 2", Vector: testVector(0.4)},
	})
	require.NoError(t, err)

	second, err := s.UpsertDocument(ctx, models.Document{
		ExternalID: "doc-A",
		Title:      "Second",
		Source:     "text",
	})
	require.NoError(t, err)
	assert.Equal(t, first, second, "one external id maps to one document row")

	err = s.InsertChunks(ctx, second, []models.Chunk{
		{Ordinal: 0, Text: "new chunk 0", Vector: testVector(0.5)},
	})
	require.NoError(t, err)

	results, err := s.NearestNeighbors(ctx, testVector(0.5), 10, "")
	require.NoError(t, err)

	count := 0
	for _, r := range results {
		if r.DocumentID == second {
			count++
			assert.Equal(t, "new chunk 0", r.Text)
		}
	}
	assert.Equal(t, 1, count, "chunk count matches only the second ingestion")
}

func TestOwnerFilter(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()

	private, err := s.UpsertDocument(ctx, models.Document{
		ExternalID: "doc-private",
		Title:      "Private",
		Owner:      "tenant-b",
	})
	require.NoError(t, err)
	err = s.InsertChunks(ctx, private, []models.Chunk{
		{Ordinal: 0, Text: "tenant-b secret", Vector: testVector(0.7)},
	})
	require.NoError(t, err)

	results, err := s.NearestNeighbors(ctx, testVector(0.7), 50, "tenant-c")
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, private, r.DocumentID, "tenant-c must not see tenant-b documents")
	}
}

func TestNearestNeighborsSkipsVectorlessChunks(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertDocument(ctx, models.Document{
		ExternalID: "doc-mixed",
		Title:      "Mixed",
		Owner:      "tenant-mixed",
	})
	require.NoError(t, err)

	// A document ingested without an embedding provider, then re-queried
	// after one is configured: NULL-embedding chunks must be skipped, not
	// surface as unscannable NULL-distance rows.
	err = s.InsertChunks(ctx, id, []models.Chunk{
		{Ordinal: 0, Text: "embedded chunk", Vector: testVector(0.6)},
		{Ordinal: 1, Text: "vectorless chunk"},
	})
	require.NoError(t, err)

	results, err := s.NearestNeighbors(ctx, testVector(0.6), 50, "tenant-mixed")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotEqual(t, "vectorless chunk", r.Text)
	}
}

func TestRecentChunksAndStats(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertDocument(ctx, models.Document{
		ExternalID: "doc-recent",
		Title:      "Recent",
	})
	require.NoError(t, err)
	// Keyword-only deployments store chunks without vectors.
	err = s.InsertChunks(ctx, id, []models.Chunk{
		{Ordinal: 0, Text: "no vector here"},
	})
	require.NoError(t, err)

	recent, err := s.RecentChunks(ctx, 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, recent)

	docs, chunks, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Greater(t, docs, 0)
	assert.Greater(t, chunks, 0)
}
