package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/substratehq/corpus/internal/models"
)

type VectorStoreConfig struct {
	ConnString     string
	DocumentsTable string
	ChunksTable    string
	VectorDim      int
	BatchSize      int
}

// VectorStore persists documents and their embedded chunks in Postgres with
// the pgvector extension, and answers cosine nearest-neighbor queries.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(config VectorStoreConfig) (*VectorStore, error) {
	if config.DocumentsTable == "" {
		config.DocumentsTable = "documents"
	}
	if config.ChunksTable == "" {
		config.ChunksTable = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	return &VectorStore{
		config: config,
		pool:   pool,
	}, nil
}

// Init bootstraps the schema. Safe to call repeatedly; every statement uses
// an existence check. It also verifies that an already-existing embedding
// column matches the configured dimensionality, since mixing dimensionalities
// in one deployment is a fatal configuration error.
func (vs *VectorStore) Init(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createDocuments := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			external_id TEXT UNIQUE,
			title TEXT,
			source TEXT,
			owner TEXT NOT NULL DEFAULT 'public',
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vs.config.DocumentsTable)

	_, err = vs.pool.Exec(ctx, createDocuments)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %v", err)
	}

	createChunks := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			ordinal INTEGER NOT NULL,
			content TEXT,
			embedding vector(%d)
		)`, vs.config.ChunksTable, vs.config.DocumentsTable, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createChunks)
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %v", err)
	}

	// Create vector index
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.ChunksTable, vs.config.ChunksTable)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return vs.checkDimension(ctx)
}

func (vs *VectorStore) checkDimension(ctx context.Context) error {
	var dim int
	query := `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'`

	err := vs.pool.QueryRow(ctx, query, vs.config.ChunksTable).Scan(&dim)
	if err != nil {
		return fmt.Errorf("failed to read embedding dimension: %v", err)
	}

	if dim != vs.config.VectorDim {
		return fmt.Errorf("embedding column has %d dimensions but %d configured; one deployment must use one dimensionality", dim, vs.config.VectorDim)
	}

	return nil
}

// UpsertDocument writes the document row and returns its id. When the
// external id already exists, title/source/owner/metadata are replaced and
// every prior chunk is deleted in the same transaction, so a reader never
// observes a half-replaced document.
func (vs *VectorStore) UpsertDocument(ctx context.Context, doc models.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Owner == "" {
		doc.Owner = models.OwnerPublic
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return "", classify("upsert document", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, external_id, title, source, owner, metadata)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
		ON CONFLICT (external_id) DO UPDATE SET
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			owner = EXCLUDED.owner,
			metadata = EXCLUDED.metadata
		RETURNING id`,
		vs.config.DocumentsTable)

	var id string
	err = tx.QueryRow(ctx, stmt,
		doc.ID,
		doc.ExternalID,
		sanitizeUTF8(doc.Title),
		doc.Source,
		doc.Owner,
		doc.Metadata,
	).Scan(&id)
	if err != nil {
		return "", classify("upsert document", err)
	}

	// Delete-then-insert replacement: prior chunks go away with the same
	// commit that updates the document row.
	deleteChunks := fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", vs.config.ChunksTable)
	if _, err := tx.Exec(ctx, deleteChunks, id); err != nil {
		return "", classify("delete prior chunks", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", classify("upsert document", err)
	}

	return id, nil
}

// InsertChunks bulk-inserts chunks for a document in one transaction.
// Callers supply contiguous zero-based ordinals; that contract is documented
// rather than re-checked here.
func (vs *VectorStore) InsertChunks(ctx context.Context, documentID string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return classify("insert chunks", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, ordinal, content, embedding)
		VALUES ($1, $2, $3, $4, $5)`,
		vs.config.ChunksTable)

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		id := fmt.Sprintf("%s_%d", documentID, chunk.Ordinal)

		var embedding interface{}
		if chunk.Vector != nil {
			embedding = pgvector.NewVector(chunk.Vector)
		}

		batch.Queue(stmt, id, documentID, chunk.Ordinal, sanitizeUTF8(chunk.Text), embedding)

		if batch.Len() >= vs.config.BatchSize {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return classify("insert chunks", err)
			}
			batch = &pgx.Batch{}
		}
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return classify("insert chunks", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("insert chunks", err)
	}

	return nil
}

// NearestNeighbors returns up to limit chunks ordered by ascending cosine
// distance to the query vector. A chunk is visible when its document's owner
// matches the requesting owner or is the public sentinel. Chunks stored
// without an embedding are excluded; they would otherwise surface with a
// NULL distance once the candidate pool outgrows the embedded rows.
func (vs *VectorStore) NearestNeighbors(ctx context.Context, vector []float32, limit int, owner string) ([]models.Candidate, error) {
	if owner == "" {
		owner = models.OwnerPublic
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.document_id, c.ordinal, COALESCE(d.title, ''), COALESCE(c.content, ''),
		       c.embedding <=> $1 AS distance, d.created_at
		FROM %s c
		JOIN %s d ON d.id = c.document_id
		WHERE c.embedding IS NOT NULL AND (d.owner = $2 OR d.owner = $3)
		ORDER BY distance
		LIMIT $4`,
		vs.config.ChunksTable, vs.config.DocumentsTable)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(vector), owner, models.OwnerPublic, limit)
	if err != nil {
		return nil, classify("nearest neighbors", err)
	}
	defer rows.Close()

	return scanCandidates(rows, true)
}

// RecentChunks returns chunks of the most recently created documents. It is
// the candidate pool when no embedding provider is configured, so the
// keyword stage still has something meaningful to rank. Capped at 200.
func (vs *VectorStore) RecentChunks(ctx context.Context, limit int, owner string) ([]models.Candidate, error) {
	if owner == "" {
		owner = models.OwnerPublic
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.document_id, c.ordinal, COALESCE(d.title, ''), COALESCE(c.content, ''),
		       d.created_at
		FROM %s c
		JOIN %s d ON d.id = c.document_id
		WHERE d.owner = $1 OR d.owner = $2
		ORDER BY d.created_at DESC, c.ordinal
		LIMIT $3`,
		vs.config.ChunksTable, vs.config.DocumentsTable)

	rows, err := vs.pool.Query(ctx, query, owner, models.OwnerPublic, limit)
	if err != nil {
		return nil, classify("recent chunks", err)
	}
	defer rows.Close()

	return scanCandidates(rows, false)
}

func scanCandidates(rows pgx.Rows, withDistance bool) ([]models.Candidate, error) {
	var candidates []models.Candidate
	for rows.Next() {
		var c models.Candidate
		var err error
		if withDistance {
			err = rows.Scan(&c.ChunkID, &c.DocumentID, &c.Ordinal, &c.Title, &c.Text, &c.Distance, &c.CreatedAt)
		} else {
			err = rows.Scan(&c.ChunkID, &c.DocumentID, &c.Ordinal, &c.Title, &c.Text, &c.CreatedAt)
		}
		if err != nil {
			return nil, classify("scan row", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("scan rows", err)
	}

	return candidates, nil
}

// Stats reports document and chunk counts.
func (vs *VectorStore) Stats(ctx context.Context) (int, int, error) {
	var documents, chunks int

	query := fmt.Sprintf("SELECT (SELECT count(*) FROM %s), (SELECT count(*) FROM %s)",
		vs.config.DocumentsTable, vs.config.ChunksTable)

	if err := vs.pool.QueryRow(ctx, query).Scan(&documents, &chunks); err != nil {
		return 0, 0, classify("stats", err)
	}

	return documents, chunks, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
