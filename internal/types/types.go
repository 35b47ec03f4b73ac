package types

import (
	"context"
	"time"

	"github.com/substratehq/corpus/internal/models"
)

// Core interfaces
type VectorStore interface {
	Init(ctx context.Context) error
	UpsertDocument(ctx context.Context, doc models.Document) (string, error)
	InsertChunks(ctx context.Context, documentID string, chunks []models.Chunk) error
	NearestNeighbors(ctx context.Context, vector []float32, limit int, owner string) ([]models.Candidate, error)
	RecentChunks(ctx context.Context, limit int, owner string) ([]models.Candidate, error)
	Stats(ctx context.Context) (documents int, chunks int, err error)
	Close()
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

type Chunker interface {
	Split(text string) []string
}

type Ranker interface {
	Rank(ctx context.Context, query string, k int, owner string) ([]models.SearchContext, error)
}

type JobStore interface {
	Create(id string) models.Job
	Get(id string) (models.Job, bool)
	Update(id string, status models.JobStatus, message string, progress int) (models.Job, bool)
	Watch(ctx context.Context, id string, interval, heartbeat time.Duration) <-chan JobEvent
}

type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// JobEvent is one emission of a job status stream. Kind is "status" for a
// snapshot, "not_found" when the job id is unknown, "heartbeat" for keepalive.
type JobEvent struct {
	Kind string      `json:"kind"`
	Job  *models.Job `json:"job,omitempty"`
}
