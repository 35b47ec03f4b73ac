package models

import "time"

// OwnerPublic is the sentinel owner visible to every tenant.
const OwnerPublic = "public"

type Document struct {
	ID         string
	ExternalID string
	Title      string
	Source     string
	Owner      string
	Metadata   map[string]interface{}
	CreatedAt  time.Time
}

// Chunk is the unit of embedding and retrieval. Ordinals are zero-based and
// contiguous within a document; chunks are immutable once written and are
// replaced only by a whole-document re-ingest.
type Chunk struct {
	DocumentID string
	Ordinal    int
	Text       string
	Vector     []float32
}

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobError      JobStatus = "error"
)

// Terminal reports whether a job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobError
}

// Job is the in-memory record of one asynchronous ingestion. It does not
// survive a process restart; pollers must treat "not found" as transient.
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Candidate is one nearest-neighbor hit before reranking.
type Candidate struct {
	DocumentID string
	ChunkID    string
	Ordinal    int
	Title      string
	Text       string
	Distance   float32
	CreatedAt  time.Time
}

// SearchContext is a reranked query result. Scores are kept for
// observability; Preview is capped at 400 characters.
type SearchContext struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Title      string  `json:"title"`
	Preview    string  `json:"preview"`
	VScore     float32 `json:"vector_score"`
	KWScore    float32 `json:"keyword_score"`
}
