package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/substratehq/corpus/internal/models"
	"github.com/substratehq/corpus/internal/types"
	"github.com/substratehq/corpus/pkg/jobs"
)

// Fetcher resolves a URL source to title and text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (title, text string, err error)
}

// Request describes one document to ingest. Exactly one of Text, URL or
// ObjectKey supplies the content.
type Request struct {
	JobID      string
	Text       string
	URL        string
	ObjectKey  string
	Title      string
	ExternalID string
	Owner      string
	Metadata   map[string]interface{}
}

type OrchestratorConfig struct {
	TaskTimeout time.Duration
}

// Orchestrator drives one document end-to-end on a bounded worker pool:
// job created (queued) -> processing -> fetch/extract -> chunk -> embed ->
// store -> done. Errors never reach the caller that triggered the ingestion;
// they terminate in the job's error state.
type Orchestrator struct {
	config   OrchestratorConfig
	jobs     types.JobStore
	pool     *jobs.Pool
	chunker  types.Chunker
	embedder types.Embedder // nil when no provider is configured
	store    types.VectorStore
	fetcher  Fetcher
	objects  types.ObjectStore // nil when no object store is configured
}

func New(config OrchestratorConfig, jobStore types.JobStore, pool *jobs.Pool, chunker types.Chunker, embedder types.Embedder, store types.VectorStore, fetcher Fetcher, objects types.ObjectStore) *Orchestrator {
	if config.TaskTimeout == 0 {
		config.TaskTimeout = 10 * time.Minute
	}

	return &Orchestrator{
		config:   config,
		jobs:     jobStore,
		pool:     pool,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		fetcher:  fetcher,
		objects:  objects,
	}
}

// Enqueue creates the job and submits the background work, returning the job
// id immediately. When the pool queue is full the job is flipped to error and
// jobs.ErrQueueFull is returned so the API can reject with back-pressure.
func (o *Orchestrator) Enqueue(req Request) (string, error) {
	if req.Text == "" && req.URL == "" && req.ObjectKey == "" {
		return "", fmt.Errorf("one of text, url or object key is required")
	}

	if req.JobID == "" {
		req.JobID = uuid.New().String()
	}

	o.jobs.Create(req.JobID)

	if err := o.pool.Submit(func() { o.run(req) }); err != nil {
		o.jobs.Update(req.JobID, models.JobError, "rejected: ingestion queue is full", 100)
		return req.JobID, err
	}

	return req.JobID, nil
}

func (o *Orchestrator) run(req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.TaskTimeout)
	defer cancel()

	if err := o.ingest(ctx, req); err != nil {
		log.Error().Str("job_id", req.JobID).Err(err).Msg("ingestion failed")
		o.jobs.Update(req.JobID, models.JobError, fmt.Sprintf("%T: %v", err, err), 100)
	}
}

func (o *Orchestrator) ingest(ctx context.Context, req Request) error {
	o.jobs.Update(req.JobID, models.JobProcessing, "Extracting text", 10)

	title, text, source, err := o.resolve(ctx, req)
	if err != nil {
		return err
	}

	o.jobs.Update(req.JobID, models.JobProcessing, "Chunking", 30)

	texts := o.chunker.Split(text)

	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{Ordinal: i, Text: t}
	}

	if o.embedder != nil && len(texts) > 0 {
		o.jobs.Update(req.JobID, models.JobProcessing, "Embedding", 60)

		vectors, err := o.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		for i := range chunks {
			chunks[i].Vector = vectors[i]
		}
	}

	o.jobs.Update(req.JobID, models.JobProcessing, "Storing", 90)

	docID, err := o.store.UpsertDocument(ctx, models.Document{
		ExternalID: req.ExternalID,
		Title:      title,
		Source:     source,
		Owner:      req.Owner,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return err
	}

	if err := o.store.InsertChunks(ctx, docID, chunks); err != nil {
		return err
	}

	log.Info().Str("job_id", req.JobID).Str("document_id", docID).Int("chunks", len(chunks)).Msg("document ingested")
	o.jobs.Update(req.JobID, models.JobDone, fmt.Sprintf("Ingested %d chunks", len(chunks)), 100)

	return nil
}

func (o *Orchestrator) resolve(ctx context.Context, req Request) (title, text, source string, err error) {
	title = req.Title

	switch {
	case req.Text != "":
		return title, req.Text, "text", nil

	case req.URL != "":
		fetchedTitle, fetched, err := o.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			return "", "", "", err
		}
		if title == "" {
			title = fetchedTitle
		}
		if title == "" {
			title = req.URL
		}
		return title, fetched, "url", nil

	default:
		if o.objects == nil {
			return "", "", "", fmt.Errorf("no object store configured")
		}
		data, err := o.objects.Get(ctx, req.ObjectKey)
		if err != nil {
			return "", "", "", err
		}
		if title == "" {
			title = req.ObjectKey
		}
		return title, string(data), "upload", nil
	}
}
