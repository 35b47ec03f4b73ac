package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/phuslu/log"

	"github.com/substratehq/corpus/internal/types"
	"github.com/substratehq/corpus/pkg/ingest"
	"github.com/substratehq/corpus/pkg/jobs"
	"github.com/substratehq/corpus/pkg/llm"
	"github.com/substratehq/corpus/pkg/objstore"
	"github.com/substratehq/corpus/pkg/rank"
	"github.com/substratehq/corpus/pkg/store"
)

const Version = "0.3.0"

type Config struct {
	Port         string
	PresignTTL   time.Duration
	PollInterval time.Duration
	Heartbeat    time.Duration
}

// Server exposes the ingestion and query pipeline over HTTP. Background
// errors never surface here; they are read back through job status.
type Server struct {
	config       Config
	jobs         types.JobStore
	orchestrator *ingest.Orchestrator
	ranker       types.Ranker
	chat         *llm.ChatEngine   // nil without provider credentials
	objects      types.ObjectStore // nil without object store credentials
	store        types.VectorStore
}

func New(config Config, jobStore types.JobStore, orchestrator *ingest.Orchestrator, ranker types.Ranker, chat *llm.ChatEngine, objects types.ObjectStore, vectorStore types.VectorStore) *Server {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.PresignTTL == 0 {
		config.PresignTTL = 15 * time.Minute
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Second
	}
	if config.Heartbeat == 0 {
		config.Heartbeat = 15 * time.Second
	}

	return &Server{
		config:       config,
		jobs:         jobStore,
		orchestrator: orchestrator,
		ranker:       ranker,
		chat:         chat,
		objects:      objects,
		store:        vectorStore,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/uploads/presign", s.handlePresign)
	mux.HandleFunc("POST /api/uploads/confirm", s.handleConfirmUpload)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("GET /api/jobs/{id}/stream", s.handleJobStream)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	// Simple health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}

func (s *Server) ListenAndServe() error {
	log.Info().Str("port", s.config.Port).Msg("starting server")
	return http.ListenAndServe(":"+s.config.Port, s.Handler())
}

type ingestRequest struct {
	Text       string                 `json:"text"`
	URL        string                 `json:"url"`
	Title      string                 `json:"title"`
	ExternalID string                 `json:"external_id"`
	Owner      string                 `json:"owner"`
	Metadata   map[string]interface{} `json:"metadata"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}

	if req.Text == "" && req.URL == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "text or url is required")
		return
	}

	jobID, err := s.orchestrator.Enqueue(ingest.Request{
		Text:       req.Text,
		URL:        req.URL,
		Title:      req.Title,
		ExternalID: req.ExternalID,
		Owner:      req.Owner,
		Metadata:   req.Metadata,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "queue_full", "ingestion queue is full, retry later")
			return
		}
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

type presignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	if s.objects == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "object store is not configured")
		return
	}

	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "filename is required")
		return
	}

	key := objstore.UploadKey(req.Filename)
	url, err := s.objects.PresignPut(r.Context(), key, s.config.PresignTTL)
	if err != nil {
		log.Error().Err(err).Msg("presign failed")
		writeError(w, http.StatusBadGateway, "storage_error", "failed to presign upload")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url, "key": key})
}

type confirmUploadRequest struct {
	Key        string                 `json:"key"`
	Title      string                 `json:"title"`
	ExternalID string                 `json:"external_id"`
	Owner      string                 `json:"owner"`
	Metadata   map[string]interface{} `json:"metadata"`
}

func (s *Server) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	if s.objects == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "object store is not configured")
		return
	}

	var req confirmUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "key is required")
		return
	}

	jobID, err := s.orchestrator.Enqueue(ingest.Request{
		ObjectKey:  req.Key,
		Title:      req.Title,
		ExternalID: req.ExternalID,
		Owner:      req.Owner,
		Metadata:   req.Metadata,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "queue_full", "ingestion queue is full, retry later")
			return
		}
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, ok := s.jobs.Get(id)
	if !ok {
		// Valid transient state: the tracker is in-memory and restarts
		// wipe it.
		writeError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

type queryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
	Owner    string `json:"owner"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "question is required")
		return
	}

	contexts, err := s.ranker.Rank(r.Context(), req.Question, rank.ClampK(req.K), req.Owner)
	if err != nil {
		var schemaErr *store.SchemaNotReadyError
		if errors.As(err, &schemaErr) {
			writeError(w, http.StatusServiceUnavailable, "schema_not_ready", "vector store is not initialized")
			return
		}
		log.Error().Err(err).Msg("query failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "query failed")
		return
	}

	response := map[string]interface{}{
		"contexts": contexts,
	}

	if s.chat != nil && len(contexts) > 0 {
		answer, err := s.chat.Answer(r.Context(), req.Question, contexts)
		if err != nil {
			// Generation is best-effort; the contexts still go back.
			log.Warn().Err(err).Msg("answer generation failed")
		} else {
			response["answer"] = answer
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	documents, chunks, err := s.store.Stats(r.Context())
	if err != nil {
		var schemaErr *store.SchemaNotReadyError
		if errors.As(err, &schemaErr) {
			writeError(w, http.StatusServiceUnavailable, "schema_not_ready", "vector store is not initialized")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "status failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":   Version,
		"documents": documents,
		"chunks":    chunks,
		"generator": s.chat != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]string{"error": message, "reason": reason})
}
