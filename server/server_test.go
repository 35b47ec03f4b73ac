package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/substratehq/corpus/internal/models"
	"github.com/substratehq/corpus/pkg/chunker"
	"github.com/substratehq/corpus/pkg/ingest"
	"github.com/substratehq/corpus/pkg/jobs"
	"github.com/substratehq/corpus/pkg/rank"
	"github.com/substratehq/corpus/server"
)

type memStore struct {
	chunks []models.Candidate
}

func (s *memStore) Init(ctx context.Context) error { return nil }

func (s *memStore) UpsertDocument(ctx context.Context, doc models.Document) (string, error) {
	return "doc-1", nil
}

func (s *memStore) InsertChunks(ctx context.Context, documentID string, chunks []models.Chunk) error {
	for _, c := range chunks {
		s.chunks = append(s.chunks, models.Candidate{
			DocumentID: documentID,
			ChunkID:    c.Text,
			Text:       c.Text,
		})
	}
	return nil
}

func (s *memStore) NearestNeighbors(ctx context.Context, vector []float32, limit int, owner string) ([]models.Candidate, error) {
	return s.chunks, nil
}

func (s *memStore) RecentChunks(ctx context.Context, limit int, owner string) ([]models.Candidate, error) {
	if len(s.chunks) > limit {
		return s.chunks[:limit], nil
	}
	return s.chunks, nil
}

func (s *memStore) Stats(ctx context.Context) (int, int, error) { return 1, len(s.chunks), nil }
func (s *memStore) Close()                                      {}

func newTestServer(t *testing.T) (*httptest.Server, *jobs.Store, *memStore) {
	t.Helper()

	vectorStore := &memStore{}
	jobStore := jobs.NewStore()
	pool := jobs.NewPool(2, 8)
	t.Cleanup(pool.Close)

	c := chunker.NewWithConfig(chunker.ChunkerConfig{MaxChars: 20, OverlapChars: 5})
	orchestrator := ingest.New(ingest.OrchestratorConfig{}, jobStore, pool, &c, nil, vectorStore, nil, nil)
	ranker := rank.NewKeywordOnlyRanker(vectorStore)

	srv := server.New(server.Config{
		PollInterval: 10 * time.Millisecond,
		Heartbeat:    time.Minute,
	}, jobStore, orchestrator, ranker, nil, nil, vectorStore)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts, jobStore, vectorStore
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIngestValidation(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/ingest", map[string]string{"title": "empty"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "validation_error", body["reason"])
}

func TestIngestAndPollJob(t *testing.T) {
	ts, _, vectorStore := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/ingest", map[string]string{
		"text":        "The cat sat. The dog ran. The cat slept.",
		"title":       "Cats",
		"external_id": "doc-A",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	jobID, _ := decodeBody(t, resp)["job_id"].(string)
	require.NotEmpty(t, jobID)

	deadline := time.Now().Add(5 * time.Second)
	var job map[string]interface{}
	for time.Now().Before(deadline) {
		r, err := http.Get(ts.URL + "/api/jobs/" + jobID)
		require.NoError(t, err)
		job = decodeBody(t, r)
		if job["status"] == "done" || job["status"] == "error" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	require.Equal(t, "done", job["status"])
	assert.Equal(t, float64(100), job["progress"])
	assert.NotEmpty(t, vectorStore.chunks)
}

func TestJobNotFound(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/jobs/unknown")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "not_found", body["reason"])
}

func TestQueryValidation(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/query", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueryKeywordOnly(t *testing.T) {
	ts, _, vectorStore := newTestServer(t)

	vectorStore.chunks = []models.Candidate{
		{ChunkID: "c1", Text: "The cat sat."},
		{ChunkID: "c2", Text: "The dog ran."},
		{ChunkID: "c3", Text: "The cat slept."},
	}

	resp := postJSON(t, ts.URL+"/api/query", map[string]interface{}{
		"question": "cat",
		"k":        2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	contexts := body["contexts"].([]interface{})
	require.Len(t, contexts, 2)

	first := contexts[0].(map[string]interface{})
	second := contexts[1].(map[string]interface{})
	assert.Contains(t, first["preview"], "cat")
	assert.Contains(t, second["preview"], "cat")
	assert.Nil(t, body["answer"], "no generation without a provider")
}

func TestUploadEndpointsWithoutObjectStore(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/uploads/presign", map[string]string{"filename": "a.txt"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/uploads/confirm", map[string]string{"key": "uploads/x"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, server.Version, body["version"])
	assert.Equal(t, false, body["generator"])
}

func TestWebSocketWatchStopsAfterDisconnect(t *testing.T) {
	// A client watching a job that never terminates (here: an id that is
	// never created) must not keep its watcher alive after disconnecting.
	// The watch is torn down on the first failed write, so a short heartbeat
	// makes the teardown observable quickly.
	vectorStore := &memStore{}
	jobStore := jobs.NewStore()
	pool := jobs.NewPool(1, 4)
	t.Cleanup(pool.Close)

	c := chunker.NewWithConfig(chunker.ChunkerConfig{MaxChars: 20, OverlapChars: 5})
	orchestrator := ingest.New(ingest.OrchestratorConfig{}, jobStore, pool, &c, nil, vectorStore, nil, nil)

	srv := server.New(server.Config{
		PollInterval: 10 * time.Millisecond,
		Heartbeat:    20 * time.Millisecond,
	}, jobStore, orchestrator, rank.NewKeywordOnlyRanker(vectorStore), nil, nil, vectorStore)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	before := runtime.NumGoroutine()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":    "watch",
		"content": "never-created",
	}))

	// The watcher is live once the first event arrives.
	var first struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "not_found", first.Type)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+1
	}, 3*time.Second, 25*time.Millisecond, "watcher goroutines survived the disconnect")
}

func TestJobStream(t *testing.T) {
	ts, jobStore, _ := newTestServer(t)

	jobStore.Create("stream-job")

	go func() {
		time.Sleep(50 * time.Millisecond)
		jobStore.Update("stream-job", models.JobProcessing, "Working", 40)
		time.Sleep(50 * time.Millisecond)
		jobStore.Update("stream-job", models.JobDone, "Completed", 100)
	}()

	resp, err := http.Get(ts.URL + "/api/jobs/stream-job/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var statuses []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev struct {
			Kind string      `json:"kind"`
			Job  *models.Job `json:"job"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		if ev.Job != nil {
			statuses = append(statuses, string(ev.Job.Status))
		}
	}

	// Stream closed once the terminal status was observed.
	assert.Equal(t, []string{"queued", "processing", "done"}, statuses)
}
