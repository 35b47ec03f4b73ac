package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/substratehq/corpus/internal/models"
	"github.com/substratehq/corpus/internal/types"
)

// Store tracks ingestion jobs in memory. It is the one shared-memory hazard
// in the pipeline: a background worker writes transitions while pollers and
// stream watchers read, so every access goes through the mutex. Jobs do not
// survive a restart; callers treat "not found" as transient.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*models.Job),
		now:  time.Now,
	}
}

// Create registers a job in the queued state. Creating an id that already
// exists resets it.
func (s *Store) Create(id string) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &models.Job{
		ID:        id,
		Status:    models.JobQueued,
		Progress:  0,
		Message:   "Queued",
		UpdatedAt: s.now(),
	}
	s.jobs[id] = job

	return *job
}

// Get returns a snapshot of the job.
func (s *Store) Get(id string) (models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, false
	}

	return *job, true
}

// Update transitions the job. Progress is clamped to [0,100], an empty
// message keeps the previous one, and UpdatedAt is always refreshed — it is
// the only change signal stream watchers have. Transitions out of a terminal
// state are rejected.
func (s *Store) Update(id string, status models.JobStatus, message string, progress int) (models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	if job.Status.Terminal() {
		return *job, false
	}

	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}

	job.Status = status
	job.Progress = progress
	if message != "" {
		job.Message = message
	}
	job.UpdatedAt = s.now()

	return *job, true
}

// Watch emits job status snapshots on a channel until the job reaches a
// terminal state or ctx is done. The first event is an immediate snapshot,
// or a not-found event when the id is unknown (the job may simply not exist
// yet). After that the store is polled at interval and a status event is
// emitted only when UpdatedAt has advanced; heartbeats keep the transport
// alive in between. The channel is closed when the watch ends.
func (s *Store) Watch(ctx context.Context, id string, interval, heartbeat time.Duration) <-chan types.JobEvent {
	events := make(chan types.JobEvent, 4)

	go func() {
		defer close(events)

		var lastUpdate time.Time
		lastEmit := time.Now()

		emit := func(ev types.JobEvent) bool {
			select {
			case events <- ev:
				lastEmit = time.Now()
				return true
			case <-ctx.Done():
				return false
			}
		}

		if job, ok := s.Get(id); ok {
			lastUpdate = job.UpdatedAt
			if !emit(types.JobEvent{Kind: "status", Job: &job}) {
				return
			}
			if job.Status.Terminal() {
				return
			}
		} else {
			if !emit(types.JobEvent{Kind: "not_found"}) {
				return
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			job, ok := s.Get(id)
			if !ok {
				if time.Since(lastEmit) >= heartbeat {
					if !emit(types.JobEvent{Kind: "heartbeat"}) {
						return
					}
				}
				continue
			}

			if job.UpdatedAt.After(lastUpdate) {
				lastUpdate = job.UpdatedAt
				if !emit(types.JobEvent{Kind: "status", Job: &job}) {
					return
				}
				if job.Status.Terminal() {
					return
				}
			} else if time.Since(lastEmit) >= heartbeat {
				if !emit(types.JobEvent{Kind: "heartbeat"}) {
					return
				}
			}
		}
	}()

	return events
}
