// Package jobstore holds the authoritative in-memory job records for the
// broker and enforces the job state machine. It performs no I/O; owned file
// paths are returned to callers for cleanup.
package jobstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"comfybridge/internal/domain"
)

// Store maps job id to job record. All read-modify-write access is
// serialized by one mutex because the HTTP server dispatches handlers
// concurrently.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

// Create registers a new queued job and returns a snapshot of the record.
func (s *Store) Create(inputImagePath, prompt string, negativePrompt *string, seed *int64) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &domain.Job{
		ID:             uuid.NewString()[:8],
		Status:         domain.JobStatusQueued,
		CreatedAt:      s.now(),
		InputImagePath: inputImagePath,
		Prompt:         prompt,
		NegativePrompt: negativePrompt,
		Seed:           seed,
	}
	s.jobs[job.ID] = job
	return *job
}

// Get returns a snapshot of the job with the given id.
func (s *Store) Get(id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return *job, nil
}

// List returns up to limit jobs, newest first, optionally filtered by status.
func (s *Store) List(status domain.JobStatus, limit int) []domain.Job {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, job)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	out := make([]domain.Job, 0, limit)
	for _, job := range all {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, *job)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Delete removes the record and returns the file paths it owned. The caller
// is responsible for unlinking them.
func (s *Store) Delete(id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(s.jobs, id)
	return job.OwnedFiles(), nil
}

// MarkRunning transitions a queued job to running.
func (s *Store) MarkRunning(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusQueued {
		return fmt.Errorf("%w: cannot start job in status %q", domain.ErrInvalidTransition, job.Status)
	}
	now := s.now()
	job.Status = domain.JobStatusRunning
	job.StartedAt = &now
	return nil
}

// MarkDone transitions a running job to done and records the result path.
func (s *Store) MarkDone(id, resultPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusRunning {
		return fmt.Errorf("%w: cannot complete job in status %q", domain.ErrInvalidTransition, job.Status)
	}
	now := s.now()
	job.Status = domain.JobStatusDone
	job.ResultPath = resultPath
	job.CompletedAt = &now
	return nil
}

// MarkError transitions a running job to error and records the message.
func (s *Store) MarkError(id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusRunning {
		return fmt.Errorf("%w: cannot fail job in status %q", domain.ErrInvalidTransition, job.Status)
	}
	now := s.now()
	job.Status = domain.JobStatusError
	job.ErrorMessage = message
	job.CompletedAt = &now
	return nil
}

// NextQueued returns the oldest queued job by creation time. It does not
// reserve the job: the single worker follows up with MarkRunning. A
// multi-worker deployment would need an atomic claim here instead.
func (s *Store) NextQueued() (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *domain.Job
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusQueued {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return domain.Job{}, false
	}
	return *oldest, true
}

// Sweep removes every job created more than maxAge ago and returns the file
// paths the removed records owned.
func (s *Store) Sweep(maxAge time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	var files []string
	for id, job := range s.jobs {
		if job.CreatedAt.Before(cutoff) {
			files = append(files, job.OwnedFiles()...)
			delete(s.jobs, id)
		}
	}
	return files
}

// Counts returns the number of jobs per status plus the total.
func (s *Store) Counts() (map[domain.JobStatus]int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[domain.JobStatus]int{
		domain.JobStatusQueued:  0,
		domain.JobStatusRunning: 0,
		domain.JobStatusDone:    0,
		domain.JobStatusError:   0,
	}
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, len(s.jobs)
}
