package jobstore

import (
	"errors"
	"testing"
	"time"

	"comfybridge/internal/domain"
)

func TestCreateAssignsDistinctIDs(t *testing.T) {
	s := New()
	a := s.Create("/in/a.png", "a cat", nil, nil)
	b := s.Create("/in/a.png", "a cat", nil, nil)
	if a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q twice", a.ID)
	}
	if a.Status != domain.JobStatusQueued || b.Status != domain.JobStatusQueued {
		t.Fatalf("new jobs must start queued, got %s and %s", a.Status, b.Status)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	s := New()
	job := s.Create("/in/cat.png", "a cat", nil, nil)

	if err := s.MarkRunning(job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	got, err := s.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.JobStatusRunning || got.StartedAt == nil {
		t.Fatalf("unexpected running state: %+v", got)
	}

	if err := s.MarkDone(job.ID, "/out/result.mp4"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	got, _ = s.Get(job.ID)
	if got.Status != domain.JobStatusDone {
		t.Fatalf("status = %s, want done", got.Status)
	}
	if got.ResultPath != "/out/result.mp4" {
		t.Fatalf("ResultPath = %q", got.ResultPath)
	}
	if got.CompletedAt == nil || got.StartedAt == nil {
		t.Fatal("expected started and completed timestamps")
	}
	if got.CompletedAt.Before(*got.StartedAt) {
		t.Fatalf("completed %v before started %v", got.CompletedAt, got.StartedAt)
	}
	if got.ErrorMessage != "" {
		t.Fatalf("done job must carry no error message, got %q", got.ErrorMessage)
	}
}

func TestErrorPathInvariants(t *testing.T) {
	s := New()
	job := s.Create("/in/cat.png", "a cat", nil, nil)

	if err := s.MarkRunning(job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := s.MarkError(job.ID, "backend exploded"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	got, _ := s.Get(job.ID)
	if got.Status != domain.JobStatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if got.ErrorMessage != "backend exploded" {
		t.Fatalf("ErrorMessage = %q", got.ErrorMessage)
	}
	if got.ResultPath != "" {
		t.Fatalf("failed job must carry no result path, got %q", got.ResultPath)
	}
}

func TestIllegalTransitions(t *testing.T) {
	s := New()
	job := s.Create("/in/cat.png", "a cat", nil, nil)

	// Completing a queued job skips RUNNING.
	if err := s.MarkDone(job.ID, "/out/x.mp4"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("MarkDone on queued: err = %v, want ErrInvalidTransition", err)
	}
	if err := s.MarkError(job.ID, "boom"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("MarkError on queued: err = %v, want ErrInvalidTransition", err)
	}

	if err := s.MarkRunning(job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := s.MarkRunning(job.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("double MarkRunning: err = %v, want ErrInvalidTransition", err)
	}

	if err := s.MarkDone(job.ID, "/out/x.mp4"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	// Terminal states cannot be left.
	if err := s.MarkError(job.ID, "late failure"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("MarkError on done: err = %v, want ErrInvalidTransition", err)
	}
	got, _ := s.Get(job.ID)
	if got.Status != domain.JobStatusDone || got.ErrorMessage != "" {
		t.Fatalf("terminal record mutated: %+v", got)
	}
}

func TestUnknownIDs(t *testing.T) {
	s := New()
	if _, err := s.Get("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get: err = %v, want ErrNotFound", err)
	}
	if err := s.MarkRunning("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("MarkRunning: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Delete("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Delete: err = %v, want ErrNotFound", err)
	}
}

func TestNextQueuedReturnsOldest(t *testing.T) {
	s := New()
	base := time.Now()
	clock := base
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	first := s.Create("/in/1.png", "first", nil, nil)
	second := s.Create("/in/2.png", "second", nil, nil)
	third := s.Create("/in/3.png", "third", nil, nil)

	got, ok := s.NextQueued()
	if !ok || got.ID != first.ID {
		t.Fatalf("NextQueued = %+v ok=%v, want oldest %s", got, ok, first.ID)
	}

	// Once the oldest starts running, the next oldest is served.
	if err := s.MarkRunning(first.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	got, ok = s.NextQueued()
	if !ok || got.ID != second.ID {
		t.Fatalf("NextQueued = %+v ok=%v, want %s", got, ok, second.ID)
	}

	if _, err := s.Delete(second.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, ok = s.NextQueued()
	if !ok || got.ID != third.ID {
		t.Fatalf("NextQueued = %+v ok=%v, want %s", got, ok, third.ID)
	}

	if _, err := s.Delete(third.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.NextQueued(); ok {
		t.Fatal("NextQueued reported work on an empty queue")
	}
}

func TestListNewestFirstWithFilterAndLimit(t *testing.T) {
	s := New()
	base := time.Now()
	clock := base
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, s.Create("/in/x.png", "p", nil, nil).ID)
	}
	if err := s.MarkRunning(ids[0]); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}

	all := s.List("", 50)
	if len(all) != 5 {
		t.Fatalf("List returned %d jobs, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("List not newest-first at index %d", i)
		}
	}

	queued := s.List(domain.JobStatusQueued, 50)
	if len(queued) != 4 {
		t.Fatalf("queued filter returned %d jobs, want 4", len(queued))
	}

	limited := s.List("", 2)
	if len(limited) != 2 {
		t.Fatalf("limit returned %d jobs, want 2", len(limited))
	}
	if limited[0].ID != ids[4] {
		t.Fatalf("limited[0] = %s, want newest %s", limited[0].ID, ids[4])
	}
}

func TestDeleteReturnsOwnedFiles(t *testing.T) {
	s := New()
	job := s.Create("/in/cat.png", "a cat", nil, nil)
	if err := s.MarkRunning(job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := s.MarkDone(job.ID, "/out/cat.mp4"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	files, err := s.Delete(job.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(files) != 2 || files[0] != "/in/cat.png" || files[1] != "/out/cat.mp4" {
		t.Fatalf("owned files = %v", files)
	}
	if _, err := s.Get(job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted job still readable: %v", err)
	}
	if len(s.List("", 50)) != 0 {
		t.Fatal("deleted job still listed")
	}
}

func TestSweepEvictsOldJobs(t *testing.T) {
	s := New()
	old := time.Now().Add(-2 * time.Hour)
	s.now = func() time.Time { return old }
	expired := s.Create("/in/old.png", "old", nil, nil)

	s.now = time.Now
	fresh := s.Create("/in/new.png", "new", nil, nil)

	files := s.Sweep(time.Hour)
	if len(files) != 1 || files[0] != "/in/old.png" {
		t.Fatalf("sweep files = %v", files)
	}
	if _, err := s.Get(expired.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("expired job survived sweep")
	}
	if _, err := s.Get(fresh.ID); err != nil {
		t.Fatalf("fresh job evicted: %v", err)
	}
}

func TestCounts(t *testing.T) {
	s := New()
	a := s.Create("/in/a.png", "a", nil, nil)
	s.Create("/in/b.png", "b", nil, nil)
	if err := s.MarkRunning(a.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := s.MarkError(a.ID, "boom"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}

	counts, total := s.Counts()
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if counts[domain.JobStatusQueued] != 1 || counts[domain.JobStatusError] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	if counts[domain.JobStatusRunning] != 0 || counts[domain.JobStatusDone] != 0 {
		t.Fatalf("counts = %v", counts)
	}
}
