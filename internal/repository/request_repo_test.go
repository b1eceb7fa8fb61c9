package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kre8/diagram-relay/internal/db"
	"github.com/kre8/diagram-relay/internal/model"
)

// stepClock returns a strictly increasing time on every call.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(start time.Time) *stepClock {
	return &stepClock{now: start, step: time.Second}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func setupTestRepo(t *testing.T, opts ...Option) *RequestRepository {
	t.Helper()

	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return NewRequestRepository(database, opts...)
}

func mustCreate(t *testing.T, repo *RequestRepository, message string) int64 {
	t.Helper()
	id, err := repo.CreateRequest(context.Background(), &model.NewRequest{Message: message})
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	return id
}

func TestRequestRepository_CreateRequest(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t.Run("defaults and pending status", func(t *testing.T) {
		id := mustCreate(t, repo, "draw a pipeline")

		req, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if req.Status != model.RequestStatusPending {
			t.Errorf("expected pending, got %s", req.Status)
		}
		if req.DiagramType != model.DefaultDiagramType {
			t.Errorf("expected diagram type %q, got %q", model.DefaultDiagramType, req.DiagramType)
		}
		if req.Format != model.DefaultFormat {
			t.Errorf("expected format %q, got %q", model.DefaultFormat, req.Format)
		}
		if req.ProcessedAt != nil {
			t.Error("processed_at must be unset for a pending request")
		}
	})

	t.Run("stores prior code", func(t *testing.T) {
		id, err := repo.CreateRequest(ctx, &model.NewRequest{
			Message:     "add a cache",
			DiagramType: "flowchart",
			Format:      "mermaid",
			CurrentCode: "graph TD; A-->B",
		})
		if err != nil {
			t.Fatalf("CreateRequest failed: %v", err)
		}
		req, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if req.CurrentCode != "graph TD; A-->B" || req.Format != "mermaid" || req.DiagramType != "flowchart" {
			t.Errorf("unexpected request: %+v", req)
		}
	})

	t.Run("rejects empty message", func(t *testing.T) {
		_, err := repo.CreateRequest(ctx, &model.NewRequest{})
		if !errors.Is(err, model.ErrMessageRequired) {
			t.Errorf("expected ErrMessageRequired, got %v", err)
		}
	})
}

func TestRequestRepository_GetByIDNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetByID(context.Background(), 42)
	if !errors.Is(err, model.ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestRequestRepository_PendingOrdering(t *testing.T) {
	clock := newStepClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	repo := setupTestRepo(t, WithClock(clock.Now))
	ctx := context.Background()

	latest, err := repo.LatestPending(ctx)
	if err != nil {
		t.Fatalf("LatestPending failed: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected no pending request, got %+v", latest)
	}

	id1 := mustCreate(t, repo, "first")
	id2 := mustCreate(t, repo, "second")
	id3 := mustCreate(t, repo, "third")

	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending requests, got %d", len(pending))
	}
	for i, want := range []int64{id1, id2, id3} {
		if pending[i].ID != want {
			t.Errorf("position %d: expected id %d, got %d", i, want, pending[i].ID)
		}
	}

	latest, err = repo.LatestPending(ctx)
	if err != nil {
		t.Fatalf("LatestPending failed: %v", err)
	}
	if latest == nil || latest.ID != id3 {
		t.Errorf("expected latest pending %d, got %+v", id3, latest)
	}

	// Processing and completed requests drop out of the pending view.
	if err := repo.MarkProcessing(ctx, id3); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if _, err := repo.AddResponse(ctx, id1, "digraph {}"); err != nil {
		t.Fatalf("AddResponse failed: %v", err)
	}

	pending, err = repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id2 {
		t.Errorf("expected only request %d pending, got %+v", id2, pending)
	}
}

func TestRequestRepository_TiesBrokenByID(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := setupTestRepo(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	id1 := mustCreate(t, repo, "a")
	id2 := mustCreate(t, repo, "b")

	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != id1 || pending[1].ID != id2 {
		t.Errorf("expected [%d %d], got %+v", id1, id2, pending)
	}

	latest, err := repo.LatestPending(ctx)
	if err != nil {
		t.Fatalf("LatestPending failed: %v", err)
	}
	if latest.ID != id2 {
		t.Errorf("expected latest %d, got %d", id2, latest.ID)
	}
}

func TestRequestRepository_MarkProcessing(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		id := mustCreate(t, repo, "diagram")
		for i := 0; i < 2; i++ {
			if err := repo.MarkProcessing(ctx, id); err != nil {
				t.Fatalf("MarkProcessing #%d failed: %v", i+1, err)
			}
		}
		req, _ := repo.GetByID(ctx, id)
		if req.Status != model.RequestStatusProcessing {
			t.Errorf("expected processing, got %s", req.Status)
		}
		if req.ProcessedAt != nil {
			t.Error("processing must not set processed_at")
		}
	})

	t.Run("does not reopen completed", func(t *testing.T) {
		id := mustCreate(t, repo, "diagram")
		if _, err := repo.AddResponse(ctx, id, "digraph { A; }"); err != nil {
			t.Fatalf("AddResponse failed: %v", err)
		}
		if err := repo.MarkProcessing(ctx, id); err != nil {
			t.Fatalf("MarkProcessing on completed returned error: %v", err)
		}
		req, _ := repo.GetByID(ctx, id)
		if req.Status != model.RequestStatusCompleted {
			t.Errorf("expected completed, got %s", req.Status)
		}
	})

	t.Run("unknown request", func(t *testing.T) {
		if err := repo.MarkProcessing(ctx, 9999); !errors.Is(err, model.ErrRequestNotFound) {
			t.Errorf("expected ErrRequestNotFound, got %v", err)
		}
	})
}

func TestRequestRepository_AddResponse(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t.Run("completes the request", func(t *testing.T) {
		id := mustCreate(t, repo, "draw a pipeline")

		resp, err := repo.AddResponse(ctx, id, "digraph { A -> B; }")
		if err != nil {
			t.Fatalf("AddResponse failed: %v", err)
		}
		if resp.RequestID != id || resp.DiagramCode != "digraph { A -> B; }" {
			t.Errorf("unexpected response: %+v", resp)
		}

		req, _ := repo.GetByID(ctx, id)
		if req.Status != model.RequestStatusCompleted {
			t.Errorf("expected completed, got %s", req.Status)
		}
		if req.ProcessedAt == nil {
			t.Error("processed_at must be set once completed")
		}

		latest, err := repo.GetLatestResponse(ctx, id)
		if err != nil {
			t.Fatalf("GetLatestResponse failed: %v", err)
		}
		if latest == nil || latest.DiagramCode != "digraph { A -> B; }" {
			t.Errorf("unexpected latest response: %+v", latest)
		}
	})

	t.Run("completes from processing", func(t *testing.T) {
		id := mustCreate(t, repo, "x")
		if err := repo.MarkProcessing(ctx, id); err != nil {
			t.Fatalf("MarkProcessing failed: %v", err)
		}
		if _, err := repo.AddResponse(ctx, id, "graph {}"); err != nil {
			t.Fatalf("AddResponse failed: %v", err)
		}
		req, _ := repo.GetByID(ctx, id)
		if req.Status != model.RequestStatusCompleted {
			t.Errorf("expected completed, got %s", req.Status)
		}
	})

	t.Run("supersedes on completed request", func(t *testing.T) {
		id := mustCreate(t, repo, "x")
		if _, err := repo.AddResponse(ctx, id, "first"); err != nil {
			t.Fatalf("AddResponse failed: %v", err)
		}
		before, _ := repo.GetByID(ctx, id)

		if _, err := repo.AddResponse(ctx, id, "second"); err != nil {
			t.Fatalf("second AddResponse failed: %v", err)
		}

		after, _ := repo.GetByID(ctx, id)
		if !after.ProcessedAt.Equal(*before.ProcessedAt) {
			t.Error("processed_at must not move once completed")
		}
		latest, _ := repo.GetLatestResponse(ctx, id)
		if latest.DiagramCode != "second" {
			t.Errorf("expected latest response 'second', got %q", latest.DiagramCode)
		}
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := repo.AddResponse(ctx, 9999, "digraph {}")
		if !errors.Is(err, model.ErrRequestNotFound) {
			t.Errorf("expected ErrRequestNotFound, got %v", err)
		}
	})

	t.Run("empty code", func(t *testing.T) {
		id := mustCreate(t, repo, "x")
		_, err := repo.AddResponse(ctx, id, "")
		if !errors.Is(err, model.ErrCodeRequired) {
			t.Errorf("expected ErrCodeRequired, got %v", err)
		}
		req, _ := repo.GetByID(ctx, id)
		if req.Status != model.RequestStatusPending {
			t.Errorf("rejected response must not change status, got %s", req.Status)
		}
	})
}

func TestRequestRepository_GetLatestResponseEmpty(t *testing.T) {
	repo := setupTestRepo(t)
	id := mustCreate(t, repo, "x")

	resp, err := repo.GetLatestResponse(context.Background(), id)
	if err != nil {
		t.Fatalf("GetLatestResponse failed: %v", err)
	}
	if resp != nil {
		t.Errorf("expected no response, got %+v", resp)
	}
}

func TestRequestRepository_PurgeOlderThan(t *testing.T) {
	clock := newStepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := setupTestRepo(t, WithClock(clock.Now))
	ctx := context.Background()

	oldAnswered := mustCreate(t, repo, "old answered")
	if _, err := repo.AddResponse(ctx, oldAnswered, "digraph {}"); err != nil {
		t.Fatalf("AddResponse failed: %v", err)
	}
	oldPending := mustCreate(t, repo, "old pending")

	clock.Set(time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC))
	fresh := mustCreate(t, repo, "fresh")
	if _, err := repo.AddResponse(ctx, fresh, "digraph { fresh; }"); err != nil {
		t.Fatalf("AddResponse failed: %v", err)
	}

	result, err := repo.PurgeOlderThan(ctx, model.DefaultRetentionDays)
	if err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}
	if result.Requests != 2 || result.Responses != 1 {
		t.Errorf("unexpected purge result: %+v", result)
	}

	for _, id := range []int64{oldAnswered, oldPending} {
		if _, err := repo.GetByID(ctx, id); !errors.Is(err, model.ErrRequestNotFound) {
			t.Errorf("request %d should be purged, got %v", id, err)
		}
	}
	if _, err := repo.GetByID(ctx, fresh); err != nil {
		t.Errorf("fresh request should survive: %v", err)
	}
	if resp, _ := repo.GetLatestResponse(ctx, fresh); resp == nil {
		t.Error("fresh response should survive")
	}

	second, err := repo.PurgeOlderThan(ctx, model.DefaultRetentionDays)
	if err != nil {
		t.Fatalf("second PurgeOlderThan failed: %v", err)
	}
	if second != (model.PurgeResult{}) {
		t.Errorf("second purge should be a no-op, got %+v", second)
	}

	if _, err := repo.PurgeOlderThan(ctx, 0); !errors.Is(err, model.ErrInvalidRetention) {
		t.Errorf("expected ErrInvalidRetention, got %v", err)
	}
}

func TestRequestRepository_CountByStatus(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	mustCreate(t, repo, "a")
	b := mustCreate(t, repo, "b")
	c := mustCreate(t, repo, "c")
	repo.MarkProcessing(ctx, b)
	repo.AddResponse(ctx, c, "digraph {}")

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[model.RequestStatusPending] != 1 ||
		counts[model.RequestStatusProcessing] != 1 ||
		counts[model.RequestStatusCompleted] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestRequestRepository_AddResponseAtomicUnderConcurrentReads(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	id := mustCreate(t, repo, "race")

	done := make(chan struct{})
	errs := make(chan string, 100)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				resp, err := repo.GetLatestResponse(ctx, id)
				if err != nil {
					errs <- err.Error()
					return
				}
				req, err := repo.GetByID(ctx, id)
				if err != nil {
					errs <- err.Error()
					return
				}
				// A visible response implies the request was completed first,
				// since the two writes commit together.
				if resp != nil && req.Status != model.RequestStatusCompleted {
					errs <- "response visible while request not completed"
					return
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := repo.AddResponse(ctx, id, "digraph { A -> B; }"); err != nil {
		t.Fatalf("AddResponse failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	close(done)
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}
