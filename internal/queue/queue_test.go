package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/entity"
)

// fakeStore 以内存切片模拟任务表，认领语义与仓储层一致。
type fakeStore struct {
	mu   sync.Mutex
	jobs []*entity.DbJob

	createErr error
}

func (f *fakeStore) CreateJob(_ context.Context, job *entity.DbJob) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	if copied.Status == "" {
		copied.Status = entity.JobQueued
	}
	if copied.EnqueuedAt.IsZero() {
		copied.EnqueuedAt = time.Now()
	}
	f.jobs = append(f.jobs, &copied)
	return nil
}

func (f *fakeStore) ClaimNextJob(_ context.Context, ignorePriority bool) (*entity.DbJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	queued := make([]*entity.DbJob, 0, len(f.jobs))
	for _, j := range f.jobs {
		if j.Status == entity.JobQueued {
			queued = append(queued, j)
		}
	}
	if len(queued) == 0 {
		return nil, nil
	}

	sort.SliceStable(queued, func(a, b int) bool {
		if !ignorePriority && queued[a].Priority != queued[b].Priority {
			return queued[a].Priority < queued[b].Priority
		}
		return queued[a].EnqueuedAt.Before(queued[b].EnqueuedAt)
	})

	job := queued[0]
	job.Status = entity.JobRunning
	job.Attempts++
	copied := *job
	return &copied, nil
}

func (f *fakeStore) UpdateJob(ctx context.Context, id string, updates entity.JobUpdates) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ID == id {
			if updates.Status != nil {
				j.Status = *updates.Status
			}
			if updates.FinishedAt != nil {
				j.FinishedAt = updates.FinishedAt
			}
			return nil
		}
	}
	return errors.New("job not found")
}

func enqueueWithPriority(t *testing.T, q *Queue, generationID string, priority int, enqueuedAt time.Time) {
	t.Helper()
	err := q.Enqueue(context.Background(), &entity.DbJob{
		GenerationID: generationID,
		Priority:     priority,
		EnqueuedAt:   enqueuedAt,
	})
	if err != nil {
		t.Fatalf("enqueue %s: %v", generationID, err)
	}
}

func TestEnqueueAssignsID(t *testing.T) {
	store := &fakeStore{}
	q, err := NewQueue(store)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	job := &entity.DbJob{GenerationID: "gen-1"}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.ID == "" {
		t.Fatal("enqueue must assign an id")
	}
}

func TestEnqueueRejectsMissingGeneration(t *testing.T) {
	q, _ := NewQueue(&fakeStore{})
	if err := q.Enqueue(context.Background(), &entity.DbJob{}); err == nil {
		t.Fatal("expected error for job without generation id")
	}
}

func TestClaimEmptyQueue(t *testing.T) {
	q, _ := NewQueue(&fakeStore{})
	job, err := q.Claim(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job, got %+v", job)
	}
}

func TestClaimPrefersPriorityThenAge(t *testing.T) {
	store := &fakeStore{}
	q, _ := NewQueue(store)
	base := time.Now()

	enqueueWithPriority(t, q, "old-background", 9, base.Add(-2*time.Hour))
	enqueueWithPriority(t, q, "new-urgent", 0, base)

	job, err := q.Claim(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil || job.GenerationID != "new-urgent" {
		t.Fatalf("claimed %+v, want new-urgent first", job)
	}
}

func TestEveryFourthClaimIgnoresPriority(t *testing.T) {
	store := &fakeStore{}
	q, _ := NewQueue(store)
	base := time.Now()

	// 一个很老的后台任务，和源源不断的加急任务。
	enqueueWithPriority(t, q, "starving", 9, base.Add(-24*time.Hour))
	for i := 0; i < 6; i++ {
		enqueueWithPriority(t, q, "high", 0, base.Add(time.Duration(i)*time.Minute))
	}

	var order []string
	for i := 0; i < 4; i++ {
		job, err := q.Claim(context.Background())
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if job == nil {
			t.Fatalf("claim %d returned empty", i)
		}
		order = append(order, job.GenerationID)
	}

	for i := 0; i < 3; i++ {
		if order[i] != "high" {
			t.Fatalf("claim %d = %q, want high", i, order[i])
		}
	}
	if order[3] != "starving" {
		t.Fatalf("fourth claim = %q, want the starving job", order[3])
	}
}

func TestPoolProcessesJobsAndMarksTerminalStatus(t *testing.T) {
	store := &fakeStore{}
	q, _ := NewQueue(store)

	enqueueWithPriority(t, q, "ok", 0, time.Now().Add(-time.Minute))
	enqueueWithPriority(t, q, "boom", 0, time.Now())

	var mu sync.Mutex
	handled := map[string]int{}
	done := make(chan struct{}, 2)

	pool, err := NewPool(q, func(_ context.Context, job *entity.DbJob) error {
		mu.Lock()
		handled[job.GenerationID]++
		mu.Unlock()
		done <- struct{}{}
		if job.GenerationID == "boom" {
			return errors.New("handler failure")
		}
		return nil
	}, 1)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	pool.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	// 等终态写入落地再停池。
	deadline := time.After(5 * time.Second)
	for {
		store.mu.Lock()
		terminal := 0
		for _, j := range store.jobs {
			if j.Status == entity.JobDone || j.Status == entity.JobFailed {
				terminal++
			}
		}
		store.mu.Unlock()
		if terminal == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("terminal statuses not recorded")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if handled["ok"] != 1 || handled["boom"] != 1 {
		t.Fatalf("handled = %v", handled)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	statuses := map[string]entity.JobStatus{}
	for _, j := range store.jobs {
		statuses[j.GenerationID] = j.Status
	}
	if statuses["ok"] != entity.JobDone {
		t.Fatalf("ok status = %q, want done", statuses["ok"])
	}
	if statuses["boom"] != entity.JobFailed {
		t.Fatalf("boom status = %q, want failed", statuses["boom"])
	}
}

// 关停期间完成的在途任务，其终态写入不能随 worker 上下文一起被取消。
func TestPoolRecordsTerminalStatusDuringShutdown(t *testing.T) {
	store := &fakeStore{}
	q, _ := NewQueue(store)

	enqueueWithPriority(t, q, "in-flight", 0, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	pool, err := NewPool(q, func(_ context.Context, _ *entity.DbJob) error {
		// 任务执行中触发关停。
		cancel()
		return nil
	}, 1)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	pool.pollInterval = 10 * time.Millisecond

	pool.Start(ctx)
	pool.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	if got := store.jobs[0].Status; got != entity.JobDone {
		t.Fatalf("status = %q, want done despite shutdown", got)
	}
}
