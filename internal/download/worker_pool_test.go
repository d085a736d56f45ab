package download

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWorkerPoolStartStop(t *testing.T) {
	handler := func(ctx context.Context, job *Job) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}

	pool := NewWorkerPool(2, handler, nil)
	ctx := context.Background()

	err := pool.Start(ctx)
	if err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}

	// Try to start again (should fail)
	err = pool.Start(ctx)
	if err == nil {
		t.Error("Expected error when starting already started pool")
	}

	if !pool.Stop(time.Second) {
		t.Error("Expected clean shutdown of idle pool")
	}
}

func TestWorkerPoolJobProcessing(t *testing.T) {
	processed := make(chan string, 10)

	handler := func(ctx context.Context, job *Job) error {
		processed <- job.ItemID
		return nil
	}

	pool := NewWorkerPool(2, handler, nil)
	ctx := context.Background()

	err := pool.Start(ctx)
	if err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}
	defer pool.Stop(time.Second)

	jobCount := 5
	for i := 0; i < jobCount; i++ {
		job := &Job{
			ItemID: string(rune('A' + i)),
			Kind:   "track",
		}
		if err := pool.Submit(job); err != nil {
			t.Errorf("Failed to submit job: %v", err)
		}
	}

	timeout := time.After(5 * time.Second)
	resultCount := 0

	for resultCount < jobCount {
		select {
		case <-processed:
			resultCount++
		case <-timeout:
			t.Fatalf("Timeout waiting for results, got %d/%d", resultCount, jobCount)
		}
	}
}

func TestWorkerPoolSubmitBeforeStart(t *testing.T) {
	pool := NewWorkerPool(2, func(ctx context.Context, job *Job) error { return nil }, nil)

	if err := pool.Submit(&Job{ItemID: "x"}); err == nil {
		t.Error("Expected error submitting to unstarted pool")
	}
}

func TestWorkerPoolErrorHandling(t *testing.T) {
	expectedError := errors.New("test error")

	handler := func(ctx context.Context, job *Job) error {
		if job.ItemID == "error-job" {
			return expectedError
		}
		return nil
	}

	pool := NewWorkerPool(2, handler, nil)
	ctx := context.Background()

	err := pool.Start(ctx)
	if err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}
	defer pool.Stop(time.Second)

	job := &Job{
		ItemID: "error-job",
		Kind:   "track",
	}

	if err := pool.Submit(job); err != nil {
		t.Fatalf("Failed to submit job: %v", err)
	}

	select {
	case result := <-pool.Results():
		if result.Success {
			t.Error("Expected job to fail")
		}
		if result.Error != expectedError {
			t.Errorf("Expected error %v, got %v", expectedError, result.Error)
		}
	case <-time.After(2 * time.Second):
		t.Error("Timeout waiting for error job result")
	}
}

func TestWorkerPoolGracePeriodExpiry(t *testing.T) {
	started := make(chan struct{})
	handler := func(ctx context.Context, job *Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	pool := NewWorkerPool(1, handler, nil)
	ctx := context.Background()

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}

	if err := pool.Submit(&Job{ItemID: "slow-job", Kind: "track"}); err != nil {
		t.Fatalf("Failed to submit job: %v", err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for job to start")
	}

	// The handler only exits when its context is canceled, so the
	// grace period must expire and Stop must report an unclean stop.
	if pool.Stop(50 * time.Millisecond) {
		t.Error("Expected unclean shutdown with a job still in flight")
	}
}

func TestWorkerPoolDropsQueuedJobsOnStop(t *testing.T) {
	block := make(chan struct{})
	processed := make(chan string, 10)

	handler := func(ctx context.Context, job *Job) error {
		processed <- job.ItemID
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}

	pool := NewWorkerPool(1, handler, nil)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}

	pool.Submit(&Job{ItemID: "first", Kind: "track"})

	select {
	case <-processed:
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for first job")
	}

	// Queue more jobs behind the blocked worker, then stop. The drain
	// happens before the worker frees up, so the queued jobs never run.
	pool.Submit(&Job{ItemID: "second", Kind: "track"})
	pool.Submit(&Job{ItemID: "third", Kind: "track"})

	pool.Stop(50 * time.Millisecond)
	close(block)

	// Only the first job may have been processed
	select {
	case id := <-processed:
		t.Errorf("Queued job %q should have been dropped on stop", id)
	default:
	}
}
