package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/data/redisStore"
	"github.com/akolanti/ResearchAssistant/internal/data/store"
	"github.com/akolanti/ResearchAssistant/internal/domain/jobModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redisStore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redisStore.NewTestStore(client)
}

func TestRedisJobStore_Lifecycle(t *testing.T) {
	mr, internalStore := newTestRedis(t)
	jobStore := store.NewRedisJobStore(internalStore)

	ctx := context.WithValue(context.Background(), config.TRACE_ID_KEY, "test-trace")
	jobID := "job_abc_123"

	testJob := jobModel.Job{
		Id:      jobID,
		JobType: jobModel.JobTypeQuery,
		Status:  jobModel.JobStatusRunning,
		JobPayload: jobModel.JobPayload{
			Question: "What does the paper say about attention?",
		},
	}

	t.Run("Save and Get Roundtrip", func(t *testing.T) {
		if err := jobStore.SaveJob(ctx, testJob); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}

		retrievedJob, found := jobStore.GetJob(ctx, jobID)
		if !found {
			t.Fatal("Job was saved but not found in Redis")
		}
		if retrievedJob.JobPayload.Question != testJob.JobPayload.Question {
			t.Errorf("Data mismatch! Got %s, want %s",
				retrievedJob.JobPayload.Question, testJob.JobPayload.Question)
		}
		if ttl := mr.TTL("job:" + jobID); ttl != config.RedisJobStoreTTL {
			t.Errorf("expected ttl %v, got %v", config.RedisJobStoreTTL, ttl)
		}
	})

	t.Run("Get Non-Existent Job", func(t *testing.T) {
		_, found := jobStore.GetJob(ctx, "ghost-id")
		if found {
			t.Error("Expected found=false for non-existent key")
		}
	})

	t.Run("Corrupt Job", func(t *testing.T) {
		_ = mr.Set("job:corrupt", "{not json")
		if _, found := jobStore.GetJob(ctx, "corrupt"); found {
			t.Error("corrupt record should read as missing")
		}
	})

	t.Run("Finished Job Is Immutable", func(t *testing.T) {
		done := testJob
		done.Status = jobModel.JobStatusComplete
		done.JobPayload.Answer = "It relates tokens [1]."
		if err := jobStore.SaveJob(ctx, done); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}

		late := testJob
		late.Status = jobModel.JobStatusRunning
		err := jobStore.SaveJob(ctx, late)
		if !errors.Is(err, ragErrors.ErrConflict) {
			t.Fatalf("expected a conflict, got %v", err)
		}
		got, _ := jobStore.GetJob(ctx, jobID)
		if got.Status != jobModel.JobStatusComplete || got.JobPayload.Answer != done.JobPayload.Answer {
			t.Errorf("finished job was overwritten: %+v", got)
		}
		if status, _ := mr.Get("job:" + jobID + ":status"); status != string(jobModel.JobStatusComplete) {
			t.Errorf("status key got %q", status)
		}
	})
}

func TestRedisJobStore_Race(t *testing.T) {
	_, internalStore := newTestRedis(t)
	jobStore := store.NewRedisJobStore(internalStore)

	ctx := context.WithValue(context.Background(), config.TRACE_ID_KEY, "race-trace")
	job := jobModel.Job{Id: "race-job"}

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = jobStore.SaveJob(ctx, job)
			_, _ = jobStore.GetJob(ctx, "race-job")
		}()
	}
	wg.Wait()

	if _, found := jobStore.GetJob(ctx, "race-job"); !found {
		t.Error("job missing after concurrent writes")
	}
}

func TestInMemoryJobStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := store.NewInMemoryJobStore(time.Hour, func() time.Time { return now })

	if err := s.SaveJob(ctx, jobModel.Job{Id: "a", Status: jobModel.JobStatusQueued}); err != nil {
		t.Fatal(err)
	}
	got, ok := s.GetJob(ctx, "a")
	if !ok || got.Status != jobModel.JobStatusQueued {
		t.Fatalf("unexpected job %+v found=%v", got, ok)
	}

	if err := s.SaveJob(ctx, jobModel.Job{Id: "a", Status: jobModel.JobStatusError}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveJob(ctx, jobModel.Job{Id: "a", Status: jobModel.JobStatusRunning}); !errors.Is(err, ragErrors.ErrConflict) {
		t.Errorf("expected a conflict for a finished job, got %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := s.GetJob(ctx, "a"); ok {
		t.Error("job should have expired")
	}
	// an expired id can be reused
	if err := s.SaveJob(ctx, jobModel.Job{Id: "a", Status: jobModel.JobStatusQueued}); err != nil {
		t.Errorf("SaveJob after expiry failed: %v", err)
	}
}
