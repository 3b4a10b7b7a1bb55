package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/domain/jobModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
)

var inMemLogger = logger_i.NewLogger("InMem Store")

type storedJob struct {
	job       jobModel.Job
	expiresAt time.Time
}

type InMemoryJobStore struct {
	jobMutex  *sync.RWMutex
	jobMap    map[string]storedJob
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func InitInMemoryJobStore() *InMemoryJobStore {
	return NewInMemoryJobStore(config.RedisJobStoreTTL, time.Now)
}

// NewInMemoryJobStore takes the clock so expiry can be tested.
func NewInMemoryJobStore(ttl time.Duration, now func() time.Time) *InMemoryJobStore {
	return &InMemoryJobStore{
		jobMutex:  new(sync.RWMutex),
		jobMap:    make(map[string]storedJob),
		ttl:       ttl,
		now:       now,
		lastSweep: now(),
	}
}

func (store *InMemoryJobStore) SaveJob(ctx context.Context, job jobModel.Job) error {
	store.jobMutex.Lock()
	defer store.jobMutex.Unlock()
	now := store.now()
	store.sweep(now)
	if prev, ok := store.jobMap[job.Id]; ok && now.Before(prev.expiresAt) && prev.job.Status.IsTerminal() {
		return fmt.Errorf("job %s is already %s: %w", job.Id, prev.job.Status, ragErrors.ErrConflict)
	}
	store.jobMap[job.Id] = storedJob{job: job, expiresAt: now.Add(store.ttl)}
	inMemLogger.Debug("Saved job to store", "jobId", job.Id, "status", job.Status)
	return nil
}

func (store *InMemoryJobStore) GetJob(ctx context.Context, jobId string) (jobModel.Job, bool) {
	store.jobMutex.RLock()
	defer store.jobMutex.RUnlock()
	entry, found := store.jobMap[jobId]
	if !found || !store.now().Before(entry.expiresAt) {
		return jobModel.Job{}, false
	}
	return entry.job, true
}

// sweep drops expired jobs at most once per ttl, callers hold the write lock.
func (store *InMemoryJobStore) sweep(now time.Time) {
	if now.Sub(store.lastSweep) < store.ttl {
		return
	}
	for id, entry := range store.jobMap {
		if !now.Before(entry.expiresAt) {
			delete(store.jobMap, id)
		}
	}
	store.lastSweep = now
}
