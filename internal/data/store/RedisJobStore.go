package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/data/redisStore"
	"github.com/akolanti/ResearchAssistant/internal/domain/jobModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/redis/go-redis/v9"
)

// job:{id} holds the JSON snapshot, job:{id}:status the status the save script checks.
const jobKeyPrefix = "job:"

// saveJobScript writes both keys unless the stored status is one of the terminal ones.
var saveJobScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if current == ARGV[4] or current == ARGV[5] then return 'FINISHED' end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'EX', ARGV[3])
return 'OK'
`)

type RedisJobStore struct {
	store  *redisStore.Store
	logger *logger_i.Logger
}

// GetRedisJobStore returns nil when redis is offline.
func GetRedisJobStore(ctx context.Context, opts redisStore.Options) *RedisJobStore {
	s := redisStore.GetRedisStore(ctx, opts, config.RedisJobStore)
	if s == nil {
		return nil
	}
	return NewRedisJobStore(s)
}

func NewRedisJobStore(store *redisStore.Store) *RedisJobStore {
	return &RedisJobStore{
		store:  store,
		logger: logger_i.NewLogger("JobStore"),
	}
}

func (s *RedisJobStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *RedisJobStore) SaveJob(ctx context.Context, job jobModel.Job) error {
	log := s.logger.WithContext(ctx).With("job Id", job.Id)
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	keys := []string{jobKeyPrefix + job.Id, jobKeyPrefix + job.Id + ":status"}
	ttl := int64(config.RedisJobStoreTTL.Seconds())
	res, err := s.store.RunScript(ctx, saveJobScript, keys, data, string(job.Status), ttl,
		string(jobModel.JobStatusComplete), string(jobModel.JobStatusError))
	if err != nil {
		log.Error("Error saving job", "error", err)
		return err
	}
	if res == "FINISHED" {
		return fmt.Errorf("job %s is already finished: %w", job.Id, ragErrors.ErrConflict)
	}
	log.Debug("Saved job to Redis", "status", job.Status, "step", job.CurrentStep)
	return nil
}

func (s *RedisJobStore) GetJob(ctx context.Context, jobId string) (jobModel.Job, bool) {
	var job jobModel.Job
	log := s.logger.WithContext(ctx).With("job Id", jobId)
	val, err := s.store.Get(ctx, jobKeyPrefix+jobId)
	if s.store.IsNil(err) {
		return job, false
	} else if err != nil {
		log.Error("Error reading job", "error", err)
		return job, false
	}

	if err = json.Unmarshal([]byte(val), &job); err != nil {
		log.Error("Error unmarshalling job", "error", err)
		return job, false
	}
	return job, true
}
