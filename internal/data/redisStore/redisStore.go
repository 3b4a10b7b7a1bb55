package redisStore

import (
	"context"
	"strconv"
	"sync"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/redis/go-redis/v9"
)

var (
	instances = make(map[int]*Store)
	mu        sync.RWMutex
	closeOnce sync.Once
)

type Options struct {
	Addr     string
	Password string
}

// Store is one logical redis DB. Jobs, conversations and documents each get their own.
type Store struct {
	client *redis.Client
	Type   int
}

// GetRedisStore returns one store per logical DB, nil while redis is unreachable.
// Clients close when ctx is done.
func GetRedisStore(ctx context.Context, opts Options, dbType int) *Store {
	mu.RLock()
	instance, exists := instances[dbType]
	mu.RUnlock()
	if exists {
		return instance
	}

	mu.Lock()
	defer mu.Unlock()
	if instance, exists = instances[dbType]; exists {
		return instance
	}

	log := logger_i.NewLogger("Redis Store").With("db", strconv.Itoa(dbType), "addr", opts.Addr)
	instance, err := dial(ctx, opts, dbType)
	if err != nil {
		log.Error("Redis is offline", "error", err.Error())
		return nil
	}
	log.Info("Redis store ready")

	instances[dbType] = instance
	closeOnce.Do(func() {
		go closeOnDone(ctx)
	})
	return instance
}

func dial(ctx context.Context, opts Options, dbType int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  opts.Addr,
		Password:              opts.Password,
		DB:                    dbType,
		ContextTimeoutEnabled: true,
		ReadTimeout:           config.RedisIOTimeout,
		WriteTimeout:          config.RedisIOTimeout,
	})
	s := &Store{client: client, Type: dbType}
	pingCtx, cancel := context.WithTimeout(ctx, config.RedisPingTimeout)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func closeOnDone(ctx context.Context) {
	<-ctx.Done()
	log := logger_i.NewLogger("Redis Store")
	mu.Lock()
	defer mu.Unlock()
	for dbType, store := range instances {
		if err := store.client.Close(); err != nil {
			log.Error("Error closing redis client", "db", dbType, "error", err)
		}
		delete(instances, dbType)
	}
	log.Info("Redis stores closed")
}

// Ping backs the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// NewTestStore wraps a client pointed at miniredis.
func NewTestStore(client *redis.Client) *Store {
	return &Store{client: client}
}
