package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/data/redisStore"
	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/redis/go-redis/v9"
)

// conv:{id} holds the metadata, conv:{id}:turns the turns in order.
const convKeyPrefix = "conv:"

type conversationMeta struct {
	Id        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var createConversationScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 'EXISTS' end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
return 'OK'
`)

// appendTurnScript pushes a turn and refreshes meta and TTLs only if the conversation still exists.
var appendTurnScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 'NOTFOUND' end
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
redis.call('EXPIRE', KEYS[2], ARGV[3])
return 'OK'
`)

type RedisConversationStore struct {
	store  *redisStore.Store
	logger *logger_i.Logger
}

// GetRedisConversationStore returns nil when redis is offline.
func GetRedisConversationStore(ctx context.Context, opts redisStore.Options) *RedisConversationStore {
	s := redisStore.GetRedisStore(ctx, opts, config.RedisConversationStore)
	if s == nil {
		return nil
	}
	return NewRedisConversationStore(s)
}

func NewRedisConversationStore(store *redisStore.Store) *RedisConversationStore {
	return &RedisConversationStore{store: store, logger: logger_i.NewLogger("ConversationStore")}
}

func convKey(id string) string  { return convKeyPrefix + id }
func turnsKey(id string) string { return convKeyPrefix + id + ":turns" }

func ttlSeconds() int64 {
	return int64(config.RedisConversationStoreTTL / time.Second)
}

func (s *RedisConversationStore) Create(ctx context.Context, id string, title string) (chatModel.Conversation, error) {
	log := s.logger.WithContext(ctx).With("chat Id", id)
	now := time.Now()
	meta := conversationMeta{Id: id, Title: title, CreatedAt: now, UpdatedAt: now}
	data, err := json.Marshal(meta)
	if err != nil {
		return chatModel.Conversation{}, err
	}
	res, err := s.store.RunScript(ctx, createConversationScript, []string{convKey(id)}, data, ttlSeconds())
	if err != nil {
		log.Error("Error creating conversation", "error", err)
		return chatModel.Conversation{}, err
	}
	if res == "EXISTS" {
		return chatModel.Conversation{}, fmt.Errorf("conversation %s: %w", id, ragErrors.ErrConflict)
	}
	log.Debug("Initialized new chat")
	return chatModel.Conversation{Id: id, Title: title, Turns: []chatModel.Turn{}, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *RedisConversationStore) Exists(ctx context.Context, id string) (bool, error) {
	return s.store.Exists(ctx, convKey(id))
}

func (s *RedisConversationStore) meta(ctx context.Context, id string) (conversationMeta, error) {
	var meta conversationMeta
	val, err := s.store.Get(ctx, convKey(id))
	if s.store.IsNil(err) {
		return meta, fmt.Errorf("conversation %s: %w", id, ragErrors.ErrNotFound)
	} else if err != nil {
		return meta, err
	}
	err = json.Unmarshal([]byte(val), &meta)
	return meta, err
}

func (s *RedisConversationStore) Get(ctx context.Context, id string) (chatModel.Conversation, error) {
	meta, err := s.meta(ctx, id)
	if err != nil {
		return chatModel.Conversation{}, err
	}
	raw, err := s.store.ListGetAll(ctx, turnsKey(id))
	if err != nil {
		return chatModel.Conversation{}, err
	}
	turns, err := s.decodeTurns(raw)
	if err != nil {
		return chatModel.Conversation{}, err
	}
	return chatModel.Conversation{Id: meta.Id, Title: meta.Title, Turns: turns, CreatedAt: meta.CreatedAt, UpdatedAt: meta.UpdatedAt}, nil
}

// RecentTurns is oldest first.
func (s *RedisConversationStore) RecentTurns(ctx context.Context, id string, n int) ([]chatModel.Turn, error) {
	log := s.logger.WithContext(ctx).With("chat Id", id)
	if ok, err := s.Exists(ctx, id); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, ragErrors.ErrNotFound)
	}
	raw, err := s.store.ListGetLast(ctx, turnsKey(id), n)
	if err != nil {
		log.Error("Error getting history", "error", err)
		return nil, err
	}
	return s.decodeTurns(raw)
}

func (s *RedisConversationStore) AppendTurn(ctx context.Context, id string, turn chatModel.Turn) error {
	meta, err := s.meta(ctx, id)
	if err != nil {
		return err
	}
	meta.UpdatedAt = time.Now()
	metaData, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	turnData, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	res, err := s.store.RunScript(ctx, appendTurnScript, []string{convKey(id), turnsKey(id)}, turnData, metaData, ttlSeconds())
	if err != nil {
		s.logger.WithContext(ctx).Error("error saving chat", "chat Id", id, "error", err)
		return err
	}
	if res == "NOTFOUND" {
		return fmt.Errorf("conversation %s: %w", id, ragErrors.ErrNotFound)
	}
	return nil
}

func (s *RedisConversationStore) Delete(ctx context.Context, id string) error {
	if ok, err := s.Exists(ctx, id); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("conversation %s: %w", id, ragErrors.ErrNotFound)
	}
	return s.store.Del(ctx, convKey(id), turnsKey(id))
}

func (s *RedisConversationStore) decodeTurns(raw []string) ([]chatModel.Turn, error) {
	turns := make([]chatModel.Turn, 0, len(raw))
	for _, r := range raw {
		var t chatModel.Turn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("corrupt turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}
