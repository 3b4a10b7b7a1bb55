package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/data/redisStore"
	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/redis/go-redis/v9"
)

// doc:{id} holds the JSON record, doc:{id}:status the status the scripts compare against
// and doc:{id}:deleted the tombstone.
const docKeyPrefix = "doc:"

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then return 'EXISTS' end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
return 'OK'
`)

// transitionScript is a compare-and-set on the status key that refuses tombstoned documents.
var transitionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then return 'DELETED' end
local current = redis.call('GET', KEYS[2])
if not current then return 'NOTFOUND' end
if current ~= ARGV[1] then return 'CONFLICT' end
redis.call('SET', KEYS[1], ARGV[3])
redis.call('SET', KEYS[2], ARGV[2])
return 'OK'
`)

type RedisDocumentStore struct {
	store  *redisStore.Store
	logger *logger_i.Logger
}

// GetRedisDocumentStore returns nil when redis is offline.
func GetRedisDocumentStore(ctx context.Context, opts redisStore.Options) *RedisDocumentStore {
	s := redisStore.GetRedisStore(ctx, opts, config.RedisDocumentStore)
	if s == nil {
		return nil
	}
	return NewRedisDocumentStore(s)
}

func NewRedisDocumentStore(store *redisStore.Store) *RedisDocumentStore {
	return &RedisDocumentStore{store: store, logger: logger_i.NewLogger("DocumentStore")}
}

func docKey(id string) string       { return docKeyPrefix + id }
func statusKey(id string) string    { return docKeyPrefix + id + ":status" }
func tombstoneKey(id string) string { return docKeyPrefix + id + ":deleted" }

func (s *RedisDocumentStore) Create(ctx context.Context, doc commonModels.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := s.store.RunScript(ctx, createScript, []string{docKey(doc.Id), statusKey(doc.Id)}, data, string(doc.Status))
	if err != nil {
		return err
	}
	if res == "EXISTS" {
		return fmt.Errorf("document %s: %w", doc.Id, ragErrors.ErrConflict)
	}
	s.logger.WithContext(ctx).Debug("Saved document", "documentId", doc.Id)
	return nil
}

func (s *RedisDocumentStore) Get(ctx context.Context, id string) (commonModels.Document, error) {
	var doc commonModels.Document
	val, err := s.store.Get(ctx, docKey(id))
	if s.store.IsNil(err) {
		return doc, fmt.Errorf("document %s: %w", id, ragErrors.ErrNotFound)
	} else if err != nil {
		return doc, err
	}
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return doc, fmt.Errorf("document %s is corrupt: %w", id, err)
	}
	return doc, nil
}

func (s *RedisDocumentStore) List(ctx context.Context) ([]commonModels.Document, error) {
	keys, err := s.store.ScanKeys(ctx, docKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, k := range keys {
		id := strings.TrimPrefix(k, docKeyPrefix)
		if !strings.Contains(id, ":") {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []commonModels.Document{}, nil
	}

	recordKeys := make([]string, len(ids))
	tombKeys := make([]string, len(ids))
	for i, id := range ids {
		recordKeys[i] = docKey(id)
		tombKeys[i] = tombstoneKey(id)
	}
	records, err := s.store.MGet(ctx, recordKeys...)
	if err != nil {
		return nil, err
	}
	tombs, err := s.store.MGet(ctx, tombKeys...)
	if err != nil {
		return nil, err
	}

	out := make([]commonModels.Document, 0, len(ids))
	for i, raw := range records {
		str, ok := raw.(string)
		if !ok || tombs[i] != nil {
			continue
		}
		var doc commonModels.Document
		if err := json.Unmarshal([]byte(str), &doc); err != nil {
			s.logger.Warn("Skipping corrupt document record", "documentId", ids[i], "error", err)
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *RedisDocumentStore) Transition(ctx context.Context, id string, to commonModels.DocStatus,
	mutate func(*commonModels.Document)) (commonModels.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return doc, err
	}
	from := doc.Status
	if !commonModels.CanTransition(from, to) {
		return doc, fmt.Errorf("document %s %s -> %s: %w", id, from, to, ragErrors.ErrInvalidTransition)
	}
	if mutate != nil {
		mutate(&doc)
	}
	doc.Status = to
	doc.UpdatedAt = time.Now()
	data, err := json.Marshal(doc)
	if err != nil {
		return doc, err
	}

	res, err := s.store.RunScript(ctx, transitionScript,
		[]string{docKey(id), statusKey(id), tombstoneKey(id)}, string(from), string(to), data)
	if err != nil {
		return doc, err
	}
	switch res {
	case "OK":
		s.logger.WithContext(ctx).Debug("Document transitioned", "documentId", id, "from", from, "to", to)
		return doc, nil
	case "DELETED":
		return doc, fmt.Errorf("document %s: %w", id, ragErrors.ErrDeleted)
	case "NOTFOUND":
		return doc, fmt.Errorf("document %s: %w", id, ragErrors.ErrNotFound)
	default:
		return doc, fmt.Errorf("document %s left %s concurrently: %w", id, from, ragErrors.ErrConflict)
	}
}

// StatusOf leaves out ids that are unknown or tombstoned.
func (s *RedisDocumentStore) StatusOf(ctx context.Context, ids []string) (map[string]commonModels.DocStatus, error) {
	out := make(map[string]commonModels.DocStatus, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		keys = append(keys, statusKey(id))
	}
	for _, id := range ids {
		keys = append(keys, tombstoneKey(id))
	}
	vals, err := s.store.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		status, ok := vals[i].(string)
		if !ok || vals[len(ids)+i] != nil {
			continue
		}
		out[id] = commonModels.DocStatus(status)
	}
	return out, nil
}

func (s *RedisDocumentStore) MarkDeleted(ctx context.Context, id string) error {
	return s.store.Set(ctx, tombstoneKey(id), time.Now().UTC().Format(time.RFC3339), config.RedisTombstoneTTL)
}

func (s *RedisDocumentStore) IsDeleted(ctx context.Context, id string) (bool, error) {
	return s.store.Exists(ctx, tombstoneKey(id))
}

// Delete drops the record, the tombstone expires on its own.
func (s *RedisDocumentStore) Delete(ctx context.Context, id string) error {
	return s.store.Del(ctx, docKey(id), statusKey(id))
}
