package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
)

type InMemoryDocumentStore struct {
	mu         sync.RWMutex
	docs       map[string]commonModels.Document
	tombstones map[string]time.Time
}

func InitInMemoryDocumentStore() *InMemoryDocumentStore {
	return &InMemoryDocumentStore{
		docs:       make(map[string]commonModels.Document),
		tombstones: make(map[string]time.Time),
	}
}

func (s *InMemoryDocumentStore) Create(ctx context.Context, doc commonModels.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.Id]; ok {
		return fmt.Errorf("document %s: %w", doc.Id, ragErrors.ErrConflict)
	}
	s.docs[doc.Id] = doc
	return nil
}

func (s *InMemoryDocumentStore) Get(ctx context.Context, id string) (commonModels.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return commonModels.Document{}, fmt.Errorf("document %s: %w", id, ragErrors.ErrNotFound)
	}
	return doc, nil
}

func (s *InMemoryDocumentStore) List(ctx context.Context) ([]commonModels.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]commonModels.Document, 0, len(s.docs))
	for id, doc := range s.docs {
		if _, deleted := s.tombstones[id]; !deleted {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *InMemoryDocumentStore) Transition(ctx context.Context, id string, to commonModels.DocStatus,
	mutate func(*commonModels.Document)) (commonModels.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, deleted := s.tombstones[id]; deleted {
		return commonModels.Document{}, fmt.Errorf("document %s: %w", id, ragErrors.ErrDeleted)
	}
	doc, ok := s.docs[id]
	if !ok {
		return commonModels.Document{}, fmt.Errorf("document %s: %w", id, ragErrors.ErrNotFound)
	}
	if !commonModels.CanTransition(doc.Status, to) {
		return doc, fmt.Errorf("document %s %s -> %s: %w", id, doc.Status, to, ragErrors.ErrInvalidTransition)
	}
	if mutate != nil {
		mutate(&doc)
	}
	doc.Status = to
	doc.UpdatedAt = time.Now()
	s.docs[id] = doc
	return doc, nil
}

// StatusOf leaves out ids that are unknown or tombstoned.
func (s *InMemoryDocumentStore) StatusOf(ctx context.Context, ids []string) (map[string]commonModels.DocStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]commonModels.DocStatus, len(ids))
	for _, id := range ids {
		if _, deleted := s.tombstones[id]; deleted {
			continue
		}
		if doc, ok := s.docs[id]; ok {
			out[id] = doc.Status
		}
	}
	return out, nil
}

func (s *InMemoryDocumentStore) MarkDeleted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombstones[id] = time.Now()
	return nil
}

func (s *InMemoryDocumentStore) IsDeleted(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, deleted := s.tombstones[id]
	return deleted, nil
}

// Delete drops the record, the tombstone stays so late workers still skip the id.
func (s *InMemoryDocumentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}
