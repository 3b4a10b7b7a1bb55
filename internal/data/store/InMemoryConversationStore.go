package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
)

type InMemoryConversationStore struct {
	chatLock *sync.RWMutex
	chatMap  map[string]chatModel.Conversation
}

func InitConversationStore() *InMemoryConversationStore {
	return &InMemoryConversationStore{
		chatLock: new(sync.RWMutex),
		chatMap:  make(map[string]chatModel.Conversation),
	}
}

func (store *InMemoryConversationStore) Create(ctx context.Context, id string, title string) (chatModel.Conversation, error) {
	store.chatLock.Lock()
	defer store.chatLock.Unlock()
	if _, ok := store.chatMap[id]; ok {
		return chatModel.Conversation{}, fmt.Errorf("conversation %s: %w", id, ragErrors.ErrConflict)
	}
	now := time.Now()
	conv := chatModel.Conversation{Id: id, Title: title, Turns: []chatModel.Turn{}, CreatedAt: now, UpdatedAt: now}
	store.chatMap[id] = conv
	inMemLogger.Debug("Created conversation", "chatId", id)
	return conv, nil
}

func (store *InMemoryConversationStore) Exists(ctx context.Context, id string) (bool, error) {
	store.chatLock.RLock()
	defer store.chatLock.RUnlock()
	_, ok := store.chatMap[id]
	return ok, nil
}

func (store *InMemoryConversationStore) Get(ctx context.Context, id string) (chatModel.Conversation, error) {
	store.chatLock.RLock()
	defer store.chatLock.RUnlock()
	conv, ok := store.chatMap[id]
	if !ok {
		return conv, fmt.Errorf("conversation %s: %w", id, ragErrors.ErrNotFound)
	}
	conv.Turns = append([]chatModel.Turn(nil), conv.Turns...)
	return conv, nil
}

// RecentTurns is oldest first.
func (store *InMemoryConversationStore) RecentTurns(ctx context.Context, id string, n int) ([]chatModel.Turn, error) {
	store.chatLock.RLock()
	defer store.chatLock.RUnlock()
	conv, ok := store.chatMap[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, ragErrors.ErrNotFound)
	}
	if n <= 0 {
		return []chatModel.Turn{}, nil
	}
	start := max(len(conv.Turns)-n, 0)
	return append([]chatModel.Turn(nil), conv.Turns[start:]...), nil
}

func (store *InMemoryConversationStore) AppendTurn(ctx context.Context, id string, turn chatModel.Turn) error {
	store.chatLock.Lock()
	defer store.chatLock.Unlock()
	conv, ok := store.chatMap[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, ragErrors.ErrNotFound)
	}
	conv.Turns = append(conv.Turns, turn)
	conv.UpdatedAt = time.Now()
	store.chatMap[id] = conv
	return nil
}

func (store *InMemoryConversationStore) Delete(ctx context.Context, id string) error {
	store.chatLock.Lock()
	defer store.chatLock.Unlock()
	if _, ok := store.chatMap[id]; !ok {
		return fmt.Errorf("conversation %s: %w", id, ragErrors.ErrNotFound)
	}
	delete(store.chatMap, id)
	return nil
}
