package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/data/store"
	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conversationStores(t *testing.T) map[string]chatModel.ConversationStore {
	_, internalStore := newTestRedis(t)
	return map[string]chatModel.ConversationStore{
		"memory": store.InitConversationStore(),
		"redis":  store.NewRedisConversationStore(internalStore),
	}
}

func turn(i int) chatModel.Turn {
	return chatModel.Turn{
		Question:  fmt.Sprintf("question %d", i),
		Answer:    fmt.Sprintf("answer %d [1]", i),
		Citations: []chatModel.Citation{{Marker: 1, ChunkId: fmt.Sprintf("c%d", i), DocumentId: "d1"}},
		Grounded:  true,
		CreatedAt: time.Now().UTC(),
	}
}

func TestConversationStore_Lifecycle(t *testing.T) {
	for name, s := range conversationStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv, err := s.Create(ctx, "conv-1", "What is RAG?")
			require.NoError(t, err)
			assert.Equal(t, "What is RAG?", conv.Title)
			assert.Empty(t, conv.Turns)

			_, err = s.Create(ctx, "conv-1", "again")
			assert.ErrorIs(t, err, ragErrors.ErrConflict)

			ok, err := s.Exists(ctx, "conv-1")
			require.NoError(t, err)
			assert.True(t, ok)

			for i := 1; i <= 4; i++ {
				require.NoError(t, s.AppendTurn(ctx, "conv-1", turn(i)))
			}

			recent, err := s.RecentTurns(ctx, "conv-1", 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "question 3", recent[0].Question, "recent turns are oldest first")
			assert.Equal(t, "question 4", recent[1].Question)

			all, err := s.RecentTurns(ctx, "conv-1", 10)
			require.NoError(t, err)
			assert.Len(t, all, 4)

			none, err := s.RecentTurns(ctx, "conv-1", 0)
			require.NoError(t, err)
			assert.Empty(t, none)

			full, err := s.Get(ctx, "conv-1")
			require.NoError(t, err)
			require.Len(t, full.Turns, 4)
			assert.Equal(t, "c1", full.Turns[0].Citations[0].ChunkId)
			assert.False(t, full.UpdatedAt.Before(full.CreatedAt))

			require.NoError(t, s.Delete(ctx, "conv-1"))
			_, err = s.Get(ctx, "conv-1")
			assert.ErrorIs(t, err, ragErrors.ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, "conv-1"), ragErrors.ErrNotFound)
		})
	}
}

func TestConversationStore_Missing(t *testing.T) {
	for name, s := range conversationStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.ErrorIs(t, s.AppendTurn(ctx, "ghost", turn(1)), ragErrors.ErrNotFound)
			_, err := s.RecentTurns(ctx, "ghost", 3)
			assert.ErrorIs(t, err, ragErrors.ErrNotFound)
			ok, err := s.Exists(ctx, "ghost")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRedisConversationStore_TTL(t *testing.T) {
	mr, internalStore := newTestRedis(t)
	s := store.NewRedisConversationStore(internalStore)
	ctx := context.Background()

	_, err := s.Create(ctx, "conv-1", "title")
	require.NoError(t, err)
	require.NoError(t, s.AppendTurn(ctx, "conv-1", turn(1)))

	assert.Equal(t, config.RedisConversationStoreTTL, mr.TTL("conv:conv-1"))
	assert.Equal(t, config.RedisConversationStoreTTL, mr.TTL("conv:conv-1:turns"))
}
