package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func fastConfig() Config {
	return Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return ragErrors.Transient(ragErrors.KindEmbedding, errors.New("503"), "embed")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnTerminal(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return ragErrors.Terminal(ragErrors.KindEmbedding, errors.New("401"), "auth")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ragErrors.KindEmbedding, ragErrors.KindOf(err))
}

func TestDo_BoundedAttempts(t *testing.T) {
	calls := 0
	retried := 0
	cfg := fastConfig()
	cfg.OnRetry = func(attempt int, err error) { retried++ }
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return ragErrors.Transient(ragErrors.KindIndexing, errors.New("reset"), "upsert")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retried)
}

func TestDo_AttemptTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 2
	cfg.AttemptTimeout = 5 * time.Millisecond
	cfg.Retryable = TransientNetwork
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastConfig(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	v, err := DoWithResult(context.Background(), fastConfig(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestClassifiers(t *testing.T) {
	assert.True(t, TransientHTTPStatus(429))
	assert.True(t, TransientHTTPStatus(503))
	assert.False(t, TransientHTTPStatus(400))
	assert.False(t, TransientHTTPStatus(401))

	assert.True(t, TransientGRPC(status.Error(codes.Unavailable, "down")))
	assert.True(t, TransientGRPC(status.Error(codes.ResourceExhausted, "slow down")))
	assert.False(t, TransientGRPC(status.Error(codes.InvalidArgument, "bad")))
	assert.False(t, TransientGRPC(errors.New("not grpc")))

	assert.True(t, TransientNetwork(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, TransientNetwork(errors.New("bad input")))
}
