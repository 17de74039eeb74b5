package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(), nil, "signin", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset")
		}
		return "token", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "token", got)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	badCreds := errors.New("invalid credentials")
	calls := 0
	_, err := Do(context.Background(), fastConfig(), nil, "signin", func(context.Context) (int, error) {
		calls++
		return 0, Permanent(badCreds)
	})
	assert.Equal(t, badCreds, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	_, err := Do(context.Background(), fastConfig(), nil, "upload", func(context.Context) (struct{}, error) {
		return struct{}{}, errors.New("503")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestDo_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, fastConfig(), nil, "upload", func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoff_Caps(t *testing.T) {
	cfg := &Config{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, BackoffMultiplier: 2}
	assert.Equal(t, 100*time.Millisecond, calculateBackoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, calculateBackoff(1, cfg))
	assert.Equal(t, 300*time.Millisecond, calculateBackoff(2, cfg))
}
