package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestJSONRoundTripAndTTL(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	type summary struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, c.SetJSON(ctx, "dashboard:org-1:12", summary{Total: 4200}, time.Minute))

	var got summary
	require.NoError(t, c.GetJSON(ctx, "dashboard:org-1:12", &got))
	assert.Equal(t, int64(4200), got.Total)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, c.GetJSON(ctx, "dashboard:org-1:12", &got), ErrCacheMiss)
}

func TestDeleteByPrefix(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("dashboard:org-1:6", "a"))
	require.NoError(t, mr.Set("dashboard:org-1:12", "b"))
	require.NoError(t, mr.Set("dashboard:org-2:12", "c"))

	n, err := c.DeleteByPrefix(ctx, "dashboard:org-1:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("dashboard:org-2:12"))
	assert.False(t, mr.Exists("dashboard:org-1:6"))
}

func TestPublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := c.Subscribe(ctx, "org-events:org-1")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, "org-events:org-1", map[string]string{"type": "invoice.sent"}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"invoice.sent"}`, msg.Payload)
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "://nope", nil)
	require.Error(t, err)
}

func TestWrap_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	c := Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), nil)
	defer c.Close()
	require.NoError(t, c.Ping(context.Background()))
}
