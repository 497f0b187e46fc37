package redis

import (
	"context"
	"encoding/json"
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
	c, err := NewClientWithOptions(&goredis.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestClient_Hash(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "roster", "p1", "alice", "p2", "bob"))
	require.NoError(t, c.Expire(ctx, "roster", time.Hour))

	n, err := c.HLen(ctx, "roster")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	v, err := c.HGet(ctx, "roster", "p1")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	_, err = c.HGet(ctx, "roster", "p3")
	assert.ErrorIs(t, err, Nil)

	require.NoError(t, c.HDel(ctx, "roster", "p1"))
	all, err := c.HGetAll(ctx, "roster")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"p2": "bob"}, all)
	assert.Equal(t, time.Hour, mr.TTL("roster"))

	require.NoError(t, c.Delete(ctx, "roster"))
	assert.False(t, mr.Exists("roster"))
}

func TestClient_PublishPSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	sub := c.PSubscribe(ctx, "session:*:frames")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, "session:abc:frames", map[string]string{"hello": "world"}))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "session:abc:frames", msg.Channel)
		var got map[string]string
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "world", got["hello"])
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestNewClientWithOptions_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClientWithOptions(&goredis.Options{Addr: addr, MaxRetries: -1})
	assert.Error(t, err)
}
