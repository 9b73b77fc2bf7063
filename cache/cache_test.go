package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

func TestMemoryRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	var got snapshot
	ok, err := m.Get(ctx, "feed", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "feed", snapshot{Count: 2, IDs: []string{"a", "b"}}, time.Minute))
	ok, err = m.Get(ctx, "feed", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, snapshot{Count: 2, IDs: []string{"a", "b"}}, got)

	now = now.Add(time.Minute)
	ok, err = m.Get(ctx, "feed", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryWithoutTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "k", 7, 0))

	var v int
	ok, err := m.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	var wrong []string
	_, err = m.Get(ctx, "k", &wrong)
	assert.Error(t, err)
	assert.NoError(t, m.Close())
}

func TestNewRedisRequiresAddress(t *testing.T) {
	_, err := NewRedis(context.Background(), " , ")
	assert.Error(t, err)
}

func TestRedisRoundTripAndMiss(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	r, err := NewRedis(ctx, mr.Addr())
	require.NoError(t, err)
	defer r.Close()

	var got snapshot
	ok, err := r.Get(ctx, "feed:10", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "feed:10", snapshot{Count: 1, IDs: []string{"XYZ_20260302_100000"}}, time.Minute))
	assert.True(t, mr.Exists("aegis:feed:10"))

	ok, err = r.Get(ctx, "feed:10", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, snapshot{Count: 1, IDs: []string{"XYZ_20260302_100000"}}, got)

	mr.FastForward(2 * time.Minute)
	ok, err = r.Get(ctx, "feed:10", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisErrors(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	r := NewRedisWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	defer r.Close()

	require.NoError(t, mr.Set("aegis:bad", "not json"))
	var got snapshot
	_, err := r.Get(ctx, "bad", &got)
	assert.Error(t, err)

	mr.SetError("server down")
	_, err = r.Get(ctx, "bad", &got)
	assert.Error(t, err)
}
