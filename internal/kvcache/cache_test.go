package kvcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bluele/gcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4, nil)
	defer m.Close()

	require.NoError(t, m.Set(ctx, "feed", []byte("payload"), time.Minute))
	got, ok, err := m.Get(ctx, "feed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}

func TestMemory_Miss(t *testing.T) {
	m := NewMemory(4, nil)
	got, ok, err := m.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := gcache.NewFakeClock()
	m := NewMemory(4, clock)

	require.NoError(t, m.Set(ctx, "feed", []byte("v"), 30*time.Second))

	clock.Advance(29 * time.Second)
	_, ok, err := m.Get(ctx, "feed")
	require.NoError(t, err)
	assert.True(t, ok, "present before TTL")

	clock.Advance(2 * time.Second)
	_, ok, err = m.Get(ctx, "feed")
	require.NoError(t, err)
	assert.False(t, ok, "expired after TTL")
}

func TestMemory_CopiesValue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4, nil)
	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'X'

	got, _, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), got)
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, nil)
	require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))
	_, _, _ = m.Get(ctx, "a")
	require.NoError(t, m.Set(ctx, "c", []byte("3"), 0))

	_, ok, _ := m.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "a")
	assert.True(t, ok)
}

func TestRedis_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	r, err := NewRedis(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer r.Close()

	_, ok, err := r.Get(ctx, "feed")
	require.NoError(t, err)
	assert.False(t, ok)

	payload := []byte{0x0a, 0x00, 0xff, 0x10}
	require.NoError(t, r.Set(ctx, "feed", payload, 30*time.Second))

	got, ok, err := r.Get(ctx, "feed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got)
	assert.Equal(t, 30*time.Second, mr.TTL("feed"))

	mr.FastForward(31 * time.Second)
	_, ok, err = r.Get(ctx, "feed")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_BackendDown(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	r, err := NewRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer r.Close()

	mr.Close()
	_, _, err = r.Get(ctx, "feed")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url://")
	assert.Error(t, err)
}
