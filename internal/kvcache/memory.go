package kvcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"
)

// DefaultMemorySize bounds the in-process cache when no size is configured.
const DefaultMemorySize = 64

// Memory is an in-process LRU cache with per-entry expiry.
type Memory struct {
	c gcache.Cache
}

// NewMemory builds an LRU cache holding at most size entries. A nil clock
// uses wall time; tests pass gcache.NewFakeClock().
func NewMemory(size int, clock gcache.Clock) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	if clock == nil {
		clock = gcache.NewRealClock()
	}
	return &Memory{c: gcache.New(size).LRU().Clock(clock).Build()}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := m.c.Get(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

// Set stores a private copy of value so later mutation by the caller does
// not leak into the cache.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := append([]byte(nil), value...)
	var err error
	if ttl > 0 {
		err = m.c.SetWithExpire(key, buf, ttl)
	} else {
		err = m.c.Set(key, buf)
	}
	if err != nil {
		return fmt.Errorf("%w: set %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (m *Memory) Close() error {
	m.c.Purge()
	return nil
}
