package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"notes-ai-jobs/internal/domain"
)

type fakeEntry struct {
	val       string
	expiresAt time.Time // zero = no expiry
}

// fakeRedis is an in-memory RedisClient with a controllable clock.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]fakeEntry
	now  time.Time
	err  error // returned by every command when set

	lastTTL map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		data:    map[string]fakeEntry{},
		now:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		lastTTL: map[string]time.Duration{},
	}
}

func (f *fakeRedis) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fakeRedis) live(key string) (fakeEntry, bool) {
	e, ok := f.data[key]
	if !ok {
		return e, false
	}
	if !e.expiresAt.IsZero() && !f.now.Before(e.expiresAt) {
		delete(f.data, key)
		return e, false
	}
	return e, true
}

func (f *fakeRedis) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return f.now.Add(ttl)
}

func (f *fakeRedis) Ping(context.Context) error { return f.err }

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.data[key] = fakeEntry{val: fmt.Sprint(value), expiresAt: f.expiry(ttl)}
	f.lastTTL[key] = ttl
	return nil
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	e, ok := f.live(key)
	if !ok {
		return "", domain.ErrNotFound
	}
	return e.val, nil
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.live(key); ok {
		return false, nil
	}
	f.data[key] = fakeEntry{val: fmt.Sprint(value), expiresAt: f.expiry(ttl)}
	return true, nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) IncrWithExpiry(_ context.Context, key string, window time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	e, ok := f.live(key)
	n := int64(0)
	if ok {
		n, _ = strconv.ParseInt(e.val, 10, 64)
	}
	n++
	if n == 1 {
		e.expiresAt = f.expiry(window)
		f.lastTTL[key] = window
	}
	e.val = strconv.FormatInt(n, 10)
	f.data[key] = e
	return n, nil
}

func (f *fakeRedis) DelIfEquals(_ context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	e, ok := f.live(key)
	if !ok || e.val != value {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func (f *fakeRedis) Close() error { return nil }
