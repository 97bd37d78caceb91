package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// memoryBackend emulates the Redis semantics with a single mutex-guarded
// map. Expiry is checked on access rather than with per-key timers, so key
// churn never accumulates pending callbacks. A single critical section
// around every operation gives the same per-phone atomicity the Redis
// primitives provide.
type memoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// get returns the live entry for key, dropping it if past expiry.
// Callers must hold mu.
func (b *memoryBackend) get(key string) (memoryEntry, bool) {
	entry, ok := b.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if b.now().After(entry.expiresAt) {
		delete(b.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (b *memoryBackend) SetCode(_ context.Context, phone, code string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[codeKey(phone)] = memoryEntry{value: code, expiresAt: b.now().Add(ttl)}
	delete(b.entries, attemptsKey(phone))
	return nil
}

func (b *memoryBackend) GetCode(_ context.Context, phone string) (string, time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.get(codeKey(phone))
	if !ok {
		return "", 0, ErrNotFound
	}
	return entry.value, entry.expiresAt.Sub(b.now()), nil
}

func (b *memoryBackend) DeleteCode(_ context.Context, phone string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, codeKey(phone))
	return nil
}

func (b *memoryBackend) ConsumeCode(_ context.Context, phone, code string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.get(codeKey(phone))
	if !ok || entry.value != code {
		return false, nil
	}
	delete(b.entries, codeKey(phone))
	return true, nil
}

func (b *memoryBackend) TryAcquireResend(_ context.Context, phone string, cooldown time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.get(resendKey(phone)); ok {
		return false, nil
	}
	b.entries[resendKey(phone)] = memoryEntry{value: "1", expiresAt: b.now().Add(cooldown)}
	return true, nil
}

func (b *memoryBackend) GetAttempts(_ context.Context, phone string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.get(attemptsKey(phone))
	if !ok {
		return 0, nil
	}
	return strconv.Atoi(entry.value)
}

func (b *memoryBackend) IncrementAttempts(_ context.Context, phone string, ttl time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.get(attemptsKey(phone))
	if !ok {
		if ttl <= 0 {
			ttl = time.Second
		}
		b.entries[attemptsKey(phone)] = memoryEntry{value: "1", expiresAt: b.now().Add(ttl)}
		return 1, nil
	}

	count, err := strconv.Atoi(entry.value)
	if err != nil {
		return 0, err
	}
	count++
	// The window keeps its original expiry; only the count moves.
	b.entries[attemptsKey(phone)] = memoryEntry{value: strconv.Itoa(count), expiresAt: entry.expiresAt}
	return count, nil
}
