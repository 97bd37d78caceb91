package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a register is absent or has expired.
var ErrNotFound = errors.New("otp store: key not found")

// backend is the set of operations both the Redis and the in-memory
// implementations provide. All operations are keyed by canonical phone
// number; the three registers (code, resend marker, attempt counter) are
// namespaced internally so they never collide.
type backend interface {
	SetCode(ctx context.Context, phone, code string, ttl time.Duration) error
	GetCode(ctx context.Context, phone string) (string, time.Duration, error)
	DeleteCode(ctx context.Context, phone string) error
	ConsumeCode(ctx context.Context, phone, code string) (bool, error)
	TryAcquireResend(ctx context.Context, phone string, cooldown time.Duration) (bool, error)
	GetAttempts(ctx context.Context, phone string) (int, error)
	IncrementAttempts(ctx context.Context, phone string, ttl time.Duration) (int, error)
}

func codeKey(phone string) string     { return "sms:code:" + phone }
func resendKey(phone string) string   { return "sms:resend:" + phone }
func attemptsKey(phone string) string { return "sms:attempts:" + phone }

// Store is the OTP register store. It prefers a shared Redis backend and
// degrades to a process-local in-memory backend when Redis is unreachable,
// at construction or mid-flight. Both backends honor the same atomicity
// and expiry semantics; fallback data does not survive a restart and is
// not shared across instances.
type Store struct {
	logger *logrus.Logger

	mu      sync.RWMutex
	backend backend
	durable bool
}

// New builds a Store backed by client. The backend is selected once, here:
// if the initial ping fails the store starts on the in-memory fallback.
func New(ctx context.Context, client *redis.Client, logger *logrus.Logger) *Store {
	s := &Store{logger: logger}

	if client != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err == nil {
			s.backend = &redisBackend{client: client}
			s.durable = true
			return s
		} else {
			logger.WithError(err).Warn("Redis unreachable, starting on in-memory OTP store")
		}
	}

	s.backend = newMemoryBackend()
	return s
}

// NewMemory builds a Store on the in-memory backend only. Used by the
// durable-less degraded mode and by tests.
func NewMemory(logger *logrus.Logger) *Store {
	return &Store{logger: logger, backend: newMemoryBackend()}
}

// Durable reports whether the store is still on the shared Redis backend.
func (s *Store) Durable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.durable
}

func (s *Store) current() (backend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend, s.durable
}

// degrade swaps the store onto the in-memory backend. Transport failures
// on the durable backend are absorbed here rather than surfaced to callers.
func (s *Store) degrade(cause error) backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.durable {
		s.logger.WithError(cause).Warn("Durable OTP store failed, degrading to in-memory fallback")
		s.backend = newMemoryBackend()
		s.durable = false
	}
	return s.backend
}

// failover reports whether err warrants swapping backends. Absent keys and
// caller cancellation are not transport failures.
func failover(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// SetCode stores the one-time code for phone with expiry ttl, superseding
// any existing code. The attempt counter for phone is cleared in the same
// operation so a stale budget never throttles a fresh code.
func (s *Store) SetCode(ctx context.Context, phone, code string, ttl time.Duration) error {
	b, durable := s.current()
	err := b.SetCode(ctx, phone, code, ttl)
	if durable && failover(err) {
		return s.degrade(err).SetCode(ctx, phone, code, ttl)
	}
	return err
}

// GetCode returns the live code for phone and its remaining lifetime, or
// ErrNotFound after expiry or deletion.
func (s *Store) GetCode(ctx context.Context, phone string) (string, time.Duration, error) {
	b, durable := s.current()
	code, remaining, err := b.GetCode(ctx, phone)
	if durable && failover(err) {
		return s.degrade(err).GetCode(ctx, phone)
	}
	return code, remaining, err
}

// DeleteCode removes the code for phone. Idempotent.
func (s *Store) DeleteCode(ctx context.Context, phone string) error {
	b, durable := s.current()
	err := b.DeleteCode(ctx, phone)
	if durable && failover(err) {
		return s.degrade(err).DeleteCode(ctx, phone)
	}
	return err
}

// ConsumeCode atomically deletes the stored code for phone if it equals
// supplied, reporting whether it did. At most one of any number of
// concurrent callers observes true for a given code.
func (s *Store) ConsumeCode(ctx context.Context, phone, supplied string) (bool, error) {
	b, durable := s.current()
	ok, err := b.ConsumeCode(ctx, phone, supplied)
	if durable && failover(err) {
		return s.degrade(err).ConsumeCode(ctx, phone, supplied)
	}
	return ok, err
}

// TryAcquireResend atomically creates the resend-cooldown marker for phone
// if absent, with expiry cooldown, and reports whether it was created.
// Exactly one of any number of concurrent callers acquires the marker.
func (s *Store) TryAcquireResend(ctx context.Context, phone string, cooldown time.Duration) (bool, error) {
	b, durable := s.current()
	ok, err := b.TryAcquireResend(ctx, phone, cooldown)
	if durable && failover(err) {
		return s.degrade(err).TryAcquireResend(ctx, phone, cooldown)
	}
	return ok, err
}

// GetAttempts returns the failed-verification count for phone, 0 when the
// counter is absent or expired.
func (s *Store) GetAttempts(ctx context.Context, phone string) (int, error) {
	b, durable := s.current()
	n, err := b.GetAttempts(ctx, phone)
	if durable && failover(err) {
		return s.degrade(err).GetAttempts(ctx, phone)
	}
	return n, err
}

// IncrementAttempts atomically increments the failed-verification counter
// for phone and returns the new count. The first increment sets expiry ttl,
// which callers pass as the remaining lifetime of the code the counter
// guards, so the budget resets exactly when the code does.
func (s *Store) IncrementAttempts(ctx context.Context, phone string, ttl time.Duration) (int, error) {
	b, durable := s.current()
	n, err := b.IncrementAttempts(ctx, phone, ttl)
	if durable && failover(err) {
		return s.degrade(err).IncrementAttempts(ctx, phone, ttl)
	}
	return n, err
}
