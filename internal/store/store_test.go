package store

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fixture struct {
	store *Store
	// advance moves the backend's notion of time forward.
	advance func(d time.Duration)
}

// fixtures returns one fixture per backend so every semantic test runs
// against both.
func fixtures(t *testing.T) map[string]fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	redisStore := New(context.Background(), client, testLogger())
	require.True(t, redisStore.Durable(), "redis store should start durable")

	memStore := NewMemory(testLogger())
	mem := memStore.backend.(*memoryBackend)
	base := time.Now()
	offset := time.Duration(0)
	mem.now = func() time.Time { return base.Add(offset) }

	return map[string]fixture{
		"redis":  {store: redisStore, advance: func(d time.Duration) { mr.FastForward(d) }},
		"memory": {store: memStore, advance: func(d time.Duration) { offset += d }},
	}
}

func TestStore_CodeLifecycle(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, _, err := fx.store.GetCode(ctx, "+8613800138000")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, fx.store.SetCode(ctx, "+8613800138000", "123456", time.Minute))

			code, remaining, err := fx.store.GetCode(ctx, "+8613800138000")
			require.NoError(t, err)
			assert.Equal(t, "123456", code)
			assert.Greater(t, remaining, 50*time.Second)
			assert.LessOrEqual(t, remaining, time.Minute)

			require.NoError(t, fx.store.DeleteCode(ctx, "+8613800138000"))
			_, _, err = fx.store.GetCode(ctx, "+8613800138000")
			require.ErrorIs(t, err, ErrNotFound)

			// Deleting again is a no-op.
			require.NoError(t, fx.store.DeleteCode(ctx, "+8613800138000"))
		})
	}
}

func TestStore_SetCodeSupersedes(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, fx.store.SetCode(ctx, "+8613800138000", "111111", time.Minute))
			require.NoError(t, fx.store.SetCode(ctx, "+8613800138000", "222222", time.Minute))

			ok, err := fx.store.ConsumeCode(ctx, "+8613800138000", "111111")
			require.NoError(t, err)
			assert.False(t, ok, "superseded code must be unverifiable")

			ok, err = fx.store.ConsumeCode(ctx, "+8613800138000", "222222")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStore_CodeExpiry(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, fx.store.SetCode(ctx, "+8613800138000", "123456", time.Minute))
			fx.advance(61 * time.Second)

			_, _, err := fx.store.GetCode(ctx, "+8613800138000")
			require.ErrorIs(t, err, ErrNotFound)

			ok, err := fx.store.ConsumeCode(ctx, "+8613800138000", "123456")
			require.NoError(t, err)
			assert.False(t, ok, "expired code must not be consumable")
		})
	}
}

func TestStore_ConsumeCode(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, fx.store.SetCode(ctx, "+8613800138000", "123456", time.Minute))

			ok, err := fx.store.ConsumeCode(ctx, "+8613800138000", "654321")
			require.NoError(t, err)
			assert.False(t, ok, "mismatch must not consume the code")

			code, _, err := fx.store.GetCode(ctx, "+8613800138000")
			require.NoError(t, err)
			assert.Equal(t, "123456", code, "mismatch must leave the code in place")

			ok, err = fx.store.ConsumeCode(ctx, "+8613800138000", "123456")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = fx.store.ConsumeCode(ctx, "+8613800138000", "123456")
			require.NoError(t, err)
			assert.False(t, ok, "a code is consumable exactly once")
		})
	}
}

func TestStore_TryAcquireResend(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := fx.store.TryAcquireResend(ctx, "+8613800138000", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "first acquisition should succeed")

			ok, err = fx.store.TryAcquireResend(ctx, "+8613800138000", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok, "second acquisition within the cooldown should fail")

			// A different phone is unaffected.
			ok, err = fx.store.TryAcquireResend(ctx, "+8613900139000", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			fx.advance(61 * time.Second)

			ok, err = fx.store.TryAcquireResend(ctx, "+8613800138000", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "acquisition should succeed after the cooldown expires")
		})
	}
}

func TestStore_Attempts(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			n, err := fx.store.GetAttempts(ctx, "+8613800138000")
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			for i := 1; i <= 3; i++ {
				n, err = fx.store.IncrementAttempts(ctx, "+8613800138000", time.Minute)
				require.NoError(t, err)
				assert.Equal(t, i, n)
			}

			n, err = fx.store.GetAttempts(ctx, "+8613800138000")
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			fx.advance(61 * time.Second)

			n, err = fx.store.GetAttempts(ctx, "+8613800138000")
			require.NoError(t, err)
			assert.Equal(t, 0, n, "counter should reset when the window expires")
		})
	}
}

func TestStore_AttemptWindowKeepsOriginalExpiry(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := fx.store.IncrementAttempts(ctx, "+8613800138000", time.Minute)
			require.NoError(t, err)

			fx.advance(40 * time.Second)

			// A later increment must not extend the window.
			_, err = fx.store.IncrementAttempts(ctx, "+8613800138000", time.Minute)
			require.NoError(t, err)

			fx.advance(21 * time.Second)

			n, err := fx.store.GetAttempts(ctx, "+8613800138000")
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestStore_SetCodeClearsAttempts(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, fx.store.SetCode(ctx, "+8613800138000", "111111", time.Minute))
			_, err := fx.store.IncrementAttempts(ctx, "+8613800138000", time.Minute)
			require.NoError(t, err)

			require.NoError(t, fx.store.SetCode(ctx, "+8613800138000", "222222", time.Minute))

			n, err := fx.store.GetAttempts(ctx, "+8613800138000")
			require.NoError(t, err)
			assert.Equal(t, 0, n, "a fresh code starts with a fresh budget")
		})
	}
}

func TestStore_ConcurrentAcquireAndConsume(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var wg sync.WaitGroup
			acquired := make(chan bool, 16)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := fx.store.TryAcquireResend(ctx, "+8613812345678", time.Minute)
					assert.NoError(t, err)
					acquired <- ok
				}()
			}
			wg.Wait()
			close(acquired)

			wins := 0
			for ok := range acquired {
				if ok {
					wins++
				}
			}
			assert.Equal(t, 1, wins, "exactly one concurrent caller may acquire the cooldown")

			require.NoError(t, fx.store.SetCode(ctx, "+8613812345678", "123456", time.Minute))

			consumed := make(chan bool, 16)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := fx.store.ConsumeCode(ctx, "+8613812345678", "123456")
					assert.NoError(t, err)
					consumed <- ok
				}()
			}
			wg.Wait()
			close(consumed)

			wins = 0
			for ok := range consumed {
				if ok {
					wins++
				}
			}
			assert.Equal(t, 1, wins, "exactly one concurrent caller may consume the code")
		})
	}
}

func TestStore_FallbackOnInitFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	s := New(context.Background(), client, testLogger())
	assert.False(t, s.Durable(), "store should start on the fallback when Redis is down")

	ctx := context.Background()
	require.NoError(t, s.SetCode(ctx, "+8613800138000", "123456", time.Minute))
	code, _, err := s.GetCode(ctx, "+8613800138000")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)
}

func TestStore_FallbackOnTransportError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := New(context.Background(), client, testLogger())
	require.True(t, s.Durable())

	ctx := context.Background()
	require.NoError(t, s.SetCode(ctx, "+8613800138000", "123456", time.Minute))

	mr.Close()

	// The failed operation is replayed on the fallback; the caller never
	// sees the transport error.
	require.NoError(t, s.SetCode(ctx, "+8613800138000", "654321", time.Minute))
	assert.False(t, s.Durable())

	code, _, err := s.GetCode(ctx, "+8613800138000")
	require.NoError(t, err)
	assert.Equal(t, "654321", code)
}

func TestStore_NotFoundDoesNotDegrade(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := New(context.Background(), client, testLogger())

	_, _, err := s.GetCode(context.Background(), "+8613800138000")
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, s.Durable(), "an absent key is not a transport failure")
}
