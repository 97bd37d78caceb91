package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript deletes the code key only when its value equals the
// supplied code, making compare-then-delete a single atomic step on the
// server.
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisBackend struct {
	client *redis.Client
}

func (b *redisBackend) SetCode(ctx context.Context, phone, code string, ttl time.Duration) error {
	// The code and the attempts register change together so a new code
	// window always starts with a fresh budget.
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, codeKey(phone), code, ttl)
		pipe.Del(ctx, attemptsKey(phone))
		return nil
	})
	return err
}

func (b *redisBackend) GetCode(ctx context.Context, phone string) (string, time.Duration, error) {
	pipe := b.client.Pipeline()
	getCmd := pipe.Get(ctx, codeKey(phone))
	ttlCmd := pipe.PTTL(ctx, codeKey(phone))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return "", 0, err
	}

	code, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, err
	}

	remaining := ttlCmd.Val()
	if remaining < 0 {
		remaining = 0
	}
	return code, remaining, nil
}

func (b *redisBackend) DeleteCode(ctx context.Context, phone string) error {
	return b.client.Del(ctx, codeKey(phone)).Err()
}

func (b *redisBackend) ConsumeCode(ctx context.Context, phone, code string) (bool, error) {
	deleted, err := consumeScript.Run(ctx, b.client, []string{codeKey(phone)}, code).Int()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}

func (b *redisBackend) TryAcquireResend(ctx context.Context, phone string, cooldown time.Duration) (bool, error) {
	return b.client.SetNX(ctx, resendKey(phone), "1", cooldown).Result()
}

func (b *redisBackend) GetAttempts(ctx context.Context, phone string) (int, error) {
	val, err := b.client.Get(ctx, attemptsKey(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

func (b *redisBackend) IncrementAttempts(ctx context.Context, phone string, ttl time.Duration) (int, error) {
	count, err := b.client.Incr(ctx, attemptsKey(phone)).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if ttl <= 0 {
			ttl = time.Second
		}
		if err := b.client.Expire(ctx, attemptsKey(phone), ttl).Err(); err != nil {
			return int(count), err
		}
	}
	return int(count), nil
}
