package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our owner token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLock is a SET NX lock with a TTL. The TTL bounds how long a crashed
// importer can block others; the owner token stops a slow importer from
// deleting a lock that already expired and was taken by someone else.
type RedisLock struct {
	client redis.Cmdable
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLock returns an unacquired lock on "lock:<key>".
func NewRedisLock(client redis.Cmdable, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    "lock:" + key,
		owner:  ownerToken(),
		ttl:    ttl,
	}
}

// ownerToken is "<host>:<pid>:<random>" so a stuck lock can be traced to the
// process that took it.
func ownerToken() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), hex.EncodeToString(b))
}

// Acquire tries to take the lock without waiting.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return ok, nil
}

// Release deletes the lock if this instance still owns it. Releasing a lock
// that expired or belongs to another owner is a no-op.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

// Holder returns the owner token of whoever currently holds the lock, or ""
// when it is free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	v, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}
