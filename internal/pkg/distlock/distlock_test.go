package distlock

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLock_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)

	first := NewRedisLock(client, ImportKey("rtb_daily"), time.Minute)
	second := NewRedisLock(client, ImportKey("rtb_daily"), time.Minute)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:rtb-import:rtb_daily"))

	who, err := second.Holder(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.owner, who)
	host, _ := os.Hostname()
	assert.True(t, strings.HasPrefix(who, host+":"), who)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire a held lock")

	// Releasing a lock we don't own is a no-op.
	require.NoError(t, second.Release(ctx))
	assert.True(t, mr.Exists("lock:rtb-import:rtb_daily"))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("lock:rtb-import:rtb_daily"))
	who, err = first.Holder(ctx)
	require.NoError(t, err)
	assert.Empty(t, who)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)

	lock := NewRedisLock(client, ImportKey("rtb_funnel"), time.Minute)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	other := NewRedisLock(client, ImportKey("rtb_funnel"), time.Minute)
	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewLock_PicksBackend(t *testing.T) {
	_, client := setupRedis(t)
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.IsType(t, &RedisLock{}, NewLock(client, db, "k", time.Minute))
	assert.IsType(t, &PGAdvisoryLock{}, NewLock(nil, db, "k", time.Minute))
}

func TestPGAdvisoryLock_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lock := NewPGAdvisoryLock(db, ImportKey("rtb_quality"))

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(lock.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(lock.lockID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lock.Release(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_HeldElsewhere(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lock := NewPGAdvisoryLock(db, ImportKey("rtb_quality"))
	mock.ExpectQuery(`SELECT pg_try_advisory_lock`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Nothing pinned, so release issues no query.
	require.NoError(t, lock.Release(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_DeterministicID(t *testing.T) {
	a := NewPGAdvisoryLock(nil, ImportKey("rtb_daily"))
	b := NewPGAdvisoryLock(nil, ImportKey("rtb_daily"))
	c := NewPGAdvisoryLock(nil, ImportKey("rtb_funnel"))
	assert.Equal(t, a.lockID, b.lockID)
	assert.NotEqual(t, a.lockID, c.lockID)
}
