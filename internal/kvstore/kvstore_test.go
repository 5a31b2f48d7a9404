package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sensorhub/sensorhub/pkg/log"
)

func newKV(t *testing.T) (KVStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	testLog := log.InitLogs()
	testLog.SetLevel(logrus.ErrorLevel)

	kv := NewKVStoreWithClient(testLog, client)
	t.Cleanup(func() { _ = kv.Close() })
	return kv, mr
}

func TestKVStoreRoundTrip(t *testing.T) {
	require := require.New(t)
	kv, _ := newKV(t)
	ctx := context.Background()

	val, err := kv.Get(ctx, "missing")
	require.NoError(err)
	require.Nil(val)

	require.NoError(kv.Set(ctx, "greeting", []byte("hello"), 0))
	val, err = kv.Get(ctx, "greeting")
	require.NoError(err)
	require.Equal([]byte("hello"), val)

	exists, err := kv.Exists(ctx, "greeting")
	require.NoError(err)
	require.True(exists)

	require.NoError(kv.Delete(ctx, "greeting"))
	val, err = kv.Get(ctx, "greeting")
	require.NoError(err)
	require.Nil(val)
}

func TestKVStoreSetNX(t *testing.T) {
	require := require.New(t)
	kv, mr := newKV(t)
	ctx := context.Background()

	ok, err := kv.SetNX(ctx, "once", []byte("first"), 1*time.Second)
	require.NoError(err)
	require.True(ok)

	ok, err = kv.SetNX(ctx, "once", []byte("second"), 1*time.Second)
	require.NoError(err)
	require.False(ok)

	val, err := kv.Get(ctx, "once")
	require.NoError(err)
	require.Equal([]byte("first"), val)

	mr.FastForward(2 * time.Second)

	ok, err = kv.SetNX(ctx, "once", []byte("second"), 1*time.Second)
	require.NoError(err)
	require.True(ok)
}

func TestKVStoreExpire(t *testing.T) {
	require := require.New(t)
	kv, mr := newKV(t)
	ctx := context.Background()

	require.NoError(kv.Set(ctx, "transient", []byte("x"), 0))
	require.NoError(kv.Expire(ctx, "transient", 1*time.Second))

	mr.FastForward(2 * time.Second)

	exists, err := kv.Exists(ctx, "transient")
	require.NoError(err)
	require.False(exists)
}

func TestKVStoreCounters(t *testing.T) {
	require := require.New(t)
	kv, _ := newKV(t)
	ctx := context.Background()

	n, err := kv.Incr(ctx, "counter")
	require.NoError(err)
	require.Equal(int64(1), n)

	n, err = kv.IncrBy(ctx, "counter", 5)
	require.NoError(err)
	require.Equal(int64(6), n)
}

func TestKVStoreSortedSets(t *testing.T) {
	require := require.New(t)
	kv, _ := newKV(t)
	ctx := context.Background()

	require.NoError(kv.ZAdd(ctx, "scores", 10, "low"))
	require.NoError(kv.ZAdd(ctx, "scores", 20, "mid"))
	require.NoError(kv.ZAdd(ctx, "scores", 30, "high"))

	members, err := kv.ZRange(ctx, "scores", 0, -1)
	require.NoError(err)
	require.Equal([]string{"low", "mid", "high"}, members)

	members, err = kv.ZRangeByScore(ctx, "scores", "15", "+inf", 0, 10)
	require.NoError(err)
	require.Equal([]string{"mid", "high"}, members)

	require.NoError(kv.ZRemRangeByScore(ctx, "scores", "-inf", "15"))
	count, err := kv.ZCard(ctx, "scores")
	require.NoError(err)
	require.Equal(int64(2), count)
}

func TestKVStoreSets(t *testing.T) {
	require := require.New(t)
	kv, _ := newKV(t)
	ctx := context.Background()

	require.NoError(kv.SAdd(ctx, "members", "a", "b", "c"))

	members, err := kv.SMembers(ctx, "members")
	require.NoError(err)
	require.ElementsMatch([]string{"a", "b", "c"}, members)

	require.NoError(kv.SRem(ctx, "members", "b"))
	count, err := kv.SCard(ctx, "members")
	require.NoError(err)
	require.Equal(int64(2), count)
}

func TestKVStoreKeysUsesScan(t *testing.T) {
	require := require.New(t)
	kv, _ := newKV(t)
	ctx := context.Background()

	require.NoError(kv.Set(ctx, "device:1", []byte("a"), 0))
	require.NoError(kv.Set(ctx, "device:2", []byte("b"), 0))
	require.NoError(kv.Set(ctx, "alert:1", []byte("c"), 0))

	keys, err := kv.Keys(ctx, "device:*")
	require.NoError(err)
	require.ElementsMatch([]string{"device:1", "device:2"}, keys)
}

func TestKVStoreEval(t *testing.T) {
	require := require.New(t)
	kv, _ := newKV(t)
	ctx := context.Background()

	result, err := kv.Eval(ctx, `redis.call('set', KEYS[1], ARGV[1]); return 1`, []string{"scripted"}, "value")
	require.NoError(err)
	require.EqualValues(1, result)

	val, err := kv.Get(ctx, "scripted")
	require.NoError(err)
	require.Equal([]byte("value"), val)
}

func TestKVStoreTxPipelined(t *testing.T) {
	require := require.New(t)
	kv, _ := newKV(t)
	ctx := context.Background()

	err := kv.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, "tx:1", "a", 0)
		pipe.Set(ctx, "tx:2", "b", 0)
		return nil
	})
	require.NoError(err)

	val, err := kv.Get(ctx, "tx:1")
	require.NoError(err)
	require.Equal([]byte("a"), val)
	val, err = kv.Get(ctx, "tx:2")
	require.NoError(err)
	require.Equal([]byte("b"), val)
}
