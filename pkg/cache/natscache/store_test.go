package natscache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/plaenen/shopcore/pkg/cache"
	"github.com/plaenen/shopcore/pkg/cache/cachetest"
	"github.com/plaenen/shopcore/pkg/cache/natscache"
	"github.com/plaenen/shopcore/pkg/natsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startJetStream(t *testing.T) nats.JetStreamContext {
	t.Helper()
	srv, err := natsutil.StartEmbeddedServer(natsutil.WithStoreDir(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	nc, err := srv.Connect()
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := nc.JetStream()
	require.NoError(t, err)
	return js
}

func TestStore(t *testing.T) {
	js := startJetStream(t)
	bucket := 0

	cachetest.Run(t, func(t *testing.T, clock *cachetest.Clock) cache.TagAware {
		bucket++
		codec, err := cache.NewCBORCodec(cachetest.Registry())
		require.NoError(t, err)

		store, err := natscache.New(js, fmt.Sprintf("cache_%d", bucket), codec,
			natscache.WithMemoryStorage(),
			natscache.WithClock(clock.Now),
		)
		require.NoError(t, err)
		return store
	})
}

func TestStoreRecovery(t *testing.T) {
	js := startJetStream(t)
	bucket := 0

	cachetest.RunRecovery(t, func(t *testing.T, writerTypes, readerTypes *cache.TypeRegistry) (cache.TagAware, cache.TagAware) {
		bucket++
		name := fmt.Sprintf("recovery_%d", bucket)
		open := func(types *cache.TypeRegistry) cache.TagAware {
			codec, err := cache.NewCBORCodec(types)
			require.NoError(t, err)
			store, err := natscache.New(js, name, codec, natscache.WithMemoryStorage())
			require.NoError(t, err)
			return store
		}
		return open(writerTypes), open(readerTypes)
	})
}

func TestStoreCorruptRecord(t *testing.T) {
	ctx := context.Background()
	js := startJetStream(t)
	store, err := natscache.New(js, "corrupt", cache.NewJSONCodec(cachetest.Registry()), natscache.WithMemoryStorage())
	require.NoError(t, err)

	kv, err := js.KeyValue("corrupt")
	require.NoError(t, err)
	_, err = kv.Put("entry.k", []byte("not cbor"))
	require.NoError(t, err)

	removed, err := store.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = kv.Put("entry.k", []byte("not cbor"))
	require.NoError(t, err)
	got, err := store.Get(ctx, "k", time.Hour, nil, func(ctx context.Context) (any, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)
}

func TestStoreReplicas(t *testing.T) {
	js := startJetStream(t)
	_, err := natscache.New(js, "replicated", cache.NewJSONCodec(cachetest.Registry()),
		natscache.WithMemoryStorage(),
		natscache.WithReplicas(1),
	)
	require.NoError(t, err)

	info, err := js.StreamInfo("KV_replicated")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Config.Replicas)
	assert.Equal(t, nats.MemoryStorage, info.Config.Storage)
}

func TestStoreKeys(t *testing.T) {
	ctx := context.Background()
	js := startJetStream(t)
	store, err := natscache.New(js, "keys", cache.NewJSONCodec(cachetest.Registry()), natscache.WithMemoryStorage())
	require.NoError(t, err)

	calls := 0
	compute := func(ctx context.Context) (any, error) {
		calls++
		return "v", nil
	}

	// Keys with characters outside the KV alphabet are hashed.
	for i := 0; i < 2; i++ {
		_, err := store.Get(ctx, "users:list?page=1 ", time.Hour, []string{"users list"}, compute)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

func TestStoreSharedBetweenClients(t *testing.T) {
	ctx := context.Background()
	js := startJetStream(t)
	codec := cache.NewJSONCodec(cachetest.Registry())

	a, err := natscache.New(js, "shared", codec)
	require.NoError(t, err)
	b, err := natscache.New(js, "shared", codec)
	require.NoError(t, err)

	calls := 0
	compute := func(ctx context.Context) (any, error) {
		calls++
		return cachetest.Item{ID: "o1"}, nil
	}

	_, err = a.Get(ctx, "order_o1", time.Hour, []string{"order_o1"}, compute)
	require.NoError(t, err)
	got, err := b.Get(ctx, "order_o1", time.Hour, []string{"order_o1"}, compute)
	require.NoError(t, err)
	assert.Equal(t, cachetest.Item{ID: "o1"}, got)
	assert.Equal(t, 1, calls)

	require.NoError(t, b.InvalidateTags(ctx, "order_o1"))
	_, err = a.Get(ctx, "order_o1", time.Hour, []string{"order_o1"}, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestConcurrentInvalidation(t *testing.T) {
	ctx := context.Background()
	js := startJetStream(t)
	codec := cache.NewJSONCodec(cachetest.Registry())
	store, err := natscache.New(js, "cas", codec, natscache.WithMemoryStorage())
	require.NoError(t, err)

	calls := 0
	compute := func(ctx context.Context) (any, error) {
		calls++
		return "v", nil
	}
	_, err = store.Get(ctx, "k", time.Hour, []string{"hot"}, compute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.InvalidateTags(ctx, "hot"))
		}()
	}
	wg.Wait()

	_, err = store.Get(ctx, "k", time.Hour, []string{"hot"}, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
