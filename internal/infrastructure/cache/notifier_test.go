package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverstf/internal/domain/server"
)

func TestNotifierServerEvents(t *testing.T) {
	cache, cleanup := setupTestCache(t)
	defer cleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr := server.MustParseAddress("192.0.2.1:27015")
	notifier := cache.Notifier()
	defer notifier.Close()
	require.NoError(t, notifier.WatchServer(ctx, addr))

	require.NoError(t, cache.Set(ctx, server.Status{Address: addr, Tags: server.NewTags()}))

	event, err := notifier.Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventServer, event.Kind)
	assert.Equal(t, addr, event.Address)
	assert.Empty(t, event.Tag)
}

func TestNotifierTagEvents(t *testing.T) {
	cache, cleanup := setupTestCache(t)
	defer cleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr := server.MustParseAddress("192.0.2.1:27015")
	notifier := cache.Notifier()
	defer notifier.Close()
	require.NoError(t, notifier.WatchTag(ctx, "tf2"))

	require.NoError(t, cache.Set(ctx, server.Status{Address: addr, Tags: server.NewTags("tf2")}))

	event, err := notifier.Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventTag, event.Kind)
	assert.Equal(t, addr, event.Address)
	assert.Equal(t, "tf2", event.Tag)
}

func TestNotifierTagEventsFireOnNewlyAppliedOnly(t *testing.T) {
	cache, cleanup := setupTestCache(t)
	defer cleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr := server.MustParseAddress("192.0.2.1:27015")
	require.NoError(t, cache.Set(ctx, server.Status{Address: addr, Tags: server.NewTags("tf2")}))

	notifier := cache.Notifier()
	defer notifier.Close()
	require.NoError(t, notifier.WatchTag(ctx, "tf2"))
	require.NoError(t, notifier.WatchTag(ctx, "full"))

	// tf2 is already applied; only the new tag notifies.
	require.NoError(t, cache.Set(ctx, server.Status{Address: addr, Tags: server.NewTags("tf2", "full")}))

	event, err := notifier.Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventTag, event.Kind)
	assert.Equal(t, "full", event.Tag)

	short, shortCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer shortCancel()
	_, err = notifier.Watch(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNotifierUnwatchStopsEvents(t *testing.T) {
	cache, cleanup := setupTestCache(t)
	defer cleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := server.MustParseAddress("192.0.2.1:27015")
	b := server.MustParseAddress("192.0.2.2:27015")
	notifier := cache.Notifier()
	defer notifier.Close()
	require.NoError(t, notifier.WatchServer(ctx, a))
	require.NoError(t, notifier.WatchServer(ctx, b))
	require.NoError(t, notifier.UnwatchServer(ctx, a))

	require.NoError(t, cache.Set(ctx, server.Status{Address: a, Tags: server.NewTags()}))
	require.NoError(t, cache.Set(ctx, server.Status{Address: b, Tags: server.NewTags()}))

	event, err := notifier.Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, event.Address)
}

func TestNotifierWatchWithoutWatchesBlocks(t *testing.T) {
	cache, cleanup := setupTestCache(t)
	defer cleanup()

	notifier := cache.Notifier()
	defer notifier.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := notifier.Watch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNotifierPublishMode(t *testing.T) {
	cache, cleanup := setupTestCache(t)
	defer cleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr := server.MustParseAddress("192.0.2.1:27015")
	watcher := cache.Notifier()
	defer watcher.Close()
	require.NoError(t, watcher.WatchServer(ctx, addr))
	require.NoError(t, watcher.WatchTag(ctx, "tf2"))

	publisher := cache.Notifier()
	defer publisher.Close()
	require.NoError(t, publisher.NotifyServer(ctx, addr))
	require.NoError(t, publisher.NotifyTag(ctx, "tf2", addr))

	event, err := watcher.Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventServer, event.Kind)
	assert.Equal(t, addr, event.Address)

	event, err = watcher.Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventTag, event.Kind)
	assert.Equal(t, "tf2", event.Tag)
}

func TestNotifierPublishAfterWatchRejected(t *testing.T) {
	cache, cleanup := setupTestCache(t)
	defer cleanup()
	ctx := context.Background()

	addr := server.MustParseAddress("192.0.2.1:27015")
	notifier := cache.Notifier()
	defer notifier.Close()
	require.NoError(t, notifier.WatchServer(ctx, addr))

	var nerr *NotifierError
	assert.ErrorAs(t, notifier.NotifyServer(ctx, addr), &nerr)
	assert.ErrorAs(t, notifier.NotifyTag(ctx, "tf2", addr), &nerr)
}

func TestNotifierClose(t *testing.T) {
	cache, cleanup := setupTestCache(t)
	defer cleanup()
	ctx := context.Background()

	addr := server.MustParseAddress("192.0.2.1:27015")
	notifier := cache.Notifier()
	require.NoError(t, notifier.WatchServer(ctx, addr))
	require.NoError(t, notifier.Close())
	require.NoError(t, notifier.Close())

	var nerr *NotifierError
	assert.ErrorAs(t, notifier.WatchServer(ctx, addr), &nerr)
	_, err := notifier.Watch(ctx)
	assert.ErrorAs(t, err, &nerr)
}
