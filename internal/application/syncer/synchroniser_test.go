package syncer

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverstf/internal/domain/server"
	"serverstf/internal/infrastructure/cache"
	"serverstf/internal/infrastructure/master"
	"serverstf/internal/shared/logger"
)

// nopLogger is a no-op logger for testing.
type nopLogger struct{}

func newNopLogger() logger.Interface { return &nopLogger{} }

func (l *nopLogger) Debugw(msg string, keysAndValues ...any) {}
func (l *nopLogger) Infow(msg string, keysAndValues ...any)  {}
func (l *nopLogger) Warnw(msg string, keysAndValues ...any)  {}
func (l *nopLogger) Errorw(msg string, keysAndValues ...any) {}
func (l *nopLogger) With(args ...any) logger.Interface       { return l }
func (l *nopLogger) Named(name string) logger.Interface      { return l }

// fakeMasterClient serves canned listings per region.
type fakeMasterClient struct {
	listings map[master.Region][]string
	err      error
}

func (c *fakeMasterClient) Servers(ctx context.Context, region master.Region, fn func(server.Address) error) error {
	if c.err != nil {
		return c.err
	}
	for _, raw := range c.listings[region] {
		if err := fn(server.MustParseAddress(raw)); err != nil {
			return err
		}
	}
	return nil
}

func setupTestCache(t *testing.T) (*cache.Cache, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.New(client, newNopLogger()), func() {
		client.Close()
		mr.Close()
	}
}

func TestSynchroniserRunOnce(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()
	ctx := context.Background()

	client := &fakeMasterClient{listings: map[master.Region][]string{
		master.RegionEU: {"192.0.2.1:27015", "192.0.2.2:27015"},
		master.RegionAS: {"192.0.2.2:27015", "198.51.100.7:27016"},
	}}

	s := New(c, client, []master.Region{master.RegionEU, master.RegionAS}, newNopLogger())
	added, err := s.RunOnce(ctx)
	require.NoError(t, err)
	// The address listed in both regions counts once.
	assert.Equal(t, 3, added)

	var all []string
	require.NoError(t, c.All(ctx, func(a server.Address) error {
		all = append(all, a.String())
		return nil
	}))
	assert.ElementsMatch(t, []string{"192.0.2.1:27015", "192.0.2.2:27015", "198.51.100.7:27016"}, all)
}

func TestSynchroniserRunOnceIsIdempotent(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()
	ctx := context.Background()

	client := &fakeMasterClient{listings: map[master.Region][]string{
		master.RegionEU: {"192.0.2.1:27015"},
	}}

	s := New(c, client, []master.Region{master.RegionEU}, newNopLogger())
	added, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestSynchroniserNeverRemovesServers(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()
	ctx := context.Background()

	old := server.MustParseAddress("203.0.113.9:27015")
	_, err := c.Ensure(ctx, old)
	require.NoError(t, err)

	client := &fakeMasterClient{listings: map[master.Region][]string{
		master.RegionEU: {"192.0.2.1:27015"},
	}}
	s := New(c, client, []master.Region{master.RegionEU}, newNopLogger())
	_, err = s.RunOnce(ctx)
	require.NoError(t, err)

	var all []string
	require.NoError(t, c.All(ctx, func(a server.Address) error {
		all = append(all, a.String())
		return nil
	}))
	assert.Contains(t, all, old.String())
}

func TestSynchroniserPropagatesMasterErrors(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()

	client := &fakeMasterClient{err: assert.AnError}
	s := New(c, client, []master.Region{master.RegionEU}, newNopLogger())
	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSynchroniserRunStopsOnCancel(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()

	client := &fakeMasterClient{listings: map[master.Region][]string{
		master.RegionEU: {"192.0.2.1:27015"},
	}}
	s := New(c, client, []master.Region{master.RegionEU}, newNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
