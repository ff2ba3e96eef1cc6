package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"serverstf/internal/domain/server"
	"serverstf/internal/infrastructure/cache"
	"serverstf/internal/infrastructure/telemetry"
	"serverstf/internal/shared/logger"
)

// outBuffer bounds the per-client outgoing queue. Queued-but-unsent
// messages are dropped on disconnect.
const outBuffer = 64

// client is one websocket session: its connection, its dedicated
// cache notifier and its subscription state.
type client struct {
	conn     *websocket.Conn
	cache    *cache.Cache
	notifier *cache.Notifier
	locator  server.Locator
	metrics  *telemetry.Metrics
	log      logger.Interface

	out chan outbound

	// include and exclude are the tag sets of the last query; include
	// doubles as the set of watched tag channels. The reader task
	// writes them, the drain task reads them.
	mu      sync.Mutex
	include server.Tags
	exclude server.Tags
}

func newClient(conn *websocket.Conn, c *cache.Cache, locator server.Locator, metrics *telemetry.Metrics, log logger.Interface) *client {
	return &client{
		conn:     conn,
		cache:    c,
		notifier: c.Notifier(),
		locator:  locator,
		metrics:  metrics,
		log:      log,
		out:      make(chan outbound, outBuffer),
		include:  server.NewTags(),
		exclude:  server.NewTags(),
	}
}

// run drives the session's three tasks until the first of them exits
// or the context is cancelled, then tears the rest down. The notifier
// is released no matter how the session ends.
func (c *client) run(ctx context.Context) {
	defer c.notifier.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.writeLoop(gctx) })
	g.Go(func() error { return c.drainLoop(gctx) })
	g.Go(func() error {
		// Closing the connection unblocks a reader stuck in
		// ReadMessage once any sibling task exits.
		<-gctx.Done()
		c.conn.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Debugw("session ended", "error", err)
	}
}

func (c *client) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.dispatch(ctx, data); err != nil {
			var msgErr *MessageError
			if errors.As(err, &msgErr) {
				c.observe("out", typeError)
				if err := c.send(ctx, outbound{Type: typeError, Entity: msgErr.Reason}); err != nil {
					return err
				}
				continue
			}
			return err
		}
	}
}

func (c *client) writeLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-c.out:
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *client) drainLoop(ctx context.Context) error {
	for {
		event, err := c.notifier.Watch(ctx)
		if err != nil {
			return err
		}
		switch event.Kind {
		case cache.EventServer:
			status, err := c.cache.Get(ctx, event.Address)
			if err != nil {
				return err
			}
			c.observe("out", typeStatus)
			if err := c.send(ctx, outbound{Type: typeStatus, Entity: newStatusEntity(status, c.locator)}); err != nil {
				return err
			}
		case cache.EventTag:
			status, err := c.cache.Get(ctx, event.Address)
			if err != nil {
				return err
			}
			c.mu.Lock()
			matched := status.Tags.ContainsAll(c.include) && status.Tags.Disjoint(c.exclude)
			c.mu.Unlock()
			if !matched {
				continue
			}
			c.observe("out", typeMatch)
			if err := c.send(ctx, outbound{Type: typeMatch, Entity: newMatchEntity(event.Address)}); err != nil {
				return err
			}
		}
	}
}

func (c *client) send(ctx context.Context, msg outbound) error {
	select {
	case c.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *client) dispatch(ctx context.Context, data []byte) error {
	env, err := decodeEnvelope(data)
	if err != nil {
		return err
	}
	c.observe("in", env.Type)
	switch env.Type {
	case typeSubscribe:
		return c.handleSubscribe(ctx, env.Entity)
	case typeUnsubscribe:
		return c.handleUnsubscribe(ctx, env.Entity)
	case typeQuery:
		return c.handleQuery(ctx, env.Entity)
	default:
		return messageErrorf("unknown message type %q", env.Type)
	}
}

// handleSubscribe bumps the server's interest, starts watching its
// channel and replays its current status.
func (c *client) handleSubscribe(ctx context.Context, entity json.RawMessage) error {
	addr, err := decodeAddress(entity)
	if err != nil {
		return err
	}
	if err := c.cache.Subscribe(ctx, addr); err != nil {
		return err
	}
	if err := c.notifier.WatchServer(ctx, addr); err != nil {
		return err
	}
	status, err := c.cache.Get(ctx, addr)
	if err != nil {
		return err
	}
	c.observe("out", typeStatus)
	return c.send(ctx, outbound{Type: typeStatus, Entity: newStatusEntity(status, c.locator)})
}

// handleUnsubscribe stops watching the server's channel. Interest is
// left to decay through the queue.
func (c *client) handleUnsubscribe(ctx context.Context, entity json.RawMessage) error {
	addr, err := decodeAddress(entity)
	if err != nil {
		return err
	}
	return c.notifier.UnwatchServer(ctx, addr)
}

// handleQuery replaces the session's tag query: tag watches are
// reconciled against the new include set, then current matches are
// replayed.
func (c *client) handleQuery(ctx context.Context, entity json.RawMessage) error {
	q, err := decodeQuery(entity)
	if err != nil {
		return err
	}
	include := server.NewTags(q.Include...)
	exclude := server.NewTags(q.Exclude...)

	c.mu.Lock()
	previous := c.include
	c.mu.Unlock()

	for tag := range previous {
		if !include.Has(tag) {
			if err := c.notifier.UnwatchTag(ctx, tag); err != nil {
				return err
			}
		}
	}
	for tag := range include {
		if !previous.Has(tag) {
			if err := c.notifier.WatchTag(ctx, tag); err != nil {
				return err
			}
		}
	}

	c.mu.Lock()
	c.include = include
	c.exclude = exclude
	c.mu.Unlock()

	results, err := c.cache.Search(ctx, q.Include, q.Exclude)
	if err != nil {
		return err
	}
	for addr := range results {
		c.observe("out", typeMatch)
		if err := c.send(ctx, outbound{Type: typeMatch, Entity: newMatchEntity(addr)}); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) observe(direction, msgType string) {
	if c.metrics != nil {
		c.metrics.ObserveMessage(direction, msgType)
	}
}
