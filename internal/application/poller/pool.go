// Package poller drives status collection: it drains the interest
// queue (or walks the whole server set), queries each server, applies
// the tag rules and commits the resulting status to the cache.
package poller

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"serverstf/internal/domain/query"
	"serverstf/internal/domain/server"
	"serverstf/internal/domain/tagging"
	"serverstf/internal/infrastructure/cache"
	"serverstf/internal/infrastructure/telemetry"
	"serverstf/internal/shared/logger"
)

// emptyQueueWait is how long a worker idles after finding the
// interest queue empty.
const emptyQueueWait = time.Second

// Querier performs the network exchanges that snapshot one server.
type Querier interface {
	Query(addr server.Address) (*query.Info, *query.PlayerList, *query.Rules, error)
}

// PollError wraps a transient failure to snapshot one server. Polls
// failing this way are logged and skipped; the server stays in
// whatever state the cache last recorded.
type PollError struct {
	Address server.Address
	Err     error
}

// Error implements the error interface.
func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s: %v", e.Address, e.Err)
}

// Unwrap supports errors.Is and errors.As.
func (e *PollError) Unwrap() error { return e.Err }

// Options configures a pool.
type Options struct {
	// Workers is the number of concurrent pollers. Zero means one per
	// host CPU.
	Workers int
	// All switches the pool from draining the interest queue to
	// continuously walking the entire server set.
	All bool
}

// Pool is a set of poller workers over one cache.
type Pool struct {
	cache   *cache.Cache
	querier Querier
	tagger  *tagging.Tagger
	metrics *telemetry.Metrics
	log     logger.Interface

	workers int
	all     bool

	mu       sync.Mutex
	inflight map[server.Address]struct{}
}

// New creates a pool. metrics may be nil.
func New(c *cache.Cache, querier Querier, tagger *tagging.Tagger, metrics *telemetry.Metrics, opts Options, log logger.Interface) *Pool {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		cache:    c,
		querier:  querier,
		tagger:   tagger,
		metrics:  metrics,
		log:      log.Named("poller"),
		workers:  workers,
		all:      opts.All,
		inflight: make(map[server.Address]struct{}),
	}
}

// Run blocks until the context is cancelled or a worker hits a fatal
// cache error. The context's cancellation cause is not treated as a
// failure.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	p.log.Infow("poller pool starting", "workers", p.workers, "all", p.all)

	if p.all {
		addrs := make(chan server.Address)
		g.Go(func() error {
			defer close(addrs)
			return p.produceAll(gctx, addrs)
		})
		for i := 0; i < p.workers; i++ {
			g.Go(func() error {
				return p.runPassiveWorker(gctx, addrs)
			})
		}
	} else {
		for i := 0; i < p.workers; i++ {
			handle := p.cache.Handle()
			g.Go(func() error {
				return p.runQueueWorker(gctx, handle)
			})
		}
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// produceAll feeds every known address to the workers, over and over,
// until cancelled.
func (p *Pool) produceAll(ctx context.Context, addrs chan<- server.Address) error {
	for {
		err := p.cache.All(ctx, func(addr server.Address) error {
			select {
			case addrs <- addr:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			return err
		}
		// An empty server set would otherwise spin.
		select {
		case <-time.After(emptyQueueWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pool) runPassiveWorker(ctx context.Context, addrs <-chan server.Address) error {
	for {
		select {
		case addr, ok := <-addrs:
			if !ok {
				return nil
			}
			if !p.acquire(addr) {
				continue
			}
			err := p.poll(ctx, addr)
			p.release(addr)
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pool) runQueueWorker(ctx context.Context, handle *cache.Cache) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		addr, err := handle.Interesting(ctx)
		if errors.Is(err, cache.ErrEmptyQueue) {
			select {
			case <-time.After(emptyQueueWait):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if err != nil {
			return err
		}

		if p.acquire(addr) {
			pollErr := p.poll(ctx, addr)
			p.release(addr)
			if pollErr != nil {
				// Settle the queue item even on a fatal poll error so
				// held interest is not silently lost.
				if _, serr := handle.UpdateInterestQueue(ctx); serr != nil {
					p.log.Errorw("failed to settle interest queue item",
						"address", addr.String(),
						"error", serr,
					)
				}
				return pollErr
			}
		}

		requeued, err := handle.UpdateInterestQueue(ctx)
		if err != nil {
			return err
		}
		if p.metrics != nil {
			p.metrics.ObserveRequeue(requeued)
		}
	}
}

// poll snapshots one server and commits the result. Transient query
// failures are absorbed; only cache errors propagate.
func (p *Pool) poll(ctx context.Context, addr server.Address) error {
	start := time.Now()
	info, players, rules, err := p.querier.Query(addr)
	if err != nil {
		pollErr := &PollError{Address: addr, Err: err}
		p.log.Warnw("poll failed", "error", pollErr)
		p.observe("error", start)
		return nil
	}

	tags := p.tagger.Evaluate(info, players, rules)
	status := buildStatus(addr, info, players, tags)
	if err := p.cache.Set(ctx, status); err != nil {
		p.observe("cache_error", start)
		return err
	}

	p.observe("ok", start)
	p.log.Debugw("poll completed",
		"address", addr.String(),
		"name", *status.Name,
		"tags", tags.List(),
	)
	return nil
}

func (p *Pool) observe(outcome string, start time.Time) {
	if p.metrics != nil {
		p.metrics.ObservePoll(outcome, time.Since(start).Seconds())
	}
}

func (p *Pool) acquire(addr server.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[addr]; busy {
		return false
	}
	p.inflight[addr] = struct{}{}
	return true
}

func (p *Pool) release(addr server.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, addr)
}

// buildStatus assembles the cache status for a successful poll.
// Players with empty names are dropped: the Source engine reports
// connecting clients that way and they carry no information.
func buildStatus(addr server.Address, info *query.Info, players *query.PlayerList, tags server.Tags) server.Status {
	status := server.Status{
		Address: addr,
		Name:    &info.ServerName,
		Map:     &info.Map,
		Tags:    tags,
		Players: server.Players{
			Current: info.PlayerCount,
			Max:     info.MaxPlayers,
			Bots:    info.BotCount,
		},
	}
	appID := info.AppID
	status.ApplicationID = &appID
	for _, p := range players.Players {
		if p.Name == "" {
			continue
		}
		status.Players.Scores = append(status.Players.Scores, server.Score{
			Name:     p.Name,
			Score:    p.Score,
			Duration: p.Duration,
		})
	}
	return status
}
