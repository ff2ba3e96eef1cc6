// Package syncer imports server listings from the master server into
// the cache so the poller has addresses to work with.
package syncer

import (
	"context"
	"fmt"

	"serverstf/internal/domain/server"
	"serverstf/internal/infrastructure/cache"
	"serverstf/internal/infrastructure/master"
	"serverstf/internal/shared/logger"
)

// MasterClient walks a master-server listing for one region.
type MasterClient interface {
	Servers(ctx context.Context, region master.Region, fn func(server.Address) error) error
}

// Synchroniser merges master-server listings into the cache's
// authoritative server set. Addresses are only ever added; servers
// the master no longer lists stay in the cache.
type Synchroniser struct {
	cache   *cache.Cache
	client  MasterClient
	regions []master.Region
	log     logger.Interface
}

// New creates a synchroniser covering the given regions.
func New(c *cache.Cache, client MasterClient, regions []master.Region, log logger.Interface) *Synchroniser {
	return &Synchroniser{
		cache:   c,
		client:  client,
		regions: regions,
		log:     log.Named("syncer"),
	}
}

// RunOnce performs one full pass over every configured region,
// returning how many previously unknown addresses were added.
func (s *Synchroniser) RunOnce(ctx context.Context) (int, error) {
	var added int
	for _, region := range s.regions {
		var total int
		err := s.client.Servers(ctx, region, func(addr server.Address) error {
			total++
			fresh, err := s.cache.Ensure(ctx, addr)
			if err != nil {
				return err
			}
			if fresh {
				added++
			}
			return nil
		})
		if err != nil {
			return added, fmt.Errorf("failed to synchronise region 0x%02x: %w", byte(region), err)
		}
		s.log.Infow("region synchronised",
			"region", fmt.Sprintf("0x%02x", byte(region)),
			"listed", total,
		)
	}
	s.log.Infow("synchronisation pass completed", "added", added)
	return added, nil
}

// Run repeats synchronisation passes until the context is cancelled.
// Passes run back to back; the master server's own batching paces the
// requests.
func (s *Synchroniser) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.RunOnce(ctx); err != nil {
			return err
		}
	}
}
