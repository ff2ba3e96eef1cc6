// Package poller implements the poller subcommand.
package poller

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"serverstf/internal/application/poller"
	"serverstf/internal/domain/tagging"
	"serverstf/internal/domain/tagging/rules"
	"serverstf/internal/infrastructure/sourcequery"
	"serverstf/internal/infrastructure/telemetry"
	"serverstf/internal/interfaces/cli"
)

const queryTimeout = 5 * time.Second

var (
	redisURL string
	all      bool
	workers  int
)

// NewCommand builds the poller subcommand.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poller",
		Short: "Poll servers and commit their statuses to the cache",
		Long: `Drain the interest queue, querying each server and committing the
tagged result to the cache. With --all the queue is ignored and every
known server is polled continuously instead.`,
		Args: cobra.NoArgs,
		RunE: run,
	}
	cmd.Flags().StringVar(&redisURL, "redis", "", "Redis URL (overrides configuration)")
	cmd.Flags().BoolVar(&all, "all", false, "Continuously poll every known server instead of the interest queue")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of concurrent pollers (0 = one per CPU)")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, log, err := cli.Bootstrap()
	if err != nil {
		return err
	}
	c, client, err := cli.OpenCache(cfg, redisURL, log)
	if err != nil {
		return err
	}
	defer client.Close()

	tagger, err := tagging.New(rules.Default()...)
	if err != nil {
		return err
	}

	if workers == 0 {
		workers = cfg.Poller.Workers
	}

	metrics := telemetry.NewMetrics(nil)
	pool := poller.New(c, sourcequery.New(queryTimeout), tagger, metrics, poller.Options{
		Workers: workers,
		All:     all,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return telemetry.ServeMetrics(gctx, cfg.Telemetry.Bind, nil, log)
	})
	g.Go(func() error {
		return pool.Run(gctx)
	})
	return g.Wait()
}
