// Package sync implements the master-server synchronisation
// subcommand.
package sync

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"serverstf/internal/application/syncer"
	"serverstf/internal/infrastructure/master"
	"serverstf/internal/interfaces/cli"
)

var (
	redisURL string
	forever  bool
)

// NewCommand builds the sync subcommand.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync REGION...",
		Short: "Import server listings from the master server",
		Long: fmt.Sprintf(`Fetch the server listing for each given region from the master
server and add every address to the cache. Regions: %s.`,
			strings.Join(master.RegionNames(), ", ")),
		Args: cobra.MinimumNArgs(1),
		RunE: run,
	}
	cmd.Flags().StringVar(&redisURL, "redis", "", "Redis URL (overrides configuration)")
	cmd.Flags().BoolVar(&forever, "forever", false, "Keep synchronising until interrupted")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	regions, err := master.ParseRegions(args)
	if err != nil {
		return err
	}

	cfg, log, err := cli.Bootstrap()
	if err != nil {
		return err
	}
	c, client, err := cli.OpenCache(cfg, redisURL, log)
	if err != nil {
		return err
	}
	defer client.Close()

	masterClient := master.NewClient(
		cfg.Sync.Master,
		time.Duration(cfg.Sync.TimeoutSeconds)*time.Second,
		log,
	)
	s := syncer.New(c, masterClient, regions, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if forever {
		err = s.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	_, err = s.RunOnce(ctx)
	return err
}
