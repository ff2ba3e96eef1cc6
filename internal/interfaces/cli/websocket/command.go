// Package websocket implements the websocket gateway subcommand.
package websocket

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"serverstf/internal/infrastructure/telemetry"
	"serverstf/internal/interfaces/cli"
	"serverstf/internal/interfaces/websocket"
)

var (
	redisURL string
	bind     string
)

// NewCommand builds the websocket subcommand.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "websocket",
		Short: "Serve the websocket gateway",
		Args:  cobra.NoArgs,
		RunE:  run,
	}
	cmd.Flags().StringVar(&redisURL, "redis", "", "Redis URL (overrides configuration)")
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides configuration)")
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

	addr := cfg.Websocket.GetAddr()
	if bind != "" {
		addr = bind
	}

	metrics := telemetry.NewMetrics(nil)
	service := websocket.NewService(c, nil, metrics, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return telemetry.ServeMetrics(gctx, cfg.Telemetry.Bind, nil, log)
	})
	g.Go(func() error {
		return service.Run(gctx, addr)
	})
	return g.Wait()
}
