package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cachecmd "serverstf/internal/interfaces/cli/cache"
	pollercmd "serverstf/internal/interfaces/cli/poller"
	synccmd "serverstf/internal/interfaces/cli/sync"
	websocketcmd "serverstf/internal/interfaces/cli/websocket"
	apperrors "serverstf/internal/shared/errors"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "serverstf",
		Short:         "serverstf - live Source server directory",
		Long:          `serverstf discovers Source engine game servers, polls their live status into a Redis cache and streams it out to websocket clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		cachecmd.NewCommand(),
		pollercmd.NewCommand(),
		synccmd.NewCommand(),
		websocketcmd.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(int(apperrors.StatusFor(err)))
	}
}
