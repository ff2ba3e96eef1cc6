// Package cache implements the cache inspection subcommand.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"serverstf/internal/domain/server"
	"serverstf/internal/interfaces/cli"
)

var (
	redisURL string
	include  []string
	exclude  []string
)

// NewCommand builds the cache subcommand tree.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the server state cache",
	}
	cmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis URL (overrides configuration)")

	getCmd := &cobra.Command{
		Use:   "get <address>",
		Short: "Print the cached status of one server",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "List servers matching a tag query",
		Args:  cobra.NoArgs,
		RunE:  runSearch,
	}
	searchCmd.Flags().StringSliceVar(&include, "include", nil, "Tags every result must carry")
	searchCmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Tags no result may carry")

	cmd.AddCommand(getCmd, searchCmd)
	return cmd
}

// statusOutput is the JSON shape printed by get.
type statusOutput struct {
	Address       string         `json:"address"`
	Interest      int64          `json:"interest"`
	Name          *string        `json:"name"`
	Map           *string        `json:"map"`
	ApplicationID *int64         `json:"application_id"`
	Tags          []string       `json:"tags"`
	Players       server.Players `json:"players"`
}

func runGet(cmd *cobra.Command, args []string) error {
	addr, err := server.ParseAddress(args[0])
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

	status, err := c.Get(cmd.Context(), addr)
	if err != nil {
		return err
	}

	out := statusOutput{
		Address:       status.Address.String(),
		Interest:      status.Interest,
		Name:          status.Name,
		Map:           status.Map,
		ApplicationID: status.ApplicationID,
		Tags:          status.Tags.List(),
		Players:       status.Players,
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, log, err := cli.Bootstrap()
	if err != nil {
		return err
	}
	c, client, err := cli.OpenCache(cfg, redisURL, log)
	if err != nil {
		return err
	}
	defer client.Close()

	results, err := c.Search(cmd.Context(), include, exclude)
	if err != nil {
		return err
	}

	addrs := make([]string, 0, len(results))
	for addr := range results {
		addrs = append(addrs, addr.String())
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		fmt.Println(addr)
	}
	return nil
}
