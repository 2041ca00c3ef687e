// Command hearthctl manages scheduled events and auto-mode through the
// Hearth API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/muaviaUsmani/hearth/pkg/client"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	apiURL  string
	timeout time.Duration
	json    bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "hearthctl",
		Short:         "Manage Hearth schedules and auto-mode",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	defaultURL := os.Getenv("HEARTH_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api", defaultURL, "Hearth API base URL (env HEARTH_API_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON")

	root.AddCommand(
		newEventsCmd(opts),
		newStatusCmd(opts),
		newAutoModeCmd(opts),
		newCalendarCmd(opts),
	)
	return root
}

// connect builds an API client and a context bounded by --timeout
func (o *globalOptions) connect(cmd *cobra.Command) (*client.Client, context.Context, context.CancelFunc, error) {
	c, err := client.NewClient(o.apiURL)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	return c, ctx, cancel, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
