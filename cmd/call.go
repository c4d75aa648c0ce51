package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"get.pme.sh/wsjrpc/client"
	"get.pme.sh/wsjrpc/config"
	"get.pme.sh/wsjrpc/retry"
	"get.pme.sh/wsjrpc/rundown"
	"get.pme.sh/wsjrpc/ui"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// parseArgs reads each argument as JSON, falling back to a plain string.
func parseArgs(args []string) []any {
	return lo.Map(args, func(a string, _ int) any {
		if json.Valid([]byte(a)) {
			return json.RawMessage(a)
		}
		return a
	})
}

var optRetries = config.RootCommand.PersistentFlags().Int("retries", 1, "Number of connection attempts, negative to retry until the timeout")

func connect(timeout time.Duration) (*client.Client, context.Context, context.CancelFunc, error) {
	ctx, cancel := rundown.WithContext(context.Background())
	ctx, tcancel := context.WithTimeout(ctx, timeout)
	stop := func() { tcancel(); cancel() }
	policy := retry.Basic()
	policy.Attempts = *optRetries
	cli, err := client.DialRetry(ctx, getURL(), policy)
	if err != nil {
		stop()
		return nil, nil, nil, errors.Wrapf(err, "failed to connect to %s", getURL())
	}
	return cli, ctx, stop, nil
}

func init() {
	callcmd := &cobra.Command{
		Use:     "call [method] [args...]",
		Short:   "Calls a method and prints the result",
		Long:    "Calls a method and prints the result. Each argument is sent as JSON if it parses, otherwise as a string.",
		Args:    cobra.MinimumNArgs(1),
		GroupID: refGroup("client", "Client Commands"),
	}
	timeout := callcmd.Flags().DurationP("timeout", "t", 30*time.Second, "Gives up waiting for the response after this long")
	callcmd.RunE = func(cmd *cobra.Command, args []string) error {
		cli, ctx, stop, err := connect(*timeout)
		if err != nil {
			return err
		}
		defer stop()
		defer cli.Close()

		start := time.Now()
		res, err := cli.CallRaw(ctx, args[0], parseArgs(args[1:])...)
		if err != nil {
			return err
		}
		if *config.Dumb {
			fmt.Println(string(res))
			return nil
		}
		fmt.Println(ui.RenderOkLine(ui.FaintStyle.Render(time.Since(start).Round(time.Microsecond).String())))
		fmt.Println(ui.HighlightJSON(res))
		return nil
	}

	notifycmd := &cobra.Command{
		Use:     "notify [method] [args...]",
		Short:   "Sends a notification, no response is awaited",
		Args:    cobra.MinimumNArgs(1),
		GroupID: refGroup("client", "Client Commands"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, ctx, stop, err := connect(10 * time.Second)
			if err != nil {
				return err
			}
			defer stop()
			defer cli.Close()
			if err := cli.Notify(ctx, args[0], parseArgs(args[1:])...); err != nil {
				return err
			}
			if !*config.Dumb {
				fmt.Println(ui.RenderOkLine("Sent"))
			}
			return nil
		},
	}
	config.RootCommand.AddCommand(callcmd, notifycmd)
}
