package cmd

import (
	"context"

	"get.pme.sh/wsjrpc/config"
	"get.pme.sh/wsjrpc/demo"
	"get.pme.sh/wsjrpc/handler"
	"get.pme.sh/wsjrpc/jrpc"
	"get.pme.sh/wsjrpc/rundown"
	"get.pme.sh/wsjrpc/server"
	"get.pme.sh/wsjrpc/xlog"

	"github.com/spf13/cobra"
)

func init() {
	servecmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the demo methods over websocket",
		Args:    cobra.NoArgs,
		GroupID: refGroup("server", "Server Commands"),
	}
	listen := servecmd.Flags().StringP("listen", "l", "", "HTTP listen address, overrides the configuration")
	tcp := servecmd.Flags().String("tcp", "", "Raw TCP listen address for yamux clients, overrides the configuration")
	servecmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(*config.ConfigPath, *config.EnvFile)
		if err != nil {
			return err
		}
		if *listen != "" {
			cfg.Listen = *listen
		}
		if *tcp != "" {
			cfg.TCP = *tcp
		}

		reg := jrpc.NewRegistry()
		demo.Register(reg)
		xlog.Info().Strs("methods", reg.Names()).Msg("Methods registered")

		h := handler.New(reg,
			handler.WithLogger(xlog.SubDomain("rpc")),
			handler.WithQueueSize(cfg.QueueSize),
		)
		ctx, cancel := rundown.WithContext(context.Background())
		defer cancel()
		return server.New(h, cfg).Run(ctx)
	}
	config.RootCommand.AddCommand(servecmd)
}
