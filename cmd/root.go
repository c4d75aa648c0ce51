package cmd

import (
	"runtime"

	"get.pme.sh/wsjrpc/config"
	"get.pme.sh/wsjrpc/revision"
	"get.pme.sh/wsjrpc/ui"
	"get.pme.sh/wsjrpc/xlog"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

const DefaultURL = "ws://127.0.0.1:8080/"

var optURL = config.RootCommand.PersistentFlags().StringP(
	"url", "R",
	"",
	"Endpoint used by client commands, ws://, wss:// or tcp://",
)

func refGroup(id, name string) string {
	if !config.RootCommand.ContainsGroup(id) {
		config.RootCommand.AddGroup(&cobra.Group{
			ID:    id,
			Title: name + ":",
		})
	}
	return id
}

func getURL() string {
	if *optURL != "" {
		return *optURL
	}
	return DefaultURL
}

// setupLogging applies the logging flags once they are parsed.
func setupLogging() {
	if *config.Verbose {
		xlog.SetLoggerLevel(xlog.LevelDebug)
	} else {
		xlog.SetLoggerLevel(xlog.LevelInfo)
	}
	xlog.SetDefaultOutput(xlog.StderrWriter(), xlog.FileWriter(*config.LogFile))
}

func init() {
	cobra.OnInitialize(setupLogging)
}

func Execute() {
	if runtime.GOMAXPROCS(0) > 32 {
		runtime.GOMAXPROCS(32)
	}
	maxprocs.Set()
	defer xlog.CloseFiles()
	config.RootCommand.Short += ui.FaintStyle.Render(" (" + revision.GetVersion() + ")")
	if err := config.RootCommand.Execute(); err != nil {
		xlog.CloseFiles()
		ui.ExitWithError(err)
	}
}
