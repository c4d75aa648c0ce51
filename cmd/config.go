package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"get.pme.sh/wsjrpc/config"
	"get.pme.sh/wsjrpc/ui"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	configCmd := &cobra.Command{
		Use:     "config",
		Short:   "Manage the server configuration",
		GroupID: refGroup("server", "Server Commands"),
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file holding the defaults",
		Args:  cobra.MaximumNArgs(1),
	}
	force := initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
	initCmd.RunE = func(cmd *cobra.Command, args []string) error {
		path := "wsjrpc.yml"
		if len(args) != 0 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !*force {
			return errors.Errorf("%s already exists, use --force to overwrite", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Println(ui.RenderOkLine("Wrote " + path))
		return nil
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Args:  cobra.NoArgs,
	}
	asJSON := showCmd.Flags().Bool("json", false, "Output in JSON format")
	showCmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(*config.ConfigPath, *config.EnvFile)
		if err != nil {
			return err
		}
		var res []byte
		if *asJSON {
			res, err = json.MarshalIndent(cfg, "", "  ")
		} else {
			res, err = yaml.Marshal(cfg)
		}
		if err != nil {
			return errors.WithStack(err)
		}
		cmd.Println(string(res))
		return nil
	}

	configCmd.AddCommand(initCmd, showCmd)
	config.RootCommand.AddCommand(configCmd)
}
