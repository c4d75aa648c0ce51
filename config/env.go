package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const EnvPrefix = "WSJRPC_"

// Global flags.
var Verbose = GBool("verbose", "V", false, "Enable verbose logging")
var Dumb = GBool("dumb", "D", IsTermDumb(), "Disable colors and interactive output")
var ConfigPath = GString("config", "c", "", "Path of the YAML configuration file")
var EnvFile = GString("env-file", "", ".env", "Dotenv file loaded before the configuration")
var LogFile = GString("log-file", "", "", "Additionally write logs to this file, relative to the log directory")
var _ = GString("cwd", "C", "", "Sets the working directory before running the command")

// Global from either environment or command line.
var RootCommand = &cobra.Command{
	Use:           "wsjrpc",
	Short:         "JSON-RPC 2.0 over websockets.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		if cmd.Flag("cwd").Changed {
			err = os.Chdir(cmd.Flag("cwd").Value.String())
		}
		return
	},
}

func flags() *pflag.FlagSet {
	return RootCommand.PersistentFlags()
}

func getenv(name string) (string, bool) {
	name = strings.ToUpper(name)
	name = strings.ReplaceAll(name, "-", "_")
	return os.LookupEnv(EnvPrefix + name)
}
func GInt(name, shorthand string, value int, usage string) *int {
	if env, ok := getenv(name); ok {
		if v, e := strconv.Atoi(env); e == nil {
			value = v
		}
	}
	flags().IntVarP(&value, name, shorthand, value, usage)
	return &value
}
func GString(name, shorthand string, value string, usage string) *string {
	if env, ok := getenv(name); ok {
		value = env
	}
	flags().StringVarP(&value, name, shorthand, value, usage)
	return &value
}
func GBool(name, shorthand string, value bool, usage string) *bool {
	if env, ok := getenv(name); ok {
		if v, e := strconv.ParseBool(env); e == nil {
			value = v
		}
	}
	flags().BoolVarP(&value, name, shorthand, value, usage)
	return &value
}

var mkdirs sync.Map

func mkdironce(dir string) {
	if _, loaded := mkdirs.LoadOrStore(dir, true); !loaded {
		os.MkdirAll(dir, 0755)
	}
}

// Home is the state directory, $WSJRPC_HOME or ~/.wsjrpc.
func Home() (home string) {
	if env, ok := getenv("home"); ok && env != "" {
		home = env
	} else {
		userDir, _ := os.UserHomeDir()
		home = filepath.Join(userDir, ".wsjrpc")
	}
	mkdironce(home)
	return
}

func LogDir() string {
	dir := filepath.Join(Home(), "log")
	mkdironce(dir)
	return dir
}

// IsTermDumb reports whether stdout is not an interactive terminal.
func IsTermDumb() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return true
	}
	if os.Getenv("TERM") == "dumb" {
		return true
	}
	for _, env := range []string{EnvPrefix + "NON_INTERACTIVE", "CI", "NON_INTERACTIVE"} {
		if v, ok := os.LookupEnv(env); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	return false
}
