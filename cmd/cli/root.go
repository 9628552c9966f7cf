package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rofiliofernandes/somudai/internal/apiclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultServer  = "http://localhost:8787"
	defaultTimeout = 30 * time.Second
)

// app carries per-invocation state shared by the subcommands
type app struct {
	v      *viper.Viper
	logger *log.Logger
}

func (a *app) client() *apiclient.Client {
	var hook apiclient.Hook
	if a.v.GetBool("verbose") {
		hook = func(msg string, keyvals ...interface{}) { a.logger.Debug(msg, keyvals...) }
	}
	return apiclient.New(
		strings.TrimRight(a.v.GetString("server"), "/"),
		a.v.GetString("token"),
		a.v.GetDuration("timeout"),
		hook,
	)
}

func (a *app) jsonOutput() bool {
	return a.v.GetString("output") == "json"
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "somudai-cli",
		Short: "Somudai CLI - messaging and presence from the terminal",
		Long: `somudai-cli talks to a running somudai server: send direct
messages, read conversation history, check who is online, and mint
development tokens.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.logger = log.NewWithOptions(cmd.ErrOrStderr(), log.Options{Prefix: "somudai-cli"})
			if a.v.GetBool("verbose") {
				a.logger.SetLevel(log.DebugLevel)
			}

			if path := a.v.GetString("config"); path != "" {
				a.v.SetConfigFile(path)
				if err := a.v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config %s: %w", path, err)
				}
				a.logger.Debug("Loaded config", "path", path)
			}

			switch a.v.GetString("output") {
			case "text", "json":
			default:
				return fmt.Errorf("unsupported output format %q (want text or json)", a.v.GetString("output"))
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("server", defaultServer, "Server base URL")
	flags.String("token", "", "Bearer token (or SOMUDAI_TOKEN)")
	flags.String("output", "text", "Output format: text, json")
	flags.String("config", "", "Path to a config file (yaml, toml or json)")
	flags.Duration("timeout", defaultTimeout, "Request timeout")
	flags.BoolP("verbose", "v", false, "Enable verbose output")
	_ = a.v.BindPFlags(flags)

	a.v.SetEnvPrefix("SOMUDAI")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(newTokenCmd(a))
	root.AddCommand(newMessagesCmd(a))
	root.AddCommand(newConversationsCmd(a))
	root.AddCommand(newOnlineCmd(a))
	root.AddCommand(newHealthCmd(a))

	return root
}

// Execute runs the CLI and exits non-zero on failure
func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		printError(root.ErrOrStderr(), "%v", err)
		if apiclient.IsUnauthorized(err) {
			fmt.Fprintln(root.ErrOrStderr(), "Hint: pass --token or set SOMUDAI_TOKEN (see 'somudai-cli token').")
		}
		os.Exit(1)
	}
}
