package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = ""

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	serverURL  string
	debug      bool
}

func newRootCmd() *cobra.Command {
	var (
		flags       globalFlags
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "datachat",
		Short: "Ask questions about your data from the terminal",
		Long: "datachat is a terminal client for a conversational data-exploration service. " +
			"Without a subcommand it opens the interactive chat.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, flags, metricsAddr)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVar(&flags.serverURL, "server", "", "server URL, overrides server.url")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newAskCmd(&flags))
	cmd.AddCommand(newConversationsCmd(&flags))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "datachat %s\n", effectiveVersion(Version))
		},
	}
}

// effectiveVersion returns v, with fallback to build info.
func effectiveVersion(v string) string {
	if v != "" {
		return v
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	var revision string
	var dirty bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if revision == "" {
		return "devel"
	}
	ver := "devel+" + revision
	if len(ver) > 20 {
		ver = ver[:20]
	}
	if dirty {
		ver += "+dirty"
	}
	return ver
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		// already reported by the command
		if !errors.Is(err, errAnswerFailed) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		}
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
