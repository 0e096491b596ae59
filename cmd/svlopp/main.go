// Command svlopp is a Linux-only user-space supervisor for a declared set
// of long-running foreground processes (spec.md §1, §6).
package main

import (
	"fmt"
	"os"

	"github.com/svlopp/svlopp/internal/logging"
	"github.com/svlopp/svlopp/internal/supervisor"
	"github.com/spf13/cobra"
)

var (
	runDir   string
	logLevel string
)

// newRootCmd builds the cobra root command, grounded on the
// Use/Short/Flags/RunE shape go-synth's cmd/build.go uses for its
// subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "svlopp [--run-dir PATH] <config.toml>",
		Short:         "Supervise a declared set of long-running processes",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
	cmd.Flags().StringVar(&runDir, "run-dir", defaultRunDir(), "runtime directory for the control FIFO and status file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "trace|debug|info|warn|error")
	return cmd
}

func defaultRunDir() string {
	if os.Geteuid() == 0 {
		return "/run/svlopp"
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return xdg + "/svlopp"
	}
	return "/tmp/svlopp"
}

func run(cfgPath string) error {
	log := logging.NewStderr(logging.ParseLevel(logLevel))

	sup, err := supervisor.New(cfgPath, runDir, log)
	if err != nil {
		return err
	}
	return sup.Run()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "svlopp: %v\n", err)
		os.Exit(1)
	}
}
