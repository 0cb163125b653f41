package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ctrdash/internal/app"
)

var (
	cfgPath  string
	plain    bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ctrdash",
	Short: "Monitor and control NixOS containers",
	Long: `Watch the state and journal of every NixOS container and start or stop
them from a terminal dashboard.

Navigation:
  Up/Down, k/j  - Select container
  Enter         - Start or stop the selected container
  s / x         - Start / stop
  PgUp/PgDn     - Scroll logs
  q             - Quit`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "./ctrdash.yaml", "path to config file (json or yaml)")
	rootCmd.Flags().BoolVar(&plain, "plain", false, "print events as log lines instead of the interactive UI")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, app.Options{Plain: plain, LogLevel: logLevel})
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
