// Package main is the entry point for the alcance assistant server and CLI.
package main

import (
	"fmt"
	"io"
	"os"
	_ "time/tzdata" // assistant.timezone on hosts without zoneinfo

	"github.com/spf13/cobra"

	"github.com/normanking/alcance/internal/config"
	"github.com/normanking/alcance/internal/logging"
)

var (
	version   = "0.1.0"
	cfgPath   string
	verbose   bool
	logCloser io.Closer
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "alcance",
		Short: "Alcance - personal assistant command router",
		Long: `Alcance turns natural-language commands into calendar events, tasks,
notes, email drafts, templates and contacts.

Start the server:   alcance serve
One-shot command:   alcance ask "Agenda una reunión mañana"
Configuration:      alcance config show`,
		SilenceUsage:       true,
		PersistentPreRunE:  initLogging,
		PersistentPostRunE: closeLogging,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.alcance/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "alcance v%s\n", version)
		},
	})
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config named by --config or the default path.
func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFromPath(cfgPath)
	}
	return config.Load()
}

// initLogging installs the global logger. Config errors are reported by the
// command itself, so logging falls back to defaults here.
func initLogging(cmd *cobra.Command, args []string) error {
	lc := logging.DefaultConfig()
	if cfg, err := loadConfig(); err == nil {
		lc.Level = cfg.Logging.Level
		lc.File = cfg.Logging.File
		lc.Color = cfg.Logging.Color
	}
	if verbose {
		lc.Level = "debug"
		lc.Caller = true
	}
	closer, err := logging.Setup(lc)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	logCloser = closer
	return nil
}

func closeLogging(cmd *cobra.Command, args []string) error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}
