package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/normanking/alcance/internal/data"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TOOLS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func toolsCmd() *cobra.Command {
	var variant string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool schema sent to the provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if variant == "" {
				if cfg, err := loadConfig(); err == nil {
					variant = cfg.Assistant.Variant
				}
			}
			registry, _, err := buildRegistry(variant)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(registry.OpenAITools())
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "", "tool variant: tasks or notes (default from config)")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.Redacted().Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ configuration is valid")
			return nil
		},
	})

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// MIGRATE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the SQLite schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			store, err := data.NewDB(cfg.Data.Dir)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Health(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ schema version %d in %s\n", data.SchemaVersion(), cfg.Data.Dir)
			return nil
		},
	}
}
