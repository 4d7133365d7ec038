package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/alcance/internal/auth"
	"github.com/normanking/alcance/internal/scheduler"
	"github.com/normanking/alcance/internal/server"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SERVE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket chat and maintenance scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			sched, err := scheduler.New(a.store, scheduler.Config{
				PruneSpec:     cfg.Scheduler.PruneSpec,
				RetentionDays: cfg.Scheduler.RetentionDays,
			})
			if err != nil {
				return err
			}

			mw := auth.NewMiddleware(a.auth)
			srv := server.New(server.Config{
				Addr:            cfg.Server.Addr,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				AllowedOrigins:  cfg.Server.AllowedOrigins,
			}, server.Deps{
				Assistant:   a.assistant,
				Store:       a.store,
				Referrals:   a.referrals,
				Billing:     a.billing,
				Auth:        auth.NewHandlers(a.auth, mw),
				RequireAuth: mw.RequireAuth,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Start(gctx) })
			g.Go(func() error { return sched.Run(gctx) })

			log.Info().
				Str("addr", cfg.Server.Addr).
				Str("variant", cfg.Assistant.Variant).
				Str("usage_backend", cfg.Usage.Backend).
				Str("version", version).
				Msg("alcance serving")

			if err := g.Wait(); err != nil && err != context.Canceled {
				return fmt.Errorf("serve: %w", err)
			}
			log.Info().Msg("alcance stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
