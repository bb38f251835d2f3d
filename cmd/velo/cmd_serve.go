package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/turfline/velo/internal/interfaces/http"
	"github.com/turfline/velo/internal/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the governance review API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return err
			}

			serverCfg := httpapi.DefaultServerConfig()
			if cfg.HTTPHost != "" {
				serverCfg.Host = cfg.HTTPHost
			}
			if cfg.HTTPPort != 0 {
				serverCfg.Port = cfg.HTTPPort
			}

			server, err := httpapi.NewServer(serverCfg, store, metrics.New())
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(ctx)
			}
		},
	}
	return cmd
}
