package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/spf13/cobra"

	"github.com/webframp/relnotes/srv"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var listen, configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the changelog web server",
		Example: `  relnotes serve --listen :8080
  RELNOTES_CHANGELOG_PATH=changelog.json relnotes serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := srv.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}
			if cfg.Hostname == srv.DefaultConfig().Hostname {
				if hostname, err := os.Hostname(); err == nil {
					cfg.Hostname = hostname
				}
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", srv.DefaultConfig().ListenAddr, "address to listen on")
	cmd.Flags().StringVar(&configPath, "config", "", "JSON config file")
	return cmd
}

func serve(ctx context.Context, cfg srv.Config) error {
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		slog.Warn("opentelemetry disabled", "error", err)
	} else {
		defer otelShutdown()
	}

	server, err := srv.New(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- server.Serve(cfg.ListenAddr) }()

	go srv.NewMarkerClient().CreateDeployMarker(ctx, server.Current())

	select {
	case err := <-errc:
		server.Close()
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
