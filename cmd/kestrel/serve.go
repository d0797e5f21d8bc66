package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelfaas/kestrel/internal/blocklist"
	"github.com/kestrelfaas/kestrel/internal/egress"
	"github.com/kestrelfaas/kestrel/internal/engine"
	"github.com/kestrelfaas/kestrel/internal/httpapi"
	"github.com/kestrelfaas/kestrel/internal/logging"
	"github.com/kestrelfaas/kestrel/internal/metrics"
	"github.com/kestrelfaas/kestrel/internal/tracing"
)

func serveCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP dispatcher: upload, invoke, and manage functions and resources over JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.Daemon.HTTPAddr = httpAddr
			}

			logging.SetLevelFromString(cfg.Daemon.LogLevel)
			logging.InitStructured(cfg.Daemon.LogFormat, cfg.Daemon.LogLevel)
			if cfg.Daemon.RequestLogFile != "" {
				if err := logging.Default().SetOutput(cfg.Daemon.RequestLogFile); err != nil {
					logging.Op().Warn("request log file disabled", "error", err)
				}
			}
			defer logging.Default().Close()

			ctx := context.Background()
			if err := tracing.Init(ctx, tracing.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer tracing.Shutdown(context.Background())

			var registry *metrics.Registry
			if cfg.Observability.Metrics.Enabled {
				registry = metrics.Init(cfg.Observability.Metrics.Namespace, cfg.Observability.Metrics.HistogramBuckets)
			} else {
				registry = metrics.Default()
			}

			blPath := blocklistPath(cfg)
			if _, err := os.Stat(blPath); os.IsNotExist(err) {
				if err := os.MkdirAll(dataDir, 0o755); err != nil {
					return err
				}
				if err := blocklist.WriteTRI1File(blPath, strings.NewReader("")); err != nil {
					return fmt.Errorf("seed empty blocklist: %w", err)
				}
			}
			filter := egress.New(blPath)
			egress.InstallProcessWideHook(filter)
			filter.EnsureLoaded()
			filter.StartReloader(cfg.Egress.ReloadInterval)
			defer filter.Stop()

			assets, err := getAssetStore(cfg)
			if err != nil {
				return err
			}
			resources, err := getResourceStore(cfg)
			if err != nil {
				return err
			}
			if err := resources.RebuildIndex(); err != nil {
				logging.Op().Warn("resource index rebuild failed", "error", err)
			}
			defer resources.Close()

			eng := engine.New(filter, "")
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			server := httpapi.New(assets, resources, eng, cwd)

			mux := http.NewServeMux()
			mux.Handle("/", server.Handler())
			mux.Handle("/metrics", registry.Handler())

			httpServer := &http.Server{Addr: cfg.Daemon.HTTPAddr, Handler: mux}
			go func() {
				logging.Op().Info("kestrel serving", "addr", cfg.Daemon.HTTPAddr)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logging.Op().Error("http server exited", "error", err)
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logging.Op().Info("shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "override the configured HTTP listen address")
	return cmd
}
