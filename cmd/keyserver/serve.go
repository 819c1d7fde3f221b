package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/audit"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/config"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/license"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/logging"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/metrics"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/release"
	transport "github.com/CloudNativeWorks/cnw-keyserver/internal/transport/http"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	cfg, err := config.Load(config.WithConfigFile(file), config.WithEnvFiles(envFiles...))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, logCloser, err := logging.NewLogger(logging.Config{
		ServiceName: "keyserver",
		Environment: cfg.Environment,
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(context.Background()); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	auditLog := audit.NewLog(store, audit.WithLogger(logger))
	registry := license.NewRegistry(store,
		license.WithLogger(logger),
		license.WithAudit(auditLog),
	)
	api := transport.NewServer(transport.Deps{
		Registry: registry,
		Engine:   license.NewEngine(registry, auditLog),
		Audit:    auditLog,
		Releases: release.NewLedger(store, release.WithLogger(logger), release.WithAudit(auditLog)),
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("keyserver listening",
			"addr", cfg.Server.Addr, "store", cfg.Store.Driver, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
