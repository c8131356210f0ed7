package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oncosaferx/edge/internal/config"
	"github.com/oncosaferx/edge/internal/logging"
	"github.com/oncosaferx/edge/internal/mcp"
	"github.com/oncosaferx/edge/internal/proxy"
	"github.com/oncosaferx/edge/internal/rxnorm"
	"github.com/oncosaferx/edge/internal/server"
	"github.com/oncosaferx/edge/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("edge stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("edge stopped")
}

type syncStore interface {
	server.Store
	mcp.Reader
	Close() error
}

func openStore(cfg *config.Config) (syncStore, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return store.NewPostgres(cfg.DatabaseURL, cfg.DBAutoMigrate)
	case config.DriverSQLite:
		return store.New(cfg.DBPath)
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// 2. Store
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()
	logger.Info("database initialized", zap.String("driver", cfg.DBDriver))

	// 3. Proxy
	proxyHandler, err := proxy.New(proxy.Options{
		BackendURL: cfg.BackendURL,
		Prefix:     cfg.ProxyPrefix,
		Timeout:    cfg.ProxyTimeout,
		CORS: proxy.CORS{
			LocalOrigin:    cfg.LocalOrigin,
			AllowedOrigins: cfg.CORSAllowedOrigins,
		},
	}, logger.Named("proxy"))
	if err != nil {
		return err
	}
	proxyMux := http.NewServeMux()
	proxyMux.Handle(cfg.ProxyPrefix+"/", proxyHandler)
	proxyMux.Handle(cfg.ProxyPrefix, proxyHandler)

	// 4. Admin sync
	opts := server.Options{
		AdminSecret:       cfg.AdminSecret,
		SupabaseJWTSecret: cfg.SupabaseJWTSecret,
		Managed:           cfg.DBDriver == config.DriverPostgres,
		Version:           cfg.Version,
		Warnings:          cfg.Warnings(),
	}
	if cfg.MCPEnabled {
		opts.MCP = mcp.NewServer(st, cfg.Version, logger.Named("mcp")).Handler()
	}
	if cfg.RxNormResolve {
		opts.Resolver = rxnorm.New(cfg.RxNormBaseURL)
	}
	adminSrv := server.New(st, opts, logger.Named("admin"))

	for _, w := range opts.Warnings {
		logger.Warn("configuration warning", zap.String("warning", w))
	}

	servers := []*http.Server{
		{Addr: cfg.ProxyAddr, Handler: proxyMux, ReadHeaderTimeout: 10 * time.Second},
		// No write timeout: /mcp holds SSE streams open.
		{Addr: cfg.AdminAddr, Handler: adminSrv.Routes(), ReadTimeout: 15 * time.Second},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("server starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
