package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/chess-duel/internal/archive"
	appcfg "github.com/park285/chess-duel/internal/config"
	"github.com/park285/chess-duel/internal/obslog"
	"github.com/park285/chess-duel/internal/pvp"
	"github.com/park285/chess-duel/internal/relay"
	"github.com/park285/chess-duel/internal/render"
	"github.com/park285/chess-duel/internal/sessionmirror"
	"go.uber.org/zap"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.Named("server")

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx := context.Background()
	var opts []pvp.Option

	// Redis mirror is optional; matchmaking never reads from it.
	var mirror *sessionmirror.Mirror
	if cfg.RedisURL != "" {
		mirror, err = sessionmirror.Open(ctx, cfg.RedisURL, cfg.SessionMirrorTTL)
		if err != nil {
			logger.Fatal("session_mirror_init_failed", zap.Error(err))
		}
		opts = append(opts, pvp.WithObserver(mirror))
		logger.Info("session_mirror_enabled", zap.Duration("ttl", cfg.SessionMirrorTTL))
	}

	repo, err := archive.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("archive_init_failed", zap.Error(err))
	}
	opts = append(opts, pvp.WithObserver(archive.NewRecorder(repo)))

	mgr := pvp.NewManager(opts...)
	srv := relay.NewServer(mgr, render.New(64), relay.Options{
		WSPath:         cfg.WSPath,
		AllowedOrigins: cfg.AllowedOrigins,
		ReadLimit:      cfg.WSReadLimit,
		SendBuffer:     cfg.WSSendBuffer,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening", zap.String("addr", cfg.ListenAddr), zap.String("ws_path", cfg.WSPath))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server_failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// Shutdown does not close hijacked websocket connections; relay.Close does.
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown", zap.Error(err))
	}
	if err := srv.Close(shutdownCtx); err != nil {
		logger.Warn("relay_shutdown", zap.Error(err))
	}
	if mirror != nil {
		_ = mirror.Close()
	}
	_ = repo.Close()
	logger.Info("server_stopped")
}
