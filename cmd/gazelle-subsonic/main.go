package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/welp-ops/gazelle-subsonic/internal/config"
	"github.com/welp-ops/gazelle-subsonic/internal/gazelle"
	"github.com/welp-ops/gazelle-subsonic/internal/subsonic"
	"github.com/welp-ops/gazelle-subsonic/internal/torrents"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	catalog := gazelle.New(gazelle.Config{
		BaseURL:   cfg.Gazelle.BaseURL,
		AuthToken: cfg.Gazelle.AuthToken,
		PageSize:  cfg.Gazelle.SearchPageSize,
	}, policy, logger)

	orchestrator, err := torrents.New(torrents.Config{
		BaseURL:    cfg.Gazelle.BaseURL,
		Passkey:    cfg.Gazelle.Passkey,
		DataDir:    cfg.Torrent.DataDir,
		ListenPort: cfg.Torrent.ListenPort,
		PeerID:     cfg.Torrent.PeerID,
	}, logger)
	if err != nil {
		return err
	}
	defer orchestrator.Close()

	server := subsonic.New(subsonic.Config{
		Users:               cfg.Users,
		CORSAllowAll:        cfg.Server.CORSOrigins.AllowAll,
		CORSOrigins:         cfg.Server.CORSOrigins.Origins,
		DefaultCoverArtPath: cfg.Subsonic.DefaultCoverArt,
		DefaultCoverArtType: cfg.Subsonic.DefaultCoverArtType,
	}, catalog, orchestrator, subsonic.WithLogger(logger))

	addr := net.JoinHostPort(cfg.Server.BindIP, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{Addr: addr, Handler: server}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server up", "addr", addr, "tracker", cfg.Gazelle.BaseURL)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
