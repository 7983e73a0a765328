package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go.ngs.io/elevation-api/internal/adapter/watch"
	"go.ngs.io/elevation-api/internal/config"
	"go.ngs.io/elevation-api/internal/domain"
	"go.ngs.io/elevation-api/internal/elevation"
	httpHandler "go.ngs.io/elevation-api/internal/http"
	"go.ngs.io/elevation-api/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the elevation HTTP server",
	Long: `Loads configuration from the environment (and .env), registers the
configured DEM directories and geoid, and serves the HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(".")
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		logg, err := logger.New(&cfg.Log)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		defer func() { _ = logg.Sync() }()
		zap.ReplaceGlobals(logg)

		svc, err := newService(cfg, logg)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		if cfg.Elevation.Watch {
			w, err := watchSources(svc, logg)
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()
		}

		registerSources(svc, cfg.Elevation, logg)

		if cfg.Server.SourceRoot == "" {
			logg.Info("HTTP source registration disabled (SERVER_SOURCE_ROOT is empty)")
		}
		router := httpHandler.SetupRouter(svc, httpHandler.RouterOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins(),
			SourceRoot:     cfg.Server.SourceRoot,
		}, logg)
		srv := &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logg.Info("Starting server",
				zap.String("port", cfg.Server.Port),
				zap.Int("dem_sources", svc.GetDemSourceCount()),
				zap.String("geoid", svc.GetGeoidPath()))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
		case <-ctx.Done():
		}

		logg.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func newService(cfg *config.Config, logg *zap.Logger) (*elevation.Service, error) {
	svc, err := elevation.New(elevation.Options{
		Logger:        logg,
		TilePatterns:  cfg.Elevation.TilePatternList(),
		DefaultHeight: cfg.Elevation.DefaultHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("create elevation service: %w", err)
	}
	return svc, nil
}

func registerSources(svc *elevation.Service, cfg config.ElevationConfig, logg *zap.Logger) {
	for _, dir := range cfg.DemDirList() {
		if !svc.AddDemDirectory(dir) {
			logg.Warn("DEM directory not registered", zap.String("dir", dir))
		}
	}
	if cfg.GeoidPath != "" && !svc.SetGeoid(cfg.GeoidPath) {
		logg.Warn("geoid not registered", zap.String("path", cfg.GeoidPath))
	}
}

// watchSources reloads svc whenever a registered source changes on disk.
func watchSources(svc *elevation.Service, logg *zap.Logger) (*watch.Watcher, error) {
	w, err := watch.New(logg, watch.DefaultDebounce, svc.Reload)
	if err != nil {
		return nil, fmt.Errorf("start source watcher: %w", err)
	}
	svc.Subscribe(func(ev domain.ChangeEvent) {
		if !ev.OK {
			return
		}
		var err error
		switch ev.Kind {
		case domain.ChangeDemDirectoryAdded:
			err = w.AddDir(ev.Path)
		case domain.ChangeGeoidSet:
			err = w.AddFile(ev.Path)
		case domain.ChangeCleared:
			w.Reset()
		}
		if err != nil {
			logg.Warn("failed to watch source", zap.String("path", ev.Path), zap.Error(err))
		}
	})
	return w, nil
}
