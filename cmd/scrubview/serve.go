package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"scrubview/internal/api"
	"scrubview/internal/clock"
	"scrubview/internal/engine/ffmpeg"
	"scrubview/internal/preview"
	"scrubview/internal/server"
	"scrubview/internal/storage"
	"scrubview/internal/surface"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the player control API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		logger := setupLogger(cfg.Logging)

		logger.Info().
			Str("version", api.Version).
			Msg("starting scrubview server")

		// Initialize storage
		var store *storage.SQLiteStorage
		var positions surface.PositionStore
		var playback api.PlaybackStore
		if cfg.Database.Enabled {
			store, err = storage.NewSQLiteStorage(cfg.Database.Path)
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to initialize storage")
			}
			defer store.Close()
			positions, playback = store, store
		}

		clk := clock.Real()
		eng := ffmpeg.New(cfg.Engine.FFmpegPath, cfg.Engine.FFprobePath, clk, logger.With().Str("component", "engine").Logger())
		if eng.IsAvailable() {
			logger.Info().Msg("ffmpeg and ffprobe available - previews enabled")
		} else {
			logger.Warn().Msg("ffmpeg or ffprobe not found - sources will fail to load")
		}

		s := surface.New(eng, clk, surface.Options{
			Preview: preview.ExtractorOptions{
				Width:         cfg.Preview.Width,
				CacheCapacity: cfg.Preview.CacheCapacity,
				CacheMaxSize:  cfg.Preview.CacheMaxSize,
				CacheBucket:   cfg.Preview.CacheBucket,
			},
			Debounce:        cfg.Preview.Debounce,
			RefreshInterval: cfg.Progress.RefreshInterval,
		}, positions, logger)
		defer s.Close()

		srv := server.New(cfg, logger, s, playback, "ffmpeg")

		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logger.Info().Msg("received shutdown signal")

			if err := srv.Shutdown(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown error")
			}
		}()

		// Start server
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("server error")
			return err
		}

		logger.Info().Msg("server stopped")
		return nil
	},
}
