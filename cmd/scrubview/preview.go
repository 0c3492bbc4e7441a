package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"scrubview/internal/clock"
	"scrubview/internal/engine"
	"scrubview/internal/engine/ffmpeg"
	"scrubview/internal/media"
	"scrubview/internal/player"
	"scrubview/internal/preview"
	"scrubview/internal/timeline"
)

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().Float64("at", 0, "timestamp in seconds")
	previewCmd.Flags().StringP("out", "o", "preview.png", "output PNG file")
	previewCmd.Flags().Duration("timeout", 30*time.Second, "give up after this long")
}

var previewCmd = &cobra.Command{
	Use:     "preview <source>",
	Short:   "Render one seek-bar preview frame to a PNG file",
	Args:    cobra.ExactArgs(1),
	Example: "  scrubview preview ./movie.mp4 --at 60 --out frame.png",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.Logging)

		at := lo.Must(cmd.Flags().GetFloat64("at"))
		out := lo.Must(cmd.Flags().GetString("out"))
		timeout := lo.Must(cmd.Flags().GetDuration("timeout"))

		eng := ffmpeg.New(cfg.Engine.FFmpegPath, cfg.Engine.FFprobePath, clock.Real(), logger)
		if !eng.IsAvailable() {
			return errors.New("ffmpeg and ffprobe are required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		ctrl := player.NewController(eng, logger)
		defer ctrl.Close()

		loaded := make(chan player.Notification, 1)
		ctrl.Subscribe(func(n player.Notification) {
			if n.Kind == player.MetadataLoaded || n.Err != nil {
				select {
				case loaded <- n:
				default:
				}
			}
		})

		src := engine.Source{URL: args[0], Type: media.SourceType(args[0])}
		if err := ctrl.Load(src); err != nil {
			return err
		}

		var duration float64
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for metadata: %w", ctx.Err())
		case n := <-loaded:
			if n.Err != nil {
				return fmt.Errorf("load %s: %w", src.URL, n.Err)
			}
			duration = n.Duration
		}

		ex := preview.NewExtractor(ctrl.Hidden(), preview.ExtractorOptions{Width: cfg.Preview.Width}, logger)
		defer ex.Close()

		images := make(chan preview.Image, 1)
		ex.Subscribe(func(img preview.Image) {
			select {
			case images <- img:
			default:
			}
		})

		ts := lo.Clamp(at, 0, duration)
		ex.Request(ts)

		select {
		case <-ctx.Done():
			return fmt.Errorf("no frame decoded at %s: %w", timeline.FormatTime(ts), ctx.Err())
		case img := <-images:
			data, err := img.PNG()
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return err
			}
			logger.Info().
				Str("source", src.URL).
				Float64("timestamp", img.Timestamp).
				Int("width", img.Width()).
				Int("height", img.Height()).
				Str("out", out).
				Msg("preview written")
			return nil
		}
	},
}
