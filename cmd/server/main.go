package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/Roomscribe/internal/adapters/http"
	"github.com/dkeye/Roomscribe/internal/adapters/docgen"
	"github.com/dkeye/Roomscribe/internal/adapters/transcriber"
	"github.com/dkeye/Roomscribe/internal/app"
	"github.com/dkeye/Roomscribe/internal/app/capture"
	"github.com/dkeye/Roomscribe/internal/app/ingest"
	"github.com/dkeye/Roomscribe/internal/app/orch"
	"github.com/dkeye/Roomscribe/internal/config"
)

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cmd := &cobra.Command{
		Use:           "roomscribe",
		Short:         "Real-time meeting rooms with live transcription",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	config.Flags(cmd.Flags())

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("exit")
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	applyLevel(cfg.LogLevel)
}

func applyLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, v, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg)
	config.Watch(v, func(c *config.Config) { applyLevel(c.LogLevel) })

	o := orch.New(orch.Deps{
		Rooms:       app.NewRoomManager(cfg.ReapGrace),
		Policy:      app.SimplePolicy{},
		Transcriber: transcriber.New(cfg.Transcriber.URL, cfg.Transcriber.Timeout),
		Renderer:    docgen.New(cfg.Docgen.URL, cfg.Docgen.Timeout),
		Ingest: ingest.Config{
			Workers:      cfg.Ingest.Workers,
			QueueSize:    cfg.Ingest.QueueSize,
			Retries:      cfg.Ingest.Retries,
			RetryBackoff: cfg.Ingest.RetryBackoff,
			Language:     cfg.Language,
			Diarize:      cfg.Ingest.Diarize,
			RateLimit:    cfg.Ingest.AudioRate,
			Burst:        cfg.Ingest.AudioBurst,
		},
		Capture: capture.Config{
			PacketsPerChunk: cfg.Capture.PacketsPerChunk,
			Denoise:         cfg.Capture.Denoise,
		},
		Language: cfg.Language,
	})
	if err := o.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Roomscribe server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	o.Stop()
	log.Info().Msg("Server exited gracefully")
	return nil
}
