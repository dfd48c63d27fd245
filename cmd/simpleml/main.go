package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"simpleml/internal/cfg"
	"simpleml/internal/metrics"
	"simpleml/internal/ml"
	"simpleml/internal/roster"
	"simpleml/internal/screening"
	"simpleml/internal/storage"
	"simpleml/internal/web"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c.LogLevel, c.LogFormat)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	predictor, err := ml.NewWithMetrics(c.ModelPath, mw, c.ProbThreshold)
	if err != nil {
		log.Fatal().Err(err).Str("model_path", c.ModelPath).Msg("model load failed")
	}

	store := initializeStorage(c)
	defer store.Close()

	screener := screening.NewScreener(predictor, screening.Options{
		Encode: roster.EncodeOptions{
			GenderColumn: c.GenderColumn,
			GradeColumn:  c.GradeColumn,
		},
		DropColumns: c.DropColumns,
		NameColumn:  c.NameColumn,
	}, mw)

	meta := predictor.Metadata()
	srv, err := web.New(web.Config{
		Port:           c.HTTPPort,
		MaxUploadBytes: c.MaxUploadBytes,
		DefaultLang:    c.DefaultLang,
		NameColumn:     c.NameColumn,
		MaxDisplay:     c.MaxDisplay,
		RequestTimeout: c.RequestTimeout,
		ModelVersion:   meta.Version,
		ModelFeatures:  meta.FeatureNames,
	}, screener, store, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("server setup failed")
	}
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("server start failed")
	}

	log.Info().
		Int("port", c.HTTPPort).
		Str("model_version", meta.Version).
		Strs("features", meta.FeatureNames).
		Float64("threshold", predictor.Threshold()).
		Dur("session_ttl", c.SessionTTL).
		Msg("SimpleML ready")

	var wg sync.WaitGroup
	startPurgeLoop(ctx, &wg, store, c.SessionTTL, mw, predictor)

	waitForShutdown(ctx, cancel, &wg)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown incomplete")
	}
}

func setupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// initializeStorage opens the session store under DATA_PATH
func initializeStorage(c cfg.Settings) *storage.Store {
	if err := os.MkdirAll(c.DataPath, 0o750); err != nil {
		log.Fatal().Err(err).Str("data_path", c.DataPath).Msg("cannot create data directory")
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("data_path", c.DataPath).Msg("storage initialization failed")
	}
	return store
}

// startPurgeLoop removes expired sessions until ctx is cancelled.
func startPurgeLoop(ctx context.Context, wg *sync.WaitGroup, store *storage.Store, ttl time.Duration, mw *metrics.MetricsWrapper, predictor *ml.Predictor) {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				purged, err := store.PurgeExpired(now, ttl)
				if err != nil {
					log.Error().Err(err).Msg("session purge failed")
					continue
				}
				if purged > 0 {
					mw.SessionsPurgedAdd(purged)
					log.Info().Int("purged", purged).Msg("expired sessions removed")
				}
				if n, err := store.Count(); err == nil {
					mw.ActiveSessionsSet(n)
				}
				predictor.RefreshModelAge()
			}
		}
	}()
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
