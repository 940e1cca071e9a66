package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"casevoice/internal/audio"
	"casevoice/internal/calls"
	"casevoice/internal/config"
	"casevoice/internal/ratelimit"
	"casevoice/internal/recording"
	"casevoice/internal/transcription"
	"casevoice/internal/users"
	"casevoice/internal/webhook"
	"casevoice/pkg/logger"
	"casevoice/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Call record storage and owner resolution.
	store := calls.NewPostgresStore(db)
	directory := users.NewPostgresDirectory(db)

	// Post-call transcription pipeline: fetch, normalize, transcribe, persist.
	fetcher := recording.NewHTTPFetcher(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
	normalizer := audio.NewNormalizer(logger.Component(log, "audio"))

	var engine transcription.Engine
	if cfg.Deepgram.APIKey != "" {
		engine, err = transcription.NewDeepgramEngine(cfg.Deepgram.APIKey, cfg.Deepgram.Model)
		if err != nil {
			log.Error("transcription engine init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("deepgram not configured, recordings will not be transcribed")
		engine = transcription.EngineFunc(func(ctx context.Context, wav []byte) (string, error) {
			return "", errors.New("transcription disabled")
		})
	}
	pipeline := transcription.NewPipeline(fetcher, normalizer, engine, store,
		logger.Component(log, "transcription"))

	reconciler := webhook.NewReconciler(store, directory, pipeline,
		logger.Component(log, "reconciler"))

	// Live transcription sessions for in-progress calls.
	var sessions *transcription.Manager
	if cfg.Deepgram.APIKey != "" {
		live, err := transcription.NewDeepgramLive(cfg.Deepgram.APIKey, cfg.Deepgram.Model,
			logger.Component(log, "live-transcription"))
		if err != nil {
			log.Error("live transcription init failed", "err", err)
			os.Exit(1)
		}
		sessions = transcription.NewManager(live, store, logger.Component(log, "live-transcription"))
	}

	dialLimiter, err := ratelimit.NewRedisWindow(rdb, cfg.Calls.RateLimitMax, cfg.Calls.RateLimitWindow)
	if err != nil {
		log.Error("rate limiter init failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, cfg, routeDeps{
		Store:       store,
		Reconciler:  reconciler,
		Sessions:    sessions,
		DialLimiter: dialLimiter,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
