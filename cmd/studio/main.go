// Package main runs the livestream studio: HTTP + WebSocket display surface, capture ingest
// and the simulated audience, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/livestudio/studio/config"
	"github.com/livestudio/studio/internal/comments"
	"github.com/livestudio/studio/internal/feed"
	"github.com/livestudio/studio/internal/media"
	"github.com/livestudio/studio/internal/middleware"
	"github.com/livestudio/studio/internal/realtime"
	"github.com/livestudio/studio/internal/recorder"
	"github.com/livestudio/studio/internal/studio"
	"github.com/livestudio/studio/pkg/redis"
	"github.com/livestudio/studio/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		newLogger("info").Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.Log.Level)
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	clock := clockwork.NewRealClock()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	hub := realtime.NewHub(logger.Named("hub"))

	var ingest *realtime.Ingest
	var devices media.Devices
	switch cfg.Capture.Mode {
	case config.CaptureSynthetic:
		devices = media.NewSynthetic(media.SyntheticConfig{
			FrameRate:       cfg.Capture.FrameRate,
			DisplayDisabled: cfg.Capture.DisplayDisabled,
		}, clock, logger.Named("synthetic"))
	default:
		ingest = realtime.NewIngest(logger, realtime.ParseICEServers(cfg.WebRTC.ICEUrls), cfg.Capture.Timeout)
		devices = ingest
	}

	s := studio.New(studio.Options{
		Devices:   devices,
		Recorders: newRecorders(cfg.Recording, clock, logger),
		Comments:  newComments(ctx, cfg.Comments, rdb, logger),
		Events:    hub,
		Clock:     clock,
		Rand:      feed.SystemRand,
		Logger:    logger.Named("studio"),
		Settings: studio.Settings{
			AmbientInterval:   cfg.Studio.AmbientInterval,
			Timeslice:         cfg.Recording.Timeslice,
			ScreenRecordDelay: cfg.Studio.ScreenRecordDelay,
			CommentTimeout:    cfg.Comments.Timeout,
			MimeTypes:         cfg.Recording.MimeTypes,
			ChatLimit:         cfg.Studio.ChatLimit,
			HeartTTL:          cfg.Studio.HeartTTL,
			Metrics: &feed.MetricsConfig{
				InitialViewers: cfg.Studio.InitialViewers,
				InitialHeat:    cfg.Studio.InitialHeat,
				Clamp:          cfg.Studio.ViewerClamp,
				Floor:          cfg.Studio.ViewerFloor,
			},
		},
	})
	if err := s.Start(ctx); err != nil {
		logger.Fatal("start studio", zap.Error(err))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger, "/health", "/api/state"))

	// Health
	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok", "clients": hub.Count()})
	})

	studio.NewHandler(s, logger).Register(router)

	// WebSocket: display events, presenter commands and capture signaling
	router.GET("/ws", realtime.ServeWs(ctx, hub, s, ingest, cfg.Server.CORSAllowedOrigins, logger.Named("ws")))

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("capture", cfg.Capture.Mode))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.Close(shutdownCtx); err != nil {
		logger.Error("studio shutdown", zap.Error(err))
	}
	stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := config.Build()
	return logger
}

// newRecorders picks the muxing backend. ffmpeg falls back to IVF when the binary is missing.
func newRecorders(cfg config.RecordingConfig, clock clockwork.Clock, logger *zap.Logger) recorder.Factory {
	log := logger.Named("recorder")
	if cfg.Backend == config.RecordingFFmpeg {
		ff := recorder.NewFFmpeg(cfg.FFmpegPath, clock, log)
		if ff.Available() {
			return ff
		}
		logger.Warn("ffmpeg not found, recording to IVF", zap.String("path", cfg.FFmpegPath))
	}
	return recorder.NewIVF(clock, log)
}

// newComments picks Gemini when a key is configured, canned lines otherwise, and caches
// Gemini responses in Redis when available.
func newComments(ctx context.Context, cfg config.CommentsConfig, rdb *redis.Client, logger *zap.Logger) comments.Source {
	log := logger.Named("comments")
	if cfg.GeminiAPIKey == "" {
		logger.Info("no GEMINI_API_KEY, using canned comments")
		return comments.NewCanned(feed.SystemRand)
	}
	gemini, err := comments.NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model, log)
	if err != nil {
		logger.Warn("gemini disabled, using canned comments", zap.Error(err))
		return comments.NewCanned(feed.SystemRand)
	}
	if rdb == nil || cfg.CacheTTL <= 0 {
		return gemini
	}
	return comments.NewCache(gemini, rdb.Client, cfg.CacheTTL, log)
}
