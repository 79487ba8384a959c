package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/services"
	httphandlers "streamcorder/internal/handlers/http"
	"streamcorder/internal/infrastructure/broadcast"
	"streamcorder/internal/infrastructure/monitoring"
	"streamcorder/internal/infrastructure/recording"
	"streamcorder/internal/infrastructure/repositories/sqlite"
	"streamcorder/internal/infrastructure/upload"
	"streamcorder/internal/infrastructure/youtube"
	"streamcorder/pkg/config"
	"streamcorder/pkg/logger"
	"streamcorder/pkg/retry"
	"streamcorder/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/streamcorder/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "streamcorder",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Open the durable store
	db, err := sqlite.Open(cfg.Upload.DatabasePath)
	if err != nil {
		log.Fatalw("failed to open database", "path", cfg.Upload.DatabasePath, "error", err)
	}
	defer db.Close()

	jobStore := sqlite.NewUploadJobStore(db)
	credStore := sqlite.NewCredentialStore(db)

	// Build the stream registry from configuration
	streams := make([]domain.StreamConfig, 0, len(cfg.Streams))
	for _, s := range cfg.Streams {
		streams = append(streams, domain.StreamConfig{
			Name:            s.Name,
			WebRTCURL:       s.WebRTCURL,
			RTSPURL:         s.RTSPURL,
			EncoderTemplate: s.FFmpegCmd,
			OutputDir:       s.VideoDir,
			Width:           s.Width,
			Height:          s.Height,
			Enabled:         s.Enabled,
			UploadToYouTube: s.UploadToYouTube,
		})
	}
	registry, err := services.NewStreamRegistry(streams)
	if err != nil {
		log.Fatalw("invalid stream configuration", "error", err)
	}

	broadcaster := broadcast.NewBroadcaster(cfg.Broadcast.BufferSize, log)
	metrics := monitoring.NewCollector(prometheus.DefaultRegisterer)

	// YouTube auth and upload pipeline
	authManager, err := youtube.NewAuthManager(context.Background(), youtube.AuthConfig{
		ClientID:        cfg.YouTube.ClientID,
		ClientSecret:    cfg.YouTube.ClientSecret,
		RedirectURL:     cfg.YouTube.RedirectURL,
		PendingStateTTL: cfg.YouTube.PendingStateTTL,
		RefreshMargin:   cfg.YouTube.RefreshMargin,
	}, credStore, broadcaster, log)
	if err != nil {
		log.Fatalw("failed to initialize auth manager", "error", err)
	}

	uploader := youtube.NewUploader(authManager, youtube.UploaderConfig{
		Privacy:        cfg.YouTube.Privacy,
		CategoryID:     cfg.YouTube.CategoryID,
		RequestsPerMin: cfg.Upload.RequestsPerMin,
	}, log)

	queue, err := upload.NewQueue(jobStore, uploader, broadcaster, metrics, upload.Config{
		Workers:     cfg.Upload.Workers,
		QueueSize:   cfg.Upload.QueueSize,
		MaxAttempts: cfg.Upload.MaxAttempts,
		Backoff: retry.Config{
			MaxAttempts:  cfg.Upload.MaxAttempts,
			InitialDelay: cfg.Upload.InitialBackoff,
			MaxDelay:     cfg.Upload.MaxBackoff,
			Multiplier:   2,
			Jitter:       true,
		},
	}, log)
	if err != nil {
		log.Fatalw("failed to start upload queue", "error", err)
	}

	// Recording supervisor
	supervisor := recording.NewSupervisor(registry, broadcaster, queue,
		recording.NewExecRunner(), metrics, recording.Config{
			StartGracePeriod: cfg.Recording.StartGracePeriod,
			StopGracePeriod:  cfg.Recording.StopGracePeriod,
			MaxRestarts:      cfg.Recording.MaxRestarts,
			Backoff: retry.Config{
				MaxAttempts:  cfg.Recording.MaxRestarts,
				InitialDelay: cfg.Recording.RestartInitialDelay,
				MaxDelay:     cfg.Recording.RestartMaxDelay,
				Multiplier:   2,
				Jitter:       true,
			},
		}, log)

	discovery := services.NewVideoDiscovery(registry, log)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(httphandlers.TracingMiddleware())

	commandHandler := httphandlers.NewCommandHandler(supervisor, authManager, queue, discovery, log)
	commandHandler.RegisterRoutes(router)

	// Push channel for UI clients
	router.GET("/ws", gin.WrapF(broadcaster.HandleWebSocket))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		status := supervisor.Status()
		c.JSON(200, gin.H{
			"status":         "healthy",
			"timestamp":      time.Now(),
			"uptime":         time.Since(startTime).String(),
			"active_streams": status.ActiveStreams,
			"auth_state":     authManager.State().String(),
		})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting streamcorder server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down streamcorder...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	}

	// Stop recordings first so finished files still reach the queue,
	// then drain the queue and the push channel.
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error stopping recordings", "error", err)
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error stopping upload queue", "error", err)
	}
	if err := broadcaster.Close(shutdownCtx); err != nil {
		log.Errorw("Error closing broadcaster", "error", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	log.Info("Shutdown complete")
}
