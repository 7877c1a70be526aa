package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"deepfake-detector/internal/auth"
	"deepfake-detector/internal/config"
	apphttp "deepfake-detector/internal/http"
	"deepfake-detector/internal/inference"
	"deepfake-detector/internal/logging"
	"deepfake-detector/internal/metrics"
	"deepfake-detector/internal/repository"
	"deepfake-detector/internal/repository/postgres"
	"deepfake-detector/internal/repository/sqlite"
	"deepfake-detector/internal/service"
	"deepfake-detector/internal/storage"
	"deepfake-detector/internal/upload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "deepfake-detector",
		Short:         "Deepfake detection backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), serve)
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), serve)
			},
		},
		sweepCommand(),
	)
	return root
}

// app holds what every command needs.
type app struct {
	cfg    config.Config
	logger *logrus.Logger
	db     *sql.DB
	repos  repos
}

type repos struct {
	users      repository.UserRepository
	detections repository.DetectionRepository
}

// run loads configuration, sets up logging and the database and hands them to fn.
func run(ctx context.Context, fn func(context.Context, *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return err
	}

	logger, closeLogs, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Dir:        cfg.Log.Dir,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Suppress:   cfg.Log.Suppress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
		return err
	}
	defer func() {
		_ = closeLogs()
	}()

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("invalid configuration")
		return err
	}

	db, r, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("open database")
		return err
	}
	defer db.Close()

	if err := fn(ctx, &app{cfg: cfg, logger: logger, db: db, repos: r}); err != nil {
		logger.WithError(err).Error("command failed")
		return err
	}
	return nil
}

func openDatabase(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*sql.DB, repos, error) {
	if cfg.UsesPostgres() {
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, repos{}, err
		}
		r, err := postgres.NewRepositories(ctx, db)
		if err != nil {
			db.Close()
			return nil, repos{}, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("using postgres database")
		return db, repos{users: r.Users, detections: r.Detections}, nil
	}

	db, err := sqlite.Open(cfg.Database.URL)
	if err != nil {
		return nil, repos{}, err
	}
	r, err := sqlite.NewRepositories(ctx, db)
	if err != nil {
		db.Close()
		return nil, repos{}, fmt.Errorf("init sqlite schema: %w", err)
	}
	logger.WithField("path", cfg.Database.URL).Info("using sqlite database")
	return db, repos{users: r.Users, detections: r.Detections}, nil
}

func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	archive, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}

	receiver, err := upload.NewReceiver(upload.Config{
		Dir:       cfg.Upload.Dir,
		MaxBytes:  cfg.Upload.MaxBytes,
		PublicURL: cfg.Upload.PublicPrefix,
	})
	if err != nil {
		return fmt.Errorf("setup uploads: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}

	client := inference.NewClient(inference.Config{
		BaseURL:     cfg.Inference.BaseURL,
		Timeout:     cfg.Inference.Timeout,
		MaxAttempts: cfg.Inference.MaxAttempts,
		Logger:      logger.WithField("component", "inference"),
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	users := service.NewUserService(a.repos.users, tokens, bcrypt.DefaultCost)
	stats := service.NewStatsService(a.repos.detections, cfg.Stats.CacheTTL)
	detections := service.NewDetectionService(service.DetectionConfig{
		Tokens:           users,
		Receiver:         receiver,
		Analyzer:         client,
		Detections:       a.repos.detections,
		Archive:          archive,
		ArchiveKeyPrefix: cfg.Storage.KeyPrefix,
		Stats:            stats,
		Metrics:          m,
		Logger:           logger.WithField("component", "detection"),
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logger, cfg.Upload.PublicPrefix, "/metrics"))
	apphttp.NewHandler(apphttp.Options{
		Users:        users,
		Detections:   detections,
		Stats:        stats,
		Inference:    client,
		Metrics:      m,
		Logger:       logger,
		FrontendURL:  cfg.Server.FrontendURL,
		UploadDir:    receiver.Dir(),
		PublicPrefix: cfg.Upload.PublicPrefix,
		MaxUpload:    receiver.MaxBytes(),
		RecentLimit:  cfg.Stats.RecentLimit,
	}).RegisterRoutes(router)

	for _, route := range apphttp.Routes(router) {
		logger.WithField("route", route).Info("route registered")
	}

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":      cfg.Addr(),
			"inference": cfg.Inference.BaseURL,
			"frontend":  cfg.Server.FrontendURL,
		}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}

	logger.Info("bye")
	return nil
}

// buildStorage returns nil when no bucket is configured; uploads then live
// only in the local upload directory.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Archive, error) {
	if cfg.Storage.Bucket == "" {
		logger.Info("no storage bucket configured, archive disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("archiving uploads to s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client, cfg.Storage.Bucket), nil
}
