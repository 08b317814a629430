package main

import (
	"context"
	"database/sql"
	"log"

	"secure-upload/config"
	"secure-upload/internal/handler"
	"secure-upload/internal/progress"
	"secure-upload/internal/redis"
	"secure-upload/internal/repository"
	"secure-upload/internal/secrets"
	"secure-upload/internal/server"
	"secure-upload/internal/services"
	"secure-upload/internal/storage"
	"secure-upload/pkg/database"
	"secure-upload/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)

	ctx := context.Background()

	storageClient, err := storage.NewClient(ctx, storage.S3Config{
		Region:    cfg.AWSRegion,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
		Endpoint:  cfg.AWSEndpoint,
	})
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	secretClient, err := secrets.NewClient(ctx, secrets.Config{
		Region:    cfg.AWSRegion,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
		Prefix:    cfg.SecretPrefix,
	})
	if err != nil {
		log.Fatalf("Failed to initialize secret store: %v", err)
	}

	var db *sql.DB
	var historyRepo repository.UploadRepository
	db, err = database.Connect(database.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
	})
	if err != nil {
		l.Warnf("Database unavailable, upload history disabled: %s", err)
		db = nil
	} else {
		if err := repository.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("Failed to prepare schema: %v", err)
		}
		historyRepo = repository.NewUploadRepository(db)
	}

	var redisClient *goredis.Client
	var limiter *redis.RateLimiter
	if cfg.RedisHost != "" {
		redisClient = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		limitCfg := redis.DefaultRateLimitConfig()
		limitCfg.UploadLimit = cfg.UploadsPerMinute
		limiter = redis.NewRateLimiter(redisClient, limitCfg)
	}

	registry := progress.NewRegistry(cfg.ProgressRetain)
	registry.StartJanitor(cfg.ProgressRetain / 2)
	defer registry.Stop()

	uploader := storage.NewMultipartUploader(
		storageClient.API(), storageClient.Bucket(),
		cfg.ChunkSizeBytes, cfg.PartRetryLimit, cfg.PartRetryBackoff, l)

	var history services.HistoryStore
	if historyRepo != nil {
		history = historyRepo
	}
	uploadService := services.NewUploadService(
		registry, uploader, secretClient, history, l,
		cfg.MaxUploadBytes, cfg.JobTimeout)

	handlers := &server.Handlers{
		Upload: handler.NewUploadHandler(uploadService, historyRepo),
		Health: handler.NewHealthHandler(db, redisClient, cfg.S3Bucket != ""),
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(handlers, limiter)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
