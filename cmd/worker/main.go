package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"classdesk/internal/cloudinary"
	"classdesk/internal/config"
	"classdesk/internal/exports"
	"classdesk/internal/logging"
	"classdesk/internal/queue"
	"classdesk/internal/store"
)

// Worker consumes export jobs, renders spreadsheets and uploads them.
func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.Production())
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory runs exports inside the api process; the worker needs redis")
	}
	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}
	q := queue.NewRedisQueue(redisClient.Client, "")

	var up exports.Uploader
	if cfg.CloudinaryConfigured() {
		up = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		log.Warn("cloudinary not configured, exports will be marked failed")
	}

	proc := exports.NewProcessor(exports.NewRepository(db.Client), up, log)
	log.Info("worker started, waiting for exports")
	if err := exports.Run(ctx, q, proc, log); err != nil && ctx.Err() == nil {
		log.Error("worker stopped", zap.Error(err))
	}
	log.Info("worker stopped")
}
