package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yourorg/messaging/internal/api"
	"github.com/yourorg/messaging/internal/auth"
	"github.com/yourorg/messaging/internal/config"
	"github.com/yourorg/messaging/internal/delivery"
	"github.com/yourorg/messaging/internal/hub"
	"github.com/yourorg/messaging/internal/logger"
	"github.com/yourorg/messaging/internal/ratelimit"
	"github.com/yourorg/messaging/internal/repository"
	"github.com/yourorg/messaging/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(logger.Config{Development: cfg.App.Env != "production"})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		zl.Fatalw("mongo connect", "err", err)
	}
	defer mc.Disconnect(context.Background())
	store := repository.NewMongoStore(mc.Database(cfg.Mongo.Database))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	gate := ratelimit.NewRedisGate(rdb, "msg_rl", cfg.RateLimit.Limit, cfg.RateLimit.Window)

	var writer delivery.EventWriter
	if len(cfg.Kafka.Brokers) > 0 {
		kw := &kafka.Writer{
			Addr:     kafka.TCP(cfg.Kafka.Brokers...),
			Topic:    cfg.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		}
		defer kw.Close()
		writer = kw
	}

	h := hub.New(rdb, zl)
	defer h.Shutdown()

	fanout := delivery.NewFanout(store, h, writer, zl)
	svc := service.New(store, gate, fanout, zl)

	jv := auth.NewValidator(cfg.App.JWTSecret)
	app := api.NewServer(svc, h, jv, zl)

	errChan := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.App.Port)
		zl.Infow("starting messaging service", "addr", addr)
		errChan <- app.Listen(addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		zl.Fatalw("server error", "err", err)
	case sig := <-stop:
		zl.Infow("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Warnw("shutting down server", "err", err)
	}
	zl.Infow("shutdown complete")
}
