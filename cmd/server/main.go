package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"vendaflow/backend/internal/cache"
	"vendaflow/backend/internal/config"
	"vendaflow/backend/internal/events"
	"vendaflow/backend/internal/httpapi"
	"vendaflow/backend/internal/service"
	"vendaflow/backend/internal/store"
	"vendaflow/backend/internal/store/memory"
	"vendaflow/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[server] WARN: loading .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[server] config: %v", err)
	}
	if cfg.AuthSecret == "" {
		log.Fatal("[server] AUTH_SECRET must be set")
	}

	var closers []io.Closer

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[server] postgres: %v", err)
		}
		if err := pg.Migrate(); err != nil {
			log.Fatalf("[server] migrations: %v", err)
		}
		repo = pg
		closers = append(closers, pg)
		log.Println("[server] using postgres store")
	} else {
		repo = memory.NewSeeded()
		log.Println("[server] DATABASE_URL not set, using seeded in-memory store")
	}

	var reports cache.ReportCache = cache.NoopReportCache{}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[server] WARN: redis unreachable, report cache disabled: %v", err)
			client.Close()
		} else {
			reports = cache.NewRedisReportCache(client, cfg.ReportCacheTTL)
			closers = append(closers, client)
			log.Println("[server] report cache on redis")
		}
		cancel()
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.AMQPURL != "" {
		rmq, err := events.NewRabbitMQPublisher(cfg.AMQPURL)
		if err != nil {
			log.Printf("[server] WARN: rabbitmq unreachable, events disabled: %v", err)
		} else {
			publisher = rmq
			closers = append(closers, rmq)
			log.Println("[server] publishing sale events to rabbitmq")
		}
	}

	svc := service.New(repo, reports, publisher, cfg.Location())
	auth := httpapi.NewAuthManager(repo, cfg.AuthSecret, cfg.AccessTokenTTL)
	api := httpapi.NewServer(svc, auth, cfg.AllowedOrigin)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("[server] listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[server] listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("[server] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[server] WARN: shutdown: %v", err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Printf("[server] WARN: close: %v", err)
		}
	}
}
