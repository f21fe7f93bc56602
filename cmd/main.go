/**
 * @description
 * This is the main entry point for the aggregator-service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection, the Redis transaction cache, the upstream provider
 * client, the message broker, the core application service, and the HTTP
 * server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for the transaction cache.
 * - internal/api, internal/app, internal/cache, internal/config, internal/store,
 *   internal/token: Internal packages for the service.
 * - pkg/bankclient: Client for the upstream Open-Banking provider.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/truestack/aggregator-service/internal/api"
	"github.com/truestack/aggregator-service/internal/app"
	"github.com/truestack/aggregator-service/internal/cache"
	"github.com/truestack/aggregator-service/internal/config"
	"github.com/truestack/aggregator-service/internal/store"
	"github.com/truestack/aggregator-service/internal/token"
	"github.com/truestack/aggregator-service/pkg/bankclient"
	rmrabbit "github.com/truestack/aggregator-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.SessionTokenSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"session token secret must be configured\" env=SESSION_TOKEN_SECRET")
	}
	sealKey, err := cfg.TokenSealKey()
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"token seal key invalid\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting aggregator-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Connect Redis for the transaction cache. The cache is a disposable
	// projection, so a missing or unreachable Redis degrades to reading the
	// durable store instead of blocking startup.
	var redisClient *redis.Client
	if cfg.RedisURL == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; transaction cache disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; transaction cache disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; transaction cache disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the RabbitMQ producer for sync-completed audit events.
	// This service only publishes, so it uses a producer with a no-op fallback.
	var producer rmrabbit.Publisher
	eventProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the upstream Open-Banking provider.
	bankClient := bankclient.NewClient(
		cfg.BankAuthBaseURL,
		cfg.BankDataBaseURL,
		cfg.BankClientID,
		cfg.BankClientSecret,
		cfg.BankRedirectURI,
	)

	// Credential material: session token codec and at-rest token sealer.
	codec := token.NewCodec([]byte(cfg.SessionTokenSecret))
	sealer, err := token.NewSealer(sealKey)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"sealer init failed\" err=%v", err)
	}

	// Initialize the data access layer and the transaction cache.
	repository := store.NewPostgresRepository(dbpool)
	transactionCache := cache.NewTransactionCache(redisClient)

	// Initialize the core application service with its dependencies.
	aggregatorService := app.NewService(
		repository,
		bankClient,
		transactionCache,
		producer,
		codec,
		sealer,
		app.Options{
			CacheTTL:        time.Duration(cfg.CacheTTLSeconds) * time.Second,
			UpstreamTimeout: time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second,
			DedupTimeout:    time.Duration(cfg.DedupTimeoutSeconds) * time.Second,
			EventExchange:   cfg.SyncEventExchange,
		},
	)

	// Initialize the API handlers and router.
	handlers := api.NewAggregatorHandlers(aggregatorService)
	router := api.Routes(handlers, aggregatorService)

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
