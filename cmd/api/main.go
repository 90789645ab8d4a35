package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/auth"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/config"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/data"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/db"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/lifecycle"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/middleware"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	dbClient, err := db.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	defer func() {
		_ = dbClient.Close(context.Background())
	}()

	// Ensure indexes exist
	if err := dbClient.CreateIndexes(ctx); err != nil {
		log.Fatalf("failed to create indexes: %v", err)
	}

	// Create stores
	usersStore := data.NewUsersStore(dbClient.UsersCollection())
	pickupsStore := data.NewPickupsStore(dbClient.PickupsCollection())
	msgsStore := data.NewMessagesStore(dbClient.MessagesCollection())
	completion := data.NewCompletionStore(dbClient.Mongo(), pickupsStore, usersStore, cfg.Mongo.Transactions)
	if cfg.Mongo.Transactions {
		log.Printf("pickup completion uses multi-document transactions")
	}

	ctrl := lifecycle.New(usersStore, pickupsStore, msgsStore, completion)

	// JWT_KEYS enables key rotation; otherwise fall back to the single JWT_SECRET.
	var jwtMgr *auth.JWTManager
	if len(cfg.JWT.Keys) > 0 {
		jwtMgr = auth.NewJWTManagerFromKeys(cfg.JWT.Keys, cfg.JWT.ActiveKid, cfg.JWT.TTL)
	} else {
		jwtMgr = auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TTL)
	}

	limiter, closeLimiter := newLimiter(ctx, cfg)
	defer closeLimiter()

	srv := newServer(usersStore, ctrl, jwtMgr, limiter, dbClient)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("http server listening on %s", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server exit: %v", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		hs := health.NewServer()
		grpcServer = newHealthServer(hs, limiter)
		go watchDatabase(ctx, dbClient, hs, 10*time.Second)

		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Fatalf("failed to listen: %v", err)
		}
		go func() {
			log.Printf("gRPC health server listening on %s", cfg.Server.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Fatalf("gRPC server exit: %v", err)
			}
		}()
	}

	// Graceful shutdown on SIGINT/SIGTERM
	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
}

// newLimiter picks the register/login rate limit backend: Redis when
// configured so replicas share counters, otherwise in-process buckets.
func newLimiter(ctx context.Context, cfg *config.Config) (middleware.Limiter, func()) {
	if cfg.Redis.Addr == "" {
		store := middleware.NewLimiterStore(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, time.Minute)
		return store, store.Stop
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("redis ping failed: %v", err)
	}
	log.Printf("rate limits shared through redis at %s", cfg.Redis.Addr)

	return middleware.NewRedisLimiter(client, cfg.RateLimit.RequestsPerMinute, time.Minute), func() {
		if err := client.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}
}
