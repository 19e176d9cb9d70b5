package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/auberginewly/TodoList-be/core"
)

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	if err := core.Migrate(ctx, cfg.DatabaseURL); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	hasher := core.NewBcryptHasher(cfg.BcryptCost)
	codec := core.NewTokenCodec([]byte(cfg.JWTSecret), cfg.TokenTTL)
	limiter := core.NewLoginRateLimiter(redisClient, cfg.LoginRateLimit, time.Duration(cfg.LoginRateWindowSec)*time.Second)

	userRepo := core.NewPgUserRepository(db)
	todoRepo := core.NewPgTodoRepository(db)
	authService := core.NewAuthService(userRepo, hasher)
	todoService := core.NewTodoService(todoRepo)

	status := core.NewStatusCollector(db, redisClient, time.Now())

	router := core.NewRouter(cfg, codec, authService, todoService, limiter, status)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
