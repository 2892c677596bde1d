package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"calorieTracker/internal/auth"
	"calorieTracker/internal/config"
	"calorieTracker/internal/db"
	"calorieTracker/internal/logging"
	"calorieTracker/internal/mealquery"
	"calorieTracker/repository"
)

func main() {
	dev := flag.Bool("dev", false, "allow a default JWT secret (development only)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}

	load := config.Load
	if *dev {
		load = config.LoadWithDefaults
	}
	cfg, err := load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(os.Stderr, cfg.Log.Level)
	ctx := context.Background()

	// The API server owns the schema; this process only reads.
	d, err := db.OpenReadOnly(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Error(ctx, "close db", "error", err)
		}
	}()

	srv := mealquery.NewServer(
		repository.NewMealRepository(d),
		auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL),
		logger,
		mealquery.Options{RateLimit: cfg.Query.RateLimit, RateBurst: cfg.Query.RateBurst},
	)
	if _, err := srv.Listen(cfg.Query.Address); err != nil {
		log.Fatalf("listen: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error(ctx, "shutdown error", "error", err)
	}
}
