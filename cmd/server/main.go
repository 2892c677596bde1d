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
	"calorieTracker/internal/chatbot"
	"calorieTracker/internal/config"
	"calorieTracker/internal/db"
	"calorieTracker/internal/httpapi"
	"calorieTracker/internal/imagestore"
	"calorieTracker/internal/logging"
	"calorieTracker/repository"
)

func main() {
	rollback := flag.Bool("rollback", false, "roll back the last applied migration and exit")
	dev := flag.Bool("dev", false, "allow a default JWT secret (development only)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}

	// Load configuration
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
	logger.Info(ctx, "configuration loaded", "config", cfg.String())

	// Open DB
	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Error(ctx, "close db", "error", err)
		}
	}()
	if *rollback {
		if err := db.RollbackLast(d); err != nil {
			log.Fatalf("rollback: %v", err)
		}
		v, _ := db.Version(d)
		logger.Info(ctx, "rolled back last migration", "version", v)
		return
	}

	passwords, err := auth.NewPasswordScheme(cfg.Auth.PasswordScheme)
	if err != nil {
		log.Fatalf("password scheme: %v", err)
	}
	images, uploadDir, err := newImageStore(ctx, cfg)
	if err != nil {
		log.Fatalf("image store: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Users:     repository.NewUserRepository(d),
		Meals:     repository.NewMealRepository(d),
		Tokens:    auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL),
		Passwords: passwords,
		Images:    images,
		Assistant: &chatbot.Runner{
			Command: cfg.Chatbot.Command,
			Args:    cfg.Chatbot.Args,
			Dir:     cfg.Chatbot.Dir,
			Timeout: cfg.Chatbot.Timeout,
			Env:     []string{chatbot.QueryAddressEnv + "=" + cfg.Query.Address},
		},
		Log:            logger,
		CookieSecure:   cfg.HTTP.CookieSecure,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		UploadDir:      uploadDir,
		CORSOrigins:    cfg.HTTP.CORSOrigins,

		AssistantTokenTTL: cfg.Chatbot.Timeout + time.Minute,
	})

	// Start HTTP
	addr, shutdown, err := httpapi.Start(api, httpapi.ServerOptions{
		Addr:         cfg.HTTP.Address,
		WriteTimeout: cfg.Chatbot.Timeout + 30*time.Second,
	})
	if err != nil {
		log.Fatalf("start http: %v", err)
	}
	logger.Info(ctx, "http server listening", "addr", addr.String())

	// Wait for signal
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error(ctx, "shutdown error", "error", err)
	}
}

// newImageStore returns the configured store and, for local storage, the
// directory the HTTP server should expose.
func newImageStore(ctx context.Context, cfg *config.Config) (imagestore.Store, string, error) {
	if cfg.Upload.Backend == "s3" {
		s3cfg := cfg.Upload.S3
		store, err := imagestore.NewS3(ctx, imagestore.S3Options{
			Bucket:        s3cfg.Bucket,
			Region:        s3cfg.Region,
			Endpoint:      s3cfg.Endpoint,
			AccessKey:     s3cfg.AccessKey,
			SecretKey:     s3cfg.SecretKey,
			PublicBaseURL: s3cfg.PublicBaseURL,
		})
		return store, "", err
	}
	return imagestore.NewLocal(cfg.Upload.Dir, httpapi.UploadURLPrefix), cfg.Upload.Dir, nil
}
