package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/algodrill/algodrill/internal/api/http"
	"github.com/algodrill/algodrill/internal/attempt"
	"github.com/algodrill/algodrill/internal/auth"
	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/config"
	"github.com/algodrill/algodrill/internal/db"
	"github.com/algodrill/algodrill/internal/events"
	"github.com/algodrill/algodrill/internal/execution"
	"github.com/algodrill/algodrill/internal/grading"
	"github.com/algodrill/algodrill/internal/live"
	"github.com/algodrill/algodrill/internal/sessioncache"
	"github.com/algodrill/algodrill/internal/storage"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()
	store := attempt.NewSQLStore(dbh, cfg.DBDriver)

	if created, err := auth.EnsureAdmin(ctx, dbh, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		log.Fatalf("seed admin: %v", err)
	} else if created {
		log.Printf("created admin user %q", cfg.AdminUser)
	}

	// --- Grading ---
	runner := execution.NewFromConfig(execution.Config{
		BaseURL:     cfg.Judge0URL,
		APIKey:      cfg.Judge0APIKey,
		APIHost:     cfg.Judge0Host,
		PollTimeout: cfg.CodePollTimeout,
		Concurrency: cfg.CodeConcurrency,
	})
	grader := grading.NewDefaultGrader(
		grading.WithRunner(runner),
		grading.WithMinCodeLength(cfg.MinCodeLength),
	)

	// --- Code archive ---
	var bs storage.BlobStore
	switch cfg.BlobDriver {
	case "minio":
		bs, err = storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		bs, err = storage.NewFSStore(cfg.BlobBasePath)
	}
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	svc := attempt.NewService(store, grader, attempt.WithBlobStore(bs))

	// --- Session resume ---
	var cache *sessioncache.Cache
	if cfg.RedisAddr != "" {
		cache, err = sessioncache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("session cache: %v", err)
		}
		defer cache.Close()
	}

	// --- Event relay ---
	var pub events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		defer p.Close()
		pub = p
	}
	go events.Relay(ctx, store.Events(), pub, cfg.RelayInterval)

	authSvc := authmw.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.Mount(r, api.Deps{
		Auth:    authSvc,
		DB:      dbh,
		Service: svc,
		Runner:  runner,
		Blobs:   bs,
		Live: live.NewHandler(svc,
			live.WithCache(cache),
			live.WithAllowedOrigins(cfg.CORSOrigins),
		),
		EnableLocalAuth: cfg.EnableLocalAuth,
		EnableGuestAuth: cfg.EnableGuestAuth,
		AllowClaimRole:  cfg.Mode == config.ModeOffline,
		Timeout:         30 * time.Second,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s (mode=%s, db=%s, blobs=%s, code-exec=%t)",
		cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.BlobDriver, execution.Available(runner))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
