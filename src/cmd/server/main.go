package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/api"
	"github.com/ce-fello/codeclash-service/src/internal/blob"
	"github.com/ce-fello/codeclash-service/src/internal/cache"
	"github.com/ce-fello/codeclash-service/src/internal/config"
	"github.com/ce-fello/codeclash-service/src/internal/identity"
	"github.com/ce-fello/codeclash-service/src/internal/service"
	"github.com/ce-fello/codeclash-service/src/internal/session"
	"github.com/ce-fello/codeclash-service/src/internal/store"
	fsstore "github.com/ce-fello/codeclash-service/src/internal/store/firestore"
	"github.com/ce-fello/codeclash-service/src/internal/store/memstore"

	firebase "firebase.google.com/go"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// backend is a Repository the process can health-check.
type backend interface {
	store.Repository
	Ping(ctx context.Context) error
}

func main() {
	cfg := config.Load()

	migDir := flag.String("migrations", cfg.MigrationsDir, "migrations directory")
	flag.Parse()

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var app *firebase.App
	if cfg.StoreDriver == config.DriverFirestore || !cfg.AuthDevMode {
		var err error
		if app, err = newFirebaseApp(ctx, cfg); err != nil {
			sugar.Fatalf("firebase init failed: %v", err)
		}
	}

	repo, closeRepo, err := openStore(ctx, cfg, *migDir, app, sugar)
	if err != nil {
		sugar.Fatalf("store init failed: %v", err)
	}
	defer closeRepo()

	var (
		challengeCache cache.ChallengeCache
		registry       session.Registry
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			sugar.Fatalf("redis ping failed: %v", err)
		}
		challengeCache = cache.NewRedis(rdb, cfg.CacheTTL, logger)
		registry = session.NewRedisRegistry(rdb)
		sugar.Infof("redis cache and session registry at %s", cfg.RedisAddr)
	} else {
		challengeCache = cache.NewMemory(cfg.CacheTTL)
		registry = session.NewMemoryRegistry()
		sugar.Info("no REDIS_ADDR, using in-process cache and sessions")
	}

	opts := []service.Option{service.WithCache(challengeCache)}
	if cfg.BlobEnabled() {
		blobs, err := blob.NewS3Storage(ctx, blob.S3Config{
			Endpoint:        cfg.BlobEndpoint,
			AccessKeyID:     cfg.BlobAccessKeyID,
			AccessKeySecret: cfg.BlobAccessKeySecret,
			Bucket:          cfg.BlobBucket,
			PublicURL:       cfg.BlobPublicURL,
		}, logger)
		if err != nil {
			sugar.Fatalf("blob storage init failed: %v", err)
		}
		opts = append(opts, service.WithBlobStorage(blobs))
	} else {
		sugar.Warn("blob storage not configured, uploads are disabled")
	}
	svc := service.NewService(repo, logger, opts...)

	refresher, err := cache.NewRefresher(challengeCache, repo.ListChallenges, cache.DefaultFilters(), logger)
	if err != nil {
		sugar.Fatalf("cache refresher init failed: %v", err)
	}
	if cfg.CacheRefreshInterval > 0 {
		if err := refresher.Start(cfg.CacheRefreshInterval); err != nil {
			sugar.Fatalf("cache refresher start failed: %v", err)
		}
		defer func() { _ = refresher.Stop() }()
	}

	verifier, err := newVerifier(ctx, cfg, app)
	if err != nil {
		sugar.Fatalf("identity init failed: %v", err)
	}
	tokens := identity.NewTokenIssuer(cfg.JWTKey, cfg.JWTExp)
	sessions := session.NewManager(registry, cfg.JWTExp, logger)
	if cfg.SessionSweepPeriod > 0 {
		sweeper, err := session.NewSweeper(sessions, logger)
		if err != nil {
			sugar.Fatalf("session sweeper init failed: %v", err)
		}
		if err := sweeper.Start(cfg.SessionSweepPeriod); err != nil {
			sugar.Fatalf("session sweeper start failed: %v", err)
		}
		defer func() { _ = sweeper.Stop() }()
	}
	auth := identity.NewAdapter(verifier, identity.NewGitHubClient(cfg.GitHubAPIURL), repo, sessions, tokens, logger)

	h := api.NewHandler(svc, auth, tokens.JWTAuth(), logger, repo)
	r := chi.NewRouter()
	r.Use(api.RequestIDMiddleware, api.LoggerMiddleware(logger), api.Recoverer(logger))
	api.RegisterRoutes(r, h)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infof("listening on %s (store=%s)", srv.Addr, cfg.StoreDriver)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Infof("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("server forced to shutdown: %v", err)
	}
	sugar.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func newFirebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.FirebaseCredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialsJSON)))
	}
	var fbCfg *firebase.Config
	if cfg.FirebaseProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}
	return firebase.NewApp(ctx, fbCfg, opts...)
}

func newVerifier(ctx context.Context, cfg *config.Config, app *firebase.App) (identity.Verifier, error) {
	if cfg.AuthDevMode {
		return identity.DevVerifier{}, nil
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return identity.NewFirebaseVerifier(client), nil
}

func openStore(ctx context.Context, cfg *config.Config, migDir string, app *firebase.App, sugar *zap.SugaredLogger) (backend, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		sugar.Warn("using the in-memory store, data is lost on restart")
		return memstore.New(), func() {}, nil

	case config.DriverFirestore:
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		fs := fsstore.New(client, sugar.Desugar())
		return fs, func() {
			if err := fs.Close(); err != nil {
				sugar.Errorf("failed to close firestore: %v", err)
			}
		}, nil

	case config.DriverPostgres:
		db, err := connectDBWithRetry(cfg.DatabaseURL, 15, 2*time.Second, sugar)
		if err != nil {
			return nil, nil, err
		}
		if err := runMigrations(db, migDir, sugar); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		sugar.Info("migrations applied")
		return store.NewRepositories(db, sugar.Desugar()), func() {
			if err := db.Close(); err != nil {
				sugar.Errorf("failed to close db: %v", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func connectDBWithRetry(dsn string, attempts int, delay time.Duration, sugar *zap.SugaredLogger) (*sql.DB, error) {
	var db *sql.DB
	var err error

	for i := 0; i < attempts; i++ {
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				return db, nil
			}
			_ = db.Close()
		}
		sugar.Warnf("db ping error: %v (attempt %d/%d)", err, i+1, attempts)
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("db connect failed: %w", err)
}

func runMigrations(db *sql.DB, migrationsDir string, sugar *zap.SugaredLogger) error {
	sugar.Infof("running migrations from %s", migrationsDir)

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+migrationsDir,
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("migration init: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		sugar.Info("no new migrations, already up to date")
	}
	return nil
}
