package main

import (
	"context"
	"encoding/base64"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"pastry/cfg"
	"pastry/metrics"
	"pastry/pkg/secrets"
	"pastry/svc/access"
	"pastry/svc/api"
	"pastry/svc/auth"
	"pastry/svc/cache"
	"pastry/svc/db"
	"pastry/svc/lim"
	"pastry/svc/session"
	"pastry/svc/storage"
	"pastry/svc/svc"
	"pastry/svc/util"
)

const janitorInterval = 10 * time.Minute

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		healthCheck()
		return
	}
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Msg("starting pastry API")
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := secrets.NewProvider(ctx)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize secrets provider")
		os.Exit(1)
	}

	box, err := secrets.NewBox(ctx, provider)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load content key")
		os.Exit(1)
	}

	var pepper []byte
	if c.PepperFromSecrets {
		pepperB64, err := provider.GetSecret(ctx, "ARGON2_PEPPER")
		if err != nil {
			util.Fatal().Err(err).Msg("failed to load pepper from secrets provider")
			os.Exit(1)
		}
		pepper, err = base64.StdEncoding.DecodeString(pepperB64)
		if err != nil {
			util.Fatal().Err(err).Msg("invalid pepper format")
			os.Exit(1)
		}
	} else {
		if c.Pepper.Value() == "" {
			util.Fatal().Msg("PEPPER must be set when PEPPER_FROM_SECRETS=false")
			os.Exit(1)
		}
		pepper = []byte(c.Pepper.Value())
	}

	hasher, err := auth.NewHasher(c.Argon2Time, c.Argon2Memory, c.Argon2Parallelism, pepper)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize hasher")
		os.Exit(1)
	}
	util.Info().Msg("hasher initialized")

	sqlDB, err := db.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize database")
		os.Exit(1)
	}
	defer sqlDB.Close()
	util.Info().Str("path", c.DatabasePath).Msg("database initialized")

	var rdb *db.Redis
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(c.RedisURL, c)
		if err != nil {
			if c.Environment == "production" {
				util.Fatal().Err(err).Msg("redis required in production")
				os.Exit(1)
			}
			util.Warn().Err(err).Msg("redis unavailable (dev mode)")
		} else {
			util.Info().Msg("redis connected")
		}
	}
	if rdb != nil {
		defer rdb.Close()
	}

	lruCache, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create LRU cache")
		os.Exit(1)
	}
	util.Info().Int("size", c.LRUCacheSize).Msg("LRU cache initialized")

	var sessions session.Store
	if rdb != nil {
		sessions = session.NewRedisStore(rdb, c.SessionTTL)
	} else {
		sessions = session.NewMemoryStore(c.SessionTTL)
	}

	fileStore := storage.NewFile(c.StorageRoot)
	gate := access.NewGate(c, hasher)
	quota := lim.NewQuota(sqlDB, c)
	pasteSvc := svc.NewPaste(sqlDB, rdb, lruCache, fileStore, gate, quota, sessions, hasher, box, c)
	util.Info().Str("storage", c.PasteStorage).Msg("paste service initialized")

	throttle := lim.NewThrottle(c.Throttle.RPM, c.Throttle.Burst, c.TrustedProxies)
	defer throttle.Stop()
	util.Info().
		Int("rpm", c.Throttle.RPM).
		Int("burst", c.Throttle.Burst).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("throttle initialized")

	server := api.NewServer(c, pasteSvc, throttle, sqlDB, rdb)

	quitWAL := make(chan struct{})
	go db.StartWALMaintenance(sqlDB.DB(), quitWAL)
	util.Info().Msg("WAL maintenance worker started")

	if err := pasteSvc.StartJanitor(ctx, janitorInterval); err != nil {
		util.Error().Err(err).Msg("failed to start janitor")
	} else {
		util.Info().Msg("expired paste janitor started")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		util.Info().Str("port", c.Port).Str("environment", c.Environment).Msg("server starting")
		return server.Start()
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			util.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
		case <-gctx.Done():
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			util.Error().Err(err).Msg("server shutdown failed")
		}
		close(quitWAL)
		cancel()
		return nil
	})
	if err := g.Wait(); err != nil {
		util.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
	util.Info().Msg("shutdown complete")
}

func healthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "pastry.db"
	}
	sqlDB, err := db.NewSQLite(dbPath)
	if err != nil {
		os.Exit(1)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(ctx); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}
