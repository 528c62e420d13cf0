package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lexvault/internal/platform/config"
	"lexvault/internal/platform/httpserver"
	"lexvault/internal/platform/logger"
	"lexvault/internal/platform/metrics"
	"lexvault/internal/platform/postgres"
	platformredis "lexvault/internal/platform/redis"
	"lexvault/internal/platform/token"
	"lexvault/internal/privilege"
	"lexvault/internal/privilege/access"
	"lexvault/internal/privilege/audit"
	"lexvault/internal/privilege/cipher"
	"lexvault/internal/privilege/communication"
	"lexvault/internal/privilege/destruction"
	"lexvault/internal/privilege/keys"
	"lexvault/internal/privilege/relationship"
	httptransport "lexvault/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	keyManager, err := keys.Load(cfg.KeyPath, cfg.KeyPassphrase)
	if err != nil {
		log.Error("key initialization failed", "error", err)
		os.Exit(1)
	}
	defer keyManager.Destroy()

	ciph, err := cipher.New(keyManager.Material())
	if err != nil {
		log.Error("cipher construction failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	var (
		relStore   relationship.Store
		commStore  communication.Store
		auditStore audit.Store
		directory  access.Directory
	)

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(context.Background(), db); err != nil {
			log.Error("schema initialization failed", "error", err)
			os.Exit(1)
		}
		relStore = relationship.NewPostgres(db)
		commStore = communication.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		directory = access.NewPostgresDirectory(db)
		log.Info("storage backend ready", "backend", "postgres")
	} else {
		memRels := relationship.NewInMemory()
		relStore = memRels
		commStore = communication.NewInMemory(memRels)
		auditStore = audit.NewInMemory()
		directory = access.NewMemoryDirectory()
		log.Warn("storage backend ready", "backend", "memory", "durability", "none")
	}

	if cfg.RedisURL != "" {
		redisClient, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		directory = access.NewCachedDirectory(directory, redisClient, cfg.DirectoryCacheTTL)
		log.Info("staff directory cache enabled", "ttl", cfg.DirectoryCacheTTL)
	}

	auditOpts := []audit.Option{audit.WithLogger(log), audit.WithMetrics(m)}
	if len(cfg.KafkaBrokers) > 0 {
		mirror, err := audit.NewKafkaMirror(cfg.KafkaBrokers, cfg.AuditTopic, func(err error) {
			m.IncAuditMirrorFailure()
			log.Warn("audit mirror delivery failed", "error", err)
		})
		if err != nil {
			log.Error("kafka mirror setup failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mirror.Close(ctx)
		}()
		auditOpts = append(auditOpts, audit.WithMirror(mirror))
		log.Info("audit compliance mirror enabled", "topic", cfg.AuditTopic)
	}
	auditLog := audit.New(auditStore, keyManager.Material(), auditOpts...)
	auditLog.Record(context.Background(), audit.Entry{
		ActorID: "system",
		Action:  audit.ActionKeyInitialized,
		Detail:  "encryption key material loaded",
	})

	registry := relationship.New(relStore, auditLog,
		relationship.WithLogger(log),
		relationship.WithStorageTimeout(cfg.StorageTimeout),
	)
	comms := communication.New(commStore, registry, ciph, auditLog,
		communication.WithLogger(log),
		communication.WithMetrics(m),
		communication.WithStorageTimeout(cfg.StorageTimeout),
	)
	controller := access.New(directory, auditLog,
		access.WithLogger(log),
		access.WithMetrics(m),
	)
	destructions := destruction.New(comms, destruction.WithLogger(log))
	engine := privilege.NewEngine(registry, comms, controller, destructions, auditLog)

	tokens := token.NewService(cfg.JWTSigningKey)
	handler := httptransport.NewHandler(engine, tokens, log)
	server := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, engine, log))

	go func() {
		log.Info("privilege engine listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
