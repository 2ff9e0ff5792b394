package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"nebulous/internal/api"
	"nebulous/internal/config"
	"nebulous/internal/events"
	"nebulous/internal/metrics"
	"nebulous/internal/models"
	"nebulous/internal/objectstore"
	"nebulous/internal/platform"
	"nebulous/internal/platform/docker"
	"nebulous/internal/platform/iaas"
	"nebulous/internal/platform/kubernetes"
	"nebulous/internal/platform/nebulous"
	"nebulous/internal/platform/runpod"
	"nebulous/internal/queue"
	"nebulous/internal/reconciler"
	"nebulous/internal/repository"
	"nebulous/internal/scheduler"
	"nebulous/internal/vault"
	"nebulous/internal/vpn"
)

func main() {
	cfg := config.New()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.App.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	log := logger.WithField("component", "main")

	db, err := initDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	if err := autoMigrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	store := repository.NewStore(db)

	masterKey, err := vault.New(cfg.Vault.MasterKeyBase64)
	if err != nil {
		log.Fatalf("failed to initialize vault: %v", err)
	}
	secretService := vault.NewSecretService(masterKey, store.Secrets)

	ctx := context.Background()
	broker, err := objectstore.NewBroker(ctx, cfg.ObjectStore)
	if err != nil {
		log.WithError(err).Warn("object store broker unavailable, volume sync credentials will not be minted")
	}

	meshClient, err := vpn.NewClient(cfg.VPN)
	if err != nil {
		log.WithError(err).Warn("mesh VPN client unavailable, containers will not join the tailnet")
		meshClient = nil
	}

	platform.Init(store, secretService, logger, broker, cfg.ObjectStore.Bucket, meshClient, platform.CommonEnvConfig{
		APIKey:                cfg.App.RootAPIKey,
		NebulousServerURL:     cfg.App.NebulousServerURL,
		OrignServerURL:        cfg.App.OrignServerURL,
		AgentseaAuthServerURL: cfg.App.AgentseaAuthServerURL,
	})

	q, err := queue.NewClient(cfg.Redis)
	if err != nil {
		log.WithError(err).Warn("queue unavailable, falling back to direct database checks for queue exclusivity")
		q = nil
	}
	defer q.Close()

	eventsClient, err := events.NewClient(cfg.NATS)
	if err != nil {
		log.WithError(err).Warn("events publisher unavailable, lifecycle events will not be published")
		eventsClient = nil
	}
	defer eventsClient.Close()

	m := metrics.New(metrics.Config{Namespace: "nebulous", Subsystem: "control_plane"})

	registry := buildRegistry(cfg.Platform, log)

	sched := scheduler.New(registry, store, logger, m)
	rec := reconciler.New(store, registry, sched, q, cfg.Reconciler, logger, m)
	rec.Start()

	router := api.NewRouter(api.RouterConfig{
		DB:         db,
		Store:      store,
		Registry:   registry,
		Queue:      q,
		Events:     eventsClient,
		Secrets:    secretService,
		Metrics:    m,
		Log:        logger,
		RootOwner:  cfg.App.RootOwner,
		RootAPIKey: cfg.App.RootAPIKey,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Infof("starting nebulous control plane on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	rec.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Reconciler.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server forced to shutdown")
	}

	log.Info("server exited")
}

// buildRegistry constructs and registers every configured platform
// adapter. An adapter whose required credentials are missing is skipped
// with a warning rather than aborting startup: platforms are
// independently optional, and the reconciler tolerates a partially
// configured fleet.
func buildRegistry(cfg config.PlatformConfig, log *logrus.Entry) *platform.Registry {
	registry := platform.NewRegistry()

	if cfg.Runpod.APIKey != "" {
		registry.Register(runpod.New(cfg.Runpod))
		log.Info("registered runpod adapter")
	}

	if cfg.Kubernetes.Namespace != "" {
		adapter, err := kubernetes.New(cfg.Kubernetes)
		if err != nil {
			log.WithError(err).Warn("kubernetes adapter unavailable")
		} else {
			registry.Register(adapter)
			log.Info("registered kubernetes adapter")
		}
	}

	if cfg.IaaS.AccessKeyID != "" && cfg.IaaS.DefaultSSHUser != "" {
		adapter, err := iaas.New(context.Background(), cfg.IaaS)
		if err != nil {
			log.WithError(err).Warn("iaas adapter unavailable")
		} else {
			registry.Register(adapter)
			log.Info("registered iaas adapter")
		}
	}

	if cfg.Nebulous.BaseURL != "" {
		registry.Register(nebulous.New(cfg.Nebulous))
		log.Info("registered nebulous-peer adapter")
	}

	if cfg.Docker.RemoteSSHHost != "" {
		registry.Register(docker.New(cfg.Docker))
		log.Info("registered docker adapter")
	}

	return registry
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		logrus.WithError(err).Warn("failed to create uuid-ossp extension")
	}

	modelsToMigrate := []interface{}{
		&models.Container{},
		&models.Secret{},
		&models.Namespace{},
		&models.Volume{},
		&models.Processor{},
		&models.Platform{},
	}
	for _, m := range modelsToMigrate {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
	}
	return nil
}
