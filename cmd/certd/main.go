package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stratohost/certd/internal/api"
	"github.com/stratohost/certd/internal/archive"
	"github.com/stratohost/certd/internal/certificate"
	"github.com/stratohost/certd/internal/config"
	"github.com/stratohost/certd/internal/events"
	"github.com/stratohost/certd/internal/health"
	"github.com/stratohost/certd/internal/i18n"
	"github.com/stratohost/certd/internal/logger"
	"github.com/stratohost/certd/internal/mailer"
	"github.com/stratohost/certd/internal/metrics"
	appmw "github.com/stratohost/certd/internal/middleware"
	"github.com/stratohost/certd/internal/repository"
)

func main() {
	cfg := config.Load()

	log := logger.New(logger.DefaultConfig())
	slog.SetDefault(log)

	if cfg.Auth.TokenSecret == "" {
		log.Error("AUTH_TOKEN_SECRET environment variable is required")
		os.Exit(1)
	}

	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	certRepo := repository.NewPostgresCertificateRepository(dbPool)
	domainRepo := repository.NewPostgresDomainRepository(dbPool)
	projectCache := repository.NewRedisProjectCache(redisClient)

	mail, err := setupMailer(cfg, log)
	if err != nil {
		log.Error("failed to configure mail dispatcher", "error", err)
		os.Exit(1)
	}

	var (
		archiver certificate.Archiver
		restorer api.Restorer
	)
	if cfg.Archive.Enabled {
		svc, err := archive.NewService(&cfg.Archive, cfg.Certificates.StorageRoot)
		if err != nil {
			log.Error("failed to configure artifact archive", "error", err)
			os.Exit(1)
		}
		archiver = svc
		restorer = svc
	}

	bus := events.NewEventBus()
	bus.Subscribe("", func(event events.Event) {
		metrics.LifecycleEventsTotal.WithLabelValues(event.Type).Inc()
	})

	orchestrator := certificate.NewOrchestrator(certificate.OrchestratorConfig{
		Repository: certRepo,
		Validator: certificate.NewDomainValidator(certificate.DomainValidatorConfig{
			ProxyTargetDomain: cfg.Certificates.ProxyTargetDomain,
			Timeout:           cfg.Certificates.DNSTimeout,
			Logger:            log,
		}),
		Renewal: certificate.NewRenewalEngine(cfg.Certificates.StorageRoot),
		Issuer: certificate.NewIssuer(certificate.IssuerConfig{
			CertbotBin:     cfg.Certificates.CertbotBin,
			WebrootPath:    cfg.Certificates.WebrootPath,
			ProductionMode: cfg.Certificates.ProductionMode,
			Logger:         log,
		}),
		Deployer: certificate.NewDeployer(certificate.DeployerConfig{
			StorageRoot:  cfg.Certificates.StorageRoot,
			ConfigRoot:   cfg.Certificates.ConfigRoot,
			ToolLiveRoot: cfg.Certificates.ToolLiveRoot,
			Logger:       log,
		}),
		Notifier: certificate.NewFailureNotifier(certificate.FailureNotifierConfig{
			Mailer:        mail,
			Catalog:       i18n.NewCatalog(cfg.Certificates.DefaultLocale),
			SecurityEmail: cfg.Certificates.SecurityEmail,
			SenderName:    cfg.Mailer.SenderName,
			Logger:        log,
		}),
		FanOut: certificate.NewFanOutUpdater(certificate.FanOutUpdaterConfig{
			Domains:  domainRepo,
			Projects: projectCache,
			Logger:   log,
		}),
		Archive:       archiver,
		EventBus:      bus,
		PrimaryDomain: cfg.Certificates.PrimaryDomain,
		SecurityEmail: cfg.Certificates.SecurityEmail,
		Logger:        log,
	})

	dispatcher := certificate.NewDispatcher(orchestrator, cfg.Certificates.MaxConcurrentRuns, log)

	healthHandler := health.NewHandler(health.Config{
		DBPool:      dbPool,
		RedisClient: redisClient,
		StorageRoot: cfg.Certificates.StorageRoot,
		Version:     version,
	})

	dbStats := metrics.NewDBStatsCollector(dbPool, log)
	dbStats.Start(30 * time.Second)
	defer dbStats.Stop()

	certHandler := api.NewCertificateHandler(certRepo, dispatcher, restorer, log)
	authMiddleware := appmw.NewAuthMiddleware(cfg.Auth.TokenSecret, cfg.Auth.Issuer)
	loggingMiddleware := appmw.NewLoggingMiddleware(log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(loggingMiddleware.Handler)
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Mount("/certificates", certHandler.Routes())
		})
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	// Let in-flight certificate passes finish before the pool closes
	if err := dispatcher.Shutdown(ctx); err != nil {
		log.Error("dispatcher shutdown timed out", "error", err)
	}

	log.Info("server exited")
}

// version is set at build time via -ldflags
var version = "dev"

func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func setupMailer(cfg *config.Config, log *slog.Logger) (mailer.Mailer, error) {
	switch cfg.Mailer.Driver {
	case "postmark":
		return mailer.NewPostmarkSender(mailer.PostmarkConfig{
			ServerToken:  cfg.Mailer.PostmarkServerToken,
			AccountToken: cfg.Mailer.PostmarkAccountToken,
			SenderEmail:  cfg.Mailer.SenderEmail,
		})
	default:
		return mailer.NewDevSender(log), nil
	}
}
