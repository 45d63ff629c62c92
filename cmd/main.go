package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/handler"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/cache"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/config"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/conn"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/lock"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/logger"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/middle"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/opensearch"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/queue"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/schedule"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/payment"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/reconcile"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/router"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/split"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/webhook"
)

var (
	cfg              *config.AppConfig
	openSearchLogger *opensearch.Logger
	openSearchClient *opensearch.Client
)

func init() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	cfg = config.Load()

	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			openSearchClient = osClient
			openSearchLogger = opensearch.NewLogger(osClient)
			log.Println("OpenSearch logging initialized successfully")
		}
	} else {
		log.Println("OpenSearch logging is disabled")
	}
	logger.InitGlobalLogger(openSearchLogger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := conn.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer pool.Close()

	paymentStore, err := payment.NewPgStore(ctx, pool)
	if err != nil {
		log.Fatalf("Payment store init failed: %v", err)
	}
	splitStore, err := split.NewPgStore(ctx, pool)
	if err != nil {
		log.Fatalf("Split store init failed: %v", err)
	}
	webhookQueue, err := queue.NewPgQueue(ctx, pool)
	if err != nil {
		log.Fatalf("Webhook queue init failed: %v", err)
	}

	registry := provider.DefaultRegistry
	activateProviders(registry)

	appCache := cache.New(config.GetIntEnv("CACHE_MAX_ENTRIES", 10000))
	locks := lock.NewManager(cfg.LockTTL)
	scheduler := schedule.New()
	publisher := payment.LogPublisher{}

	orchestrator := payment.NewOrchestrator(paymentStore, registry, appCache, locks, publisher, payment.Options{
		ProviderTimeout: cfg.ProviderTimeout,
		StatusCacheTTL:  cfg.StatusCacheTTL,
	})
	coordinator := split.NewCoordinator(orchestrator, splitStore, registry, appCache, scheduler, publisher, split.Options{ProviderTimeout: cfg.ProviderTimeout})

	pipeline := webhook.NewPipeline(registry, webhookQueue, openSearchLogger)
	consumer := webhook.NewConsumer(registry, webhookQueue, orchestrator, coordinator)
	go consumer.Run(ctx)

	reconciler := reconcile.New(paymentStore, registry, orchestrator, scheduler, reconcile.Options{
		Interval:    cfg.ReconcileInterval,
		StaleAfter:  cfg.ReconcileStuckAge,
		ExpireAfter: cfg.ReconcileExpireAge,
	})
	reconciler.Start()

	// Periodic housekeeping for in-process state
	scheduler.Every("housekeeping", time.Minute, func() {
		appCache.Cleanup()
		locks.Cleanup()
	})

	validate := validator.New()
	handlers := router.Handlers{
		Payment: handler.NewPaymentHandler(orchestrator, validate),
		Split:   handler.NewSplitHandler(coordinator, validate),
		Webhook: handler.NewWebhookHandler(pipeline),
		Health:  handler.NewHealthHandler(pool, registry, webhookQueue, openSearchClient),
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middleware.Timeout(60 * time.Second))

	rateLimiter := middle.NewRateLimiter()
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.IPWhitelistMiddleware())
	r.Use(middle.RateLimitMiddleware(rateLimiter))
	r.Use(middle.RequestValidationMiddleware())

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Routes(r, handlers)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err.Error())
		}
	}()
	log.Println("API is running on", cfg.Port)

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}

	reconciler.Stop()
	scheduler.Stop()
	log.Println("Shutdown complete")
}

// activateProviders initializes every provider that has configuration
// in the SQLite provider store, falling back to environment variables
// for providers configured that way
func activateProviders(registry *provider.Registry) {
	store, err := config.NewProviderStore(cfg.ProviderDBPath)
	if err != nil {
		log.Printf("Provider store unavailable: %v", err)
		store = nil
	}

	environment := config.GetEnv("APP_ENV", "sandbox")
	for _, name := range registry.Names() {
		providerCfg := loadProviderConfig(store, name, environment)
		if len(providerCfg) == 0 {
			log.Printf("Provider %s has no configuration, skipping", name)
			continue
		}
		if _, ok := providerCfg["environment"]; !ok {
			providerCfg["environment"] = environment
		}

		adapter, err := registry.CreateAdapter(name)
		if err != nil {
			log.Printf("Provider %s: %v", name, err)
			continue
		}
		if err := adapter.ValidateConfig(providerCfg); err != nil {
			log.Printf("Provider %s config invalid: %v", name, err)
			continue
		}
		if err := adapter.Initialize(providerCfg); err != nil {
			log.Printf("Provider %s init failed: %v", name, err)
			continue
		}

		registry.Activate(name, adapter)
		log.Printf("Provider %s activated (%s)", name, environment)
	}

	if store != nil {
		_ = store.Close()
	}

	if len(registry.ActiveNames()) == 0 {
		log.Println("Warning: no payment providers are active")
	}
}

// loadProviderConfig prefers the provider store and falls back to
// PROVIDER_<NAME>_* environment variables
func loadProviderConfig(store *config.ProviderStore, name, environment string) map[string]string {
	if store != nil {
		if cfg, err := store.Load(name, environment); err == nil && len(cfg) > 0 {
			return cfg
		}
	}
	return config.ProviderConfigFromEnv(name)
}
