package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/foodiehq/api/internal/di"
	"github.com/foodiehq/api/internal/handlers"
	"github.com/foodiehq/api/internal/payments"
	"github.com/foodiehq/api/internal/platform/config"
	pfirestore "github.com/foodiehq/api/internal/platform/firestore"
	"github.com/foodiehq/api/internal/platform/idempotency"
	"github.com/foodiehq/api/internal/platform/jobs"
	"github.com/foodiehq/api/internal/platform/observability"
	"github.com/foodiehq/api/internal/platform/secrets"
	platformstorage "github.com/foodiehq/api/internal/platform/storage"
	"github.com/foodiehq/api/internal/repositories"
	"github.com/foodiehq/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets("Auth.JWTSecret", "Payments.CallbackSecret"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	var gateway payments.Gateway
	if strings.TrimSpace(cfg.Payments.StripeAPIKey) != "" {
		stripeGateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
			APIKey: cfg.Payments.StripeAPIKey,
			Logger: serviceLogFunc(logger.Named("payments")),
			Clock:  time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise payment gateway", zap.Error(err))
		}
		gateway = stripeGateway
	} else {
		logger.Warn("payments: stripe api key not configured; checkout disabled")
	}

	var orderTopic *pubsub.Topic
	var events services.OrderEventPublisher
	if strings.TrimSpace(cfg.Events.TopicID) != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		orderTopic = pubsubClient.Topic(cfg.Events.TopicID)
		defer orderTopic.Stop()
		publisher, err := jobs.NewPubSubOrderEventPublisher(orderTopic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		events = publisher
	} else {
		logger.Info("events: topic not configured; order events disabled")
	}

	var imageStore services.MenuImageStore
	if strings.TrimSpace(cfg.Storage.AssetsBucket) != "" && strings.TrimSpace(cfg.Storage.SignerKey) != "" {
		gcsClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := gcsClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		store, err := newMenuImageStore(gcsClient, cfg.Storage)
		if err != nil {
			logger.Fatal("failed to initialise menu image store", zap.Error(err))
		}
		imageStore = store
	} else {
		logger.Info("storage: assets bucket or signer key not configured; image endpoints disabled")
	}

	container, err := di.NewContainer(di.ContainerDeps{
		Config:       cfg,
		Provider:     firestoreProvider,
		Gateway:      gateway,
		Events:       events,
		Media:        imageStore,
		HealthChecks: dependencyChecks(firestoreClient, orderTopic),
		Logger:       serviceLogFunc(logger.Named("services")),
		Clock:        time.Now,
	})
	if err != nil {
		logger.Fatal("failed to build dependency container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	authHandlers := handlers.NewAuthHandlers(handlers.AuthHandlersConfig{
		Authenticator:      container.Authenticator,
		Accounts:           container.Services.Accounts,
		RateLimitPerMinute: cfg.RateLimits.AuthPerMinute,
	})
	menuHandlers := handlers.NewMenuHandlers(container.Services.Catalog)
	cartHandlers := handlers.NewCartHandlers(container.Authenticator, container.Services.Carts)
	orderHandlers := handlers.NewOrderHandlers(handlers.OrderHandlersConfig{
		Authenticator: container.Authenticator,
		Orders:        container.Services.Orders,
		Idempotency:   idempotencyMiddleware,
	})
	adminHandlers := handlers.NewAdminHandlers(handlers.AdminHandlersConfig{
		Authenticator:   container.Authenticator,
		Accounts:        container.Services.Accounts,
		Catalog:         container.Services.Catalog,
		Orders:          container.Services.Orders,
		Media:           container.Services.Media,
		SuperAdminEmail: cfg.Auth.SuperAdminEmail,
	})

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthRepository(container.Repositories.Health),
		handlers.WithHealthBuildInfo(buildInfo),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithMenuRoutes(menuHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("foodie api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// dependencyChecks builds the readiness probe set for the dependencies the
// process actually holds a client for.
func dependencyChecks(client *firestore.Client, topic *pubsub.Topic) []repositories.DependencyCheck {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				exists, err := t.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", t.ID())
				}
				return nil
			},
		})
	}
	return checks
}

// newMenuImageStore assembles the signed-URL signer and object copier the
// media service depends on.
func newMenuImageStore(gcsClient *cloudstorage.Client, cfg config.StorageConfig) (*platformstorage.MenuImageStore, error) {
	signer, err := platformstorage.NewServiceAccountSignerFromJSON([]byte(cfg.SignerKey))
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}
	signClient, err := platformstorage.NewClient(signer)
	if err != nil {
		return nil, fmt.Errorf("build signing client: %w", err)
	}
	copier, err := platformstorage.NewCopier(gcsClient)
	if err != nil {
		return nil, fmt.Errorf("build copier: %w", err)
	}
	return platformstorage.NewMenuImageStore(platformstorage.MenuImageStoreConfig{
		Signer:        signClient,
		Copier:        copier,
		Bucket:        cfg.AssetsBucket,
		UploadTTL:     cfg.UploadTTL,
		MaxUploadSize: cfg.MaxUploadSize,
	})
}

// serviceLogFunc adapts a zap logger to the map-based logging hook the
// services and payment gateway accept.
func serviceLogFunc(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_GOOGLE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}
