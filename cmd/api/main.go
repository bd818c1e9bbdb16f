package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/shopward/api/internal/handlers"
	"github.com/shopward/api/internal/payments"
	"github.com/shopward/api/internal/platform/auth"
	"github.com/shopward/api/internal/platform/config"
	pfirestore "github.com/shopward/api/internal/platform/firestore"
	"github.com/shopward/api/internal/platform/jobs"
	"github.com/shopward/api/internal/platform/observability"
	"github.com/shopward/api/internal/platform/secrets"
	firestoreRepo "github.com/shopward/api/internal/repositories/firestore"
	"github.com/shopward/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if err := resolveSecrets(ctx, logger, &cfg); err != nil {
		logger.Fatal("failed to resolve secrets", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	userRepo, err := firestoreRepo.NewUserRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise user repository", zap.Error(err))
	}

	verifier, err := newTokenVerifier(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise firebase auth", zap.Error(err))
	}
	authn := auth.NewAuthenticator(verifier)

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: observability.EventLogger(logger.Named("stripe")),
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}
	paymentManager, err := payments.NewManager(map[string]payments.Provider{"stripe": stripeProvider})
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	events, pubsubClient := newEventPublisher(ctx, logger, cfg)
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	eventLog := observability.EventLogger(logger)

	locator, err := services.NewOrderLocator(services.OrderLocatorDeps{
		Orders: orderRepo,
		Users:  userRepo,
		Logger: eventLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise order locator", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:         orderRepo,
		Users:          userRepo,
		Payments:       paymentManager,
		Events:         events,
		Logger:         eventLog,
		SuccessURL:     cfg.Checkout.SuccessURL,
		CancelURL:      cfg.Checkout.CancelURL,
		Currency:       cfg.Checkout.Currency,
		GatewayTimeout: cfg.Checkout.GatewayTimeout,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Locator: locator,
		Orders:  orderRepo,
		Events:  events,
		Logger:  eventLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	bulkService, err := services.NewBulkService(services.BulkServiceDeps{
		Locator: locator,
		Events:  events,
		Logger:  eventLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise bulk service", zap.Error(err))
	}

	userService, err := services.NewUserService(services.UserServiceDeps{
		Users:  userRepo,
		Logger: eventLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise user service", zap.Error(err))
	}

	health := handlers.NewHealthHandlers(map[string]handlers.ReadinessProbe{
		"firestore": func(ctx context.Context) error {
			_, err := firestoreClient.Collections(ctx).Next()
			if err != nil && !errors.Is(err, iterator.Done) {
				return err
			}
			return nil
		},
	})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.MetricsMiddleware(),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(authn, checkoutService).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(authn, orderService).Routes),
		handlers.WithAdminRoutes(handlers.NewAdminHandlers(authn, bulkService, userService).Routes),
		handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(cfg.PSP.StripeWebhookSecret, checkoutService).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}

// resolveSecrets expands secret:// references in the PSP configuration.
func resolveSecrets(ctx context.Context, logger *zap.Logger, cfg *config.Config) error {
	if !secrets.IsRef(cfg.PSP.StripeAPIKey) && !secrets.IsRef(cfg.PSP.StripeWebhookSecret) {
		return nil
	}

	client, err := secrets.NewClient(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("secret manager close error", zap.Error(err))
		}
	}()

	fetcher := secrets.NewFetcher(client, cfg.Firestore.ProjectID)
	if cfg.PSP.StripeAPIKey, err = fetcher.Resolve(ctx, cfg.PSP.StripeAPIKey); err != nil {
		return err
	}
	if cfg.PSP.StripeWebhookSecret, err = fetcher.Resolve(ctx, cfg.PSP.StripeWebhookSecret); err != nil {
		return err
	}
	return nil
}

func newTokenVerifier(ctx context.Context, cfg config.Config) (auth.TokenVerifier, error) {
	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opts...)
	if err != nil {
		return nil, err
	}
	return app.Auth(ctx)
}

// newEventPublisher wires the Pub/Sub order-event topic when configured.
// The API runs without it; lifecycle events are then dropped with a log line.
func newEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (services.OrderEventPublisher, *pubsub.Client) {
	if cfg.PubSub.OrderEventsTopic == "" {
		logger.Info("order events topic not configured; events disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Warn("pubsub client init failed; events disabled", zap.Error(err))
		return nil, nil
	}
	publisher, err := jobs.NewPubSubOrderEventPublisher(client.Topic(cfg.PubSub.OrderEventsTopic))
	if err != nil {
		logger.Warn("event publisher init failed; events disabled", zap.Error(err))
		_ = client.Close()
		return nil, nil
	}
	return publisher, client
}
