package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appCart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	appInventory "github.com/Zhima-Mochi/minishop-storefront/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/config"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/pebblestore"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	httppresentation "github.com/Zhima-Mochi/minishop-storefront/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-storefront/internal/presentation/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}

	baseLogger, err := zaplogger.New(zaplogger.Options{
		Level:   cfg.LogLevel,
		LogFile: cfg.LogFile,
		Fixed: []observability.Field{
			observability.F("service", cfg.ServiceName),
			observability.F("env", cfg.Env),
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger.Zap())

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	tel := infraobs.NewWithRegistry(
		oteltrace.New(cfg.ServiceName),
		baseLogger,
		prometrics.New("", "", nil),
	)
	systemLogger := tel.Logger().With(observability.F("component", "main"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	invRepo, orderRepo, closeStore, err := openStore(ctx, cfg, tel)
	if err != nil {
		return err
	}
	defer closeStore()

	cartRepo, closeCarts, err := openCarts(cfg)
	if err != nil {
		return err
	}
	defer closeCarts()

	// In-memory event bus (outbox/event publisher for in-process fanout)
	bus := outbox.NewBus(tel.Logger())
	bus.Start(ctx)
	defer bus.Stop(context.Background())

	refresher := appInventory.NewRefresher(invRepo, appInventory.Options{
		Interval:     cfg.RefreshInterval,
		FetchTimeout: cfg.RefreshTimeout,
		PublicOnly:   cfg.PublicOnly,
		Publisher:    bus,
	}, tel)

	cartService := appCart.NewService(cartRepo, refresher, id.NewUUIDGenerator(), tel)
	unsubscribeCarts := refresher.Subscribe(cartService.OnSnapshot)
	defer unsubscribeCarts()

	submit := appOrder.NewSubmitOrderUseCase(orderRepo, cartService, bus, cfg.WhatsAppNumber, tel)

	var notifier appOrder.Notifier
	if cfg.KafkaBrokers != "" {
		kn := kafka.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, tel)
		defer func() { _ = kn.Close() }()
		notifier = kn
	}
	orderWorker := appOrder.NewWorker(bus, notifier, tel, workerpresentation.EventContext(tel))
	orderWorker.Start()
	defer orderWorker.Stop()

	if err := refresher.Start(ctx); err != nil {
		return err
	}
	defer refresher.Stop()

	handler := httppresentation.NewHandler(refresher, cartService, submit, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", observability.F("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	return nil
}

type closer func()

func openStore(ctx context.Context, cfg config.Config, tel observability.Observability) (dominv.Repository, domorder.Repository, closer, error) {
	if cfg.StoreDriver != config.StorePostgres {
		inv := memory.NewInventoryRepository()
		memory.SeedInventory(inv)
		return inv, memory.NewOrderRepository(id.NewShortGenerator()), func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.DB, tel.Logger())
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
	}
	store := postgres.NewStore(db, cfg.DB.DSN(), id.NewShortGenerator(), tel.Logger())
	return store, store, func() {
		store.Wait()
		_ = db.Close()
	}, nil
}

func openCarts(cfg config.Config) (domcart.Repository, closer, error) {
	if cfg.CartStore != config.CartsPebble {
		return memory.NewCartRepository(), func() {}, nil
	}
	repo, err := pebblestore.NewCartRepository(cfg.CartDir)
	if err != nil {
		return nil, nil, err
	}
	return repo, closeQuietly(repo), nil
}

func closeQuietly(c io.Closer) closer {
	return func() { _ = c.Close() }
}
