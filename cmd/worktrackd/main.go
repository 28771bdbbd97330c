package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/example/worktrack/internal/adapters"
	"github.com/example/worktrack/internal/application"
	"github.com/example/worktrack/internal/config"
	"github.com/example/worktrack/internal/events"
	httptransport "github.com/example/worktrack/internal/http"
	"github.com/example/worktrack/internal/logging"
	"github.com/example/worktrack/internal/metrics"
	"github.com/example/worktrack/internal/monitor"
	"github.com/example/worktrack/internal/notify"
	"github.com/example/worktrack/internal/persistence"
	"github.com/example/worktrack/internal/persistence/memory"
	"github.com/example/worktrack/internal/persistence/sqlstore"
	"github.com/example/worktrack/internal/rules"
)

const memoryURL = "memory://"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worktrackd stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	app, err := newApp(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		app.monitor.Run(monitorCtx)
	}()
	defer func() {
		cancelMonitor()
		<-monitorDone
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// Open event streams would otherwise hold Shutdown until its deadline.
		app.broker.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("worktrack API listening", "addr", server.Addr, "timezone", cfg.Location.String())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	logger.Info("worktrack API stopped")
	return nil
}

// openStore selects the in-memory store for memory:// and a migrated SQL
// store otherwise.
func openStore(ctx context.Context, databaseURL string, logger *slog.Logger) (persistence.Store, error) {
	if strings.HasPrefix(databaseURL, memoryURL) {
		logger.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	}

	store, err := sqlstore.Open(ctx, sqlstore.DefaultConfig(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("storage ready", "dialect", string(store.Pool().Dialect()))
	return store, nil
}

// app is the wired service graph behind the HTTP server.
type app struct {
	handler  http.Handler
	monitor  *monitor.IdleMonitor
	broker   *events.Broker
	limiter  *httptransport.RateLimiter
	registry *prometheus.Registry
}

func newApp(ctx context.Context, cfg config.Config, store persistence.Store, logger *slog.Logger) (*app, error) {
	idGenerator := uuid.NewString
	now := time.Now

	broker := events.NewBroker(cfg.EventBuffer, logger)

	userRepo := adapters.NewUserRepository(store)
	ruleRepo := adapters.NewRuleRepository(store, store)
	sessionRepo := adapters.NewSessionRepository(store)
	activityRepo := adapters.NewActivityLogRepository(store)

	ruleService := application.NewRuleServiceWithLogger(ruleRepo, rules.NewEvaluator(cfg.Location), broker, idGenerator, now, logger)
	userService := application.NewUserServiceWithLogger(userRepo, ruleService, application.NewArgon2idHasher(application.DefaultArgon2idParams), broker, now, logger)
	sessionService := application.NewSessionServiceWithLogger(sessionRepo, userRepo, ruleService, broker, idGenerator, now, logger)
	activityService := application.NewActivityServiceWithLogger(activityRepo, sessionRepo, broker, idGenerator, now, logger)

	if _, err := ruleService.EnsureDefaultRule(ctx); err != nil {
		broker.Close()
		return nil, fmt.Errorf("ensure default rule: %w", err)
	}

	notifier, err := newNotifier(cfg, now, logger)
	if err != nil {
		broker.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)
	collector.ObserveBroker(broker)

	idleMonitor, err := monitor.New(cfg.Idle, sessionService, activityService, userRepo, notifier,
		monitor.WithRecorder(collector),
		monitor.WithLogger(logger),
	)
	if err != nil {
		broker.Close()
		return nil, fmt.Errorf("create idle monitor: %w", err)
	}

	var (
		limiter       *httptransport.RateLimiter
		apiMiddleware []func(http.Handler) http.Handler
	)
	if cfg.RateLimit.RPS > 0 {
		limiter = httptransport.NewRateLimiter(httptransport.RateLimitConfig{
			Rate:  rate.Limit(cfg.RateLimit.RPS),
			Burst: cfg.RateLimit.Burst,
		}, logger)
		apiMiddleware = append(apiMiddleware, limiter.Middleware())
	}

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Sessions:  httptransport.NewSessionHandler(sessionService, userService, collector, logger),
		Activity:  httptransport.NewActivityHandler(activityService, logger),
		Rules:     httptransport.NewRuleHandler(ruleService, logger),
		Employees: httptransport.NewEmployeeHandler(userService, sessionService, ruleService, cfg.Location, now, logger),
		Auth:      httptransport.NewAuthHandler(userService, logger),
		Events:    httptransport.NewEventsHandler(broker, 0, logger),
		Health:    store,
		Metrics:   metrics.Handler(registry),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Recoverer(logger),
			httptransport.Metrics(collector),
		},
		APIMiddleware: apiMiddleware,
	})

	return &app{
		handler:  handler,
		monitor:  idleMonitor,
		broker:   broker,
		limiter:  limiter,
		registry: registry,
	}, nil
}

func newNotifier(cfg config.Config, now func() time.Time, logger *slog.Logger) (application.Notifier, error) {
	if !cfg.SMTP.Enabled() {
		logger.Warn("SMTP is not configured; idle alerts are written to the log only")
		return notify.NewLogNotifier(logger), nil
	}
	notifier, err := notify.NewEmailNotifier(cfg.EmailConfig(), nil, now, logger)
	if err != nil {
		return nil, fmt.Errorf("configure email notifier: %w", err)
	}
	return notifier, nil
}

// Close releases background resources. It is safe to call more than once.
func (a *app) Close() {
	a.broker.Close()
	if a.limiter != nil {
		a.limiter.Stop()
	}
}
