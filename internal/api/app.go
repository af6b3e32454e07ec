package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/atworkflow/engine/internal/catalog"
	"github.com/atworkflow/engine/internal/compiler"
	"github.com/atworkflow/engine/internal/config"
	"github.com/atworkflow/engine/internal/dispatcher"
	"github.com/atworkflow/engine/internal/engine"
	"github.com/atworkflow/engine/internal/executionlog"
	"github.com/atworkflow/engine/internal/metrics"
	"github.com/atworkflow/engine/internal/notify"
	"github.com/atworkflow/engine/internal/ratelimit"
	"github.com/atworkflow/engine/internal/schedule"
	"github.com/atworkflow/engine/internal/session"
	"github.com/atworkflow/engine/internal/telecom"
	"github.com/atworkflow/engine/internal/workflowstore"
)

// App holds application dependencies: the catalog, compiler,
// dispatcher-backed engine, session store, execution log, workflow
// repository, and the background tickers, behind one chi router.
type App struct {
	config *config.Config
	logger *slog.Logger
	router *chi.Mux

	db    *sqlx.DB
	redis *redis.Client

	metrics         *metrics.Metrics
	metricsRegistry *prometheus.Registry

	catalog      *catalog.Catalog
	compiler     *compiler.Compiler
	engine       *engine.Engine
	sessions     session.Store
	executionLog executionlog.Store
	workflows    workflowstore.Store
	scheduler    *schedule.Scheduler
	alerts       *notify.AlertSender

	stopCh    chan struct{}
	bg        sync.WaitGroup
	closeOnce sync.Once
	startedAt time.Time
}

// NewApp wires every package into one running Engine behind an HTTP API.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger, startedAt: time.Now(), stopCh: make(chan struct{})}

	app.metrics = metrics.NewMetrics()
	app.metricsRegistry = prometheus.NewRegistry()
	if err := app.metrics.Register(app.metricsRegistry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if _, err := db.Exec(executionlog.Schema); err != nil {
			return nil, fmt.Errorf("failed to apply execution log schema: %w", err)
		}
		if _, err := db.Exec(workflowstore.Schema); err != nil {
			return nil, fmt.Errorf("failed to apply workflow store schema: %w", err)
		}
		app.db = db
		app.executionLog = executionlog.NewPostgresStore(db)
		app.workflows = workflowstore.NewPostgresStore(db)
		logger.Info("execution log and workflow store backed by postgres")
	} else {
		app.executionLog = executionlog.NewMemoryStore(time.Now)
		app.workflows = workflowstore.NewMemoryStore()
		logger.Info("execution log and workflow store backed by in-memory stores")
	}

	var limiters dispatcher.Limiters
	if cfg.Redis.Address != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		app.sessions = session.NewRedisStore(app.redis, time.Now)
		limiters = dispatcher.Limiters{
			Fixed:   ratelimit.NewFixedWindowLimiter(app.redis),
			Sliding: ratelimit.NewSlidingWindowLimiter(app.redis),
		}
		logger.Info("session store backed by redis")
	} else {
		app.sessions = session.NewMemoryStore(time.Now)
		logger.Info("session store backed by in-memory store")
	}

	app.catalog = catalog.New()
	if err := catalog.RegisterDefaults(app.catalog); err != nil {
		return nil, fmt.Errorf("failed to register node catalog: %w", err)
	}
	app.compiler = compiler.New(app.catalog)

	registry := dispatcher.NewRegistry()
	dispatcher.RegisterBuiltins(registry, app.sessions, limiters)

	var sms telecom.SMSProvider
	var voice telecom.VoiceProvider
	if cfg.Telecom.Username != "" && cfg.Telecom.APIKey != "" {
		sms = telecom.NewTwilioSMS(cfg.Telecom.Username, cfg.Telecom.APIKey)
		voice = telecom.NewTwilioVoice(cfg.Telecom.Username, cfg.Telecom.APIKey)
	}
	var payment telecom.PaymentProvider
	if cfg.Payment.BaseURL != "" {
		payment = telecom.NewHTTPPaymentProvider(cfg.Payment.BaseURL, cfg.Payment.APIKey)
	}
	var ussd telecom.USSDProvider
	if cfg.USSD.BaseURL != "" {
		ussd = telecom.NewHTTPUSSDProvider(cfg.USSD.BaseURL, cfg.USSD.APIKey)
	}
	telecom.RegisterActions(registry, sms, voice, payment, ussd)

	app.engine = engine.New(app.catalog, registry, app.sessions, app.executionLog, app.metrics)

	if cfg.Alert.SendGridAPIKey != "" && cfg.Alert.ToAddress != "" {
		app.alerts = notify.NewAlertSender(cfg.Alert.SendGridAPIKey, cfg.Alert.FromAddress, cfg.Alert.ToAddress)
	}

	app.scheduler = schedule.NewScheduler(app.engine, logger, 30*time.Second)
	app.registerStoredScheduledWorkflows()
	app.scheduler.Start(context.Background())
	app.startSessionSweeper(cfg.Session.SweepInterval)

	app.setupRouter()
	return app, nil
}

// registerStoredScheduledWorkflows compiles every persisted workflow with a
// scheduled trigger and hands it to the ticker. A description that no
// longer compiles is logged and skipped rather than blocking startup.
func (a *App) registerStoredScheduledWorkflows() {
	stored, err := a.workflows.ListByTriggerType("scheduled")
	if err != nil {
		a.logger.Error("failed to list scheduled workflows", "error", err)
		return
	}
	for _, desc := range stored {
		graph, _, errs := a.compiler.Compile(desc)
		if len(errs) > 0 {
			a.logger.Error("stored scheduled workflow no longer compiles", "workflow_id", desc.Metadata.ID, "error", errs[0].Error())
			continue
		}
		expr, _ := desc.Trigger.Config["cron_expression"].(string)
		sw := &schedule.ScheduledWorkflow{WorkflowID: desc.Metadata.ID, CronExpression: expr, Graph: graph}
		if err := a.scheduler.Register(sw); err != nil {
			a.logger.Error("failed to register scheduled workflow", "workflow_id", desc.Metadata.ID, "error", err)
		}
	}
}

// startSessionSweeper ends expired sessions on a fixed interval.
func (a *App) startSessionSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case <-ticker.C:
				n, err := a.sessions.Sweep()
				if err != nil {
					a.logger.Error("session sweep failed", "error", err)
				} else if n > 0 {
					a.logger.Info("session sweep ended expired sessions", "count", n)
				}
			}
		}
	}()
}

// Router returns the HTTP handler to serve.
func (a *App) Router() http.Handler {
	return a.router
}

// Close stops the background tickers and releases external connections.
// Safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.scheduler.Stop()
		close(a.stopCh)
		a.bg.Wait()

		if a.db != nil {
			a.db.Close()
		}
		if a.redis != nil {
			a.redis.Close()
		}
	})
	return nil
}

func (a *App) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(a.metricsRegistry, promhttp.HandlerOpts{}))

	r.Route("/workflows", func(r chi.Router) {
		r.Post("/", a.handleSaveWorkflow)
		r.Get("/{id}", a.handleGetWorkflow)
		r.Post("/validate", a.handleValidate)
		r.Post("/compile", a.handleCompile)
		r.Post("/execute", a.handleExecute)
		r.Get("/executions", a.handleListExecutions)
		r.Get("/executions/{id}", a.handleGetExecution)
	})

	a.router = r
}

// requestLogger writes one structured log line per request and records
// the http_requests_total/duration metrics.
func (a *App) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		a.logger.Info("http request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration_ms", duration.Milliseconds(),
		)
		a.metrics.RecordHTTPRequest(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status()), duration.Seconds())
	})
}
