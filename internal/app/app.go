package app

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

	"placepulse/internal/config"
	apierrors "placepulse/internal/errors"
	"placepulse/internal/exporter"
	"placepulse/internal/infrastructure"
	custommw "placepulse/internal/middleware"
	"placepulse/internal/oracle"
	"placepulse/internal/services"
	"placepulse/internal/store"
	transport "placepulse/internal/transport/http"
)

const (
	// AppName is the service name reported in logs and health responses
	AppName = "placepulse"
	// Version is the build version, overridden at link time
	Version = "dev"
)

// Application wires configuration, stores, services and the HTTP server
type Application struct {
	Config   *config.Config
	Logger   *slog.Logger
	OTel     *infrastructure.OTelProviders
	Metrics  *infrastructure.EngineMetrics
	Router   *chi.Mux
	Server   *http.Server
	Services *ServiceContainer

	observations *store.ObservationLog
	params       *store.ParameterStore
	activities   *store.ActivityLog
	significance *store.SignificanceTable
	oracleClient *oracle.Client
	exporter     *exporter.ReportExporter
	sysMetrics   *infrastructure.SystemMetricsCollector
}

// ServiceContainer holds the application services
type ServiceContainer struct {
	Calibration *services.CalibrationService
	Estimation  *services.EstimationService
	Correlation *services.CorrelationService
	Activity    *services.ActivityService
	Simulation  *services.SimulationService
}

// NewApplication builds a fully wired application from configuration
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{
		Config: cfg,
		Logger: logger,
	}

	otelCfg := infrastructure.DefaultOTelConfig()
	otelCfg.ServiceVersion = Version
	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	app.OTel = providers

	if providers.Meter != nil {
		metrics, err := infrastructure.CreateEngineMetrics(providers.Meter)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
		app.Metrics = metrics

		collector, err := infrastructure.NewSystemMetricsCollector(providers.Meter, 30*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to create system metrics collector: %w", err)
		}
		app.sysMetrics = collector
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices constructs the stores, the oracle client and every service
func (a *Application) initializeServices() error {
	a.observations = store.NewObservationLog()
	a.params = store.NewParameterStore()
	a.activities = store.NewActivityLog()
	a.significance = store.NewSignificanceTable()

	a.oracleClient = oracle.NewClient(oracle.ClientConfig{
		BaseURL:          a.Config.Oracle.BaseURL,
		Timeout:          a.Config.Oracle.Timeout,
		MaxRetries:       a.Config.Oracle.MaxRetries,
		RetryBackoff:     a.Config.Oracle.RetryBackoff,
		RequestsPerSec:   a.Config.Oracle.RequestsPerSec,
		Burst:            a.Config.Oracle.Burst,
		BreakerThreshold: a.Config.Oracle.BreakerThreshold,
		BreakerCooldown:  a.Config.Oracle.BreakerCooldown,
	}, a.Logger)

	a.exporter = exporter.NewReportExporter(a.Config.Paths, a.Logger)

	a.Services = &ServiceContainer{
		Calibration: services.NewCalibrationService(a.observations, a.params, a.Config.Calibration, a.Logger, a.Metrics),
		Estimation:  services.NewEstimationService(a.params, a.observations, a.oracleClient, a.Config.Calibration, a.Logger, a.Metrics),
		Correlation: services.NewCorrelationService(a.activities, a.significance, a.Config.Correlation, a.Logger, a.Metrics),
		Activity:    services.NewActivityService(a.activities, a.observations, a.Logger),
		Simulation:  services.NewSimulationService(a.params, a.observations, a.significance, a.Config.Calibration, a.Logger, a.Metrics),
	}

	return nil
}

// setupRouter configures the HTTP router, middleware chain and routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(custommw.SecurityHeaders)

	if a.Config.Security.EnableCORS {
		r.Use(custommw.CORS(a.corsConfig()))
	}

	if a.Config.Security.RateLimit.Enabled {
		limiter := custommw.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger)
		r.Use(limiter.Handler)
	}

	if a.Metrics != nil {
		r.Use(custommw.EngineMetricsMiddleware(a.Metrics))
	}

	if a.OTel.Tracer != nil && a.OTel.Meter != nil {
		if otelMW, err := custommw.NewOTelMiddleware(a.OTel); err == nil {
			r.Use(otelMW.Handler)
		} else {
			a.Logger.Warn("telemetry middleware disabled", slog.String("error", err.Error()))
		}
	}

	r.Use(custommw.Timeout(a.Config.Server.WriteTimeout, a.Logger))

	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)
	validation := custommw.NewValidationMiddleware(a.Logger, errorHandler)

	estimateHandler := transport.NewEstimateHandler(a.Services.Estimation, a.Logger)
	calibrationHandler := transport.NewCalibrationHandler(a.Services.Calibration, a.Logger)
	correlationHandler := transport.NewCorrelationHandler(a.Services.Correlation, a.Logger)
	activityHandler := transport.NewActivityHandler(a.Services.Activity, a.Logger)
	simulationHandler := transport.NewSimulationHandler(a.Services.Simulation, a.Logger)
	healthHandler := transport.NewHealthHandler(a.Services.Estimation, a.Services.Calibration, a.observations, Version, a.Logger)
	metricsHandler := transport.NewMetricsHandler(a.OTel.PrometheusHTTP)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(custommw.ContentTypeValidator("application/json"))
		api.Use(validation.ValidateRequest)
		estimateHandler.RegisterRoutes(api)
		calibrationHandler.RegisterRoutes(api)
		correlationHandler.RegisterRoutes(api)
		activityHandler.RegisterRoutes(api)
		simulationHandler.RegisterRoutes(api)
	})

	r.Get("/healthz", healthHandler.HealthCheck)
	r.Get("/healthz/live", healthHandler.LivenessCheck)
	r.Get("/healthz/ready", healthHandler.ReadinessCheck)
	metricsHandler.RegisterRoutes(r)

	a.Router = r
}

// corsConfig builds the CORS policy from the security configuration
func (a *Application) corsConfig() custommw.CORSConfig {
	return custommw.CORSConfig{
		AllowedOrigins:   a.Config.Security.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Estimate-Stale"},
		AllowCredentials: false,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

// createServer builds the HTTP server around the configured router
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the HTTP server and the background cycles
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.Int("port", a.Config.Server.Port))

	go a.runCalibrationLoop(ctx)
	go a.runCorrelationLoop(ctx)
	go a.runResolutionLoop(ctx)

	if a.sysMetrics != nil {
		go a.sysMetrics.Start(ctx)
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// runCalibrationLoop periodically refits keyword parameters and exports the
// parameter report after each cycle
func (a *Application) runCalibrationLoop(ctx context.Context) {
	interval := a.Config.Calibration.Interval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Each cycle gets its own trace ID for log correlation.
			runCtx := infrastructure.EnsureTraceID(ctx)
			result, err := a.Services.Calibration.RunCycle(runCtx)
			if err != nil {
				a.Logger.ErrorContext(runCtx, "calibration cycle failed", slog.String("error", err.Error()))
				continue
			}
			a.Logger.InfoContext(runCtx, "calibration cycle finished",
				slog.String("run_id", result.RunID),
				slog.Int("calibrated", result.Calibrated),
				slog.Int("rejected", result.Rejected))
			if err := a.exporter.ExportParametersCSV(a.Services.Calibration.AllParameters(), "parameters.csv"); err != nil {
				a.Logger.WarnContext(runCtx, "parameter export failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runCorrelationLoop periodically rebuilds the significance table
func (a *Application) runCorrelationLoop(ctx context.Context) {
	interval := a.Config.Correlation.Interval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx := infrastructure.EnsureTraceID(ctx)
			report, err := a.Services.Correlation.RunCycle(runCtx)
			if err != nil {
				a.Logger.ErrorContext(runCtx, "correlation cycle failed", slog.String("error", err.Error()))
				continue
			}
			a.Logger.InfoContext(runCtx, "correlation cycle finished",
				slog.Int("rows", len(report.Rows)))
			if err := a.exporter.ExportSignificanceCSV(report.Rows, "significance.csv"); err != nil {
				a.Logger.WarnContext(runCtx, "significance export failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runResolutionLoop resolves due activity entries against later observations.
// Activities resolve on day boundaries, so an hourly sweep is plenty.
func (a *Application) runResolutionLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx := infrastructure.EnsureTraceID(ctx)
			result, err := a.Services.Activity.ResolvePending(runCtx, time.Now().UTC())
			if err != nil {
				a.Logger.ErrorContext(runCtx, "activity resolution failed", slog.String("error", err.Error()))
				continue
			}
			if result.Resolved > 0 || result.Missing > 0 {
				a.Logger.InfoContext(runCtx, "activity resolution sweep finished",
					slog.Int("resolved", result.Resolved),
					slog.Int("missing", result.Missing))
			}
		}
	}
}

// Stop gracefully stops the HTTP server and flushes telemetry
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "stopping application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "server shutdown error", slog.String("error", err.Error()))
		return err
	}

	if a.sysMetrics != nil {
		a.sysMetrics.Stop()
	}

	if a.OTel != nil {
		if err := a.OTel.Shutdown(shutdownCtx); err != nil {
			a.Logger.WarnContext(ctx, "telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		a.Logger.Warn("log file close error", slog.String("error", err.Error()))
	}
	return nil
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		a.Logger.Info("shutdown signal received")
	case <-ctx.Done():
		a.Logger.Info("context cancelled, shutting down")
	}

	return a.Stop(context.Background())
}
