package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"adrollup/internal/archive"
	"adrollup/internal/config"
	apierrors "adrollup/internal/errors"
	"adrollup/internal/infrastructure"
	customMiddleware "adrollup/internal/middleware"
	"adrollup/internal/notify"
	"adrollup/internal/services"
	handlers "adrollup/internal/transport/http"
)

const AppName = "adrollup"

// Version is overridden at build time with -ldflags "-X adrollup/internal/app.Version=...".
var Version = infrastructure.ServiceVersion

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	System        *infrastructure.SystemMetrics
	ErrorHandler  *apierrors.ErrorHandler
	Sessions      *services.SessionStore
	Pipeline      *services.PipelineService
	HealthService *services.HealthService
	Archive       archive.Sink
	Router        *chi.Mux
	Server        *http.Server
}

// Option customises an Application before its services are built.
type Option func(*Application)

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Application) {
		a.Logger = logger
	}
}

// NewApplication wires every component from cfg. A nil cfg is loaded from the
// environment and the optional config file.
func NewApplication(cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}

	a := &Application{Config: cfg}
	for _, opt := range opts {
		opt(a)
	}

	if a.Logger == nil {
		logger, err := infrastructure.InitializeLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.Logger = logger
	}

	a.Logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.String("store_backend", cfg.Storage.Backend),
		slog.String("archive_backend", cfg.Archive.Backend))

	a.Paths = cfg.GetPaths()
	if err := a.Paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	a.Paths.LogPathResolution(a.Logger)

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.OTelProviders = otelProviders

	if err := a.initializeServices(); err != nil {
		a.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()

	return a, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	metrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create business metrics: %w", err)
	}
	a.Metrics = metrics

	system, err := infrastructure.NewSystemMetrics(a.OTelProviders.Meter, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create system metrics: %w", err)
	}
	a.System = system

	a.ErrorHandler = apierrors.NewErrorHandler(a.Logger, a.Config.Telemetry.Environment == "development")

	sink, err := archive.NewSink(context.Background(), archive.Options{
		Backend: a.Config.Archive.Backend,
		Dir:     a.Paths.ReportsDir,
		Bucket:  a.Config.Archive.Bucket,
		Prefix:  a.Config.Archive.Prefix,
	})
	switch {
	case errors.Is(err, archive.ErrDisabled):
		a.Logger.Info("Report archive disabled")
	case err != nil:
		return fmt.Errorf("failed to initialize report archive: %w", err)
	default:
		a.Archive = sink
	}

	email := a.Config.Email
	notifier := notify.New(notify.Config{
		Sender:   email.Sender,
		Password: email.Password,
		Receiver: email.Receiver,
		Host:     email.SMTPHost,
		Port:     email.SMTPPort,
	}, notify.NewSMTPMailer(), a.Logger)
	if !notifier.Configured() {
		a.Logger.Warn("Email notification not configured; validation emails are disabled")
	}

	a.Sessions = services.NewSessionStore(a.Config.Storage.SessionTTL, metrics)
	pipeline, err := services.NewPipelineService(services.PipelineOptions{
		Backends: services.NewBackendFactory(a.Config.Storage.Backend, a.Paths),
		Sessions: a.Sessions,
		Notifier: notifier,
		Archive:  a.Archive,
		Metrics:  metrics,
		Logger:   a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline service: %w", err)
	}
	a.Pipeline = pipeline

	a.HealthService = services.NewHealthService(services.HealthOptions{
		Version:     Version,
		BackendKind: a.Config.Storage.Backend,
		Paths:       a.Paths,
		Pipeline:    pipeline,
		Sessions:    a.Sessions,
		System:      system,
		Logger:      a.Logger,
	})

	return nil
}

// setupRouter configures the HTTP router with all routes.
// Middleware order: RequestID, RealIP, OTel, Logger, Recovery, headers, CORS, rate limit.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics)
	if err != nil {
		a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
	} else {
		r.Use(otelMiddleware.Handler)
	}

	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(apierrors.RecoveryMiddleware(a.ErrorHandler))
	r.Use(customMiddleware.SecurityHeaders)

	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(a.getCORSConfig()))
	}

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
	r.Mount("/healthz", healthHandler.Routes())
	r.Handle("/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.ErrorHandler))

	r.Route("/api", func(r chi.Router) {
		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/version", healthHandler.Version)

		runsHandler := handlers.NewRunsHandler(a.Pipeline, a.Config.Server.MaxUploadBytes, a.ErrorHandler, a.Logger)
		r.Mount("/runs", runsHandler.Routes())
	})

	a.Router = r
}

// getCORSConfig returns the CORS settings for the API
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:         300,
		Logger:         a.Logger,
	}
}

// createServer creates the HTTP server
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

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully within the configured shutdown timeout.
func (a *Application) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("Starting HTTP server", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		a.Logger.Info("Shutting down HTTP server")
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Run serves until SIGINT or SIGTERM and releases every resource.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := a.Serve(ctx)
	a.Close(context.Background())
	return err
}

// Close flushes telemetry and closes the archive sink and log file.
func (a *Application) Close(ctx context.Context) {
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			a.Logger.Warn("Failed to close report archive", slog.String("error", err.Error()))
		}
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			a.Logger.Warn("Failed to shut down OpenTelemetry", slog.String("error", err.Error()))
		}
	}
	a.Logger.Info("Application stopped")
	infrastructure.CloseLogFile()
}
