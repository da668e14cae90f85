package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"windrisk/internal/config"
	"windrisk/internal/cube"
	"windrisk/internal/infrastructure"
	"windrisk/internal/metrics"
	"windrisk/internal/scenario"
	"windrisk/internal/services"
	handlers "windrisk/internal/transport/http"
	ws "windrisk/internal/websocket"
)

const Version = "1.0.0"

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	Router        chi.Router
	Server        *http.Server
	Service       *services.RiskService
	WebSocketHub  *ws.Hub
	OTelProviders *infrastructure.OTelProviders

	logCloser io.Closer
}

// NewApplication builds the full dependency graph from a config file path.
func NewApplication(configFile string) (*Application, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, logCloser, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(logger)

	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize opentelemetry: %w", err)
	}

	registry, err := cube.LoadRegistry(cfg.Paths.RegistryFile)
	if err != nil {
		return nil, fmt.Errorf("load source registry: %w", err)
	}

	defs := metrics.DefaultDefinitions()
	if cfg.Paths.MetricsFile != "" {
		defs, err = metrics.LoadDefinitions(cfg.Paths.MetricsFile)
		if err != nil {
			return nil, fmt.Errorf("load metric definitions: %w", err)
		}
	}

	service, err := services.NewRiskService(registry, defs, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize risk service: %w", err)
	}

	if providers.Meter != nil {
		engineMetrics, err := infrastructure.NewEngineMetrics(providers.Meter)
		if err != nil {
			return nil, fmt.Errorf("initialize engine metrics: %w", err)
		}
		service.SetEngineMetrics(engineMetrics)
	}

	hub := ws.NewHub(logger)
	service.SetBroadcaster(hub)
	if providers.Tracer != nil {
		service.SetTracer(providers.Tracer)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Config:     cfg,
		Service:    service,
		Hub:        hub,
		Logger:     logger,
		Version:    Version,
		Prometheus: providers.PrometheusHTTP,
		Tracer:     providers.Tracer,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		Config:        cfg,
		Logger:        logger,
		Router:        router,
		Server:        server,
		Service:       service,
		WebSocketHub:  hub,
		OTelProviders: providers,
		logCloser:     logCloser,
	}, nil
}

// Run starts the hub and the HTTP server, performs the initial cube build,
// and blocks until a shutdown signal arrives.
func (app *Application) Run() error {
	go app.WebSocketHub.Run()

	// The server is usable before the first build completes; readiness
	// flips once a snapshot is installed.
	go app.initialBuild()

	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info("http server listening",
			slog.String("addr", app.Server.Addr),
			slog.String("version", Version),
		)
		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		app.Logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	return app.Shutdown()
}

// initialBuild runs the first resolution pass from the configured scenario.
// Failure is logged, not fatal: the API stays up and a later build can fix
// the inputs.
func (app *Application) initialBuild() {
	ctx := context.Background()

	doc, err := scenario.Load(app.Config.Paths.ScenarioFile)
	if err != nil {
		app.Logger.Error("initial scenario load failed",
			slog.String("path", app.Config.Paths.ScenarioFile),
			slog.String("error", err.Error()),
		)
		return
	}

	if _, err := app.Service.Rebuild(ctx, doc, app.Config.Engine.BuildParams()); err != nil {
		app.Logger.Error("initial build failed", slog.String("error", err.Error()))
	}
}

// Shutdown drains the server, the hub and the telemetry providers.
func (app *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error

	if err := app.Server.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("server shutdown: %w", err)
	}
	if err := app.WebSocketHub.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("hub shutdown: %w", err)
	}
	if app.OTelProviders != nil {
		if err := app.OTelProviders.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if app.logCloser != nil {
		app.logCloser.Close()
	}

	app.Logger.Info("shutdown complete")
	return firstErr
}
