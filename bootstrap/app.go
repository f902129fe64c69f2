package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"petshop/api"
	"petshop/config"
	"petshop/service"
	"petshop/storage"
	"petshop/util/goroutine"
)

// App represents the pet service with all its components.
type App struct {
	// Configuration
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Components
	Store     storage.PetStore
	Pets      *service.PetService
	APIServer *api.API

	// Lifecycle
	tracingShutdown ShutdownFunc
	serviceWg       *sync.WaitGroup
	serverErr       chan error
}

// NewApp loads configuration, connects the document store and builds the API.
func NewApp(ctx context.Context) (*App, error) {
	_, sugar, err := InitLogger("info", "console")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	sugar.Info("Pet shop service starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	return NewAppWithConfig(ctx, cfg)
}

// NewAppWithConfig builds the application from an already loaded configuration.
func NewAppWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, sugar, err := InitLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Sugar:     sugar,
		serviceWg: &sync.WaitGroup{},
		serverErr: make(chan error, 1),
	}

	app.tracingShutdown, err = InitTracing(cfg, os.Stdout, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	store, err := InitStore(ctx, cfg, sugar)
	if err != nil {
		_ = app.tracingShutdown(context.Background())
		return nil, err
	}
	app.Store = store

	app.Pets = service.NewPetService(store, sugar)
	app.APIServer = api.NewAPI(app.Pets, store, cfg, sugar)
	return app, nil
}

// Start starts serving HTTP in the background.
func (a *App) Start(ctx context.Context) error {
	handler := WrapHandler(a.APIServer.Handler(), a.Config.Tracing.ServiceName)

	a.Sugar.Infow("Starting API server", "port", a.Config.API.Port)
	goroutine.Go("api-server", a.serviceWg, a.Sugar, func() {
		if err := a.APIServer.StartWithHandler(handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorw("API server stopped", "error", err)
			a.serverErr <- err
		}
	})
	return nil
}

// WaitForShutdown blocks until a shutdown signal arrives, ctx is done or the server fails.
func (a *App) WaitForShutdown(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
		return nil
	case <-ctx.Done():
		return nil
	case err := <-a.serverErr:
		return err
	}
}

// Shutdown gracefully stops the API server and closes the document store.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.API.ShutdownTimeout)
	defer cancel()

	a.Sugar.Info("Phase 1: Stopping API server...")
	if a.APIServer != nil {
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
	}

	a.Sugar.Info("Phase 2: Waiting for service goroutines to complete...")
	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(a.Config.API.ShutdownTimeout):
		a.Sugar.Warn("Service goroutine shutdown timed out")
	}

	a.Sugar.Info("Phase 3: Closing document store...")
	if a.Store != nil {
		if err := a.Store.Close(ctx); err != nil {
			a.Sugar.Errorw("Failed to close document store", "error", err)
		}
	}

	if a.tracingShutdown != nil {
		if err := a.tracingShutdown(ctx); err != nil {
			a.Sugar.Errorw("Failed to flush traces", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
