package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"petshop/config"
	"petshop/core"
	"petshop/service"
)

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PetService is the business layer the handlers call.
type PetService interface {
	Create(ctx context.Context, pet *core.Pet) error
	Get(ctx context.Context, id string) (*core.Pet, error)
	Update(ctx context.Context, id string, data interface{}) (*core.Pet, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, q service.ListQuery) ([]core.Pet, error)
	Purchase(ctx context.Context, id string) (*core.Pet, error)
	RemoveAll(ctx context.Context) error
}

// HealthChecker reports whether the document store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type API struct {
	router         *mux.Router
	handler        http.Handler
	server         *http.Server
	pets           PetService
	health         HealthChecker
	config         *config.Config
	logger         *zap.SugaredLogger
	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewAPI creates the HTTP API. All dependencies are required.
func NewAPI(pets PetService, health HealthChecker, cfg *config.Config, logger *zap.SugaredLogger) *API {
	if pets == nil {
		panic("pet service is required")
	}
	if health == nil {
		panic("health checker is required")
	}
	if cfg == nil {
		panic("config is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	api := &API{
		router:       mux.NewRouter(),
		pets:         pets,
		health:       health,
		config:       cfg,
		logger:       logger,
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	api.setupRoutes()
	go api.cleanupRateLimiters()
	return api
}

// setupRoutes sets up the API routes
func (a *API) setupRoutes() {
	// mux skips Use middleware when no route matches
	a.router.NotFoundHandler = a.unmatchedChain(http.HandlerFunc(a.notFound))
	a.router.MethodNotAllowedHandler = a.unmatchedChain(http.HandlerFunc(a.methodNotAllowed))

	a.router.Use(a.recoveryMiddleware)
	a.router.Use(a.requestIDMiddleware)
	a.router.Use(a.metricsMiddleware)
	a.router.Use(a.rateLimitMiddleware)
	a.router.Use(a.bodyLimitMiddleware)

	a.router.HandleFunc("/", a.index).Methods("GET")
	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	a.router.HandleFunc("/pets", a.listPets).Methods("GET")
	a.router.HandleFunc("/pets", a.createPet).Methods("POST")
	if a.config.API.AllowReset {
		a.router.HandleFunc("/pets", a.removeAllPets).Methods("DELETE")
	}
	a.router.HandleFunc("/pets/{id}", a.getPet).Methods("GET")
	a.router.HandleFunc("/pets/{id}", a.updatePet).Methods("PUT")
	a.router.HandleFunc("/pets/{id}", a.deletePet).Methods("DELETE")
	a.router.HandleFunc("/pets/{id}/purchase", a.purchasePet).Methods("PUT")

	// mux middleware does not run for unmatched routes, so CORS wraps the whole router
	a.handler = a.corsMiddleware(a.router)
}

// unmatchedChain gives requests that match no route the same logging and metrics as routed ones
func (a *API) unmatchedChain(h http.Handler) http.Handler {
	return a.recoveryMiddleware(a.requestIDMiddleware(a.metricsMiddleware(h)))
}

// Handler returns the fully wrapped HTTP handler.
func (a *API) Handler() http.Handler {
	return a.handler
}

// Start starts the API server and blocks until it stops
func (a *API) Start() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.API.Port),
		Handler:      a.handler,
		ReadTimeout:  a.config.API.ReadTimeout,
		WriteTimeout: a.config.API.WriteTimeout,
		IdleTimeout:  a.config.API.IdleTimeout,
	}
	return a.server.ListenAndServe()
}

// StartWithHandler serves h instead of the API's own handler. Used to add outer
// instrumentation such as tracing.
func (a *API) StartWithHandler(h http.Handler) error {
	a.handler = h
	return a.Start()
}

// Stop stops the API server
func (a *API) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}
