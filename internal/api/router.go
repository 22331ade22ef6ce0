package api

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leadcrm/leadcrm/internal/api/handlers"
	mw "github.com/leadcrm/leadcrm/internal/api/middleware"
	"github.com/leadcrm/leadcrm/internal/auth"
	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/service"
	"github.com/leadcrm/leadcrm/internal/session"
	"github.com/leadcrm/leadcrm/internal/token"
)

// Deps are the collaborators the HTTP API is built from.
type Deps struct {
	Tenants domain.TenantStore
	Users   domain.UserStore
	Leads   domain.LeadStore

	// Sessions holds token slots; Cache holds lead lists.
	Sessions session.Storage
	Cache    session.Storage

	Tokens *token.Service
	Hasher *auth.Hasher
	Logger *zap.Logger

	// Health checks the backing store; nil means always healthy.
	Health func(ctx context.Context) error

	CORSOrigin     string
	RateLimitRPS   float64
	RateLimitBurst int
	LeadCacheTTL   time.Duration
	SecureCookies  bool
}

// App holds the router and the pieces main needs for lifecycle management.
type App struct {
	Router   *chi.Mux
	Registry *prometheus.Registry
	Limiter  *mw.RateLimiter
	Data     *service.DataStore
}

func NewApp(d Deps) *App {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if d.Sessions == nil {
		d.Sessions = session.NewMemoryStorage()
	}
	if d.Cache == nil {
		d.Cache = session.NewMemoryStorage()
	}
	if d.Hasher == nil {
		d.Hasher = auth.NewHasher(0)
	}
	if d.RateLimitRPS <= 0 {
		d.RateLimitRPS = 100
	}
	if d.RateLimitBurst <= 0 {
		d.RateLimitBurst = 20
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := mw.NewMetrics(registry)

	// Services
	cache := service.NewLeadCache(d.Cache, d.LeadCacheTTL, logger)
	data := service.NewDataStore(d.Tenants, d.Users, d.Leads, auth.ContextIdentity{}, cache, logger)
	authSvc := service.NewAuthService(data, d.Users, d.Tokens, d.Hasher, logger)

	facades := func(slot string) *auth.Facade {
		f := auth.NewFacade(d.Tokens, session.NewStore(d.Sessions, "session:"+slot, session.WithTTL(d.Tokens.RefreshTTL())), logger)
		f.SetTenantCleaner(data)
		return f
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(authSvc, data, d.Tokens, facades, metrics, logger)
	authHandler.SetSecureCookies(d.SecureCookies)
	leadHandler := handlers.NewLeadHandler(data, logger)
	userHandler := handlers.NewUserHandler(data, d.Hasher, logger)
	healthHandler := handlers.NewHealthHandler(d.Health)

	limiter := mw.NewRateLimiter(d.RateLimitRPS, d.RateLimitBurst)
	requireAuth := mw.Authenticate(d.Tokens, facades, metrics)

	r := chi.NewRouter()
	app := &App{Router: r, Registry: registry, Limiter: limiter, Data: data}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.CORS(d.CORSOrigin))
	r.Use(limiter.Middleware)

	// Public
	r.Get("/health", healthHandler.Get)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register-tenant", authHandler.RegisterTenant)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
		r.With(requireAuth).Get("/me", authHandler.Me)
	})

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/statuses", leadHandler.Statuses)

		r.Route("/leads", func(r chi.Router) {
			r.Get("/", leadHandler.List)
			r.Post("/", leadHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", leadHandler.Get)
				r.Patch("/", leadHandler.Update)
				r.Delete("/", leadHandler.Delete)
				r.Post("/notes", leadHandler.AddNote)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.List)
			r.Post("/", userHandler.Create)
		})
	})

	return app
}
