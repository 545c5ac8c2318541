// Package api provides the HTTP API server and handlers for the Beacon application.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beaconapp/beacon-server/internal/service"
	"github.com/beaconapp/beacon-server/internal/sse"
	"github.com/beaconapp/beacon-server/internal/store"
)

// APIVersion is reported in the OpenAPI document.
const APIVersion = "1.0.0"

// Services groups all business logic services used by the API server.
type Services struct {
	Auth    *service.AuthService
	Users   *service.UserService
	Groups  *service.GroupService
	Beacons *service.BeaconService
}

// Feed is the fan-out router as seen by the feed handlers and the health check.
type Feed interface {
	sse.Feed
	SubscriberCount() int
}

// BusStatus reports on the pub/sub bus behind the feed.
type BusStatus interface {
	Driver() string
	Healthy() bool
}

// Config tunes the HTTP layer.
type Config struct {
	AllowedOrigins []string
	// Bus is reported by /health when set.
	Bus BusStatus
	// AuthRate limits login and registration per client IP.
	AuthRate Rate
	// LocationRate limits location updates per user.
	LocationRate Rate
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		AuthRate:     Rate{Requests: 20, Interval: time.Minute, Burst: 10},
		LocationRate: Rate{Requests: 120, Interval: time.Minute, Burst: 20},
	}
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store    *store.Store
	services *Services
	feed     Feed
	bus      BusStatus
	streamer *sse.Streamer
	router   *chi.Mux
	api      huma.API
	logger   *slog.Logger

	authRateLimiter     *RateLimiter
	locationRateLimiter *RateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st *store.Store, services *Services, feed Feed, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		store:               st,
		services:            services,
		feed:                feed,
		bus:                 cfg.Bus,
		streamer:            sse.NewStreamer(feed, logger),
		router:              chi.NewRouter(),
		logger:              logger,
		authRateLimiter:     NewRateLimiter(cfg.AuthRate),
		locationRateLimiter: NewRateLimiter(cfg.LocationRate),
	}

	s.setupMiddleware(cfg)

	humaConfig := huma.DefaultConfig("Beacon API", APIVersion)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the rate limiter janitors.
func (s *Server) Close() {
	if s.authRateLimiter != nil {
		s.authRateLimiter.Stop()
	}
	if s.locationRateLimiter != nil {
		s.locationRateLimiter.Stop()
	}
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(cfg Config) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(clientIPMiddleware)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(corsMiddleware(cfg.AllowedOrigins))
	s.router.Use(authMiddleware(s.services.Auth))
}

// setupRoutes registers every route. Feeds and /metrics are plain chi
// handlers; everything else goes through huma.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerLinkRoutes()
	s.registerAuthRoutes()
	s.registerUserRoutes()
	s.registerGroupRoutes()
	s.registerBeaconRoutes()
	s.registerFeedRoutes()

	s.router.Handle("/metrics", promhttp.Handler())
}

// bearer marks an operation as requiring a token in the OpenAPI document.
var bearer = []map[string][]string{{"bearer": {}}}
