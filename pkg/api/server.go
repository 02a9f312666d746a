// Package api exposes the analysis over HTTP: upload of interaction
// records, network construction with optional significance pruning,
// clustering and per-subject statistics.
package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/gilchrisn/hina-service/pkg/clustering"
	"github.com/gilchrisn/hina-service/pkg/config"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	cfg      *config.Config
	registry *clustering.Registry
	metrics  *Metrics
	validate *validator.Validate
	router   *mux.Router
}

// NewServer wires the routes and middleware. A nil registry uses the
// built-in clustering methods.
func NewServer(cfg *config.Config, registry *clustering.Registry) *Server {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if registry == nil {
		registry = clustering.NewRegistry()
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		metrics:  NewMetrics(),
		validate: validator.New(),
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) setupRoutes() {
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(s.metrics.Middleware)
	s.router.Use(CORSMiddleware(s.cfg.CORSOrigins()))

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/upload", s.Upload).Methods(http.MethodPost)

	networks := api.PathPrefix("/networks").Subrouter()
	networks.HandleFunc("/hina", s.BuildNetwork).Methods(http.MethodPost)
	networks.HandleFunc("/clusters", s.BuildClusters).Methods(http.MethodPost)

	api.HandleFunc("/quantity-diversity", s.QuantityDiversity).Methods(http.MethodPost)
	api.HandleFunc("/methods", s.ListMethods).Methods(http.MethodGet)
	api.HandleFunc("/health", s.HealthCheck).Methods(http.MethodGet)

	// Preflight requests are answered by the CORS middleware.
	api.PathPrefix("/").HandlerFunc(func(http.ResponseWriter, *http.Request) {}).Methods(http.MethodOptions)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
}
