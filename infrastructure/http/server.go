package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/spacedesk/spacedesk/application/port/inbound"
	"github.com/spacedesk/spacedesk/infrastructure/http/handler"
	"github.com/spacedesk/spacedesk/infrastructure/http/middleware"
	"github.com/spacedesk/spacedesk/infrastructure/http/response"
	"github.com/spacedesk/spacedesk/infrastructure/service/logger"
	"github.com/spacedesk/spacedesk/infrastructure/service/ratelimit"
)

// Server is the HTTP adapter over the allocation core
type Server struct {
	addr   string
	server *http.Server
	log    logger.Logger
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	CORSEnabled        bool
	CORSAllowedOrigins []string

	RateLimitRequests      int
	RateLimitWindow        time.Duration
	RateLimitBlockDuration time.Duration
}

// NewServer wires handlers and middleware into a ready-to-start server
func NewServer(
	config ServerConfig,
	entityUseCase inbound.EntityUseCase,
	allocationUseCase inbound.AllocationUseCase,
	limiter ratelimit.Service,
	log logger.Logger,
) *Server {
	entityHandler := handler.NewEntityHandler(entityUseCase)
	allocationHandler := handler.NewAllocationHandler(allocationUseCase)

	router := mux.NewRouter()
	entityHandler.RegisterRoutes(router)
	allocationHandler.RegisterRoutes(router)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	rateLimiter := middleware.NewRateLimitMiddleware(limiter, log,
		config.RateLimitRequests, config.RateLimitWindow, config.RateLimitBlockDuration)

	var root http.Handler = router
	root = rateLimiter.RateLimit(root)
	if config.CORSEnabled {
		root = middleware.CORS(root, config.CORSAllowedOrigins)
	}
	root = middleware.CorrelationID(root)
	root = recoveryMiddleware(root, log)

	addr := config.Host + ":" + config.Port
	return &Server{
		addr: addr,
		log:  log,
		server: &http.Server{
			Addr:         addr,
			Handler:      root,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.log.Info(context.Background(), "starting HTTP server", map[string]interface{}{"addr": s.addr})
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}

// recoveryMiddleware turns a handler panic into a 500 instead of tearing down
// the process
func recoveryMiddleware(next http.Handler, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error(r.Context(), "panic recovered in handler", nil, map[string]interface{}{
					"panic": rec,
					"path":  r.URL.Path,
				})
				response.InternalServerError(w, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
