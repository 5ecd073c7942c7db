package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/moonbridge/internal/api/http"
	"github.com/GriffinCanCode/moonbridge/internal/api/middleware"
	"github.com/GriffinCanCode/moonbridge/internal/api/ws"
	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/monitoring"
)

// Server serves the introspection API of one host.
type Server struct {
	router  *gin.Engine
	http    *http.Server
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New builds the router for h. A private metrics collector is used when
// metrics is nil.
func New(cfg *config.Config, h apihttp.Host, metrics *monitoring.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	router.Use(middleware.Gzip(gzip.DefaultCompression, "/metrics", "/events"))

	handlers := apihttp.NewHandlers(h, logger)
	wsHandler := ws.NewHandler(h.Surface(), metrics, logger)

	router.GET("/health", handlers.Health)

	// Type registry
	router.GET("/types", handlers.ListTypes)
	router.GET("/types/:name", handlers.GetType)
	router.POST("/types/resolve", handlers.ResolveType)
	router.GET("/classes", handlers.ListClasses)

	// Page bridge
	router.GET("/scriptable", handlers.ListScriptable)
	router.GET("/navigation", handlers.GetNavigation)
	router.PUT("/navigation", handlers.SetNavigation)

	// WebSocket
	router.GET("/events", wsHandler.HandleConnection)

	// Metrics
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	return &Server{
		router: router,
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Run serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.http.Shutdown(ctx)
}
