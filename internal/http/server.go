// Package http provides the careerd HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/career"
	"github.com/fyrsmithlabs/careerd/internal/config"
	"github.com/fyrsmithlabs/careerd/internal/logging"
	"github.com/fyrsmithlabs/careerd/internal/service"
)

// ServiceName is reported by the root status endpoint.
const ServiceName = "careerd"

// Service is the application surface served over HTTP.
type Service interface {
	UploadCV(ctx context.Context, req service.UploadRequest) (service.UploadResult, error)
	SaveInterests(ctx context.Context, userID string, interests []string) (service.InterestsResult, error)
	Analyze(ctx context.Context, userID string) (service.AnalyzeResult, error)
	Recommend(ctx context.Context, userID string, interests []string) (career.Recommendation, error)
}

// Server provides HTTP endpoints for careerd.
type Server struct {
	echo     *echo.Echo
	svc      Service
	logger   *zap.Logger
	config   config.ServerConfig
	version  string
	gatherer prometheus.Gatherer
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by GET /.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithGatherer sets the registry exposed on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// NewServer creates a new HTTP server.
func NewServer(svc Service, logger *zap.Logger, cfg config.ServerConfig, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}

	s := &Server{
		svc:      svc,
		logger:   logger,
		config:   cfg,
		version:  "dev",
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Server.ReadTimeout = cfg.ReadTimeout.Duration()
	e.Server.WriteTimeout = cfg.WriteTimeout.Duration()
	s.echo = e

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			c.SetRequest(c.Request().WithContext(logging.WithRequestID(c.Request().Context(), id)))
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: corsOrigins(cfg.CORSOrigins),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	if cfg.MaxUploadMB > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.MaxUploadMB)))
	}
	e.Use(s.requestLogger())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s.registerRoutes()

	return s, nil
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Render now so the logged status is the one sent.
				c.Error(err)
			}

			s.logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	user := s.echo.Group("/user")
	user.POST("/upload_cv", s.handleUploadCV)
	user.POST("/interests", s.handleInterests)

	careerGroup := s.echo.Group("/career")
	careerGroup.POST("/analyze", s.handleAnalyze)
	careerGroup.POST("/recommend", s.handleRecommend)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr), zap.String("version", s.version))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
