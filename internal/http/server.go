// Package http provides the HTTP API for pensiond.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pensiond/internal/orchestrator"
	"github.com/fyrsmithlabs/pensiond/internal/profile"
)

// QueryProcessor runs one member query to a terminal disposition.
type QueryProcessor interface {
	Process(ctx context.Context, q orchestrator.Query) (*orchestrator.Outcome, error)
}

// Server provides HTTP endpoints for pensiond.
type Server struct {
	echo      *echo.Echo
	processor QueryProcessor
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(processor QueryProcessor, logger *zap.Logger, cfg *Config) (*Server, error) {
	if processor == nil {
		return nil, fmt.Errorf("query processor cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8087,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		processor: processor,
		logger:    logger,
		config:    cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check
	s.echo.GET("/health", s.handleHealth)

	// Prometheus scrape endpoint
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/queries", s.handleQuery)
}

// QueryRequest is the request body for POST /api/v1/queries.
type QueryRequest struct {
	Text      string `json:"text"`
	MemberID  string `json:"member_id"`
	SessionID string `json:"session_id,omitempty"`
}

// QueryResponse is the response body for POST /api/v1/queries.
type QueryResponse struct {
	QueryID     string   `json:"query_id"`
	Answer      string   `json:"answer"`
	Citations   []string `json:"citations,omitempty"`
	Disposition string   `json:"disposition"`
	Topic       string   `json:"topic"`
	Tier        string   `json:"tier"`
	Retries     int      `json:"retries"`
	Confidence  float64  `json:"confidence"`
	CostUSD     float64  `json:"cost_usd"`
	ElapsedMS   int64    `json:"elapsed_ms"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleQuery processes one member question end to end.
func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}
	if req.MemberID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "member_id field is required")
	}

	out, err := s.processor.Process(c.Request().Context(), orchestrator.Query{
		Text:      req.Text,
		MemberID:  req.MemberID,
		SessionID: req.SessionID,
		ArrivedAt: time.Now(),
	})
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "member not found")
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return echo.NewHTTPError(http.StatusGatewayTimeout, "query processing timed out")
		}
		s.logger.Error("query processing failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "query processing failed")
	}

	var confidence float64
	if n := len(out.Validations); n > 0 {
		confidence = out.Validations[n-1].Confidence
	}

	return c.JSON(http.StatusOK, QueryResponse{
		QueryID:     out.QueryID,
		Answer:      out.Answer,
		Citations:   out.Citations,
		Disposition: string(out.Disposition),
		Topic:       string(out.Classification.Topic),
		Tier:        out.Classification.Tier.String(),
		Retries:     out.Retries,
		Confidence:  confidence,
		CostUSD:     out.Costs.CostUSD,
		ElapsedMS:   out.Elapsed.Milliseconds(),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
