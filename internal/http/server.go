// Package http serves the journal over a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/journalgpt/internal/analysis"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// JournalAPI is the core surface served over HTTP. *services.Journal
// implements it.
type JournalAPI interface {
	StoreEntry(ctx context.Context, userID, text string) (string, error)
	GetFeedback(ctx context.Context, text string) (analysis.Feedback, error)
	AskAboutSelf(ctx context.Context, userID, question string) (string, error)
}

// Server provides HTTP endpoints for journalgpt.
type Server struct {
	echo    *echo.Echo
	journal JournalAPI
	logger  *logging.Logger
	config  *Config
	metrics *requestMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// BodyLimit bounds request bodies, e.g. "1M". Larger bodies get 413.
	BodyLimit string

	// Meter records request metrics; the global meter when nil.
	Meter metric.Meter
}

// NewServer creates a new HTTP server.
func NewServer(journal JournalAPI, logger *logging.Logger, cfg *Config) (*Server, error) {
	if journal == nil {
		return nil, fmt.Errorf("journal cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "1M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		journal: journal,
		logger:  logger.Named("http"),
		config:  cfg,
		metrics: newRequestMetrics(context.Background(), cfg.Meter, logger, NewPromMetrics()),
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.middleware)
	e.Use(s.requestLogger)
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	s.registerRoutes()
	return s, nil
}

var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._@-]{1,128}$`)

// requestLogger logs each request and carries the request id in the request
// context. Client supplied ids that are unsafe to log are left out.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		ctx := c.Request().Context()
		if id := c.Response().Header().Get(echo.HeaderXRequestID); requestIDPattern.MatchString(id) {
			ctx = logging.WithRequestID(ctx, id)
			c.SetRequest(c.Request().WithContext(ctx))
		}

		err := next(c)
		if err != nil {
			// Resolve the status before logging it.
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/entries", s.handleStoreEntry)
	v1.POST("/feedback", s.handleFeedback)
	v1.POST("/ask", s.handleAsk)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStoreEntry(c echo.Context) error {
	var req StoreEntryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid entry request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" || req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and text are required")
	}

	id, err := s.journal.StoreEntry(c.Request().Context(), req.UserID, req.Text)
	if err != nil {
		return s.apiError(c, err)
	}
	return c.JSON(http.StatusCreated, StoreEntryResponse{ID: id})
}

func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid feedback request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	fb, err := s.journal.GetFeedback(c.Request().Context(), req.Text)
	if err != nil {
		return s.apiError(c, err)
	}
	return c.JSON(http.StatusOK, fb)
}

func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid ask request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" || req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and question are required")
	}

	answer, err := s.journal.AskAboutSelf(c.Request().Context(), req.UserID, req.Question)
	if err != nil {
		return s.apiError(c, err)
	}
	return c.JSON(http.StatusOK, AskResponse{Answer: answer})
}

// apiError logs err and converts it to an HTTP error. Internal detail is not
// sent to the client.
func (s *Server) apiError(c echo.Context, err error) error {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Warn(c.Request().Context(), "request rejected", zap.Int("status", status), zap.Error(err))
	}
	msg := http.StatusText(status)
	if status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge {
		msg = err.Error()
	}
	return echo.NewHTTPError(status, msg)
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
