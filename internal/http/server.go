// Package http provides the runlogd control API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/runlogd/internal/appender"
	"github.com/fyrsmithlabs/runlogd/internal/channel"
	"github.com/fyrsmithlabs/runlogd/internal/config"
	"github.com/fyrsmithlabs/runlogd/internal/lineage"
	"github.com/fyrsmithlabs/runlogd/internal/logging"
	"github.com/fyrsmithlabs/runlogd/internal/registry"
	"github.com/fyrsmithlabs/runlogd/internal/telemetry"
	"github.com/fyrsmithlabs/runlogd/pkg/event"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server provides HTTP endpoints for runlogd.
type Server struct {
	echo      *echo.Echo
	app       *appender.Appender
	telemetry *telemetry.Telemetry
	metrics   *HTTPMetrics
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Option configures a Server.
type Option func(*Server)

// WithTelemetry reports telemetry health on /health.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Server) { s.telemetry = t }
}

// WithMetrics instruments every request.
func WithMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new HTTP server.
func NewServer(app *appender.Appender, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if app == nil {
		return nil, fmt.Errorf("appender cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		app:    app,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s.registerRoutes()
	return s, nil
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/events", s.handleSubmit)
	v1.POST("/lineage", s.handleLineage)
	v1.GET("/channels", s.handleListChannels)
	v1.GET("/channels/:key", s.handleGetChannel)
	v1.DELETE("/channels/:key", s.handleDestroyChannel)
	v1.POST("/channels/:key/time-offset", s.handleTimeOffset)
	v1.GET("/channels/:key/testcase", s.handleTestCase)
	v1.POST("/shutdown", s.handleShutdown)
}

func (s *Server) registry() *registry.Registry {
	return s.app.Registry()
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Channels: s.registry().Len()}
	if s.telemetry != nil {
		h := s.telemetry.Health()
		resp.Telemetry = &h
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid submit request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ev, err := req.event()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.app.Submit(c.Request().Context(), ev); err != nil {
		return s.submitError(err)
	}
	return c.JSON(http.StatusAccepted, SubmitResponse{ID: ev.ID.String()})
}

func (r SubmitRequest) event() (event.Event, error) {
	kind := event.KindMessage
	if r.Kind != "" {
		k, err := event.ParseKind(r.Kind)
		if err != nil {
			return event.Event{}, err
		}
		kind = k
	}
	severity, err := logging.LevelFromString(r.Severity)
	if err != nil {
		return event.Event{}, err
	}

	opts := []event.Option{
		event.WithLogger(r.Logger),
		event.WithName(r.Name),
		event.WithEntityID(r.EntityID),
		event.WithAttributes(r.Attributes),
	}
	if r.Timestamp != nil {
		opts = append(opts, event.WithTimestamp(*r.Timestamp))
	}
	return event.New(kind, r.ThreadKey, severity, r.Message, opts...), nil
}

func (s *Server) submitError(err error) error {
	switch {
	case errors.Is(err, appender.ErrControlKind):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, channel.ErrQueueFull):
		return echo.NewHTTPError(http.StatusTooManyRequests, "channel queue full")
	case errors.Is(err, channel.ErrChannelClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "channel closed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "submit canceled")
	case errors.Is(err, config.ErrInvalidConfiguration):
		s.logger.Error("channel creation rejected by configuration", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		s.logger.Error("submit failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "submit failed")
	}
}

func (s *Server) handleLineage(c echo.Context) error {
	var req LineageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	added, err := s.app.RecordLineage(req.Child, req.Parent)
	if err != nil {
		if errors.Is(err, lineage.ErrEmptyKey) || errors.Is(err, lineage.ErrSelfLineage) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	return c.JSON(status, LineageResponse{Added: added})
}

func (s *Server) handleListChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, ChannelsResponse{
		Default:  s.registry().DefaultKey(),
		Channels: s.registry().Channels(),
	})
}

// channelKey returns the unescaped :key parameter, mapping the alias to "".
func channelKey(c echo.Context) (string, error) {
	key, err := url.PathUnescape(c.Param("key"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid channel key")
	}
	if key == DefaultChannelAlias {
		return "", nil
	}
	return key, nil
}

func notFound(err error) error {
	if errors.Is(err, registry.ErrChannelNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}

func (s *Server) handleGetChannel(c echo.Context) error {
	key, err := channelKey(c)
	if err != nil {
		return err
	}
	snap, err := s.registry().Snapshot(key)
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleDestroyChannel(c echo.Context) error {
	key, err := channelKey(c)
	if err != nil {
		return err
	}
	if err := s.registry().Destroy(key); err != nil {
		return notFound(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTimeOffset(c echo.Context) error {
	key, err := channelKey(c)
	if err != nil {
		return err
	}
	var req TimeOffsetRequest
	if err := c.Bind(&req); err != nil || req.Timestamp.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "timestamp is required")
	}
	offset, err := s.app.CalculateTimeOffset(key, req.Timestamp)
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, TimeOffsetResponse{OffsetMillis: offset.Milliseconds()})
}

func (s *Server) handleTestCase(c echo.Context) error {
	key, err := channelKey(c)
	if err != nil {
		return err
	}
	st, err := s.app.CurrentTestCaseState(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, channel.ErrChannelClosed) {
			return echo.NewHTTPError(http.StatusGone, err.Error())
		}
		return notFound(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleShutdown(c echo.Context) error {
	wait := true
	if v := c.QueryParam("wait"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wait must be a boolean")
		}
		wait = b
	}

	n := s.registry().Len()
	resp := ShutdownResponse{Destroyed: n, WaitForDrain: wait}
	if err := s.app.Close(c.Request().Context(), wait); err != nil {
		s.logger.Warn("shutdown did not complete", zap.Error(err))
		resp.Error = err.Error()
		return c.JSON(http.StatusGatewayTimeout, resp)
	}
	return c.JSON(http.StatusOK, resp)
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
