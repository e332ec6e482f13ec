// Package server exposes the HTTP surface: the WebSocket endpoint clients
// connect to, the internal publish trigger, and observability routes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/pollstream/pollstream/internal/errors"
	"github.com/pollstream/pollstream/internal/hub"
	"github.com/pollstream/pollstream/internal/platform/config"
	"github.com/pollstream/pollstream/internal/platform/correlation"
)

// pollHub is the slice of the hub the HTTP layer needs.
type pollHub interface {
	Register(conn *websocket.Conn, remoteAddr, userAgent string) (uuid.UUID, error)
	Unregister(id uuid.UUID)
	HandleFrame(id uuid.UUID, data []byte)
	Publish(pollID string, payload json.RawMessage) (hub.PublishResult, error)
	ClientCount() int
}

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	hub         pollHub
	redisClient *goredis.Client
	startTime   time.Time
}

// NewServer wires routes and middleware. redisClient may be nil when the
// service runs with the static token verifier.
func NewServer(cfg *config.Config, h pollHub, redisClient *goredis.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:        e,
		config:      cfg,
		hub:         h,
		redisClient: redisClient,
		startTime:   time.Now(),
	}
	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// correlationMiddleware stamps every request context with a correlation
// ID, honoring a caller-supplied one so publishes can be traced end to end.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := correlation.FromRequest(c.Request())
			ctx := correlation.WithID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(correlation.HeaderName, id)
			return next(c)
		}
	}
}
