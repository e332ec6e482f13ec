package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Client-facing WebSocket endpoint
	s.echo.GET("/ws", s.handleWebSocket)

	// Publish trigger for the poll service; not exposed publicly
	s.echo.POST("/internal/polls/:id/publish", s.handlePublish)
}
