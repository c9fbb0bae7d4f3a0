package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// WebSocket endpoint (credential checked before upgrade)
	s.echo.GET("/ws", s.handleWebSocket)

	// Channel API (authenticated)
	s.echo.POST("/api/channels", s.handleCreateChannel, s.requireAuth)
	s.echo.GET("/api/channels", s.handleListChannels, s.requireAuth)
	s.echo.GET("/api/channels/:id/messages", s.handleListMessages, s.requireAuth)

	// Public blob serving (content-addressed, URLs are unguessable)
	s.echo.GET("/blobs/:name", s.handleGetBlob)
}
