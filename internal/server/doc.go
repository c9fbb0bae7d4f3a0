// Package server implements the HTTP server using Echo framework.
//
// Routes: websocket endpoint (/ws), channel API (create/list/messages), blob
// serving, health and metrics. Handlers split by concern: handlers.go
// (websocket + auth), handlers_api.go, handlers_health.go.
package server
