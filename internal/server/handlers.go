package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/mbergstrom/chatrelay/internal/domain"
	"github.com/mbergstrom/chatrelay/internal/engine"
	apperrors "github.com/mbergstrom/chatrelay/internal/errors"
	"github.com/mbergstrom/chatrelay/internal/metrics"
)

const claimsContextKey = "claims"

// readChunkSize is how much of an incoming frame is fed into the transfer
// buffer per read. Frames smaller than this arrive as a single final chunk.
const readChunkSize = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Browser clients connect from arbitrary origins
	},
}

// bearerCredential extracts the credential from the Authorization header or,
// for browser websocket clients that cannot set headers, the token query
// parameter.
func bearerCredential(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return c.QueryParam("token")
}

// respondError renders any error as a structured JSON error response.
func respondError(c echo.Context, err error) error {
	structured := apperrors.AsStructuredError(err)
	if structured.Type == apperrors.TypeInternal {
		slog.Error("Request failed", "path", c.Request().URL.Path, "error", err)
	}
	return c.JSON(structured.HTTPStatus(), structured.ToResponse())
}

// requireAuth resolves the bearer credential and stores the claims in the
// request context for handlers.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		credential := bearerCredential(c)
		if credential == "" {
			return respondError(c, apperrors.UnauthorizedError("missing credential"))
		}

		claims, err := s.resolver.Resolve(credential)
		if err != nil {
			if errors.Is(err, domain.ErrExpiredCredential) {
				return respondError(c, apperrors.UnauthorizedError("credential expired"))
			}
			return respondError(c, apperrors.UnauthorizedError("invalid credential"))
		}

		c.Set(claimsContextKey, claims)
		return next(c)
	}
}

func claimsFrom(c echo.Context) domain.Claims {
	claims, _ := c.Get(claimsContextKey).(domain.Claims)
	return claims
}

// handleWebSocket authenticates the handshake, enforces the connection
// limits, upgrades the socket and runs the read loop until the session ends.
// The credential is checked before the upgrade: an unauthenticated peer never
// gets a Connection.
func (s *Server) handleWebSocket(c echo.Context) error {
	credential := bearerCredential(c)
	if credential == "" {
		metrics.ConnectionsTotal.WithLabelValues("rejected_auth").Inc()
		return respondError(c, apperrors.UnauthorizedError("missing credential"))
	}

	claims, err := s.resolver.Resolve(credential)
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues("rejected_auth").Inc()
		return respondError(c, apperrors.UnauthorizedError("invalid credential"))
	}

	if !s.upgradeLimiter.Allow() {
		metrics.ConnectionsTotal.WithLabelValues("rejected_rate").Inc()
		return c.NoContent(http.StatusTooManyRequests)
	}

	if !s.globalLimiter.Acquire() {
		metrics.ConnectionsTotal.WithLabelValues("rejected_capacity").Inc()
		return c.NoContent(http.StatusServiceUnavailable)
	}

	ip := c.RealIP()
	if !s.ipLimiter.Acquire(ip) {
		s.globalLimiter.Release()
		metrics.ConnectionsTotal.WithLabelValues("rejected_ip_limit").Inc()
		return c.NoContent(http.StatusTooManyRequests)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.ipLimiter.Release(ip)
		s.globalLimiter.Release()
		metrics.ConnectionsTotal.WithLabelValues("rejected_upgrade").Inc()
		return nil // Upgrade already wrote the error response
	}
	metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()

	remoteHost, remotePort, _ := net.SplitHostPort(c.Request().RemoteAddr)
	hs := engine.HandshakeResult{
		Claims:     claims,
		RemoteHost: remoteHost,
		RemoteAddr: ip,
		RemotePort: remotePort,
		ServerHost: c.Request().Host,
	}

	ctx := c.Request().Context()
	conn := s.coordinator.Open(ctx, hs, newWSTransport(ws))
	sessionID := conn.SessionID

	defer func() {
		s.coordinator.Close(sessionID)
		s.ipLimiter.Release(ip)
		s.globalLimiter.Release()
	}()

	// Liveness: the supervisor pings on a timer; a peer that stops answering
	// lets the read deadline expire and the loop below returns.
	readWait := 2 * s.config.KeepAliveInterval
	ws.SetReadLimit(s.config.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readWait))
	})

	s.readFrames(c, ws, sessionID, readWait)
	return nil
}

// readFrames pumps incoming frames into the coordinator chunk by chunk until
// the socket fails. The final chunk of each frame carries the finish flag;
// text frames and small binary frames arrive as a single final chunk.
func (s *Server) readFrames(c echo.Context, ws *websocket.Conn, sessionID string, readWait time.Duration) {
	ctx := c.Request().Context()
	buf := make([]byte, readChunkSize)

	for {
		_, reader, err := ws.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Read loop ended", "session_id", sessionID, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readWait))

		for {
			n, err := reader.Read(buf)
			final := errors.Is(err, io.EOF)
			if n > 0 || final {
				s.coordinator.HandleChunk(ctx, sessionID, buf[:n], final)
			}
			if final {
				break
			}
			if err != nil {
				// Mid-frame failure: the partial transfer is discarded on close.
				return
			}
		}
	}
}
