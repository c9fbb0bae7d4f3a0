package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mbergstrom/chatrelay/internal/domain"
	apperrors "github.com/mbergstrom/chatrelay/internal/errors"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 500
)

type createChannelRequest struct {
	Name string `json:"name"`
}

// handleCreateChannel creates a channel, subscribes its creator and attaches
// the creator's live connection so the new channel receives broadcasts
// without a client round trip.
func (s *Server) handleCreateChannel(c echo.Context) error {
	claims := claimsFrom(c)

	var req createChannelRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apperrors.ValidationError("invalid request body"))
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return respondError(c, apperrors.ValidationError("channel name is required"))
	}

	ctx := c.Request().Context()

	channel, err := s.store.CreateChannel(ctx, name, claims.UserID)
	if err != nil {
		return respondError(c, err)
	}

	if err := s.store.Subscribe(ctx, claims.UserID, channel.ID); err != nil {
		return respondError(c, err)
	}

	s.coordinator.SubscribeNewChannel(claims.UserID, channel.ID)

	return c.JSON(http.StatusCreated, channel)
}

func (s *Server) handleListChannels(c echo.Context) error {
	claims := claimsFrom(c)

	channels, err := s.store.ChannelsForUser(c.Request().Context(), claims.UserID)
	if err != nil {
		return respondError(c, err)
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	return c.JSON(http.StatusOK, channels)
}

func (s *Server) handleListMessages(c echo.Context) error {
	channelID := c.Param("id")

	limit := defaultMessageLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return respondError(c, apperrors.ValidationError("limit must be a positive integer"))
		}
		limit = min(parsed, maxMessageLimit)
	}

	ctx := c.Request().Context()

	if _, err := s.store.GetChannel(ctx, channelID); err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			return respondError(c, apperrors.NotFoundError("channel not found"))
		}
		return respondError(c, err)
	}

	messages, err := s.store.ListMessages(ctx, channelID, limit)
	if err != nil {
		return respondError(c, err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, messages)
}

// handleGetBlob serves a stored image blob. Names are content hashes, so
// responses are immutable and cacheable forever.
func (s *Server) handleGetBlob(c echo.Context) error {
	name := c.Param("name")

	data, contentType, err := s.blobs.Get(c.Request().Context(), name)
	if err != nil {
		return respondError(c, apperrors.NotFoundError("blob not found"))
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Blob(http.StatusOK, contentType, data)
}
