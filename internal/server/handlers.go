package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	apperrors "github.com/pollstream/pollstream/internal/errors"
	"github.com/pollstream/pollstream/internal/platform/correlation"
)

// maxPublishBodySize caps the publish payload at 64 KiB. Poll snapshots
// are small; anything larger is a caller bug.
const maxPublishBodySize = 64 * 1024

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newCheckOrigin(s.config.AppURL, s.config.IsDevelopment()),
	}
}

// handleWebSocket upgrades the connection, registers it with the hub, and
// runs the read pump until the client goes away. All outbound traffic is
// the hub's business; this goroutine only reads.
func (s *Server) handleWebSocket(c echo.Context) error {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote its error response.
		slog.InfoContext(c.Request().Context(), "WebSocket upgrade failed", "error", err)
		return nil
	}

	id, err := s.hub.Register(conn, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		// Register closed the connection (capacity or a stuck hub).
		return nil
	}

	ctx := correlation.WithClientID(c.Request().Context(), id.String())

	defer s.hub.Unregister(id)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(ctx, "WebSocket read ended", "error", err)
			}
			return nil
		}
		s.hub.HandleFrame(id, data)
	}
}

// handlePublish fans a poll state payload out to subscribers. Responds 202
// with delivery counts; subscriber failures never fail the request.
func (s *Server) handlePublish(c echo.Context) error {
	pollID := c.Param("id")
	if pollID == "" {
		return apperrors.ValidationError("Missing poll id")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPublishBodySize+1))
	if err != nil {
		return apperrors.InternalError("Failed to read request body").WithCause(err)
	}
	if len(body) > maxPublishBodySize {
		return apperrors.ValidationError("Payload too large")
	}
	if len(body) == 0 || !json.Valid(body) {
		return apperrors.ValidationError("Payload must be valid JSON")
	}

	result, err := s.hub.Publish(pollID, json.RawMessage(body))
	if err != nil {
		return apperrors.InternalError("Publish failed").WithCause(err).WithContext("poll_id", pollID)
	}

	slog.InfoContext(c.Request().Context(), "Poll update published",
		"poll_id", pollID, "delivered", result.Delivered, "failed", result.Failed)
	return c.JSON(http.StatusAccepted, result)
}
