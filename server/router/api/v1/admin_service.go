package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/harvestline/server/internal/errors"
	"github.com/hrygo/harvestline/server/internal/observability"
)

type SetModeRequest struct {
	Mode string `json:"mode"`
}

type ReplyRequest struct {
	Text string `json:"text"`
}

// ListChats returns a summary row per conversation, most recent first.
// GET /api/admin/chats
func (s *APIV1Service) ListChats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Conversations.List(c.Request().Context()))
}

// GET /api/admin/chats/:userId
func (s *APIV1Service) GetChat(c echo.Context) error {
	conv, ok := s.Conversations.Find(c.Request().Context(), c.Param("userId"))
	if !ok {
		return apierrors.ToHTTP(c, apierrors.NotFound("User not found"))
	}
	return c.JSON(http.StatusOK, conv)
}

// SetChatMode hands a conversation to an operator or back to the assistant.
// POST /api/admin/chats/:userId/mode
func (s *APIV1Service) SetChatMode(c echo.Context) error {
	var req SetModeRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ToHTTP(c, apierrors.InvalidArgument("invalid request body"))
	}
	conv, err := s.Chat.SetMode(c.Request().Context(), c.Param("userId"), req.Mode)
	if err != nil {
		return apierrors.ToHTTP(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"userId":  conv.UserID,
		"mode":    conv.Mode,
	})
}

// ReplyToChat sends an operator message to the user on LINE.
// POST /api/admin/chats/:userId/reply
func (s *APIV1Service) ReplyToChat(c echo.Context) error {
	var req ReplyRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ToHTTP(c, apierrors.InvalidArgument("invalid request body"))
	}
	if req.Text == "" {
		return apierrors.ToHTTP(c, apierrors.InvalidArgument("Text is required"))
	}
	if err := s.Chat.OperatorReply(c.Request().Context(), c.Param("userId"), req.Text); err != nil {
		return apierrors.ToHTTP(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// GET /api/admin/metrics
func (s *APIV1Service) GetMetrics(c echo.Context) error {
	snapshot := s.Metrics.Snapshot()
	if s.QueryCache != nil {
		hits, misses := s.QueryCache.Stats()
		snapshot.QueryCache = &observability.QueryCacheSnapshot{Hits: hits, Misses: misses}
	}
	return c.JSON(http.StatusOK, snapshot)
}
