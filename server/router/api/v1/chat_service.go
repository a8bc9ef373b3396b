package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/harvestline/plugin/ai/genui"
	"github.com/hrygo/harvestline/plugin/ai/session"
	apierrors "github.com/hrygo/harvestline/server/internal/errors"
	"github.com/hrygo/harvestline/server/service/chat"
)

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message string     `json:"message"`
	History []ChatTurn `json:"history"`
}

type ChatResponse struct {
	Role        string             `json:"role"`
	Content     string             `json:"content"`
	ContextUsed []string           `json:"contextUsed"`
	Flex        *genui.FlexMessage `json:"flex,omitempty"`
}

// HandleChat answers the web widget. The widget keeps its own history,
// so nothing is written to the conversation store.
// POST /api/chat
func (s *APIV1Service) HandleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ToHTTP(c, apierrors.InvalidArgument("invalid request body"))
	}
	if req.Message == "" {
		return apierrors.ToHTTP(c, apierrors.InvalidArgument("Message is required"))
	}

	history := make([]session.Message, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, session.Message{Role: session.Role(turn.Role), Content: turn.Content})
	}

	out := s.Chat.Respond(c.Request().Context(), chat.ChannelWeb, req.Message, history)
	contextUsed := out.ContextUsed
	if contextUsed == nil {
		contextUsed = []string{}
	}
	return c.JSON(http.StatusOK, ChatResponse{
		Role:        "assistant",
		Content:     out.Text,
		ContextUsed: contextUsed,
		Flex:        out.Flex,
	})
}
