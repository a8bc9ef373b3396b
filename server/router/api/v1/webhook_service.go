package v1

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/harvestline/plugin/ai/timeout"
	"github.com/hrygo/harvestline/plugin/line"
	apierrors "github.com/hrygo/harvestline/server/internal/errors"
	"github.com/hrygo/harvestline/server/service/chat"
)

// LineErrorMessage is sent when the orchestrator fails on a LINE message.
const LineErrorMessage = "ขออภัย ระบบ AI มีปัญหาชั่วคราว"

// Webhook verifies a LINE delivery, acknowledges it and processes the
// events in the background.
// POST /webhook
func (s *APIV1Service) Webhook(c echo.Context) error {
	if s.Line == nil {
		return apierrors.ToHTTP(c, apierrors.DependencyUnavailable("LINE channel is not configured", nil))
	}

	req, err := s.Line.ParseRequest(c.Request())
	if err != nil {
		if errors.Is(err, line.ErrInvalidSignature) {
			slog.Warn("rejected webhook with invalid signature", slog.String("ip", c.RealIP()))
			return apierrors.ToHTTP(c, apierrors.Unauthenticated("invalid signature"))
		}
		return apierrors.ToHTTP(c, apierrors.InvalidArgument("invalid webhook body"))
	}

	if len(req.Events) > 0 {
		ctx := context.WithoutCancel(c.Request().Context())
		s.batches.Add(1)
		go func() {
			defer s.batches.Done()
			s.processBatch(ctx, req.Events)
		}()
	}
	return c.NoContent(http.StatusOK)
}

// processBatch settles every event; one failure does not stop the others.
func (s *APIV1Service) processBatch(ctx context.Context, events []*line.Event) {
	ctx, cancel := context.WithTimeout(ctx, timeout.WebhookBatchTimeout)
	defer cancel()

	var g errgroup.Group
	for _, event := range events {
		g.Go(func() error {
			return s.handleEvent(ctx, event)
		})
	}
	err := g.Wait()
	s.Metrics.RecordWebhookBatch(err != nil)
	if err != nil {
		slog.Warn("webhook batch finished with errors",
			slog.Int("events", len(events)),
			slog.String("error", err.Error()))
	}
}

func (s *APIV1Service) handleEvent(ctx context.Context, event *line.Event) error {
	userID, text, ok := event.TextFrom()
	if !ok {
		return nil
	}

	out, err := s.Chat.HandleInbound(ctx, chat.Inbound{UserID: userID, Text: text, Channel: chat.ChannelLine})
	if err != nil {
		slog.Error("failed to handle LINE message",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		if deliverErr := s.deliver(ctx, event.ReplyToken, userID, line.TextMessage(LineErrorMessage)); deliverErr != nil {
			return errors.Wrap(deliverErr, err.Error())
		}
		return err
	}
	if out == nil {
		return nil
	}

	messages := []line.SendingMessage{line.TextMessage(out.Text)}
	if out.Flex != nil {
		messages = append(messages, line.FlexMessage(out.Flex))
	}
	return s.deliver(ctx, event.ReplyToken, userID, messages...)
}

// deliver uses the reply token and falls back to a push when the token is
// missing, expired or already used.
func (s *APIV1Service) deliver(ctx context.Context, replyToken, userID string, messages ...line.SendingMessage) error {
	replyCtx, cancel := context.WithTimeout(ctx, timeout.DeliveryTimeout)
	err := s.Line.Reply(replyCtx, replyToken, messages...)
	cancel()
	if err == nil {
		return nil
	}
	slog.Warn("LINE reply failed, falling back to push",
		slog.String("user_id", userID),
		slog.String("error", err.Error()))

	pushCtx, cancel := context.WithTimeout(ctx, timeout.DeliveryTimeout)
	defer cancel()
	if err := s.Line.Push(pushCtx, userID, messages...); err != nil {
		return errors.Wrapf(err, "failed to deliver reply to %s", userID)
	}
	return nil
}
