// Package line adapts the LINE Messaging API SDK to the chat channel:
// webhook parsing with signature verification, and reply/push delivery.
package line

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/plugin/ai/genui"
)

const (
	// SignatureHeader carries the base64 HMAC-SHA256 of the webhook body.
	SignatureHeader = "X-Line-Signature"

	// MaxMessagesPerRequest is the platform limit for one reply or push.
	MaxMessagesPerRequest = 5
	// MaxTextRunes is the platform limit for one text message.
	MaxTextRunes = 5000

	EventTypeMessage = "message"
	EventTypeOther   = "other"
)

// ErrInvalidSignature is returned when the webhook signature does not match.
var ErrInvalidSignature = webhook.ErrInvalidSignature

// SendingMessage is an outbound message accepted by reply and push.
type SendingMessage = messaging_api.MessageInterface

// WebhookRequest is a verified webhook delivery.
type WebhookRequest struct {
	Destination string
	Events      []*Event
}

// Event is the part of a webhook event the chat channel acts on.
type Event struct {
	Type        string
	ReplyToken  string
	UserID      string
	MessageType string
	Text        string
}

// TextFrom returns the text of a user's text message. Blank text is not a message.
func (e *Event) TextFrom() (userID, text string, ok bool) {
	if e.Type != EventTypeMessage || e.MessageType != "text" || e.UserID == "" {
		return "", "", false
	}
	if strings.TrimSpace(e.Text) == "" {
		return "", "", false
	}
	return e.UserID, e.Text, true
}

// TextMessage builds a text message, truncated to the platform limit.
func TextMessage(text string) SendingMessage {
	if runes := []rune(text); len(runes) > MaxTextRunes {
		text = string(runes[:MaxTextRunes])
	}
	return &messaging_api.TextMessage{Text: text}
}

// FlexMessage converts a flex bubble. A bubble the SDK cannot read is sent
// as its alt text.
func FlexMessage(flex *genui.FlexMessage) SendingMessage {
	data, err := json.Marshal(flex.Contents)
	if err != nil {
		return TextMessage(flex.AltText)
	}
	contents, err := messaging_api.UnmarshalFlexContainer(data)
	if err != nil {
		return TextMessage(flex.AltText)
	}
	return &messaging_api.FlexMessage{AltText: flex.AltText, Contents: contents}
}

// Client holds one channel's credentials.
type Client struct {
	channelSecret string
	accessToken   string
	endpoint      string
	httpClient    *http.Client
}

func NewClient(channelSecret, accessToken, endpoint string) *Client {
	return &Client{
		channelSecret: channelSecret,
		accessToken:   accessToken,
		endpoint:      strings.TrimRight(endpoint, "/"),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ParseRequest reads, verifies and decodes a webhook request.
func (c *Client) ParseRequest(r *http.Request) (*WebhookRequest, error) {
	callback, err := webhook.ParseRequest(c.channelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return nil, ErrInvalidSignature
		}
		return nil, errors.Wrap(err, "failed to decode webhook body")
	}

	request := &WebhookRequest{
		Destination: callback.Destination,
		Events:      make([]*Event, 0, len(callback.Events)),
	}
	for _, event := range callback.Events {
		request.Events = append(request.Events, convertEvent(event))
	}
	return request, nil
}

func convertEvent(event webhook.EventInterface) *Event {
	var message webhook.MessageEvent
	switch e := event.(type) {
	case webhook.MessageEvent:
		message = e
	case *webhook.MessageEvent:
		message = *e
	default:
		return &Event{Type: EventTypeOther}
	}

	converted := &Event{
		Type:        EventTypeMessage,
		ReplyToken:  message.ReplyToken,
		UserID:      sourceUserID(message.Source),
		MessageType: EventTypeOther,
	}
	switch content := message.Message.(type) {
	case webhook.TextMessageContent:
		converted.MessageType, converted.Text = "text", content.Text
	case *webhook.TextMessageContent:
		converted.MessageType, converted.Text = "text", content.Text
	}
	return converted
}

func sourceUserID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case *webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case *webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	case *webhook.RoomSource:
		return s.UserId
	}
	return ""
}

// Reply answers an event through its single-use reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...SendingMessage) error {
	if replyToken == "" {
		return errors.New("reply token is required")
	}
	if len(messages) == 0 {
		return errors.New("at least one message is required")
	}
	api, err := c.api(ctx)
	if err != nil {
		return err
	}
	if _, err := api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   limit(messages),
	}); err != nil {
		return errors.Wrap(err, "LINE reply failed")
	}
	return nil
}

// Push sends messages to a user without a reply token.
func (c *Client) Push(ctx context.Context, to string, messages ...SendingMessage) error {
	if to == "" {
		return errors.New("push target is required")
	}
	if len(messages) == 0 {
		return errors.New("at least one message is required")
	}
	api, err := c.api(ctx)
	if err != nil {
		return err
	}
	if _, err := api.PushMessage(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: limit(messages),
	}, uuid.NewString()); err != nil {
		return errors.Wrap(err, "LINE push failed")
	}
	return nil
}

// api builds a request-scoped SDK client; WithContext mutates the client it is called on.
func (c *Client) api(ctx context.Context) (*messaging_api.MessagingApiAPI, error) {
	api, err := messaging_api.NewMessagingApiAPI(c.accessToken,
		messaging_api.WithEndpoint(c.endpoint),
		messaging_api.WithHTTPClient(c.httpClient),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create LINE client")
	}
	return api.WithContext(ctx), nil
}

func limit(messages []SendingMessage) []SendingMessage {
	if len(messages) > MaxMessagesPerRequest {
		return messages[:MaxMessagesPerRequest]
	}
	return messages
}
