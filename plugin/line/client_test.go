package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/harvestline/plugin/ai/genui"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

const webhookBody = `{"destination":"Ubot","events":[
{"type":"message","mode":"active","replyToken":"rt-1","timestamp":1700000000000,"webhookEventId":"e1","deliveryContext":{"isRedelivery":false},"source":{"type":"user","userId":"U123"},"message":{"id":"1","type":"text","text":"สวัสดี","quoteToken":"q1"}},
{"type":"follow","mode":"active","replyToken":"rt-2","timestamp":1700000000000,"webhookEventId":"e2","deliveryContext":{"isRedelivery":false},"source":{"type":"user","userId":"U123"}},
{"type":"message","mode":"active","replyToken":"rt-3","timestamp":1700000000000,"webhookEventId":"e3","deliveryContext":{"isRedelivery":false},"source":{"type":"user","userId":"U123"},"message":{"id":"2","type":"sticker","packageId":"1","stickerId":"1","stickerResourceType":"STATIC","quoteToken":"q2"}},
{"type":"message","mode":"active","replyToken":"rt-4","timestamp":1700000000000,"webhookEventId":"e4","deliveryContext":{"isRedelivery":false},"source":{"type":"group","groupId":"G1","userId":"U456"},"message":{"id":"3","type":"text","text":"   ","quoteToken":"q3"}}
]}`

func webhookRequest(body []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, signature)
	return req
}

func TestParseRequest(t *testing.T) {
	client := NewClient("channel-secret", "token", "https://api.line.me")
	body := []byte(webhookBody)

	t.Run("valid signature", func(t *testing.T) {
		parsed, err := client.ParseRequest(webhookRequest(body, sign("channel-secret", body)))
		require.NoError(t, err)
		assert.Equal(t, "Ubot", parsed.Destination)
		require.Len(t, parsed.Events, 4)

		userID, text, ok := parsed.Events[0].TextFrom()
		require.True(t, ok)
		assert.Equal(t, "U123", userID)
		assert.Equal(t, "สวัสดี", text)
		assert.Equal(t, "rt-1", parsed.Events[0].ReplyToken)

		assert.Equal(t, EventTypeOther, parsed.Events[1].Type)
		_, _, ok = parsed.Events[1].TextFrom()
		assert.False(t, ok)

		assert.Equal(t, EventTypeMessage, parsed.Events[2].Type)
		_, _, ok = parsed.Events[2].TextFrom()
		assert.False(t, ok)

		assert.Equal(t, "U456", parsed.Events[3].UserID)
		_, _, ok = parsed.Events[3].TextFrom()
		assert.False(t, ok, "blank text is not a message")
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := client.ParseRequest(webhookRequest(body, sign("other-secret", body)))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("missing signature", func(t *testing.T) {
		_, err := client.ParseRequest(webhookRequest(body, ""))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := sign("channel-secret", body)
		_, err := client.ParseRequest(webhookRequest(append(append([]byte(nil), body...), ' '), sig))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("signed garbage", func(t *testing.T) {
		garbage := []byte("not json")
		_, err := client.ParseRequest(webhookRequest(garbage, sign("channel-secret", garbage)))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidSignature)
	})
}

type capturedRequest struct {
	path    string
	auth    string
	retry   string
	payload map[string]any
}

func newLineServer(t *testing.T, status int, respBody string) (*httptest.Server, func() []capturedRequest) {
	var mu sync.Mutex
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		captured = append(captured, capturedRequest{
			path:    r.URL.Path,
			auth:    r.Header.Get("Authorization"),
			retry:   r.Header.Get("X-Line-Retry-Key"),
			payload: payload,
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(server.Close)
	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func TestReplyAndPush(t *testing.T) {
	server, captured := newLineServer(t, http.StatusOK, "{}")
	client := NewClient("secret", "access-token", server.URL+"/")
	ctx := context.Background()

	bubble := genui.NewBubble()
	bubble.Body = genui.VerticalBox(genui.Text("total"))
	flex := &genui.FlexMessage{AltText: "chart", Contents: bubble}
	require.NoError(t, client.Reply(ctx, "rt-1", TextMessage("hello"), FlexMessage(flex)))
	require.NoError(t, client.Push(ctx, "U123", TextMessage("from admin")))

	calls := captured()
	require.Len(t, calls, 2)
	reply := calls[0]
	assert.Equal(t, "/v2/bot/message/reply", reply.path)
	assert.Equal(t, "Bearer access-token", reply.auth)
	assert.Equal(t, "rt-1", reply.payload["replyToken"])
	messages := reply.payload["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "text", messages[0].(map[string]any)["type"])
	assert.Equal(t, "hello", messages[0].(map[string]any)["text"])
	assert.Equal(t, "flex", messages[1].(map[string]any)["type"])
	assert.Equal(t, "chart", messages[1].(map[string]any)["altText"])

	push := calls[1]
	assert.Equal(t, "/v2/bot/message/push", push.path)
	assert.Equal(t, "U123", push.payload["to"])
	assert.NotEmpty(t, push.retry)
}

func TestSendErrors(t *testing.T) {
	server, _ := newLineServer(t, http.StatusBadRequest, `{"message":"Invalid reply token"}`)
	client := NewClient("secret", "token", server.URL)
	ctx := context.Background()

	assert.Error(t, client.Reply(ctx, "expired", TextMessage("hi")))
	assert.Error(t, client.Push(ctx, "U1", TextMessage("hi")))

	assert.Error(t, client.Reply(ctx, "", TextMessage("hi")))
	assert.Error(t, client.Push(ctx, "", TextMessage("hi")))
	assert.Error(t, client.Push(ctx, "U1"))
}

func TestMessageLimits(t *testing.T) {
	long := strings.Repeat("ก", MaxTextRunes+10)
	text, ok := TextMessage(long).(*messaging_api.TextMessage)
	require.True(t, ok)
	assert.Len(t, []rune(text.Text), MaxTextRunes)

	msgs := make([]SendingMessage, 7)
	assert.Len(t, limit(msgs), MaxMessagesPerRequest)
}
