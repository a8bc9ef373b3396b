package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/harvestline/plugin/ai/session"
	"github.com/hrygo/harvestline/plugin/line"
	"github.com/hrygo/harvestline/server/service/chat"
)

type webhookEvent map[string]any

func userSource(userID string) map[string]any {
	return map[string]any{"type": "user", "userId": userID}
}

func messageEvent(userID, replyToken string, message map[string]any) webhookEvent {
	return webhookEvent{
		"type":            "message",
		"mode":            "active",
		"timestamp":       1700000000000,
		"webhookEventId":  "ev-" + replyToken,
		"deliveryContext": map[string]any{"isRedelivery": false},
		"replyToken":      replyToken,
		"source":          userSource(userID),
		"message":         message,
	}
}

func textEvent(userID, replyToken, text string) webhookEvent {
	return messageEvent(userID, replyToken, map[string]any{
		"id": "m-" + replyToken, "type": "text", "text": text, "quoteToken": "q-" + replyToken,
	})
}

func (env *testEnv) postWebhook(t *testing.T, signature string, events ...webhookEvent) *httptest.ResponseRecorder {
	t.Helper()
	if events == nil {
		events = []webhookEvent{}
	}
	body, err := json.Marshal(map[string]any{"destination": "U-bot", "events": events})
	require.NoError(t, err)
	if signature == "" {
		signature = sign(body)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(line.SignatureHeader, signature)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postWebhook(t, "bm90LWEtc2lnbmF0dXJl", textEvent("U1", "r1", "hello"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	env.service.Wait()
	assert.Empty(t, env.lineAPI.Calls())
	_, ok := env.convs.Find(t.Context(), "U1")
	assert.False(t, ok)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	body := []byte("{not json")
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(line.SignatureHeader, sign(body))
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookAcknowledgesEmptyDelivery(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postWebhook(t, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	env.service.Wait()
	assert.Empty(t, env.lineAPI.Calls())
}

func TestWebhookRepliesWithReplyToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postWebhook(t, "", textEvent("U1", "r1", "hello"))
	require.Equal(t, http.StatusOK, rec.Code)
	env.service.Wait()

	calls := env.lineAPI.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/v2/bot/message/reply", calls[0].Path)
	assert.Equal(t, "r1", calls[0].ReplyToken)
	require.Len(t, calls[0].Messages, 1)
	assert.Equal(t, "Water every two days.", calls[0].Messages[0].Text)

	conv, ok := env.convs.Find(t.Context(), "U1")
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, session.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, session.ModeAI, conv.Mode)
}

func TestWebhookSendsFlexAfterText(t *testing.T) {
	env := newTestEnv(t)

	env.postWebhook(t, "", textEvent("U1", "r1", "บันทึก 80 ลูก 200 กิโล วันที่ 2026-03-01"))
	env.service.Wait()
	env.postWebhook(t, "", textEvent("U1", "r2", "สรุปยอด 2026"))
	env.service.Wait()

	calls := env.lineAPI.Calls()
	require.Len(t, calls, 2)
	last := calls[1]
	require.Len(t, last.Messages, 2)
	assert.Equal(t, "text", last.Messages[0].Type)
	assert.Equal(t, "flex", last.Messages[1].Type)
	assert.Equal(t, "สรุปยอดทุเรียนปี 2026", last.Messages[1].AltText)
}

func TestWebhookFallsBackToPush(t *testing.T) {
	env := newTestEnv(t)
	env.lineAPI.failReply.Store(true)

	env.postWebhook(t, "", textEvent("U1", "expired", "hello"))
	env.service.Wait()

	calls := env.lineAPI.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/v2/bot/message/reply", calls[0].Path)
	assert.Equal(t, "/v2/bot/message/push", calls[1].Path)
	assert.Equal(t, "U1", calls[1].To)
	assert.Equal(t, "Water every two days.", calls[1].Messages[0].Text)
}

func TestWebhookManualModeSendsNothing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.convs.SetMode(t.Context(), "U1", session.ModeManual)
	require.NoError(t, err)

	env.postWebhook(t, "", textEvent("U1", "r1", "is anyone there?"))
	env.service.Wait()

	assert.Empty(t, env.lineAPI.Calls())
	conv, _ := env.convs.Find(t.Context(), "U1")
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "is anyone there?", conv.Messages[0].Content)
	assert.Equal(t, session.ModeManual, conv.Mode)
}

func TestWebhookSettlesEveryEvent(t *testing.T) {
	env := newTestEnv(t)

	sticker := messageEvent("U3", "r-sticker", map[string]any{
		"id": "s1", "type": "sticker", "packageId": "1", "stickerId": "1",
		"stickerResourceType": "STATIC", "quoteToken": "q-s1",
	})
	follow := webhookEvent{
		"type":            "follow",
		"mode":            "active",
		"timestamp":       1700000000000,
		"webhookEventId":  "ev-follow",
		"deliveryContext": map[string]any{"isRedelivery": false},
		"replyToken":      "r-follow",
		"source":          userSource("U4"),
	}

	rec := env.postWebhook(t, "",
		textEvent("U1", "r1", "hello"),
		textEvent("U2", "r2", "   "),
		sticker,
		follow,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	env.service.Wait()

	replies := map[string]string{}
	for _, call := range env.lineAPI.Calls() {
		replies[call.ReplyToken] = call.Messages[0].Text
	}
	assert.Equal(t, map[string]string{"r1": "Water every two days."}, replies)

	_, ok := env.convs.Find(t.Context(), "U2")
	assert.False(t, ok, "blank text is ignored")

	snap := env.service.Metrics.Snapshot()
	assert.EqualValues(t, 1, snap.WebhookBatches)
	assert.EqualValues(t, 0, snap.WebhookBatchFailures)
	assert.NotNil(t, snap.Channels[string(chat.ChannelLine)])
}

func TestWebhookCountsUndeliverableBatch(t *testing.T) {
	env := newTestEnv(t)
	env.lineAPI.failReply.Store(true)
	env.lineAPI.failPush.Store(true)

	env.postWebhook(t, "", textEvent("U1", "r1", "hello"), textEvent("U2", "r2", "hi"))
	env.service.Wait()

	assert.Len(t, env.lineAPI.Calls(), 4)
	snap := env.service.Metrics.Snapshot()
	assert.EqualValues(t, 1, snap.WebhookBatches)
	assert.EqualValues(t, 1, snap.WebhookBatchFailures)
}
