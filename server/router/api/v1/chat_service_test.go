package v1

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/harvestline/plugin/ai/router"
	apierrors "github.com/hrygo/harvestline/server/internal/errors"
	"github.com/hrygo/harvestline/server/service/chat"
)

func TestHandleChat(t *testing.T) {
	env := newTestEnv(t)

	t.Run("empty message", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/chat", ChatRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[apierrors.Response](t, rec)
		assert.Equal(t, apierrors.ErrCodeInvalidArgument, resp.Code)
	})

	t.Run("answer without storing", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/chat", ChatRequest{
			Message: "how often should I water?",
			History: []ChatTurn{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ChatResponse](t, rec)
		assert.Equal(t, "assistant", resp.Role)
		assert.Equal(t, "Water every two days.", resp.Content)
		assert.NotNil(t, resp.ContextUsed)
		assert.Nil(t, resp.Flex)
		assert.Empty(t, env.convs.List(t.Context()))
	})
}

func TestHandleChatHarvestActions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/chat", ChatRequest{Message: "บันทึก 120 ลูก 350 กิโล วันที่ 2026-02-03"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ChatResponse](t, rec)
	assert.Contains(t, resp.Content, "บันทึกข้อมูลทุเรียน 120 ลูก")

	rec = env.do(t, http.MethodPost, "/api/chat", ChatRequest{Message: "สรุปยอด 2026"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[ChatResponse](t, rec)
	assert.Equal(t, "สร้างกราฟสรุปยอดเรียบร้อยแล้ว", resp.Content)
	require.NotNil(t, resp.Flex)
	assert.Equal(t, "สรุปยอดทุเรียนปี 2026", resp.Flex.AltText)

	snap := env.service.Metrics.Snapshot().Channels[string(chat.ChannelWeb)]
	require.NotNil(t, snap)
	assert.EqualValues(t, 1, snap.Intents[string(router.IntentRecordHarvest)])
	assert.EqualValues(t, 1, snap.Intents[string(router.IntentHarvestStats)])
}
