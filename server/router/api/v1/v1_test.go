package v1

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/harvestline/plugin/ai"
	"github.com/hrygo/harvestline/plugin/ai/cache"
	"github.com/hrygo/harvestline/plugin/ai/harvest"
	"github.com/hrygo/harvestline/plugin/ai/rag"
	"github.com/hrygo/harvestline/plugin/ai/router"
	"github.com/hrygo/harvestline/plugin/ai/session"
	"github.com/hrygo/harvestline/plugin/ai/vector"
	"github.com/hrygo/harvestline/plugin/line"
	"github.com/hrygo/harvestline/plugin/textextract"
	"github.com/hrygo/harvestline/server/internal/observability"
	"github.com/hrygo/harvestline/server/service/chat"
	"github.com/hrygo/harvestline/server/service/document"
	"github.com/hrygo/harvestline/store"
	teststore "github.com/hrygo/harvestline/store/test"
)

const testChannelSecret = "test-channel-secret"

type stubCompleter struct {
	text string
	err  error
}

func (c *stubCompleter) Complete(context.Context, []ai.Message) (*ai.CompletionResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &ai.CompletionResult{Text: c.text, Model: "typhoon-v2.1-12b-instruct"}, nil
}

type sentMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	AltText string `json:"altText"`
}

type lineCall struct {
	Path       string
	ReplyToken string        `json:"replyToken"`
	To         string        `json:"to"`
	Messages   []sentMessage `json:"messages"`
}

// lineAPI records Messaging API calls.
type lineAPI struct {
	mu        sync.Mutex
	calls     []lineCall
	failReply atomic.Bool
	failPush  atomic.Bool
}

func (a *lineAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var call lineCall
	_ = json.NewDecoder(r.Body).Decode(&call)
	call.Path = r.URL.Path

	a.mu.Lock()
	a.calls = append(a.calls, call)
	fail := (call.Path == "/v2/bot/message/reply" && a.failReply.Load()) || (call.Path == "/v2/bot/message/push" && a.failPush.Load())
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid reply token"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}

func (a *lineAPI) Calls() []lineCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]lineCall(nil), a.calls...)
}

type testEnv struct {
	echo      *echo.Echo
	service   *APIV1Service
	store     *store.Store
	convs     *session.ConversationStore
	completer *stubCompleter
	lineAPI   *lineAPI
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := teststore.NewTestingStore(ctx, t)
	convs := session.NewConversationStore(st, 0)
	queryEmbedder := cache.NewEmbedder(ai.NewLocalEmbeddingService(64), cache.NewLRUCache(16, time.Minute))
	retriever := rag.NewRetriever(vector.NewStoreIndex(st), queryEmbedder, "harvestline_docs")

	api := &lineAPI{}
	apiServer := httptest.NewServer(api)
	t.Cleanup(apiServer.Close)
	lineClient := line.NewClient(testChannelSecret, "test-token", apiServer.URL)

	completer := &stubCompleter{text: "Water every two days."}
	metrics := observability.NewMetrics()
	chatService := chat.NewService(chat.Options{
		Conversations: convs,
		Router:        router.NewService(harvest.NewService(st)),
		Retriever:     retriever,
		Completer:     completer,
		Sender:        lineClient,
		Metrics:       metrics,
	})
	documents := document.NewService(st, textextract.NewExtractor(nil, nil), retriever, t.TempDir(), 1)

	service := NewAPIV1Service(nil, chatService, convs, documents)
	service.Line = lineClient
	service.Metrics = metrics
	service.QueryCache = queryEmbedder
	convs.Subscribe(service.Hub.Publish)
	go service.Hub.Run(ctx)

	e := echo.New()
	service.RegisterRoutes(e)
	return &testEnv{
		echo:      e,
		service:   service,
		store:     st,
		convs:     convs,
		completer: completer,
		lineAPI:   api,
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testChannelSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
