package v1

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/harvestline/internal/profile"
	"github.com/hrygo/harvestline/plugin/ai/session"
	"github.com/hrygo/harvestline/plugin/line"
	"github.com/hrygo/harvestline/server/internal/observability"
	ratelimit "github.com/hrygo/harvestline/server/middleware"
	"github.com/hrygo/harvestline/server/service/chat"
	"github.com/hrygo/harvestline/server/service/document"
)

// LineClient is the Messaging API surface the webhook needs.
type LineClient interface {
	ParseRequest(r *http.Request) (*line.WebhookRequest, error)
	Reply(ctx context.Context, replyToken string, messages ...line.SendingMessage) error
	Push(ctx context.Context, to string, messages ...line.SendingMessage) error
}

// QueryCacheStats reports query embedding cache hits and misses.
type QueryCacheStats interface {
	Stats() (hits, misses int64)
}

type APIV1Service struct {
	Profile       *profile.Profile
	Chat          *chat.Service
	Conversations session.ConversationService
	Documents     *document.Service
	// Line is nil when the LINE channel is not configured.
	Line    LineClient
	Metrics *observability.Metrics
	// QueryCache is reported by the metrics endpoint when set.
	QueryCache QueryCacheStats
	Hub        *Hub
	// EmbedTrigger asks the background vectorizer for an early pass. Optional.
	EmbedTrigger func()

	chatLimiter *ratelimit.RateLimiter
	batches     sync.WaitGroup
}

func NewAPIV1Service(profile *profile.Profile, chatService *chat.Service, conversations session.ConversationService, documents *document.Service) *APIV1Service {
	return &APIV1Service{
		Profile:       profile,
		Chat:          chatService,
		Conversations: conversations,
		Documents:     documents,
		Metrics:       observability.GlobalMetrics(),
		Hub:           NewHub(conversations),
		chatLimiter:   ratelimit.NewRateLimiter(ratelimit.DefaultRate, ratelimit.DefaultBurst),
	}
}

// RegisterRoutes mounts the chat, webhook, dashboard and document routes.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	// Signature verification needs the raw body, so the webhook sits outside CORS.
	echoServer.POST("/webhook", s.Webhook)

	api := echoServer.Group("/api", middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(_ string) (bool, error) {
			return true, nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))

	api.POST("/chat", s.HandleChat, s.chatLimiter.PerIP())

	admin := api.Group("/admin")
	admin.GET("/chats", s.ListChats)
	admin.GET("/chats/:userId", s.GetChat)
	admin.POST("/chats/:userId/mode", s.SetChatMode)
	admin.POST("/chats/:userId/reply", s.ReplyToChat)
	admin.GET("/metrics", s.GetMetrics)
	admin.GET("/ws", s.Hub.Serve)

	api.GET("/files", s.ListFiles)
	api.POST("/upload", s.UploadFiles)
	api.DELETE("/files/:id", s.DeleteFile)
	api.POST("/convert/:id", s.ConvertFile)
	api.GET("/files/:id/content", s.GetFileContent)
	api.PUT("/files/:id/content", s.PutFileContent)
	api.POST("/embed", s.TriggerEmbedding)
	api.POST("/embed/:id", s.EmbedFile)
	api.GET("/collections", s.ListCollections)
	api.DELETE("/collections/:name", s.DeleteCollection)
}

// Wait blocks until every accepted webhook batch has settled.
func (s *APIV1Service) Wait() {
	s.batches.Wait()
}
