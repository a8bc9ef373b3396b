package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/internal/profile"
	"github.com/hrygo/harvestline/plugin/ai"
	"github.com/hrygo/harvestline/plugin/ai/cache"
	"github.com/hrygo/harvestline/plugin/ai/harvest"
	"github.com/hrygo/harvestline/plugin/ai/rag"
	"github.com/hrygo/harvestline/plugin/ai/router"
	"github.com/hrygo/harvestline/plugin/ai/session"
	"github.com/hrygo/harvestline/plugin/ai/vector"
	"github.com/hrygo/harvestline/plugin/line"
	"github.com/hrygo/harvestline/plugin/ocr"
	"github.com/hrygo/harvestline/plugin/textextract"
	"github.com/hrygo/harvestline/server/internal/observability"
	apiv1 "github.com/hrygo/harvestline/server/router/api/v1"
	"github.com/hrygo/harvestline/server/runner/embedding"
	"github.com/hrygo/harvestline/server/service/chat"
	"github.com/hrygo/harvestline/server/service/document"
	"github.com/hrygo/harvestline/store"
)

const (
	uploadBodyLimit    = "50M"
	maxConcurrentConvs = 2
	queryCacheSize     = 512
	queryCacheTTL      = 10 * time.Minute
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer        *echo.Echo
	apiV1Service      *apiv1.APIV1Service
	hub               *apiv1.Hub
	embeddingRunner   *embedding.Runner
	runnerCancelFuncs []context.CancelFunc
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Store:   store,
		Profile: profile,
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.RequestID())
	echoServer.Use(middleware.BodyLimit(uploadBodyLimit))
	s.echoServer = echoServer

	// Register healthz endpoint.
	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	conversations := session.NewConversationStore(store, profile.MessageCap)
	if err := conversations.Load(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to load conversations")
	}

	aiConfig := ai.NewConfigFromProfile(profile)
	embedder, err := ai.NewEmbeddingService(&aiConfig.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding service")
	}
	queryEmbedder := cache.NewEmbedder(embedder, cache.NewLRUCache(queryCacheSize, queryCacheTTL))
	retriever := rag.NewRetriever(vector.NewStoreIndex(store), queryEmbedder, profile.VectorCollection)

	var completer ai.CompletionService
	if err := aiConfig.Validate(); err == nil {
		gateway, err := ai.NewCompletionGateway(&aiConfig.LLM)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create completion gateway")
		}
		gateway.SetObserver(func(attempt ai.Attempt) {
			slog.Debug("completion attempt",
				slog.String("model", attempt.Model),
				slog.String("tier", string(attempt.Tier)),
				slog.String("class", string(attempt.Class)),
				slog.Duration("duration", attempt.Duration))
		})
		completer = gateway
	} else {
		slog.Warn("completion backend disabled, free-form questions get the degraded reply", slog.String("reason", err.Error()))
	}

	var lineClient *line.Client
	if profile.IsLineEnabled() {
		lineClient = line.NewClient(profile.LineChannelSecret, profile.LineChannelAccessToken, profile.LineAPIBaseURL)
	} else {
		slog.Warn("LINE channel disabled, webhook and operator replies are unavailable")
	}

	chatOptions := chat.Options{
		Conversations: conversations,
		Router:        router.NewService(harvest.NewService(store)),
		Retriever:     retriever,
		Completer:     completer,
		Metrics:       observability.GlobalMetrics(),
		TopK:          profile.RetrievalTopK,
		HistoryWindow: profile.HistoryWindow,
	}
	if lineClient != nil {
		chatOptions.Sender = lineClient
	}
	chatService := chat.NewService(chatOptions)

	documents := document.NewService(store, newExtractor(profile), retriever, profile.Data, maxConcurrentConvs)

	s.apiV1Service = apiv1.NewAPIV1Service(profile, chatService, conversations, documents)
	s.apiV1Service.QueryCache = queryEmbedder
	if lineClient != nil {
		s.apiV1Service.Line = lineClient
	}
	s.hub = s.apiV1Service.Hub
	conversations.Subscribe(s.hub.Publish)

	if profile.AutoEmbed {
		s.embeddingRunner = embedding.NewRunner(documents, 0)
		s.apiV1Service.EmbedTrigger = s.embeddingRunner.Trigger
	}

	s.apiV1Service.RegisterRoutes(echoServer)
	return s, nil
}

// newExtractor enables the Tika and OCR backends the profile turns on.
func newExtractor(profile *profile.Profile) *textextract.Extractor {
	var documents textextract.DocumentExtractor
	if profile.TextExtractEnabled {
		config := textextract.DefaultConfig()
		config.TikaServerURL = profile.TikaServerURL
		documents = textextract.NewTikaClient(config)
	}
	var images textextract.ImageExtractor
	if profile.OCREnabled {
		images = ocr.NewClient(&ocr.Config{
			TesseractPath: profile.TesseractPath,
			DataPath:      profile.TessdataPath,
			Languages:     profile.OCRLanguages,
		})
	}
	return textextract.NewExtractor(documents, images)
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	go func() {
		if err := s.echoServer.Server.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	s.StartBackgroundRunners(ctx)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")

	// Cancel all background runners
	for _, cancelFunc := range s.runnerCancelFuncs {
		if cancelFunc != nil {
			cancelFunc()
		}
	}

	// Shutdown echo server.
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	// Let accepted webhook batches finish before closing the database.
	done := make(chan struct{})
	go func() {
		s.apiV1Service.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("webhook batches still running at shutdown")
	}

	// Close database connection.
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}

	slog.Info("harvestline stopped properly")
}

func (s *Server) StartBackgroundRunners(ctx context.Context) {
	hubCtx, hubCancel := context.WithCancel(ctx)
	s.runnerCancelFuncs = append(s.runnerCancelFuncs, hubCancel)
	go s.hub.Run(hubCtx)

	if s.embeddingRunner != nil {
		runnerCtx, runnerCancel := context.WithCancel(ctx)
		s.runnerCancelFuncs = append(s.runnerCancelFuncs, runnerCancel)
		go s.embeddingRunner.Run(runnerCtx)
		slog.Info("embedding runner started")
	}
}

// GetEcho returns the echo server instance.
func (s *Server) GetEcho() *echo.Echo {
	return s.echoServer
}
