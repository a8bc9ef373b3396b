package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultLLMBaseURL       = "https://api.opentyphoon.ai/v1"
	DefaultLineAPIBaseURL   = "https://api.line.me"
	DefaultVectorCollection = "harvestline_docs"
	DefaultRetrievalTopK    = 3
	DefaultHistoryWindow    = 6
	DefaultMessageCap       = 50
	DefaultLLMTimeout       = 30 * time.Second
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where harvestline stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// Completion backend (OpenAI-compatible)
	LLMBaseURL string        // HARVESTLINE_LLM_BASE_URL (default: https://api.opentyphoon.ai/v1)
	LLMAPIKey  string        // HARVESTLINE_LLM_API_KEY (legacy: TYPHOON_API_KEY)
	LLMModel   string        // HARVESTLINE_LLM_MODEL (legacy: TYPHOON_MODEL), preferred candidate
	LLMTimeout time.Duration // HARVESTLINE_LLM_TIMEOUT (default: 30s), per attempt

	// Embedding backend
	EmbeddingProvider   string // HARVESTLINE_EMBEDDING_PROVIDER: "openai" or "local" (default: local)
	EmbeddingBaseURL    string // HARVESTLINE_EMBEDDING_BASE_URL (default: LLMBaseURL)
	EmbeddingAPIKey     string // HARVESTLINE_EMBEDDING_API_KEY (default: LLMAPIKey)
	EmbeddingModel      string // HARVESTLINE_EMBEDDING_MODEL
	EmbeddingDimensions int    // HARVESTLINE_EMBEDDING_DIMENSIONS (default: 256 for local)

	// Retrieval
	VectorCollection string // HARVESTLINE_VECTOR_COLLECTION (default: harvestline_docs)
	RetrievalTopK    int    // HARVESTLINE_RETRIEVAL_TOP_K (default: 3)
	HistoryWindow    int    // HARVESTLINE_HISTORY_WINDOW (default: 6)
	MessageCap       int    // HARVESTLINE_MESSAGE_CAP (default: 50)

	// LINE messaging platform
	LineChannelSecret      string // HARVESTLINE_LINE_CHANNEL_SECRET (legacy: LINE_CHANNEL_SECRET)
	LineChannelAccessToken string // HARVESTLINE_LINE_CHANNEL_ACCESS_TOKEN (legacy: LINE_CHANNEL_ACCESS_TOKEN)
	LineAPIBaseURL         string // HARVESTLINE_LINE_API_BASE_URL (default: https://api.line.me)

	// Attachment Processing Configuration
	OCREnabled         bool   // HARVESTLINE_OCR_ENABLED (default: false)
	TextExtractEnabled bool   // HARVESTLINE_TEXTEXTRACT_ENABLED (default: false)
	TesseractPath      string // HARVESTLINE_OCR_TESSERACT_PATH (default: tesseract)
	TessdataPath       string // HARVESTLINE_OCR_TESSDATA_PATH (default: "")
	OCRLanguages       string // HARVESTLINE_OCR_LANGUAGES (default: eng+tha)
	TikaServerURL      string // HARVESTLINE_TEXTEXTRACT_TIKA_URL (default: http://localhost:9998)

	// AutoEmbed runs the background vectorizer over converted documents.
	AutoEmbed bool // HARVESTLINE_AUTO_EMBED
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMEnabled reports whether a completion backend is configured.
func (p *Profile) IsLLMEnabled() bool {
	return p.LLMAPIKey != ""
}

// IsLineEnabled reports whether the LINE channel is configured.
func (p *Profile) IsLineEnabled() bool {
	return p.LineChannelSecret != "" && p.LineChannelAccessToken != ""
}

// FromEnv loads configuration from environment variables.
// HARVESTLINE_* names win over the legacy names of the original deployment.
func (p *Profile) FromEnv() {
	getEnvWithFallback := func(newKey, legacyKey string) string {
		if val := os.Getenv(newKey); val != "" {
			return val
		}
		if legacyKey == "" {
			return ""
		}
		return os.Getenv(legacyKey)
	}

	getEnvWithDefault := func(newKey, legacyKey, defaultValue string) string {
		if val := getEnvWithFallback(newKey, legacyKey); val != "" {
			return val
		}
		return defaultValue
	}

	getBoolEnv := func(key string) bool {
		return os.Getenv(key) == "true"
	}

	getIntEnv := func(key string, defaultValue int) int {
		if val := os.Getenv(key); val != "" {
			if n, err := strconv.Atoi(val); err == nil {
				return n
			}
			slog.Warn("ignoring non-integer env value", slog.String("key", key), slog.String("value", val))
		}
		return defaultValue
	}

	p.LLMBaseURL = getEnvWithDefault("HARVESTLINE_LLM_BASE_URL", "", DefaultLLMBaseURL)
	p.LLMAPIKey = getEnvWithFallback("HARVESTLINE_LLM_API_KEY", "TYPHOON_API_KEY")
	p.LLMModel = getEnvWithFallback("HARVESTLINE_LLM_MODEL", "TYPHOON_MODEL")
	p.LLMTimeout = DefaultLLMTimeout
	if val := os.Getenv("HARVESTLINE_LLM_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			p.LLMTimeout = d
		} else {
			slog.Warn("ignoring invalid LLM timeout", slog.String("value", val))
		}
	}

	p.EmbeddingProvider = getEnvWithDefault("HARVESTLINE_EMBEDDING_PROVIDER", "", "local")
	p.EmbeddingBaseURL = getEnvWithDefault("HARVESTLINE_EMBEDDING_BASE_URL", "", p.LLMBaseURL)
	p.EmbeddingAPIKey = getEnvWithDefault("HARVESTLINE_EMBEDDING_API_KEY", "", p.LLMAPIKey)
	p.EmbeddingModel = getEnvWithDefault("HARVESTLINE_EMBEDDING_MODEL", "", "text-embedding-3-small")
	p.EmbeddingDimensions = getIntEnv("HARVESTLINE_EMBEDDING_DIMENSIONS", 0)

	p.VectorCollection = getEnvWithDefault("HARVESTLINE_VECTOR_COLLECTION", "", DefaultVectorCollection)
	p.RetrievalTopK = getIntEnv("HARVESTLINE_RETRIEVAL_TOP_K", DefaultRetrievalTopK)
	p.HistoryWindow = getIntEnv("HARVESTLINE_HISTORY_WINDOW", DefaultHistoryWindow)
	p.MessageCap = getIntEnv("HARVESTLINE_MESSAGE_CAP", DefaultMessageCap)

	p.LineChannelSecret = getEnvWithFallback("HARVESTLINE_LINE_CHANNEL_SECRET", "LINE_CHANNEL_SECRET")
	p.LineChannelAccessToken = getEnvWithFallback("HARVESTLINE_LINE_CHANNEL_ACCESS_TOKEN", "LINE_CHANNEL_ACCESS_TOKEN")
	p.LineAPIBaseURL = getEnvWithDefault("HARVESTLINE_LINE_API_BASE_URL", "", DefaultLineAPIBaseURL)

	p.OCREnabled = getBoolEnv("HARVESTLINE_OCR_ENABLED")
	p.TextExtractEnabled = getBoolEnv("HARVESTLINE_TEXTEXTRACT_ENABLED")
	p.TesseractPath = getEnvWithDefault("HARVESTLINE_OCR_TESSERACT_PATH", "", "tesseract")
	p.TessdataPath = os.Getenv("HARVESTLINE_OCR_TESSDATA_PATH")
	p.OCRLanguages = getEnvWithDefault("HARVESTLINE_OCR_LANGUAGES", "", "eng+tha")
	p.TikaServerURL = getEnvWithDefault("HARVESTLINE_TEXTEXTRACT_TIKA_URL", "", "http://localhost:9998")

	p.AutoEmbed = getBoolEnv("HARVESTLINE_AUTO_EMBED")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Data == "" {
		if p.Mode == "prod" && runtime.GOOS != "windows" {
			p.Data = "/var/opt/harvestline"
		} else {
			p.Data = "."
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	switch p.Driver {
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("harvestline_%s.db", p.Mode))
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("postgres driver requires a DSN")
		}
	default:
		return errors.Errorf("unsupported driver: %s", p.Driver)
	}

	if p.LLMBaseURL == "" {
		p.LLMBaseURL = DefaultLLMBaseURL
	}
	if p.LLMTimeout <= 0 {
		p.LLMTimeout = DefaultLLMTimeout
	}
	if p.LineAPIBaseURL == "" {
		p.LineAPIBaseURL = DefaultLineAPIBaseURL
	}
	if p.VectorCollection == "" {
		p.VectorCollection = DefaultVectorCollection
	}
	if p.RetrievalTopK <= 0 {
		p.RetrievalTopK = DefaultRetrievalTopK
	}
	// Both are upper bounds on what a conversation keeps and sends.
	if p.HistoryWindow < 0 || p.HistoryWindow > DefaultHistoryWindow {
		p.HistoryWindow = DefaultHistoryWindow
	}
	if p.MessageCap <= 0 || p.MessageCap > DefaultMessageCap {
		p.MessageCap = DefaultMessageCap
	}
	if p.EmbeddingProvider == "" {
		p.EmbeddingProvider = "local"
	}
	if p.EmbeddingProvider != "local" && p.EmbeddingProvider != "openai" {
		return errors.Errorf("unsupported embedding provider: %s", p.EmbeddingProvider)
	}
	return nil
}
