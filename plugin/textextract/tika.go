// Package textextract turns uploaded documents into plain text.
package textextract

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TikaMimeTypes are the document types sent to Apache Tika.
var TikaMimeTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/rtf",
}

// Config holds the Tika server configuration
type Config struct {
	// TikaServerURL is the URL of the Tika server (e.g., http://localhost:9998)
	TikaServerURL string
	// Timeout is the HTTP timeout for Tika server requests
	Timeout time.Duration
}

// DefaultConfig returns the default text extraction configuration
func DefaultConfig() *Config {
	return &Config{
		TikaServerURL: "http://localhost:9998",
		Timeout:       30 * time.Second,
	}
}

// TikaClient extracts text through a Tika server.
type TikaClient struct {
	config     *Config
	httpClient *http.Client
}

func NewTikaClient(config *Config) *TikaClient {
	if config == nil {
		config = DefaultConfig()
	}
	config.TikaServerURL = strings.TrimRight(config.TikaServerURL, "/")
	return &TikaClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// ExtractText sends the document to PUT /tika and returns the plain text.
func (c *TikaClient) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.config.TikaServerURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "tika server request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.Errorf("tika server returned status %d: %s", resp.StatusCode, string(body))
	}
	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response")
	}
	return strings.TrimSpace(string(text)), nil
}

// IsAvailable checks if the Tika server answers.
func (c *TikaClient) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.TikaServerURL+"/tika", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
