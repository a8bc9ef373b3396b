// Package ocr extracts text from images with Tesseract.
package ocr

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// SupportedMimeTypes are the image types accepted for OCR.
var SupportedMimeTypes = []string{
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/gif",
	"image/bmp",
	"image/tiff",
	"image/webp",
}

// minOCRWidth is the width below which images are upscaled before recognition.
const minOCRWidth = 1000

// Config holds the OCR configuration
type Config struct {
	// TesseractPath is the path to the tesseract executable
	TesseractPath string
	// DataPath is the path to the tessdata directory (optional)
	DataPath string
	// Languages are the languages to use for OCR (e.g., "eng+tha")
	Languages string
}

// DefaultConfig returns the default OCR configuration
func DefaultConfig() *Config {
	return &Config{
		TesseractPath: "tesseract",
		Languages:     "eng+tha",
	}
}

// Client runs tesseract on normalized images.
type Client struct {
	config *Config
}

// NewClient creates a new OCR client
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TesseractPath == "" {
		config.TesseractPath = "tesseract"
	}
	return &Client{config: config}
}

// ExtractText recognizes the text of an image.
func (c *Client) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if !c.IsSupported(mimeType) {
		return "", errors.Errorf("unsupported MIME type: %s", mimeType)
	}

	tmpFile, err := os.CreateTemp("", "ocr_*.png")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	_, err = tmpFile.Write(normalize(image))
	tmpFile.Close()
	if err != nil {
		return "", errors.Wrap(err, "failed to write temp file")
	}

	args := []string{tmpPath, "stdout"}
	if c.config.Languages != "" {
		args = append(args, "-l", c.config.Languages)
	}
	if c.config.DataPath != "" {
		args = append(args, "--tessdata-dir", c.config.DataPath)
	}

	cmd := exec.CommandContext(ctx, c.config.TesseractPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Warn("tesseract command failed", slog.String("error", err.Error()), slog.String("stderr", stderr.String()))
		return "", errors.Wrap(err, "tesseract command failed")
	}
	return strings.TrimSpace(stdout.String()), nil
}

// normalize re-encodes the image as an upright grayscale PNG, upscaling
// small images. Formats imaging cannot decode are passed through as is.
func normalize(data []byte) []byte {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		slog.Debug("passing image to tesseract unmodified", slog.String("error", err.Error()))
		return data
	}
	if w := img.Bounds().Dx(); w > 0 && w < minOCRWidth {
		img = imaging.Resize(img, minOCRWidth, 0, imaging.Lanczos)
	}
	gray := imaging.Grayscale(img)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return data
	}
	return buf.Bytes()
}

// IsAvailable checks if Tesseract is available
func (c *Client) IsAvailable(ctx context.Context) bool {
	return exec.CommandContext(ctx, c.config.TesseractPath, "--version").Run() == nil
}

// IsSupported checks if a MIME type is supported
func (c *Client) IsSupported(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	for _, supported := range SupportedMimeTypes {
		if mimeType == supported {
			return true
		}
	}
	return false
}
