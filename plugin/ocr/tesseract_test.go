package ocr

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "tesseract", config.TesseractPath)
	assert.Equal(t, "eng+tha", config.Languages)
}

func TestIsSupported(t *testing.T) {
	client := NewClient(nil)
	for _, mimeType := range []string{"image/png", "IMAGE/JPEG", "image/jpeg; charset=binary", "image/webp"} {
		assert.True(t, client.IsSupported(mimeType), mimeType)
	}
	for _, mimeType := range []string{"application/pdf", "text/plain", ""} {
		assert.False(t, client.IsSupported(mimeType), mimeType)
	}
}

func TestExtractText_UnsupportedMIMEType(t *testing.T) {
	_, err := NewClient(nil).ExtractText(context.Background(), []byte("x"), "application/pdf")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for x := 0; x < 200; x++ {
		src.Set(x, 50, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	out := normalize(buf.Bytes())
	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, minOCRWidth, decoded.Bounds().Dx())
	assert.Equal(t, minOCRWidth/2, decoded.Bounds().Dy())

	garbage := []byte("not an image")
	assert.Equal(t, garbage, normalize(garbage))
}

func TestExtractText_RunsTesseract(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "tesseract")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho '  ทุเรียน 120 ลูก  '\n"), 0o755))

	client := NewClient(&Config{TesseractPath: script, Languages: "eng+tha"})
	text, err := client.ExtractText(context.Background(), []byte("raw"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "ทุเรียน 120 ลูก", text)
	assert.True(t, client.IsAvailable(context.Background()))
}

func TestExtractText_MissingBinary(t *testing.T) {
	client := NewClient(&Config{TesseractPath: filepath.Join(t.TempDir(), "missing")})
	_, err := client.ExtractText(context.Background(), []byte("raw"), "image/png")
	assert.Error(t, err)
	assert.False(t, client.IsAvailable(context.Background()))
}
