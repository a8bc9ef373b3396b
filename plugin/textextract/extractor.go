package textextract

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/pkg/errors"
)

const docxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// ErrBackendDisabled is returned when the backend a document needs is turned off.
var ErrBackendDisabled = errors.New("extraction backend is disabled")

// DocumentExtractor is the Tika side of the dispatcher.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}

// ImageExtractor is the OCR side of the dispatcher.
type ImageExtractor interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Extractor picks a backend by MIME type and file name. A nil backend is disabled.
type Extractor struct {
	documents DocumentExtractor
	images    ImageExtractor
}

func NewExtractor(documents DocumentExtractor, images ImageExtractor) *Extractor {
	return &Extractor{documents: documents, images: images}
}

// Extract returns the text of a file. PDF and Word go to Tika, images to
// OCR, HTML through readability; anything else is read as UTF-8 text.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType, name string) (string, error) {
	mimeType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case isTikaDocument(mimeType, ext):
		if e.documents == nil {
			return "", errors.Wrapf(ErrBackendDisabled, "document text extraction for %s", name)
		}
		return e.documents.ExtractText(ctx, data, tikaContentType(mimeType, ext))
	case strings.HasPrefix(mimeType, "image/"):
		if e.images == nil {
			return "", errors.Wrapf(ErrBackendDisabled, "OCR for %s", name)
		}
		return e.images.ExtractText(ctx, data, mimeType)
	case mimeType == "text/html" || ext == ".html" || ext == ".htm":
		return extractHTML(data)
	default:
		return decodeText(data), nil
	}
}

func isTikaDocument(mimeType, ext string) bool {
	for _, t := range TikaMimeTypes {
		if mimeType == t {
			return true
		}
	}
	return ext == ".pdf" || ext == ".docx" || ext == ".doc"
}

func tikaContentType(mimeType, ext string) string {
	if mimeType != "" && mimeType != "application/octet-stream" {
		return mimeType
	}
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	default:
		return docxMimeType
	}
}

func extractHTML(data []byte) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(data), nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse HTML")
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		text = strings.TrimSpace(article.Title)
	}
	return text, nil
}

// decodeText reads bytes as UTF-8, dropping a byte order mark and invalid sequences.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}
