// Package document runs the ingestion pipeline: upload, text extraction,
// manual editing and indexing of knowledge-base files.
package document

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/harvestline/plugin/ai/rag"
	"github.com/hrygo/harvestline/plugin/ai/timeout"
	apierrors "github.com/hrygo/harvestline/server/internal/errors"
	"github.com/hrygo/harvestline/store"
)

const (
	// EmptyExtractionPlaceholder is stored when a file yields no text.
	EmptyExtractionPlaceholder = "(No text content extracted from this file)"

	uploadDirName         = "uploads"
	unnamedFile           = "unnamed_file"
	defaultMaxConversions = 2
)

var unsafeNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// Store is the catalog persistence the pipeline needs.
type Store interface {
	CreateDocument(ctx context.Context, create *store.Document) (*store.Document, error)
	ListDocuments(ctx context.Context, find *store.FindDocument) ([]*store.Document, error)
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	UpdateDocument(ctx context.Context, update *store.UpdateDocument) (*store.Document, error)
	DeleteDocument(ctx context.Context, delete *store.DeleteDocument) error
}

// Extractor turns file bytes into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType, name string) (string, error)
}

// Indexer is the retrieval side of the pipeline.
type Indexer interface {
	Upsert(ctx context.Context, collection string, chunks []rag.Chunk) error
	DeleteByFileID(ctx context.Context, fileID string) (int64, error)
	ListCollections(ctx context.Context) ([]*store.Collection, error)
	DropCollection(ctx context.Context, name string) (int64, error)
}

// UploadFile is one file of a multipart upload.
type UploadFile struct {
	Name     string
	MimeType string
	Data     []byte
}

// Service owns the document catalog and the files under <data>/uploads.
type Service struct {
	store     Store
	extractor Extractor
	indexer   Indexer
	uploadDir string
	convert   *semaphore.Weighted
	// embedTimeout bounds the index calls of one Embed.
	embedTimeout time.Duration
	now          func() time.Time
}

// NewService creates the pipeline. maxConversions bounds concurrent extractions.
func NewService(st Store, extractor Extractor, indexer Indexer, dataDir string, maxConversions int) *Service {
	if maxConversions <= 0 {
		maxConversions = defaultMaxConversions
	}
	return &Service{
		store:     st,
		extractor: extractor,
		indexer:   indexer,
		uploadDir: filepath.Join(dataDir, uploadDirName),
		convert:   semaphore.NewWeighted(int64(maxConversions)),
		now:       time.Now,

		embedTimeout: timeout.EmbeddingTimeout,
	}
}

// SanitizeName replaces characters that are unsafe in file names.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return unnamedFile
	}
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// Upload stores every file and creates a raw catalog entry for each.
func (s *Service) Upload(ctx context.Context, files []UploadFile) ([]*store.Document, error) {
	if len(files) == 0 {
		return nil, apierrors.InvalidArgument("no files uploaded")
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, apierrors.Internal("failed to create upload directory", err)
	}

	documents := make([]*store.Document, 0, len(files))
	for _, file := range files {
		name := SanitizeName(file.Name)
		path := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s", shortuuid.New(), name))
		if err := os.WriteFile(path, file.Data, 0o644); err != nil {
			return documents, apierrors.Internal("failed to store uploaded file", err)
		}

		now := s.now().Unix()
		doc, err := s.store.CreateDocument(ctx, &store.Document{
			ID:           uuid.NewString(),
			OriginalName: name,
			StoragePath:  path,
			MimeType:     file.MimeType,
			Size:         int64(len(file.Data)),
			Status:       store.DocumentStatusRaw,
			UploadedTs:   now,
			UpdatedTs:    now,
		})
		if err != nil {
			_ = os.Remove(path)
			return documents, apierrors.PersistenceFailed("failed to create document", err)
		}
		slog.Info("document uploaded",
			slog.String("id", doc.ID),
			slog.String("name", name),
			slog.Int64("size", doc.Size))
		documents = append(documents, doc)
	}
	return documents, nil
}

// List returns the catalog, newest first.
func (s *Service) List(ctx context.Context) ([]*store.Document, error) {
	list, err := s.store.ListDocuments(ctx, &store.FindDocument{})
	if err != nil {
		return nil, apierrors.Internal("failed to list documents", err)
	}
	return list, nil
}

// ListByStatus returns the documents in one lifecycle stage.
func (s *Service) ListByStatus(ctx context.Context, status store.DocumentStatus) ([]*store.Document, error) {
	list, err := s.store.ListDocuments(ctx, &store.FindDocument{Status: &status})
	if err != nil {
		return nil, apierrors.Internal("failed to list documents", err)
	}
	return list, nil
}

// Convert extracts the text of a stored file and marks it converted.
func (s *Service) Convert(ctx context.Context, id string) (*store.Document, error) {
	doc, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.extractor == nil {
		return nil, apierrors.DependencyUnavailable("text extraction is not configured", nil)
	}

	if err := s.convert.Acquire(ctx, 1); err != nil {
		return nil, apierrors.Internal("conversion canceled", err)
	}
	defer s.convert.Release(1)

	data, err := os.ReadFile(doc.StoragePath)
	if err != nil {
		return nil, apierrors.Internal("failed to read stored file", err)
	}

	extractCtx, cancel := context.WithTimeout(ctx, timeout.ExtractionTimeout)
	defer cancel()
	text, err := s.extractor.Extract(extractCtx, data, doc.MimeType, doc.OriginalName)
	if err != nil {
		slog.Warn("text extraction failed",
			slog.String("id", doc.ID),
			slog.String("name", doc.OriginalName),
			slog.String("error", err.Error()))
		return nil, apierrors.DependencyUnavailable("failed to extract text", err)
	}

	text = strings.ReplaceAll(text, "\x00", "")
	if strings.TrimSpace(text) == "" {
		text = EmptyExtractionPlaceholder
	}

	updated, err := s.setText(ctx, doc.ID, text)
	if err != nil {
		return nil, err
	}
	slog.Info("document converted",
		slog.String("id", doc.ID),
		slog.Int("text_length", len(text)))
	return updated, nil
}

// GetContent returns the extracted text of a document.
func (s *Service) GetContent(ctx context.Context, id string) (string, error) {
	doc, err := s.get(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.ExtractedText, nil
}

// PutContent replaces the extracted text. The document needs embedding again.
func (s *Service) PutContent(ctx context.Context, id, content string) (*store.Document, error) {
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}
	return s.setText(ctx, id, content)
}

// Embed chunks the extracted text and replaces the document's chunks in
// the index. It returns the number of chunks written.
func (s *Service) Embed(ctx context.Context, id string) (int, error) {
	doc, err := s.get(ctx, id)
	if err != nil {
		return 0, err
	}
	if doc.ExtractedText == "" {
		return 0, apierrors.InvalidArgument("file not converted yet")
	}
	if s.indexer == nil {
		return 0, apierrors.DependencyUnavailable("vector index is not configured", nil)
	}

	blocks := rag.SplitBlocks(doc.ExtractedText)
	chunks := make([]rag.Chunk, 0, len(blocks))
	for i, block := range blocks {
		chunks = append(chunks, rag.Chunk{
			ID:      fmt.Sprintf("%s_chunk_%d", doc.ID, i),
			FileID:  doc.ID,
			Source:  doc.OriginalName,
			Index:   i,
			Content: block,
		})
	}

	indexCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	if removed, err := s.indexer.DeleteByFileID(indexCtx, doc.ID); err != nil {
		slog.Warn("failed to remove previous chunks, continuing",
			slog.String("id", doc.ID),
			slog.String("error", err.Error()))
	} else if removed > 0 {
		slog.Debug("previous chunks removed", slog.String("id", doc.ID), slog.Int64("count", removed))
	}

	if err := s.indexer.Upsert(indexCtx, "", chunks); err != nil {
		return 0, apierrors.DependencyUnavailable("failed to index document", err)
	}

	status := store.DocumentStatusVectorized
	if _, err := s.store.UpdateDocument(ctx, &store.UpdateDocument{
		ID:        doc.ID,
		Status:    &status,
		UpdatedTs: s.now().Unix(),
	}); err != nil {
		return 0, apierrors.PersistenceFailed("failed to update document status", err)
	}
	slog.Info("document embedded",
		slog.String("id", doc.ID),
		slog.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Delete removes the stored file, the indexed chunks and the catalog entry.
// Only the catalog deletion must succeed.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	if err := os.Remove(doc.StoragePath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove stored file",
			slog.String("id", doc.ID),
			slog.String("path", doc.StoragePath),
			slog.String("error", err.Error()))
	}
	if s.indexer != nil {
		if _, err := s.indexer.DeleteByFileID(ctx, doc.ID); err != nil {
			slog.Warn("failed to remove indexed chunks",
				slog.String("id", doc.ID),
				slog.String("error", err.Error()))
		}
	}
	if err := s.store.DeleteDocument(ctx, &store.DeleteDocument{ID: doc.ID}); err != nil {
		return apierrors.PersistenceFailed("failed to delete document", err)
	}
	slog.Info("document deleted", slog.String("id", doc.ID))
	return nil
}

func (s *Service) ListCollections(ctx context.Context) ([]*store.Collection, error) {
	if s.indexer == nil {
		return nil, apierrors.DependencyUnavailable("vector index is not configured", nil)
	}
	list, err := s.indexer.ListCollections(ctx)
	if err != nil {
		return nil, apierrors.DependencyUnavailable("failed to list collections", err)
	}
	return list, nil
}

func (s *Service) DeleteCollection(ctx context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, apierrors.InvalidArgument("collection name is required")
	}
	if s.indexer == nil {
		return 0, apierrors.DependencyUnavailable("vector index is not configured", nil)
	}
	removed, err := s.indexer.DropCollection(ctx, name)
	if err != nil {
		return 0, apierrors.DependencyUnavailable("failed to delete collection", err)
	}
	return removed, nil
}

func (s *Service) get(ctx context.Context, id string) (*store.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apierrors.InvalidArgument("document id is required")
	}
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("failed to get document", err)
	}
	if doc == nil {
		return nil, apierrors.NotFound("File not found")
	}
	return doc, nil
}

func (s *Service) setText(ctx context.Context, id, text string) (*store.Document, error) {
	status := store.DocumentStatusConverted
	updated, err := s.store.UpdateDocument(ctx, &store.UpdateDocument{
		ID:            id,
		Status:        &status,
		ExtractedText: &text,
		UpdatedTs:     s.now().Unix(),
	})
	if err != nil {
		return nil, apierrors.PersistenceFailed("failed to save extracted text", errors.Wrapf(err, "document %s", id))
	}
	return updated, nil
}
