package v1

import (
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/harvestline/server/internal/errors"
	"github.com/hrygo/harvestline/server/service/document"
	"github.com/hrygo/harvestline/store"
)

// Document is the catalog entry returned to the knowledge-base UI.
type Document struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	SizeLabel    string    `json:"sizeLabel"`
	Status       string    `json:"status"`
	UploadedAt   time.Time `json:"uploadedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Collection struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type ContentRequest struct {
	Content string `json:"content"`
}

func convertDocumentFromStore(doc *store.Document) *Document {
	return &Document{
		ID:           doc.ID,
		OriginalName: doc.OriginalName,
		MimeType:     doc.MimeType,
		Size:         doc.Size,
		SizeLabel:    humanize.Bytes(uint64(doc.Size)),
		Status:       string(doc.Status),
		UploadedAt:   time.Unix(doc.UploadedTs, 0).UTC(),
		UpdatedAt:    time.Unix(doc.UpdatedTs, 0).UTC(),
	}
}

func convertDocumentsFromStore(docs []*store.Document) []*Document {
	out := make([]*Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, convertDocumentFromStore(doc))
	}
	return out
}

// GET /api/files
func (s *APIV1Service) ListFiles(c echo.Context) error {
	docs, err := s.Documents.List(c.Request().Context())
	if err != nil {
		return apierrors.ToHTTP(c, err)
	}
	return c.JSON(http.StatusOK, convertDocumentsFromStore(docs))
}

// UploadFiles stores the multipart "files" field.
// POST /api/upload
func (s *APIV1Service) UploadFiles(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return apierrors.ToHTTP(c, apierrors.InvalidArgument("expected a multipart form"))
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return apierrors.ToHTTP(c, apierrors.InvalidArgument("No files uploaded"))
	}

	files := make([]document.UploadFile, 0, len(headers))
	for _, header := range headers {
		data, err := readMultipartFile(header)
		if err != nil {
			return apierrors.ToHTTP(c, apierrors.InvalidArgument("failed to read uploaded file"))
		}
		files = append(files, document.UploadFile{
			Name:     header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	docs, err := s.Documents.Upload(c.Request().Context(), files)
	if err != nil {
		return apierrors.ToHTTP(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"files":   convertDocumentsFromStore(docs),
	})
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// DELETE /api/files/:id
func (s *APIV1Service) DeleteFile(c echo.Context) error {
	if err := s.Documents.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return apierrors.ToHTTP(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// POST /api/convert/:id
func (s *APIV1Service) ConvertFile(c echo.Context) error {
	doc, err := s.Documents.Convert(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apierrors.ToHTTP(c, err)
	}
	return c.JSON(http.StatusOK, convertDocumentFromStore(doc))
}

// GET /api/files/:id/content
func (s *APIV1Service) GetFileContent(c echo.Context) error {
	content, err := s.Documents.GetContent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apierrors.ToHTTP(c, err)
	}
	return c.JSON(http.StatusOK, ContentRequest{Content: content})
}

// PutFileContent saves hand-edited text. The file has to be embedded again.
// PUT /api/files/:id/content
func (s *APIV1Service) PutFileContent(c echo.Context) error {
	var req ContentRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ToHTTP(c, apierrors.InvalidArgument("invalid request body"))
	}
	doc, err := s.Documents.PutContent(c.Request().Context(), c.Param("id"), req.Content)
	if err != nil {
		return apierrors.ToHTTP(c, err)
	}
	return c.JSON(http.StatusOK, convertDocumentFromStore(doc))
}

// POST /api/embed/:id
func (s *APIV1Service) EmbedFile(c echo.Context) error {
	chunks, err := s.Documents.Embed(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apierrors.ToHTTP(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "chunks": chunks})
}

// TriggerEmbedding wakes the background vectorizer.
// POST /api/embed
func (s *APIV1Service) TriggerEmbedding(c echo.Context) error {
	if s.EmbedTrigger == nil {
		return apierrors.ToHTTP(c, apierrors.DependencyUnavailable("automatic embedding is disabled", nil))
	}
	s.EmbedTrigger()
	return c.JSON(http.StatusAccepted, map[string]bool{"success": true})
}

// GET /api/collections
func (s *APIV1Service) ListCollections(c echo.Context) error {
	list, err := s.Documents.ListCollections(c.Request().Context())
	if err != nil {
		return apierrors.ToHTTP(c, err)
	}
	out := make([]Collection, 0, len(list))
	for _, collection := range list {
		out = append(out, Collection{Name: collection.Name, Count: collection.ChunkCount})
	}
	return c.JSON(http.StatusOK, out)
}

// DELETE /api/collections/:name
func (s *APIV1Service) DeleteCollection(c echo.Context) error {
	removed, err := s.Documents.DeleteCollection(c.Request().Context(), c.Param("name"))
	if err != nil {
		return apierrors.ToHTTP(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "deleted": removed})
}
