package v1

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/hrygo/harvestline/server/internal/errors"
)

func (env *testEnv) upload(t *testing.T, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

type uploadResponse struct {
	Success bool        `json:"success"`
	Files   []*Document `json:"files"`
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, map[string]string{"durian-care.txt": "fertilize with potassium after harvest\n\nprune dead branches in June"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	uploaded := decode[uploadResponse](t, rec)
	require.True(t, uploaded.Success)
	require.Len(t, uploaded.Files, 1)
	doc := uploaded.Files[0]
	assert.Equal(t, "raw", doc.Status)
	assert.NotEmpty(t, doc.SizeLabel)

	rec = env.do(t, http.MethodGet, "/api/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]*Document](t, rec), 1)

	rec = env.do(t, http.MethodPost, "/api/embed/"+doc.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/convert/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "converted", decode[Document](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/api/files/"+doc.ID+"/content", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[ContentRequest](t, rec).Content, "potassium")

	rec = env.do(t, http.MethodPost, "/api/embed/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["chunks"])

	rec = env.do(t, http.MethodPut, "/api/files/"+doc.ID+"/content", ContentRequest{Content: "harvest durian 120 days after flowering"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "converted", decode[Document](t, rec).Status)

	rec = env.do(t, http.MethodPost, "/api/embed/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/collections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	collections := decode[[]Collection](t, rec)
	require.Len(t, collections, 1)
	assert.Equal(t, Collection{Name: "harvestline_docs", Count: 1}, collections[0])

	rec = env.do(t, http.MethodPost, "/api/chat", ChatRequest{Message: "when to harvest durian after flowering"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"harvest durian 120 days after flowering"}, decode[ChatResponse](t, rec).ContextUsed)

	rec = env.do(t, http.MethodDelete, "/api/files/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/files/"+doc.ID+"/content", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/collections", nil)
	assert.Empty(t, decode[[]Collection](t, rec))
}

func TestUploadWithoutFiles(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvertPDFWithoutTika(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, map[string]string{"manual.pdf": "%PDF-1.4"})
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[uploadResponse](t, rec).Files[0]

	rec = env.do(t, http.MethodPost, "/api/convert/"+doc.ID, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, apierrors.ErrCodeDependencyUnavailable, decode[apierrors.Response](t, rec).Code)
}

func TestDeleteCollectionAndTrigger(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, "/api/collections/harvestline_docs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode[map[string]any](t, rec)["deleted"])

	rec = env.do(t, http.MethodPost, "/api/embed", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	triggered := 0
	env.service.EmbedTrigger = func() { triggered++ }
	rec = env.do(t, http.MethodPost, "/api/embed", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, triggered)
}
