package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"secure-upload/internal/domain/upload"
	"secure-upload/internal/progress"
	"secure-upload/internal/services"
	"secure-upload/pkg/logger"
)

type nopUploader struct{}

func (nopUploader) Upload(ctx context.Context, key, contentType, originalFilename string, r io.Reader, totalSize int64, onPart func(uploaded int64)) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

type nopSecretStore struct{}

func (nopSecretStore) Put(ctx context.Context, jobID uuid.UUID, digest string, key, iv []byte) error {
	return nil
}

func (nopSecretStore) SecretName(jobID uuid.UUID) string {
	return "uploads/" + jobID.String()
}

func newTestRouter(t *testing.T, maxBytes int64) (*gin.Engine, *services.UploadService, *progress.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := progress.NewRegistry(time.Minute)
	l := &logger.Logger{Logger: zap.NewNop()}
	service := services.NewUploadService(registry, nopUploader{}, nopSecretStore{}, nil, l, maxBytes, time.Minute)
	h := NewUploadHandler(service, nil)

	router := gin.New()
	router.POST("/upload", h.Create)
	router.GET("/upload-progress/:id", h.Progress)
	return router, service, registry
}

func multipartBody(t *testing.T, fieldName, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(fieldName, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func TestCreateAcceptsUpload(t *testing.T) {
	router, _, registry := newTestRouter(t, 1<<20)
	defer registry.Stop()

	body, contentType := multipartBody(t, "file", "report.pdf", []byte("pdf bytes"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	uploadID, ok := resp["upload_id"]
	require.True(t, ok)
	_, err := uuid.Parse(uploadID)
	assert.NoError(t, err)
}

func TestCreateRejectsMissingFile(t *testing.T) {
	router, _, registry := newTestRouter(t, 1<<20)
	defer registry.Stop()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("note", "no file here"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "no file selected", resp["error"])
}

func TestCreateRejectsOversizedFile(t *testing.T) {
	router, _, registry := newTestRouter(t, 16)
	defer registry.Stop()

	body, contentType := multipartBody(t, "file", "big.bin", make([]byte, 64))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["error"])
}

func TestProgressReportsJobState(t *testing.T) {
	router, service, registry := newTestRouter(t, 1<<20)
	defer registry.Stop()

	data := []byte("bytes worth tracking")
	id, err := service.Submit(context.Background(), bytes.NewReader(data), "track.bin", int64(len(data)), "application/octet-stream")
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "job never completed")
		snapshot, err := service.Progress(id)
		require.NoError(t, err)
		if snapshot.Status.Terminal() {
			require.Equal(t, upload.StatusCompleted, snapshot.Status)
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	req := httptest.NewRequest(http.MethodGet, "/upload-progress/"+id.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status   string `json:"status"`
		Progress int    `json:"progress"`
		Filename string `json:"filename"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, 100, resp.Progress)
	assert.Equal(t, "track.bin", resp.Filename)
}

func TestProgressUnknownUpload(t *testing.T) {
	router, _, registry := newTestRouter(t, 1<<20)
	defer registry.Stop()

	for _, id := range []string{uuid.New().String(), "not-a-uuid"} {
		req := httptest.NewRequest(http.MethodGet, "/upload-progress/"+id, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusNotFound, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "upload not found", resp["error"])
	}
}
