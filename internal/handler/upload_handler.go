package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"secure-upload/internal/domain/upload"
	"secure-upload/internal/repository"
	"secure-upload/internal/services"
	"secure-upload/internal/transport/httpdto"
	upload_errors "secure-upload/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UploadHandler struct {
	service *services.UploadService
	history repository.UploadRepository
}

func NewUploadHandler(service *services.UploadService, history repository.UploadRepository) *UploadHandler {
	return &UploadHandler{service: service, history: history}
}

// Create accepts a multipart form upload and returns the job id without
// waiting for the pipeline.
func (h *UploadHandler) Create(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.UploadErrorResponse{Error: "no file selected"})
		return
	}
	if fileHeader.Filename == "" {
		c.JSON(http.StatusBadRequest, httpdto.UploadErrorResponse{Error: "no file selected"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.UploadErrorResponse{Error: "could not read file"})
		return
	}
	defer file.Close()

	jobID, err := h.service.Submit(c.Request.Context(), file,
		fileHeader.Filename, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		c.JSON(statusForSubmitError(err), httpdto.UploadErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, httpdto.UploadAcceptedResponse{UploadID: jobID.String()})
}

// Progress returns the current snapshot for a job id.
func (h *UploadHandler) Progress(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, httpdto.UploadErrorResponse{Error: "upload not found"})
		return
	}

	snapshot, err := h.service.Progress(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, httpdto.UploadErrorResponse{Error: "upload not found"})
		return
	}

	c.JSON(http.StatusOK, httpdto.ProgressResponse{
		Status:   string(snapshot.Status),
		Progress: snapshot.Progress,
		Filename: snapshot.Filename,
		Message:  snapshot.Message,
	})
}

// History lists the caller's most recent completed uploads.
func (h *UploadHandler) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("upload history is not configured", "UNAVAILABLE"))
		return
	}

	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	records, err := h.history.ListCompleted(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}

	items := make([]httpdto.HistoryItem, 0, len(records))
	for _, record := range records {
		items = append(items, historyItem(record))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"uploads": items}))
}

func historyItem(record upload.Record) httpdto.HistoryItem {
	return httpdto.HistoryItem{
		Filename:  record.Filename,
		Status:    string(record.Status),
		FileHash:  record.Digest,
		CreatedAt: record.CreatedAt.Format(time.RFC3339),
	}
}

func statusForSubmitError(err error) int {
	switch {
	case errors.Is(err, upload_errors.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload_errors.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
