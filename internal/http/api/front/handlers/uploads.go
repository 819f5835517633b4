package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/estateiq/estateiq/internal/metrics"
	"github.com/estateiq/estateiq/internal/models"
	"github.com/estateiq/estateiq/internal/objectstore"
	"github.com/estateiq/estateiq/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// uploadFormField is the multipart field holding the document.
	uploadFormField = "file"
	// sniffBytes is how much of the file is read for content detection.
	sniffBytes = 512
	// multipartOverhead leaves room for multipart headers around the file.
	multipartOverhead = 1 << 20
)

// UploadHandler accepts portfolio documents.
type UploadHandler struct {
	db      *gorm.DB
	storage objectstore.Storage
	metrics *metrics.Metrics
	nowFn   func() time.Time
}

// NewUploadHandler constructs an UploadHandler. A nil storage rejects uploads.
func NewUploadHandler(db *gorm.DB, storage objectstore.Storage, m *metrics.Metrics) *UploadHandler {
	return &UploadHandler{db: db, storage: storage, metrics: m, nowFn: time.Now}
}

// Create validates a CSV, Excel or PDF document, stores it and records the upload.
func (h *UploadHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads are disabled"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, objectstore.MaxUploadBytes+multipartOverhead)
	header, errForm := c.FormFile(uploadFormField)
	if errForm != nil {
		var maxErr *http.MaxBytesError
		if errors.As(errForm, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	file, errOpen := header.Open()
	if errOpen != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}
	defer func() {
		if errClose := file.Close(); errClose != nil {
			log.WithError(errClose).Debug("uploads: close multipart file")
		}
	}()

	head := make([]byte, sniffBytes)
	n, errRead := io.ReadFull(file, head)
	if errRead != nil && !errors.Is(errRead, io.ErrUnexpectedEOF) && !errors.Is(errRead, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}
	mimeType, errValidate := objectstore.ValidateDocument(header.Filename, header.Size, head[:n])
	if errValidate != nil {
		switch {
		case errors.Is(errValidate, objectstore.ErrTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		case errors.Is(errValidate, objectstore.ErrEmptyFile):
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is empty"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type, upload CSV, Excel or PDF"})
		}
		return
	}
	if _, errSeek := file.Seek(0, io.SeekStart); errSeek != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
		return
	}

	ctx := c.Request.Context()
	key := objectstore.ObjectKey(userID, h.nowFn(), header.Filename)
	if errPut := h.storage.Put(ctx, key, file, header.Size, mimeType); errPut != nil {
		log.WithError(errPut).WithField("user_id", userID).Error("uploads: store object failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "store file failed"})
		return
	}

	row := models.Upload{
		UserID:   userID,
		FileURL:  key,
		FileName: objectstore.SanitizeFileName(header.Filename),
		FileType: mimeType,
		Size:     header.Size,
	}
	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := store.NewGormUploadStore(tx).Create(ctx, &row); errCreate != nil {
			return errCreate
		}
		return store.NewGormActivityStore(tx).Append(ctx, userID, models.ActionUpload, map[string]any{
			"upload_id": row.ID,
			"file_name": row.FileName,
			"file_type": row.FileType,
			"size":      row.Size,
		})
	})
	if errTx != nil {
		log.WithError(errTx).WithFields(log.Fields{
			"user_id": userID,
			"key":     key,
		}).Error("uploads: record upload failed, object left orphaned")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record upload failed"})
		return
	}

	h.metrics.ObserveUpload(mimeType)
	c.JSON(http.StatusCreated, formatUpload(&row))
}

// List returns the user's most recent uploads.
func (h *UploadHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	rows, errList := store.NewGormUploadStore(h.db).ListRecent(c.Request.Context(), userID, queryLimit(c))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list uploads failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatUpload(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"uploads": out})
}

// formatUpload converts an upload model to a response payload.
func formatUpload(u *models.Upload) gin.H {
	return gin.H{
		"id":         u.ID,
		"file_url":   u.FileURL,
		"file_name":  u.FileName,
		"file_type":  u.FileType,
		"size":       u.Size,
		"created_at": u.CreatedAt,
	}
}
