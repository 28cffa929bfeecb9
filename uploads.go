package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Ntsinga/Zesha-App/config"
	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Evidence photos (balance slips, commission captures) and report workbooks
// go to the bucket via signed PUT URLs; the API never proxies the bytes.

type uploadContext struct {
	EntityType string `json:"entityType"` // balances | commissions | reports
	Field      string `json:"field"`
}

type uploadSignRequest struct {
	FileName string        `json:"fileName"`
	MimeType string        `json:"mimeType"`
	Size     int64         `json:"size"`
	Context  uploadContext `json:"context"`
}

type uploadCompleteRequest struct {
	ObjectKey string        `json:"objectKey"`
	MimeType  string        `json:"mimeType"`
	Context   uploadContext `json:"context"`
}

type uploadSignResponse struct {
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ObjectKey string            `json:"objectKey"`
	AccessURL string            `json:"accessUrl"`
	ExpiresAt string            `json:"expiresAt"`
}

type uploadCompleteResponse struct {
	ImageURL           string `json:"imageUrl,omitempty"`
	ThumbnailURL       string `json:"thumbnailUrl,omitempty"`
	ObjectKey          string `json:"objectKey"`
	ThumbnailObjectKey string `json:"thumbnailObjectKey,omitempty"`
	FileURL            string `json:"fileUrl,omitempty"`
}

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

var reportMimeTypes = map[string]bool{
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/csv":   true,
	"image/jpeg": true,
	"image/png":  true,
}

func signUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		requestID := requestIDFromHeaders(c)

		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}

		var req uploadSignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		if req.FileName == "" || req.MimeType == "" || req.Size <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fileName, mimeType and size are required"})
			return
		}
		if req.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		entity := normalizeEntity(req.Context.EntityType)
		if entity == "" {
			entity = "uploads"
		}

		if isImageRequest(req) {
			if !imageMimeTypes[req.MimeType] {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type"})
				return
			}
		} else if !reportMimeTypes[req.MimeType] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
			return
		}

		ext := strings.ToLower(filepath.Ext(req.FileName))
		if ext == "" {
			ext = extensionFromMimeType(req.MimeType)
		}
		if ext == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file extension is required"})
			return
		}

		objectKey := path.Join(strconv.Itoa(companyId), entity, uuid.New().String()+ext)
		if utils.GetStorageProvider() != utils.StorageProviderGCS {
			c.JSON(http.StatusBadRequest, gin.H{"error": "storage provider not supported"})
			return
		}

		signed, err := utils.SignUpload(c.Request.Context(), objectKey, req.MimeType, 15*time.Minute)
		if err != nil {
			logUploadError(logger, err, utils.GetStorageProvider(), requestID)
			message := "failed to sign upload"
			if !strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
				message = fmt.Sprintf("failed to sign upload: %v", err)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": message})
			return
		}

		logger.WithFields(logrus.Fields{
			"company_id": companyId,
			"mime_type":  req.MimeType,
			"size":       req.Size,
			"object_key": objectKey,
		}).Info("[upload.sign]")

		c.JSON(http.StatusOK, gin.H{
			"data": uploadSignResponse{
				UploadURL: signed.UploadURL,
				Method:    signed.Method,
				Headers:   signed.Headers,
				ObjectKey: signed.ObjectKey,
				AccessURL: signed.AccessURL,
				ExpiresAt: signed.ExpiresAt.UTC().Format(time.RFC3339),
			},
		})
	}
}

func completeUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		requestID := requestIDFromHeaders(c)

		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}

		var req uploadCompleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.ObjectKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "objectKey is required"})
			return
		}
		// Object keys are tenant-prefixed; never accept a foreign prefix.
		if !strings.HasPrefix(req.ObjectKey, strconv.Itoa(companyId)+"/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid object key"})
			return
		}

		response := uploadCompleteResponse{
			ObjectKey: req.ObjectKey,
		}

		if isImageComplete(req) {
			thumbnailKey, err := createThumbnail(c.Request.Context(), req.ObjectKey)
			if err != nil {
				logUploadError(logger, err, utils.GetStorageProvider(), requestID)
				// Undecodable uploads are junk; remove them rather than
				// leaving orphans in the bucket.
				_ = utils.DeleteObjectFromGCS(c.Request.Context(), req.ObjectKey)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate thumbnail"})
				return
			}
			response.ImageURL = utils.BuildObjectAccessURL(req.ObjectKey)
			response.ThumbnailURL = utils.BuildObjectAccessURL(thumbnailKey)
			response.ThumbnailObjectKey = thumbnailKey
		} else {
			exists, err := utils.ObjectExistsInGCS(c.Request.Context(), req.ObjectKey)
			if err != nil {
				logUploadError(logger, err, utils.GetStorageProvider(), requestID)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "storage check failed"})
				return
			}
			if !exists {
				c.JSON(http.StatusBadRequest, gin.H{"error": "object was never uploaded"})
				return
			}
			response.FileURL = utils.BuildObjectAccessURL(req.ObjectKey)
		}

		logger.WithFields(logrus.Fields{
			"object_key": req.ObjectKey,
			"status":     "completed",
		}).Info("[upload.complete]")

		c.JSON(http.StatusOK, gin.H{"data": response})
	}
}

func createThumbnail(ctx context.Context, objectKey string) (string, error) {
	data, err := utils.DownloadBytesFromGCS(ctx, objectKey)
	if err != nil {
		return "", err
	}
	if int64(len(data)) > maxUploadSizeBytes {
		return "", errors.New("file size exceeds 5MB limit")
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return "", err
	}

	thumbnailKey := thumbnailObjectKey(objectKey)
	if err := utils.UploadBytesToGCS(ctx, thumbnailKey, buf.Bytes(), "image/jpeg"); err != nil {
		return "", err
	}
	return thumbnailKey, nil
}

func thumbnailObjectKey(objectKey string) string {
	dir := path.Dir(objectKey)
	filename := path.Base(objectKey)
	return path.Join(dir, "thumbnails", filename)
}

func normalizeEntity(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, " ", "_")
	return sanitizeSegment(value)
}

func sanitizeSegment(input string) string {
	var out strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func extensionFromMimeType(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "text/csv":
		return ".csv"
	case "application/vnd.ms-excel":
		return ".xls"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	default:
		return ""
	}
}

func isImageRequest(req uploadSignRequest) bool {
	if strings.Contains(strings.ToLower(req.Context.EntityType), "balance") {
		return true
	}
	if strings.Contains(strings.ToLower(req.Context.Field), "image") {
		return true
	}
	return strings.HasPrefix(req.MimeType, "image/")
}

func isImageComplete(req uploadCompleteRequest) bool {
	if strings.Contains(strings.ToLower(req.Context.EntityType), "balance") ||
		strings.Contains(strings.ToLower(req.Context.EntityType), "commission") {
		return true
	}
	if strings.Contains(strings.ToLower(req.Context.Field), "image") {
		return true
	}
	return strings.HasPrefix(req.MimeType, "image/")
}

func logUploadError(logger *logrus.Logger, err error, provider string, requestID string) {
	logger.WithFields(logrus.Fields{
		"error":      err.Error(),
		"provider":   provider,
		"request_id": requestID,
	}).Error("[upload.error]")
}

func requestIDFromHeaders(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-Correlation-Id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.GetHeader("X-Request-Id")); id != "" {
		return id
	}
	return fmt.Sprintf("upload-%d", time.Now().UnixNano())
}
