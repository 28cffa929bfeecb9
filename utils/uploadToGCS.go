package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// allowedReportMimeTypes restricts uploads to spreadsheet reports and
// evidence photos.
var allowedReportMimeTypes = map[string]bool{
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/csv":                 true,
	"text/csv; charset=utf-8":  true,
	"text/plain; charset=utf-8": true,
	"image/jpeg":               true,
	"image/png":                true,
}

func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// Explicit JSON via GCS_CREDENTIALS_JSON for local development.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func gcsBucketName() (string, error) {
	bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucket == "" {
		return "", errors.New("GCS_BUCKET is required")
	}
	return bucket, nil
}

// UploadReportToGCS stores an uploaded report file, sniffing and validating
// its content type first.
func UploadReportToGCS(ctx context.Context, objectName string, fileContent io.Reader) error {
	fileData, err := io.ReadAll(fileContent)
	if err != nil {
		return fmt.Errorf("failed to read file content: %v", err)
	}

	mimeType := http.DetectContentType(fileData)
	// xlsx files sniff as zip archives.
	if mimeType == "application/zip" && strings.HasSuffix(objectName, ".xlsx") {
		mimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if !allowedReportMimeTypes[mimeType] {
		return fmt.Errorf("unsupported file type: %s", mimeType)
	}

	return UploadBytesToGCS(ctx, objectName, fileData, mimeType)
}

func UploadBytesToGCS(ctx context.Context, objectName string, data []byte, contentType string) error {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	bucketName, err := gcsBucketName()
	if err != nil {
		return err
	}

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		return fmt.Errorf("failed to upload bytes to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %v", err)
	}
	return nil
}

// DownloadBytesFromGCS pulls an object back after a signed upload completes,
// so the ingestion pipeline can parse it server-side.
func DownloadBytesFromGCS(ctx context.Context, objectName string) ([]byte, error) {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	bucketName, err := gcsBucketName()
	if err != nil {
		return nil, err
	}

	rc, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, NewValidationError("uploaded object %q not found", objectName)
		}
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

func DeleteObjectFromGCS(ctx context.Context, objectName string) error {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	bucketName, err := gcsBucketName()
	if err != nil {
		return err
	}

	if err := client.Bucket(bucketName).Object(objectName).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func ObjectExistsInGCS(ctx context.Context, objectName string) (bool, error) {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return false, err
	}
	defer client.Close()

	bucketName, err := gcsBucketName()
	if err != nil {
		return false, err
	}

	if _, err := client.Bucket(bucketName).Object(objectName).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
