package utils

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iamcredentials/v1"
	"google.golang.org/api/option"
)

// SignedUpload is everything a client needs to PUT one evidence image or
// report workbook straight into the bucket, without routing the bytes
// through the API.
type SignedUpload struct {
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ObjectKey string            `json:"objectKey"`
	AccessURL string            `json:"accessUrl"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// SignUpload issues a V4 signed PUT URL scoped to a single object key and
// content type. The expiry is short on purpose: keys embed the tenant
// prefix, so a leaked URL only ever writes one object.
func SignUpload(ctx context.Context, objectKey, contentType string, expires time.Duration) (*SignedUpload, error) {
	if GetStorageProvider() != StorageProviderGCS {
		return nil, fmt.Errorf("storage provider %q is not supported for signed uploads", GetStorageProvider())
	}

	bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucket == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}

	opts := &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      "PUT",
		Expires:     time.Now().Add(expires),
		ContentType: contentType,
	}
	if err := applySigner(ctx, opts); err != nil {
		return nil, err
	}

	signedURL, err := storage.SignedURL(bucket, objectKey, opts)
	if err != nil {
		return nil, err
	}

	return &SignedUpload{
		UploadURL: signedURL,
		Method:    opts.Method,
		Headers: map[string]string{
			"Content-Type": contentType,
		},
		ObjectKey: objectKey,
		AccessURL: BuildObjectAccessURL(objectKey),
		ExpiresAt: opts.Expires,
	}, nil
}

// applySigner fills in the signing identity: the service-account key from
// GCS_CREDENTIALS_JSON when one is configured, otherwise IAM SignBlob under
// the ambient credentials (the normal path on GCE).
func applySigner(ctx context.Context, opts *storage.SignedURLOptions) error {
	if raw := strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_JSON")); raw != "" {
		email, privateKey, err := parseSignerKey(raw)
		if err != nil {
			return err
		}
		opts.GoogleAccessID = email
		opts.PrivateKey = privateKey
		return nil
	}

	email := strings.TrimSpace(os.Getenv("GCS_SIGNER_EMAIL"))
	if email == "" && metadata.OnGCE() {
		defaultEmail, err := metadata.Email("default")
		if err != nil {
			return fmt.Errorf("failed to get default service account email: %w", err)
		}
		email = defaultEmail
	}
	if email == "" {
		return errors.New("GCS_SIGNER_EMAIL is required when no private key is provided")
	}

	creds, err := google.FindDefaultCredentials(ctx, iamcredentials.CloudPlatformScope)
	if err != nil {
		return fmt.Errorf("failed to load ADC credentials: %w", err)
	}
	svc, err := iamcredentials.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return fmt.Errorf("failed to create iamcredentials service: %w", err)
	}

	resource := fmt.Sprintf("projects/-/serviceAccounts/%s", email)
	opts.GoogleAccessID = email
	opts.SignBytes = func(data []byte) ([]byte, error) {
		req := &iamcredentials.SignBlobRequest{
			Payload: base64.StdEncoding.EncodeToString(data),
		}
		resp, err := svc.Projects.ServiceAccounts.SignBlob(resource, req).Do()
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(resp.SignedBlob)
	}
	return nil
}

// parseSignerKey extracts the signing identity from a service-account JSON
// blob. Keys pasted through env files usually arrive with escaped newlines.
func parseSignerKey(raw string) (string, []byte, error) {
	var key struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return "", nil, fmt.Errorf("invalid GCS_CREDENTIALS_JSON: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return "", nil, errors.New("GCS_CREDENTIALS_JSON missing client_email or private_key")
	}
	return key.ClientEmail, []byte(strings.ReplaceAll(key.PrivateKey, "\\n", "\n")), nil
}
