package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foodiehq/api/internal/services"
)

const (
	defaultUploadTTL     = 15 * time.Minute
	defaultMaxUploadSize = 5 << 20
)

var defaultImageContentTypes = []string{"image/jpeg", "image/png", "image/webp"}

// MenuImageStoreConfig configures the MenuImageStore.
type MenuImageStoreConfig struct {
	Signer *Client
	Copier *Copier
	Bucket string

	// UploadTTL bounds how long a signed upload URL stays valid.
	UploadTTL time.Duration
	// MaxUploadSize caps the accepted object size in bytes.
	MaxUploadSize int64
	// AllowedContentTypes restricts upload content types. Defaults to common
	// web image formats.
	AllowedContentTypes []string
}

// MenuImageStore implements the object storage contract for menu imagery:
// signed uploads land in a staging prefix and are copied to the public
// prefix once promoted.
type MenuImageStore struct {
	signer       *Client
	copier       *Copier
	bucket       string
	uploadTTL    time.Duration
	maxSize      int64
	contentTypes []string
}

// NewMenuImageStore constructs a MenuImageStore.
func NewMenuImageStore(cfg MenuImageStoreConfig) (*MenuImageStore, error) {
	if cfg.Signer == nil {
		return nil, errors.New("storage: signed url client is required")
	}
	if cfg.Copier == nil {
		return nil, errors.New("storage: copier is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}

	ttl := cfg.UploadTTL
	if ttl <= 0 {
		ttl = defaultUploadTTL
	}
	maxSize := cfg.MaxUploadSize
	if maxSize <= 0 {
		maxSize = defaultMaxUploadSize
	}
	contentTypes := cfg.AllowedContentTypes
	if len(contentTypes) == 0 {
		contentTypes = defaultImageContentTypes
	}

	return &MenuImageStore{
		signer:       cfg.Signer,
		copier:       cfg.Copier,
		bucket:       bucket,
		uploadTTL:    ttl,
		maxSize:      maxSize,
		contentTypes: contentTypes,
	}, nil
}

// SignUpload returns a signed PUT URL targeting the staging location for the reference.
func (s *MenuImageStore) SignUpload(ctx context.Context, ref services.MenuImageRef, contentType string) (services.SignedUpload, error) {
	if s == nil {
		return services.SignedUpload{}, errNoSigner
	}

	object, err := BuildObjectPath(PurposeMenuImageStaging, PathParams{
		ItemID:   ref.ItemID,
		UploadID: ref.UploadID,
		FileName: ref.FileName,
	})
	if err != nil {
		return services.SignedUpload{}, err
	}

	result, err := s.signer.SignedURL(ctx, s.bucket, object, SignedURLOptions{
		Upload: &UploadOptions{
			Method:              httpMethodPut,
			ContentType:         contentType,
			AllowedContentTypes: s.contentTypes,
			MaxSize:             s.maxSize,
			ExpiresIn:           s.uploadTTL,
		},
	})
	if err != nil {
		return services.SignedUpload{}, err
	}

	return services.SignedUpload{
		URL:       result.URL,
		Method:    result.Method,
		Headers:   result.Headers,
		Object:    object,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

// SignDownload returns a signed GET URL for the staged object. Staged objects
// are never public; the caller identity must pass the download authorization.
func (s *MenuImageStore) SignDownload(ctx context.Context, ref services.MenuImageRef) (services.SignedUpload, error) {
	if s == nil {
		return services.SignedUpload{}, errNoSigner
	}

	identity, err := AuthorizeDownloadFromContext(ctx, "", false)
	if err != nil {
		return services.SignedUpload{}, err
	}

	object, err := BuildObjectPath(PurposeMenuImageStaging, PathParams{
		ItemID:   ref.ItemID,
		UploadID: ref.UploadID,
		FileName: ref.FileName,
	})
	if err != nil {
		return services.SignedUpload{}, err
	}

	result, err := s.signer.SignedURL(ctx, s.bucket, object, SignedURLOptions{
		Download: &DownloadOptions{
			Method:      httpMethodGet,
			Disposition: "inline",
			Identity:    identity,
		},
	})
	if err != nil {
		return services.SignedUpload{}, err
	}

	return services.SignedUpload{
		URL:       result.URL,
		Method:    result.Method,
		Headers:   result.Headers,
		Object:    object,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

// Promote copies the staged object to the public menu prefix and returns the public URL.
func (s *MenuImageStore) Promote(ctx context.Context, ref services.MenuImageRef) (string, error) {
	if s == nil || s.copier == nil {
		return "", errors.New("storage: store is not initialised")
	}

	params := PathParams{ItemID: ref.ItemID, UploadID: ref.UploadID, FileName: ref.FileName}
	staged, err := BuildObjectPath(PurposeMenuImageStaging, params)
	if err != nil {
		return "", err
	}
	public, err := BuildObjectPath(PurposeMenuImage, params)
	if err != nil {
		return "", err
	}

	if err := s.copier.CopyObject(ctx, s.bucket, staged, s.bucket, public); err != nil {
		return "", fmt.Errorf("storage: promote menu image: %w", err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, public), nil
}
