package services

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/foodiehq/api/internal/repositories"
)

const uploadIDPrefix = "upl_"

var (
	// ErrMediaInvalidInput signals the caller provided invalid upload data.
	ErrMediaInvalidInput = errors.New("media: invalid input")
	// ErrMediaUnavailable indicates the storage backend cannot fulfil the request.
	ErrMediaUnavailable = errors.New("media: unavailable")
)

var allowedImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// MediaServiceDeps bundles collaborators required to construct the media service.
type MediaServiceDeps struct {
	MenuItems   repositories.MenuItemRepository
	Store       MenuImageStore
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type mediaService struct {
	menuItems repositories.MenuItemRepository
	store     MenuImageStore
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewMediaService wires dependencies into a concrete MediaService implementation.
func NewMediaService(deps MediaServiceDeps) (MediaService, error) {
	if deps.MenuItems == nil {
		return nil, errors.New("media service: menu item repository is required")
	}
	if deps.Store == nil {
		return nil, errors.New("media service: image store is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &mediaService{
		menuItems: deps.MenuItems,
		store:     deps.Store,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateMenuImageUpload verifies the target item and returns a signed upload
// ticket pointing at the staging location.
func (s *mediaService) CreateMenuImageUpload(ctx context.Context, cmd CreateMenuImageUploadCommand) (MenuImageUploadTicket, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	fileName, contentType, err := validateImageUpload(cmd.FileName, cmd.ContentType)
	if itemID == "" || err != nil {
		return MenuImageUploadTicket{}, ErrMediaInvalidInput
	}

	if _, err := s.menuItems.FindByID(ctx, itemID); err != nil {
		return MenuImageUploadTicket{}, s.translateRepoError(err)
	}

	uploadID := uploadIDPrefix + s.newID()
	signed, err := s.store.SignUpload(ctx, MenuImageRef{
		ItemID:   itemID,
		UploadID: uploadID,
		FileName: fileName,
	}, contentType)
	if err != nil {
		return MenuImageUploadTicket{}, ErrMediaUnavailable
	}

	s.logger(ctx, "media.image_upload_created", map[string]any{
		"itemID":   itemID,
		"uploadID": uploadID,
		"actorID":  cmd.ActorID,
	})

	return MenuImageUploadTicket{
		UploadID:  uploadID,
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		Object:    signed.Object,
		ExpiresAt: signed.ExpiresAt,
	}, nil
}

// PromoteMenuImage copies the staged object to its public location and points
// the menu item at the resulting URL.
func (s *mediaService) PromoteMenuImage(ctx context.Context, cmd PromoteMenuImageCommand) (MenuItem, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	uploadID := strings.TrimSpace(cmd.UploadID)
	fileName, _, err := validateImageUpload(cmd.FileName, "")
	if itemID == "" || uploadID == "" || err != nil {
		return MenuItem{}, ErrMediaInvalidInput
	}

	item, err := s.menuItems.FindByID(ctx, itemID)
	if err != nil {
		return MenuItem{}, s.translateRepoError(err)
	}

	publicURL, err := s.store.Promote(ctx, MenuImageRef{
		ItemID:   itemID,
		UploadID: uploadID,
		FileName: fileName,
	})
	if err != nil {
		return MenuItem{}, ErrMediaUnavailable
	}

	item.ImageURL = publicURL
	item.UpdatedAt = s.clock()
	if err := s.menuItems.Update(ctx, item); err != nil {
		return MenuItem{}, s.translateRepoError(err)
	}

	s.logger(ctx, "media.image_promoted", map[string]any{
		"itemID":   itemID,
		"uploadID": uploadID,
		"actorID":  cmd.ActorID,
	})
	return item, nil
}

// PreviewMenuImageUpload returns a signed GET URL for the staged object so
// the caller can review it before promotion.
func (s *mediaService) PreviewMenuImageUpload(ctx context.Context, cmd PromoteMenuImageCommand) (MenuImageUploadTicket, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	uploadID := strings.TrimSpace(cmd.UploadID)
	fileName, _, err := validateImageUpload(cmd.FileName, "")
	if itemID == "" || uploadID == "" || err != nil {
		return MenuImageUploadTicket{}, ErrMediaInvalidInput
	}

	if _, err := s.menuItems.FindByID(ctx, itemID); err != nil {
		return MenuImageUploadTicket{}, s.translateRepoError(err)
	}

	signed, err := s.store.SignDownload(ctx, MenuImageRef{
		ItemID:   itemID,
		UploadID: uploadID,
		FileName: fileName,
	})
	if err != nil {
		return MenuImageUploadTicket{}, ErrMediaUnavailable
	}

	s.logger(ctx, "media.image_preview_issued", map[string]any{
		"itemID":   itemID,
		"uploadID": uploadID,
		"actorID":  cmd.ActorID,
	})

	return MenuImageUploadTicket{
		UploadID:  uploadID,
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		Object:    signed.Object,
		ExpiresAt: signed.ExpiresAt,
	}, nil
}

// validateImageUpload normalises the file name and checks the extension
// whitelist. An empty contentType skips the type check for promote calls.
func validateImageUpload(fileName, contentType string) (string, string, error) {
	fileName = strings.ToLower(strings.TrimSpace(fileName))
	if fileName == "" || strings.ContainsAny(fileName, "/\\") {
		return "", "", ErrMediaInvalidInput
	}
	if _, ok := allowedImageExtensions[path.Ext(fileName)]; !ok {
		return "", "", ErrMediaInvalidInput
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return "", "", ErrMediaInvalidInput
	}
	return fileName, contentType, nil
}

func (s *mediaService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrMenuItemNotFound
	}
	return ErrMediaUnavailable
}
