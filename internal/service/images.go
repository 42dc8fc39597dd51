package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/errs"
)

// ErrImagesDisabled is returned by cover and photo operations when no object store is configured.
var ErrImagesDisabled = errors.New("image storage not configured")

// ObjectStore keeps uploaded images. Implemented by storage.S3Images.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ImageURLTTL is how long a presigned image link stays valid.
const ImageURLTTL = 15 * time.Minute

// Accepted image content types and their key extensions.
var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// putImage stores body under prefix with a fresh object name and returns its key.
// Keys are never reused, so a replaced image can be deleted after the swap.
func putImage(ctx context.Context, store ObjectStore, prefix, contentType string, body []byte) (string, error) {
	ext, ok := imageExt[contentType]
	if !ok || len(body) == 0 {
		return "", fmt.Errorf("%w: image must be a jpeg, png or webp file", errs.ErrInvalidInput)
	}
	obj, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	key := prefix + "/" + obj.String() + ext
	if err := store.Put(ctx, key, contentType, body); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return key, nil
}
