// Package imagestore persists uploaded meal images and hands back the URL
// under which they are served.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Store saves an object under key and returns its public URL.
type Store interface {
	Save(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// ErrUnsupportedType is returned by Detect for content that is not an accepted image.
var ErrUnsupportedType = errors.New("unsupported image type")

// allowed maps accepted MIME types to the extension used in object keys.
var allowed = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Detect sniffs data and returns its MIME type and file extension when it is
// a JPEG, PNG, GIF or WebP image.
func Detect(data []byte) (contentType, ext string, err error) {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if e, ok := allowed[m.String()]; ok {
			return m.String(), e, nil
		}
	}
	return mt.String(), "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
}

// NewKey names an upload: <userID>_<unixMillis>_<uuid><ext>.
func NewKey(userID int64, ext string, now time.Time) string {
	return fmt.Sprintf("%d_%d_%s%s", userID, now.UnixMilli(), uuid.NewString(), ext)
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
