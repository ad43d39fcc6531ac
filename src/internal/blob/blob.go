// Package blob stores uploaded images and submission files in object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

const (
	MaxImageSize      = 10 << 20
	MaxSubmissionSize = 25 << 20
)

var (
	ErrUnsupportedType = errors.New("unsupported file type, upload a JPEG, PNG, WebP or GIF image")
	ErrTooLarge        = errors.New("file is too large")
	ErrEmpty           = errors.New("file is empty")
)

type Storage interface {
	// Put uploads body under key and returns its public URL.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	// KeyOf maps a public URL produced by Put back to its key.
	KeyOf(url string) (string, bool)
}

var imageExt = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// ValidateImage checks an upload against the accepted image types and size,
// and returns the file extension to store it under.
func ValidateImage(contentType string, size int64) (string, error) {
	ext, ok := imageExt[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", ErrUnsupportedType
	}
	if size <= 0 {
		return "", ErrEmpty
	}
	if size > MaxImageSize {
		return "", fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, size, MaxImageSize)
	}
	return ext, nil
}

func ValidateSubmission(size int64) error {
	if size <= 0 {
		return ErrEmpty
	}
	if size > MaxSubmissionSize {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, size, MaxSubmissionSize)
	}
	return nil
}

func BannerKey(challengeID, title, ext string, now time.Time) string {
	return fmt.Sprintf("challenges/%s/banner/%s-%d.%s", challengeID, nameOr(title, "banner"), now.Unix(), ext)
}

func AvatarKey(uid, ext string, now time.Time) string {
	return fmt.Sprintf("users/%s/avatar/avatar-%d.%s", uid, now.Unix(), ext)
}

// SubmissionKey keeps the uploaded file's extension and slugs the rest of its name.
func SubmissionKey(challengeID, uid, filename string, now time.Time) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	base := nameOr(strings.TrimSuffix(filename, path.Ext(filename)), "submission")
	key := fmt.Sprintf("challenges/%s/submissions/%s/%s-%d", challengeID, uid, base, now.Unix())
	if ext != "" {
		key += "." + slug.Make(ext)
	}
	return key
}

func nameOr(s, fallback string) string {
	if n := slug.Make(s); n != "" {
		return n
	}
	return fallback
}
