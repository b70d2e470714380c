package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Object is one stored upload.
type Object struct {
	// Key is "<upload id>/<file name>".
	Key         string
	ContentType string
	Size        int64
	Content     []byte
	Meta        map[string]string
	StoredAt    time.Time
}

// Store persists uploaded files.
type Store interface {
	Put(ctx context.Context, obj Object) error
	Get(ctx context.Context, key string) (Object, error)
	// GetURL returns a direct download URL, or "" when the backend has none.
	GetURL(ctx context.Context, key string) (string, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

var (
	ErrNotFound   = errors.New("artifact not found")
	ErrInvalidKey = errors.New("invalid artifact key")
)

// ObjectKey joins an upload id with a sanitized file name.
func ObjectKey(uploadID, name string) (string, error) {
	uploadID = strings.TrimSpace(uploadID)
	if uploadID == "" {
		return "", fmt.Errorf("upload id is required")
	}
	if strings.ContainsAny(uploadID, "/\\") {
		return "", fmt.Errorf("upload id %q must not contain path separators", uploadID)
	}
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload.bin"
	}
	return uploadID + "/" + base, nil
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("%w: key is required", ErrInvalidKey)
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key, nil
}
