package attachments

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/dvloznov/finance-assistant/internal/domain"
)

// MaxImageBytes caps the size of an uploaded image.
const MaxImageBytes = 10 << 20

// Store provides an interface for image attachment storage.
// This interface enables mocking and testing of storage functionality.
type Store interface {
	// Upload stores image bytes for a conversation and returns a reference
	// the reasoning backend can resolve.
	Upload(ctx context.Context, conversationID string, data []byte, mimeType string) (*domain.ImageRef, error)

	// Fetch downloads attachment bytes by URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// checkImage sniffs the content type when none is given and rejects
// anything that is not an image.
func checkImage(data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", domain.Invalid("image", "is empty")
	}
	if len(data) > MaxImageBytes {
		return "", domain.Invalid("image", "exceeds %d bytes", MaxImageBytes)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", domain.Invalid("image_mime_type", "must be an image type, got %q", mimeType)
	}
	return mimeType, nil
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/heic": ".heic",
}

func objectName(conversationID, id, mimeType string) string {
	ext := extensions[mimeType]
	return fmt.Sprintf("attachments/%s/%s%s", conversationID, id, ext)
}

// ParseURI splits "scheme://bucket/object/path" into bucket and object.
func ParseURI(uri, scheme string) (bucket, object string, err error) {
	prefix := scheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", fmt.Errorf("invalid %s URI: %s", scheme, uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, prefix), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid %s URI (no object path): %s", scheme, uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI extracts the filename from a storage URI.
// e.g., "gs://bucket/attachments/c1/abc.png" → "abc.png"
func FilenameFromURI(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		uri = uri[i+3:]
	}
	parts := strings.SplitN(uri, "/", 2)
	if len(parts) < 2 {
		return uri
	}
	return path.Base(parts[1])
}
