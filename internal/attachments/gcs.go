package attachments

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/google/uuid"
)

const uploadTimeout = 2 * time.Minute

// GCSStore keeps attachments in a Google Cloud Storage bucket.
// It assumes Application Default Credentials are configured.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a storage client bound to bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Upload implements the Store interface.
func (s *GCSStore) Upload(ctx context.Context, conversationID string, data []byte, mimeType string) (*domain.ImageRef, error) {
	mimeType, err := checkImage(data, mimeType)
	if err != nil {
		return nil, err
	}
	name := objectName(conversationID, uuid.NewString(), mimeType)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = mimeType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, domain.Upstream("upload attachment", fmt.Errorf("write %s: %w", name, err))
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return nil, domain.Upstream("upload attachment", fmt.Errorf("finalize %s: %w", name, err))
	}

	return &domain.ImageRef{URI: fmt.Sprintf("gs://%s/%s", s.bucket, name), MIMEType: mimeType}, nil
}

// Fetch implements the Store interface. Any bucket readable with the
// client's credentials is accepted.
func (s *GCSStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri, "gs")
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

var _ Store = (*GCSStore)(nil)
