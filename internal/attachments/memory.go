package attachments

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore keeps attachments in process memory under mem:// URIs.
// Used when no bucket is configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Upload implements the Store interface.
func (s *MemoryStore) Upload(ctx context.Context, conversationID string, data []byte, mimeType string) (*domain.ImageRef, error) {
	mimeType, err := checkImage(data, mimeType)
	if err != nil {
		return nil, err
	}
	uri := "mem://" + objectName(conversationID, uuid.NewString(), mimeType)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[uri] = append([]byte(nil), data...)
	return &domain.ImageRef{URI: uri, MIMEType: mimeType}, nil
}

// Fetch implements the Store interface.
func (s *MemoryStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[uri]
	if !ok {
		return nil, fmt.Errorf("Fetch: %w", domain.NotFound("attachment", uri))
	}
	return append([]byte(nil), data...), nil
}

var _ Store = (*MemoryStore)(nil)
