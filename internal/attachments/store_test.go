package attachments

import (
	"context"
	"strings"
	"testing"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestMemoryStore_UploadAndFetch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ref, err := s.Upload(ctx, "conv-1", pngHeader, "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", ref.MIMEType)
	assert.True(t, strings.HasPrefix(ref.URI, "mem://attachments/conv-1/"))
	assert.True(t, strings.HasSuffix(ref.URI, ".png"))

	data, err := s.Fetch(ctx, ref.URI)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	_, err = s.Fetch(ctx, "mem://attachments/missing.png")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckImage(t *testing.T) {
	_, err := checkImage(nil, "image/png")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = checkImage([]byte("%PDF-1.7"), "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	mt, err := checkImage([]byte("anything"), "image/jpeg; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mt)

	_, err = checkImage(make([]byte, MaxImageBytes+1), "image/png")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://my-bucket/attachments/c1/a.png", "gs")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "attachments/c1/a.png", object)

	for _, bad := range []string{"https://x/y", "gs://bucket-only", "gs:///obj"} {
		_, _, err := ParseURI(bad, "gs")
		assert.Error(t, err, bad)
	}
}

func TestFilenameFromURI(t *testing.T) {
	assert.Equal(t, "a.png", FilenameFromURI("gs://bucket/attachments/c1/a.png"))
	assert.Equal(t, "bucket", FilenameFromURI("gs://bucket"))
}
