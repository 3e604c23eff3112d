package persistence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-service/internal/config"
)

func TestLocalEvidenceStorePut(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalEvidenceStore(config.EvidenceConfig{Dir: dir, PublicBaseURL: "/uploads/evidence/", MaxFileBytes: 1024})

	stored, err := store.Put(context.Background(), "req-1", "Photo.JPG", strings.NewReader("image-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.Key, "req-1/"))
	assert.True(t, strings.HasSuffix(stored.Key, ".jpg"))
	assert.Equal(t, "/uploads/evidence/"+stored.Key, stored.URL)
	assert.EqualValues(t, len("image-bytes"), stored.Size)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(stored.Key)))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	require.NoError(t, store.Delete(context.Background(), stored.Key))
	require.NoError(t, store.Delete(context.Background(), stored.Key))
}

func TestLocalEvidenceStoreRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalEvidenceStore(config.EvidenceConfig{Dir: dir, MaxFileBytes: 4})

	_, err := store.Put(context.Background(), "../escape", "big.png", strings.NewReader("too many bytes"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEvidenceTooLarge))

	entries, err := os.ReadDir(filepath.Join(dir, "___escape"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
