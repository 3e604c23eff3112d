package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/civic-service/internal/config"
)

// ErrEvidenceTooLarge is returned when an upload exceeds the configured size limit.
var ErrEvidenceTooLarge = errors.New("evidence file too large")

// StoredFile describes a persisted evidence file.
type StoredFile struct {
	Key  string
	URL  string
	Size int64
}

// LocalEvidenceStore writes completion evidence under a directory served at PublicBaseURL.
type LocalEvidenceStore struct {
	dir     string
	baseURL string
	maxSize int64
}

// NewLocalEvidenceStore builds the store; the directory is created lazily.
func NewLocalEvidenceStore(cfg config.EvidenceConfig) *LocalEvidenceStore {
	return &LocalEvidenceStore{
		dir:     cfg.Dir,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxSize: cfg.MaxFileBytes,
	}
}

// Put streams content to disk under requestID and returns its key and public URL.
func (s *LocalEvidenceStore) Put(ctx context.Context, requestID, fileName string, content io.Reader) (StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return StoredFile{}, err
	}
	key := path.Join(sanitizeSegment(requestID), uuid.NewString()+strings.ToLower(filepath.Ext(fileName)))
	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("create evidence dir: %w", err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return StoredFile{}, fmt.Errorf("create evidence file: %w", err)
	}

	reader := content
	if s.maxSize > 0 {
		reader = io.LimitReader(content, s.maxSize+1)
	}
	written, err := io.Copy(f, reader)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && s.maxSize > 0 && written > s.maxSize {
		err = fmt.Errorf("%w: limit %d bytes", ErrEvidenceTooLarge, s.maxSize)
	}
	if err != nil {
		_ = os.Remove(target)
		return StoredFile{}, err
	}
	return StoredFile{Key: key, URL: s.baseURL + "/" + key, Size: written}, nil
}

// Delete removes a stored file; missing files are ignored.
func (s *LocalEvidenceStore) Delete(_ context.Context, key string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Dir is the root directory, used to serve files statically.
func (s *LocalEvidenceStore) Dir() string {
	return s.dir
}

func sanitizeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		return "unknown"
	}
	return s
}
