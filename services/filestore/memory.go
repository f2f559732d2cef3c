package filestore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core"
)

type memoryFile struct {
	contentType string
	data        []byte
}

type memoryStore struct {
	mu    sync.RWMutex
	files map[string]memoryFile
}

var _ core.FileStore = (*memoryStore)(nil)

func NewMemoryStore() core.FileStore {
	return &memoryStore{files: make(map[string]memoryFile)}
}

func (s *memoryStore) Put(_ context.Context, key, contentType string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading file")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = memoryFile{contentType: contentType, data: data}
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[key]
	if !ok {
		return nil, core.ErrFileNotFound
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key)
	return nil
}

func (s *memoryStore) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", core.ErrPresignNotSupported
}
