package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	fileExtension = ".json"
	dirPerm       = 0700
	filePerm      = 0600
)

// fileEnvelope is the on-disk layout of a single document.
type fileEnvelope struct {
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// FileStore keeps each document as {dir}/{name}.json. Writes go to a
// temporary file that is renamed over the target, so a crash never leaves a
// half-written document behind.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("docstore: dir cannot be empty")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+fileExtension)
}

func (s *FileStore) Load(_ context.Context, name string) (*Document, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	env, err := s.read(name)
	if err != nil {
		return nil, err
	}
	return &Document{Name: name, Data: env.Data, Version: env.Version}, nil
}

// read returns a zero envelope when the file does not exist.
func (s *FileStore) read(name string) (fileEnvelope, error) {
	var env fileEnvelope
	raw, err := os.ReadFile(s.path(name)) //nolint:gosec // name is validated against validName
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return env, nil
		}
		return env, fmt.Errorf("read document %s: %w: %w", name, ErrUnavailable, err)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("unmarshal document %s: %w", name, err)
	}
	return env, nil
}

func (s *FileStore) Save(_ context.Context, doc *Document) (int64, error) {
	if err := ValidateName(doc.Name); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(doc.Name)
	if err != nil {
		return 0, err
	}
	if current.Version != doc.Version {
		return 0, ErrVersionConflict
	}

	next := fileEnvelope{Version: doc.Version + 1, Data: doc.Data}
	raw, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal document %s: %w", doc.Name, err)
	}

	tmp, err := os.CreateTemp(s.dir, doc.Name+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file for %s: %w: %w", doc.Name, ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write document %s: %w: %w", doc.Name, ErrUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("sync document %s: %w: %w", doc.Name, ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close document %s: %w: %w", doc.Name, ErrUnavailable, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return 0, fmt.Errorf("chmod document %s: %w: %w", doc.Name, ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path(doc.Name)); err != nil {
		return 0, fmt.Errorf("rename document %s: %w: %w", doc.Name, ErrUnavailable, err)
	}
	return next.Version, nil
}

func (s *FileStore) Close(_ context.Context) error {
	return nil
}
