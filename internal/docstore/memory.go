package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps documents in process memory. It is used by tests and by
// the "memory" store driver.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]Document

	// failSave, when set, is returned by every Save. Tests use it to simulate
	// an unreachable backend.
	failSave error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// FailSaves makes every subsequent Save return err. Pass nil to recover.
func (m *MemoryStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSave = err
}

func (m *MemoryStore) Load(_ context.Context, name string) (*Document, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.docs[name]
	if !ok {
		return &Document{Name: name}, nil
	}
	return &Document{
		Name:    name,
		Data:    append(json.RawMessage(nil), stored.Data...),
		Version: stored.Version,
	}, nil
}

func (m *MemoryStore) Save(_ context.Context, doc *Document) (int64, error) {
	if err := ValidateName(doc.Name); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSave != nil {
		return 0, fmt.Errorf("save document: %w: %w", ErrUnavailable, m.failSave)
	}
	if m.docs[doc.Name].Version != doc.Version {
		return 0, ErrVersionConflict
	}
	next := doc.Version + 1
	m.docs[doc.Name] = Document{
		Name:    doc.Name,
		Data:    append(json.RawMessage(nil), doc.Data...),
		Version: next,
	}
	return next, nil
}

func (m *MemoryStore) Close(_ context.Context) error {
	return nil
}
