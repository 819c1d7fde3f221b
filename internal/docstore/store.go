// Package docstore provides the persistence boundary for the key server:
// named JSON documents with optimistic versioning, and backends for memory,
// local files, PostgreSQL, MongoDB and Redis.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// ErrVersionConflict is returned by Save when the stored version no longer
// matches the version the caller loaded.
var ErrVersionConflict = errors.New("document version conflict")

// ErrUnavailable wraps backend I/O failures.
var ErrUnavailable = errors.New("document store unavailable")

// validName matches safe document names (letters, digits, underscores).
var validName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Document is a named JSON payload together with its stored version.
// Version 0 means the document has never been saved.
type Document struct {
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data"`
	Version int64           `json:"version"`
}

// Empty reports whether the document carries no payload.
func (d *Document) Empty() bool {
	return len(d.Data) == 0 || string(d.Data) == "null"
}

// Decode unmarshals the payload into v. An empty document leaves v untouched.
func (d *Document) Decode(v any) error {
	if d.Empty() {
		return nil
	}
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.Name, err)
	}
	return nil
}

// Encode replaces the payload with the JSON encoding of v.
func (d *Document) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.Name, err)
	}
	d.Data = data
	return nil
}

// Store loads and saves named documents.
type Store interface {
	// Load returns the named document. A document that does not exist yet is
	// returned with empty Data and Version 0.
	Load(ctx context.Context, name string) (*Document, error)

	// Save writes doc if the stored version still equals doc.Version and
	// returns the new version. Otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, doc *Document) (int64, error)

	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}

// ValidateName rejects document names that are unsafe as file names,
// table keys or collection ids.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid document name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	return nil
}
