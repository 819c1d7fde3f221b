// Package mirror replicates store documents to a remote, versioned sink.
//
// A sink hands back an opaque version token on every read and write. Writes
// carry the token from the previous call; a sink that has advanced out of
// band rejects the write with ErrVersionConflict and the caller must re-read
// before retrying.
package mirror

import (
	"context"
	"errors"
)

var (
	// ErrVersionConflict means the remote copy changed since the token was issued.
	ErrVersionConflict = errors.New("mirror version conflict")
	// ErrNotFound means the remote copy does not exist yet.
	ErrNotFound = errors.New("mirror document not found")
)

// Sink is a remote document target with conditional writes.
type Sink interface {
	// Read returns the current payload and version token of the named document.
	Read(ctx context.Context, name string) (data []byte, version string, err error)

	// Write stores data if the remote version still equals expectedVersion.
	// An empty expectedVersion creates the document. It returns the new token.
	Write(ctx context.Context, name string, data []byte, expectedVersion string) (string, error)
}
