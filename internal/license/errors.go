package license

import (
	"errors"
	"fmt"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/mirror"
)

// Sentinel errors returned by the registry and the engine.
var (
	ErrNotFound      = errors.New("license key not found")
	ErrAlreadyExists = errors.New("license key already exists")
	ErrInvalidSpec   = errors.New("invalid license specification")
	ErrNotBound      = errors.New("device not bound to license key")
)

// Sentinel errors for persistence failures.
var (
	ErrStoreUnavailable   = errors.New("license store unavailable")
	ErrRemoteSyncConflict = errors.New("remote mirror out of sync")
)

// storeError classifies a persistence failure. The cause stays in the chain.
func storeError(op string, err error) error {
	if errors.Is(err, mirror.ErrVersionConflict) {
		return fmt.Errorf("%s: %w: %w", op, ErrRemoteSyncConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func invalidSpec(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpec, fmt.Sprintf(format, args...))
}
