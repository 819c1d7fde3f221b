// Package license implements the license-key lifecycle: the key registry,
// expiry policy evaluation, device binding and the validation engine that
// composes them.
//
// Every mutation follows the same critical section: load the keys document,
// check, mutate a private copy, save with the loaded version. A failed save
// leaves the stored state untouched and the caller receives an error wrapping
// ErrStoreUnavailable or ErrRemoteSyncConflict.
//
// Validation denials (unknown key, blocked, expired, device limit) are not
// errors. They are reported through ValidationResult.Reason.
package license
