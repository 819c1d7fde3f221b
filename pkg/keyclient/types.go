package keyclient

import "time"

// Perpetual is the expires_at value of a key that never expires.
const Perpetual = "perpetual"

// Expiry describes a validity period: Kind is "hours", "days" or "perpetual";
// N is ignored for perpetual.
type Expiry struct {
	Kind string `json:"kind"`
	N    int    `json:"n,omitempty"`
}

// Hours returns an expiry of n hours.
func Hours(n int) Expiry { return Expiry{Kind: "hours", N: n} }

// Days returns an expiry of n days.
func Days(n int) Expiry { return Expiry{Kind: "days", N: n} }

// Forever returns a perpetual expiry.
func Forever() Expiry { return Expiry{Kind: Perpetual} }

// Key is a license key as returned by the server.
type Key struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiryMode   Expiry    `json:"expiry_mode"`
	ExpiresAt    string    `json:"expires_at"`
	Contact      string    `json:"contact"`
	DeviceLimit  int       `json:"device_limit"`
	BoundDevices []string  `json:"bound_devices"`
	Blocked      bool      `json:"blocked"`
}

// Perpetual reports whether the key never expires.
func (k Key) Perpetual() bool { return k.ExpiresAt == Perpetual }

// Expiry returns the expiry instant. ok is false for perpetual keys or an
// unparsable value.
func (k Key) Expiry() (t time.Time, ok bool) {
	if k.Perpetual() {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, k.ExpiresAt)
	return t, err == nil
}

// CreateKeyRequest is the body of POST /v1/keys.
type CreateKeyRequest struct {
	ID          string `json:"id"`
	Contact     string `json:"contact,omitempty"`
	DeviceLimit int    `json:"device_limit"`
	Expiry      Expiry `json:"expiry"`
}

// EditKeyRequest replaces the editable fields of a key.
// ExpiresAt is "perpetual" or an RFC 3339 timestamp.
type EditKeyRequest struct {
	Contact     string `json:"contact"`
	DeviceLimit int    `json:"device_limit"`
	ExpiresAt   string `json:"expires_at"`
}

// ResetKeyRequest clears a key's devices and sets a new expiry.
// Exactly one of ExpiresAt or Expiry must be set; Expiry is counted from the
// server's clock.
type ResetKeyRequest struct {
	ExpiresAt string  `json:"expires_at,omitempty"`
	Expiry    *Expiry `json:"expiry,omitempty"`
}

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	KeyID    string `json:"key_id"`
	DeviceID string `json:"device_id"`
}

// ValidateResponse is the decision for a validation. Denials have Valid false
// and a Reason of "not_found", "blocked", "expired" or "device_limit_exceeded".
type ValidateResponse struct {
	Valid       bool       `json:"valid"`
	Reason      string     `json:"reason,omitempty"`
	KeyID       string     `json:"key_id"`
	DeviceID    string     `json:"device_id"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Perpetual   bool       `json:"perpetual"`
	NewlyBound  bool       `json:"newly_bound"`
	DevicesUsed int        `json:"devices_used"`
	DeviceLimit int        `json:"device_limit"`
}

// AuditEntry is one audit log record.
type AuditEntry struct {
	Seq       int64     `json:"seq"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	KeyID     string    `json:"key_id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
}

// Release is a published application version.
type Release struct {
	ID          int64     `json:"id"`
	Version     string    `json:"version"`
	Description string    `json:"description,omitempty"`
	Link        string    `json:"link,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// PublishReleaseRequest is the body of POST /v1/releases.
type PublishReleaseRequest struct {
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link,omitempty"`
}

// EditReleaseRequest is the body of PUT /v1/releases/{id}. Both fields are
// replaced; an empty value clears it.
type EditReleaseRequest struct {
	Description string `json:"description"`
	Link        string `json:"link"`
}

// AppendAuditRequest is the body of POST /v1/audit. Kind is "validation" or
// "admin-action".
type AppendAuditRequest struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	KeyID    string `json:"key_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}
