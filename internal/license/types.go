package license

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// ExpiryKind names the duration unit of an ExpirySpec.
type ExpiryKind string

const (
	KindHours     ExpiryKind = "hours"
	KindDays      ExpiryKind = "days"
	KindPerpetual ExpiryKind = "perpetual"
)

// ExpirySpec is the duration a key is issued for: Hours(n), Days(n) or Perpetual.
type ExpirySpec struct {
	Kind ExpiryKind `json:"kind"`
	N    int        `json:"n,omitempty"`
}

// Hours returns a spec expiring n hours after resolution.
func Hours(n int) ExpirySpec { return ExpirySpec{Kind: KindHours, N: n} }

// Days returns a spec expiring n days after resolution.
func Days(n int) ExpirySpec { return ExpirySpec{Kind: KindDays, N: n} }

// Perpetual returns a spec that never expires.
func Perpetual() ExpirySpec { return ExpirySpec{Kind: KindPerpetual} }

// Validate reports ErrInvalidSpec for unknown kinds and non-positive durations.
func (s ExpirySpec) Validate() error {
	switch s.Kind {
	case KindPerpetual:
		return nil
	case KindHours, KindDays:
		if s.N <= 0 {
			return invalidSpec("%s duration must be positive, got %d", s.Kind, s.N)
		}
		return nil
	default:
		return invalidSpec("unknown expiry kind %q", s.Kind)
	}
}

func (s ExpirySpec) String() string {
	if s.Kind == KindPerpetual {
		return string(KindPerpetual)
	}
	return fmt.Sprintf("%d %s", s.N, s.Kind)
}

const perpetualMarker = "perpetual"

// ExpiryValue is a resolved expiry: an absolute instant or the perpetual
// marker. It encodes to JSON as an RFC 3339 string or "perpetual".
type ExpiryValue struct {
	perpetual bool
	at        time.Time
}

// PerpetualExpiry returns the never-expiring value.
func PerpetualExpiry() ExpiryValue { return ExpiryValue{perpetual: true} }

// ExpiresAt returns an absolute expiry at t, normalized to UTC.
func ExpiresAt(t time.Time) ExpiryValue { return ExpiryValue{at: t.UTC()} }

// IsPerpetual reports whether the value never expires.
func (v ExpiryValue) IsPerpetual() bool { return v.perpetual }

// Time returns the absolute instant. It is the zero time for perpetual values.
func (v ExpiryValue) Time() time.Time { return v.at }

// IsZero reports whether the value was never set.
func (v ExpiryValue) IsZero() bool { return !v.perpetual && v.at.IsZero() }

// Equal reports whether both values denote the same expiry.
func (v ExpiryValue) Equal(o ExpiryValue) bool {
	return v.perpetual == o.perpetual && v.at.Equal(o.at)
}

func (v ExpiryValue) String() string {
	if v.perpetual {
		return perpetualMarker
	}
	return v.at.Format(time.RFC3339Nano)
}

func (v ExpiryValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *ExpiryValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expiry must be a string: %w", err)
	}
	parsed, err := ParseExpiryValue(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseExpiryValue parses "perpetual" or an RFC 3339 timestamp.
func ParseExpiryValue(s string) (ExpiryValue, error) {
	if s == perpetualMarker {
		return PerpetualExpiry(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return ExpiryValue{}, invalidSpec("expiry %q is neither %q nor RFC 3339", s, perpetualMarker)
	}
	return ExpiresAt(t), nil
}

// LicenseKey is the stored record of one issued key.
type LicenseKey struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	// ExpiryMode is the spec the key was issued with. ExpiresAt is its
	// resolution and may later be overwritten by edit or reset.
	ExpiryMode  ExpirySpec  `json:"expiry_mode"`
	ExpiresAt   ExpiryValue `json:"expires_at"`
	Contact     string      `json:"contact"`
	DeviceLimit int         `json:"device_limit"`
	// BoundDevices is kept sorted and free of duplicates.
	BoundDevices []string `json:"bound_devices"`
	Blocked      bool     `json:"blocked"`
}

// Clone returns a deep copy safe to hand to callers.
func (k LicenseKey) Clone() LicenseKey {
	k.BoundDevices = slices.Clone(k.BoundDevices)
	if k.BoundDevices == nil {
		k.BoundDevices = []string{}
	}
	return k
}

// HasDevice reports whether deviceID is bound to the key.
func (k LicenseKey) HasDevice(deviceID string) bool {
	_, found := slices.BinarySearch(k.BoundDevices, deviceID)
	return found
}

// OverLimit reports whether more devices are bound than the limit allows.
func (k LicenseKey) OverLimit() bool {
	return len(k.BoundDevices) > k.DeviceLimit
}

// Reason explains why a validation was denied.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonNotFound            Reason = "not_found"
	ReasonBlocked             Reason = "blocked"
	ReasonExpired             Reason = "expired"
	ReasonDeviceLimitExceeded Reason = "device_limit_exceeded"
)

// ValidationResult is the outcome of a single validation.
type ValidationResult struct {
	Valid    bool   `json:"valid"`
	Reason   Reason `json:"reason,omitempty"`
	KeyID    string `json:"key_id"`
	DeviceID string `json:"device_id"`
	// ExpiresAt is nil for perpetual keys and unknown keys.
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Perpetual   bool       `json:"perpetual"`
	NewlyBound  bool       `json:"newly_bound"`
	DevicesUsed int        `json:"devices_used"`
	DeviceLimit int        `json:"device_limit"`
}
