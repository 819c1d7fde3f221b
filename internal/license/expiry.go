package license

import "time"

// Resolve turns spec into an expiry relative to now.
func Resolve(spec ExpirySpec, now time.Time) (ExpiryValue, error) {
	if err := spec.Validate(); err != nil {
		return ExpiryValue{}, err
	}
	switch spec.Kind {
	case KindHours:
		return ExpiresAt(now.Add(time.Duration(spec.N) * time.Hour)), nil
	case KindDays:
		return ExpiresAt(now.AddDate(0, 0, spec.N)), nil
	default:
		return PerpetualExpiry(), nil
	}
}

// IsLive reports whether v is still valid at now. The boundary is inclusive:
// a key expiring exactly at now is live.
func IsLive(v ExpiryValue, now time.Time) bool {
	if v.IsPerpetual() {
		return true
	}
	return !now.After(v.Time())
}

// ResetTo returns the caller-supplied expiry unchanged. Reset paths store the
// value verbatim and never re-derive it from the issuing spec.
func ResetTo(v ExpiryValue) ExpiryValue {
	return v
}
