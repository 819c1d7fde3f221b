package license

import (
	"fmt"
	"slices"
)

// Admission is the outcome of TryAdmit.
type Admission int

const (
	Admitted Admission = iota
	AlreadyBound
	LimitExceeded
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case AlreadyBound:
		return "already_bound"
	case LimitExceeded:
		return "limit_exceeded"
	default:
		return fmt.Sprintf("admission(%d)", int(a))
	}
}

// TryAdmit binds deviceID to k if there is room. A device that is already
// bound is admitted without consuming a slot, even when the key is over its
// limit.
func TryAdmit(k *LicenseKey, deviceID string) Admission {
	i, found := slices.BinarySearch(k.BoundDevices, deviceID)
	if found {
		return AlreadyBound
	}
	if len(k.BoundDevices) >= k.DeviceLimit {
		return LimitExceeded
	}
	k.BoundDevices = slices.Insert(k.BoundDevices, i, deviceID)
	return Admitted
}

// Unbind removes deviceID from k.
func Unbind(k *LicenseKey, deviceID string) error {
	i, found := slices.BinarySearch(k.BoundDevices, deviceID)
	if !found {
		return fmt.Errorf("unbind %s from %s: %w", deviceID, k.ID, ErrNotBound)
	}
	k.BoundDevices = slices.Delete(k.BoundDevices, i, i+1)
	return nil
}

// ResetAll removes every bound device from k.
func ResetAll(k *LicenseKey) {
	k.BoundDevices = []string{}
}

// Suspicious returns the ids, sorted, of keys bound to more devices than
// their limit allows. Such keys are reported, never trimmed.
func Suspicious(snapshot map[string]LicenseKey) []string {
	ids := []string{}
	for id, k := range snapshot {
		if k.OverLimit() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
