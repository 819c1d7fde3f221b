package license

import (
	"context"
	"fmt"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/audit"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/metrics"
)

// Engine answers whether a key is usable from a device.
//
// Validation binds the device on first use: an unknown device is admitted
// while the key has free slots, and the binding is persisted before the
// result is returned. The device limit therefore counts distinct devices,
// not validations.
type Engine struct {
	registry *Registry
	audit    AuditRecorder
}

// NewEngine creates an engine over registry that records every validation in rec.
func NewEngine(registry *Registry, rec AuditRecorder) *Engine {
	return &Engine{registry: registry, audit: rec}
}

// Validate checks keyID from deviceID. Checks short-circuit in order:
// existence, blocked flag, expiry, device admission. Ids are trimmed; a blank
// one is denied as not found.
//
// Denials are returned as a result with Valid false and a nil error. Store
// failures return an error wrapping ErrStoreUnavailable or
// ErrRemoteSyncConflict; if only the audit append fails, the decided result
// is returned together with the error.
func (e *Engine) Validate(ctx context.Context, keyID, deviceID string) (ValidationResult, error) {
	keyID = normalizeID(keyID)
	deviceID = normalizeID(deviceID)

	logger := e.registry.logger
	now := e.registry.now()

	// A blank id names no key and no device: deny without touching the store.
	adm := admission{reason: ReasonNotFound}
	detail := ""
	if keyID == "" || deviceID == "" {
		detail = " (missing id)"
	} else {
		var err error
		adm, err = e.registry.admit(ctx, keyID, deviceID, now)
		if err != nil {
			return ValidationResult{}, err
		}
	}

	res := ValidationResult{
		Valid:    adm.reason == ReasonNone,
		Reason:   adm.reason,
		KeyID:    keyID,
		DeviceID: deviceID,
	}
	if adm.found {
		res.Perpetual = adm.key.ExpiresAt.IsPerpetual()
		if !res.Perpetual {
			t := adm.key.ExpiresAt.Time()
			res.ExpiresAt = &t
		}
		res.DevicesUsed = len(adm.key.BoundDevices)
		res.DeviceLimit = adm.key.DeviceLimit
		res.NewlyBound = res.Valid && adm.result == Admitted
	}

	outcome, message := "valid", "valid ("+adm.result.String()+")"
	if !res.Valid {
		outcome, message = "invalid", "denied: "+string(res.Reason)+detail
		logger.Info("validation denied", "key_id", keyID, "device_id", deviceID, "reason", res.Reason)
	} else if res.NewlyBound {
		logger.Info("device bound", "key_id", keyID, "device_id", deviceID,
			"devices_used", res.DevicesUsed, "device_limit", res.DeviceLimit)
	}
	metrics.ValidationsTotal.WithLabelValues(outcome, string(res.Reason)).Inc()

	_, err := e.audit.Append(ctx, audit.Entry{
		Kind:      audit.KindValidation,
		Message:   message,
		Timestamp: now,
		KeyID:     keyID,
		DeviceID:  deviceID,
	})
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("audit").Inc()
		logger.Error("audit validation failed", "key_id", keyID, "error", err)
		return res, storeError(fmt.Sprintf("record validation of %s", keyID), err)
	}
	return res, nil
}
