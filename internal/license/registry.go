package license

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/audit"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/docstore"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/metrics"
)

const keysDocument = "keys"

// AuditRecorder receives audit entries. *audit.Log satisfies it.
type AuditRecorder interface {
	Append(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithClock sets the time source used for creation, expiry resolution and
// validation.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithAudit records an admin-action entry after every successful mutation.
func WithAudit(rec AuditRecorder) Option {
	return func(r *Registry) {
		r.audit = rec
	}
}

// Registry owns the LicenseKey records stored in the keys document.
// Mutations are serialized registry-wide.
type Registry struct {
	store  docstore.Store
	audit  AuditRecorder
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewRegistry creates a registry persisted in store.
func NewRegistry(store docstore.Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// normalizeID is applied to every key and device id entering the registry or
// the engine, so " K1 " and "K1" name the same key everywhere.
func normalizeID(id string) string {
	return strings.TrimSpace(id)
}

// Create issues a new key. The expiry spec is resolved against the current
// time and the key starts unblocked with no devices.
func (r *Registry) Create(ctx context.Context, id, contact string, deviceLimit int, spec ExpirySpec) (LicenseKey, error) {
	id = normalizeID(id)
	if id == "" {
		return LicenseKey{}, invalidSpec("key id is required")
	}
	if deviceLimit < 1 {
		return LicenseKey{}, invalidSpec("device limit must be at least 1, got %d", deviceLimit)
	}
	now := r.now().UTC()
	expiry, err := Resolve(spec, now)
	if err != nil {
		return LicenseKey{}, err
	}

	key := LicenseKey{
		ID:           id,
		CreatedAt:    now,
		ExpiryMode:   spec,
		ExpiresAt:    expiry,
		Contact:      contact,
		DeviceLimit:  deviceLimit,
		BoundDevices: []string{},
	}
	err = r.update(ctx, "create key", func(keys map[string]LicenseKey) error {
		if _, exists := keys[id]; exists {
			return fmt.Errorf("create key %s: %w", id, ErrAlreadyExists)
		}
		keys[id] = key
		return nil
	})
	if err != nil {
		return LicenseKey{}, err
	}
	r.record(ctx, id, fmt.Sprintf("key created (%s, limit %d)", spec, deviceLimit))
	return key.Clone(), nil
}

// Get returns a snapshot of one key.
func (r *Registry) Get(ctx context.Context, id string) (LicenseKey, error) {
	id = normalizeID(id)
	_, keys, err := r.load(ctx)
	if err != nil {
		return LicenseKey{}, err
	}
	k, ok := keys[id]
	if !ok {
		return LicenseKey{}, fmt.Errorf("get key %s: %w", id, ErrNotFound)
	}
	return k.Clone(), nil
}

// Edit overwrites the contact, device limit and expiry of a key. Bound
// devices and the blocked flag are left alone, so lowering the limit below
// the bound count makes the key suspicious rather than evicting devices.
func (r *Registry) Edit(ctx context.Context, id, contact string, deviceLimit int, expiresAt ExpiryValue) (LicenseKey, error) {
	id = normalizeID(id)
	if deviceLimit < 1 {
		return LicenseKey{}, invalidSpec("device limit must be at least 1, got %d", deviceLimit)
	}
	if expiresAt.IsZero() {
		return LicenseKey{}, invalidSpec("expiry is required")
	}
	edited, err := r.mutate(ctx, "edit key", id, func(k *LicenseKey) error {
		k.Contact = contact
		k.DeviceLimit = deviceLimit
		k.ExpiresAt = ResetTo(expiresAt)
		return nil
	})
	if err != nil {
		return LicenseKey{}, err
	}
	if edited.OverLimit() {
		r.logger.Warn("device limit below bound devices", "key_id", id,
			"device_limit", edited.DeviceLimit, "devices_used", len(edited.BoundDevices))
	}
	r.record(ctx, id, fmt.Sprintf("key edited (limit %d, expires %s)", deviceLimit, expiresAt))
	return edited, nil
}

// Delete removes a key.
func (r *Registry) Delete(ctx context.Context, id string) error {
	id = normalizeID(id)
	err := r.update(ctx, "delete key", func(keys map[string]LicenseKey) error {
		if _, ok := keys[id]; !ok {
			return fmt.Errorf("delete key %s: %w", id, ErrNotFound)
		}
		delete(keys, id)
		return nil
	})
	if err != nil {
		return err
	}
	r.record(ctx, id, "key deleted")
	return nil
}

// ListAll returns snapshots of every key by id.
func (r *Registry) ListAll(ctx context.Context) (map[string]LicenseKey, error) {
	_, keys, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]LicenseKey, len(keys))
	for id, k := range keys {
		out[id] = k.Clone()
	}
	return out, nil
}

// FindByContact returns the keys whose contact matches, ignoring case and
// surrounding whitespace, ordered by id.
func (r *Registry) FindByContact(ctx context.Context, contact string) ([]LicenseKey, error) {
	_, keys, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	contact = strings.TrimSpace(contact)
	var out []LicenseKey
	for _, k := range keys {
		if strings.EqualFold(strings.TrimSpace(k.Contact), contact) {
			out = append(out, k.Clone())
		}
	}
	slices.SortFunc(out, func(a, b LicenseKey) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Block marks a key unusable regardless of expiry.
func (r *Registry) Block(ctx context.Context, id string) error {
	return r.setBlocked(ctx, id, true)
}

// Unblock clears the blocked flag.
func (r *Registry) Unblock(ctx context.Context, id string) error {
	return r.setBlocked(ctx, id, false)
}

func (r *Registry) setBlocked(ctx context.Context, id string, blocked bool) error {
	id = normalizeID(id)
	op, msg := "block key", "key blocked"
	if !blocked {
		op, msg = "unblock key", "key unblocked"
	}
	if _, err := r.mutate(ctx, op, id, func(k *LicenseKey) error {
		k.Blocked = blocked
		return nil
	}); err != nil {
		return err
	}
	r.record(ctx, id, msg)
	return nil
}

// Reset unbinds every device and stores expiry verbatim.
func (r *Registry) Reset(ctx context.Context, id string, expiry ExpiryValue) (LicenseKey, error) {
	id = normalizeID(id)
	if expiry.IsZero() {
		return LicenseKey{}, invalidSpec("expiry is required")
	}
	k, err := r.mutate(ctx, "reset key", id, func(k *LicenseKey) error {
		ResetAll(k)
		k.ExpiresAt = ResetTo(expiry)
		return nil
	})
	if err != nil {
		return LicenseKey{}, err
	}
	r.record(ctx, id, fmt.Sprintf("key reset (expires %s)", expiry))
	return k, nil
}

// UnbindDevice releases one device slot.
func (r *Registry) UnbindDevice(ctx context.Context, id, deviceID string) error {
	id, deviceID = normalizeID(id), normalizeID(deviceID)
	if _, err := r.mutate(ctx, "unbind device", id, func(k *LicenseKey) error {
		return Unbind(k, deviceID)
	}); err != nil {
		return err
	}
	r.recordDevice(ctx, id, deviceID, "device unbound")
	return nil
}

// ResetDevices unbinds every device without touching the expiry.
func (r *Registry) ResetDevices(ctx context.Context, id string) error {
	id = normalizeID(id)
	if _, err := r.mutate(ctx, "reset devices", id, func(k *LicenseKey) error {
		ResetAll(k)
		return nil
	}); err != nil {
		return err
	}
	r.record(ctx, id, "devices reset")
	return nil
}

// ListSuspicious returns the ids of keys bound to more devices than allowed.
func (r *Registry) ListSuspicious(ctx context.Context) ([]string, error) {
	keys, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return Suspicious(keys), nil
}

// admission is the decision taken inside the validation critical section.
type admission struct {
	key    LicenseKey
	found  bool
	reason Reason
	result Admission
}

// admit runs the validation state machine for keyID and deviceID under the
// registry lock, persisting a newly bound device before returning.
func (r *Registry) admit(ctx context.Context, keyID, deviceID string, now time.Time) (admission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, keys, err := r.load(ctx)
	if err != nil {
		return admission{}, err
	}
	k, ok := keys[keyID]
	switch {
	case !ok:
		return admission{reason: ReasonNotFound}, nil
	case k.Blocked:
		return admission{key: k, found: true, reason: ReasonBlocked}, nil
	case !IsLive(k.ExpiresAt, now):
		return admission{key: k, found: true, reason: ReasonExpired}, nil
	}

	result := TryAdmit(&k, deviceID)
	switch result {
	case LimitExceeded:
		return admission{key: k, found: true, reason: ReasonDeviceLimitExceeded, result: result}, nil
	case Admitted:
		keys[keyID] = k
		if err := r.save(ctx, "bind device", doc, keys); err != nil {
			return admission{}, err
		}
	}
	return admission{key: k.Clone(), found: true, result: result}, nil
}

// mutate applies fn to a private copy of one key and persists it.
func (r *Registry) mutate(ctx context.Context, op, id string, fn func(*LicenseKey) error) (LicenseKey, error) {
	var out LicenseKey
	err := r.update(ctx, op, func(keys map[string]LicenseKey) error {
		k, ok := keys[id]
		if !ok {
			return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
		}
		if err := fn(&k); err != nil {
			return err
		}
		keys[id] = k
		out = k.Clone()
		return nil
	})
	return out, err
}

// update is the load, check, mutate, save critical section. keys is freshly
// decoded on every call, so an error from fn or save discards the mutation.
func (r *Registry) update(ctx context.Context, op string, fn func(map[string]LicenseKey) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, keys, err := r.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(keys); err != nil {
		return err
	}
	return r.save(ctx, op, doc, keys)
}

func (r *Registry) load(ctx context.Context) (*docstore.Document, map[string]LicenseKey, error) {
	doc, err := r.store.Load(ctx, keysDocument)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("load").Inc()
		r.logger.Error("load keys failed", "error", err)
		return nil, nil, storeError("load keys", err)
	}
	keys := make(map[string]LicenseKey)
	if err := doc.Decode(&keys); err != nil {
		r.logger.Error("decode keys failed", "error", err)
		return nil, nil, storeError("load keys", err)
	}
	return doc, keys, nil
}

func (r *Registry) save(ctx context.Context, op string, doc *docstore.Document, keys map[string]LicenseKey) error {
	if err := doc.Encode(keys); err != nil {
		return err
	}
	if _, err := r.store.Save(ctx, doc); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("save").Inc()
		r.logger.Error("save keys failed", "operation", op, "error", err)
		return storeError(op, err)
	}
	return nil
}

func (r *Registry) record(ctx context.Context, keyID, message string) {
	r.recordDevice(ctx, keyID, "", message)
}

// recordDevice appends an admin-action entry. The mutation is already
// durable, so a failed append is logged rather than returned.
func (r *Registry) recordDevice(ctx context.Context, keyID, deviceID, message string) {
	if r.audit == nil {
		return
	}
	_, err := r.audit.Append(ctx, audit.Entry{
		Kind:      audit.KindAdminAction,
		Message:   message,
		Timestamp: r.now(),
		KeyID:     keyID,
		DeviceID:  deviceID,
	})
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("audit").Inc()
		r.logger.Error("audit admin action failed", "key_id", keyID, "error", err)
	}
}
