// Package release keeps the ledger of published application versions that
// clients consult for update checks.
package release

import (
	"cmp"
	"context"
	"errors"
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

const documentName = "releases"

var (
	// ErrNotFound is returned when no release has the requested id.
	ErrNotFound = errors.New("release not found")
	// ErrInvalidRelease is returned when a release has an empty version.
	ErrInvalidRelease = errors.New("invalid release")
)

// Entry is one published version.
type Entry struct {
	ID          int64     `json:"id"`
	Version     string    `json:"version"`
	Description string    `json:"description,omitempty"`
	Link        string    `json:"link,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// state is the persisted layout. Seq is the highest id ever assigned, so a
// removed release id is never reissued.
type state struct {
	Seq     int64           `json:"seq"`
	Entries map[int64]Entry `json:"entries"`
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source for PublishedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithAudit records an admin-action entry for every successful change.
func WithAudit(rec AuditRecorder) Option {
	return func(l *Ledger) {
		l.audit = rec
	}
}

// AuditRecorder receives audit entries. *audit.Log satisfies it.
type AuditRecorder interface {
	Append(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// Ledger stores releases in the releases document.
type Ledger struct {
	store  docstore.Store
	audit  AuditRecorder
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

// NewLedger creates a ledger persisted in store.
func NewLedger(store docstore.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Publish appends a release with the next id.
func (l *Ledger) Publish(ctx context.Context, version, description, link string) (Entry, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return Entry{}, fmt.Errorf("%w: version is required", ErrInvalidRelease)
	}

	var published Entry
	err := l.update(ctx, "publish release", func(st *state) error {
		st.Seq++
		published = Entry{
			ID:          st.Seq,
			Version:     version,
			Description: description,
			Link:        link,
			PublishedAt: l.now().UTC(),
		}
		st.Entries[published.ID] = published
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	l.logger.Info("release published", "id", published.ID, "version", published.Version)
	l.record(ctx, fmt.Sprintf("release %d published (%s)", published.ID, published.Version))
	return published, nil
}

// Edit replaces the description and link of a release.
func (l *Ledger) Edit(ctx context.Context, id int64, description, link string) (Entry, error) {
	var edited Entry
	err := l.update(ctx, "edit release", func(st *state) error {
		e, ok := st.Entries[id]
		if !ok {
			return fmt.Errorf("release %d: %w", id, ErrNotFound)
		}
		e.Description = description
		e.Link = link
		st.Entries[id] = e
		edited = e
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	l.record(ctx, fmt.Sprintf("release %d edited", id))
	return edited, nil
}

// Remove deletes a release.
func (l *Ledger) Remove(ctx context.Context, id int64) error {
	err := l.update(ctx, "remove release", func(st *state) error {
		if _, ok := st.Entries[id]; !ok {
			return fmt.Errorf("release %d: %w", id, ErrNotFound)
		}
		delete(st.Entries, id)
		return nil
	})
	if err != nil {
		return err
	}
	l.record(ctx, fmt.Sprintf("release %d removed", id))
	return nil
}

// Latest returns the release with the highest id. ok is false when the
// ledger is empty.
func (l *Ledger) Latest(ctx context.Context) (Entry, bool, error) {
	entries, err := l.List(ctx)
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[len(entries)-1], true, nil
}

// List returns every release ordered by id.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	_, st, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(st.Entries))
	for _, e := range st.Entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (l *Ledger) update(ctx context.Context, op string, mutate func(*state) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, st, err := l.load(ctx)
	if err != nil {
		return err
	}
	if err := mutate(st); err != nil {
		return err
	}
	if err := doc.Encode(st); err != nil {
		return err
	}
	if _, err := l.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (l *Ledger) load(ctx context.Context) (*docstore.Document, *state, error) {
	doc, err := l.store.Load(ctx, documentName)
	if err != nil {
		return nil, nil, fmt.Errorf("load releases: %w", err)
	}
	st := &state{}
	if err := doc.Decode(st); err != nil {
		return nil, nil, err
	}
	if st.Entries == nil {
		st.Entries = make(map[int64]Entry)
	}
	return doc, st, nil
}

func (l *Ledger) record(ctx context.Context, message string) {
	if l.audit == nil {
		return
	}
	if _, err := l.audit.Append(ctx, audit.Entry{Kind: audit.KindAdminAction, Message: message}); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("audit").Inc()
		l.logger.Error("audit release change failed", "error", err)
	}
}
