// Package audit is the append-only record of validation and administrative
// events.
package audit

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/docstore"
)

const (
	documentName = "audit"
	// maxAppendAttempts bounds retries when another process appended first.
	maxAppendAttempts = 3
)

// Kind tags an entry.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAdminAction Kind = "admin-action"
)

// ErrInvalidKind is returned for kinds other than validation and admin-action.
var ErrInvalidKind = errors.New("invalid audit entry kind")

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindValidation, KindAdminAction:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Entry is one audit record. Seq is assigned by Append.
type Entry struct {
	Seq       int64     `json:"seq"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	KeyID     string    `json:"key_id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
}

// state is the persisted layout of the audit document. Seq is the last
// assigned sequence id.
type state struct {
	Seq     int64           `json:"seq"`
	Entries map[int64]Entry `json:"entries"`
}

// Option configures a Log.
type Option func(*Log)

// WithClock sets the time source for entries appended without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// Log appends entries to the audit document of a docstore.Store.
type Log struct {
	store  docstore.Store
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

// NewLog creates an audit log persisted in store.
func NewLog(store docstore.Store, opts ...Option) *Log {
	l := &Log{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append assigns the next sequence id to e and persists it.
func (l *Log) Append(ctx context.Context, e Entry) (Entry, error) {
	if _, err := ParseKind(string(e.Kind)); err != nil {
		return Entry{}, err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	e.Timestamp = e.Timestamp.UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		doc, st, err := l.load(ctx)
		if err != nil {
			return Entry{}, err
		}
		st.Seq++
		e.Seq = st.Seq
		st.Entries[e.Seq] = e

		if err := doc.Encode(st); err != nil {
			return Entry{}, err
		}
		_, err = l.store.Save(ctx, doc)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, docstore.ErrVersionConflict) {
			return Entry{}, fmt.Errorf("append audit entry: %w", err)
		}
		l.logger.Warn("audit append conflicted, retrying", "attempt", attempt+1)
		lastErr = err
	}
	return Entry{}, fmt.Errorf("append audit entry: %w", lastErr)
}

// All returns every entry ordered by sequence id.
func (l *Log) All(ctx context.Context) ([]Entry, error) {
	_, st, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	return sorted(st.Entries, func(Entry) bool { return true }), nil
}

// FilterByKind returns the entries of one kind ordered by sequence id.
func (l *Log) FilterByKind(ctx context.Context, kind Kind) ([]Entry, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	_, st, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	return sorted(st.Entries, func(e Entry) bool { return e.Kind == kind }), nil
}

func (l *Log) load(ctx context.Context) (*docstore.Document, *state, error) {
	doc, err := l.store.Load(ctx, documentName)
	if err != nil {
		return nil, nil, fmt.Errorf("load audit log: %w", err)
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

func sorted(entries map[int64]Entry, keep func(Entry) bool) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}
