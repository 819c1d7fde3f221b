package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/docstore"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/metrics"
)

// Mode selects how mirror failures affect a save.
type Mode string

const (
	// ModeRequired writes the mirror before the local store. A mirror failure
	// fails the save and nothing is persisted locally. If the local save then
	// hits a version conflict, the local winner is pushed back to the mirror.
	ModeRequired Mode = "required"
	// ModeBestEffort writes the local store first and only logs mirror failures.
	ModeBestEffort Mode = "best-effort"
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRequired, ModeBestEffort:
		return Mode(s), nil
	case "":
		return ModeRequired, nil
	default:
		return "", fmt.Errorf("unknown mirror mode %q", s)
	}
}

// Option configures a Replicated store.
type Option func(*Replicated)

// WithMode sets the mirror mode. Default: ModeRequired.
func WithMode(m Mode) Option {
	return func(r *Replicated) {
		r.mode = m
	}
}

// WithLogger sets the logger used for mirror failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Replicated) {
		r.logger = l
	}
}

// Replicated is a docstore.Store that copies every saved document to a Sink.
type Replicated struct {
	local  docstore.Store
	sink   Sink
	mode   Mode
	logger *slog.Logger

	mu     sync.Mutex
	tokens map[string]string // last known remote version per document
}

var _ docstore.Store = (*Replicated)(nil)

// NewReplicated wraps local so that saves are mirrored to sink.
func NewReplicated(local docstore.Store, sink Sink, opts ...Option) *Replicated {
	r := &Replicated{
		local:  local,
		sink:   sink,
		mode:   ModeRequired,
		logger: slog.Default(),
		tokens: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Replicated) Load(ctx context.Context, name string) (*docstore.Document, error) {
	return r.local.Load(ctx, name)
}

func (r *Replicated) Save(ctx context.Context, doc *docstore.Document) (int64, error) {
	if r.mode == ModeBestEffort {
		v, err := r.local.Save(ctx, doc)
		if err != nil {
			return 0, err
		}
		if err := r.push(ctx, doc); err != nil {
			metrics.MirrorFailuresTotal.WithLabelValues(doc.Name).Inc()
			r.logger.Warn("mirror write failed", "document", doc.Name, "error", err)
		}
		return v, nil
	}

	if err := r.push(ctx, doc); err != nil {
		return 0, err
	}
	v, err := r.local.Save(ctx, doc)
	if errors.Is(err, docstore.ErrVersionConflict) {
		r.restore(ctx, doc.Name)
	}
	return v, err
}

// restore pushes the current local copy of name after a local save lost its
// version race, so the mirror drops the write the local store refused.
func (r *Replicated) restore(ctx context.Context, name string) {
	current, err := r.local.Load(ctx, name)
	if err == nil {
		err = r.push(ctx, current)
	}
	if err != nil {
		metrics.MirrorFailuresTotal.WithLabelValues(name).Inc()
		r.logger.Warn("mirror restore after local conflict failed", "document", name, "error", err)
		return
	}
	r.logger.Info("mirror restored after local conflict", "document", name)
}

func (r *Replicated) Close(ctx context.Context) error {
	return r.local.Close(ctx)
}

// push writes doc to the sink. A stale token is refreshed and the write
// retried once; a second conflict is reported as ErrVersionConflict.
func (r *Replicated) push(ctx context.Context, doc *docstore.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, known := r.tokens[doc.Name]
	if !known {
		t, err := r.refresh(ctx, doc.Name)
		if err != nil {
			return err
		}
		token = t
	}

	next, err := r.sink.Write(ctx, doc.Name, doc.Data, token)
	if errors.Is(err, ErrVersionConflict) {
		r.logger.Warn("mirror advanced out of band, retrying", "document", doc.Name)
		token, err = r.refresh(ctx, doc.Name)
		if err != nil {
			return err
		}
		next, err = r.sink.Write(ctx, doc.Name, doc.Data, token)
	}
	if errors.Is(err, ErrVersionConflict) {
		delete(r.tokens, doc.Name)
		return fmt.Errorf("mirror %s: %w", doc.Name, err)
	}
	if err != nil {
		delete(r.tokens, doc.Name)
		return fmt.Errorf("mirror %s: %w: %w", doc.Name, docstore.ErrUnavailable, err)
	}
	r.tokens[doc.Name] = next
	return nil
}

func (r *Replicated) refresh(ctx context.Context, name string) (string, error) {
	_, token, err := r.sink.Read(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("mirror %s: %w: %w", name, docstore.ErrUnavailable, err)
	}
	return token, nil
}
