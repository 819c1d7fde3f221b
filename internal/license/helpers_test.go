package license

import (
	"sync"
	"testing"
	"time"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/audit"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/docstore"
)

var t0 = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store    *docstore.MemoryStore
	audit    *audit.Log
	clock    *testClock
	registry *Registry
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: docstore.NewMemoryStore(),
		clock: &testClock{now: t0},
	}
	f.audit = audit.NewLog(f.store, audit.WithClock(f.clock.Now))
	f.registry = NewRegistry(f.store, WithClock(f.clock.Now), WithAudit(f.audit))
	f.engine = NewEngine(f.registry, f.audit)
	return f
}
