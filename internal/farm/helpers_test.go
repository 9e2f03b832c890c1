package farm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"farmledger/internal/infra/persistence/memory"
	"farmledger/pkg/domain"
)

var errCacheFull = errors.New("quota exceeded")

var testNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store  *Store
	cache  *memory.Cache
	remote *memory.Remote
	clock  *testClock
}

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
	c.now = t
	c.mu.Unlock()
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s-%d", prefix, n.Add(1)) }
}

// newHarness opens a store over fresh in-memory cache and remote. Options
// may override anything, including setting Remote to nil.
func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{cache: memory.NewCache(), remote: memory.NewRemote(), clock: &testClock{now: testNow}}
	opts := Options{
		Cache:  h.cache,
		Remote: h.remote,
		Clock:  h.clock.Now,
		NewID:  sequentialIDs("id"),
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	return h.open(t, opts)
}

func (h *harness) open(t *testing.T, opts Options) *harness {
	t.Helper()
	store, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h.store = store
	return h
}

var testSession = &domain.Session{UserID: "u1", Email: "farmer@example.com", FarmID: "farm-1"}

// signIn authenticates against the harness remote and waits for the fetch.
func (h *harness) signIn(t *testing.T) {
	t.Helper()
	require.NoError(t, h.store.Authenticate(context.Background(), testSession))
	h.store.Wait()
}

// fieldID returns the id minted for the active field called name.
func fieldID(t *testing.T, s *Store, name string) string {
	t.Helper()
	for _, f := range s.Fields() {
		if f.Name == name {
			return f.ID
		}
	}
	t.Fatalf("no field named %q", name)
	return ""
}

// binID returns the id minted for the active bin called name.
func binID(t *testing.T, s *Store, name string) string {
	t.Helper()
	for _, b := range s.Bins() {
		if b.Name == name {
			return b.ID
		}
	}
	t.Fatalf("no bin named %q", name)
	return ""
}

// offlineRemote drops the remote so the store runs without a pending log.
func offlineRemote(o *Options) { o.Remote = nil }

// fakeSessions is a SessionProvider whose session changes are driven by the test.
type fakeSessions struct {
	mu        sync.Mutex
	session   *domain.Session
	listeners []func(*domain.Session)
	signedOut bool
}

func (f *fakeSessions) GetSession(context.Context) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, nil
	}
	cp := *f.session
	return &cp, nil
}

func (f *fakeSessions) OnSessionChange(fn func(*domain.Session)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
	return func() {}
}

func (f *fakeSessions) SignOut(context.Context) error {
	f.emit(nil)
	f.mu.Lock()
	f.signedOut = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSessions) emit(session *domain.Session) {
	f.mu.Lock()
	f.session = session
	listeners := append([]func(*domain.Session){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(session)
	}
}
