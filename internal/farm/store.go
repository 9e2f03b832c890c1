// Package farm implements the farm data store: the in-memory registry of every
// entity collection for the signed-in farm, kept in step with a write-through
// local cache and reconciled asynchronously against the remote store.
package farm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"farmledger/internal/blob"
	"farmledger/internal/logger"
	"farmledger/internal/mapper"
	"farmledger/pkg/domain"
)

const defaultRemoteTimeout = 15 * time.Second

// ErrInvalidRecord is returned by add and update operations for input that
// can never be stored.
var ErrInvalidRecord = errors.New("invalid record")

// Options wires a Store to its collaborators. Only Cache is required; a nil
// Remote runs the store fully offline.
type Options struct {
	Cache    domain.LocalCache
	Remote   domain.RemoteStore
	Sessions domain.SessionProvider
	Backups  blob.Store
	Logger   *zap.Logger
	Metrics  *Metrics

	RemoteTimeout   time.Duration
	BackupURLExpiry time.Duration

	// Clock and NewID are overridable for tests.
	Clock func() time.Time
	NewID func() string
}

// Store is the farm data store. All methods are safe for concurrent use.
type Store struct {
	cache    domain.LocalCache
	remote   domain.RemoteStore
	sessions domain.SessionProvider
	backups  blob.Store
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time
	newID    func() string

	remoteTimeout   time.Duration
	backupURLExpiry time.Duration

	mu            sync.RWMutex
	fields        collection[domain.Field]
	bins          collection[domain.Bin]
	plants        collection[domain.PlantRecord]
	sprays        collection[domain.SprayRecord]
	harvests      collection[domain.HarvestRecord]
	hay           collection[domain.HayHarvestRecord]
	grain         collection[domain.GrainMovement]
	seeds         collection[domain.SavedSeed]
	recipes       collection[domain.SprayRecipe]
	activeSeason  int
	viewingSeason int
	farmID        string
	session       *domain.Session
	loading       bool
	pending       []PendingMutation
	rollover      rolloverFlags

	syncMu      sync.Mutex
	tasks       *dispatcher
	startOnce   sync.Once
	unsubscribe func()
}

// Open builds a Store and synchronously hydrates it from the local cache.
func Open(opts Options) (*Store, error) {
	if opts.Cache == nil {
		return nil, errors.New("farm: local cache required")
	}
	s := &Store{
		cache:           opts.Cache,
		remote:          opts.Remote,
		sessions:        opts.Sessions,
		backups:         opts.Backups,
		logger:          logger.OrNop(opts.Logger),
		metrics:         opts.Metrics,
		now:             opts.Clock,
		newID:           opts.NewID,
		remoteTimeout:   opts.RemoteTimeout,
		backupURLExpiry: opts.BackupURLExpiry,
		tasks:           newDispatcher(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.remoteTimeout <= 0 {
		s.remoteTimeout = defaultRemoteTimeout
	}
	s.fields = newCollection(domain.EntityField, domain.CacheKeyFields, mapper.FieldToRemote)
	s.bins = newCollection(domain.EntityBin, domain.CacheKeyBins, mapper.BinToRemote)
	s.plants = newCollection(domain.EntityPlantRecord, domain.CacheKeyPlant, mapper.PlantToRemote)
	s.sprays = newCollection(domain.EntitySprayRecord, domain.CacheKeySpray, mapper.SprayToRemote)
	s.harvests = newCollection(domain.EntityHarvestRecord, domain.CacheKeyHarvest, mapper.HarvestToRemote)
	s.hay = newCollection(domain.EntityHayHarvestRecord, domain.CacheKeyHay, mapper.HayToRemote)
	s.grain = newCollection(domain.EntityGrainMovement, domain.CacheKeyGrain, mapper.GrainToRemote)
	s.seeds = newCollection(domain.EntitySavedSeed, domain.CacheKeySeeds, mapper.SeedToRemote)
	s.recipes = newCollection(domain.EntitySprayRecipe, domain.CacheKeyRecipes, mapper.RecipeToRemote)
	s.hydrate()
	return s, nil
}

// hydrate loads every collection from the cache. Unreadable or corrupt
// entries fall back to the built-in defaults.
func (s *Store) hydrate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields.items = loadDefaults(s, &s.fields, DefaultFields(), func(f *domain.Field, id string) { f.ID = id })
	s.bins.items = loadDefaults(s, &s.bins, DefaultBins(), func(b *domain.Bin, id string) { b.ID = id })
	s.plants.items = loadJSON[[]domain.PlantRecord](s, s.plants.key, nil)
	s.sprays.items = loadJSON[[]domain.SprayRecord](s, s.sprays.key, nil)
	s.harvests.items = loadJSON[[]domain.HarvestRecord](s, s.harvests.key, nil)
	s.hay.items = loadJSON[[]domain.HayHarvestRecord](s, s.hay.key, nil)
	s.grain.items = loadJSON[[]domain.GrainMovement](s, s.grain.key, nil)
	s.seeds.items = loadJSON[[]domain.SavedSeed](s, s.seeds.key, nil)
	s.recipes.items = loadJSON[[]domain.SprayRecipe](s, s.recipes.key, nil)
	s.activeSeason = loadJSON(s, domain.CacheKeyActiveSeason, s.now().Year())
	if s.activeSeason <= 0 {
		s.activeSeason = s.now().Year()
	}
	s.viewingSeason = s.activeSeason
	s.farmID = loadJSON(s, domain.CacheKeyFarmID, "")
	s.pending = loadJSON[[]PendingMutation](s, domain.CacheKeyPending, nil)
	s.metrics.setPending(len(s.pending))
}

// cacheEntry reports how a cache lookup went.
type cacheEntry int

const (
	entryLoaded cacheEntry = iota
	entryMissing
	entryCorrupt
	entryUnreadable
)

func decodeJSON[T any](s *Store, key string) (T, cacheEntry) {
	var out T
	raw, ok, err := s.cache.Load(key)
	if err != nil {
		s.logger.Error("local cache read failed", zap.String("key", key), zap.Error(err))
		return out, entryUnreadable
	}
	if !ok || len(raw) == 0 {
		return out, entryMissing
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Error("local cache entry corrupt", zap.String("key", key), zap.Error(err))
		var zero T
		return zero, entryCorrupt
	}
	return out, entryLoaded
}

func loadJSON[T any](s *Store, key string, fallback T) T {
	out, state := decodeJSON[T](s, key)
	if state != entryLoaded {
		return fallback
	}
	return out
}

// loadDefaults loads c from the cache or, when nothing usable is stored,
// gives each default a fresh id. Minted defaults are written back so the ids
// stay stable across restarts; an unreadable cache is left alone.
func loadDefaults[T domain.Entity](s *Store, c *collection[T], defaults []T, setID func(*T, string)) []T {
	items, state := decodeJSON[[]T](s, c.key)
	if state == entryLoaded {
		return items
	}
	for i := range defaults {
		setID(&defaults[i], s.newID())
	}
	if state != entryUnreadable {
		s.saveLocked(c.key, defaults)
	}
	return defaults
}

// saveLocked writes v under key. Failures are logged and never returned.
func (s *Store) saveLocked(key string, v any) {
	raw, err := json.Marshal(v)
	if err == nil {
		err = s.cache.Save(key, raw)
	}
	if err != nil {
		s.logger.Error("local cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func saveCollection[T domain.Entity](s *Store, c *collection[T]) {
	s.saveLocked(c.key, c.items)
}

func (s *Store) saveAllLocked() {
	saveCollection(s, &s.fields)
	saveCollection(s, &s.bins)
	saveCollection(s, &s.plants)
	saveCollection(s, &s.sprays)
	saveCollection(s, &s.harvests)
	saveCollection(s, &s.hay)
	saveCollection(s, &s.grain)
	saveCollection(s, &s.seeds)
	saveCollection(s, &s.recipes)
	s.saveLocked(domain.CacheKeyActiveSeason, s.activeSeason)
	s.saveLocked(domain.CacheKeyFarmID, s.farmID)
}

// Start resolves the session and, when signed in, runs Authenticate in the
// background. Loading reports true until that finishes. Later session changes
// re-authenticate or drop the session.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if s.sessions == nil {
			return
		}
		s.mu.Lock()
		s.loading = true
		s.mu.Unlock()
		s.unsubscribe = s.sessions.OnSessionChange(s.onSessionChange)
		s.tasks.submit(func() {
			defer s.setLoading(false)
			session, err := s.sessions.GetSession(ctx)
			if err != nil {
				s.logger.Warn("resolve session failed", zap.Error(err))
				return
			}
			if session == nil {
				return
			}
			if err := s.Authenticate(ctx, session); err != nil {
				s.logger.Warn("initial fetch failed; keeping local state", zap.Error(err))
			}
		})
	})
}

func (s *Store) onSessionChange(session *domain.Session) {
	if session == nil {
		s.mu.Lock()
		s.session = nil
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	same := s.session != nil && s.session.UserID == session.UserID
	if same {
		cp := *session
		s.session = &cp
	}
	s.mu.Unlock()
	if same {
		return
	}
	s.tasks.submit(func() {
		if err := s.Authenticate(context.Background(), session); err != nil {
			s.logger.Warn("fetch after sign-in failed; keeping local state", zap.Error(err))
		}
	})
}

// Wait blocks until initialisation and every queued remote call has settled.
func (s *Store) Wait() { s.tasks.wait() }

// Close stops listening for session changes and waits for queued remote work.
func (s *Store) Close() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.Wait()
	return nil
}

// SignOut ends the session. Local state is kept.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	if s.sessions == nil {
		return nil
	}
	return s.sessions.SignOut(ctx)
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Loading reports whether the initial fetch is still running.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Session returns the current session, or nil when signed out.
func (s *Store) Session() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// FarmID returns the farm identity, empty until one is known.
func (s *Store) FarmID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.farmID
}

func (s *Store) nowMillis() int64 { return s.now().UnixMilli() }
