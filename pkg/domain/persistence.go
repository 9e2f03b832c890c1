package domain

import (
	"context"
	"time"
)

// Row is the flat wire representation of a remote record: snake_case column
// names mapped to nullable values.
type Row map[string]any

// Filter scopes remote reads and updates. Rows are always restricted to the farm;
// soft-deleted rows are excluded unless IncludeDeleted is set. A non-empty IDs
// list further restricts to id-in-list.
type Filter struct {
	FarmID         string
	IDs            []string
	IncludeDeleted bool
}

// Profile is the per-user remote record holding farm identity and season pointer.
type Profile struct {
	UserID       string    `json:"user_id"`
	FarmID       string    `json:"farm_id"`
	ActiveSeason int       `json:"active_season"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is an authenticated user session.
type Session struct {
	UserID      string
	Email       string
	FarmID      string
	AccessToken string
	ExpiresAt   time.Time
}

// RemoteStore performs farm-scoped CRUD against the hosted relational backend.
// Every call may fail independently; callers never assume success.
type RemoteStore interface {
	Select(ctx context.Context, table string, filter Filter) ([]Row, error)
	Insert(ctx context.Context, table string, rows []Row) error
	Upsert(ctx context.Context, table string, rows []Row) error
	Update(ctx context.Context, table string, patch Row, filter Filter) error
	GetProfile(ctx context.Context, userID string) (Profile, bool, error)
	UpsertProfile(ctx context.Context, profile Profile) error
}

// SessionProvider resolves and tracks the authenticated session.
type SessionProvider interface {
	GetSession(ctx context.Context) (*Session, error)
	// OnSessionChange registers fn for session transitions (nil on sign-out) and
	// returns a function that removes the subscription.
	OnSessionChange(fn func(*Session)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// LocalCache is the key-value store holding the last-known-good snapshot of
// each collection as a JSON document.
type LocalCache interface {
	Load(key string) ([]byte, bool, error)
	Save(key string, payload []byte) error
	Close() error
}

// Remote table names, one per entity type plus the profile table.
const (
	TableFields         = "fields"
	TableBins           = "bins"
	TablePlantRecords   = "plant_records"
	TableSprayRecords   = "spray_records"
	TableHarvestRecords = "harvest_records"
	TableHayRecords     = "hay_harvest_records"
	TableGrainMovements = "grain_movements"
	TableSavedSeeds     = "saved_seeds"
	TableSprayRecipes   = "spray_recipes"
	TableProfiles       = "profiles"
)

// Local cache keys.
const (
	CacheKeyFields       = "ff_fields"
	CacheKeyBins         = "ff_bins"
	CacheKeyPlant        = "ff_plant"
	CacheKeySpray        = "ff_spray"
	CacheKeyHarvest      = "ff_harvest"
	CacheKeyHay          = "ff_hay"
	CacheKeyGrain        = "ff_grain"
	CacheKeySeeds        = "ff_seeds"
	CacheKeyRecipes      = "ff_recipes"
	CacheKeyActiveSeason = "ff_active_season"
	CacheKeyFarmID       = "ff_farm_id"
	CacheKeyPending      = "ff_pending"
)

// EntityTables lists the entity tables in dependency order (fields and bins first).
var EntityTables = []string{
	TableFields,
	TableBins,
	TablePlantRecords,
	TableSprayRecords,
	TableHarvestRecords,
	TableHayRecords,
	TableGrainMovements,
	TableSavedSeeds,
	TableSprayRecipes,
}

// TableFor returns the remote table that stores the entity type.
func TableFor(entity EntityType) string {
	switch entity {
	case EntityField:
		return TableFields
	case EntityBin:
		return TableBins
	case EntityPlantRecord:
		return TablePlantRecords
	case EntitySprayRecord:
		return TableSprayRecords
	case EntityHarvestRecord:
		return TableHarvestRecords
	case EntityHayHarvestRecord:
		return TableHayRecords
	case EntityGrainMovement:
		return TableGrainMovements
	case EntitySavedSeed:
		return TableSavedSeeds
	case EntitySprayRecipe:
		return TableSprayRecipes
	}
	return ""
}
