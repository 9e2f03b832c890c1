package farm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"farmledger/internal/mapper"
	"farmledger/pkg/domain"
)

// Remote write operations recorded in the pending log.
const (
	opInsert = "insert"
	opUpsert = "upsert"
	opUpdate = "update"
)

// PendingMutation is a remote write that has not reached the backend yet.
// Inserts are replayed as upserts so a replay after a partial success is safe.
type PendingMutation struct {
	ID       string            `json:"id"`
	Entity   domain.EntityType `json:"entity"`
	Table    string            `json:"table"`
	Op       string            `json:"op"`
	Rows     []domain.Row      `json:"rows,omitempty"`
	Patch    domain.Row        `json:"patch,omitempty"`
	IDs      []string          `json:"ids,omitempty"`
	QueuedAt int64             `json:"queuedAt"`
}

func (m PendingMutation) logFields() []zap.Field {
	fields := []zap.Field{zap.String("entity", string(m.Entity)), zap.String("table", m.Table), zap.String("op", m.Op)}
	if len(m.IDs) > 0 {
		fields = append(fields, zap.Strings("ids", m.IDs))
	} else {
		fields = append(fields, zap.Strings("ids", rowIDs(m.Rows)))
	}
	return fields
}

func rowIDs(rows []domain.Row) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		out = append(out, id)
	}
	return out
}

func writeOf[T domain.Entity](c *collection[T], op string, items ...T) PendingMutation {
	rows := make([]domain.Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, c.toRow(item))
	}
	return PendingMutation{Entity: c.entity, Table: c.table, Op: op, Rows: rows}
}

func softDeleteOf[T domain.Entity](c *collection[T], ids []string, at time.Time) PendingMutation {
	return PendingMutation{
		Entity: c.entity,
		Table:  c.table,
		Op:     opUpdate,
		Patch:  domain.Row{"deleted_at": mapper.FormatTime(at)},
		IDs:    ids,
	}
}

// online reports whether remote calls can be issued now.
func (s *Store) online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote != nil && s.session != nil
}

// push sends writes to the remote in order. Without a session the writes go
// to the pending log. On failure rollback runs when given; otherwise the
// failed write and everything after it are queued.
func (s *Store) push(rollback func(error), writes ...PendingMutation) {
	if s.remote == nil || len(writes) == 0 {
		return
	}
	if !s.online() {
		s.enqueue(writes...)
		return
	}
	s.tasks.submit(func() {
		for i, w := range writes {
			err := s.apply(context.Background(), w)
			if err == nil {
				continue
			}
			s.logger.Error("remote write failed", append(w.logFields(), zap.Error(err))...)
			if rollback != nil && i == 0 {
				rollback(err)
				return
			}
			s.enqueue(writes[i:]...)
			return
		}
	})
}

func (s *Store) apply(ctx context.Context, w PendingMutation) error {
	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()
	farmID := s.FarmID()
	started := time.Now()
	var err error
	switch w.Op {
	case opInsert:
		err = s.remote.Insert(ctx, w.Table, scopeRows(w.Rows, farmID))
	case opUpsert:
		err = s.remote.Upsert(ctx, w.Table, scopeRows(w.Rows, farmID))
	case opUpdate:
		err = s.remote.Update(ctx, w.Table, w.Patch, domain.Filter{FarmID: farmID, IDs: w.IDs})
	default:
		err = fmt.Errorf("unknown remote op %q", w.Op)
	}
	s.metrics.observeCall(w.Table, w.Op, started, err)
	return err
}

// scopeRows stamps the signed-in farm on every outgoing row, including rows
// written before the farm was known or carried over from another farm.
func scopeRows(rows []domain.Row, farmID string) []domain.Row {
	out := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		cp := make(domain.Row, len(row)+1)
		for k, v := range row {
			cp[k] = v
		}
		if farmID != "" {
			cp["farm_id"] = farmID
		}
		out = append(out, cp)
	}
	return out
}

func (s *Store) enqueue(writes ...PendingMutation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		if w.ID == "" {
			w.ID = s.newID()
		}
		if w.QueuedAt == 0 {
			w.QueuedAt = s.nowMillis()
		}
		s.pending = append(s.pending, w)
	}
	s.saveLocked(domain.CacheKeyPending, s.pending)
	s.metrics.setPending(len(s.pending))
}

// Pending returns a copy of the pending log in replay order.
func (s *Store) Pending() []PendingMutation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.pending)
}

// PendingCount returns the number of queued remote writes.
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Sync replays the pending log in order and stops at the first failure.
// Replayed entries are removed as they succeed.
func (s *Store) Sync(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	if !s.online() {
		return domain.ErrNoSession
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	for {
		s.mu.RLock()
		if len(s.pending) == 0 {
			s.mu.RUnlock()
			return nil
		}
		next := s.pending[0]
		s.mu.RUnlock()

		replay := next
		if replay.Op == opInsert {
			replay.Op = opUpsert
		}
		if err := s.apply(ctx, replay); err != nil {
			s.logger.Warn("pending replay failed", append(next.logFields(), zap.Error(err))...)
			return fmt.Errorf("replay %s %s: %w", next.Op, next.Table, err)
		}

		s.mu.Lock()
		if len(s.pending) > 0 && s.pending[0].ID == next.ID {
			s.pending = s.pending[1:]
		}
		s.saveLocked(domain.CacheKeyPending, s.pending)
		s.metrics.setPending(len(s.pending))
		s.mu.Unlock()
	}
}

// Authenticate adopts session, resolves the farm identity, replays pending
// writes and then replaces every collection with the remote copy. When the
// remote holds no farm for the user yet, local state is pushed instead.
// Local state is kept whenever the remote cannot be read in full.
func (s *Store) Authenticate(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return domain.ErrNoSession
	}
	cp := *session
	s.mu.Lock()
	s.session = &cp
	s.loading = true
	s.mu.Unlock()
	defer s.setLoading(false)
	if s.remote == nil {
		return nil
	}

	profile, found, err := s.remote.GetProfile(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	s.adoptFarmID(profile.FarmID, session.FarmID)

	if err := s.Sync(ctx); err != nil {
		s.logger.Warn("pending writes not replayed; skipping fetch", zap.Error(err))
		return err
	}
	if !found || profile.FarmID == "" {
		return s.seedRemote(ctx, session)
	}

	snap, err := s.fetchAll(ctx, profile.FarmID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.fields.items = snap.fields
	s.bins.items = snap.bins
	s.plants.items = snap.plants
	s.sprays.items = snap.sprays
	s.harvests.items = snap.harvests
	s.hay.items = snap.hay
	s.grain.items = snap.grain
	s.seeds.items = snap.seeds
	s.recipes.items = snap.recipes
	if profile.ActiveSeason > 0 {
		s.activeSeason = profile.ActiveSeason
		s.viewingSeason = profile.ActiveSeason
	}
	s.saveAllLocked()
	s.mu.Unlock()
	s.logger.Info("farm data fetched", zap.String("farm_id", profile.FarmID), zap.Int("fields", len(snap.fields)))
	return nil
}

// adoptFarmID picks the first known identity: remote profile, session claim,
// cached value, or a fresh id.
func (s *Store) adoptFarmID(candidates ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	farmID := ""
	for _, c := range candidates {
		if c != "" {
			farmID = c
			break
		}
	}
	if farmID == "" {
		farmID = s.farmID
	}
	if farmID == "" {
		farmID = s.newID()
	}
	if farmID == s.farmID {
		return
	}
	s.farmID = farmID
	s.saveLocked(domain.CacheKeyFarmID, farmID)
}

type snapshot struct {
	fields   []domain.Field
	bins     []domain.Bin
	plants   []domain.PlantRecord
	sprays   []domain.SprayRecord
	harvests []domain.HarvestRecord
	hay      []domain.HayHarvestRecord
	grain    []domain.GrainMovement
	seeds    []domain.SavedSeed
	recipes  []domain.SprayRecipe
}

func fetchTable[T any](ctx context.Context, s *Store, table, farmID string, from func(domain.Row) (T, error)) ([]T, error) {
	started := time.Now()
	rows, err := s.remote.Select(ctx, table, domain.Filter{FarmID: farmID})
	s.metrics.observeCall(table, "select", started, err)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	items, err := mapper.FromRows(rows, from)
	if err != nil {
		skipped := len(rows) - len(items)
		s.logger.Warn("skipping malformed remote rows",
			zap.String("table", table), zap.Int("skipped", skipped), zap.Error(err))
		s.metrics.skipRows(table, skipped)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// fetchAll reads every table; a failed read discards the whole fetch.
// Malformed rows are dropped individually by fetchTable.
func (s *Store) fetchAll(ctx context.Context, farmID string) (snapshot, error) {
	var snap snapshot
	var err error
	fetch := func(step func() error) {
		if err == nil {
			err = step()
		}
	}
	fetch(func() (e error) {
		snap.fields, e = fetchTable(ctx, s, domain.TableFields, farmID, mapper.FieldFromRemote)
		return
	})
	fetch(func() (e error) {
		snap.bins, e = fetchTable(ctx, s, domain.TableBins, farmID, mapper.BinFromRemote)
		return
	})
	fetch(func() (e error) {
		snap.plants, e = fetchTable(ctx, s, domain.TablePlantRecords, farmID, mapper.PlantFromRemote)
		return
	})
	fetch(func() (e error) {
		snap.sprays, e = fetchTable(ctx, s, domain.TableSprayRecords, farmID, mapper.SprayFromRemote)
		return
	})
	fetch(func() (e error) {
		snap.harvests, e = fetchTable(ctx, s, domain.TableHarvestRecords, farmID, mapper.HarvestFromRemote)
		return
	})
	fetch(func() (e error) {
		snap.hay, e = fetchTable(ctx, s, domain.TableHayRecords, farmID, mapper.HayFromRemote)
		return
	})
	fetch(func() (e error) {
		snap.grain, e = fetchTable(ctx, s, domain.TableGrainMovements, farmID, mapper.GrainFromRemote)
		return
	})
	fetch(func() (e error) {
		snap.seeds, e = fetchTable(ctx, s, domain.TableSavedSeeds, farmID, mapper.SeedFromRemote)
		return
	})
	fetch(func() (e error) {
		snap.recipes, e = fetchTable(ctx, s, domain.TableSprayRecipes, farmID, mapper.RecipeFromRemote)
		return
	})
	return snap, err
}

// seedRemote pushes the whole local state for a farm the remote has never
// seen, stamping the farm id on local records first.
func (s *Store) seedRemote(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	farmID := s.farmID
	stampFarm(s, &s.fields, func(f *domain.Field) *string { return &f.FarmID })
	stampFarm(s, &s.bins, func(b *domain.Bin) *string { return &b.FarmID })
	stampFarm(s, &s.plants, func(r *domain.PlantRecord) *string { return &r.FarmID })
	stampFarm(s, &s.sprays, func(r *domain.SprayRecord) *string { return &r.FarmID })
	stampFarm(s, &s.harvests, func(r *domain.HarvestRecord) *string { return &r.FarmID })
	stampFarm(s, &s.hay, func(r *domain.HayHarvestRecord) *string { return &r.FarmID })
	stampFarm(s, &s.grain, func(m *domain.GrainMovement) *string { return &m.FarmID })
	stampFarm(s, &s.seeds, func(r *domain.SavedSeed) *string { return &r.FarmID })
	stampFarm(s, &s.recipes, func(r *domain.SprayRecipe) *string { return &r.FarmID })
	tables := []PendingMutation{
		{Entity: s.fields.entity, Table: s.fields.table, Op: opUpsert, Rows: s.fields.rows()},
		{Entity: s.bins.entity, Table: s.bins.table, Op: opUpsert, Rows: s.bins.rows()},
		{Entity: s.plants.entity, Table: s.plants.table, Op: opUpsert, Rows: s.plants.rows()},
		{Entity: s.sprays.entity, Table: s.sprays.table, Op: opUpsert, Rows: s.sprays.rows()},
		{Entity: s.harvests.entity, Table: s.harvests.table, Op: opUpsert, Rows: s.harvests.rows()},
		{Entity: s.hay.entity, Table: s.hay.table, Op: opUpsert, Rows: s.hay.rows()},
		{Entity: s.grain.entity, Table: s.grain.table, Op: opUpsert, Rows: s.grain.rows()},
		{Entity: s.seeds.entity, Table: s.seeds.table, Op: opUpsert, Rows: s.seeds.rows()},
		{Entity: s.recipes.entity, Table: s.recipes.table, Op: opUpsert, Rows: s.recipes.rows()},
	}
	season := s.activeSeason
	s.mu.Unlock()

	var errs []error
	for _, w := range tables {
		if len(w.Rows) == 0 {
			continue
		}
		if err := s.apply(ctx, w); err != nil {
			s.logger.Error("cold-start seed failed", append(w.logFields(), zap.Error(err))...)
			s.enqueue(w)
			errs = append(errs, err)
		}
	}
	err := s.remote.UpsertProfile(ctx, domain.Profile{
		UserID:       session.UserID,
		FarmID:       farmID,
		ActiveSeason: season,
		UpdatedAt:    s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("cold-start profile write failed", zap.Error(err))
		errs = append(errs, err)
	}
	s.logger.Info("seeded remote from local state", zap.String("farm_id", farmID))
	return errors.Join(errs...)
}

func stampFarm[T domain.Entity](s *Store, c *collection[T], farm func(*T) *string) {
	changed := false
	for i := range c.items {
		if p := farm(&c.items[i]); *p == "" {
			*p = s.farmID
			changed = true
		}
	}
	if changed {
		saveCollection(s, c)
	}
}
