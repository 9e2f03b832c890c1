package farm

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"farmledger/pkg/domain"
)

// addRecord appends rec, writes the collection to the cache and sends the
// insert. With undo set, a failed insert removes rec again.
func addRecord[T domain.Entity](s *Store, c *collection[T], rec T, undo bool) {
	s.mu.Lock()
	c.items = append(c.items, rec)
	saveCollection(s, c)
	s.mu.Unlock()
	var rollback func(error)
	if undo {
		rollback = func(error) { rollbackAdd(s, c, rec.EntityID()) }
	}
	s.push(rollback, writeOf(c, opInsert, rec))
}

func rollbackAdd[T domain.Entity](s *Store, c *collection[T], ids ...string) {
	s.mu.Lock()
	removed := c.remove(idSet(ids))
	if len(removed) > 0 {
		saveCollection(s, c)
	}
	s.mu.Unlock()
	if len(removed) > 0 {
		s.metrics.rollback(string(c.entity))
		s.logger.Warn("rolled back optimistic add", zap.String("entity", string(c.entity)), zap.Strings("ids", ids))
	}
}

// updateRecord replaces the record with next's id. keep copies the immutable
// attributes from the stored record onto next.
func updateRecord[T domain.Entity](s *Store, c *collection[T], next T, keep func(prev T, next *T)) (T, error) {
	s.mu.Lock()
	i := c.index(next.EntityID())
	if i < 0 {
		s.mu.Unlock()
		var zero T
		return zero, domain.NotFoundError{Entity: c.entity, ID: next.EntityID()}
	}
	keep(c.items[i], &next)
	c.items[i] = next
	saveCollection(s, c)
	s.mu.Unlock()
	s.push(nil, writeOf(c, opUpsert, next))
	return next, nil
}

// softDelete stamps deleted_at on every matching record and keeps it in place.
func softDelete[T domain.Entity](s *Store, c *collection[T], ids []string, mark func(*T, time.Time)) []string {
	set := idSet(ids)
	if len(set) == 0 {
		return nil
	}
	at := s.now().UTC()
	var hit []string
	s.mu.Lock()
	for i := range c.items {
		if _, ok := set[c.items[i].EntityID()]; ok {
			mark(&c.items[i], at)
			hit = append(hit, c.items[i].EntityID())
		}
	}
	if len(hit) > 0 {
		saveCollection(s, c)
	}
	s.mu.Unlock()
	s.push(nil, softDeleteOf(c, setKeys(set), at))
	return hit
}

// hardDelete removes matching records locally; the remote copy is still only
// marked deleted.
func hardDelete[T domain.Entity](s *Store, c *collection[T], ids []string) []T {
	set := idSet(ids)
	if len(set) == 0 {
		return nil
	}
	s.mu.Lock()
	removed := c.remove(set)
	if len(removed) > 0 {
		saveCollection(s, c)
	}
	s.mu.Unlock()
	s.push(nil, softDeleteOf(c, setKeys(set), s.now().UTC()))
	return removed
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
}

// fieldNameLocked resolves a snapshot name, falling back to "Unknown".
func (s *Store) fieldNameLocked(id, given string) string {
	if given != "" {
		return given
	}
	if f, ok := s.fields.get(id); ok && f.Name != "" {
		return f.Name
	}
	return UnknownName
}

func (s *Store) binNameLocked(id, given string) string {
	if given != "" {
		return given
	}
	if b, ok := s.bins.get(id); ok && b.Name != "" {
		return b.Name
	}
	return UnknownName
}

// stamp fills the creation attributes shared by season records.
func (s *Store) stampLocked(id *string, ts *int64, season *int, farm *string, keepTimestamp bool) {
	*id = s.newID()
	if !keepTimestamp || *ts == 0 {
		*ts = s.nowMillis()
	}
	*season = s.activeSeason
	*farm = s.farmID
}

// AddField creates a field. A GeoJSON boundary is validated, and fills in
// acreage and the centre point when those are unset.
func (s *Store) AddField(in domain.Field) (domain.Field, error) {
	f, err := prepareField(in)
	if err != nil {
		return domain.Field{}, err
	}
	s.mu.RLock()
	f.ID, f.FarmID, f.DeletedAt = s.newID(), s.farmID, nil
	s.mu.RUnlock()
	addRecord(s, &s.fields, f, false)
	return f, nil
}

func prepareField(f domain.Field) (domain.Field, error) {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return f, invalid("field name required")
	}
	if f.Acreage < 0 {
		return f, invalid("field acreage %v is negative", f.Acreage)
	}
	if !f.IrrigationPractice.Valid() {
		return f, invalid("irrigation practice %q", f.IrrigationPractice)
	}
	if f.ProducerShare != nil && (*f.ProducerShare < 0 || *f.ProducerShare > 100) {
		return f, invalid("producer share %v outside 0-100", *f.ProducerShare)
	}
	if len(f.Boundary) > 0 {
		poly, err := domain.ParseBoundary(f.Boundary)
		if err != nil {
			return f, invalid("field boundary: %v", err)
		}
		if f.Acreage == 0 {
			f.Acreage = roundTo(domain.BoundaryAcres(poly), 2)
		}
		if f.Lat == 0 && f.Lng == 0 {
			f.Lat, f.Lng = domain.BoundaryCenter(poly)
		}
	}
	return f, nil
}

// UpdateField replaces a field by id. Records that snapshotted its old name
// keep that name.
func (s *Store) UpdateField(f domain.Field) (domain.Field, error) {
	f, err := prepareField(f)
	if err != nil {
		return domain.Field{}, err
	}
	return updateRecord(s, &s.fields, f, func(prev domain.Field, next *domain.Field) {
		next.FarmID, next.DeletedAt = prev.FarmID, prev.DeletedAt
	})
}

// DeleteFields soft-deletes fields; they stay resolvable through FieldByID.
func (s *Store) DeleteFields(ids ...string) {
	softDelete(s, &s.fields, ids, func(f *domain.Field, at time.Time) { f.DeletedAt = &at })
}

// AddBin creates a bin with a positive bushel capacity.
func (s *Store) AddBin(in domain.Bin) (domain.Bin, error) {
	if err := validateBin(in); err != nil {
		return domain.Bin{}, err
	}
	s.mu.RLock()
	in.ID, in.FarmID, in.DeletedAt = s.newID(), s.farmID, nil
	s.mu.RUnlock()
	addRecord(s, &s.bins, in, false)
	return in, nil
}

func validateBin(b domain.Bin) error {
	if strings.TrimSpace(b.Name) == "" {
		return invalid("bin name required")
	}
	if b.Capacity <= 0 {
		return invalid("bin capacity %d must be positive", b.Capacity)
	}
	return nil
}

// UpdateBin replaces a bin by id.
func (s *Store) UpdateBin(b domain.Bin) (domain.Bin, error) {
	if err := validateBin(b); err != nil {
		return domain.Bin{}, err
	}
	return updateRecord(s, &s.bins, b, func(prev domain.Bin, next *domain.Bin) {
		next.FarmID, next.DeletedAt = prev.FarmID, prev.DeletedAt
	})
}

// DeleteBins soft-deletes bins. Their movements keep counting towards history.
func (s *Store) DeleteBins(ids ...string) {
	softDelete(s, &s.bins, ids, func(b *domain.Bin, at time.Time) { b.DeletedAt = &at })
}

// AddPlantRecord stamps a planting with the active season. Field name,
// acreage, FSA numbers, share and irrigation default from the field.
func (s *Store) AddPlantRecord(in domain.PlantRecord) (domain.PlantRecord, error) {
	if in.FieldID == "" {
		return domain.PlantRecord{}, invalid("plant record needs a field")
	}
	if !in.IrrigationPractice.Valid() {
		return domain.PlantRecord{}, invalid("irrigation practice %q", in.IrrigationPractice)
	}
	s.mu.RLock()
	rec := in
	s.stampLocked(&rec.ID, &rec.Timestamp, &rec.SeasonYear, &rec.FarmID, false)
	rec.DeletedAt = nil
	rec.FieldName = s.fieldNameLocked(rec.FieldID, rec.FieldName)
	if f, ok := s.fields.get(rec.FieldID); ok {
		if rec.Acreage == 0 {
			rec.Acreage = f.Acreage
		}
		if rec.FSAFarmNumber == "" {
			rec.FSAFarmNumber = f.FSAFarmNumber
		}
		if rec.FSATractNumber == "" {
			rec.FSATractNumber = f.FSATractNumber
		}
		if rec.FSAFieldNumber == "" {
			rec.FSAFieldNumber = f.FSAFieldNumber
		}
		if rec.IntendedUse == "" {
			rec.IntendedUse = f.IntendedUse
		}
		if rec.ProducerShare == nil && f.ProducerShare != nil {
			share := *f.ProducerShare
			rec.ProducerShare = &share
		}
		if rec.IrrigationPractice == "" {
			rec.IrrigationPractice = f.IrrigationPractice
		}
	}
	s.mu.RUnlock()
	addRecord(s, &s.plants, rec, true)
	return rec, nil
}

// UpdatePlantRecord replaces a planting; id, timestamp and season are kept.
func (s *Store) UpdatePlantRecord(r domain.PlantRecord) (domain.PlantRecord, error) {
	if !r.IrrigationPractice.Valid() {
		return domain.PlantRecord{}, invalid("irrigation practice %q", r.IrrigationPractice)
	}
	return updateRecord(s, &s.plants, r, func(prev domain.PlantRecord, next *domain.PlantRecord) {
		next.Timestamp, next.SeasonYear, next.FarmID, next.DeletedAt = prev.Timestamp, prev.SeasonYear, prev.FarmID, prev.DeletedAt
	})
}

// DeletePlantRecords removes plantings locally.
func (s *Store) DeletePlantRecords(ids ...string) {
	hardDelete(s, &s.plants, ids)
}

// AddSprayRecord stamps an application with the active season. When only
// line items are given, Product summarises their trade names.
func (s *Store) AddSprayRecord(in domain.SprayRecord) (domain.SprayRecord, error) {
	if in.FieldID == "" {
		return domain.SprayRecord{}, invalid("spray record needs a field")
	}
	if in.Product == "" && len(in.Products) == 0 {
		return domain.SprayRecord{}, invalid("spray record needs a product")
	}
	s.mu.RLock()
	rec := in
	s.stampLocked(&rec.ID, &rec.Timestamp, &rec.SeasonYear, &rec.FarmID, false)
	rec.DeletedAt = nil
	rec.FieldName = s.fieldNameLocked(rec.FieldID, rec.FieldName)
	s.mu.RUnlock()
	if rec.Product == "" {
		names := make([]string, 0, len(rec.Products))
		for _, p := range rec.Products {
			names = append(names, p.Product)
		}
		rec.Product = strings.Join(names, ", ")
	}
	addRecord(s, &s.sprays, rec, true)
	return rec, nil
}

// UpdateSprayRecord replaces an application; id, timestamp and season are kept.
func (s *Store) UpdateSprayRecord(r domain.SprayRecord) (domain.SprayRecord, error) {
	return updateRecord(s, &s.sprays, r, func(prev domain.SprayRecord, next *domain.SprayRecord) {
		next.Timestamp, next.SeasonYear, next.FarmID, next.DeletedAt = prev.Timestamp, prev.SeasonYear, prev.FarmID, prev.DeletedAt
	})
}

// DeleteSprayRecords removes applications locally.
func (s *Store) DeleteSprayRecords(ids ...string) {
	hardDelete(s, &s.sprays, ids)
}

// AddHayHarvestRecord stamps a cutting with the active season.
func (s *Store) AddHayHarvestRecord(in domain.HayHarvestRecord) (domain.HayHarvestRecord, error) {
	if in.FieldID == "" {
		return domain.HayHarvestRecord{}, invalid("hay record needs a field")
	}
	if in.BaleType == "" {
		in.BaleType = domain.BaleRound
	}
	if in.BaleType != domain.BaleRound && in.BaleType != domain.BaleSquare {
		return domain.HayHarvestRecord{}, invalid("bale type %q", in.BaleType)
	}
	if in.CuttingNumber <= 0 {
		in.CuttingNumber = 1
	}
	s.mu.RLock()
	rec := in
	s.stampLocked(&rec.ID, &rec.Timestamp, &rec.SeasonYear, &rec.FarmID, false)
	rec.DeletedAt = nil
	rec.FieldName = s.fieldNameLocked(rec.FieldID, rec.FieldName)
	s.mu.RUnlock()
	addRecord(s, &s.hay, rec, true)
	return rec, nil
}

// UpdateHayHarvestRecord replaces a cutting; id, timestamp and season are kept.
func (s *Store) UpdateHayHarvestRecord(r domain.HayHarvestRecord) (domain.HayHarvestRecord, error) {
	return updateRecord(s, &s.hay, r, func(prev domain.HayHarvestRecord, next *domain.HayHarvestRecord) {
		next.Timestamp, next.SeasonYear, next.FarmID, next.DeletedAt = prev.Timestamp, prev.SeasonYear, prev.FarmID, prev.DeletedAt
	})
}

// DeleteHayHarvestRecords removes cuttings locally.
func (s *Store) DeleteHayHarvestRecords(ids ...string) {
	hardDelete(s, &s.hay, ids)
}

// AddGrainMovement records bushels into or out of a bin. A non-zero
// Timestamp on the input is kept, so movements can be back-dated.
func (s *Store) AddGrainMovement(in domain.GrainMovement) (domain.GrainMovement, error) {
	if err := validateMovement(in); err != nil {
		return domain.GrainMovement{}, err
	}
	s.mu.RLock()
	rec := in
	s.stampLocked(&rec.ID, &rec.Timestamp, &rec.SeasonYear, &rec.FarmID, true)
	rec.DeletedAt = nil
	rec.BinName = s.binNameLocked(rec.BinID, rec.BinName)
	s.mu.RUnlock()
	addRecord(s, &s.grain, rec, true)
	return rec, nil
}

func validateMovement(m domain.GrainMovement) error {
	if m.BinID == "" {
		return invalid("grain movement needs a bin")
	}
	if !m.Type.Valid() {
		return invalid("grain movement type %q", m.Type)
	}
	if m.Bushels < 0 {
		return invalid("grain movement bushels %v is negative", m.Bushels)
	}
	return nil
}

// UpdateGrainMovement replaces a movement; id, timestamp, season and the
// harvest link are kept.
func (s *Store) UpdateGrainMovement(m domain.GrainMovement) (domain.GrainMovement, error) {
	if err := validateMovement(m); err != nil {
		return domain.GrainMovement{}, err
	}
	return updateRecord(s, &s.grain, m, func(prev domain.GrainMovement, next *domain.GrainMovement) {
		next.Timestamp, next.SeasonYear, next.FarmID, next.DeletedAt = prev.Timestamp, prev.SeasonYear, prev.FarmID, prev.DeletedAt
		next.HarvestID = prev.HarvestID
	})
}

// DeleteGrainMovements removes movements locally.
func (s *Store) DeleteGrainMovements(ids ...string) {
	hardDelete(s, &s.grain, ids)
}

// AddSavedSeed stores a reusable seed variety name.
func (s *Store) AddSavedSeed(name string) (domain.SavedSeed, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.SavedSeed{}, invalid("seed name required")
	}
	s.mu.RLock()
	seed := domain.SavedSeed{ID: s.newID(), Name: name, FarmID: s.farmID}
	s.mu.RUnlock()
	addRecord(s, &s.seeds, seed, false)
	return seed, nil
}

// UpdateSavedSeed renames a seed.
func (s *Store) UpdateSavedSeed(seed domain.SavedSeed) (domain.SavedSeed, error) {
	if strings.TrimSpace(seed.Name) == "" {
		return domain.SavedSeed{}, invalid("seed name required")
	}
	return updateRecord(s, &s.seeds, seed, func(prev domain.SavedSeed, next *domain.SavedSeed) {
		next.FarmID, next.DeletedAt = prev.FarmID, prev.DeletedAt
	})
}

// DeleteSavedSeeds soft-deletes seeds.
func (s *Store) DeleteSavedSeeds(ids ...string) {
	softDelete(s, &s.seeds, ids, func(seed *domain.SavedSeed, at time.Time) { seed.DeletedAt = &at })
}

// AddSprayRecipe stores a named mix.
func (s *Store) AddSprayRecipe(in domain.SprayRecipe) (domain.SprayRecipe, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.SprayRecipe{}, invalid("recipe name required")
	}
	s.mu.RLock()
	in.ID, in.FarmID, in.DeletedAt = s.newID(), s.farmID, nil
	s.mu.RUnlock()
	if in.Products == nil {
		in.Products = []domain.SprayProduct{}
	}
	addRecord(s, &s.recipes, in, false)
	return in, nil
}

// UpdateSprayRecipe replaces a recipe by id.
func (s *Store) UpdateSprayRecipe(r domain.SprayRecipe) (domain.SprayRecipe, error) {
	if strings.TrimSpace(r.Name) == "" {
		return domain.SprayRecipe{}, invalid("recipe name required")
	}
	if r.Products == nil {
		r.Products = []domain.SprayProduct{}
	}
	return updateRecord(s, &s.recipes, r, func(prev domain.SprayRecipe, next *domain.SprayRecipe) {
		next.FarmID, next.DeletedAt = prev.FarmID, prev.DeletedAt
	})
}

// DeleteSprayRecipes soft-deletes recipes.
func (s *Store) DeleteSprayRecipes(ids ...string) {
	softDelete(s, &s.recipes, ids, func(r *domain.SprayRecipe, at time.Time) { r.DeletedAt = &at })
}
