package farm

import (
	"math"
	"slices"
	"sort"
	"strings"

	"farmledger/pkg/domain"
)

// UnknownName is shown for a reference that no longer resolves.
const UnknownName = "Unknown"

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func activeOnly[T any](items []T, deleted func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if !deleted(item) {
			out = append(out, item)
		}
	}
	return out
}

// Fields returns the active fields sorted by name, case-insensitively, with
// exact-case order breaking ties.
func (s *Store) Fields() []domain.Field {
	s.mu.RLock()
	out := activeOnly(s.fields.items, domain.Field.Deleted)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// AllFields returns every field including soft-deleted ones, in stored order.
func (s *Store) AllFields() []domain.Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields.snapshot()
}

// FieldByID looks a field up directly, soft-deleted or not.
func (s *Store) FieldByID(id string) (domain.Field, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields.get(id)
}

// FieldName resolves a field id to its current name or UnknownName.
func (s *Store) FieldName(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fieldNameLocked(id, "")
}

// Bins returns the active bins.
func (s *Store) Bins() []domain.Bin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeOnly(s.bins.items, domain.Bin.Deleted)
}

// BinByID looks a bin up directly, soft-deleted or not.
func (s *Store) BinByID(id string) (domain.Bin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bins.get(id)
}

// BinName resolves a bin id to its current name or UnknownName.
func (s *Store) BinName(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.binNameLocked(id, "")
}

// PlantRecords returns every planting in stored order.
func (s *Store) PlantRecords() []domain.PlantRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plants.snapshot()
}

// SprayRecords returns every application in stored order.
func (s *Store) SprayRecords() []domain.SprayRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sprays.snapshot()
}

// HarvestRecords returns every harvest in stored order.
func (s *Store) HarvestRecords() []domain.HarvestRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.harvests.snapshot()
}

// HayHarvestRecords returns every cutting in stored order.
func (s *Store) HayHarvestRecords() []domain.HayHarvestRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hay.snapshot()
}

// GrainMovements returns the movements that are not deleted.
func (s *Store) GrainMovements() []domain.GrainMovement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeOnly(s.grain.items, domain.GrainMovement.Deleted)
}

// SavedSeeds returns the active seeds.
func (s *Store) SavedSeeds() []domain.SavedSeed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeOnly(s.seeds.items, domain.SavedSeed.Deleted)
}

// SprayRecipes returns the active recipes.
func (s *Store) SprayRecipes() []domain.SprayRecipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeOnly(s.recipes.items, domain.SprayRecipe.Deleted)
}

// BinTotal sums signed bushels over the bin's movements. It is recomputed on
// every call and may be negative.
func (s *Store) BinTotal(binID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.binTotalLocked(binID)
}

func (s *Store) binTotalLocked(binID string) float64 {
	total := 0.0
	for _, m := range s.grain.items {
		if m.BinID == binID && !m.Deleted() {
			total += m.Signed()
		}
	}
	return total
}

// BinLevel is a bin's derived inventory.
type BinLevel struct {
	Bin          domain.Bin
	Total        float64
	FillPercent  float64
	Negative     bool
	OverCapacity bool
}

// BinInventory reports the level of every active bin.
func (s *Store) BinInventory() []BinLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bins := activeOnly(s.bins.items, domain.Bin.Deleted)
	out := make([]BinLevel, 0, len(bins))
	for _, b := range bins {
		total := s.binTotalLocked(b.ID)
		level := BinLevel{Bin: b, Total: total, Negative: total < 0}
		if b.Capacity > 0 {
			level.FillPercent = roundTo(total/float64(b.Capacity)*100, 1)
			level.OverCapacity = total > float64(b.Capacity)
		}
		out = append(out, level)
	}
	return out
}

// SeasonRecords holds the records stamped with one season.
type SeasonRecords struct {
	Season   int
	Plant    []domain.PlantRecord
	Spray    []domain.SprayRecord
	Harvest  []domain.HarvestRecord
	Hay      []domain.HayHarvestRecord
	Movement []domain.GrainMovement
}

func bySeason[T any](items []T, season func(T) int, year int) []T {
	out := make([]T, 0)
	for _, item := range items {
		if season(item) == year {
			out = append(out, item)
		}
	}
	return out
}

// RecordsForSeason returns the records belonging to year.
func (s *Store) RecordsForSeason(year int) SeasonRecords {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SeasonRecords{
		Season:   year,
		Plant:    bySeason(s.plants.items, func(r domain.PlantRecord) int { return r.SeasonYear }, year),
		Spray:    bySeason(s.sprays.items, func(r domain.SprayRecord) int { return r.SeasonYear }, year),
		Harvest:  bySeason(s.harvests.items, func(r domain.HarvestRecord) int { return r.SeasonYear }, year),
		Hay:      bySeason(s.hay.items, func(r domain.HayHarvestRecord) int { return r.SeasonYear }, year),
		Movement: bySeason(activeOnly(s.grain.items, domain.GrainMovement.Deleted), func(m domain.GrainMovement) int { return m.SeasonYear }, year),
	}
}

// Seasons lists the active season and every season present on a record,
// newest first.
func (s *Store) Seasons() []int {
	s.mu.RLock()
	years := []int{s.activeSeason}
	for _, r := range s.plants.items {
		years = append(years, r.SeasonYear)
	}
	for _, r := range s.sprays.items {
		years = append(years, r.SeasonYear)
	}
	for _, r := range s.harvests.items {
		years = append(years, r.SeasonYear)
	}
	for _, r := range s.hay.items {
		years = append(years, r.SeasonYear)
	}
	for _, m := range s.grain.items {
		years = append(years, m.SeasonYear)
	}
	s.mu.RUnlock()
	years = slices.DeleteFunc(years, func(y int) bool { return y <= 0 })
	slices.Sort(years)
	years = slices.Compact(years)
	slices.Reverse(years)
	return years
}
