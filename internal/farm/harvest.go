package farm

import (
	"farmledger/pkg/domain"
)

func validateHarvest(h *domain.HarvestRecord) error {
	if h.FieldID == "" {
		return invalid("harvest record needs a field")
	}
	if !h.Destination.Valid() {
		return invalid("harvest destination %q", h.Destination)
	}
	if h.Destination == domain.DestinationBin && h.BinID == "" {
		return invalid("bin destination needs a bin")
	}
	if h.Destination == domain.DestinationTown {
		h.BinID = ""
	}
	if h.Bushels < 0 {
		return invalid("harvest bushels %v is negative", h.Bushels)
	}
	return nil
}

// movementForLocked builds the inbound movement paired with a bin harvest.
func (s *Store) movementForLocked(h domain.HarvestRecord) domain.GrainMovement {
	return domain.GrainMovement{
		ID:              s.newID(),
		BinID:           h.BinID,
		BinName:         s.binNameLocked(h.BinID, ""),
		Type:            domain.MovementIn,
		Bushels:         h.Bushels,
		MoisturePercent: h.MoisturePercent,
		SourceFieldName: h.FieldName,
		Timestamp:       h.Timestamp,
		SeasonYear:      h.SeasonYear,
		HarvestID:       h.ID,
		FarmID:          h.FarmID,
	}
}

// AddHarvestRecord stamps a harvest with the active season. A bin harvest
// also creates the paired inbound movement in the same local mutation. If the
// remote rejects the harvest both are rolled back.
func (s *Store) AddHarvestRecord(in domain.HarvestRecord) (domain.HarvestRecord, error) {
	if err := validateHarvest(&in); err != nil {
		return domain.HarvestRecord{}, err
	}
	s.mu.Lock()
	rec := in
	s.stampLocked(&rec.ID, &rec.Timestamp, &rec.SeasonYear, &rec.FarmID, false)
	rec.DeletedAt = nil
	rec.FieldName = s.fieldNameLocked(rec.FieldID, rec.FieldName)
	s.harvests.items = append(s.harvests.items, rec)
	saveCollection(s, &s.harvests)
	writes := []PendingMutation{writeOf(&s.harvests, opInsert, rec)}
	var movementID string
	if rec.Destination == domain.DestinationBin {
		m := s.movementForLocked(rec)
		movementID = m.ID
		s.grain.items = append(s.grain.items, m)
		saveCollection(s, &s.grain)
		writes = append(writes, writeOf(&s.grain, opInsert, m))
	}
	s.mu.Unlock()

	s.push(func(error) {
		rollbackAdd(s, &s.harvests, rec.ID)
		if movementID != "" {
			rollbackAdd(s, &s.grain, movementID)
		}
	}, writes...)
	return rec, nil
}

// UpdateHarvestRecord replaces a harvest and carries bushels, moisture, bin
// and field name onto its linked movement. Switching to town drops the
// movement; switching to a bin creates one.
func (s *Store) UpdateHarvestRecord(h domain.HarvestRecord) (domain.HarvestRecord, error) {
	if err := validateHarvest(&h); err != nil {
		return domain.HarvestRecord{}, err
	}
	s.mu.Lock()
	i := s.harvests.index(h.ID)
	if i < 0 {
		s.mu.Unlock()
		return domain.HarvestRecord{}, domain.NotFoundError{Entity: domain.EntityHarvestRecord, ID: h.ID}
	}
	prev := s.harvests.items[i]
	h.Timestamp, h.SeasonYear, h.FarmID, h.DeletedAt = prev.Timestamp, prev.SeasonYear, prev.FarmID, prev.DeletedAt
	s.harvests.items[i] = h
	saveCollection(s, &s.harvests)

	writes := []PendingMutation{writeOf(&s.harvests, opUpsert, h)}
	j := s.linkedMovementIndexLocked(prev)
	switch {
	case j >= 0 && h.Destination == domain.DestinationBin:
		m := s.grain.items[j]
		m.BinID = h.BinID
		m.BinName = s.binNameLocked(h.BinID, "")
		m.Bushels = h.Bushels
		m.MoisturePercent = h.MoisturePercent
		m.SourceFieldName = h.FieldName
		m.HarvestID = h.ID
		s.grain.items[j] = m
		writes = append(writes, writeOf(&s.grain, opUpsert, m))
	case j >= 0:
		id := s.grain.items[j].ID
		s.grain.remove(idSet([]string{id}))
		writes = append(writes, softDeleteOf(&s.grain, []string{id}, s.now().UTC()))
	case h.Destination == domain.DestinationBin:
		m := s.movementForLocked(h)
		s.grain.items = append(s.grain.items, m)
		writes = append(writes, writeOf(&s.grain, opInsert, m))
	}
	if len(writes) > 1 {
		saveCollection(s, &s.grain)
	}
	s.mu.Unlock()
	s.push(nil, writes...)
	return h, nil
}

// DeleteHarvestRecords removes harvests and their linked movements locally.
func (s *Store) DeleteHarvestRecords(ids ...string) {
	set := idSet(ids)
	if len(set) == 0 {
		return
	}
	at := s.now().UTC()
	s.mu.Lock()
	var linked []string
	for _, h := range s.harvests.items {
		if _, ok := set[h.ID]; !ok {
			continue
		}
		if j := s.linkedMovementIndexLocked(h); j >= 0 {
			linked = append(linked, s.grain.items[j].ID)
		}
	}
	if removed := s.harvests.remove(set); len(removed) > 0 {
		saveCollection(s, &s.harvests)
	}
	if len(linked) > 0 {
		s.grain.remove(idSet(linked))
		saveCollection(s, &s.grain)
	}
	s.mu.Unlock()

	writes := []PendingMutation{softDeleteOf(&s.harvests, setKeys(set), at)}
	if len(linked) > 0 {
		writes = append(writes, softDeleteOf(&s.grain, linked, at))
	}
	s.push(nil, writes...)
}

// linkedMovementIndexLocked finds the movement paired with h: by explicit
// link first, then for unlinked legacy movements by source field name and
// identical timestamp.
func (s *Store) linkedMovementIndexLocked(h domain.HarvestRecord) int {
	for i, m := range s.grain.items {
		if m.HarvestID == h.ID {
			return i
		}
	}
	if h.Destination != domain.DestinationBin {
		return -1
	}
	for i, m := range s.grain.items {
		if m.HarvestID != "" || m.Type != domain.MovementIn {
			continue
		}
		if m.SourceFieldName == h.FieldName && m.Timestamp == h.Timestamp && (h.BinID == "" || m.BinID == h.BinID) {
			return i
		}
	}
	return -1
}

// LinkedMovement returns the inbound movement produced by the harvest.
func (s *Store) LinkedMovement(harvestID string) (domain.GrainMovement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.harvests.get(harvestID)
	if !ok {
		return domain.GrainMovement{}, false
	}
	if j := s.linkedMovementIndexLocked(h); j >= 0 {
		return s.grain.items[j], true
	}
	return domain.GrainMovement{}, false
}

