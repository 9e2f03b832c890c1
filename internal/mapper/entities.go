package mapper

import (
	"errors"
	"fmt"

	"farmledger/pkg/domain"
)

// FieldFromRemote decodes a fields row. A present boundary must be a GeoJSON polygon.
func FieldFromRemote(row domain.Row) (domain.Field, error) {
	r := newReader(domain.TableFields, row)
	f := domain.Field{
		ID:                 r.str("id"),
		Name:               r.str("name"),
		Acreage:            r.float("acreage"),
		Lat:                r.float("lat"),
		Lng:                r.float("lng"),
		Boundary:           r.rawJSON("boundary"),
		FSAFarmNumber:      r.str("fsa_farm_number"),
		FSATractNumber:     r.str("fsa_tract_number"),
		FSAFieldNumber:     r.str("fsa_field_number"),
		ProducerShare:      r.floatPtr("producer_share"),
		IrrigationPractice: domain.IrrigationPractice(r.str("irrigation_practice")),
		IntendedUse:        r.str("intended_use"),
		FarmID:             r.str("farm_id"),
		DeletedAt:          r.timePtr("deleted_at"),
	}
	if err := r.done(f.ID); err != nil {
		return domain.Field{}, err
	}
	if f.Boundary != nil {
		if _, err := domain.ParseBoundary(f.Boundary); err != nil {
			return domain.Field{}, fmt.Errorf("%w: fields.boundary: %v", domain.ErrInvalidRow, err)
		}
	}
	if !f.IrrigationPractice.Valid() {
		return domain.Field{}, fmt.Errorf("%w: fields.irrigation_practice: %q", domain.ErrInvalidRow, f.IrrigationPractice)
	}
	return f, nil
}

// FieldToRemote encodes a field as a fields row.
func FieldToRemote(f domain.Field) domain.Row {
	w := writer{
		"id":      f.ID,
		"name":    f.Name,
		"acreage": f.Acreage,
		"lat":     f.Lat,
		"lng":     f.Lng,
	}
	w.rawJSON("boundary", f.Boundary)
	w.str("fsa_farm_number", f.FSAFarmNumber)
	w.str("fsa_tract_number", f.FSATractNumber)
	w.str("fsa_field_number", f.FSAFieldNumber)
	w.floatPtr("producer_share", f.ProducerShare)
	w.str("irrigation_practice", string(f.IrrigationPractice))
	w.str("intended_use", f.IntendedUse)
	w.scope(f.FarmID, f.DeletedAt)
	return domain.Row(w)
}

// BinFromRemote decodes a bins row.
func BinFromRemote(row domain.Row) (domain.Bin, error) {
	r := newReader(domain.TableBins, row)
	b := domain.Bin{
		ID:        r.str("id"),
		Name:      r.str("name"),
		Capacity:  r.integer("capacity"),
		FarmID:    r.str("farm_id"),
		DeletedAt: r.timePtr("deleted_at"),
	}
	if err := r.done(b.ID); err != nil {
		return domain.Bin{}, err
	}
	return b, nil
}

// BinToRemote encodes a bin as a bins row.
func BinToRemote(b domain.Bin) domain.Row {
	w := writer{"id": b.ID, "name": b.Name, "capacity": b.Capacity}
	w.scope(b.FarmID, b.DeletedAt)
	return domain.Row(w)
}

// PlantFromRemote decodes a plant_records row.
func PlantFromRemote(row domain.Row) (domain.PlantRecord, error) {
	r := newReader(domain.TablePlantRecords, row)
	p := domain.PlantRecord{
		ID:                 r.str("id"),
		FieldID:            r.str("field_id"),
		FieldName:          r.str("field_name"),
		SeedVariety:        r.str("seed_variety"),
		Acreage:            r.float("acreage"),
		Timestamp:          r.millis("timestamp"),
		Crop:               r.str("crop"),
		FSAFarmNumber:      r.str("fsa_farm_number"),
		FSATractNumber:     r.str("fsa_tract_number"),
		FSAFieldNumber:     r.str("fsa_field_number"),
		IntendedUse:        r.str("intended_use"),
		PlantDate:          r.str("plant_date"),
		ProducerShare:      r.floatPtr("producer_share"),
		IrrigationPractice: domain.IrrigationPractice(r.str("irrigation_practice")),
		SeasonYear:         r.integer("season_year"),
		FarmID:             r.str("farm_id"),
		DeletedAt:          r.timePtr("deleted_at"),
	}
	if err := r.done(p.ID); err != nil {
		return domain.PlantRecord{}, err
	}
	return p, nil
}

// PlantToRemote encodes a plant record as a plant_records row.
func PlantToRemote(p domain.PlantRecord) domain.Row {
	w := writer{
		"id":           p.ID,
		"field_id":     p.FieldID,
		"field_name":   p.FieldName,
		"seed_variety": p.SeedVariety,
		"acreage":      p.Acreage,
		"timestamp":    FormatMillis(p.Timestamp),
	}
	w.str("crop", p.Crop)
	w.str("fsa_farm_number", p.FSAFarmNumber)
	w.str("fsa_tract_number", p.FSATractNumber)
	w.str("fsa_field_number", p.FSAFieldNumber)
	w.str("intended_use", p.IntendedUse)
	w.str("plant_date", p.PlantDate)
	w.floatPtr("producer_share", p.ProducerShare)
	w.str("irrigation_practice", string(p.IrrigationPractice))
	w.integer("season_year", p.SeasonYear)
	w.scope(p.FarmID, p.DeletedAt)
	return domain.Row(w)
}

// SprayFromRemote decodes a spray_records row.
func SprayFromRemote(row domain.Row) (domain.SprayRecord, error) {
	r := newReader(domain.TableSprayRecords, row)
	s := domain.SprayRecord{
		ID:                  r.str("id"),
		FieldID:             r.str("field_id"),
		FieldName:           r.str("field_name"),
		Product:             r.str("product"),
		Products:            r.products("products"),
		WindSpeed:           r.float("wind_speed"),
		Temperature:         r.float("temperature"),
		Timestamp:           r.millis("timestamp"),
		SeasonYear:          r.integer("season_year"),
		ApplicatorName:      r.str("applicator_name"),
		LicenseNumber:       r.str("license_number"),
		EPARegNumber:        r.str("epa_reg_number"),
		ApplicationRate:     r.str("application_rate"),
		RateUnit:            r.str("rate_unit"),
		MixtureRate:         r.str("mixture_rate"),
		TotalMixtureVolume:  r.str("total_mixture_volume"),
		TargetPest:          r.str("target_pest"),
		WindDirection:       r.str("wind_direction"),
		RelativeHumidity:    r.floatPtr("relative_humidity"),
		SprayDate:           r.str("spray_date"),
		StartTime:           r.str("start_time"),
		InvolvedTechnicians: r.str("involved_technicians"),
		SiteAddress:         r.str("site_address"),
		TreatedAreaSize:     r.str("treated_area_size"),
		TotalAmountApplied:  r.str("total_amount_applied"),
		EquipmentID:         r.str("equipment_id"),
		IsPremixed:          r.boolean("is_premixed"),
		FarmID:              r.str("farm_id"),
		DeletedAt:           r.timePtr("deleted_at"),
	}
	if err := r.done(s.ID); err != nil {
		return domain.SprayRecord{}, err
	}
	return s, nil
}

// SprayToRemote encodes a spray record as a spray_records row.
func SprayToRemote(s domain.SprayRecord) domain.Row {
	w := writer{
		"id":          s.ID,
		"field_id":    s.FieldID,
		"field_name":  s.FieldName,
		"product":     s.Product,
		"wind_speed":  s.WindSpeed,
		"temperature": s.Temperature,
		"timestamp":   FormatMillis(s.Timestamp),
		"is_premixed": s.IsPremixed,
	}
	w.products("products", s.Products)
	w.integer("season_year", s.SeasonYear)
	w.str("applicator_name", s.ApplicatorName)
	w.str("license_number", s.LicenseNumber)
	w.str("epa_reg_number", s.EPARegNumber)
	w.str("application_rate", s.ApplicationRate)
	w.str("rate_unit", s.RateUnit)
	w.str("mixture_rate", s.MixtureRate)
	w.str("total_mixture_volume", s.TotalMixtureVolume)
	w.str("target_pest", s.TargetPest)
	w.str("wind_direction", s.WindDirection)
	w.floatPtr("relative_humidity", s.RelativeHumidity)
	w.str("spray_date", s.SprayDate)
	w.str("start_time", s.StartTime)
	w.str("involved_technicians", s.InvolvedTechnicians)
	w.str("site_address", s.SiteAddress)
	w.str("treated_area_size", s.TreatedAreaSize)
	w.str("total_amount_applied", s.TotalAmountApplied)
	w.str("equipment_id", s.EquipmentID)
	w.scope(s.FarmID, s.DeletedAt)
	return domain.Row(w)
}

// HarvestFromRemote decodes a harvest_records row. The destination must be
// bin or town.
func HarvestFromRemote(row domain.Row) (domain.HarvestRecord, error) {
	r := newReader(domain.TableHarvestRecords, row)
	h := domain.HarvestRecord{
		ID:                   r.str("id"),
		FieldID:              r.str("field_id"),
		FieldName:            r.str("field_name"),
		Destination:          domain.HarvestDestination(r.str("destination")),
		BinID:                r.str("bin_id"),
		MoisturePercent:      r.float("moisture_percent"),
		LandlordSplitPercent: r.float("landlord_split_percent"),
		Bushels:              r.float("bushels"),
		Timestamp:            r.millis("timestamp"),
		SeasonYear:           r.integer("season_year"),
		Crop:                 r.str("crop"),
		FSAFarmNumber:        r.str("fsa_farm_number"),
		FSATractNumber:       r.str("fsa_tract_number"),
		HarvestDate:          r.str("harvest_date"),
		FarmID:               r.str("farm_id"),
		DeletedAt:            r.timePtr("deleted_at"),
	}
	if err := r.done(h.ID); err != nil {
		return domain.HarvestRecord{}, err
	}
	if !h.Destination.Valid() {
		return domain.HarvestRecord{}, fmt.Errorf("%w: harvest_records.destination: %q", domain.ErrInvalidRow, h.Destination)
	}
	return h, nil
}

// HarvestToRemote encodes a harvest record as a harvest_records row.
func HarvestToRemote(h domain.HarvestRecord) domain.Row {
	w := writer{
		"id":                     h.ID,
		"field_id":               h.FieldID,
		"field_name":             h.FieldName,
		"destination":            string(h.Destination),
		"moisture_percent":       h.MoisturePercent,
		"landlord_split_percent": h.LandlordSplitPercent,
		"bushels":                h.Bushels,
		"timestamp":              FormatMillis(h.Timestamp),
	}
	w.str("bin_id", h.BinID)
	w.integer("season_year", h.SeasonYear)
	w.str("crop", h.Crop)
	w.str("fsa_farm_number", h.FSAFarmNumber)
	w.str("fsa_tract_number", h.FSATractNumber)
	w.str("harvest_date", h.HarvestDate)
	w.scope(h.FarmID, h.DeletedAt)
	return domain.Row(w)
}

// HayFromRemote decodes a hay_harvest_records row.
func HayFromRemote(row domain.Row) (domain.HayHarvestRecord, error) {
	r := newReader(domain.TableHayRecords, row)
	h := domain.HayHarvestRecord{
		ID:            r.str("id"),
		FieldID:       r.str("field_id"),
		FieldName:     r.str("field_name"),
		Date:          r.str("date"),
		BaleCount:     r.integer("bale_count"),
		CuttingNumber: r.integer("cutting_number"),
		BaleType:      domain.BaleType(r.str("bale_type")),
		Temperature:   r.floatPtr("temperature"),
		Conditions:    r.str("conditions"),
		SeasonYear:    r.integer("season_year"),
		Timestamp:     r.millis("timestamp"),
		FarmID:        r.str("farm_id"),
		DeletedAt:     r.timePtr("deleted_at"),
	}
	if err := r.done(h.ID); err != nil {
		return domain.HayHarvestRecord{}, err
	}
	return h, nil
}

// HayToRemote encodes a hay record as a hay_harvest_records row.
func HayToRemote(h domain.HayHarvestRecord) domain.Row {
	w := writer{
		"id":             h.ID,
		"field_id":       h.FieldID,
		"field_name":     h.FieldName,
		"date":           h.Date,
		"bale_count":     h.BaleCount,
		"cutting_number": h.CuttingNumber,
		"bale_type":      string(h.BaleType),
		"timestamp":      FormatMillis(h.Timestamp),
	}
	w.floatPtr("temperature", h.Temperature)
	w.str("conditions", h.Conditions)
	w.integer("season_year", h.SeasonYear)
	w.scope(h.FarmID, h.DeletedAt)
	return domain.Row(w)
}

// GrainFromRemote decodes a grain_movements row. The type must be in or out.
func GrainFromRemote(row domain.Row) (domain.GrainMovement, error) {
	r := newReader(domain.TableGrainMovements, row)
	m := domain.GrainMovement{
		ID:              r.str("id"),
		BinID:           r.str("bin_id"),
		BinName:         r.str("bin_name"),
		Type:            domain.MovementType(r.str("type")),
		Bushels:         r.float("bushels"),
		MoisturePercent: r.float("moisture_percent"),
		SourceFieldName: r.str("source_field_name"),
		Timestamp:       r.millis("timestamp"),
		SeasonYear:      r.integer("season_year"),
		Price:           r.floatPtr("price"),
		Destination:     r.str("destination"),
		HarvestID:       r.str("harvest_id"),
		FarmID:          r.str("farm_id"),
		DeletedAt:       r.timePtr("deleted_at"),
	}
	if err := r.done(m.ID); err != nil {
		return domain.GrainMovement{}, err
	}
	if !m.Type.Valid() {
		return domain.GrainMovement{}, fmt.Errorf("%w: grain_movements.type: %q", domain.ErrInvalidRow, m.Type)
	}
	return m, nil
}

// GrainToRemote encodes a movement as a grain_movements row.
func GrainToRemote(m domain.GrainMovement) domain.Row {
	w := writer{
		"id":               m.ID,
		"bin_id":           m.BinID,
		"bin_name":         m.BinName,
		"type":             string(m.Type),
		"bushels":          m.Bushels,
		"moisture_percent": m.MoisturePercent,
		"timestamp":        FormatMillis(m.Timestamp),
	}
	w.str("source_field_name", m.SourceFieldName)
	w.integer("season_year", m.SeasonYear)
	w.floatPtr("price", m.Price)
	w.str("destination", m.Destination)
	w.str("harvest_id", m.HarvestID)
	w.scope(m.FarmID, m.DeletedAt)
	return domain.Row(w)
}

// SeedFromRemote decodes a saved_seeds row.
func SeedFromRemote(row domain.Row) (domain.SavedSeed, error) {
	r := newReader(domain.TableSavedSeeds, row)
	s := domain.SavedSeed{
		ID:        r.str("id"),
		Name:      r.str("name"),
		FarmID:    r.str("farm_id"),
		DeletedAt: r.timePtr("deleted_at"),
	}
	if err := r.done(s.ID); err != nil {
		return domain.SavedSeed{}, err
	}
	return s, nil
}

// SeedToRemote encodes a saved seed as a saved_seeds row.
func SeedToRemote(s domain.SavedSeed) domain.Row {
	w := writer{"id": s.ID, "name": s.Name}
	w.scope(s.FarmID, s.DeletedAt)
	return domain.Row(w)
}

// RecipeFromRemote decodes a spray_recipes row.
func RecipeFromRemote(row domain.Row) (domain.SprayRecipe, error) {
	r := newReader(domain.TableSprayRecipes, row)
	rec := domain.SprayRecipe{
		ID:             r.str("id"),
		Name:           r.str("name"),
		Products:       r.products("products"),
		ApplicatorName: r.str("applicator_name"),
		LicenseNumber:  r.str("license_number"),
		TargetPest:     r.str("target_pest"),
		EPARegNumber:   r.str("epa_reg_number"),
		FarmID:         r.str("farm_id"),
		DeletedAt:      r.timePtr("deleted_at"),
	}
	if err := r.done(rec.ID); err != nil {
		return domain.SprayRecipe{}, err
	}
	return rec, nil
}

// RecipeToRemote encodes a spray recipe as a spray_recipes row.
func RecipeToRemote(rec domain.SprayRecipe) domain.Row {
	w := writer{"id": rec.ID, "name": rec.Name}
	w.products("products", rec.Products)
	w.str("applicator_name", rec.ApplicatorName)
	w.str("license_number", rec.LicenseNumber)
	w.str("target_pest", rec.TargetPest)
	w.str("epa_reg_number", rec.EPARegNumber)
	w.scope(rec.FarmID, rec.DeletedAt)
	return domain.Row(w)
}

// FromRows decodes every row with fn. Malformed rows are left out of the
// result and their errors joined into the returned error.
func FromRows[T any](rows []domain.Row, fn func(domain.Row) (T, error)) ([]T, error) {
	out := make([]T, 0, len(rows))
	var errs []error
	for _, row := range rows {
		v, err := fn(row)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, v)
	}
	return out, errors.Join(errs...)
}

// ToRows encodes every value with fn.
func ToRows[T any](values []T, fn func(T) domain.Row) []domain.Row {
	out := make([]domain.Row, 0, len(values))
	for _, v := range values {
		out = append(out, fn(v))
	}
	return out
}
