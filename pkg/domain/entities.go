// Package domain defines the farm record entities, value types and the
// persistence contracts shared by the farm data store and its backends.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies the type of record stored in the farm domain.
type EntityType string

// Supported entity type identifiers used for cache keys, remote tables and log fields.
const (
	// EntityField identifies a field (a named, bounded piece of land).
	EntityField EntityType = "field"
	// EntityBin identifies a grain bin.
	EntityBin EntityType = "bin"
	// EntityPlantRecord identifies a planting operation.
	EntityPlantRecord EntityType = "plant_record"
	// EntitySprayRecord identifies a pesticide application.
	EntitySprayRecord EntityType = "spray_record"
	// EntityHarvestRecord identifies a grain harvest.
	EntityHarvestRecord EntityType = "harvest_record"
	// EntityHayHarvestRecord identifies a hay cutting.
	EntityHayHarvestRecord EntityType = "hay_harvest_record"
	// EntityGrainMovement identifies grain moved into or out of a bin.
	EntityGrainMovement EntityType = "grain_movement"
	// EntitySavedSeed identifies a reusable seed variety name.
	EntitySavedSeed EntityType = "saved_seed"
	// EntitySprayRecipe identifies a reusable spray mix.
	EntitySprayRecipe EntityType = "spray_recipe"
)

// IrrigationPractice is the FSA-578 irrigation classification.
type IrrigationPractice string

// FSA irrigation practices.
const (
	IrrigationIrrigated    IrrigationPractice = "Irrigated"
	IrrigationNonIrrigated IrrigationPractice = "Non-Irrigated"
)

// Valid reports whether p is unset or a known practice.
func (p IrrigationPractice) Valid() bool {
	return p == "" || p == IrrigationIrrigated || p == IrrigationNonIrrigated
}

// HarvestDestination is where harvested grain went.
type HarvestDestination string

// Harvest destinations. A bin destination always carries a bin id; town never does.
const (
	DestinationBin  HarvestDestination = "bin"
	DestinationTown HarvestDestination = "town"
)

// Valid reports whether d is a known destination.
func (d HarvestDestination) Valid() bool {
	return d == DestinationBin || d == DestinationTown
}

// MovementType is the direction of a grain movement.
type MovementType string

// Grain movement directions.
const (
	MovementIn  MovementType = "in"
	MovementOut MovementType = "out"
)

// Valid reports whether t is a known direction.
func (t MovementType) Valid() bool {
	return t == MovementIn || t == MovementOut
}

// BaleType is the hay bale shape.
type BaleType string

// Bale types.
const (
	BaleRound  BaleType = "Round"
	BaleSquare BaleType = "Square"
)

// Entity is implemented by every stored record.
type Entity interface {
	EntityID() string
}

// Field is a named piece of farmland with FSA identifiers.
type Field struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Acreage            float64            `json:"acreage"`
	Lat                float64            `json:"lat"`
	Lng                float64            `json:"lng"`
	Boundary           json.RawMessage    `json:"boundary,omitempty"` // GeoJSON polygon
	FSAFarmNumber      string             `json:"fsaFarmNumber,omitempty"`
	FSATractNumber     string             `json:"fsaTractNumber,omitempty"`
	FSAFieldNumber     string             `json:"fsaFieldNumber,omitempty"`
	ProducerShare      *float64           `json:"producerShare,omitempty"` // 0..100
	IrrigationPractice IrrigationPractice `json:"irrigationPractice,omitempty"`
	IntendedUse        string             `json:"intendedUse,omitempty"`
	FarmID             string             `json:"farm_id,omitempty"`
	DeletedAt          *time.Time         `json:"deleted_at,omitempty"`
}

// Bin is an on-farm grain storage bin. Its inventory is derived from movements.
type Bin struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Capacity  int        `json:"capacity"`
	FarmID    string     `json:"farm_id,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// PlantRecord is a planting operation on a field. FieldName is a snapshot taken at creation.
type PlantRecord struct {
	ID                 string             `json:"id"`
	FieldID            string             `json:"fieldId"`
	FieldName          string             `json:"fieldName"`
	SeedVariety        string             `json:"seedVariety"`
	Acreage            float64            `json:"acreage"`
	Timestamp          int64              `json:"timestamp"`
	Crop               string             `json:"crop,omitempty"`
	FSAFarmNumber      string             `json:"fsaFarmNumber,omitempty"`
	FSATractNumber     string             `json:"fsaTractNumber,omitempty"`
	FSAFieldNumber     string             `json:"fsaFieldNumber,omitempty"`
	IntendedUse        string             `json:"intendedUse,omitempty"`
	PlantDate          string             `json:"plantDate,omitempty"`
	ProducerShare      *float64           `json:"producerShare,omitempty"`
	IrrigationPractice IrrigationPractice `json:"irrigationPractice,omitempty"`
	SeasonYear         int                `json:"seasonYear,omitempty"`
	FarmID             string             `json:"farm_id,omitempty"`
	DeletedAt          *time.Time         `json:"deleted_at,omitempty"`
}

// SprayProduct is one line item of a spray mix.
type SprayProduct struct {
	Product      string `json:"product"`
	Rate         string `json:"rate"`
	RateUnit     string `json:"rateUnit"`
	EPARegNumber string `json:"epaRegNumber,omitempty"`
}

// SprayRecord is a pesticide application with the readings required for compliance logs.
type SprayRecord struct {
	ID                  string         `json:"id"`
	FieldID             string         `json:"fieldId"`
	FieldName           string         `json:"fieldName"`
	Product             string         `json:"product"`
	Products            []SprayProduct `json:"products,omitempty"`
	WindSpeed           float64        `json:"windSpeed"`
	Temperature         float64        `json:"temperature"`
	Timestamp           int64          `json:"timestamp"`
	SeasonYear          int            `json:"seasonYear,omitempty"`
	ApplicatorName      string         `json:"applicatorName,omitempty"`
	LicenseNumber       string         `json:"licenseNumber,omitempty"`
	EPARegNumber        string         `json:"epaRegNumber,omitempty"`
	ApplicationRate     string         `json:"applicationRate,omitempty"`
	RateUnit            string         `json:"rateUnit,omitempty"`
	MixtureRate         string         `json:"mixtureRate,omitempty"`
	TotalMixtureVolume  string         `json:"totalMixtureVolume,omitempty"`
	TargetPest          string         `json:"targetPest,omitempty"`
	WindDirection       string         `json:"windDirection,omitempty"`
	RelativeHumidity    *float64       `json:"relativeHumidity,omitempty"`
	SprayDate           string         `json:"sprayDate,omitempty"`
	StartTime           string         `json:"startTime,omitempty"`
	InvolvedTechnicians string         `json:"involvedTechnicians,omitempty"`
	SiteAddress         string         `json:"siteAddress,omitempty"`
	TreatedAreaSize     string         `json:"treatedAreaSize,omitempty"`
	TotalAmountApplied  string         `json:"totalAmountApplied,omitempty"`
	EquipmentID         string         `json:"equipmentId,omitempty"`
	IsPremixed          bool           `json:"isPremixed,omitempty"`
	FarmID              string         `json:"farm_id,omitempty"`
	DeletedAt           *time.Time     `json:"deleted_at,omitempty"`
}

// HarvestRecord is grain harvested from a field into a bin or hauled to town.
type HarvestRecord struct {
	ID                   string             `json:"id"`
	FieldID              string             `json:"fieldId"`
	FieldName            string             `json:"fieldName"`
	Destination          HarvestDestination `json:"destination"`
	BinID                string             `json:"binId,omitempty"`
	MoisturePercent      float64            `json:"moisturePercent"`
	LandlordSplitPercent float64            `json:"landlordSplitPercent"`
	Bushels              float64            `json:"bushels"`
	Timestamp            int64              `json:"timestamp"`
	SeasonYear           int                `json:"seasonYear,omitempty"`
	Crop                 string             `json:"crop,omitempty"`
	FSAFarmNumber        string             `json:"fsaFarmNumber,omitempty"`
	FSATractNumber       string             `json:"fsaTractNumber,omitempty"`
	HarvestDate          string             `json:"harvestDate,omitempty"`
	FarmID               string             `json:"farm_id,omitempty"`
	DeletedAt            *time.Time         `json:"deleted_at,omitempty"`
}

// HayHarvestRecord is one hay cutting on a field.
type HayHarvestRecord struct {
	ID            string     `json:"id"`
	FieldID       string     `json:"fieldId"`
	FieldName     string     `json:"fieldName"`
	Date          string     `json:"date"`
	BaleCount     int        `json:"baleCount"`
	CuttingNumber int        `json:"cuttingNumber"`
	BaleType      BaleType   `json:"baleType"`
	Temperature   *float64   `json:"temperature,omitempty"`
	Conditions    string     `json:"conditions,omitempty"`
	SeasonYear    int        `json:"seasonYear,omitempty"`
	Timestamp     int64      `json:"timestamp"`
	FarmID        string     `json:"farm_id,omitempty"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// GrainMovement moves bushels into or out of a bin. HarvestID links an inbound
// movement to the harvest record that produced it.
type GrainMovement struct {
	ID              string       `json:"id"`
	BinID           string       `json:"binId"`
	BinName         string       `json:"binName"`
	Type            MovementType `json:"type"`
	Bushels         float64      `json:"bushels"`
	MoisturePercent float64      `json:"moisturePercent"`
	SourceFieldName string       `json:"sourceFieldName,omitempty"`
	Timestamp       int64        `json:"timestamp"`
	SeasonYear      int          `json:"seasonYear,omitempty"`
	Price           *float64     `json:"price,omitempty"` // per bushel
	Destination     string       `json:"destination,omitempty"`
	HarvestID       string       `json:"harvestId,omitempty"`
	FarmID          string       `json:"farm_id,omitempty"`
	DeletedAt       *time.Time   `json:"deleted_at,omitempty"`
}

// Signed returns the bushels with the sign of the movement direction.
func (m GrainMovement) Signed() float64 {
	if m.Type == MovementOut {
		return -m.Bushels
	}
	return m.Bushels
}

// SavedSeed is a reusable seed variety name.
type SavedSeed struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	FarmID    string     `json:"farm_id,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// SprayRecipe is a named multi-product mix with default applicator details.
type SprayRecipe struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Products       []SprayProduct `json:"products"`
	ApplicatorName string         `json:"applicatorName,omitempty"`
	LicenseNumber  string         `json:"licenseNumber,omitempty"`
	TargetPest     string         `json:"targetPest,omitempty"`
	EPARegNumber   string         `json:"epaRegNumber,omitempty"`
	FarmID         string         `json:"farm_id,omitempty"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

// WeatherSnapshot captures conditions at the time of an application.
type WeatherSnapshot struct {
	WindSpeed     float64 `json:"wind"`
	Temperature   float64 `json:"temp"`
	Humidity      float64 `json:"humidity"`
	WindDirection string  `json:"windDirection"`
}

func (f Field) EntityID() string            { return f.ID }
func (b Bin) EntityID() string              { return b.ID }
func (r PlantRecord) EntityID() string      { return r.ID }
func (r SprayRecord) EntityID() string      { return r.ID }
func (r HarvestRecord) EntityID() string    { return r.ID }
func (r HayHarvestRecord) EntityID() string { return r.ID }
func (m GrainMovement) EntityID() string    { return m.ID }
func (s SavedSeed) EntityID() string        { return s.ID }
func (r SprayRecipe) EntityID() string      { return r.ID }

// Deleted reports whether the field has been soft-deleted.
func (f Field) Deleted() bool { return f.DeletedAt != nil }

// Deleted reports whether the bin has been soft-deleted.
func (b Bin) Deleted() bool { return b.DeletedAt != nil }

// Deleted reports whether the movement has been soft-deleted.
func (m GrainMovement) Deleted() bool { return m.DeletedAt != nil }

// Deleted reports whether the seed has been soft-deleted.
func (s SavedSeed) Deleted() bool { return s.DeletedAt != nil }

// Deleted reports whether the recipe has been soft-deleted.
func (r SprayRecipe) Deleted() bool { return r.DeletedAt != nil }
