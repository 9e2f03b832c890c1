package farm

import (
	"fmt"
	"math"

	"farmledger/pkg/domain"
)

// DefaultFields is the field set a fresh install starts with. Ids are left
// empty and minted per install when the store first hydrates.
func DefaultFields() []domain.Field {
	return []domain.Field{
		{Name: "Back Forty", Acreage: 40, Lat: 41.88, Lng: -93.09},
		{Name: "Creek Bottom", Acreage: 65, Lat: 41.87, Lng: -93.10},
		{Name: "Hilltop", Acreage: 80, Lat: 41.89, Lng: -93.08},
		{Name: "North 40", Acreage: 40, Lat: 41.90, Lng: -93.09},
		{Name: "River Bottom", Acreage: 120, Lat: 41.86, Lng: -93.11},
		{Name: "South Section", Acreage: 160, Lat: 41.85, Lng: -93.09},
	}
}

// DefaultBins is the bin set a fresh install starts with. Ids are minted per
// install like DefaultFields.
func DefaultBins() []domain.Bin {
	return []domain.Bin{
		{Name: "Bin #1", Capacity: 10000},
		{Name: "Bin #2", Capacity: 15000},
		{Name: "Bin #3", Capacity: 8000},
	}
}

// DemoSummary counts the records SeedDemoData created.
type DemoSummary struct {
	Plant   int
	Spray   int
	Harvest int
	Hay     int
}

type demoCrop struct {
	crop, variety string
	yield         float64
	product       domain.SprayProduct
	pest          string
}

var demoCrops = []demoCrop{
	{
		crop: "Corn", variety: "DKC 64-35", yield: 185,
		product: domain.SprayProduct{Product: "Atrazine 4L", Rate: "1", RateUnit: "qt/ac", EPARegNumber: "100-497"},
		pest:    "Broadleaf weeds",
	},
	{
		crop: "Soybeans", variety: "P22A40X", yield: 55,
		product: domain.SprayProduct{Product: "Roundup PowerMAX", Rate: "32", RateUnit: "oz/ac", EPARegNumber: "524-549"},
		pest:    "Waterhemp",
	},
}

// SeedDemoData fills the active season with a planting, an application and a
// harvest for every active field, plus a hay cutting on every third one. It
// goes through the regular add operations, so the records sync like any other.
func (s *Store) SeedDemoData() (DemoSummary, error) {
	var sum DemoSummary
	season := s.ActiveSeason()
	bins := s.Bins()
	for i, f := range s.Fields() {
		c := demoCrops[i%len(demoCrops)]
		if _, err := s.AddPlantRecord(domain.PlantRecord{
			FieldID:     f.ID,
			SeedVariety: c.variety,
			Crop:        c.crop,
			PlantDate:   fmt.Sprintf("%d-04-%02d", season, 20+i%10),
		}); err != nil {
			return sum, err
		}
		sum.Plant++

		humidity := 55.0 + float64(i)
		if _, err := s.AddSprayRecord(domain.SprayRecord{
			FieldID:          f.ID,
			Products:         []domain.SprayProduct{c.product},
			WindSpeed:        float64(5 + i%6),
			Temperature:      float64(68 + i%10),
			WindDirection:    "SW",
			RelativeHumidity: &humidity,
			ApplicatorName:   "Demo Applicator",
			LicenseNumber:    "MO-12345",
			TargetPest:       c.pest,
			SprayDate:        fmt.Sprintf("%d-06-%02d", season, 1+i%28),
			StartTime:        "08:30",
			TreatedAreaSize:  fmt.Sprintf("%g", f.Acreage),
			EquipmentID:      "Sprayer 1",
		}); err != nil {
			return sum, err
		}
		sum.Spray++

		h := domain.HarvestRecord{
			FieldID:         f.ID,
			Destination:     domain.DestinationTown,
			MoisturePercent: 15.5,
			Bushels:         math.Round(f.Acreage * c.yield),
			Crop:            c.crop,
			HarvestDate:     fmt.Sprintf("%d-10-%02d", season, 1+i%28),
		}
		if len(bins) > 0 && i%2 == 0 {
			h.Destination = domain.DestinationBin
			h.BinID = bins[(i/2)%len(bins)].ID
		}
		if _, err := s.AddHarvestRecord(h); err != nil {
			return sum, err
		}
		sum.Harvest++

		if i%3 == 2 {
			if _, err := s.AddHayHarvestRecord(domain.HayHarvestRecord{
				FieldID:       f.ID,
				Date:          fmt.Sprintf("%d-06-%02d", season, 10+i%18),
				BaleCount:     40 + i,
				CuttingNumber: 1,
				BaleType:      domain.BaleRound,
				Conditions:    "Sunny",
			}); err != nil {
				return sum, err
			}
			sum.Hay++
		}
	}
	return sum, nil
}
