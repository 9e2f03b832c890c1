package mapper

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"farmledger/pkg/domain"
)

const (
	fixedMillis = int64(1735787045000)
	fixedISO    = "2025-01-02T03:04:05.000Z"
	squareField = `{"type":"Polygon","coordinates":[[[-93.1,41.88],[-93.09,41.88],[-93.09,41.89],[-93.1,41.89],[-93.1,41.88]]]}`
)

func ptr[T any](v T) *T { return &v }

func deletedAt() *time.Time {
	t := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &t
}

func TestMapperRoundTripDomain(t *testing.T) {
	products := []domain.SprayProduct{
		{Product: "Roundup PowerMax", Rate: "32", RateUnit: "oz", EPARegNumber: "524-549"},
		{Product: "AMS", Rate: "17", RateUnit: "lb"},
	}
	cases := []struct {
		name  string
		check func(t *testing.T)
	}{
		{"field", func(t *testing.T) {
			in := domain.Field{ID: "f1", Name: "North 80", Acreage: 80, Lat: 41.9, Lng: -93.09,
				Boundary: json.RawMessage(squareField), FSAFarmNumber: "1234", FSATractNumber: "567",
				FSAFieldNumber: "3", ProducerShare: ptr(50.0), IrrigationPractice: domain.IrrigationIrrigated,
				IntendedUse: "Grain", FarmID: "farm-1", DeletedAt: deletedAt()}
			out, err := FieldFromRemote(FieldToRemote(in))
			require.NoError(t, err)
			require.Equal(t, in, out)
		}},
		{"bin", func(t *testing.T) {
			in := domain.Bin{ID: "b1", Name: "Bin #1", Capacity: 10000, FarmID: "farm-1"}
			out, err := BinFromRemote(BinToRemote(in))
			require.NoError(t, err)
			require.Equal(t, in, out)
		}},
		{"plant", func(t *testing.T) {
			in := domain.PlantRecord{ID: "p1", FieldID: "f1", FieldName: "North 80", SeedVariety: "DKC 64-35",
				Acreage: 40, Timestamp: fixedMillis, Crop: "Corn", PlantDate: "2025-05-01", ProducerShare: ptr(100.0),
				IrrigationPractice: domain.IrrigationNonIrrigated, SeasonYear: 2025, FarmID: "farm-1"}
			out, err := PlantFromRemote(PlantToRemote(in))
			require.NoError(t, err)
			require.Equal(t, in, out)
		}},
		{"spray", func(t *testing.T) {
			in := domain.SprayRecord{ID: "s1", FieldID: "f1", FieldName: "North 80", Product: "Roundup PowerMax",
				Products: products, WindSpeed: 6, Temperature: 72, Timestamp: fixedMillis, SeasonYear: 2025,
				ApplicatorName: "J. Doe", LicenseNumber: "L-1", WindDirection: "SSW", RelativeHumidity: ptr(55.0),
				TreatedAreaSize: "40", TotalMixtureVolume: "400 gal", EquipmentID: "RG-1", IsPremixed: true, FarmID: "farm-1"}
			out, err := SprayFromRemote(SprayToRemote(in))
			require.NoError(t, err)
			require.Equal(t, in, out)
		}},
		{"harvest", func(t *testing.T) {
			in := domain.HarvestRecord{ID: "h1", FieldID: "f1", FieldName: "North 80", Destination: domain.DestinationBin,
				BinID: "b1", MoisturePercent: 15.5, LandlordSplitPercent: 33, Bushels: 8200, Timestamp: fixedMillis,
				SeasonYear: 2025, Crop: "Corn", HarvestDate: "2025-10-12", FarmID: "farm-1"}
			out, err := HarvestFromRemote(HarvestToRemote(in))
			require.NoError(t, err)
			require.Equal(t, in, out)
		}},
		{"hay", func(t *testing.T) {
			in := domain.HayHarvestRecord{ID: "y1", FieldID: "f2", FieldName: "Creek Bottom", Date: "2025-06-10",
				BaleCount: 42, CuttingNumber: 2, BaleType: domain.BaleRound, Temperature: ptr(81.0), Conditions: "Sunny",
				SeasonYear: 2025, Timestamp: fixedMillis, FarmID: "farm-1"}
			out, err := HayFromRemote(HayToRemote(in))
			require.NoError(t, err)
			require.Equal(t, in, out)
		}},
		{"grain", func(t *testing.T) {
			in := domain.GrainMovement{ID: "g1", BinID: "b1", BinName: "Bin #1", Type: domain.MovementOut, Bushels: 300,
				MoisturePercent: 15, Timestamp: fixedMillis, SeasonYear: 2025, Price: ptr(4.25), Destination: "ADM",
				HarvestID: "h1", FarmID: "farm-1"}
			out, err := GrainFromRemote(GrainToRemote(in))
			require.NoError(t, err)
			require.Equal(t, in, out)
		}},
		{"seed", func(t *testing.T) {
			in := domain.SavedSeed{ID: "sd1", Name: "P1197", FarmID: "farm-1", DeletedAt: deletedAt()}
			out, err := SeedFromRemote(SeedToRemote(in))
			require.NoError(t, err)
			require.Equal(t, in, out)
		}},
		{"recipe", func(t *testing.T) {
			in := domain.SprayRecipe{ID: "r1", Name: "Burndown", Products: products, ApplicatorName: "J. Doe",
				LicenseNumber: "L-1", TargetPest: "Marestail", FarmID: "farm-1"}
			out, err := RecipeFromRemote(RecipeToRemote(in))
			require.NoError(t, err)
			require.Equal(t, in, out)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, tc.check)
	}
}

func TestMapperRoundTripRow(t *testing.T) {
	row := domain.Row{
		"id":                     "h9",
		"field_id":               "f3",
		"field_name":             "Hilltop",
		"destination":            "town",
		"bin_id":                 nil,
		"moisture_percent":       14.2,
		"landlord_split_percent": 0.0,
		"bushels":                1200.0,
		"timestamp":              fixedISO,
		"season_year":            2024,
		"crop":                   "Soybeans",
		"fsa_farm_number":        nil,
		"fsa_tract_number":       nil,
		"harvest_date":           nil,
		"farm_id":                "farm-1",
		"deleted_at":             nil,
	}
	rec, err := HarvestFromRemote(row)
	require.NoError(t, err)
	require.Equal(t, fixedMillis, rec.Timestamp)
	require.Equal(t, row, HarvestToRemote(rec))

	recipeRow := domain.Row{
		"id":              "r2",
		"name":            "Pre",
		"products":        `[{"product":"Atrazine","rate":"1","rateUnit":"qt","epaRegNumber":"100-497"}]`,
		"applicator_name": nil,
		"license_number":  nil,
		"target_pest":     "Waterhemp",
		"epa_reg_number":  nil,
		"farm_id":         "farm-1",
		"deleted_at":      nil,
	}
	recipe, err := RecipeFromRemote(recipeRow)
	require.NoError(t, err)
	require.Len(t, recipe.Products, 1)
	require.Equal(t, recipeRow, RecipeToRemote(recipe))
}

func TestMapperAcceptsDriverValueShapes(t *testing.T) {
	row := domain.Row{
		"id":          "g2",
		"bin_id":      "b2",
		"bin_name":    []byte("Bin #2"),
		"type":        "in",
		"bushels":     int64(500),
		"price":       "3.95",
		"timestamp":   time.UnixMilli(fixedMillis),
		"season_year": int32(2025),
	}
	m, err := GrainFromRemote(row)
	require.NoError(t, err)
	require.Equal(t, "Bin #2", m.BinName)
	require.Equal(t, 500.0, m.Bushels)
	require.NotNil(t, m.Price)
	require.InDelta(t, 3.95, *m.Price, 1e-9)
	require.Equal(t, fixedMillis, m.Timestamp)
	require.Equal(t, 2025, m.SeasonYear)

	spray, err := SprayFromRemote(domain.Row{
		"id":       "s2",
		"products": []any{map[string]any{"product": "Dual II", "rate": "1.33", "rateUnit": "pt"}},
	})
	require.NoError(t, err)
	require.Equal(t, []domain.SprayProduct{{Product: "Dual II", Rate: "1.33", RateUnit: "pt"}}, spray.Products)
}

func TestMapperNullColumnsAreUnset(t *testing.T) {
	p, err := PlantFromRemote(domain.Row{"id": "p2", "producer_share": nil, "season_year": nil})
	require.NoError(t, err)
	require.Nil(t, p.ProducerShare)
	require.Zero(t, p.SeasonYear)
	require.Zero(t, p.Timestamp)
	require.Nil(t, p.DeletedAt)
}

func TestMapperRejectsMalformedRows(t *testing.T) {
	cases := map[string]func() error{
		"missing id": func() error { _, err := BinFromRemote(domain.Row{"name": "x"}); return err },
		"wrong type": func() error { _, err := BinFromRemote(domain.Row{"id": "b", "capacity": "lots"}); return err },
		"fractional int": func() error {
			_, err := HayFromRemote(domain.Row{"id": "y", "bale_count": 1.5})
			return err
		},
		"bad timestamp": func() error {
			_, err := PlantFromRemote(domain.Row{"id": "p", "timestamp": "yesterday"})
			return err
		},
		"bad destination": func() error {
			_, err := HarvestFromRemote(domain.Row{"id": "h", "destination": "barn"})
			return err
		},
		"bad movement type": func() error {
			_, err := GrainFromRemote(domain.Row{"id": "g", "type": "sideways"})
			return err
		},
		"bad products": func() error {
			_, err := RecipeFromRemote(domain.Row{"id": "r", "products": `{"product":1}`})
			return err
		},
		"bad boundary": func() error {
			_, err := FieldFromRemote(domain.Row{"id": "f", "boundary": `{"type":"Point","coordinates":[1,2]}`})
			return err
		},
		"bad irrigation": func() error {
			_, err := FieldFromRemote(domain.Row{"id": "f", "irrigation_practice": "Flooded"})
			return err
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			err := fn()
			require.Error(t, err)
			require.True(t, errors.Is(err, domain.ErrInvalidRow), "got %v", err)
		})
	}
}

func TestFormatMillisDefaultsToNow(t *testing.T) {
	prev := now
	now = func() time.Time { return time.UnixMilli(fixedMillis) }
	t.Cleanup(func() { now = prev })

	row := SeedToRemote(domain.SavedSeed{ID: "s"})
	require.Nil(t, row["farm_id"])
	require.Equal(t, fixedISO, PlantToRemote(domain.PlantRecord{ID: "p"})["timestamp"])
}

func TestFromRowsSkipsMalformedRows(t *testing.T) {
	rows := []domain.Row{{"id": "b1"}, {"name": "no id"}, {"id": "b2", "capacity": "lots"}, {"id": "b3"}}
	bins, err := FromRows(rows, BinFromRemote)
	require.ErrorIs(t, err, domain.ErrInvalidRow)
	require.Len(t, bins, 2)
	require.Equal(t, "b1", bins[0].ID)
	require.Equal(t, "b3", bins[1].ID)

	bins, err = FromRows(rows[:1], BinFromRemote)
	require.NoError(t, err)
	require.Len(t, ToRows(bins, BinToRemote), 1)
}
