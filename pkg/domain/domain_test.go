package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotFoundErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("update: %w", NotFoundError{Entity: EntityBin, ID: "b9"})
	require.ErrorIs(t, err, ErrNotFound)
	require.EqualError(t, err, "update: bin b9 not found")

	var nf NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "b9", nf.ID)
	require.NotErrorIs(t, err, ErrInvalidSeason)
}

func TestTableForCoversEveryEntityTable(t *testing.T) {
	entities := []EntityType{
		EntityField, EntityBin, EntityPlantRecord, EntitySprayRecord, EntityHarvestRecord,
		EntityHayHarvestRecord, EntityGrainMovement, EntitySavedSeed, EntitySprayRecipe,
	}
	tables := make([]string, 0, len(entities))
	for _, e := range entities {
		table := TableFor(e)
		require.NotEmpty(t, table, e)
		tables = append(tables, table)
	}
	require.Equal(t, EntityTables, tables)
	require.Empty(t, TableFor("profile"))
}

func TestEnumValidity(t *testing.T) {
	require.True(t, IrrigationPractice("").Valid())
	require.True(t, IrrigationNonIrrigated.Valid())
	require.False(t, IrrigationPractice("Flood").Valid())

	require.True(t, DestinationTown.Valid())
	require.False(t, HarvestDestination("").Valid())

	require.True(t, MovementOut.Valid())
	require.False(t, MovementType("sideways").Valid())
}

func TestGrainMovementSigned(t *testing.T) {
	require.Equal(t, 120.5, GrainMovement{Type: MovementIn, Bushels: 120.5}.Signed())
	require.Equal(t, -80.0, GrainMovement{Type: MovementOut, Bushels: 80}.Signed())
}

func TestFieldJSONUsesCamelCaseAndOmitsEmpty(t *testing.T) {
	share := 50.0
	data, err := json.Marshal(Field{ID: "f1", Name: "Back Forty", Acreage: 40, FSAFarmNumber: "1234", ProducerShare: &share})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"f1","name":"Back Forty","acreage":40,"lat":0,"lng":0,"fsaFarmNumber":"1234","producerShare":50}`, string(data))
}

const squareBoundary = `{"type":"Polygon","coordinates":[[[0,0],[0.01,0],[0.01,0.01],[0,0.01],[0,0]]]}`

func TestParseBoundary(t *testing.T) {
	polygon, err := ParseBoundary(json.RawMessage(squareBoundary))
	require.NoError(t, err)

	lat, lng := BoundaryCenter(polygon)
	require.InDelta(t, 0.005, lat, 1e-9)
	require.InDelta(t, 0.005, lng, 1e-9)
	require.InDelta(t, 305.5, BoundaryAcres(polygon), 0.5)

	feature := `{"type":"Feature","properties":{},"geometry":` + squareBoundary + `}`
	_, err = ParseBoundary(json.RawMessage(feature))
	require.NoError(t, err)
}

func TestParseBoundaryRejectsBadShapes(t *testing.T) {
	cases := map[string]string{
		"empty":    ``,
		"garbage":  `{`,
		"point":    `{"type":"Point","coordinates":[1,2]}`,
		"tiny":     `{"type":"Polygon","coordinates":[[[0,0],[1,0],[0,0]]]}`,
		"no rings": `{"type":"Polygon","coordinates":[]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBoundary(json.RawMessage(raw))
			require.Error(t, err)
		})
	}
}
