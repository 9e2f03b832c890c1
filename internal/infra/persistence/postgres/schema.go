package postgres

import (
	"fmt"
	"strings"

	"farmledger/pkg/domain"
)

type column struct {
	name string
	ddl  string
}

// common columns carried by every entity table
var scopeColumns = []column{
	{"id", "TEXT PRIMARY KEY"},
	{"farm_id", "TEXT"},
	{"deleted_at", "TIMESTAMPTZ"},
}

var recordColumns = []column{
	{"timestamp", "TIMESTAMPTZ NOT NULL DEFAULT now()"},
	{"season_year", "INTEGER"},
}

var fsaColumns = []column{
	{"fsa_farm_number", "TEXT"},
	{"fsa_tract_number", "TEXT"},
}

func cols(groups ...[]column) []column {
	var out []column
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var tableColumns = map[string][]column{
	domain.TableFields: cols(scopeColumns, fsaColumns, []column{
		{"name", "TEXT NOT NULL"},
		{"acreage", "DOUBLE PRECISION"},
		{"lat", "DOUBLE PRECISION"},
		{"lng", "DOUBLE PRECISION"},
		{"boundary", "JSONB"},
		{"fsa_field_number", "TEXT"},
		{"producer_share", "DOUBLE PRECISION"},
		{"irrigation_practice", "TEXT"},
		{"intended_use", "TEXT"},
	}),
	domain.TableBins: cols(scopeColumns, []column{
		{"name", "TEXT NOT NULL"},
		{"capacity", "INTEGER"},
	}),
	domain.TablePlantRecords: cols(scopeColumns, recordColumns, fsaColumns, []column{
		{"field_id", "TEXT"},
		{"field_name", "TEXT"},
		{"seed_variety", "TEXT"},
		{"acreage", "DOUBLE PRECISION"},
		{"crop", "TEXT"},
		{"fsa_field_number", "TEXT"},
		{"intended_use", "TEXT"},
		{"plant_date", "TEXT"},
		{"producer_share", "DOUBLE PRECISION"},
		{"irrigation_practice", "TEXT"},
	}),
	domain.TableSprayRecords: cols(scopeColumns, recordColumns, []column{
		{"field_id", "TEXT"},
		{"field_name", "TEXT"},
		{"product", "TEXT"},
		{"products", "JSONB"},
		{"wind_speed", "DOUBLE PRECISION"},
		{"temperature", "DOUBLE PRECISION"},
		{"applicator_name", "TEXT"},
		{"license_number", "TEXT"},
		{"epa_reg_number", "TEXT"},
		{"application_rate", "TEXT"},
		{"rate_unit", "TEXT"},
		{"mixture_rate", "TEXT"},
		{"total_mixture_volume", "TEXT"},
		{"target_pest", "TEXT"},
		{"wind_direction", "TEXT"},
		{"relative_humidity", "DOUBLE PRECISION"},
		{"spray_date", "TEXT"},
		{"start_time", "TEXT"},
		{"involved_technicians", "TEXT"},
		{"site_address", "TEXT"},
		{"treated_area_size", "TEXT"},
		{"total_amount_applied", "TEXT"},
		{"equipment_id", "TEXT"},
		{"is_premixed", "BOOLEAN NOT NULL DEFAULT false"},
	}),
	domain.TableHarvestRecords: cols(scopeColumns, recordColumns, fsaColumns, []column{
		{"field_id", "TEXT"},
		{"field_name", "TEXT"},
		{"destination", "TEXT NOT NULL CHECK (destination IN ('bin','town'))"},
		{"bin_id", "TEXT"},
		{"moisture_percent", "DOUBLE PRECISION"},
		{"landlord_split_percent", "DOUBLE PRECISION"},
		{"bushels", "DOUBLE PRECISION"},
		{"crop", "TEXT"},
		{"harvest_date", "TEXT"},
	}),
	domain.TableHayRecords: cols(scopeColumns, recordColumns, []column{
		{"field_id", "TEXT"},
		{"field_name", "TEXT"},
		{"date", "TEXT"},
		{"bale_count", "INTEGER"},
		{"cutting_number", "INTEGER"},
		{"bale_type", "TEXT"},
		{"temperature", "DOUBLE PRECISION"},
		{"conditions", "TEXT"},
	}),
	domain.TableGrainMovements: cols(scopeColumns, recordColumns, []column{
		{"bin_id", "TEXT"},
		{"bin_name", "TEXT"},
		{"type", "TEXT NOT NULL CHECK (type IN ('in','out'))"},
		{"bushels", "DOUBLE PRECISION"},
		{"moisture_percent", "DOUBLE PRECISION"},
		{"source_field_name", "TEXT"},
		{"price", "DOUBLE PRECISION"},
		{"destination", "TEXT"},
		{"harvest_id", "TEXT"},
	}),
	domain.TableSavedSeeds: cols(scopeColumns, []column{
		{"name", "TEXT NOT NULL"},
	}),
	domain.TableSprayRecipes: cols(scopeColumns, []column{
		{"name", "TEXT NOT NULL"},
		{"products", "JSONB"},
		{"applicator_name", "TEXT"},
		{"license_number", "TEXT"},
		{"target_pest", "TEXT"},
		{"epa_reg_number", "TEXT"},
	}),
}

const profilesDDL = `CREATE TABLE IF NOT EXISTS profiles (
	user_id TEXT PRIMARY KEY,
	farm_id TEXT,
	active_season INTEGER,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Statements returns the DDL creating every entity table, its farm index and
// the profile table.
func Statements() []string {
	var stmts []string
	for _, table := range domain.EntityTables {
		defs := make([]string, 0, len(tableColumns[table]))
		for _, c := range tableColumns[table] {
			defs = append(defs, fmt.Sprintf("%s %s", quoteIdent(c.name), c.ddl))
		}
		stmts = append(stmts,
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", table, strings.Join(defs, ",\n\t")),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_farm_idx ON %s (farm_id) WHERE deleted_at IS NULL", table, table),
		)
	}
	return append(stmts, profilesDDL)
}

func knownColumns(table string) (map[string]bool, error) {
	defs, ok := tableColumns[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	known := make(map[string]bool, len(defs))
	for _, c := range defs {
		known[c.name] = true
	}
	return known, nil
}

func columnNames(table string) []string {
	defs := tableColumns[table]
	names := make([]string, 0, len(defs))
	for _, c := range defs {
		names = append(names, c.name)
	}
	return names
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
