package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"farmledger/pkg/domain"
)

// passthrough lets slice arguments such as id lists reach the mock unchanged,
// the way pgx accepts them.
type passthrough struct{}

func (passthrough) ConvertValue(v any) (driver.Value, error) { return v, nil }

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStoreFromDB(db, WithTimeout(time.Second)), mock
}

func TestSelectRendersFilterAndScansRows(t *testing.T) {
	store, mock := newMockStore(t)
	query := `SELECT "id", "farm_id", "deleted_at", "name", "capacity" FROM bins WHERE farm_id = $1 AND deleted_at IS NULL AND id = ANY($2)`
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("farm-1", []string{"b1", "b2"}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "farm_id", "deleted_at", "name", "capacity"}).
			AddRow("b1", "farm-1", nil, "Bin #1", int64(10000)))

	rows, err := store.Select(context.Background(), domain.TableBins, domain.Filter{FarmID: "farm-1", IDs: []string{"b1", "b2"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Bin #1", rows[0]["name"])
	require.Equal(t, int64(10000), rows[0]["capacity"])
	require.Nil(t, rows[0]["deleted_at"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectIncludeDeletedOmitsDeletedClause(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "farm_id", "deleted_at", "name" FROM saved_seeds WHERE farm_id = $1`)).
		WithArgs("farm-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "farm_id", "deleted_at", "name"}))
	rows, err := store.Select(context.Background(), domain.TableSavedSeeds, domain.Filter{FarmID: "farm-1", IncludeDeleted: true})
	require.NoError(t, err)
	require.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEmitsSortedColumns(t *testing.T) {
	store, mock := newMockStore(t)
	query := `INSERT INTO bins ("capacity","deleted_at","farm_id","id","name") VALUES ($1,$2,$3,$4,$5),($6,$7,$8,$9,$10)`
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs(100, nil, "farm-1", "b1", "Small", 200, nil, "farm-1", "b2", "Large").
		WillReturnResult(sqlmock.NewResult(0, 2))
	err := store.Insert(context.Background(), domain.TableBins, []domain.Row{
		{"id": "b1", "farm_id": "farm-1", "name": "Small", "capacity": 100, "deleted_at": nil},
		{"id": "b2", "farm_id": "farm-1", "name": "Large", "capacity": 200, "deleted_at": nil},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUpdatesNonKeyColumns(t *testing.T) {
	store, mock := newMockStore(t)
	query := `INSERT INTO saved_seeds ("farm_id","id","name") VALUES ($1,$2,$3) ON CONFLICT ("id") DO UPDATE SET "name"=EXCLUDED."name" WHERE saved_seeds."farm_id" IS NOT DISTINCT FROM EXCLUDED."farm_id"`
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs("farm-1", "s1", "P1197").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Upsert(context.Background(), domain.TableSavedSeeds, []domain.Row{{"id": "s1", "farm_id": "farm-1", "name": "P1197"}}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWithOnlyKeysDoesNothingOnConflict(t *testing.T) {
	store, mock := newMockStore(t)
	query := `INSERT INTO saved_seeds ("farm_id","id") VALUES ($1,$2) ON CONFLICT ("id") DO NOTHING`
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs("farm-1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.Upsert(context.Background(), domain.TableSavedSeeds, []domain.Row{{"id": "s1", "farm_id": "farm-1"}}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSoftDeleteByIDs(t *testing.T) {
	store, mock := newMockStore(t)
	query := `UPDATE plant_records SET "deleted_at" = $1 WHERE farm_id = $2 AND deleted_at IS NULL AND id = ANY($3)`
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs("2025-01-02T03:04:05.000Z", "farm-1", []string{"p1", "p2"}).
		WillReturnResult(sqlmock.NewResult(0, 2))
	err := store.Update(context.Background(), domain.TablePlantRecords,
		domain.Row{"deleted_at": "2025-01-02T03:04:05.000Z", "id": "skipped"},
		domain.Filter{FarmID: "farm-1", IDs: []string{"p1", "p2"}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWritesRejectUnknownTablesAndColumns(t *testing.T) {
	store, _ := newMockStore(t)
	ctx := context.Background()
	require.Error(t, store.Insert(ctx, "sheep", []domain.Row{{"id": "x"}}))
	require.Error(t, store.Insert(ctx, domain.TableBins, []domain.Row{{"id": "x", "colour": "red"}}))
	require.Error(t, store.Insert(ctx, domain.TableBins, []domain.Row{{"name": "no id"}}))
	require.Error(t, store.Update(ctx, domain.TableBins, domain.Row{"bogus; DROP": 1}, domain.Filter{}))
	_, err := store.Select(ctx, "sheep", domain.Filter{})
	require.Error(t, err)
	require.NoError(t, store.Insert(ctx, domain.TableBins, nil))
}

func TestInsertWrapsDriverErrors(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO grain_movements`).WillReturnError(errors.New("connection refused"))
	err := store.Insert(context.Background(), domain.TableGrainMovements, []domain.Row{{"id": "g1"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "insert grain_movements")
}

func TestProfileRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	updated := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT farm_id, active_season, updated_at FROM profiles WHERE user_id = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"farm_id", "active_season", "updated_at"}).AddRow("farm-1", int64(2025), updated))
	p, ok, err := store.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.Profile{UserID: "u1", FarmID: "farm-1", ActiveSeason: 2025, UpdatedAt: updated}, p)

	mock.ExpectQuery(`FROM profiles`).WithArgs("u2").WillReturnRows(sqlmock.NewRows([]string{"farm_id", "active_season", "updated_at"}))
	_, ok, err = store.GetProfile(context.Background(), "u2")
	require.NoError(t, err)
	require.False(t, ok)

	mock.ExpectExec(`INSERT INTO profiles`).
		WithArgs("u1", sql.NullString{String: "farm-1", Valid: true}, 2026, updated).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.UpsertProfile(context.Background(), domain.Profile{UserID: "u1", FarmID: "farm-1", ActiveSeason: 2026, UpdatedAt: updated}))
	require.Error(t, store.UpsertProfile(context.Background(), domain.Profile{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaAppliesEveryStatement(t *testing.T) {
	store, mock := newMockStore(t)
	stmts := Statements()
	require.Len(t, stmts, len(domain.EntityTables)*2+1)
	for _, stmt := range stmts {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
	require.True(t, strings.Contains(stmts[0], `"deleted_at" TIMESTAMPTZ`))
}

func TestNewStoreUsesOverriddenOpener(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return db, nil
	})
	defer restore()

	store, err := NewStore(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "pgx", gotDriver)
	require.Equal(t, defaultDSN, gotDSN)
	require.Same(t, db, store.DB())
	require.NoError(t, mock.ExpectationsWereMet())

	restoreFail := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("boom") })
	defer restoreFail()
	_, err = NewStore(context.Background(), "postgres://x")
	require.Error(t, err)
}
