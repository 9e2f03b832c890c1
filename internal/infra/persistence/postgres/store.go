// Package postgres provides the hosted remote store: one Postgres table per farm
// entity plus a profile table, reached through database/sql and pgx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"farmledger/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.RemoteStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/farmledger?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a domain.RemoteStore over Postgres.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// Option customises a Store.
type Option func(*Store)

// WithTimeout bounds every call with a per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// NewStore opens and pings the database at dsn (falls back to defaultDSN).
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewStoreFromDB(db, opts...), nil
}

// NewStoreFromDB wraps an already opened database handle.
func NewStoreFromDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureSchema creates every table and index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Statements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// Select returns the rows of table matching filter, one map per row keyed by column.
func (s *Store) Select(ctx context.Context, table string, filter domain.Filter) ([]domain.Row, error) {
	if _, err := knownColumns(table); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	names := columnNames(table)
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	where, args := whereClause(filter, 1)
	query := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(quoted, ", "), table, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Row
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(domain.Row, len(names))
		for i, n := range names {
			row[n] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// Insert adds rows in a single statement.
func (s *Store) Insert(ctx context.Context, table string, rows []domain.Row) error {
	query, args, err := insertStatement(table, rows, false)
	if err != nil || query == "" {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Upsert inserts rows, replacing every column of rows whose id already exists.
func (s *Store) Upsert(ctx context.Context, table string, rows []domain.Row) error {
	query, args, err := insertStatement(table, rows, true)
	if err != nil || query == "" {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// Update applies patch to every row matching filter.
func (s *Store) Update(ctx context.Context, table string, patch domain.Row, filter domain.Filter) error {
	known, err := knownColumns(table)
	if err != nil {
		return err
	}
	cols := sortedColumns(patch)
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		if c == "id" {
			continue
		}
		if !known[c] {
			return fmt.Errorf("update %s: unknown column %q", table, c)
		}
		args = append(args, patch[c])
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdent(c), len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	where, whereArgs := whereClause(filter, len(args)+1)
	args = append(args, whereArgs...)
	query := fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(sets, ", "), where)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

// GetProfile loads the profile for userID.
func (s *Store) GetProfile(ctx context.Context, userID string) (domain.Profile, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var (
		farmID  sql.NullString
		season  sql.NullInt64
		updated sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `SELECT farm_id, active_season, updated_at FROM profiles WHERE user_id = $1`, userID).
		Scan(&farmID, &season, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, false, nil
	}
	if err != nil {
		return domain.Profile{}, false, fmt.Errorf("select profile: %w", err)
	}
	return domain.Profile{
		UserID:       userID,
		FarmID:       farmID.String,
		ActiveSeason: int(season.Int64),
		UpdatedAt:    updated.Time,
	}, true, nil
}

// UpsertProfile writes the profile keyed by user id.
func (s *Store) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	if profile.UserID == "" {
		return fmt.Errorf("upsert profile: missing user id")
	}
	updated := profile.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `INSERT INTO profiles(user_id,farm_id,active_season,updated_at) VALUES($1,$2,$3,$4)
ON CONFLICT(user_id) DO UPDATE SET farm_id=EXCLUDED.farm_id, active_season=EXCLUDED.active_season, updated_at=EXCLUDED.updated_at`,
		profile.UserID, nullString(profile.FarmID), profile.ActiveSeason, updated)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func insertStatement(table string, rows []domain.Row, upsert bool) (string, []any, error) {
	known, err := knownColumns(table)
	if err != nil {
		return "", nil, err
	}
	if len(rows) == 0 {
		return "", nil, nil
	}
	colSet := map[string]bool{}
	for _, row := range rows {
		if id, _ := row["id"].(string); id == "" {
			return "", nil, fmt.Errorf("%s: row without id", table)
		}
		for c := range row {
			if !known[c] {
				return "", nil, fmt.Errorf("%s: unknown column %q", table, c)
			}
			colSet[c] = true
		}
	}
	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	args := make([]any, 0, len(cols)*len(rows))
	tuples := make([]string, 0, len(rows))
	for _, row := range rows {
		marks := make([]string, len(cols))
		for i, c := range cols {
			args = append(args, row[c])
			marks[i] = fmt.Sprintf("$%d", len(args))
		}
		tuples = append(tuples, "("+strings.Join(marks, ",")+")")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(quoted, ","), strings.Join(tuples, ","))
	if upsert {
		sets := make([]string, 0, len(cols))
		for _, c := range cols {
			if c == "id" || c == "farm_id" {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s=EXCLUDED.%s", quoteIdent(c), quoteIdent(c)))
		}
		if len(sets) == 0 {
			query += ` ON CONFLICT ("id") DO NOTHING`
		} else {
			// Rows owned by another farm keep their contents.
			query += ` ON CONFLICT ("id") DO UPDATE SET ` + strings.Join(sets, ", ") +
				fmt.Sprintf(` WHERE %s."farm_id" IS NOT DISTINCT FROM EXCLUDED."farm_id"`, table)
		}
	}
	return query, args, nil
}

// whereClause renders filter with placeholders numbered from start.
func whereClause(filter domain.Filter, start int) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.FarmID != "" {
		args = append(args, filter.FarmID)
		clauses = append(clauses, fmt.Sprintf("farm_id = $%d", start+len(args)-1))
	}
	if !filter.IncludeDeleted {
		clauses = append(clauses, "deleted_at IS NULL")
	}
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		clauses = append(clauses, fmt.Sprintf("id = ANY($%d)", start+len(args)-1))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func sortedColumns(row domain.Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
