// Package memory provides in-memory implementations of the local cache and
// the remote store used for tests, demos and offline runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"farmledger/pkg/domain"
)

// Compile-time contract assertion ensuring Remote adheres to the domain interface.
var _ domain.RemoteStore = (*Remote)(nil)

// Remote operation names recorded by Calls and accepted by FailOn.
const (
	OpSelect        = "select"
	OpInsert        = "insert"
	OpUpsert        = "upsert"
	OpUpdate        = "update"
	OpGetProfile    = "get_profile"
	OpUpsertProfile = "upsert_profile"
)

// Call records a single remote invocation.
type Call struct {
	Table string
	Op    string
	IDs   []string
}

type table struct {
	rows  map[string]domain.Row
	order []string
}

// Remote is a map-backed domain.RemoteStore with per-table failure injection.
type Remote struct {
	mu       sync.RWMutex
	tables   map[string]*table
	profiles map[string]domain.Profile
	failures map[string]error
	calls    []Call
	nowFn    func() time.Time
}

// NewRemote constructs an empty remote store.
func NewRemote() *Remote {
	return &Remote{
		tables:   make(map[string]*table),
		profiles: make(map[string]domain.Profile),
		failures: make(map[string]error),
		nowFn:    time.Now,
	}
}

func failureKey(tableName, op string) string { return tableName + "/" + op }

// FailOn makes every subsequent op against tableName return err. An empty
// tableName matches all tables. A nil err clears the injection.
func (r *Remote) FailOn(tableName, op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := failureKey(tableName, op)
	if err == nil {
		delete(r.failures, key)
		return
	}
	r.failures[key] = err
}

// ClearFailures removes every injected failure.
func (r *Remote) ClearFailures() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = make(map[string]error)
}

// Calls returns the recorded invocations in order.
func (r *Remote) Calls() []Call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Rows returns every row of tableName including soft-deleted ones.
func (r *Remote) Rows(tableName string) []domain.Row {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]domain.Row, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, cloneRow(t.rows[id]))
	}
	return out
}

// begin records the call and reports any injected failure. Callers hold r.mu.
func (r *Remote) begin(ctx context.Context, tableName, op string, ids []string) error {
	r.calls = append(r.calls, Call{Table: tableName, Op: op, IDs: ids})
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := r.failures[failureKey(tableName, op)]; ok {
		return err
	}
	if err, ok := r.failures[failureKey("", op)]; ok {
		return err
	}
	return nil
}

func (r *Remote) table(name string) *table {
	t, ok := r.tables[name]
	if !ok {
		t = &table{rows: make(map[string]domain.Row)}
		r.tables[name] = t
	}
	return t
}

// Select returns clones of the rows matching filter in insertion order.
func (r *Remote) Select(ctx context.Context, tableName string, filter domain.Filter) ([]domain.Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, tableName, OpSelect, filter.IDs); err != nil {
		return nil, err
	}
	t := r.table(tableName)
	out := make([]domain.Row, 0, len(t.order))
	for _, id := range t.order {
		row := t.rows[id]
		if matches(row, filter) {
			out = append(out, cloneRow(row))
		}
	}
	return out, nil
}

// Insert adds rows, rejecting the whole batch when any id already exists.
func (r *Remote) Insert(ctx context.Context, tableName string, rows []domain.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, err := rowIDs(tableName, rows)
	if err != nil {
		return err
	}
	if err := r.begin(ctx, tableName, OpInsert, ids); err != nil {
		return err
	}
	t := r.table(tableName)
	for _, id := range ids {
		if _, exists := t.rows[id]; exists {
			return fmt.Errorf("insert %s: duplicate key %s", tableName, id)
		}
	}
	for i, row := range rows {
		t.rows[ids[i]] = cloneRow(row)
		t.order = append(t.order, ids[i])
	}
	return nil
}

// Upsert inserts rows or replaces existing rows with the same id. A row
// already owned by another farm is left untouched.
func (r *Remote) Upsert(ctx context.Context, tableName string, rows []domain.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, err := rowIDs(tableName, rows)
	if err != nil {
		return err
	}
	if err := r.begin(ctx, tableName, OpUpsert, ids); err != nil {
		return err
	}
	t := r.table(tableName)
	for i, row := range rows {
		existing, exists := t.rows[ids[i]]
		if !exists {
			t.order = append(t.order, ids[i])
		} else if farmOf(existing) != farmOf(row) {
			continue
		}
		t.rows[ids[i]] = cloneRow(row)
	}
	return nil
}

func farmOf(row domain.Row) string {
	farm, _ := row["farm_id"].(string)
	return farm
}

// Update merges patch into every row matching filter.
func (r *Remote) Update(ctx context.Context, tableName string, patch domain.Row, filter domain.Filter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, tableName, OpUpdate, filter.IDs); err != nil {
		return err
	}
	t := r.table(tableName)
	for _, id := range t.order {
		row := t.rows[id]
		if !matches(row, filter) {
			continue
		}
		for k, v := range patch {
			if k == "id" {
				continue
			}
			row[k] = v
		}
	}
	return nil
}

// GetProfile returns the stored profile for userID.
func (r *Remote) GetProfile(ctx context.Context, userID string) (domain.Profile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, domain.TableProfiles, OpGetProfile, []string{userID}); err != nil {
		return domain.Profile{}, false, err
	}
	p, ok := r.profiles[userID]
	return p, ok, nil
}

// UpsertProfile stores profile keyed by its user id.
func (r *Remote) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, domain.TableProfiles, OpUpsertProfile, []string{profile.UserID}); err != nil {
		return err
	}
	if profile.UserID == "" {
		return fmt.Errorf("upsert profile: missing user id")
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = r.nowFn().UTC()
	}
	r.profiles[profile.UserID] = profile
	return nil
}

func matches(row domain.Row, filter domain.Filter) bool {
	if filter.FarmID != "" && farmOf(row) != filter.FarmID {
		return false
	}
	if !filter.IncludeDeleted && row["deleted_at"] != nil {
		return false
	}
	if len(filter.IDs) > 0 {
		id, _ := row["id"].(string)
		if !containsString(filter.IDs, id) {
			return false
		}
	}
	return true
}

func rowIDs(tableName string, rows []domain.Row) ([]string, error) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("%s: row without id", tableName)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func cloneRow(row domain.Row) domain.Row {
	out := make(domain.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func containsString(values []string, id string) bool {
	for _, v := range values {
		if v == id {
			return true
		}
	}
	return false
}

// SortedColumns returns the row's column names in lexical order.
func SortedColumns(row domain.Row) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
