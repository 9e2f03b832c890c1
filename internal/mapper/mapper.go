// Package mapper translates between remote rows (flat snake_case columns, every
// value nullable) and the typed farm domain records.
//
// Reads are strict about shape: a present column holding a value of the wrong
// kind fails with domain.ErrInvalidRow naming the table and column. Null or
// absent columns map to the zero value of the domain field.
package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"farmledger/pkg/domain"
)

// TimeLayout is the ISO-8601 form written for timestamp columns.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

var now = time.Now

// FormatTime renders t in UTC with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// FormatMillis renders an epoch-millisecond instant, substituting the current
// time when ms is unset.
func FormatMillis(ms int64) string {
	if ms == 0 {
		return FormatTime(now())
	}
	return FormatTime(time.UnixMilli(ms))
}

// ParseTime accepts the ISO-8601 variants the backend emits.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999Z07:00", "2006-01-02 15:04:05.999999999Z07", "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

type reader struct {
	table string
	row   domain.Row
	err   error
}

func newReader(table string, row domain.Row) *reader {
	return &reader{table: table, row: row}
}

func (r *reader) fail(col string, v any, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s.%s: got %T, want %s", domain.ErrInvalidRow, r.table, col, v, want)
	}
}

func (r *reader) value(col string) (any, bool) {
	v, ok := r.row[col]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (r *reader) str(col string) string {
	v, ok := r.value(col)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	r.fail(col, v, "string")
	return ""
}

func (r *reader) float(col string) float64 {
	if p := r.floatPtr(col); p != nil {
		return *p
	}
	return 0
}

func (r *reader) floatPtr(col string) *float64 {
	v, ok := r.value(col)
	if !ok {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		r.fail(col, v, "number")
		return nil
	}
	return &f
}

func (r *reader) integer(col string) int {
	v, ok := r.value(col)
	if !ok {
		return 0
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		r.fail(col, v, "integer")
		return 0
	}
	return int(f)
}

func (r *reader) boolean(col string) bool {
	v, ok := r.value(col)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		r.fail(col, v, "bool")
	}
	return b
}

func (r *reader) timePtr(col string) *time.Time {
	v, ok := r.value(col)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case time.Time:
		u := t.UTC()
		return &u
	case string:
		parsed, err := ParseTime(t)
		if err != nil {
			r.fail(col, v, "ISO-8601 time")
			return nil
		}
		return &parsed
	}
	r.fail(col, v, "time")
	return nil
}

func (r *reader) millis(col string) int64 {
	if t := r.timePtr(col); t != nil {
		return t.UnixMilli()
	}
	return 0
}

// rawJSON normalises a jsonb column to compact JSON bytes.
func (r *reader) rawJSON(col string) json.RawMessage {
	v, ok := r.value(col)
	if !ok {
		return nil
	}
	var data []byte
	switch j := v.(type) {
	case string:
		data = []byte(j)
	case []byte:
		data = j
	case json.RawMessage:
		data = j
	case map[string]any, []any:
		encoded, err := json.Marshal(j)
		if err != nil {
			r.fail(col, v, "json")
			return nil
		}
		data = encoded
	default:
		r.fail(col, v, "json")
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		r.fail(col, v, "json")
		return nil
	}
	return json.RawMessage(buf.Bytes())
}

func (r *reader) products(col string) []domain.SprayProduct {
	raw := r.rawJSON(col)
	if raw == nil {
		return nil
	}
	var out []domain.SprayProduct
	if err := json.Unmarshal(raw, &out); err != nil {
		r.fail(col, string(raw), "product list")
		return nil
	}
	return out
}

// done reports the first decode error, or a missing id.
func (r *reader) done(id string) error {
	if r.err != nil {
		return r.err
	}
	if id == "" {
		return fmt.Errorf("%w: %s row without id", domain.ErrInvalidRow, r.table)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		return f, err == nil
	}
	return 0, false
}

type writer domain.Row

func (w writer) str(col, v string) {
	if v == "" {
		w[col] = nil
		return
	}
	w[col] = v
}

func (w writer) floatPtr(col string, v *float64) {
	if v == nil {
		w[col] = nil
		return
	}
	w[col] = *v
}

func (w writer) integer(col string, v int) {
	if v == 0 {
		w[col] = nil
		return
	}
	w[col] = v
}

func (w writer) timePtr(col string, t *time.Time) {
	if t == nil {
		w[col] = nil
		return
	}
	w[col] = FormatTime(*t)
}

func (w writer) rawJSON(col string, raw json.RawMessage) {
	if len(raw) == 0 {
		w[col] = nil
		return
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		w[col] = string(raw)
		return
	}
	w[col] = buf.String()
}

func (w writer) products(col string, products []domain.SprayProduct) {
	if products == nil {
		w[col] = nil
		return
	}
	data, err := json.Marshal(products)
	if err != nil {
		w[col] = nil
		return
	}
	w[col] = string(data)
}

func (w writer) scope(farmID string, deletedAt *time.Time) {
	w.str("farm_id", farmID)
	w.timePtr("deleted_at", deletedAt)
}
