package records

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// SchemaError reports a row that cannot be turned into a record: a required
// field is missing or NULL, or a value has the wrong shape for its field.
//
// RowID is the source row's raw id, so the row can be found again; it is
// empty when the row has no id at all.
type SchemaError struct {
	Kind   Kind
	Field  string
	Reason string
	Value  any
	RowID  string
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("records: %s.%s: %s", e.Kind, e.Field, e.Reason)
	if e.Value != nil {
		msg += fmt.Sprintf(" (value=%v)", e.Value)
	}
	if e.RowID != "" {
		msg += " [id=" + e.RowID + "]"
	}
	return msg
}

// rawID renders row["id"] for error messages without validating it.
func rawID(row map[string]any) string {
	switch v := row["id"].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		if len(v) == 16 {
			if id, err := uuid.FromBytes(v); err == nil {
				return id.String()
			}
		}
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// fieldReader pulls typed fields out of a row. The first failure is kept and
// every later call becomes a no-op returning zero values, so constructors can
// read all fields and check err once.
type fieldReader struct {
	kind Kind
	row  map[string]any
	err  error
}

func newFieldReader(kind Kind, row map[string]any) *fieldReader {
	return &fieldReader{kind: kind, row: row}
}

func (r *fieldReader) fail(field, reason string, v any) {
	if r.err == nil {
		r.err = &SchemaError{Kind: r.kind, Field: field, Reason: reason, Value: v, RowID: rawID(r.row)}
	}
}

// lookup returns the raw value of field. Required fields that are absent or
// NULL are recorded as failures.
func (r *fieldReader) lookup(field string, required bool) (any, bool) {
	if r.err != nil {
		return nil, false
	}
	v, ok := r.row[field]
	if !ok {
		if required {
			r.fail(field, "missing field", nil)
		}
		return nil, false
	}
	if v == nil {
		if required {
			r.fail(field, "null value for required field", nil)
		}
		return nil, false
	}
	return v, true
}

func (r *fieldReader) uuid(field string) uuid.UUID {
	v, ok := r.lookup(field, true)
	if !ok {
		return uuid.Nil
	}
	id, err := toUUID(v)
	if err != nil {
		r.fail(field, err.Error(), v)
		return uuid.Nil
	}
	return id
}

func (r *fieldReader) str(field string) string {
	v, ok := r.lookup(field, true)
	if !ok {
		return ""
	}
	s, err := toString(v)
	if err != nil {
		r.fail(field, err.Error(), v)
		return ""
	}
	return s
}

func (r *fieldReader) nullStr(field string) sql.NullString {
	v, ok := r.lookup(field, false)
	if !ok {
		return sql.NullString{}
	}
	s, err := toString(v)
	if err != nil {
		r.fail(field, err.Error(), v)
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func (r *fieldReader) nullFloat(field string) sql.NullFloat64 {
	v, ok := r.lookup(field, false)
	if !ok {
		return sql.NullFloat64{}
	}
	f, err := toFloat(v)
	if err != nil {
		r.fail(field, err.Error(), v)
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func (r *fieldReader) timestamp(field string) time.Time {
	v, ok := r.lookup(field, true)
	if !ok {
		return time.Time{}
	}
	ts, err := toTime(v)
	if err != nil {
		r.fail(field, err.Error(), v)
		return time.Time{}
	}
	return ts
}

func (r *fieldReader) nullDate(field string) sql.NullTime {
	v, ok := r.lookup(field, false)
	if !ok {
		return sql.NullTime{}
	}
	d, err := toDate(v)
	if err != nil {
		r.fail(field, err.Error(), v)
		return sql.NullTime{}
	}
	return sql.NullTime{Time: d, Valid: true}
}

func toUUID(v any) (uuid.UUID, error) {
	switch t := v.(type) {
	case uuid.UUID:
		return t, nil
	case [16]byte:
		return uuid.UUID(t), nil
	case string:
		return uuid.Parse(strings.TrimSpace(t))
	case []byte:
		if len(t) == 16 {
			return uuid.FromBytes(t)
		}
		return uuid.ParseBytes(t)
	default:
		return uuid.Nil, fmt.Errorf("not a uuid: %T", v)
	}
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return "", fmt.Errorf("not text: %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
	case pgtype.Numeric:
		// pgx scans numeric/decimal columns into pgtype.Numeric.
		f, err := t.Float64Value()
		if err != nil {
			return 0, err
		}
		if !f.Valid {
			return 0, fmt.Errorf("not a number: NULL numeric")
		}
		return f.Float64, nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return ParseTimestamp(t)
	case []byte:
		return ParseTimestamp(string(t))
	default:
		return time.Time{}, fmt.Errorf("not a timestamp: %T", v)
	}
}

func toDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case string, []byte:
		ts, err := toTime(t)
		if err != nil {
			return time.Time{}, err
		}
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("not a date: %T", v)
	}
}

// zonedLayouts carry an explicit offset. Fractional seconds are accepted by
// time.Parse even when the layout omits them.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z07",
	"2006-01-02T15:04:05Z07",
}

// naiveLayouts carry no offset and are read as UTC.
var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp text forms found in SQLite and
// PostgreSQL dumps, e.g.
//
//	2021-06-16T20:14:09.221855Z
//	2021-06-16 20:14:09.221855+00:00
//	2021-06-16 20:14:09.221855+00
//	2021-06-16 20:14:09        (UTC)
//	2021-06-16                 (UTC midnight)
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}
	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
