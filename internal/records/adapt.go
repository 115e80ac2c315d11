package records

import "slices"

// Source-side timestamp column names.
const (
	SourceCreatedColumn  = "created_at"
	SourceModifiedColumn = "updated_at"
)

// AdaptKeys returns a copy of row with the source timestamp columns renamed to
// the destination names: created_at becomes created, and updated_at becomes
// modified only when fields contains "modified".
//
// A source column that is absent leaves the target absent; record
// construction reports that as a SchemaError. row itself is never modified.
func AdaptKeys(row map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}

	if v, ok := out[SourceCreatedColumn]; ok {
		delete(out, SourceCreatedColumn)
		out["created"] = v
	}
	if slices.Contains(fields, "modified") {
		if v, ok := out[SourceModifiedColumn]; ok {
			delete(out, SourceModifiedColumn)
			out["modified"] = v
		}
	}
	return out
}
