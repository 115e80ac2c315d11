package transfer

import (
	"context"
	"fmt"

	"moviesetl/internal/storage"
)

// CountCheck compares the row count of one planned table on both sides.
type CountCheck struct {
	Table       Table
	Source      int64
	Destination int64
}

// Match reports whether both sides hold the same number of rows.
func (c CountCheck) Match() bool { return c.Source == c.Destination }

// CheckCounts counts every planned table in src and dst. It stops at the
// first count that fails.
func CheckCounts(ctx context.Context, src storage.Source, dst storage.Destination, plan Plan) ([]CountCheck, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	out := make([]CountCheck, 0, len(plan))
	for _, tbl := range plan {
		s, err := src.Count(ctx, tbl.Source)
		if err != nil {
			return out, fmt.Errorf("check: count source %s: %w", tbl.Source, err)
		}
		d, err := dst.Count(ctx, tbl.Destination)
		if err != nil {
			return out, fmt.Errorf("check: count destination %s: %w", tbl.Destination, err)
		}
		out = append(out, CountCheck{Table: tbl, Source: s, Destination: d})
	}
	return out, nil
}

// Mismatches returns the checks whose counts differ.
func Mismatches(checks []CountCheck) []CountCheck {
	var out []CountCheck
	for _, c := range checks {
		if !c.Match() {
			out = append(out, c)
		}
	}
	return out
}
