// Package transfer copies the movie catalogue from a source store to a
// destination store, one table at a time, one committed page at a time.
package transfer

import (
	"fmt"

	"moviesetl/internal/records"
)

// DefaultPageSize is the number of source rows read and written per page.
const DefaultPageSize = 4

// Table is one step of a Plan: copy Source into Destination as Kind.
type Table struct {
	Kind        records.Kind
	Source      string
	Destination string
}

// Plan is the ordered list of tables to copy.
type Plan []Table

// DefaultPlan copies every kind under its canonical table name, parents
// before the link tables that reference them.
func DefaultPlan() Plan {
	kinds := records.Kinds()
	p := make(Plan, 0, len(kinds))
	for _, k := range kinds {
		p = append(p, Table{Kind: k, Source: k.Table(), Destination: k.Table()})
	}
	return p
}

// Validate rejects unknown or duplicated kinds, blank table names, and any
// table placed before a kind it references. A referenced kind that is not in
// the plan at all is allowed; the destination is assumed to already hold it.
func (p Plan) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("transfer: empty plan")
	}

	pos := make(map[records.Kind]int, len(p))
	for i, t := range p {
		if !t.Kind.Valid() {
			return fmt.Errorf("transfer: plan[%d]: unknown kind %v", i, t.Kind)
		}
		if t.Source == "" || t.Destination == "" {
			return fmt.Errorf("transfer: plan[%d] (%v): source and destination tables are required", i, t.Kind)
		}
		if j, dup := pos[t.Kind]; dup {
			return fmt.Errorf("transfer: plan[%d]: kind %v already planned at %d", i, t.Kind, j)
		}
		pos[t.Kind] = i
	}

	for i, t := range p {
		for _, ref := range t.Kind.References() {
			if j, ok := pos[ref]; ok && j > i {
				return fmt.Errorf("transfer: plan[%d]: %v must come after %v (plan[%d])", i, t.Kind, ref, j)
			}
		}
	}
	return nil
}
