// Package records defines the canonical shapes of the movie catalogue entities
// moved by the loader, and the pure functions that build them from raw source
// rows.
//
// Each entity kind has a fixed, ordered field list. The same list is used to
// build destination column lists and to linearize a record for bulk insert, so
// Fields() and Record.Values() must always agree in length and order.
package records

import "fmt"

// Kind identifies one of the five entity kinds. The set is closed.
type Kind int

const (
	KindFilmwork Kind = iota + 1
	KindGenre
	KindPerson
	KindGenreFilmwork
	KindPersonFilmwork
)

// Canonical table names. Source and destination use the same names by default.
const (
	TableFilmwork       = "film_work"
	TableGenre          = "genre"
	TablePerson         = "person"
	TableGenreFilmwork  = "genre_film_work"
	TablePersonFilmwork = "person_film_work"
)

var (
	filmworkFields       = []string{"id", "title", "description", "rating", "type", "certificate", "file_path", "creation_date", "created", "modified"}
	genreFields          = []string{"id", "name", "description", "created", "modified"}
	personFields         = []string{"id", "full_name", "created", "modified"}
	genreFilmworkFields  = []string{"id", "film_work_id", "genre_id", "created"}
	personFilmworkFields = []string{"id", "film_work_id", "person_id", "role", "created"}
)

// Kinds returns every kind in an order where referenced kinds come first.
func Kinds() []Kind {
	return []Kind{KindFilmwork, KindGenre, KindPerson, KindGenreFilmwork, KindPersonFilmwork}
}

func (k Kind) String() string {
	switch k {
	case KindFilmwork:
		return "Filmwork"
	case KindGenre:
		return "Genre"
	case KindPerson:
		return "Person"
	case KindGenreFilmwork:
		return "GenreFilmwork"
	case KindPersonFilmwork:
		return "PersonFilmwork"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= KindFilmwork && k <= KindPersonFilmwork
}

// Table returns the canonical table name for k.
func (k Kind) Table() string {
	switch k {
	case KindFilmwork:
		return TableFilmwork
	case KindGenre:
		return TableGenre
	case KindPerson:
		return TablePerson
	case KindGenreFilmwork:
		return TableGenreFilmwork
	case KindPersonFilmwork:
		return TablePersonFilmwork
	default:
		return ""
	}
}

// Fields returns the ordered destination field list for k.
// The returned slice is a copy; callers may modify it.
func (k Kind) Fields() []string {
	var f []string
	switch k {
	case KindFilmwork:
		f = filmworkFields
	case KindGenre:
		f = genreFields
	case KindPerson:
		f = personFields
	case KindGenreFilmwork:
		f = genreFilmworkFields
	case KindPersonFilmwork:
		f = personFilmworkFields
	}
	return append([]string(nil), f...)
}

// HasModified reports whether records of kind k carry a modified timestamp.
// Link tables only carry created.
func (k Kind) HasModified() bool {
	return k == KindFilmwork || k == KindGenre || k == KindPerson
}

// References returns the kinds that k holds foreign keys to.
func (k Kind) References() []Kind {
	switch k {
	case KindGenreFilmwork:
		return []Kind{KindFilmwork, KindGenre}
	case KindPersonFilmwork:
		return []Kind{KindFilmwork, KindPerson}
	default:
		return nil
	}
}

// ParseKind maps a canonical table name back to its kind.
func ParseKind(table string) (Kind, error) {
	for _, k := range Kinds() {
		if k.Table() == table {
			return k, nil
		}
	}
	return 0, fmt.Errorf("records: unknown table %q", table)
}
