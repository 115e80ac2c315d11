package records

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is a constructed, read-only entity snapshot.
// Only the types in this package implement it.
type Record interface {
	Kind() Kind
	// Values linearizes the record in Kind().Fields() order for bulk insert.
	Values() []any
	isRecord()
}

// Genre is a film genre.
type Genre struct {
	ID          uuid.UUID
	Name        string
	Description sql.NullString
	Created     time.Time
	Modified    time.Time
}

// Person is anyone credited on a film work.
type Person struct {
	ID       uuid.UUID
	FullName string
	Created  time.Time
	Modified time.Time
}

// Filmwork is a movie or TV show. Nullable columns use the sql.Null types.
type Filmwork struct {
	ID           uuid.UUID
	Title        string
	Description  sql.NullString
	Rating       sql.NullFloat64
	Type         string
	Certificate  sql.NullString
	FilePath     sql.NullString
	CreationDate sql.NullTime
	Created      time.Time
	Modified     time.Time
}

// GenreFilmwork links a film work to one of its genres.
type GenreFilmwork struct {
	ID         uuid.UUID
	FilmworkID uuid.UUID
	GenreID    uuid.UUID
	Created    time.Time
}

// PersonFilmwork links a person to a film work in a role (actor, writer,
// director).
type PersonFilmwork struct {
	ID         uuid.UUID
	FilmworkID uuid.UUID
	PersonID   uuid.UUID
	Role       string
	Created    time.Time
}

func (Genre) Kind() Kind          { return KindGenre }
func (Person) Kind() Kind         { return KindPerson }
func (Filmwork) Kind() Kind       { return KindFilmwork }
func (GenreFilmwork) Kind() Kind  { return KindGenreFilmwork }
func (PersonFilmwork) Kind() Kind { return KindPersonFilmwork }

func (Genre) isRecord()          {}
func (Person) isRecord()         {}
func (Filmwork) isRecord()       {}
func (GenreFilmwork) isRecord()  {}
func (PersonFilmwork) isRecord() {}

func (g Genre) Values() []any {
	return []any{g.ID.String(), g.Name, nullString(g.Description), g.Created, g.Modified}
}

func (p Person) Values() []any {
	return []any{p.ID.String(), p.FullName, p.Created, p.Modified}
}

func (f Filmwork) Values() []any {
	return []any{
		f.ID.String(),
		f.Title,
		nullString(f.Description),
		nullFloat(f.Rating),
		f.Type,
		nullString(f.Certificate),
		nullString(f.FilePath),
		nullTime(f.CreationDate),
		f.Created,
		f.Modified,
	}
}

func (g GenreFilmwork) Values() []any {
	return []any{g.ID.String(), g.FilmworkID.String(), g.GenreID.String(), g.Created}
}

func (p PersonFilmwork) Values() []any {
	return []any{p.ID.String(), p.FilmworkID.String(), p.PersonID.String(), p.Role, p.Created}
}

// NewGenre builds a Genre from an adapted row.
func NewGenre(row map[string]any) (Genre, error) {
	r := newFieldReader(KindGenre, row)
	g := Genre{
		ID:          r.uuid("id"),
		Name:        r.str("name"),
		Description: r.nullStr("description"),
		Created:     r.timestamp("created"),
		Modified:    r.timestamp("modified"),
	}
	if r.err != nil {
		return Genre{}, r.err
	}
	return g, nil
}

// NewPerson builds a Person from an adapted row.
func NewPerson(row map[string]any) (Person, error) {
	r := newFieldReader(KindPerson, row)
	p := Person{
		ID:       r.uuid("id"),
		FullName: r.str("full_name"),
		Created:  r.timestamp("created"),
		Modified: r.timestamp("modified"),
	}
	if r.err != nil {
		return Person{}, r.err
	}
	return p, nil
}

// NewFilmwork builds a Filmwork from an adapted row. description, rating,
// certificate, file_path and creation_date may be absent or NULL.
func NewFilmwork(row map[string]any) (Filmwork, error) {
	r := newFieldReader(KindFilmwork, row)
	f := Filmwork{
		ID:           r.uuid("id"),
		Title:        r.str("title"),
		Description:  r.nullStr("description"),
		Rating:       r.nullFloat("rating"),
		Type:         r.str("type"),
		Certificate:  r.nullStr("certificate"),
		FilePath:     r.nullStr("file_path"),
		CreationDate: r.nullDate("creation_date"),
		Created:      r.timestamp("created"),
		Modified:     r.timestamp("modified"),
	}
	if r.err != nil {
		return Filmwork{}, r.err
	}
	return f, nil
}

// NewGenreFilmwork builds a GenreFilmwork link from an adapted row.
func NewGenreFilmwork(row map[string]any) (GenreFilmwork, error) {
	r := newFieldReader(KindGenreFilmwork, row)
	g := GenreFilmwork{
		ID:         r.uuid("id"),
		FilmworkID: r.uuid("film_work_id"),
		GenreID:    r.uuid("genre_id"),
		Created:    r.timestamp("created"),
	}
	if r.err != nil {
		return GenreFilmwork{}, r.err
	}
	return g, nil
}

// NewPersonFilmwork builds a PersonFilmwork link from an adapted row.
func NewPersonFilmwork(row map[string]any) (PersonFilmwork, error) {
	r := newFieldReader(KindPersonFilmwork, row)
	p := PersonFilmwork{
		ID:         r.uuid("id"),
		FilmworkID: r.uuid("film_work_id"),
		PersonID:   r.uuid("person_id"),
		Role:       r.str("role"),
		Created:    r.timestamp("created"),
	}
	if r.err != nil {
		return PersonFilmwork{}, r.err
	}
	return p, nil
}

// New builds a record of the given kind from an already adapted row.
func New(kind Kind, row map[string]any) (Record, error) {
	switch kind {
	case KindFilmwork:
		return wrap(NewFilmwork(row))
	case KindGenre:
		return wrap(NewGenre(row))
	case KindPerson:
		return wrap(NewPerson(row))
	case KindGenreFilmwork:
		return wrap(NewGenreFilmwork(row))
	case KindPersonFilmwork:
		return wrap(NewPersonFilmwork(row))
	default:
		return nil, fmt.Errorf("records: unknown kind %v", kind)
	}
}

// wrap keeps a failed constructor from producing a non-nil Record holding a
// zero value.
func wrap[T Record](rec T, err error) (Record, error) {
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func nullString(v sql.NullString) any {
	if !v.Valid {
		return nil
	}
	return v.String
}

func nullFloat(v sql.NullFloat64) any {
	if !v.Valid {
		return nil
	}
	return v.Float64
}

func nullTime(v sql.NullTime) any {
	if !v.Valid {
		return nil
	}
	return v.Time
}
