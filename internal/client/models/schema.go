package models

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/comicsync/internal/common"
)

// Kind names a Primary Entity kind. It doubles as the table name.
type Kind string

const (
	KindBooks  Kind = "books"
	KindSeries Kind = "series"
)

// IndexColumn maps a scalar field to the extracted column used for range
// scans.
type IndexColumn struct {
	Field  string
	Column string
}

// Schema describes one entity level.
type Schema struct {
	Kind   Kind
	Fields []string
	// Nested is the field name the Sub schema lives under, empty for leaves.
	Nested string
	Sub    *Schema
	// Index lists the grouping/ordering columns in sort order.
	Index []IndexColumn
	// Filterable lists field paths accepted as list filters; sub fields are
	// written as "user.<field>".
	Filterable []string
}

var Books = &Schema{
	Kind:   KindBooks,
	Fields: []string{"title", "series", "volume", "chapter", "sort", "tags", "file", "pages", "rating"},
	Nested: "user",
	Sub: &Schema{
		Kind:   "user",
		Fields: []string{"current_page", "finished", "rating", "last_read_at"},
	},
	Index: []IndexColumn{
		{Field: "series", Column: "series_id"},
		{Field: "sort", Column: "sort_key"},
	},
	Filterable: []string{"series", "user.finished"},
}

var Series = &Schema{
	Kind:   KindSeries,
	Fields: []string{"name", "anilist_id", "tags", "book_count", "year"},
	Nested: "user",
	Sub: &Schema{
		Kind:   "user",
		Fields: []string{"reading", "current_book", "list", "rating"},
	},
	Index: []IndexColumn{
		{Field: "name", Column: "name_key"},
	},
	Filterable: []string{"name", "user.reading", "user.list"},
}

var registry = map[Kind]*Schema{
	KindBooks:  Books,
	KindSeries: Series,
}

// Lookup returns the schema registered for kind.
func Lookup(kind Kind) (*Schema, error) {
	s, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
	return s, nil
}

// Kinds lists every Primary kind in push order.
func Kinds() []Kind {
	return []Kind{KindSeries, KindBooks}
}

// HasField reports whether name is a scalar field of this level.
func (s *Schema) HasField(name string) bool {
	return slices.Contains(s.Fields, name)
}

// IsNested reports whether name holds the sub-entity.
func (s *Schema) IsNested(name string) bool {
	return s.Sub != nil && name == s.Nested
}

// IndexColumnFor returns the extracted column for field, if any.
func (s *Schema) IndexColumnFor(field string) (string, bool) {
	for _, ic := range s.Index {
		if ic.Field == field {
			return ic.Column, true
		}
	}
	return "", false
}

// CanFilter reports whether path is accepted as a list filter.
func (s *Schema) CanFilter(path string) bool {
	return slices.Contains(s.Filterable, path)
}

// SplitPath splits "user.finished" into ("user", "finished"). Paths without
// a nested prefix return an empty first element.
func (s *Schema) SplitPath(path string) (nested, field string) {
	if s.Sub != nil {
		if rest, ok := strings.CutPrefix(path, s.Nested+"."); ok {
			return s.Nested, rest
		}
	}
	return "", path
}

// Empty returns the template row for id: no fields, empty update maps and an
// empty sub record when the kind has one.
func (s *Schema) Empty(id string) *Entity {
	e := &Entity{ID: id, Record: *NewRecord()}
	if s.Sub != nil {
		e.Sub = NewRecord()
	}
	return e
}
