package models

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/client/clock"
)

// Dirty is a bitmask of entity levels with unsynced local edits.
type Dirty uint8

const (
	DirtyEntity Dirty = 1 << iota
	DirtySub
)

// Has reports whether every bit of level is set.
func (d Dirty) Has(level Dirty) bool {
	return level != 0 && d&level == level
}

// Fields holds JSON-compatible field values: nil, bool, float64, string,
// []any and map[string]any.
type Fields map[string]any

// Clone returns a deep copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

// UpdateMap records, per field, the token of its last local write.
type UpdateMap map[string]clock.Token

func (m UpdateMap) Clone() UpdateMap {
	if m == nil {
		return UpdateMap{}
	}
	return maps.Clone(m)
}

// Equal reports whether both maps hold the same tokens.
func (m UpdateMap) Equal(other UpdateMap) bool {
	return maps.Equal(m, other)
}

// Record is one entity level: its values and its update map.
type Record struct {
	Fields    Fields
	UpdateMap UpdateMap
}

// NewRecord returns an empty record with non-nil maps.
func NewRecord() *Record {
	return &Record{Fields: Fields{}, UpdateMap: UpdateMap{}}
}

// Clone returns a deep copy. A nil record clones to nil.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{Fields: r.Fields.Clone(), UpdateMap: r.UpdateMap.Clone()}
}

// Entity is one stored Primary row with its Sub-Entity.
type Entity struct {
	ID string
	Record
	Sub       *Record
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Dirty     Dirty
}

// IsTombstone reports whether the row signals a deletion.
func (e *Entity) IsTombstone() bool {
	return e.DeletedAt != nil
}

// Clone returns a deep copy.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	out.Record = *e.Record.Clone()
	out.Sub = e.Sub.Clone()
	if e.DeletedAt != nil {
		d := *e.DeletedAt
		out.DeletedAt = &d
	}
	return &out
}

// Level returns the record for a single dirty level.
func (e *Entity) Level(level Dirty) *Record {
	switch level {
	case DirtyEntity:
		return &e.Record
	case DirtySub:
		return e.Sub
	default:
		return nil
	}
}

// Value resolves a field path such as "title" or "user.finished".
func (e *Entity) Value(s *Schema, path string) (any, bool) {
	nested, field := s.SplitPath(path)
	rec := &e.Record
	if nested != "" {
		rec = e.Sub
	}
	if rec == nil {
		return nil, false
	}
	v, ok := rec.Fields[field]
	return v, ok
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case Fields:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	case json.RawMessage:
		return append(json.RawMessage(nil), t...)
	default:
		return v
	}
}
