package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/client/clock"
	"github.com/dmitrijs2005/comicsync/internal/common"
)

// Reserved keys of the wire row shape:
//
//	{id, created_at, updated_at, deleted_at, <fields...>, update_map,
//	 user: {<fields...>, update_map}}
const (
	KeyID        = "id"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
	KeyDeletedAt = "deleted_at"
	KeyUpdateMap = "update_map"
)

// EntityFromMap decodes a wire row. Unknown keys are ignored. A missing sub
// record is left nil so that merge can substitute the empty default.
func EntityFromMap(s *Schema, m map[string]any) (*Entity, error) {
	id, _ := m[KeyID].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: missing %s", common.ErrMalformedRow, KeyID)
	}

	rec, err := RecordFromMap(s, m)
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", id, err)
	}
	e := &Entity{ID: id, Record: *rec}

	if e.CreatedAt, err = parseTime(m[KeyCreatedAt]); err != nil {
		return nil, fmt.Errorf("row %s: %s: %w", id, KeyCreatedAt, err)
	}
	if e.UpdatedAt, err = parseTime(m[KeyUpdatedAt]); err != nil {
		return nil, fmt.Errorf("row %s: %s: %w", id, KeyUpdatedAt, err)
	}
	deleted, err := parseTime(m[KeyDeletedAt])
	if err != nil {
		return nil, fmt.Errorf("row %s: %s: %w", id, KeyDeletedAt, err)
	}
	if !deleted.IsZero() {
		e.DeletedAt = &deleted
	}

	if s.Sub != nil {
		if raw, ok := m[s.Nested]; ok && raw != nil {
			sm, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: row %s: %s is not an object", common.ErrMalformedRow, id, s.Nested)
			}
			if e.Sub, err = RecordFromMap(s.Sub, sm); err != nil {
				return nil, fmt.Errorf("row %s: %s: %w", id, s.Nested, err)
			}
		}
	}
	return e, nil
}

// RecordFromMap decodes one level: its known fields and its update map.
func RecordFromMap(s *Schema, m map[string]any) (*Record, error) {
	rec := NewRecord()
	for _, f := range s.Fields {
		if v, ok := m[f]; ok {
			rec.Fields[f] = Normalize(v)
		}
	}

	raw, ok := m[KeyUpdateMap]
	if !ok || raw == nil {
		return rec, nil
	}
	um, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an object", common.ErrMalformedRow, KeyUpdateMap)
	}
	for f, v := range um {
		tok, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%s] is not a string", common.ErrMalformedRow, KeyUpdateMap, f)
		}
		rec.UpdateMap[f] = clock.Token(tok)
	}
	return rec, nil
}

// ToMap encodes the row into its wire shape using only plain JSON types.
func (e *Entity) ToMap(s *Schema) map[string]any {
	m := e.Record.ToMap()
	m[KeyID] = e.ID
	m[KeyCreatedAt] = formatTime(e.CreatedAt)
	m[KeyUpdatedAt] = formatTime(e.UpdatedAt)
	if e.DeletedAt != nil {
		m[KeyDeletedAt] = formatTime(*e.DeletedAt)
	} else {
		m[KeyDeletedAt] = nil
	}
	if s.Sub != nil && e.Sub != nil {
		m[s.Nested] = e.Sub.ToMap()
	}
	return m
}

// ToMap encodes one level with its update map.
func (r *Record) ToMap() map[string]any {
	m := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		m[k] = cloneValue(v)
	}
	um := make(map[string]any, len(r.UpdateMap))
	for k, v := range r.UpdateMap {
		um[k] = string(v)
	}
	m[KeyUpdateMap] = um
	return m
}

// Normalize converts a Go value into its JSON-decoded form, so that 3 and
// 3.0 compare equal and typed slices become []any.
func Normalize(v any) any {
	switch v.(type) {
	case nil, bool, float64, string:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// ParseAssignments turns "field=value" arguments into a modification.
// Sub fields are addressed as "user.<field>". Values are decoded as JSON
// when possible and kept as plain strings otherwise.
func ParseAssignments(s *Schema, args []string) (Fields, error) {
	out := Fields{}
	for _, a := range args {
		path, raw, ok := strings.Cut(a, "=")
		if !ok || path == "" {
			return nil, common.NewFieldError(a, "expected field=value")
		}

		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}

		nested, field := s.SplitPath(path)
		if nested == "" {
			if !s.HasField(field) {
				return nil, common.NewFieldError(path, "unknown field")
			}
			out[field] = v
			continue
		}
		if !s.Sub.HasField(field) {
			return nil, common.NewFieldError(path, "unknown field")
		}
		sub, _ := out[nested].(Fields)
		if sub == nil {
			sub = Fields{}
			out[nested] = sub
		}
		sub[field] = v
	}
	return out, nil
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", common.ErrMalformedRow, err)
		}
		return parsed.UTC(), nil
	case time.Time:
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unexpected time %T", common.ErrMalformedRow, v)
	}
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
