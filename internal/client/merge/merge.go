// Package merge computes new rows from local edits and from network rows.
// All functions are pure: inputs are never mutated.
package merge

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/dmitrijs2005/comicsync/internal/client/clock"
	"github.com/dmitrijs2005/comicsync/internal/client/models"
)

// ApplyModification applies a user edit to existing, stamping every changed
// field with token. A nil existing row starts from template. The returned
// Dirty holds only the bits this modification set; the row's own Dirty is
// the union with what it carried before.
func ApplyModification(s *models.Schema, existing *models.Entity, changes models.Fields, template *models.Entity, token clock.Token) (*models.Entity, models.Dirty) {
	base := existing
	if base == nil {
		base = template
	}
	if base == nil {
		base = &models.Entity{}
	}

	out := base.Clone()
	if out.Fields == nil {
		out.Record = *models.NewRecord()
	}
	if s.Sub != nil && out.Sub == nil {
		out.Sub = emptySub(template)
	}

	dirty := applyLevel(s, &out.Record, out.Sub, changes, token)
	out.Dirty |= dirty
	return out, dirty
}

func applyLevel(s *models.Schema, rec, child *models.Record, changes models.Fields, token clock.Token) models.Dirty {
	if rec.Fields == nil {
		rec.Fields = models.Fields{}
	}
	if rec.UpdateMap == nil {
		rec.UpdateMap = models.UpdateMap{}
	}

	var dirty models.Dirty
	for field, value := range changes {
		if s.IsNested(field) {
			nested, ok := asFields(value)
			if !ok || child == nil {
				continue
			}
			dirty |= applyLevel(s.Sub, child, nil, nested, token) << 1
			continue
		}
		if !s.HasField(field) {
			continue
		}
		value = models.Normalize(value)
		if current, ok := rec.Fields[field]; ok && Equal(current, value) {
			continue
		}
		rec.Fields[field] = value
		rec.UpdateMap[field] = token
		dirty |= models.DirtyEntity
	}
	return dirty
}

// ApplyNetworkRow merges a pulled row into the local one. Per entity level,
// a level with its local dirty bit set keeps its values, update map and
// dirty bit and the incoming level is discarded; a clean level is replaced
// wholesale. The tombstone marker is always taken from incoming.
func ApplyNetworkRow(s *models.Schema, existing, incoming *models.Entity) *models.Entity {
	out := incoming.Clone()
	out.Dirty = 0
	if out.Fields == nil {
		out.Record = *models.NewRecord()
	}
	if s.Sub != nil && out.Sub == nil {
		out.Sub = models.NewRecord()
	}
	if existing == nil {
		return out
	}

	if existing.Dirty.Has(models.DirtyEntity) {
		out.Record = *existing.Record.Clone()
		out.CreatedAt = existing.CreatedAt
		out.UpdatedAt = existing.UpdatedAt
		out.Dirty |= models.DirtyEntity
	}
	if s.Sub != nil && existing.Dirty.Has(models.DirtySub) && existing.Sub != nil {
		out.Sub = existing.Sub.Clone()
		out.Dirty |= models.DirtySub
	}
	return out
}

// Equal reports whether two JSON-compatible values are the same, treating
// numeric types by value.
func Equal(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func asFields(v any) (models.Fields, bool) {
	switch t := v.(type) {
	case models.Fields:
		return t, true
	case map[string]any:
		return models.Fields(t), true
	default:
		return nil, false
	}
}

func emptySub(template *models.Entity) *models.Record {
	if template != nil && template.Sub != nil {
		return template.Sub.Clone()
	}
	return models.NewRecord()
}
