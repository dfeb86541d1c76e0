package models

import (
	"maps"
	"time"
)

// Wire keys of a library row.
const (
	KeyID        = "id"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
	KeyDeletedAt = "deleted_at"
	KeyUpdateMap = "update_map"
	KeyUser      = "user"
)

// Record is one level of a row: its values and, per field, the write token
// of the value the server holds.
type Record struct {
	Data      map[string]any
	UpdateMap map[string]string
}

func NewRecord() Record {
	return Record{Data: map[string]any{}, UpdateMap: map[string]string{}}
}

// Clone returns a copy whose maps can be modified independently. Values are
// shared.
func (r Record) Clone() Record {
	out := NewRecord()
	maps.Copy(out.Data, r.Data)
	maps.Copy(out.UpdateMap, r.UpdateMap)
	return out
}

// Row is a shared library row (a book or a series), optionally joined with
// the requesting user's record for it.
type Row struct {
	ID        string
	Record    Record
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	User      *UserRecord
}

// UserRecord is the per-user level of a row, e.g. reading progress.
type UserRecord struct {
	Record    Record
	UpdatedAt time.Time
}

// IsDeleted reports whether the row is a tombstone.
func (r *Row) IsDeleted() bool {
	return r.DeletedAt != nil
}

// ChangedAt is the later of the primary and user level change times. List
// orders and pages rows by (ChangedAt, ID).
func (r *Row) ChangedAt() time.Time {
	if r.User != nil && r.User.UpdatedAt.After(r.UpdatedAt) {
		return r.User.UpdatedAt
	}
	return r.UpdatedAt
}

// Cursor is the position of the last row of a List page. The next page
// holds rows strictly after it in (ChangedAt, ID) order.
type Cursor struct {
	UpdatedAt time.Time
	ID        string
}

// CursorOf returns the cursor positioned on r.
func CursorOf(r *Row) Cursor {
	return Cursor{UpdatedAt: r.ChangedAt(), ID: r.ID}
}

// ToMap encodes the row in its wire shape:
//
//	{id, created_at, updated_at, deleted_at, <fields...>, update_map,
//	 user: {<fields...>, update_map}}
func (r *Row) ToMap() map[string]any {
	m := r.Record.ToMap()
	m[KeyID] = r.ID
	m[KeyCreatedAt] = formatTime(r.CreatedAt)
	m[KeyUpdatedAt] = formatTime(r.ChangedAt())
	m[KeyDeletedAt] = nil
	if r.DeletedAt != nil {
		m[KeyDeletedAt] = formatTime(*r.DeletedAt)
	}
	if r.User != nil {
		m[KeyUser] = r.User.Record.ToMap()
	}
	return m
}

// ToMap encodes one level with its update map.
func (r Record) ToMap() map[string]any {
	m := make(map[string]any, len(r.Data)+1)
	maps.Copy(m, r.Data)
	um := make(map[string]any, len(r.UpdateMap))
	for k, v := range r.UpdateMap {
		um[k] = v
	}
	m[KeyUpdateMap] = um
	return m
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
