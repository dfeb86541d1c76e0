package models

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/client/clock"
	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	s, err := Lookup(KindBooks)
	require.NoError(t, err)
	assert.Same(t, Books, s)

	_, err = Lookup("magazines")
	require.ErrorIs(t, err, common.ErrUnknownKind)
}

func TestSchema_Helpers(t *testing.T) {
	assert.True(t, Books.HasField("title"))
	assert.False(t, Books.HasField("user"))
	assert.True(t, Books.IsNested("user"))
	assert.False(t, Books.Sub.IsNested("user"))

	col, ok := Books.IndexColumnFor("sort")
	assert.True(t, ok)
	assert.Equal(t, "sort_key", col)

	nested, field := Series.SplitPath("user.reading")
	assert.Equal(t, "user", nested)
	assert.Equal(t, "reading", field)

	nested, field = Series.SplitPath("name")
	assert.Empty(t, nested)
	assert.Equal(t, "name", field)

	assert.True(t, Series.CanFilter("user.reading"))
	assert.False(t, Series.CanFilter("year"))
}

func TestSchema_Empty(t *testing.T) {
	e := Books.Empty("b1")
	assert.Equal(t, "b1", e.ID)
	require.NotNil(t, e.Sub)
	assert.Empty(t, e.Fields)
	assert.Empty(t, e.Sub.UpdateMap)
	assert.Zero(t, e.Dirty)
}

func TestDirty_Has(t *testing.T) {
	d := DirtyEntity | DirtySub
	assert.True(t, d.Has(DirtyEntity))
	assert.True(t, d.Has(DirtySub))
	assert.False(t, DirtySub.Has(DirtyEntity))
	assert.False(t, d.Has(0))
}

func TestEntity_CloneIsDeep(t *testing.T) {
	del := time.Now()
	e := &Entity{
		ID:        "1",
		Record:    Record{Fields: Fields{"tags": []any{"a"}}, UpdateMap: UpdateMap{"tags": "t1"}},
		Sub:       &Record{Fields: Fields{"finished": true}, UpdateMap: UpdateMap{}},
		DeletedAt: &del,
	}
	c := e.Clone()
	c.Fields["tags"].([]any)[0] = "b"
	c.UpdateMap["tags"] = "t2"
	c.Sub.Fields["finished"] = false
	*c.DeletedAt = time.Time{}

	assert.Equal(t, "a", e.Fields["tags"].([]any)[0])
	assert.Equal(t, clock.Token("t1"), e.UpdateMap["tags"])
	assert.Equal(t, true, e.Sub.Fields["finished"])
	assert.Equal(t, del, *e.DeletedAt)
}

func TestEntityFromMap_RoundTrip(t *testing.T) {
	in := map[string]any{
		"id":         "b1",
		"created_at": "2024-01-02T03:04:05.123456Z",
		"updated_at": "2024-01-03T03:04:05Z",
		"deleted_at": nil,
		"title":      "Akira",
		"volume":     float64(1),
		"tags":       []any{"sf"},
		"unknown":    "dropped",
		"update_map": map[string]any{"title": "000000000000001-c-000000"},
		"user": map[string]any{
			"current_page": float64(12),
			"update_map":   map[string]any{},
		},
	}

	e, err := EntityFromMap(Books, in)
	require.NoError(t, err)
	assert.Equal(t, "b1", e.ID)
	assert.Equal(t, "Akira", e.Fields["title"])
	assert.NotContains(t, e.Fields, "unknown")
	assert.Equal(t, clock.Token("000000000000001-c-000000"), e.UpdateMap["title"])
	require.NotNil(t, e.Sub)
	assert.Equal(t, float64(12), e.Sub.Fields["current_page"])
	assert.False(t, e.IsTombstone())

	out := e.ToMap(Books)
	delete(in, "unknown")
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEntityFromMap_Tombstone(t *testing.T) {
	e, err := EntityFromMap(Series, map[string]any{"id": "s1", "deleted_at": "2024-05-01T00:00:00Z"})
	require.NoError(t, err)
	assert.True(t, e.IsTombstone())
	assert.Nil(t, e.Sub)
}

func TestEntityFromMap_Malformed(t *testing.T) {
	cases := map[string]map[string]any{
		"missing id":       {"title": "x"},
		"bad time":         {"id": "1", "updated_at": "yesterday"},
		"sub not object":   {"id": "1", "user": "x"},
		"update_map bad":   {"id": "1", "update_map": []any{}},
		"token not string": {"id": "1", "update_map": map[string]any{"title": 1.0}},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := EntityFromMap(Books, m)
			require.ErrorIs(t, err, common.ErrMalformedRow)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, float64(3), Normalize(3))
	assert.Equal(t, []any{"a", "b"}, Normalize([]string{"a", "b"}))
	assert.Equal(t, map[string]any{"x": true}, Normalize(Fields{"x": true}))
	assert.Nil(t, Normalize(nil))
}

func TestParseAssignments(t *testing.T) {
	f, err := ParseAssignments(Books, []string{"title=Dragon Ball", "volume=3", "user.finished=true", `tags=["a","b"]`})
	require.NoError(t, err)

	assert.Equal(t, "Dragon Ball", f["title"])
	assert.Equal(t, float64(3), f["volume"])
	assert.Equal(t, []any{"a", "b"}, f["tags"])
	assert.Equal(t, Fields{"finished": true}, f["user"])
}

func TestParseAssignments_Errors(t *testing.T) {
	_, err := ParseAssignments(Books, []string{"justname"})
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = ParseAssignments(Books, []string{"colour=red"})
	var fe *common.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "colour", fe.Field)

	_, err = ParseAssignments(Series, []string{"user.volume=1"})
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "user.volume", fe.Field)
}

func TestEntity_Value(t *testing.T) {
	e := Series.Empty("s1")
	e.Fields["name"] = "Berserk"
	e.Sub.Fields["reading"] = true

	v, ok := e.Value(Series, "user.reading")
	assert.True(t, ok)
	assert.Equal(t, true, v)

	v, ok = e.Value(Series, "name")
	assert.True(t, ok)
	assert.Equal(t, "Berserk", v)

	_, ok = e.Value(Series, "year")
	assert.False(t, ok)
}
