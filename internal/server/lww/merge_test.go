package lww

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrijs2005/comicsync/internal/server/models"
)

const (
	t1 = "000001700000000-a-000001"
	t2 = "000001700000005-b-000001"
	t3 = "000001700000005-b-000002"
)

func rec(data map[string]any, um map[string]string) models.Record {
	if um == nil {
		um = map[string]string{}
	}
	return models.Record{Data: data, UpdateMap: um}
}

func TestNewer(t *testing.T) {
	assert.True(t, Newer(t1, ""))
	assert.True(t, Newer("", ""))
	assert.True(t, Newer(t2, t1))
	assert.True(t, Newer(t3, t2))
	assert.False(t, Newer(t1, t2))
	assert.False(t, Newer(t2, t2))
	assert.False(t, Newer("", t1))
}

func TestMergeRecord(t *testing.T) {
	tests := []struct {
		name     string
		stored   models.Record
		incoming models.Record
		want     models.Record
		accepted []string
		rejected []string
	}{
		{
			name:     "new row takes everything",
			stored:   models.NewRecord(),
			incoming: rec(map[string]any{"title": "A", "pages": float64(10)}, map[string]string{"title": t1}),
			want:     rec(map[string]any{"title": "A", "pages": float64(10)}, map[string]string{"title": t1}),
			accepted: []string{"pages", "title"},
		},
		{
			name:     "newer token wins",
			stored:   rec(map[string]any{"title": "A"}, map[string]string{"title": t1}),
			incoming: rec(map[string]any{"title": "B"}, map[string]string{"title": t2}),
			want:     rec(map[string]any{"title": "B"}, map[string]string{"title": t2}),
			accepted: []string{"title"},
		},
		{
			name:     "older token loses",
			stored:   rec(map[string]any{"title": "B"}, map[string]string{"title": t2}),
			incoming: rec(map[string]any{"title": "A"}, map[string]string{"title": t1}),
			want:     rec(map[string]any{"title": "B"}, map[string]string{"title": t2}),
			rejected: []string{"title"},
		},
		{
			name:     "untokened value does not clobber a tokened one",
			stored:   rec(map[string]any{"title": "B", "rating": float64(3)}, map[string]string{"title": t2}),
			incoming: rec(map[string]any{"title": "stale", "rating": float64(4)}, map[string]string{"rating": t3}),
			want:     rec(map[string]any{"title": "B", "rating": float64(4)}, map[string]string{"title": t2, "rating": t3}),
			accepted: []string{"rating"},
			rejected: []string{"title"},
		},
		{
			name:     "fields not sent are kept",
			stored:   rec(map[string]any{"title": "A", "series": "s1"}, map[string]string{"series": t1}),
			incoming: rec(map[string]any{"title": "C"}, map[string]string{"title": t2}),
			want:     rec(map[string]any{"title": "C", "series": "s1"}, map[string]string{"title": t2, "series": t1}),
			accepted: []string{"title"},
		},
		{
			name:     "same token is a replay",
			stored:   rec(map[string]any{"title": "A"}, map[string]string{"title": t1}),
			incoming: rec(map[string]any{"title": "A"}, map[string]string{"title": t1}),
			want:     rec(map[string]any{"title": "A"}, map[string]string{"title": t1}),
			rejected: []string{"title"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeRecord(tt.stored, tt.incoming)

			if diff := cmp.Diff(tt.want, got.Record); diff != "" {
				t.Fatalf("record mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.accepted, got.Accepted)
			assert.Equal(t, tt.rejected, got.Rejected)
			assert.Equal(t, len(tt.accepted) > 0, got.Changed())
		})
	}
}

func TestMergeRecord_DoesNotModifyStored(t *testing.T) {
	stored := rec(map[string]any{"title": "A"}, map[string]string{"title": t1})
	MergeRecord(stored, rec(map[string]any{"title": "B"}, map[string]string{"title": t2}))

	assert.Equal(t, "A", stored.Data["title"])
	assert.Equal(t, t1, stored.UpdateMap["title"])
}

func TestMergeRecord_Idempotent(t *testing.T) {
	stored := rec(map[string]any{"title": "A"}, map[string]string{"title": t1})
	incoming := rec(map[string]any{"title": "B", "pages": float64(3)}, map[string]string{"title": t2, "pages": t2})

	once := MergeRecord(stored, incoming).Record
	twice := MergeRecord(once, incoming).Record

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("second merge changed the record (-once +twice):\n%s", diff)
	}
}
