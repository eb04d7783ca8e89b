// internal/engine/conflict_test.go
package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/recordkeeper/internal/types"
)

func meta(name string, props []string, matched ...types.RecordID) types.SelectorMetadata {
	return types.SelectorMetadata{Name: name, Properties: props, Matched: matched, Valid: true}
}

func TestDetectConflicts(t *testing.T) {
	records := armory()

	tests := []struct {
		name      string
		selectors []types.SelectorMetadata
		overrides []types.OverrideMetadata
		want      []Conflict
	}{
		{
			name: "disjoint records",
			selectors: []types.SelectorMetadata{
				meta("a", []string{"damage"}, "w1"),
				meta("b", []string{"damage"}, "w2"),
			},
		},
		{
			name: "disjoint properties",
			selectors: []types.SelectorMetadata{
				meta("a", []string{"damage"}, "w1", "w2"),
				meta("b", []string{"weight"}, "w1", "w2"),
			},
		},
		{
			name: "overlap",
			selectors: []types.SelectorMetadata{
				meta("a", []string{"damage", "weight"}, "w1", "w2"),
				meta("b", []string{"weight"}, "w2", "w3"),
			},
			want: []Conflict{{
				First: "a", Second: "b",
				Properties: []string{"weight"},
				Records:    []RecordConflict{{RecordID: "w2", Properties: []string{"weight"}}},
			}},
		},
		{
			name: "override covers every shared property",
			selectors: []types.SelectorMetadata{
				meta("a", []string{"damage"}, "w1"),
				meta("b", []string{"damage"}, "w1"),
			},
			overrides: []types.OverrideMetadata{
				{Name: "Short Sword", RecordID: "w1", Properties: []string{"damage"}},
			},
		},
		{
			name: "override covers part",
			selectors: []types.SelectorMetadata{
				meta("a", []string{"damage", "weight"}, "w1"),
				meta("b", []string{"damage", "weight"}, "w1"),
			},
			overrides: []types.OverrideMetadata{
				{Name: "Short Sword", RecordID: "w1", Properties: []string{"damage"}},
			},
			want: []Conflict{{
				First: "a", Second: "b",
				Properties: []string{"damage", "weight"},
				Records:    []RecordConflict{{RecordID: "w1", Properties: []string{"weight"}}},
			}},
		},
		{
			name: "invalid selectors ignored",
			selectors: []types.SelectorMetadata{
				meta("a", []string{"damage"}, "w1"),
				{Name: "b", Properties: []string{"damage"}, Matched: []types.RecordID{"w1"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectConflicts(records, tt.selectors, tt.overrides)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectConflicts_OneEntryPerPair(t *testing.T) {
	selectors := []types.SelectorMetadata{
		meta("a", []string{"damage"}, "w1", "w2", "w3"),
		meta("b", []string{"damage"}, "w1", "w2", "w3"),
		meta("c", []string{"damage"}, "w3"),
	}

	got := DetectConflicts(armory(), selectors, nil)
	require.Len(t, got, 3)
	pairs := make([]string, len(got))
	for i, c := range got {
		pairs[i] = c.First + "/" + c.Second
	}
	assert.Equal(t, []string{"a/b", "a/c", "b/c"}, pairs)
	assert.Len(t, got[0].Records, 3)
}

func TestDetectConflicts_UnknownIDsIgnored(t *testing.T) {
	selectors := []types.SelectorMetadata{
		meta("a", []string{"damage"}, "ghost"),
		meta("b", []string{"damage"}, "ghost"),
	}
	assert.Empty(t, DetectConflicts(armory(), selectors, nil))
}
