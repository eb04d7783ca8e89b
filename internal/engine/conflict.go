// internal/engine/conflict.go
package engine

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/solatis/recordkeeper/internal/types"
)

/*
 * Cross-selector conflict detection.
 *
 * Two valid selectors conflict when their matched record sets intersect AND
 * their touched property sets intersect. For each record in the
 * intersection, an override on that record resolves the conflict only if
 * it touches every intersecting property; otherwise the record is reported
 * with the properties the override leaves uncovered.
 *
 * Matched sets become roaring bitmaps over the sorted record index, so each
 * pairwise intersection is a single AND instead of a map walk.
 *
 * Detection is read-only: it never changes matching or application order.
 */

// RecordConflict is one unresolved record inside a selector pair conflict.
type RecordConflict struct {
	RecordID   types.RecordID
	Properties []string // intersecting properties no override covers
}

// Conflict is an unresolved overlap between two selectors.
type Conflict struct {
	First      string
	Second     string
	Properties []string // intersection of touched properties
	Records    []RecordConflict
}

// recordIndex maps record IDs to dense bitmap positions.
type recordIndex struct {
	ids []types.RecordID
	pos map[types.RecordID]uint32
}

func newRecordIndex(records types.Records) *recordIndex {
	ids := records.SortedIDs()
	pos := make(map[types.RecordID]uint32, len(ids))
	for i, id := range ids {
		pos[id] = uint32(i)
	}
	return &recordIndex{ids: ids, pos: pos}
}

func (x *recordIndex) bitmap(ids []types.RecordID) *roaring.Bitmap {
	bm := roaring.New()
	for _, id := range ids {
		if p, ok := x.pos[id]; ok {
			bm.Add(p)
		}
	}
	return bm
}

// DetectConflicts reports unresolved overlaps between every unordered pair
// of valid selectors, in configuration order.
func DetectConflicts(records types.Records, selectors []types.SelectorMetadata, overrides []types.OverrideMetadata) []Conflict {
	index := newRecordIndex(records)

	covered := make(map[types.RecordID]map[string]bool, len(overrides))
	for _, ov := range overrides {
		props := covered[ov.RecordID]
		if props == nil {
			props = make(map[string]bool)
			covered[ov.RecordID] = props
		}
		for _, p := range ov.Properties {
			props[p] = true
		}
	}

	var valid []types.SelectorMetadata
	var bitmaps []*roaring.Bitmap
	for _, meta := range selectors {
		if !meta.Valid {
			continue
		}
		valid = append(valid, meta)
		bitmaps = append(bitmaps, index.bitmap(meta.Matched))
	}

	var conflicts []Conflict
	for i := 0; i < len(valid); i++ {
		for j := i + 1; j < len(valid); j++ {
			shared := intersectPaths(valid[i].Properties, valid[j].Properties)
			if len(shared) == 0 {
				continue
			}
			both := roaring.And(bitmaps[i], bitmaps[j])
			if both.IsEmpty() {
				continue
			}

			var unresolved []RecordConflict
			it := both.Iterator()
			for it.HasNext() {
				id := index.ids[it.Next()]
				var open []string
				for _, p := range shared {
					if !covered[id][p] {
						open = append(open, p)
					}
				}
				if len(open) > 0 {
					unresolved = append(unresolved, RecordConflict{RecordID: id, Properties: open})
				}
			}
			if len(unresolved) == 0 {
				continue
			}
			conflicts = append(conflicts, Conflict{
				First:      valid[i].Name,
				Second:     valid[j].Name,
				Properties: shared,
				Records:    unresolved,
			})
		}
	}
	return conflicts
}

// intersectPaths returns the paths of a also present in b, in a's order.
func intersectPaths(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, p := range b {
		inB[p] = true
	}
	var out []string
	for _, p := range a {
		if inB[p] {
			out = append(out, p)
		}
	}
	return out
}
