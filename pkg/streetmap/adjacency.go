package streetmap

import (
	"sort"

	"github.com/mapforge/streetdb/internal/snapshot"
)

// flatIndex is a bucketed index stored as one contiguous arena: values for
// bucket b live at values[offsets[b]:offsets[b+1]]. It backs the
// intersection adjacency lists and the derived street aggregations with
// O(1) count and element lookups and no per-bucket allocation.
type flatIndex struct {
	offsets []uint32 // len = buckets + 1
	values  []uint32
}

func (x flatIndex) count(bucket int) int {
	return int(x.offsets[bucket+1] - x.offsets[bucket])
}

func (x flatIndex) at(bucket, i int) int {
	return int(x.values[x.offsets[bucket]+uint32(i)])
}

// buildFlatIndex builds an arena index in two passes: one to count
// per-bucket sizes, one to fill. each must call emit for every
// (bucket, value) pair in the same deterministic order on both passes.
func buildFlatIndex(buckets int, each func(emit func(bucket, value int))) flatIndex {
	offsets := make([]uint32, buckets+1)
	each(func(bucket, value int) {
		offsets[bucket+1]++
	})
	for i := 1; i <= buckets; i++ {
		offsets[i] += offsets[i-1]
	}

	values := make([]uint32, offsets[buckets])
	cursor := make([]uint32, buckets)
	copy(cursor, offsets[:buckets])
	each(func(bucket, value int) {
		values[cursor[bucket]] = uint32(value)
		cursor[bucket]++
	})

	return flatIndex{offsets: offsets, values: values}
}

// buildIntersectionAdjacency derives the segments incident on each
// intersection from the segment endpoints. A single linear scan in segment
// order makes the per-intersection ordering deterministic across reloads
// (ascending segment index); callers must not read geographic meaning into
// it. A loop segment (from == to) appears once in its intersection's list.
func buildIntersectionAdjacency(intersections int, segs []snapshot.Segment) flatIndex {
	return buildFlatIndex(intersections, func(emit func(bucket, value int)) {
		for i, seg := range segs {
			emit(int(seg.From), i)
			if seg.To != seg.From {
				emit(int(seg.To), i)
			}
		}
	})
}

// buildStreetSegments derives the forward street -> segments relation,
// which the snapshot stores only in inverted form. Segment order within a
// street is ascending segment index.
func buildStreetSegments(streets int, segs []snapshot.Segment) flatIndex {
	return buildFlatIndex(streets, func(emit func(bucket, value int)) {
		for i, seg := range segs {
			emit(int(seg.Street), i)
		}
	})
}

// buildStreetIntersections derives the set of intersections each street
// touches, deduplicated and sorted ascending for deterministic iteration.
func buildStreetIntersections(streets int, segs []snapshot.Segment) flatIndex {
	perStreet := make([][]uint32, streets)
	for _, seg := range segs {
		perStreet[seg.Street] = append(perStreet[seg.Street], seg.From, seg.To)
	}

	offsets := make([]uint32, streets+1)
	var values []uint32
	for s, ids := range perStreet {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for i, id := range ids {
			if i > 0 && ids[i-1] == id {
				continue
			}
			values = append(values, id)
		}
		offsets[s+1] = uint32(len(values))
	}

	return flatIndex{offsets: offsets, values: values}
}
