package streetmap

import (
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/mapforge/streetdb/internal/snapshot"
)

// Bounds is a geographic bounding box in decimal degrees.
type Bounds struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

// Contains reports whether the position lies within the bounds (inclusive).
func (b Bounds) Contains(p LatLon) bool {
	return p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat &&
		p.Longitude >= b.MinLon && p.Longitude <= b.MaxLon
}

// Intersects reports whether two bounds overlap.
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat &&
		b.MinLon <= o.MaxLon && b.MaxLon >= o.MinLon
}

// Union returns the smallest bounds containing both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	if o.MinLat < b.MinLat {
		b.MinLat = o.MinLat
	}
	if o.MinLon < b.MinLon {
		b.MinLon = o.MinLon
	}
	if o.MaxLat > b.MaxLat {
		b.MaxLat = o.MaxLat
	}
	if o.MaxLon > b.MaxLon {
		b.MaxLon = o.MaxLon
	}
	return b
}

func (b Bounds) expand(lat, lon float64) Bounds {
	if lat < b.MinLat {
		b.MinLat = lat
	}
	if lon < b.MinLon {
		b.MinLon = lon
	}
	if lat > b.MaxLat {
		b.MaxLat = lat
	}
	if lon > b.MaxLon {
		b.MaxLon = lon
	}
	return b
}

// pointEpsilon pads zero-area rectangles; the R-tree requires non-zero
// extents. Roughly 11 meters at the equator.
const pointEpsilon = 0.0001

// rect converts bounds to an R-tree rectangle. Coordinates follow the
// {lon, lat} axis order used throughout the index.
func (b Bounds) rect() rtreego.Rect {
	lonLen := b.MaxLon - b.MinLon
	latLen := b.MaxLat - b.MinLat
	if lonLen < pointEpsilon {
		lonLen = pointEpsilon
	}
	if latLen < pointEpsilon {
		latLen = pointEpsilon
	}
	r, _ := rtreego.NewRect(rtreego.Point{b.MinLon, b.MinLat}, []float64{lonLen, latLen})
	return r
}

func pointBounds(lat, lon float64) Bounds {
	return Bounds{MinLat: lat, MinLon: lon, MaxLat: lat, MaxLon: lon}
}

// spatialEntry wraps one entity index for R-tree storage.
type spatialEntry struct {
	index int
	rect  rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (e *spatialEntry) Bounds() rtreego.Rect { return e.rect }

// spatialIndex holds one R-tree per point-addressable entity kind.
type spatialIndex struct {
	intersections *rtreego.Rtree
	pois          *rtreego.Rtree
	features      *rtreego.Rtree
}

func newRtree() *rtreego.Rtree {
	// 2D, 25..50 children per node; works well for map-scale datasets.
	return rtreego.NewTree(2, 25, 50)
}

// buildSpatialIndex builds the R-trees over intersections, POIs and
// features at load time. Features are indexed by the bounding box of their
// point lists; pointless features are skipped.
func buildSpatialIndex(data *snapshot.Data) *spatialIndex {
	idx := &spatialIndex{
		intersections: newRtree(),
		pois:          newRtree(),
		features:      newRtree(),
	}
	for i, it := range data.Intersections {
		idx.intersections.Insert(&spatialEntry{index: i, rect: pointBounds(it.Lat, it.Lon).rect()})
	}
	for i, p := range data.POIs {
		idx.pois.Insert(&spatialEntry{index: i, rect: pointBounds(p.Lat, p.Lon).rect()})
	}
	for i := range data.Features {
		fb, ok := featureBounds(data, &data.Features[i])
		if !ok {
			continue
		}
		idx.features.Insert(&spatialEntry{index: i, rect: fb.rect()})
	}
	return idx
}

// featureBounds returns the bounding box of a feature's point list.
// The second result is false for features without points.
func featureBounds(data *snapshot.Data, f *snapshot.Feature) (Bounds, bool) {
	if f.PointCount == 0 {
		return Bounds{}, false
	}
	first := data.FeaturePoints[f.PointFirst]
	b := pointBounds(first.Lat, first.Lon)
	for _, p := range data.FeaturePoints[f.PointFirst+1 : f.PointFirst+f.PointCount] {
		b = b.expand(p.Lat, p.Lon)
	}
	return b, true
}

// dataBounds computes the geographic extent over all intersections, POIs
// and feature points. The second result is false for a database with no
// located entities, whose zero Bounds carries no geographic meaning.
func dataBounds(data *snapshot.Data) (Bounds, bool) {
	var b Bounds
	seeded := false
	seed := func(lat, lon float64) {
		if seeded {
			b = b.expand(lat, lon)
			return
		}
		b = pointBounds(lat, lon)
		seeded = true
	}
	for _, it := range data.Intersections {
		seed(it.Lat, it.Lon)
	}
	for _, p := range data.POIs {
		seed(p.Lat, p.Lon)
	}
	for _, p := range data.FeaturePoints {
		seed(p.Lat, p.Lon)
	}
	return b, seeded
}

// searchTree returns candidate indices whose stored rectangle intersects
// bounds, sorted ascending. The R-tree reports matches in traversal order,
// which is not stable across inserts; sorting keeps query results
// deterministic. Stored rectangles carry epsilon padding, so callers must
// re-check candidates against the exact geometry.
func searchTree(tree *rtreego.Rtree, bounds Bounds) []int {
	matches := tree.SearchIntersect(bounds.rect())
	out := make([]int, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.(*spatialEntry).index)
	}
	sort.Ints(out)
	return out
}

// nearestInTree returns the index of the entry nearest to p, or -1 for an
// empty tree. Distance is planar over (lon, lat) degrees.
func nearestInTree(tree *rtreego.Rtree, p LatLon) int {
	if tree.Size() == 0 {
		return -1
	}
	m := tree.NearestNeighbor(rtreego.Point{p.Longitude, p.Latitude})
	if m == nil {
		return -1
	}
	return m.(*spatialEntry).index
}

// IntersectionsInBounds returns the indices of all intersections within
// bounds, in ascending order.
func (db *Database) IntersectionsInBounds(bounds Bounds) ([]int, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	if db.spatial != nil {
		var out []int
		for _, i := range searchTree(db.spatial.intersections, bounds) {
			it := db.data.Intersections[i]
			if bounds.Contains(LatLon{Latitude: it.Lat, Longitude: it.Lon}) {
				out = append(out, i)
			}
		}
		return out, nil
	}
	var out []int
	for i, it := range db.data.Intersections {
		if bounds.Contains(LatLon{Latitude: it.Lat, Longitude: it.Lon}) {
			out = append(out, i)
		}
	}
	return out, nil
}

// POIsInBounds returns the indices of all points of interest within
// bounds, in ascending order.
func (db *Database) POIsInBounds(bounds Bounds) ([]int, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	if db.spatial != nil {
		var out []int
		for _, i := range searchTree(db.spatial.pois, bounds) {
			p := db.data.POIs[i]
			if bounds.Contains(LatLon{Latitude: p.Lat, Longitude: p.Lon}) {
				out = append(out, i)
			}
		}
		return out, nil
	}
	var out []int
	for i, p := range db.data.POIs {
		if bounds.Contains(LatLon{Latitude: p.Lat, Longitude: p.Lon}) {
			out = append(out, i)
		}
	}
	return out, nil
}

// FeaturesInBounds returns the indices of all features whose bounding box
// intersects bounds, in ascending order. This is the primary query for
// viewport rendering.
func (db *Database) FeaturesInBounds(bounds Bounds) ([]int, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	if db.spatial != nil {
		var out []int
		for _, i := range searchTree(db.spatial.features, bounds) {
			fb, ok := featureBounds(db.data, &db.data.Features[i])
			if ok && bounds.Intersects(fb) {
				out = append(out, i)
			}
		}
		return out, nil
	}
	var out []int
	for i := range db.data.Features {
		fb, ok := featureBounds(db.data, &db.data.Features[i])
		if ok && bounds.Intersects(fb) {
			out = append(out, i)
		}
	}
	return out, nil
}

// NearestIntersection returns the index of the intersection closest to p,
// or -1 if the database has no intersections. Distance is planar over
// lat/lon degrees, and the indexed answer is approximate within the
// epsilon padding of the stored point rectangles (about 11 meters); a tie
// that close may resolve to either candidate.
func (db *Database) NearestIntersection(p LatLon) (int, error) {
	if err := db.guard(); err != nil {
		return -1, err
	}
	if db.spatial != nil {
		return nearestInTree(db.spatial.intersections, p), nil
	}
	best := -1
	bestDist := 0.0
	for i, it := range db.data.Intersections {
		d := planarDistSq(p, it.Lat, it.Lon)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, nil
}

// NearestPOI returns the index of the point of interest closest to p, or
// -1 if the database has no POIs. The indexed answer carries the same
// epsilon tolerance as NearestIntersection.
func (db *Database) NearestPOI(p LatLon) (int, error) {
	if err := db.guard(); err != nil {
		return -1, err
	}
	if db.spatial != nil {
		return nearestInTree(db.spatial.pois, p), nil
	}
	best := -1
	bestDist := 0.0
	for i, poi := range db.data.POIs {
		d := planarDistSq(p, poi.Lat, poi.Lon)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, nil
}

func planarDistSq(p LatLon, lat, lon float64) float64 {
	dLat := p.Latitude - lat
	dLon := p.Longitude - lon
	return dLat*dLat + dLon*dLon
}
