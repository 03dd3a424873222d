package streetmap

import (
	"sync/atomic"
	"time"

	"github.com/mapforge/streetdb/internal/snapshot"
)

// Database is one loaded street-map snapshot.
//
// A Database is immutable once Load returns: every accessor is a pure read
// and safe for unbounded concurrent use from multiple goroutines without
// synchronization. Close may also run concurrently with queries: a query in
// flight when Close is called either completes against the snapshot or fails
// with ErrClosed, never anything in between. After Close, every accessor
// fails with ErrClosed.
//
// All entity indices are dense, 0-based and assigned in snapshot order.
// They are only meaningful within the Database they came from. Accessors
// return copies; results stay valid after Close.
type Database struct {
	closed atomic.Bool

	data *snapshot.Data

	adjacency           flatIndex // intersection -> incident segments
	streetSegments      flatIndex // street -> segments
	streetIntersections flatIndex // street -> touched intersections

	spatial *spatialIndex // nil when SkipSpatialIndex is set

	bounds    Bounds
	hasBounds bool // false when the snapshot has no located entities
}

// Load reads a snapshot file and builds a ready-to-query Database.
//
// Any number of databases may be open at once; each Load returns an
// independent handle. On failure no state is retained.
//
// Example:
//
//	db, err := streetmap.Load("toronto.streets.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//	fmt.Printf("%d intersections\n", db.IntersectionCount())
func Load(path string) (*Database, error) {
	return LoadWithOptions(path, DefaultLoadOptions())
}

// LoadWithOptions reads a snapshot file with custom options.
func LoadWithOptions(path string, opts LoadOptions) (*Database, error) {
	start := time.Now()

	data, err := snapshot.ReadFile(path)
	if err != nil {
		return nil, err
	}

	db := newDatabase(data, opts)

	if opts.Logger != nil {
		opts.Logger.Debug("street map loaded",
			"path", path,
			"intersections", len(data.Intersections),
			"segments", len(data.Segments),
			"streets", len(data.Streets),
			"pois", len(data.POIs),
			"features", len(data.Features),
			"duration", time.Since(start))
	}
	return db, nil
}

// newDatabase builds the derived indexes over decoded tables.
func newDatabase(data *snapshot.Data, opts LoadOptions) *Database {
	db := &Database{
		data:                data,
		adjacency:           buildIntersectionAdjacency(len(data.Intersections), data.Segments),
		streetSegments:      buildStreetSegments(len(data.Streets), data.Segments),
		streetIntersections: buildStreetIntersections(len(data.Streets), data.Segments),
	}
	db.bounds, db.hasBounds = dataBounds(data)
	if !opts.SkipSpatialIndex {
		db.spatial = buildSpatialIndex(data)
	}
	return db
}

// Close marks the database closed. Close is idempotent; closing an already
// closed database is a no-op.
//
// The tables are deliberately left in place: a query that passed the closed
// check just before Close still reads immutable data and completes safely.
// Memory is reclaimed once callers drop the handle.
func (db *Database) Close() {
	db.closed.Store(true)
}

func (db *Database) guard() error {
	if db.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Counts.

// IntersectionCount returns the number of intersections.
func (db *Database) IntersectionCount() (int, error) {
	if err := db.guard(); err != nil {
		return 0, err
	}
	return len(db.data.Intersections), nil
}

// StreetSegmentCount returns the number of street segments.
func (db *Database) StreetSegmentCount() (int, error) {
	if err := db.guard(); err != nil {
		return 0, err
	}
	return len(db.data.Segments), nil
}

// StreetCount returns the number of streets.
func (db *Database) StreetCount() (int, error) {
	if err := db.guard(); err != nil {
		return 0, err
	}
	return len(db.data.Streets), nil
}

// POICount returns the number of points of interest.
func (db *Database) POICount() (int, error) {
	if err := db.guard(); err != nil {
		return 0, err
	}
	return len(db.data.POIs), nil
}

// FeatureCount returns the number of features.
func (db *Database) FeatureCount() (int, error) {
	if err := db.guard(); err != nil {
		return 0, err
	}
	return len(db.data.Features), nil
}

// Intersections.

func (db *Database) intersection(idx int) (*snapshot.Intersection, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	if err := checkRange("intersection", idx, len(db.data.Intersections)); err != nil {
		return nil, err
	}
	return &db.data.Intersections[idx], nil
}

// IntersectionName returns the pre-resolved display name of an
// intersection. Names are unique within a loaded dataset.
func (db *Database) IntersectionName(idx int) (string, error) {
	it, err := db.intersection(idx)
	if err != nil {
		return "", err
	}
	return it.Name, nil
}

// IntersectionPosition returns an intersection's position.
func (db *Database) IntersectionPosition(idx int) (LatLon, error) {
	it, err := db.intersection(idx)
	if err != nil {
		return LatLon{}, err
	}
	return LatLon{Latitude: it.Lat, Longitude: it.Lon}, nil
}

// IntersectionOSMNodeID returns the OSM node id an intersection was
// produced from.
func (db *Database) IntersectionOSMNodeID(idx int) (OSMID, error) {
	it, err := db.intersection(idx)
	if err != nil {
		return 0, err
	}
	return OSMID(it.OSMID), nil
}

// IntersectionSegmentCount returns how many street segments are incident
// on an intersection.
func (db *Database) IntersectionSegmentCount(idx int) (int, error) {
	if _, err := db.intersection(idx); err != nil {
		return 0, err
	}
	return db.adjacency.count(idx), nil
}

// IntersectionSegment returns the i-th street segment incident on an
// intersection. The per-intersection ordering is deterministic across
// reloads of the same snapshot but carries no geographic meaning.
func (db *Database) IntersectionSegment(idx, i int) (int, error) {
	if _, err := db.intersection(idx); err != nil {
		return 0, err
	}
	if err := checkRange("incident segment", i, db.adjacency.count(idx)); err != nil {
		return 0, err
	}
	return db.adjacency.at(idx, i), nil
}

// Street segments.

func (db *Database) segment(idx int) (*snapshot.Segment, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	if err := checkRange("street segment", idx, len(db.data.Segments)); err != nil {
		return nil, err
	}
	return &db.data.Segments[idx], nil
}

// StreetSegment returns the fixed attributes of a street segment.
func (db *Database) StreetSegment(idx int) (StreetSegmentInfo, error) {
	seg, err := db.segment(idx)
	if err != nil {
		return StreetSegmentInfo{}, err
	}
	return segmentInfo(*seg), nil
}

// StreetSegmentCurvePoint returns the i-th curve point refining a
// segment's shape between its endpoints.
func (db *Database) StreetSegmentCurvePoint(idx, i int) (LatLon, error) {
	seg, err := db.segment(idx)
	if err != nil {
		return LatLon{}, err
	}
	if err := checkRange("curve point", i, int(seg.CurveCount)); err != nil {
		return LatLon{}, err
	}
	p := db.data.CurvePoints[int(seg.CurveFirst)+i]
	return LatLon{Latitude: p.Lat, Longitude: p.Lon}, nil
}

// Streets.

func (db *Database) checkStreet(idx int) error {
	if err := db.guard(); err != nil {
		return err
	}
	return checkRange("street", idx, len(db.data.Streets))
}

// StreetName returns a street's name. Street names are not necessarily
// unique; several streets may share one name.
func (db *Database) StreetName(idx int) (string, error) {
	if err := db.checkStreet(idx); err != nil {
		return "", err
	}
	return db.data.Streets[idx].Name, nil
}

// StreetSegments returns the indices of all segments belonging to a
// street, in ascending segment order.
func (db *Database) StreetSegments(idx int) ([]int, error) {
	if err := db.checkStreet(idx); err != nil {
		return nil, err
	}
	out := make([]int, db.streetSegments.count(idx))
	for i := range out {
		out[i] = db.streetSegments.at(idx, i)
	}
	return out, nil
}

// StreetIntersections returns the indices of all intersections a street
// touches, deduplicated and in ascending order.
func (db *Database) StreetIntersections(idx int) ([]int, error) {
	if err := db.checkStreet(idx); err != nil {
		return nil, err
	}
	out := make([]int, db.streetIntersections.count(idx))
	for i := range out {
		out[i] = db.streetIntersections.at(idx, i)
	}
	return out, nil
}

// Points of interest.

func (db *Database) poi(idx int) (*snapshot.POI, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	if err := checkRange("point of interest", idx, len(db.data.POIs)); err != nil {
		return nil, err
	}
	return &db.data.POIs[idx], nil
}

// POIName returns a point of interest's name.
func (db *Database) POIName(idx int) (string, error) {
	p, err := db.poi(idx)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

// POIType returns a point of interest's type tag (e.g. "restaurant").
func (db *Database) POIType(idx int) (string, error) {
	p, err := db.poi(idx)
	if err != nil {
		return "", err
	}
	return p.Type, nil
}

// POIPosition returns a point of interest's position.
func (db *Database) POIPosition(idx int) (LatLon, error) {
	p, err := db.poi(idx)
	if err != nil {
		return LatLon{}, err
	}
	return LatLon{Latitude: p.Lat, Longitude: p.Lon}, nil
}

// POIOSMNodeID returns the OSM node id a point of interest was produced
// from.
func (db *Database) POIOSMNodeID(idx int) (OSMID, error) {
	p, err := db.poi(idx)
	if err != nil {
		return 0, err
	}
	return OSMID(p.OSMID), nil
}

// Features.

func (db *Database) feature(idx int) (*snapshot.Feature, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	if err := checkRange("feature", idx, len(db.data.Features)); err != nil {
		return nil, err
	}
	return &db.data.Features[idx], nil
}

// FeatureName returns a feature's name. Unnamed features have an empty
// name.
func (db *Database) FeatureName(idx int) (string, error) {
	f, err := db.feature(idx)
	if err != nil {
		return "", err
	}
	return f.Name, nil
}

// FeatureType returns a feature's classification.
func (db *Database) FeatureType(idx int) (FeatureType, error) {
	f, err := db.feature(idx)
	if err != nil {
		return FeatureUnknown, err
	}
	return FeatureType(f.Type), nil
}

// FeatureOSMID returns the tagged OSM id a feature was produced from.
// Features may derive from nodes, ways, or relations; the tag carries
// which.
func (db *Database) FeatureOSMID(idx int) (TypedOSMID, error) {
	f, err := db.feature(idx)
	if err != nil {
		return TypedOSMID{}, err
	}
	return TypedOSMID{Type: OSMEntityType(f.OSMType), ID: OSMID(f.OSMID)}, nil
}

// FeaturePointCount returns the number of boundary points describing a
// feature's shape. Whether the points form an open polyline or a closed
// polygon depends on the feature type.
func (db *Database) FeaturePointCount(idx int) (int, error) {
	f, err := db.feature(idx)
	if err != nil {
		return 0, err
	}
	return int(f.PointCount), nil
}

// FeaturePoint returns the i-th boundary point of a feature.
func (db *Database) FeaturePoint(idx, i int) (LatLon, error) {
	f, err := db.feature(idx)
	if err != nil {
		return LatLon{}, err
	}
	if err := checkRange("feature point", i, int(f.PointCount)); err != nil {
		return LatLon{}, err
	}
	p := db.data.FeaturePoints[int(f.PointFirst)+i]
	return LatLon{Latitude: p.Lat, Longitude: p.Lon}, nil
}

// Bounds returns the geographic extent of the database: the minimum
// bounding box over all intersections, POIs and feature points. The zero
// Bounds is returned for an empty database.
func (db *Database) Bounds() (Bounds, error) {
	if err := db.guard(); err != nil {
		return Bounds{}, err
	}
	return db.bounds, nil
}
