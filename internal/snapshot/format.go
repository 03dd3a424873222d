package snapshot

// On-disk layout of a .streets.bin snapshot (all integers little-endian):
//
//	preamble:  magic "STRB" (4 bytes) + format version (uint32)
//	directory: 8 sections, each {offset uint64, count uint64}
//	sections:  fixed-size record tables, then the shared point tables,
//	           then the string heap
//
// Variable-length data is never embedded in records. Strings are stored as
// (offset, length) into one shared string heap; curve and feature point
// lists are stored as (first, count) into one shared point table per list
// kind. This keeps every record fixed-size and every element lookup O(1).

const (
	// Magic identifies streets snapshot files ("STRB").
	Magic = uint32(0x53545242)

	// Version is the current snapshot format version.
	Version = uint32(1)
)

// Section indices within the directory. The directory order is part of the
// format and must not change within a version.
const (
	sectionIntersections = iota
	sectionSegments
	sectionStreets
	sectionPOIs
	sectionFeatures
	sectionCurvePoints
	sectionFeaturePoints
	sectionStringHeap // count holds the heap length in bytes

	sectionCount
)

const (
	preambleSize  = 8
	sectionDirLen = sectionCount * 16
	headerSize    = preambleSize + sectionDirLen
)

// Record sizes in bytes. Each record layout is documented on the
// corresponding decode function in reader.go.
const (
	intersectionRecordSize = 36
	segmentRecordSize      = 36
	streetRecordSize       = 12
	poiRecordSize          = 48
	featureRecordSize      = 32
	pointRecordSize        = 16
)

// Segment flag bits.
const (
	segmentFlagOneWay = 1 << 0
)

// zstdFrameMagic is the zstd frame header. Snapshots may be compressed as a
// whole file; the reader sniffs this prefix and decompresses transparently.
var zstdFrameMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// section describes one directory entry: where a table starts and how many
// records (or heap bytes) it holds.
type section struct {
	Offset uint64
	Count  uint64
}

// Point is a latitude/longitude position stored in the shared point tables.
type Point struct {
	Lat float64
	Lon float64
}

// Intersection is a decoded intersection record. The display name is
// pre-resolved and unique within a snapshot; uniqueness is an upstream
// guarantee and is not re-checked here.
type Intersection struct {
	Lat   float64
	Lon   float64
	OSMID uint64
	Name  string
}

// Segment is a decoded street segment record. From, To and Street reference
// the intersection and street tables of the same snapshot; CurveFirst and
// CurveCount reference the shared curve point table.
type Segment struct {
	WayOSMID   uint64
	From       uint32
	To         uint32
	Street     uint32
	CurveFirst uint32
	CurveCount uint32
	SpeedLimit float32
	OneWay     bool
}

// Street is a decoded street record. Segments point at their street; the
// forward street->segments relation is derived by consumers.
type Street struct {
	Name string
}

// POI is a decoded point-of-interest record. POIs are always node-sourced.
type POI struct {
	Lat   float64
	Lon   float64
	OSMID uint64
	Name  string
	Type  string
}

// OSM entity kind tags for feature records. Only features need the tag;
// intersections and POIs are always node-sourced.
const (
	OSMEntityNode = uint8(iota)
	OSMEntityWay
	OSMEntityRelation
)

// Feature is a decoded polygonal/polyline feature record. PointFirst and
// PointCount reference the shared feature point table. OSMType tags which
// OSM entity kind produced the feature.
type Feature struct {
	OSMID      uint64
	Name       string
	PointFirst uint32
	PointCount uint32
	Type       uint8
	OSMType    uint8
}

// Data holds all decoded tables of one snapshot. Strings are copies; no
// field aliases the snapshot file bytes, so Data stays valid after the
// source buffer is released.
type Data struct {
	Intersections []Intersection
	Segments      []Segment
	Streets       []Street
	POIs          []POI
	Features      []Feature

	// CurvePoints and FeaturePoints are the shared variable-length tables
	// referenced by Segment and Feature records.
	CurvePoints   []Point
	FeaturePoints []Point
}
