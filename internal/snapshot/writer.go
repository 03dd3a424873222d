package snapshot

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Builder accumulates entities and serializes them into a valid snapshot.
//
// The converter tool that produces city snapshots and the test fixtures in
// this repo both go through Builder, so the write path is the single source
// of truth for the record layouts next to the reader.
//
// Add* methods return the dense index assigned to the added entity, in
// insertion order. The builder does not validate cross-references; the
// reader rejects invalid output on load.
type Builder struct {
	data Data
	heap []byte
}

// NewBuilder creates an empty snapshot builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) addString(s string) (uint64, uint32) {
	off := uint64(len(b.heap))
	b.heap = append(b.heap, s...)
	return off, uint32(len(s))
}

// AddIntersection appends an intersection record.
func (b *Builder) AddIntersection(lat, lon float64, osmID uint64, name string) int {
	b.data.Intersections = append(b.data.Intersections, Intersection{
		Lat: lat, Lon: lon, OSMID: osmID, Name: name,
	})
	return len(b.data.Intersections) - 1
}

// AddStreet appends a street record.
func (b *Builder) AddStreet(name string) int {
	b.data.Streets = append(b.data.Streets, Street{Name: name})
	return len(b.data.Streets) - 1
}

// AddSegment appends a street segment record. Curve points are copied into
// the shared curve point table.
func (b *Builder) AddSegment(wayOSMID uint64, from, to, street int, oneWay bool, speedLimit float32, curve []Point) int {
	first := uint32(len(b.data.CurvePoints))
	b.data.CurvePoints = append(b.data.CurvePoints, curve...)
	b.data.Segments = append(b.data.Segments, Segment{
		WayOSMID:   wayOSMID,
		From:       uint32(from),
		To:         uint32(to),
		Street:     uint32(street),
		CurveFirst: first,
		CurveCount: uint32(len(curve)),
		SpeedLimit: speedLimit,
		OneWay:     oneWay,
	})
	return len(b.data.Segments) - 1
}

// AddPOI appends a point-of-interest record.
func (b *Builder) AddPOI(lat, lon float64, osmID uint64, name, typ string) int {
	b.data.POIs = append(b.data.POIs, POI{
		Lat: lat, Lon: lon, OSMID: osmID, Name: name, Type: typ,
	})
	return len(b.data.POIs) - 1
}

// AddFeature appends a feature record. Boundary points are copied into the
// shared feature point table.
func (b *Builder) AddFeature(osmID uint64, osmType uint8, featureType uint8, name string, points []Point) int {
	first := uint32(len(b.data.FeaturePoints))
	b.data.FeaturePoints = append(b.data.FeaturePoints, points...)
	b.data.Features = append(b.data.Features, Feature{
		OSMID:      osmID,
		Name:       name,
		PointFirst: first,
		PointCount: uint32(len(points)),
		Type:       featureType,
		OSMType:    osmType,
	})
	return len(b.data.Features) - 1
}

// Bytes serializes the accumulated entities into snapshot format.
func (b *Builder) Bytes() []byte {
	// String heap is rebuilt on every call so Bytes is repeatable.
	b.heap = b.heap[:0]

	intersections := make([]byte, 0, len(b.data.Intersections)*intersectionRecordSize)
	for _, it := range b.data.Intersections {
		off, n := b.addString(it.Name)
		intersections = appendUint64(intersections, math.Float64bits(it.Lat))
		intersections = appendUint64(intersections, math.Float64bits(it.Lon))
		intersections = appendUint64(intersections, it.OSMID)
		intersections = appendUint64(intersections, off)
		intersections = appendUint32(intersections, n)
	}

	segments := make([]byte, 0, len(b.data.Segments)*segmentRecordSize)
	for _, seg := range b.data.Segments {
		segments = appendUint64(segments, seg.WayOSMID)
		segments = appendUint32(segments, seg.From)
		segments = appendUint32(segments, seg.To)
		segments = appendUint32(segments, seg.Street)
		segments = appendUint32(segments, seg.CurveFirst)
		segments = appendUint32(segments, seg.CurveCount)
		segments = appendUint32(segments, math.Float32bits(seg.SpeedLimit))
		var flags uint8
		if seg.OneWay {
			flags |= segmentFlagOneWay
		}
		segments = append(segments, flags, 0, 0, 0)
	}

	streets := make([]byte, 0, len(b.data.Streets)*streetRecordSize)
	for _, st := range b.data.Streets {
		off, n := b.addString(st.Name)
		streets = appendUint64(streets, off)
		streets = appendUint32(streets, n)
	}

	pois := make([]byte, 0, len(b.data.POIs)*poiRecordSize)
	for _, p := range b.data.POIs {
		nameOff, nameLen := b.addString(p.Name)
		typeOff, typeLen := b.addString(p.Type)
		pois = appendUint64(pois, math.Float64bits(p.Lat))
		pois = appendUint64(pois, math.Float64bits(p.Lon))
		pois = appendUint64(pois, p.OSMID)
		pois = appendUint64(pois, nameOff)
		pois = appendUint32(pois, nameLen)
		pois = appendUint64(pois, typeOff)
		pois = appendUint32(pois, typeLen)
	}

	features := make([]byte, 0, len(b.data.Features)*featureRecordSize)
	for _, f := range b.data.Features {
		off, n := b.addString(f.Name)
		features = appendUint64(features, f.OSMID)
		features = appendUint64(features, off)
		features = appendUint32(features, n)
		features = appendUint32(features, f.PointFirst)
		features = appendUint32(features, f.PointCount)
		features = append(features, f.Type, f.OSMType, 0, 0)
	}

	curvePoints := encodePoints(b.data.CurvePoints)
	featurePoints := encodePoints(b.data.FeaturePoints)

	tables := [sectionCount][]byte{
		sectionIntersections: intersections,
		sectionSegments:      segments,
		sectionStreets:       streets,
		sectionPOIs:          pois,
		sectionFeatures:      features,
		sectionCurvePoints:   curvePoints,
		sectionFeaturePoints: featurePoints,
		sectionStringHeap:    b.heap,
	}
	counts := [sectionCount]uint64{
		sectionIntersections: uint64(len(b.data.Intersections)),
		sectionSegments:      uint64(len(b.data.Segments)),
		sectionStreets:       uint64(len(b.data.Streets)),
		sectionPOIs:          uint64(len(b.data.POIs)),
		sectionFeatures:      uint64(len(b.data.Features)),
		sectionCurvePoints:   uint64(len(b.data.CurvePoints)),
		sectionFeaturePoints: uint64(len(b.data.FeaturePoints)),
		sectionStringHeap:    uint64(len(b.heap)),
	}

	total := headerSize
	for _, t := range tables {
		total += len(t)
	}

	out := make([]byte, 0, total)
	out = appendUint32(out, Magic)
	out = appendUint32(out, Version)

	offset := uint64(headerSize)
	for i, t := range tables {
		out = appendUint64(out, offset)
		out = appendUint64(out, counts[i])
		offset += uint64(len(t))
	}
	for _, t := range tables {
		out = append(out, t...)
	}
	return out
}

// BytesCompressed serializes the snapshot and compresses it with zstd.
func (b *Builder) BytesCompressed() ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: init zstd: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(b.Bytes(), nil), nil
}

// WriteFile serializes the snapshot to path. If compress is true the file
// is written as a single zstd frame, which ReadFile detects transparently.
func (b *Builder) WriteFile(path string, compress bool) error {
	var buf []byte
	if compress {
		var err error
		buf, err = b.BytesCompressed()
		if err != nil {
			return err
		}
	} else {
		buf = b.Bytes()
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func encodePoints(points []Point) []byte {
	out := make([]byte, 0, len(points)*pointRecordSize)
	for _, p := range points {
		out = appendUint64(out, math.Float64bits(p.Lat))
		out = appendUint64(out, math.Float64bits(p.Lon))
	}
	return out
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func appendUint64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}
