package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
)

// ReadFile reads and decodes a snapshot file.
//
// The whole file is read into memory and decoded in a single pass; the file
// is never re-read afterwards. On any error no partial state is returned.
func ReadFile(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Decode(raw)
}

// Decode decodes a snapshot from raw bytes.
//
// Zstd-compressed snapshots are detected by their frame magic and
// decompressed transparently. Decoding validates the header, every section
// bound against the file extent, and every cross-reference against its
// target table before any data is returned.
func Decode(raw []byte) (*Data, error) {
	if bytes.HasPrefix(raw, zstdFrameMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("snapshot: init zstd: %w", err)
		}
		defer dec.Close()
		raw, err = dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("snapshot: decompress: %w", err)
		}
	}

	sections, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}

	d := &Data{}

	heap, err := sectionBytes(raw, sections[sectionStringHeap], "string heap", 1)
	if err != nil {
		return nil, err
	}

	if d.CurvePoints, err = decodePoints(raw, sections[sectionCurvePoints], "curve points"); err != nil {
		return nil, err
	}
	if d.FeaturePoints, err = decodePoints(raw, sections[sectionFeaturePoints], "feature points"); err != nil {
		return nil, err
	}
	if d.Intersections, err = decodeIntersections(raw, sections[sectionIntersections], heap); err != nil {
		return nil, err
	}
	if d.Streets, err = decodeStreets(raw, sections[sectionStreets], heap); err != nil {
		return nil, err
	}
	if d.Segments, err = decodeSegments(raw, sections[sectionSegments], d); err != nil {
		return nil, err
	}
	if d.POIs, err = decodePOIs(raw, sections[sectionPOIs], heap); err != nil {
		return nil, err
	}
	if d.Features, err = decodeFeatures(raw, sections[sectionFeatures], heap, d); err != nil {
		return nil, err
	}

	return d, nil
}

// decodeHeader validates the preamble and reads the section directory.
func decodeHeader(raw []byte) ([sectionCount]section, error) {
	var sections [sectionCount]section

	if len(raw) < headerSize {
		return sections, fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncated, len(raw), headerSize)
	}
	if magic := binary.LittleEndian.Uint32(raw[0:4]); magic != Magic {
		return sections, fmt.Errorf("%w: got 0x%08x", ErrBadMagic, magic)
	}
	if version := binary.LittleEndian.Uint32(raw[4:8]); version != Version {
		return sections, fmt.Errorf("%w: got %d, want %d", ErrBadVersion, version, Version)
	}

	for i := range sections {
		off := preambleSize + i*16
		sections[i] = section{
			Offset: binary.LittleEndian.Uint64(raw[off : off+8]),
			Count:  binary.LittleEndian.Uint64(raw[off+8 : off+16]),
		}
	}
	return sections, nil
}

// sectionBytes bounds-checks a directory entry and returns its byte range.
// recordSize is the per-record size; for the string heap Count is already a
// byte length and recordSize is 1.
func sectionBytes(raw []byte, s section, name string, recordSize uint64) ([]byte, error) {
	length := s.Count * recordSize
	if s.Count != 0 && length/s.Count != recordSize {
		return nil, &SectionError{Section: name, Offset: s.Offset, Length: math.MaxUint64, FileSize: uint64(len(raw))}
	}
	end := s.Offset + length
	if end < s.Offset || end > uint64(len(raw)) {
		return nil, &SectionError{Section: name, Offset: s.Offset, Length: length, FileSize: uint64(len(raw))}
	}
	return raw[s.Offset:end], nil
}

// heapString bounds-checks a (offset, length) pair against the string heap
// and returns a copied string.
func heapString(heap []byte, off uint64, length uint32, entity string, index int, field string) (string, error) {
	end := off + uint64(length)
	if end < off || end > uint64(len(heap)) {
		return "", &RefError{Entity: entity, Index: index, Field: field, Value: end, Limit: uint64(len(heap))}
	}
	return string(heap[off:end]), nil
}

// decodePoints decodes a shared point table.
//
// Point record layout (16 bytes): lat float64, lon float64.
func decodePoints(raw []byte, s section, name string) ([]Point, error) {
	b, err := sectionBytes(raw, s, name, pointRecordSize)
	if err != nil {
		return nil, err
	}
	points := make([]Point, s.Count)
	for i := range points {
		rec := b[i*pointRecordSize:]
		points[i] = Point{
			Lat: math.Float64frombits(binary.LittleEndian.Uint64(rec[0:8])),
			Lon: math.Float64frombits(binary.LittleEndian.Uint64(rec[8:16])),
		}
	}
	return points, nil
}

// decodeIntersections decodes the intersection table.
//
// Intersection record layout (36 bytes):
// lat float64, lon float64, osmID uint64, nameOff uint64, nameLen uint32.
func decodeIntersections(raw []byte, s section, heap []byte) ([]Intersection, error) {
	b, err := sectionBytes(raw, s, "intersections", intersectionRecordSize)
	if err != nil {
		return nil, err
	}
	out := make([]Intersection, s.Count)
	for i := range out {
		rec := b[i*intersectionRecordSize:]
		name, err := heapString(heap,
			binary.LittleEndian.Uint64(rec[24:32]),
			binary.LittleEndian.Uint32(rec[32:36]),
			"intersection", i, "name")
		if err != nil {
			return nil, err
		}
		out[i] = Intersection{
			Lat:   math.Float64frombits(binary.LittleEndian.Uint64(rec[0:8])),
			Lon:   math.Float64frombits(binary.LittleEndian.Uint64(rec[8:16])),
			OSMID: binary.LittleEndian.Uint64(rec[16:24]),
			Name:  name,
		}
	}
	return out, nil
}

// decodeStreets decodes the street table.
//
// Street record layout (12 bytes): nameOff uint64, nameLen uint32.
func decodeStreets(raw []byte, s section, heap []byte) ([]Street, error) {
	b, err := sectionBytes(raw, s, "streets", streetRecordSize)
	if err != nil {
		return nil, err
	}
	out := make([]Street, s.Count)
	for i := range out {
		rec := b[i*streetRecordSize:]
		name, err := heapString(heap,
			binary.LittleEndian.Uint64(rec[0:8]),
			binary.LittleEndian.Uint32(rec[8:12]),
			"street", i, "name")
		if err != nil {
			return nil, err
		}
		out[i] = Street{Name: name}
	}
	return out, nil
}

// decodeSegments decodes the street segment table and validates every
// cross-reference: endpoints against the intersection table, street ids
// against the street table, curve ranges against the curve point table.
//
// Segment record layout (36 bytes):
// wayOSMID uint64, from uint32, to uint32, street uint32,
// curveFirst uint32, curveCount uint32, speedLimit float32,
// flags uint8, 3 bytes padding.
func decodeSegments(raw []byte, s section, d *Data) ([]Segment, error) {
	b, err := sectionBytes(raw, s, "street segments", segmentRecordSize)
	if err != nil {
		return nil, err
	}
	nIntersections := uint64(len(d.Intersections))
	nStreets := uint64(len(d.Streets))
	nCurve := uint64(len(d.CurvePoints))

	out := make([]Segment, s.Count)
	for i := range out {
		rec := b[i*segmentRecordSize:]
		seg := Segment{
			WayOSMID:   binary.LittleEndian.Uint64(rec[0:8]),
			From:       binary.LittleEndian.Uint32(rec[8:12]),
			To:         binary.LittleEndian.Uint32(rec[12:16]),
			Street:     binary.LittleEndian.Uint32(rec[16:20]),
			CurveFirst: binary.LittleEndian.Uint32(rec[20:24]),
			CurveCount: binary.LittleEndian.Uint32(rec[24:28]),
			SpeedLimit: math.Float32frombits(binary.LittleEndian.Uint32(rec[28:32])),
			OneWay:     rec[32]&segmentFlagOneWay != 0,
		}
		if uint64(seg.From) >= nIntersections {
			return nil, &RefError{Entity: "street segment", Index: i, Field: "from", Value: uint64(seg.From), Limit: nIntersections}
		}
		if uint64(seg.To) >= nIntersections {
			return nil, &RefError{Entity: "street segment", Index: i, Field: "to", Value: uint64(seg.To), Limit: nIntersections}
		}
		if uint64(seg.Street) >= nStreets {
			return nil, &RefError{Entity: "street segment", Index: i, Field: "street", Value: uint64(seg.Street), Limit: nStreets}
		}
		if end := uint64(seg.CurveFirst) + uint64(seg.CurveCount); end > nCurve {
			return nil, &RefError{Entity: "street segment", Index: i, Field: "curve points", Value: end, Limit: nCurve}
		}
		out[i] = seg
	}
	return out, nil
}

// decodePOIs decodes the point-of-interest table.
//
// POI record layout (48 bytes):
// lat float64, lon float64, osmID uint64, nameOff uint64, nameLen uint32,
// typeOff uint64, typeLen uint32.
func decodePOIs(raw []byte, s section, heap []byte) ([]POI, error) {
	b, err := sectionBytes(raw, s, "points of interest", poiRecordSize)
	if err != nil {
		return nil, err
	}
	out := make([]POI, s.Count)
	for i := range out {
		rec := b[i*poiRecordSize:]
		name, err := heapString(heap,
			binary.LittleEndian.Uint64(rec[24:32]),
			binary.LittleEndian.Uint32(rec[32:36]),
			"point of interest", i, "name")
		if err != nil {
			return nil, err
		}
		typ, err := heapString(heap,
			binary.LittleEndian.Uint64(rec[36:44]),
			binary.LittleEndian.Uint32(rec[44:48]),
			"point of interest", i, "type")
		if err != nil {
			return nil, err
		}
		out[i] = POI{
			Lat:   math.Float64frombits(binary.LittleEndian.Uint64(rec[0:8])),
			Lon:   math.Float64frombits(binary.LittleEndian.Uint64(rec[8:16])),
			OSMID: binary.LittleEndian.Uint64(rec[16:24]),
			Name:  name,
			Type:  typ,
		}
	}
	return out, nil
}

// decodeFeatures decodes the feature table and validates point ranges and
// the OSM entity kind tag.
//
// Feature record layout (32 bytes):
// osmID uint64, nameOff uint64, nameLen uint32, pointFirst uint32,
// pointCount uint32, featureType uint8, osmType uint8, 2 bytes padding.
func decodeFeatures(raw []byte, s section, heap []byte, d *Data) ([]Feature, error) {
	b, err := sectionBytes(raw, s, "features", featureRecordSize)
	if err != nil {
		return nil, err
	}
	nPoints := uint64(len(d.FeaturePoints))

	out := make([]Feature, s.Count)
	for i := range out {
		rec := b[i*featureRecordSize:]
		name, err := heapString(heap,
			binary.LittleEndian.Uint64(rec[8:16]),
			binary.LittleEndian.Uint32(rec[16:20]),
			"feature", i, "name")
		if err != nil {
			return nil, err
		}
		f := Feature{
			OSMID:      binary.LittleEndian.Uint64(rec[0:8]),
			Name:       name,
			PointFirst: binary.LittleEndian.Uint32(rec[20:24]),
			PointCount: binary.LittleEndian.Uint32(rec[24:28]),
			Type:       rec[28],
			OSMType:    rec[29],
		}
		if end := uint64(f.PointFirst) + uint64(f.PointCount); end > nPoints {
			return nil, &RefError{Entity: "feature", Index: i, Field: "points", Value: end, Limit: nPoints}
		}
		if f.OSMType > OSMEntityRelation {
			return nil, &RefError{Entity: "feature", Index: i, Field: "osm entity kind", Value: uint64(f.OSMType), Limit: uint64(OSMEntityRelation) + 1}
		}
		out[i] = f
	}
	return out, nil
}
