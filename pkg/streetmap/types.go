package streetmap

import (
	"fmt"

	"github.com/mapforge/streetdb/internal/snapshot"
)

// LatLon is a geographic position in WGS-84 decimal degrees.
type LatLon struct {
	Latitude  float64
	Longitude float64
}

// OSMID is a globally unique identifier from the source OSM dataset.
//
// OSM ids are opaque lookup keys: they are not dense and must never be used
// as array indices. Multiple street segments may share one source way id.
type OSMID uint64

// OSMEntityType tags which kind of OSM entity produced a record.
//
// Only features need the tag; intersections and POIs are always
// node-sourced.
type OSMEntityType uint8

const (
	OSMEntityNode OSMEntityType = iota
	OSMEntityWay
	OSMEntityRelation
)

// String returns the OSM entity kind name.
func (t OSMEntityType) String() string {
	switch t {
	case OSMEntityNode:
		return "node"
	case OSMEntityWay:
		return "way"
	case OSMEntityRelation:
		return "relation"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// TypedOSMID is an OSM id tagged with the entity kind that produced it.
type TypedOSMID struct {
	Type OSMEntityType
	ID   OSMID
}

// FeatureType classifies a map feature.
type FeatureType uint8

const (
	FeatureUnknown FeatureType = iota
	FeaturePark
	FeatureBeach
	FeatureLake
	FeatureRiver
	FeatureIsland
	FeatureBuilding
	FeatureGreenspace
	FeatureGolfCourse
	FeatureStream
)

// String returns the feature type name.
func (t FeatureType) String() string {
	switch t {
	case FeaturePark:
		return "park"
	case FeatureBeach:
		return "beach"
	case FeatureLake:
		return "lake"
	case FeatureRiver:
		return "river"
	case FeatureIsland:
		return "island"
	case FeatureBuilding:
		return "building"
	case FeatureGreenspace:
		return "greenspace"
	case FeatureGolfCourse:
		return "golf course"
	case FeatureStream:
		return "stream"
	default:
		return "unknown"
	}
}

// StreetSegmentInfo holds the fixed attributes of one street segment.
//
// From and To are intersection indices into the same database; StreetID is
// the index of the street the segment belongs to. If OneWay is true, travel
// is only legal in the From->To direction.
type StreetSegmentInfo struct {
	WayOSMID        OSMID // multiple segments may share one way id
	From            int
	To              int
	OneWay          bool
	SpeedLimit      float32 // km/h
	CurvePointCount int
	StreetID        int
}

func segmentInfo(seg snapshot.Segment) StreetSegmentInfo {
	return StreetSegmentInfo{
		WayOSMID:        OSMID(seg.WayOSMID),
		From:            int(seg.From),
		To:              int(seg.To),
		OneWay:          seg.OneWay,
		SpeedLimit:      seg.SpeedLimit,
		CurvePointCount: int(seg.CurveCount),
		StreetID:        int(seg.Street),
	}
}
