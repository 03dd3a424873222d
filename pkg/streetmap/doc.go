// Package streetmap is a read-only, memory-resident street-map database.
//
// It loads precompiled .streets.bin snapshots, a simplified street model
// extracted from OSM data by an external converter, and serves fast
// index-based queries over five entity kinds: intersections, street
// segments, streets, points of interest, and polygonal features.
//
// Consumers work with dense 0-based indices assigned at load time, never
// with the raw OSM schema. Each entity also carries its globally unique
// OSM id for coordination with tools that speak the full schema.
//
// Basic usage:
//
//	db, err := streetmap.Load("toronto.streets.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	n, _ := db.IntersectionCount()
//	for i := 0; i < n; i++ {
//	    name, _ := db.IntersectionName(i)
//	    pos, _ := db.IntersectionPosition(i)
//	    fmt.Printf("%s at (%.5f, %.5f)\n", name, pos.Latitude, pos.Longitude)
//	}
//
// Once loaded, a Database is immutable and safe for unlimited concurrent
// readers. Spatial queries (bounds and nearest lookups) are served from an
// R-tree built at load time.
//
// Use MapSet to serve multiple city snapshots behind one LRU-bounded
// handle.
package streetmap
