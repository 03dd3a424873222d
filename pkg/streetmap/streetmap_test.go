package streetmap

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapforge/streetdb/internal/snapshot"
)

// downtownSnapshot builds the canonical test fixture: three intersections
// chained by two segments (0->1, 1->2) on two streets, one POI and one
// park feature.
func downtownSnapshot() *snapshot.Builder {
	b := snapshot.NewBuilder()

	b.AddIntersection(43.6426, -79.3871, 101, "King & Simcoe")
	b.AddIntersection(43.6452, -79.3806, 102, "King & University")
	b.AddIntersection(43.6481, -79.3773, 103, "Queen & University")

	king := b.AddStreet("King Street West")
	university := b.AddStreet("University Avenue")

	b.AddSegment(5001, 0, 1, king, false, 40, []snapshot.Point{{Lat: 43.6437, Lon: -79.3840}})
	b.AddSegment(5002, 1, 2, university, true, 50, nil)

	b.AddPOI(43.6429, -79.3849, 7001, "Roy Thomson Hall", "theatre")

	b.AddFeature(9001, snapshot.OSMEntityWay, uint8(FeaturePark), "Clarence Square", []snapshot.Point{
		{Lat: 43.6440, Lon: -79.3930},
		{Lat: 43.6445, Lon: -79.3921},
		{Lat: 43.6436, Lon: -79.3915},
	})

	return b
}

func writeBytes(path string, raw []byte) error {
	return os.WriteFile(path, raw, 0644)
}

// writeSnapshot writes a builder to a temp file and returns the path.
func writeSnapshot(t *testing.T, b *snapshot.Builder) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.streets.bin")
	require.NoError(t, b.WriteFile(path, false))
	return path
}

func loadFixture(t *testing.T) *Database {
	t.Helper()
	db, err := Load(writeSnapshot(t, downtownSnapshot()))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestCounts(t *testing.T) {
	db := loadFixture(t)

	n, err := db.IntersectionCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = db.StreetSegmentCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = db.StreetCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = db.POICount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = db.FeatureCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIntersectionAccessors(t *testing.T) {
	db := loadFixture(t)

	name, err := db.IntersectionName(1)
	require.NoError(t, err)
	assert.Equal(t, "King & University", name)

	pos, err := db.IntersectionPosition(0)
	require.NoError(t, err)
	assert.InDelta(t, 43.6426, pos.Latitude, 1e-9)
	assert.InDelta(t, -79.3871, pos.Longitude, 1e-9)

	id, err := db.IntersectionOSMNodeID(2)
	require.NoError(t, err)
	assert.Equal(t, OSMID(103), id)
}

// TestAdjacency checks the chained scenario: the middle intersection sees
// both segments, the endpoints see one each.
func TestAdjacency(t *testing.T) {
	db := loadFixture(t)

	count, err := db.IntersectionSegmentCount(1)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	incident := make(map[int]bool)
	for i := 0; i < count; i++ {
		seg, err := db.IntersectionSegment(1, i)
		require.NoError(t, err)
		incident[seg] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true}, incident)

	for _, idx := range []int{0, 2} {
		count, err := db.IntersectionSegmentCount(idx)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "intersection %d", idx)
	}

	seg, err := db.IntersectionSegment(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, seg)
	seg, err = db.IntersectionSegment(2, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, seg)
}

func TestSegmentAccessors(t *testing.T) {
	db := loadFixture(t)
	nIntersections, err := db.IntersectionCount()
	require.NoError(t, err)

	info, err := db.StreetSegment(0)
	require.NoError(t, err)
	assert.Equal(t, OSMID(5001), info.WayOSMID)
	assert.Equal(t, 0, info.From)
	assert.Equal(t, 1, info.To)
	assert.False(t, info.OneWay)
	assert.Equal(t, float32(40), info.SpeedLimit)
	assert.Equal(t, 1, info.CurvePointCount)
	assert.Equal(t, 0, info.StreetID)

	// every endpoint must be a valid intersection index
	nSegments, err := db.StreetSegmentCount()
	require.NoError(t, err)
	for i := 0; i < nSegments; i++ {
		info, err := db.StreetSegment(i)
		require.NoError(t, err)
		assert.Less(t, info.From, nIntersections)
		assert.Less(t, info.To, nIntersections)
	}

	cp, err := db.StreetSegmentCurvePoint(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 43.6437, cp.Latitude, 1e-9)
	assert.InDelta(t, -79.3840, cp.Longitude, 1e-9)
}

func TestStreetAccessors(t *testing.T) {
	db := loadFixture(t)

	name, err := db.StreetName(1)
	require.NoError(t, err)
	assert.Equal(t, "University Avenue", name)

	segs, err := db.StreetSegments(0)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, segs)

	xs, err := db.StreetIntersections(0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, xs)

	xs, err = db.StreetIntersections(1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, xs)
}

func TestPOIAccessors(t *testing.T) {
	db := loadFixture(t)

	name, err := db.POIName(0)
	require.NoError(t, err)
	assert.Equal(t, "Roy Thomson Hall", name)

	typ, err := db.POIType(0)
	require.NoError(t, err)
	assert.Equal(t, "theatre", typ)

	pos, err := db.POIPosition(0)
	require.NoError(t, err)
	assert.InDelta(t, 43.6429, pos.Latitude, 1e-9)

	id, err := db.POIOSMNodeID(0)
	require.NoError(t, err)
	assert.Equal(t, OSMID(7001), id)
}

func TestFeatureAccessors(t *testing.T) {
	db := loadFixture(t)

	name, err := db.FeatureName(0)
	require.NoError(t, err)
	assert.Equal(t, "Clarence Square", name)

	typ, err := db.FeatureType(0)
	require.NoError(t, err)
	assert.Equal(t, FeaturePark, typ)

	id, err := db.FeatureOSMID(0)
	require.NoError(t, err)
	assert.Equal(t, TypedOSMID{Type: OSMEntityWay, ID: 9001}, id)

	n, err := db.FeaturePointCount(0)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	p, err := db.FeaturePoint(0, 2)
	require.NoError(t, err)
	assert.InDelta(t, 43.6436, p.Latitude, 1e-9)
	assert.InDelta(t, -79.3915, p.Longitude, 1e-9)
}

// TestOutOfRange drives every index-taking accessor past its range and
// expects a RangeError, never a clamped or default value.
func TestOutOfRange(t *testing.T) {
	db := loadFixture(t)

	var re *RangeError

	_, err := db.IntersectionName(3)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "intersection", re.Entity)
	assert.Equal(t, 3, re.Index)
	assert.Equal(t, 3, re.Count)

	_, err = db.IntersectionPosition(-1)
	assert.ErrorAs(t, err, &re)

	_, err = db.IntersectionSegment(1, 2)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "incident segment", re.Entity)

	_, err = db.StreetSegment(2)
	assert.ErrorAs(t, err, &re)

	_, err = db.StreetSegmentCurvePoint(0, 1)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "curve point", re.Entity)

	_, err = db.StreetSegmentCurvePoint(1, 0)
	assert.ErrorAs(t, err, &re, "segment without curve points")

	_, err = db.StreetName(2)
	assert.ErrorAs(t, err, &re)

	_, err = db.StreetSegments(5)
	assert.ErrorAs(t, err, &re)

	_, err = db.POIName(1)
	assert.ErrorAs(t, err, &re)

	_, err = db.FeaturePoint(0, 3)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "feature point", re.Entity)

	_, err = db.FeatureOSMID(1)
	assert.ErrorAs(t, err, &re)
}

// TestClosed checks that every accessor fails with ErrClosed after Close
// and that Close is idempotent.
func TestClosed(t *testing.T) {
	db, err := Load(writeSnapshot(t, downtownSnapshot()))
	require.NoError(t, err)

	db.Close()
	db.Close() // idempotent

	_, err = db.IntersectionCount()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.StreetSegmentCount()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.StreetCount()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.POICount()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.FeatureCount()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.IntersectionName(0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.StreetSegment(0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.StreetName(0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.POIName(0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.FeatureName(0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.Bounds()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.IntersectionsInBounds(Bounds{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.NearestIntersection(LatLon{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoadFailureLeavesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.streets.bin")
	raw := downtownSnapshot().Bytes()
	require.NoError(t, writeBytes(path, raw[:len(raw)-10]))

	db, err := Load(path)
	require.Error(t, err)
	assert.Nil(t, db)

	var se *snapshot.SectionError
	assert.True(t, errors.As(err, &se))
}

// TestDeterminism loads the same snapshot twice and expects identical
// counts, attributes and adjacency ordering.
func TestDeterminism(t *testing.T) {
	path := writeSnapshot(t, downtownSnapshot())

	db1, err := Load(path)
	require.NoError(t, err)
	defer db1.Close()
	db2, err := Load(path)
	require.NoError(t, err)
	defer db2.Close()

	n1, err := db1.IntersectionCount()
	require.NoError(t, err)
	n2, err := db2.IntersectionCount()
	require.NoError(t, err)
	require.Equal(t, n1, n2)

	for i := 0; i < n1; i++ {
		name1, err := db1.IntersectionName(i)
		require.NoError(t, err)
		name2, err := db2.IntersectionName(i)
		require.NoError(t, err)
		assert.Equal(t, name1, name2)

		c1, err := db1.IntersectionSegmentCount(i)
		require.NoError(t, err)
		c2, err := db2.IntersectionSegmentCount(i)
		require.NoError(t, err)
		require.Equal(t, c1, c2)
		for k := 0; k < c1; k++ {
			s1, err := db1.IntersectionSegment(i, k)
			require.NoError(t, err)
			s2, err := db2.IntersectionSegment(i, k)
			require.NoError(t, err)
			assert.Equal(t, s1, s2, "adjacency ordering must be stable")
		}
	}
}

func TestBounds(t *testing.T) {
	db := loadFixture(t)

	b, err := db.Bounds()
	require.NoError(t, err)

	// feature points reach further west than any intersection
	assert.InDelta(t, -79.3930, b.MinLon, 1e-9)
	assert.InDelta(t, -79.3773, b.MaxLon, 1e-9)
	assert.InDelta(t, 43.6426, b.MinLat, 1e-9)
	assert.InDelta(t, 43.6481, b.MaxLat, 1e-9)
	assert.True(t, b.Contains(LatLon{Latitude: 43.645, Longitude: -79.385}))
	assert.False(t, b.Contains(LatLon{Latitude: 44.0, Longitude: -79.385}))
}

func TestConcurrentReads(t *testing.T) {
	db := loadFixture(t)

	done := make(chan error, 8)
	for w := 0; w < 8; w++ {
		go func() {
			for i := 0; i < 500; i++ {
				if _, err := db.IntersectionName(i % 3); err != nil {
					done <- err
					return
				}
				if _, err := db.IntersectionSegmentCount(i % 3); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}()
	}
	for w := 0; w < 8; w++ {
		require.NoError(t, <-done)
	}
}

// TestCloseDuringQueries closes the database while readers are mid-query.
// Every query must either complete normally or fail with ErrClosed; run
// with -race to check the close path stays data-race free.
func TestCloseDuringQueries(t *testing.T) {
	db := loadFixture(t)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 1000; i++ {
				name, err := db.IntersectionName(i % 3)
				if err != nil {
					assert.ErrorIs(t, err, ErrClosed)
					return
				}
				assert.NotEmpty(t, name)
				if _, err := db.NearestIntersection(LatLon{Latitude: 43.64, Longitude: -79.38}); err != nil {
					assert.ErrorIs(t, err, ErrClosed)
					return
				}
			}
		}()
	}
	close(start)
	db.Close()
	wg.Wait()
}

func BenchmarkIntersectionSegment(b *testing.B) {
	builder := downtownSnapshot()
	path := filepath.Join(b.TempDir(), "bench.streets.bin")
	if err := builder.WriteFile(path, false); err != nil {
		b.Fatal(err)
	}
	db, err := Load(path)
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := db.IntersectionSegment(1, i%2); err != nil {
			b.Fatal(err)
		}
	}
}
