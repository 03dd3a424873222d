package streetmap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntersectionsInBounds(t *testing.T) {
	db := loadFixture(t)

	// box around the first two intersections only
	box := Bounds{MinLat: 43.642, MinLon: -79.390, MaxLat: 43.646, MaxLon: -79.380}

	got, err := db.IntersectionsInBounds(box)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, got)

	got, err = db.IntersectionsInBounds(Bounds{MinLat: 50, MinLon: 0, MaxLat: 51, MaxLon: 1})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPOIsInBounds(t *testing.T) {
	db := loadFixture(t)

	got, err := db.POIsInBounds(Bounds{MinLat: 43.64, MinLon: -79.39, MaxLat: 43.65, MaxLon: -79.38})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got)
}

func TestFeaturesInBounds(t *testing.T) {
	db := loadFixture(t)

	// overlaps the park's bounding box
	got, err := db.FeaturesInBounds(Bounds{MinLat: 43.643, MinLon: -79.394, MaxLat: 43.645, MaxLon: -79.392})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got)

	// east of the park
	got, err = db.FeaturesInBounds(Bounds{MinLat: 43.643, MinLon: -79.380, MaxLat: 43.645, MaxLon: -79.378})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNearestQueries(t *testing.T) {
	db := loadFixture(t)

	near, err := db.NearestIntersection(LatLon{Latitude: 43.6480, Longitude: -79.3775})
	require.NoError(t, err)
	assert.Equal(t, 2, near)

	near, err = db.NearestIntersection(LatLon{Latitude: 43.6425, Longitude: -79.3875})
	require.NoError(t, err)
	assert.Equal(t, 0, near)

	near, err = db.NearestPOI(LatLon{Latitude: 43.64, Longitude: -79.38})
	require.NoError(t, err)
	assert.Equal(t, 0, near)
}

// TestSpatialFallbackEquivalence loads the same snapshot with and without
// the R-tree and expects identical query results from both paths.
func TestSpatialFallbackEquivalence(t *testing.T) {
	path := writeSnapshot(t, randomCity(99))

	indexed, err := Load(path)
	require.NoError(t, err)
	defer indexed.Close()

	linear, err := LoadWithOptions(path, LoadOptions{SkipSpatialIndex: true})
	require.NoError(t, err)
	defer linear.Close()

	boxes := []Bounds{
		{MinLat: 43.6, MinLon: -79.5, MaxLat: 43.7, MaxLon: -79.3}, // everything
		{MinLat: 43.62, MinLon: -79.45, MaxLat: 43.65, MaxLon: -79.40},
		{MinLat: 43.69, MinLon: -79.32, MaxLat: 43.70, MaxLon: -79.30},
		{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}, // nothing
	}
	for _, box := range boxes {
		want, err := linear.IntersectionsInBounds(box)
		require.NoError(t, err)
		got, err := indexed.IntersectionsInBounds(box)
		require.NoError(t, err)
		assert.ElementsMatch(t, want, got, "box %+v", box)
	}

	probes := []LatLon{
		{Latitude: 43.61, Longitude: -79.49},
		{Latitude: 43.65, Longitude: -79.40},
		{Latitude: 43.69, Longitude: -79.31},
	}
	for _, p := range probes {
		want, err := linear.NearestIntersection(p)
		require.NoError(t, err)
		got, err := indexed.NearestIntersection(p)
		require.NoError(t, err)

		// The R-tree pads point rectangles by pointEpsilon, so its answer
		// may differ from the exact scan by up to that padding. Accept any
		// result within that slack of the true nearest distance.
		wantPos, err := linear.IntersectionPosition(want)
		require.NoError(t, err)
		gotPos, err := indexed.IntersectionPosition(got)
		require.NoError(t, err)

		wantDist := math.Sqrt(planarDistSq(p, wantPos.Latitude, wantPos.Longitude))
		gotDist := math.Sqrt(planarDistSq(p, gotPos.Latitude, gotPos.Longitude))
		assert.LessOrEqual(t, gotDist, wantDist+2*pointEpsilon, "probe %+v", p)
	}
}

func TestNearestOnEmptyDatabase(t *testing.T) {
	db, err := Load(writeSnapshot(t, emptySnapshot()))
	require.NoError(t, err)
	defer db.Close()

	near, err := db.NearestIntersection(LatLon{Latitude: 43, Longitude: -79})
	require.NoError(t, err)
	assert.Equal(t, -1, near)

	near, err = db.NearestPOI(LatLon{Latitude: 43, Longitude: -79})
	require.NoError(t, err)
	assert.Equal(t, -1, near)
}

func TestBoundsHelpers(t *testing.T) {
	a := Bounds{MinLat: 0, MinLon: 0, MaxLat: 2, MaxLon: 2}
	b := Bounds{MinLat: 1, MinLon: 1, MaxLat: 3, MaxLon: 3}
	c := Bounds{MinLat: 5, MinLon: 5, MaxLat: 6, MaxLon: 6}

	assert.True(t, a.Intersects(b))
	assert.True(t, b.Intersects(a))
	assert.False(t, a.Intersects(c))

	u := a.Union(b)
	assert.Equal(t, Bounds{MinLat: 0, MinLon: 0, MaxLat: 3, MaxLon: 3}, u)

	assert.True(t, a.Contains(LatLon{Latitude: 1, Longitude: 1}))
	assert.True(t, a.Contains(LatLon{Latitude: 0, Longitude: 2}), "bounds are inclusive")
	assert.False(t, a.Contains(LatLon{Latitude: 2.1, Longitude: 1}))
}
