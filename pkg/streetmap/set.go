package streetmap

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// MapSetOptions configures a MapSet.
type MapSetOptions struct {
	// CacheSize bounds how many databases stay resident at once. The least
	// recently used database is closed and evicted when the bound is
	// exceeded. Default: 8.
	CacheSize int

	// Workers bounds concurrent snapshot loads in LoadMaps.
	// Default: runtime.NumCPU().
	Workers int

	// Load is applied to every snapshot loaded through the set.
	Load LoadOptions

	// Progress is an optional callback invoked after each snapshot in
	// LoadMaps finishes, successfully or not.
	Progress func(loaded, total int)

	// Logger receives per-map load failures at warn level and eviction
	// events at debug level. Nil disables logging.
	Logger *slog.Logger
}

// DefaultMapSetOptions returns set options with defaults.
func DefaultMapSetOptions() MapSetOptions {
	return MapSetOptions{
		CacheSize: 8,
		Workers:   runtime.NumCPU(),
	}
}

// MapSet serves several city snapshots at once: a routing or rendering
// frontend can keep one set and pull whichever city a request falls in.
//
// Databases are cached with an LRU policy keyed by snapshot path; evicted
// databases are closed. Size the cache to the working set: a database
// evicted while a caller still queries it fails those queries with
// ErrClosed.
//
// Example:
//
//	set, err := streetmap.NewMapSet(streetmap.DefaultMapSetOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer set.Close()
//
//	errs := set.LoadMaps([]string{"toronto.streets.bin", "hamilton.streets.bin"})
//	for _, err := range errs {
//	    log.Printf("skipped: %v", err)
//	}
//
//	if path, db, ok := set.MapAt(streetmap.LatLon{Latitude: 43.66, Longitude: -79.39}); ok {
//	    fmt.Printf("position is covered by %s (%v)\n", path, db != nil)
//	}
type MapSet struct {
	opts MapSetOptions

	// loadMu serializes cache-miss loads in Get so concurrent Gets for the
	// same path do not load the snapshot twice.
	loadMu sync.Mutex

	cache *lru.Cache[string, *Database]
}

// NewMapSet creates an empty map set.
func NewMapSet(opts MapSetOptions) (*MapSet, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultMapSetOptions().CacheSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultMapSetOptions().Workers
	}

	s := &MapSet{opts: opts}
	cache, err := lru.NewWithEvict(opts.CacheSize, func(path string, db *Database) {
		if opts.Logger != nil {
			opts.Logger.Debug("evicting street map", "path", path)
		}
		db.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("streetmap: create map cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// LoadMaps loads the given snapshots in parallel and adds them to the set.
//
// Loading continues past individual failures; the returned slice holds one
// error per failed path. Successfully loaded maps are resident afterwards,
// subject to the LRU bound.
func (s *MapSet) LoadMaps(paths []string) []error {
	var (
		g      errgroup.Group
		errMu  sync.Mutex
		errs   []error
		loaded atomic.Int64
	)
	g.SetLimit(s.opts.Workers)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			db, err := LoadWithOptions(path, s.opts.Load)
			if err != nil {
				if s.opts.Logger != nil {
					s.opts.Logger.Warn("skipping street map", "path", path, "error", err)
				}
				errMu.Lock()
				errs = append(errs, fmt.Errorf("load %s: %w", path, err))
				errMu.Unlock()
			} else {
				s.cache.Add(path, db)
			}
			if s.opts.Progress != nil {
				s.opts.Progress(int(loaded.Add(1)), len(paths))
			}
			return nil
		})
	}
	_ = g.Wait() // workers report failures via errs, never abort the group
	return errs
}

// Get returns the database for a snapshot path, loading it on a cache
// miss. Repeated Gets for a resident path return the same *Database.
func (s *MapSet) Get(path string) (*Database, error) {
	if db, ok := s.cache.Get(path); ok {
		return db, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if db, ok := s.cache.Get(path); ok {
		return db, nil
	}

	db, err := LoadWithOptions(path, s.opts.Load)
	if err != nil {
		return nil, err
	}
	s.cache.Add(path, db)
	return db, nil
}

// Paths returns the snapshot paths currently resident, oldest first.
func (s *MapSet) Paths() []string {
	return s.cache.Keys()
}

// Len returns how many databases are currently resident.
func (s *MapSet) Len() int {
	return s.cache.Len()
}

// MapAt returns the resident map whose bounds contain the position. When
// several maps cover the position the least recently used one wins, which
// keeps the answer stable for disjoint city snapshots. Maps without any
// located entities never match. Looking up a map does not count as use for
// eviction purposes.
func (s *MapSet) MapAt(p LatLon) (string, *Database, bool) {
	for _, path := range s.cache.Keys() {
		db, ok := s.cache.Peek(path)
		if !ok || !db.hasBounds {
			continue
		}
		bounds, err := db.Bounds()
		if err != nil {
			continue
		}
		if bounds.Contains(p) {
			return path, db, true
		}
	}
	return "", nil, false
}

// CompositeBounds returns the union of all resident map bounds, skipping
// maps without any located entities. The zero Bounds is returned for an
// empty set.
func (s *MapSet) CompositeBounds() Bounds {
	var union Bounds
	seeded := false
	for _, path := range s.cache.Keys() {
		db, ok := s.cache.Peek(path)
		if !ok || !db.hasBounds {
			continue
		}
		bounds, err := db.Bounds()
		if err != nil {
			continue
		}
		if !seeded {
			union = bounds
			seeded = true
			continue
		}
		union = union.Union(bounds)
	}
	return union
}

// Close closes every resident database and empties the set.
func (s *MapSet) Close() {
	s.cache.Purge()
}
