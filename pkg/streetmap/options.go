package streetmap

import "log/slog"

// LoadOptions configures snapshot loading.
type LoadOptions struct {
	// SkipSpatialIndex disables the R-tree built at load time. Bounds and
	// nearest queries still work but fall back to linear scans. Useful for
	// batch tools that only need indexed accessors.
	SkipSpatialIndex bool

	// Logger receives debug-level load summaries (entity counts, duration).
	// Nil disables logging.
	Logger *slog.Logger
}

// DefaultLoadOptions returns default options: spatial index enabled, no
// logging.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{}
}
