package streetmap

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by every query on a closed Database.
var ErrClosed = errors.New("streetmap: database is closed")

// RangeError indicates an entity index or element position outside the
// valid range for the loaded dataset. Indices are never clamped; any index
// >= the current count fails with this error.
type RangeError struct {
	Entity string // e.g. "intersection", "curve point"
	Index  int
	Count  int // exclusive upper bound
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("streetmap: %s index %d out of range [0, %d)", e.Entity, e.Index, e.Count)
}

func checkRange(entity string, index, count int) error {
	if index < 0 || index >= count {
		return &RangeError{Entity: entity, Index: index, Count: count}
	}
	return nil
}
