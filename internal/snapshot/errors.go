package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrBadMagic indicates the file does not start with the snapshot magic.
	ErrBadMagic = errors.New("snapshot: bad magic")

	// ErrBadVersion indicates an unsupported snapshot format version.
	ErrBadVersion = errors.New("snapshot: unsupported version")

	// ErrTruncated indicates the file is shorter than its header requires.
	ErrTruncated = errors.New("snapshot: truncated file")
)

// SectionError indicates a directory entry that falls outside the file.
type SectionError struct {
	Section  string
	Offset   uint64
	Length   uint64 // section length in bytes
	FileSize uint64
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("snapshot: section %s [%d, %d) exceeds file size %d",
		e.Section, e.Offset, e.Offset+e.Length, e.FileSize)
}

// RefError indicates a record field referencing past the end of its target
// table (segment endpoints, street ids, string or point ranges).
type RefError struct {
	Entity string // entity kind owning the bad reference
	Index  int    // record index within its table
	Field  string // field name, e.g. "from", "name", "curve points"
	Value  uint64 // referenced index or end-of-range
	Limit  uint64 // exclusive upper bound for the reference
}

func (e *RefError) Error() string {
	return fmt.Sprintf("snapshot: %s %d: %s reference %d exceeds limit %d",
		e.Entity, e.Index, e.Field, e.Value, e.Limit)
}
