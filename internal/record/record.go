// Package record defines the two value types that flow through the
// replication engine: the immutable versioned Store Record, and the
// mutable AppData working-set entry. Both are named structs rather than
// positional tuples, so each field carries a name and a type instead of
// a loosely-typed position.
package record

import (
	"replistore/internal/filter"
	"replistore/internal/vclock"
)

// Version uniquely names one snapshot of a record: the instance that
// wrote it, and that instance's counter at the time of the write.
type Version struct {
	Instance string
	Counter  uint64
}

// Record is an immutable snapshot of one versioned value in the Store.
//
// Invariants: RecordID is non-empty; (LastSavedBy.Instance,
// LastSavedBy.Counter) uniquely names this version; History[LastSavedBy
// .Instance] >= LastSavedBy.Counter; History is never decreasing over
// the record's lifetime at any node.
type Record struct {
	RecordID   string
	Data       string
	LastSavedBy Version
	History    vclock.Vector
	Partition  filter.Filter
}

// Clone returns an independent copy of r (History is a map and must not
// be aliased across store/appdata after a merge).
func (r Record) Clone() Record {
	return Record{
		RecordID:    r.RecordID,
		Data:        r.Data,
		LastSavedBy: r.LastSavedBy,
		History:     r.History.Clone(),
		Partition:   r.Partition,
	}
}

// DirtyState is the typed state of an AppData entry, replacing the
// spec's dirtyFlag in {0,1,2}.
type DirtyState int

const (
	// Clean means the entry matches the Store.
	Clean DirtyState = iota
	// Dirty means the entry has a pending local edit not yet serialized.
	Dirty
	// Merging is a transient marker set on an AppData entry while the
	// Integrator resolves a merge conflict against it.
	Merging
)

func (d DirtyState) String() string {
	switch d {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Merging:
		return "merging"
	default:
		return "unknown"
	}
}

// AppEntry is one entry in a node's AppData working set.
type AppEntry struct {
	RecordID  string
	Data      string
	Dirty     DirtyState
	Partition filter.Filter
}

// Clone returns an independent copy of e.
func (e AppEntry) Clone() AppEntry {
	return e
}
