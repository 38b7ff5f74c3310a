// Package appdata implements the AppData component: the ordered,
// application-facing working set of records, tracked separately from the
// authoritative Store so local edits can accumulate dirty flags between
// serialize calls.
package appdata

import (
	"replistore/internal/filter"
	"replistore/internal/record"
)

// AppData is an insertion-ordered collection of AppEntry values, indexed
// by recordID for O(1) lookup while preserving iteration order for
// serialize's stable, deterministic counter assignment.
type AppData struct {
	order   []string
	entries map[string]record.AppEntry
}

// New returns an empty AppData working set.
func New() *AppData {
	return &AppData{entries: make(map[string]record.AppEntry)}
}

// Upsert adds or updates the entry for recordID with the given payload
// and partition, marking it Dirty. Upserting an existing entry preserves
// its position in iteration order.
func (a *AppData) Upsert(recordID, data string, partition filter.Filter) {
	if _, ok := a.entries[recordID]; !ok {
		a.order = append(a.order, recordID)
	}
	a.entries[recordID] = record.AppEntry{
		RecordID:  recordID,
		Data:      data,
		Dirty:     record.Dirty,
		Partition: partition,
	}
}

// Get returns the entry for recordID, if present.
func (a *AppData) Get(recordID string) (record.AppEntry, bool) {
	e, ok := a.entries[recordID]
	return e, ok
}

// Set overwrites the entry for e.RecordID in place, keeping its position
// in iteration order; an entry not yet present is appended to the end.
// Unlike Upsert, Set stores e's Dirty state as given.
func (a *AppData) Set(e record.AppEntry) {
	if _, ok := a.entries[e.RecordID]; !ok {
		a.order = append(a.order, e.RecordID)
	}
	a.entries[e.RecordID] = e
}

// Append adds e to the end of iteration order. Used when the Integrator
// installs a brand-new record learned from a peer. For a recordID that is
// already present it behaves like Set and keeps the existing position.
func (a *AppData) Append(e record.AppEntry) {
	a.Set(e)
}

// Range calls fn for every entry in insertion order. fn returning false
// stops iteration early. Mutations to the entry during iteration should
// go through Set, not by mutating the value passed to fn (which is a
// copy).
func (a *AppData) Range(fn func(record.AppEntry) bool) {
	for _, id := range a.order {
		e, ok := a.entries[id]
		if !ok {
			continue
		}
		if !fn(e) {
			return
		}
	}
}

// Len returns the number of entries.
func (a *AppData) Len() int {
	return len(a.order)
}
