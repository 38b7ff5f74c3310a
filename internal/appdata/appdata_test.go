package appdata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replistore/internal/appdata"
	"replistore/internal/filter"
	"replistore/internal/record"
)

func TestUpsertMarksDirtyAndPreservesOrder(t *testing.T) {
	a := appdata.New()
	a.Upsert("r1", "v1", filter.Universal)
	a.Upsert("r2", "v1", filter.Universal)
	a.Upsert("r1", "v2", filter.Universal) // update, not a new entry

	var order []string
	a.Range(func(e record.AppEntry) bool {
		order = append(order, e.RecordID)
		return true
	})
	assert.Equal(t, []string{"r1", "r2"}, order, "updating r1 must not move it to the end")

	entry, ok := a.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "v2", entry.Data)
	assert.Equal(t, record.Dirty, entry.Dirty)
}

func TestSetRequiresNoPriorEntryToAppend(t *testing.T) {
	a := appdata.New()
	a.Set(record.AppEntry{RecordID: "r1", Data: "first", Dirty: record.Clean})
	assert.Equal(t, 1, a.Len())

	a.Set(record.AppEntry{RecordID: "r1", Data: "second", Dirty: record.Clean})
	assert.Equal(t, 1, a.Len(), "Set on an existing recordID overwrites in place")

	entry, ok := a.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "second", entry.Data)
}

func TestRangeStopsEarly(t *testing.T) {
	a := appdata.New()
	a.Upsert("r1", "a", filter.Universal)
	a.Upsert("r2", "b", filter.Universal)
	a.Upsert("r3", "c", filter.Universal)

	var seen []string
	a.Range(func(e record.AppEntry) bool {
		seen = append(seen, e.RecordID)
		return e.RecordID != "r2"
	})
	assert.Equal(t, []string{"r1", "r2"}, seen)
}
