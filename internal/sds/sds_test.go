package sds_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replistore/internal/filter"
	"replistore/internal/record"
	"replistore/internal/sds"
	"replistore/internal/vclock"
)

type fakeStore struct {
	records []record.Record
}

func (f *fakeStore) Range(fn func(record.Record) bool) error {
	for _, r := range f.records {
		if !fn(r) {
			break
		}
	}
	return nil
}

func TestCalcFSICMissingUniversalIsFatal(t *testing.T) {
	s := &sds.SDS{}
	_, err := s.CalcFSIC(filter.Universal)
	require.Error(t, err)
}

func TestCalcFSICCombinesSupersets(t *testing.T) {
	s := sds.New()
	s.SetOwnCounter("A", 1)
	facilityKey := "Facility1+"
	s.UpdateSyncDS(vclock.Vector{"B": 4}, facilityKey)
	s.UpdateSyncDS(vclock.Vector{"C": 9}, "Facility1+UserX")

	f, err := filter.New("Facility1", "UserX")
	require.NoError(t, err)
	got, err := s.CalcFSIC(f)
	require.NoError(t, err)
	assert.Equal(t, vclock.Vector{"A": 1, "B": 4, "C": 9}, got)
}

func TestCalcDiffFSIC(t *testing.T) {
	part := filter.Universal
	st := &fakeStore{records: []record.Record{
		{RecordID: "r1", LastSavedBy: record.Version{Instance: "B", Counter: 1}, Partition: part},
		{RecordID: "r2", LastSavedBy: record.Version{Instance: "B", Counter: 2}, Partition: part},
		{RecordID: "r3", LastSavedBy: record.Version{Instance: "B", Counter: 3}, Partition: part},
	}}
	local := vclock.Vector{"B": 3}
	remote := vclock.Vector{"B": 1}

	changes, records, err := sds.CalcDiffFSIC(st, local, remote, "", "")
	require.NoError(t, err)
	assert.Equal(t, vclock.Vector{"B": 3}, changes)
	require.Len(t, records, 2)
	ids := []string{records[0].RecordID, records[1].RecordID}
	assert.ElementsMatch(t, []string{"r2", "r3"}, ids)
}

func TestCalcDiffFSICSkipsInstancesOnlyInRemote(t *testing.T) {
	st := &fakeStore{}
	local := vclock.Vector{"B": 1}
	remote := vclock.Vector{"B": 1, "C": 5}

	changes, records, err := sds.CalcDiffFSIC(st, local, remote, "", "")
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Empty(t, records)
}

func TestUpdateSyncDSOverwritesNotMax(t *testing.T) {
	s := sds.New()
	s.UpdateSyncDS(vclock.Vector{"A": 5}, "Facility1+")
	s.UpdateSyncDS(vclock.Vector{"A": 2}, "Facility1+") // lower value still overwrites
	v, ok := s.Get("Facility1+")
	require.True(t, ok)
	assert.Equal(t, uint64(2), v["A"])
}
