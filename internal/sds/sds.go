// Package sds implements the Sync Data Structure (a per-node map from
// filter key to history vector) and the FSIC engine layered on top of
// it: calcFSIC, calcDiffFSIC, fsicDiffAndSnapshot, and updateSyncDS.
package sds

import (
	"github.com/pkg/errors"

	"replistore/internal/errs"
	"replistore/internal/filter"
	"replistore/internal/record"
	"replistore/internal/store"
	"replistore/internal/vclock"
)

// universalKey mirrors filter.Universal.Key(); kept local to make the SDS
// invariant (the "+" entry must always exist) explicit in this package.
const universalKey = "+"

// SDS maps filter key to history vector. It always contains the
// universal key; its vector dominates every other vector in the SDS
// pointwise, and its own-instance counter equals the node's current
// counter.
type SDS struct {
	vectors map[string]vclock.Vector
}

// New returns an SDS seeded with an empty universal vector.
func New() *SDS {
	return &SDS{vectors: map[string]vclock.Vector{universalKey: vclock.New()}}
}

// Get returns the vector stored under key, if present.
func (s *SDS) Get(key string) (vclock.Vector, bool) {
	v, ok := s.vectors[key]
	return v, ok
}

// SetOwnCounter updates the own-instance counter in the universal
// vector. Called by the Serializer after every local write and by the
// Integrator after every merge-conflict resolution.
func (s *SDS) SetOwnCounter(instance string, counter uint64) {
	s.vectors[universalKey][instance] = counter
}

// UniversalVector returns the universal filter's history vector.
func (s *SDS) UniversalVector() vclock.Vector {
	return s.vectors[universalKey]
}

// UpdateSyncDS applies an incoming FSIC delta to the vector stored under
// filterKey. If the key exists, each change[instance] pointwise
// *overwrites* the existing entry (not max) — correct because the
// sender's FSIC is an upper bound over this filter and per-session
// delivery is FIFO, so a later delta can never carry a lower counter than
// an earlier one (see DESIGN.md's open-question decisions). If the key is
// absent, change becomes the new vector for that key.
func (s *SDS) UpdateSyncDS(change vclock.Vector, filterKey string) {
	existing, ok := s.vectors[filterKey]
	if !ok {
		s.vectors[filterKey] = change.Clone()
		return
	}
	for instance, counter := range change {
		existing[instance] = counter
	}
}

// CalcFSIC returns the pointwise-max of the SDS vectors over the set of
// filter keys that are supersets of f: the universal key, and (if
// f.Facility is non-empty) the facility-only key, and (if both
// components are non-empty) the fully-qualified key — each included only
// if present in the SDS. The universal entry must exist; its absence is
// a fatal internal error (errs.MissingUniversalFilter).
func (s *SDS) CalcFSIC(f filter.Filter) (vclock.Vector, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if _, ok := s.vectors[universalKey]; !ok {
		return nil, errs.MissingUniversalFilter
	}

	var present []vclock.Vector
	for _, key := range f.SupersetKeys() {
		if v, ok := s.vectors[key]; ok {
			present = append(present, v)
		}
	}
	return vclock.Max(present...), nil
}

// StoreReader is the subset of store.Store that calcDiffFSIC needs to
// collect candidate records; satisfied by *store.Store.
type StoreReader interface {
	Range(fn func(record.Record) bool) error
}

// CalcDiffFSIC compares a local FSIC against a remote one and returns
// the instance counters the remote is missing, plus every store record
// needed to bring it up to date under the given partition.
//
// For each instance with a local counter lc: let rc = remoteFSIC[instance]
// (0 when absent). If lc > rc, every record with
// LastSavedBy.Instance == instance, LastSavedBy.Counter in (rc, lc], and
// Partition a subset of (facility, user), is collected; changes[instance]
// is set to lc. Instances present only in remoteFSIC contribute nothing.
func CalcDiffFSIC(st StoreReader, localFSIC, remoteFSIC vclock.Vector, facility, user string) (vclock.Vector, []record.Record, error) {
	part, err := filter.New(facility, user)
	if err != nil {
		return nil, nil, err
	}

	changes := vclock.New()
	var records []record.Record

	for instance, lc := range localFSIC {
		rc := remoteFSIC.Get(instance)
		if lc <= rc {
			continue
		}
		changes[instance] = lc

		var subsetErr error
		rangeErr := st.Range(func(r record.Record) bool {
			if r.LastSavedBy.Instance != instance {
				return true
			}
			if r.LastSavedBy.Counter <= rc || r.LastSavedBy.Counter > lc {
				return true
			}
			ok, err := r.Partition.IsSubset(part)
			if err != nil {
				subsetErr = err
				return false
			}
			if ok {
				records = append(records, r)
			}
			return true
		})
		if rangeErr != nil {
			return nil, nil, rangeErr
		}
		if subsetErr != nil {
			return nil, nil, subsetErr
		}
	}
	return changes, records, nil
}

// Snapshot is the (filter, (fsicDelta, records)) payload exchanged as
// DATA, and buffered in the incoming/outgoing buffers keyed by
// transferID.
type Snapshot struct {
	Filter    filter.Filter
	FSICDelta vclock.Vector
	Records   []record.Record
}

// FSICDiffAndSnapshot computes calcFSIC(filter) locally, diffs it
// against remoteFSIC, and packages the result as a Snapshot.
//
// The returned FSICDelta intentionally spans every superset filter key
// the local FSIC was computed over, even though Records is scoped to the
// requested filter only: the sender is asserting that the receiver now
// knows everything up to the advertised per-instance counter for records
// under this filter, which is a stronger (and correct) claim than "the
// receiver has the records it was just sent" (see DESIGN.md's
// open-question decisions).
func FSICDiffAndSnapshot(st StoreReader, s *SDS, f filter.Filter, remoteFSIC vclock.Vector) (Snapshot, error) {
	localFSIC, err := s.CalcFSIC(f)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "calcFSIC(%s)", f)
	}
	changes, records, err := CalcDiffFSIC(st, localFSIC, remoteFSIC, f.Facility, f.User)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "calcDiffFSIC(%s)", f)
	}
	return Snapshot{Filter: f, FSICDelta: changes, Records: records}, nil
}
