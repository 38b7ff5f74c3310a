// Package serializer implements the Serializer component: promoting
// dirty AppData entries into the Store under a filter, assigning
// counters as it goes.
package serializer

import (
	"go.uber.org/zap"

	"replistore/internal/appdata"
	"replistore/internal/filter"
	"replistore/internal/record"
	"replistore/internal/sds"
	"replistore/internal/store"
	"replistore/internal/vclock"
)

// Serializer promotes AppData entries into the Store, maintaining the
// node's local counter and the SDS universal vector as it does so.
type Serializer struct {
	instance string
	store    *store.Store
	app      *appdata.AppData
	sds      *sds.SDS
	counter  *uint64
	log      *zap.Logger
}

// New returns a Serializer sharing the given node state. counter is a
// pointer to the node's single local counter because the Integrator also
// increments it on merge conflicts; both components must observe the
// same monotonically increasing sequence.
func New(instance string, st *store.Store, app *appdata.AppData, s *sds.SDS, counter *uint64, log *zap.Logger) *Serializer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Serializer{instance: instance, store: st, app: app, sds: s, counter: counter, log: log}
}

// Serialize scans AppData in insertion order; for each entry that is
// dirty and whose partition is a subset of f, it increments the local
// counter, constructs or updates the corresponding Store record with a
// history vector that is the pointwise-max of the existing record's
// history (if any) with {instance: newCounter}, clears the entry's dirty
// flag, and sets SDS["+"][instance] = counter.
//
// No two records written by a single Serialize call share an
// (instance, counter) pair: the counter is incremented once per promoted
// entry, in AppData iteration order.
func (s *Serializer) Serialize(f filter.Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}

	var toPromote []record.AppEntry
	s.app.Range(func(e record.AppEntry) bool {
		if e.Dirty != record.Dirty {
			return true
		}
		ok, err := e.Partition.IsSubset(f)
		if err != nil || !ok {
			return true
		}
		toPromote = append(toPromote, e)
		return true
	})

	for _, e := range toPromote {
		*s.counter++
		newCounter := *s.counter

		existing, ok, err := s.store.Get(e.RecordID)
		if err != nil {
			return err
		}
		history := vclock.New()
		if ok {
			history = existing.History.Clone()
		}
		history[s.instance] = newCounter

		rec := record.Record{
			RecordID:    e.RecordID,
			Data:        e.Data,
			LastSavedBy: record.Version{Instance: s.instance, Counter: newCounter},
			History:     history,
			Partition:   e.Partition,
		}
		if err := s.store.Put(rec); err != nil {
			return err
		}

		e.Dirty = record.Clean
		s.app.Set(e)

		s.sds.SetOwnCounter(s.instance, newCounter)

		s.log.Debug("serialized record",
			zap.String("record_id", e.RecordID),
			zap.String("instance", s.instance),
			zap.Uint64("counter", newCounter),
			zap.String("filter", f.String()))
	}

	return nil
}
