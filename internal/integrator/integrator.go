// Package integrator implements the Integrator component: applying
// incoming records via fast-forward, no-op, or deterministic
// merge-conflict resolution, and folding the accompanying FSIC delta
// into the SDS.
package integrator

import (
	"go.uber.org/zap"

	"replistore/internal/appdata"
	"replistore/internal/errs"
	"replistore/internal/filter"
	"replistore/internal/hashutil"
	"replistore/internal/record"
	"replistore/internal/sds"
	"replistore/internal/store"
	"replistore/internal/vclock"
)

// comparison is the result of compareVersions.
type comparison int

const (
	less    comparison = 0
	greater comparison = 1
	equal   comparison = 3
	concurrent comparison = 2
)

// Integrator applies incoming DATA payloads to a node's Store, AppData
// and SDS.
type Integrator struct {
	instance string
	store    *store.Store
	app      *appdata.AppData
	sds      *sds.SDS
	counter  *uint64
	log      *zap.Logger
}

// New returns an Integrator sharing the given node state. counter is a
// pointer to the node's single local counter, shared with the
// Serializer: both increment the same monotonically increasing
// sequence.
func New(instance string, st *store.Store, app *appdata.AppData, s *sds.SDS, counter *uint64, log *zap.Logger) *Integrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Integrator{instance: instance, store: st, app: app, sds: s, counter: counter, log: log}
}

// Integrate drains buffer: for each transferID it integrates every
// record in the payload, then folds fsicDelta into the SDS under the
// payload's filter key, then removes the transferID from buffer.
// buffer is mutated in place and is empty when Integrate returns nil; on
// an error it returns at once, and the failing transfer and any not yet
// reached stay in buffer.
func (ig *Integrator) Integrate(buffer map[string]sds.Snapshot) error {
	for transferID, payload := range buffer {
		for _, r := range payload.Records {
			if err := ig.integrateRecord(r); err != nil {
				return err
			}
		}
		ig.sds.UpdateSyncDS(payload.FSICDelta, filterKey(payload.Filter))
		delete(buffer, transferID)
		ig.log.Debug("integrated transfer",
			zap.String("transfer_id", transferID),
			zap.Int("record_count", len(payload.Records)))
	}
	return nil
}

// filterKey preserves the reference's key convention: facility + "+" +
// user, which collapses to the reserved "+" universal key exactly when
// facility and user are both empty.
func filterKey(f filter.Filter) string {
	return f.Key()
}

// integrateRecord applies the Integrator state machine to a single
// incoming record r: whether it's new, a fast-forward, a no-op, or a
// merge conflict depends on whether the Store and AppData already hold
// a copy and, if AppData does, whether that copy is Clean or Dirty.
func (ig *Integrator) integrateRecord(r record.Record) error {
	storeRec, storeOK, err := ig.store.Get(r.RecordID)
	if err != nil {
		return err
	}
	appEntry, appOK := ig.app.Get(r.RecordID)

	switch {
	case !storeOK && !appOK:
		return ig.installFirstTime(r)

	case !storeOK && appOK && appEntry.Dirty == record.Clean:
		return errs.InconsistentState

	case !storeOK && appOK && appEntry.Dirty == record.Dirty:
		// The store never saw this record, but AppData has an unsaved local
		// edit: treat it like any other merge conflict, with the incoming
		// record as the new store baseline (see DESIGN.md's open-question
		// decisions).
		return ig.resolveConflict(r, record.Record{}, false, appEntry)

	case storeOK && !appOK:
		return errs.InconsistentState

	case storeOK && appOK && appEntry.Dirty == record.Clean:
		return ig.integrateAgainstClean(r, storeRec, appEntry)

	case storeOK && appOK && appEntry.Dirty == record.Dirty:
		return ig.resolveConflict(r, storeRec, true, appEntry)

	default:
		return errs.InconsistentState
	}
}

// installFirstTime handles: store missing, appData missing. R is
// installed into the store and an inflated, clean copy is appended to
// AppData.
func (ig *Integrator) installFirstTime(r record.Record) error {
	if err := ig.store.Put(r); err != nil {
		return err
	}
	ig.app.Append(record.AppEntry{
		RecordID:  r.RecordID,
		Data:      r.Data,
		Dirty:     record.Clean,
		Partition: r.Partition,
	})
	ig.log.Debug("installed new record", zap.String("record_id", r.RecordID))
	return nil
}

// integrateAgainstClean handles: store present, appData present and
// clean. compareVersions decides whether this is a no-op, a
// fast-forward, or a merge conflict.
func (ig *Integrator) integrateAgainstClean(r, storeRec record.Record, appEntry record.AppEntry) error {
	cmp := compareVersions(storeRec.History, r.History, storeRec.LastSavedBy, r.LastSavedBy)
	switch cmp {
	case equal, greater:
		return nil
	case less:
		return ig.fastForward(r, storeRec)
	default: // concurrent
		return ig.resolveConflict(r, storeRec, true, appEntry)
	}
}

// fastForward installs r as the new store baseline with no counter
// increment; AppData follows since it was clean.
func (ig *Integrator) fastForward(r, storeRec record.Record) error {
	chosen := bufferDataChosen(r, storeRec.History, nil)
	if err := ig.store.Put(chosen); err != nil {
		return err
	}
	ig.app.Set(record.AppEntry{
		RecordID:  chosen.RecordID,
		Data:      chosen.Data,
		Dirty:     record.Clean,
		Partition: chosen.Partition,
	})
	ig.log.Debug("fast-forwarded record",
		zap.String("record_id", r.RecordID),
		zap.String("from_instance", r.LastSavedBy.Instance),
		zap.Uint64("from_counter", r.LastSavedBy.Counter))
	return nil
}

// resolveConflict handles every branch that performs deterministic
// merge-conflict resolution: it increments the node's local counter
// (recording it in the SDS universal vector), marks the AppData entry
// Merging, picks a winner via resolveMergeConflict,
// and installs the result into both the Store and AppData with
// {instance: newCounter} stamped into the merged history.
//
// haveStoreRec is false for the "store missing, dirty appData" branch, in
// which case storeRec's history is treated as empty and r itself becomes
// the new store baseline.
func (ig *Integrator) resolveConflict(r, storeRec record.Record, haveStoreRec bool, appEntry record.AppEntry) error {
	appEntry.Dirty = record.Merging
	ig.app.Set(appEntry)

	*ig.counter++
	ig.sds.SetOwnCounter(ig.instance, *ig.counter)
	stamped := record.Version{Instance: ig.instance, Counter: *ig.counter}

	winner := resolveMergeConflict(r.Data, appEntry.Data)

	var storeHistory vclock.Vector
	if haveStoreRec {
		storeHistory = storeRec.History
	}

	var chosen record.Record
	if winner == bufferWins {
		chosen = bufferDataChosen(r, storeHistory, &stamped)
	} else {
		chosen = appDataChosen(r, appEntry.Data, storeHistory, &stamped)
	}
	if err := ig.store.Put(chosen); err != nil {
		return err
	}
	ig.app.Set(record.AppEntry{
		RecordID:  chosen.RecordID,
		Data:      chosen.Data,
		Dirty:     record.Clean,
		Partition: chosen.Partition,
	})

	ig.log.Info("resolved merge conflict",
		zap.String("record_id", r.RecordID),
		zap.Int("winner", int(winner)),
		zap.Uint64("new_counter", *ig.counter))
	return nil
}

// winnerSide identifies which side of a merge conflict supplies the final
// payload.
type winnerSide int

const (
	bufferWins winnerSide = 0
	appDataWins winnerSide = 1
)

// resolveMergeConflict deterministically breaks a merge conflict by
// comparing md5(r.Data) against md5(appData) lexicographically as hex:
// appData wins when hash(r) <= hash(appData), otherwise the incoming
// buffer record wins. Same inputs yield the same winner on every node.
func resolveMergeConflict(rData, appData string) winnerSide {
	if hashutil.Hex(rData) <= hashutil.Hex(appData) {
		return appDataWins
	}
	return bufferWins
}

// bufferDataChosen builds the record that results from the incoming
// buffer record r winning (or fast-forwarding with no conflict, when
// stamped is nil): AppData's payload becomes r's payload, the store
// record is rewritten with r's payload, and the new history is the
// pointwise-max of r's history, the prior store history, and
// extraHist (derived from stamped). When stamped is non-nil the new
// identity is (stamped.Instance, stamped.Counter); otherwise it is r's
// own (instance, counter).
func bufferDataChosen(r record.Record, storeHistory vclock.Vector, stamped *record.Version) record.Record {
	extra := extraHist(stamped)
	history := vclock.Max(r.History, storeHistory, extra)
	identity := r.LastSavedBy
	if stamped != nil {
		identity = *stamped
	}
	return record.Record{
		RecordID:    r.RecordID,
		Data:        r.Data,
		LastSavedBy: identity,
		History:     history,
		Partition:   r.Partition,
	}
}

// appDataChosen builds the record that results from the current AppData
// payload winning a merge conflict: the store's payload becomes
// appDataPayload, with history and identity merged the same way as
// bufferDataChosen.
func appDataChosen(r record.Record, appDataPayload string, storeHistory vclock.Vector, stamped *record.Version) record.Record {
	extra := extraHist(stamped)
	history := vclock.Max(r.History, storeHistory, extra)
	identity := r.LastSavedBy
	if stamped != nil {
		identity = *stamped
	}
	return record.Record{
		RecordID:    r.RecordID,
		Data:        appDataPayload,
		LastSavedBy: identity,
		History:     history,
		Partition:   r.Partition,
	}
}

func extraHist(stamped *record.Version) vclock.Vector {
	if stamped == nil {
		return nil
	}
	return vclock.Vector{stamped.Instance: stamped.Counter}
}

// compareVersions returns the causal relationship between two versions
// ver1/ver2 of the same record, given their respective history vectors
// h1/h2:
//
//   - equal iff ver1 == ver2.
//   - less iff h2 contains ver1 at a counter >= ver1.Counter AND h1 does
//     not contain ver2 at a counter >= ver2.Counter.
//   - greater iff the reverse.
//   - concurrent otherwise (a merge conflict).
func compareVersions(h1, h2 vclock.Vector, ver1, ver2 record.Version) comparison {
	if ver1 == ver2 {
		return equal
	}
	h2HasVer1 := h2.Contains(ver1.Instance, ver1.Counter)
	h1HasVer2 := h1.Contains(ver2.Instance, ver2.Counter)
	switch {
	case h2HasVer1 && !h1HasVer2:
		return less
	case h1HasVer2 && !h2HasVer1:
		return greater
	default:
		return concurrent
	}
}
