package node_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replistore/internal/filter"
	"replistore/internal/node"
	"replistore/internal/transport"
)

// TestNodePullPropagatesRemoteWrite covers: A writes a record, B pulls
// from A, and B ends up with a clean copy.
func TestNodePullPropagatesRemoteWrite(t *testing.T) {
	tr := transport.NewInMemory()
	a, err := node.New("A", tr)
	require.NoError(t, err)
	b, err := node.New("B", tr)
	require.NoError(t, err)

	require.NoError(t, a.AddAppData("record1", "hello from A", "", ""))
	require.NoError(t, a.Serialize(filter.Universal))

	sessionID, err := b.CreateSyncSession("A")
	require.NoError(t, err)
	require.NoError(t, b.PullInitiation(sessionID, filter.Universal))

	got, ok, err := b.Store().Get("record1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello from A", got.Data)
	assert.Equal(t, "A", got.LastSavedBy.Instance)

	entry, ok := b.AppData().Get("record1")
	require.True(t, ok)
	assert.Equal(t, "hello from A", entry.Data)
}

// TestNodePushPropagation exercises the PUSH/PUSH2/DATA round trip in the
// opposite direction: A pushes to B.
func TestNodePushPropagation(t *testing.T) {
	tr := transport.NewInMemory()
	a, err := node.New("A", tr)
	require.NoError(t, err)
	b, err := node.New("B", tr)
	require.NoError(t, err)

	require.NoError(t, a.AddAppData("record1", "pushed data", "", ""))
	require.NoError(t, a.Serialize(filter.Universal))

	sessionID, err := a.CreateSyncSession("B")
	require.NoError(t, err)
	require.NoError(t, a.PushInitiation(sessionID, filter.Universal))

	got, ok, err := b.Store().Get("record1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pushed data", got.Data)
}

// TestNodeFastForwardsOnDominatingPull covers: B already holds an older
// clean copy of a record; a second pull fast-forwards it to A's newer,
// dominating version without touching B's counter.
func TestNodeFastForwardsOnDominatingPull(t *testing.T) {
	tr := transport.NewInMemory()
	a, err := node.New("A", tr)
	require.NoError(t, err)
	b, err := node.New("B", tr)
	require.NoError(t, err)

	require.NoError(t, a.AddAppData("record1", "A v1", "", ""))
	require.NoError(t, a.Serialize(filter.Universal))

	sessionID, err := b.CreateSyncSession("A")
	require.NoError(t, err)
	require.NoError(t, b.PullInitiation(sessionID, filter.Universal))

	before, ok, err := b.Store().Get("record1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A v1", before.Data)
	beforeCounter := b.Counter()

	require.NoError(t, a.AddAppData("record1", "A v2", "", ""))
	require.NoError(t, a.Serialize(filter.Universal))

	require.NoError(t, b.PullInitiation(sessionID, filter.Universal))

	after, ok, err := b.Store().Get("record1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A v2", after.Data)
	assert.Equal(t, "A", after.LastSavedBy.Instance)
	assert.Equal(t, uint64(2), after.LastSavedBy.Counter)
	assert.Equal(t, beforeCounter, b.Counter(), "a fast-forward must not consume B's own counter")
}

// TestNodePushResolvesConcurrentWriteOnReceiver covers: A and B each
// independently write the same record with no shared history, and A's push
// to B forces deterministic merge-conflict resolution on B.
func TestNodePushResolvesConcurrentWriteOnReceiver(t *testing.T) {
	tr := transport.NewInMemory()
	a, err := node.New("A", tr)
	require.NoError(t, err)
	b, err := node.New("B", tr)
	require.NoError(t, err)

	require.NoError(t, a.AddAppData("record1", "A data", "", ""))
	require.NoError(t, a.Serialize(filter.Universal))

	require.NoError(t, b.AddAppData("record1", "B data", "", ""))
	require.NoError(t, b.Serialize(filter.Universal))

	sessionID, err := a.CreateSyncSession("B")
	require.NoError(t, err)
	require.NoError(t, a.PushInitiation(sessionID, filter.Universal))

	got, ok, err := b.Store().Get("record1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, []string{"A data", "B data"}, got.Data)
	assert.Equal(t, "B", got.LastSavedBy.Instance, "resolution is stamped by the node doing the integrating")
	assert.Equal(t, uint64(2), got.LastSavedBy.Counter, "B's own serialize already spent counter 1")
	assert.Equal(t, uint64(1), got.History["A"])
	assert.Equal(t, uint64(2), got.History["B"])

	entry, ok := b.AppData().Get("record1")
	require.True(t, ok)
	assert.Equal(t, got.Data, entry.Data)

	// A's own copy of the record is untouched: integration only ever
	// happens on the receiving side.
	aRec, ok, err := a.Store().Get("record1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A data", aRec.Data)
}

// TestNodeFilterScopedPushOnlyTransfersMatchingRecords covers: pushing a
// facility-scoped filter only transfers records whose partition is a subset
// of that filter.
func TestNodeFilterScopedPushOnlyTransfersMatchingRecords(t *testing.T) {
	tr := transport.NewInMemory()
	a, err := node.New("A", tr)
	require.NoError(t, err)
	b, err := node.New("B", tr)
	require.NoError(t, err)

	require.NoError(t, a.AddAppData("facilityRecord", "scoped data", "Facility1", ""))
	require.NoError(t, a.Serialize(mustFilter(t, "Facility1", "")))

	require.NoError(t, a.AddAppData("universalRecord", "unscoped data", "", ""))
	require.NoError(t, a.Serialize(filter.Universal))

	sessionID, err := a.CreateSyncSession("B")
	require.NoError(t, err)
	require.NoError(t, a.PushInitiation(sessionID, mustFilter(t, "Facility1", "")))

	_, ok, err := b.Store().Get("facilityRecord")
	require.NoError(t, err)
	assert.True(t, ok, "the facility-scoped record must transfer")

	_, ok, err = b.Store().Get("universalRecord")
	require.NoError(t, err)
	assert.False(t, ok, "a record outside the pushed filter must not transfer")
}

// TestNodeRingTopologyConvergesAfterRounds covers: three nodes arranged in
// a ring, each holding a distinct record, converge to holding all three
// records after pushing around the ring.
func TestNodeRingTopologyConvergesAfterRounds(t *testing.T) {
	tr := transport.NewInMemory()
	a, err := node.New("A", tr)
	require.NoError(t, err)
	b, err := node.New("B", tr)
	require.NoError(t, err)
	c, err := node.New("C", tr)
	require.NoError(t, err)

	require.NoError(t, a.AddAppData("recordA", "from A", "", ""))
	require.NoError(t, a.Serialize(filter.Universal))
	require.NoError(t, b.AddAppData("recordB", "from B", "", ""))
	require.NoError(t, b.Serialize(filter.Universal))
	require.NoError(t, c.AddAppData("recordC", "from C", "", ""))
	require.NoError(t, c.Serialize(filter.Universal))

	sessionAB, err := a.CreateSyncSession("B")
	require.NoError(t, err)
	sessionBC, err := b.CreateSyncSession("C")
	require.NoError(t, err)
	sessionCA, err := c.CreateSyncSession("A")
	require.NoError(t, err)

	for round := 0; round < 2; round++ {
		require.NoError(t, a.PushInitiation(sessionAB, filter.Universal))
		require.NoError(t, b.PushInitiation(sessionBC, filter.Universal))
		require.NoError(t, c.PushInitiation(sessionCA, filter.Universal))
	}

	for _, n := range []*node.Node{a, b, c} {
		count, err := n.Store().Len()
		require.NoError(t, err)
		assert.Equal(t, 3, count, "node %s must converge onto all three records", n.Instance())
	}
}

func mustFilter(t *testing.T, facility, user string) filter.Filter {
	t.Helper()
	f, err := filter.New(facility, user)
	require.NoError(t, err)
	return f
}
