// Package session implements the Session component and the tagged
// PULL/PUSH/PUSH2/DATA message variant exchanged between two nodes.
package session

import (
	"strconv"

	"replistore/internal/filter"
	"replistore/internal/hashutil"
	"replistore/internal/sds"
	"replistore/internal/vclock"
)

// Tag identifies which variant a Message carries: a closed Go type in
// place of a heterogeneous tuple with a string discriminator.
type Tag int

const (
	Pull Tag = iota
	Push
	Push2
	Data
)

func (t Tag) String() string {
	switch t {
	case Pull:
		return "PULL"
	case Push:
		return "PUSH"
	case Push2:
		return "PUSH2"
	case Data:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// Message is the tagged-variant type carried over the transport. Only
// the fields relevant to Tag are populated: FSIC is set on PULL (the
// clientFSIC) and on the PUSH2 reply (the serverFSIC), Payload on DATA.
type Message struct {
	Tag        Tag
	TransferID string
	Filter     filter.Filter
	FSIC       vclock.Vector // PULL's clientFSIC, PUSH2's serverFSIC
	Payload    sds.Snapshot  // DATA's (filter, (fsicDelta, records))
}

// ID derives the deterministic sessionID for a client/server pair: the
// hex MD5 digest of the client instance ID concatenated with the hex
// MD5 digest of the server instance ID.
func ID(clientInstance, serverInstance string) string {
	return hashutil.Hex(clientInstance) + hashutil.Hex(serverInstance)
}

// Session is the per-peer-relationship record each of the two endpoints
// keeps in its own session table: two mirrored copies exist, one per
// endpoint, each accessed only by its owning node. The actual peer
// reference is resolved through the node's Transport, not stored here, to
// avoid a cyclic ownership graph between nodes.
type Session struct {
	SessionID      string
	ClientInstance string
	ServerInstance string

	// RequestCounter monotonically produces unique transferIDs: a
	// transferID is SessionID + "_" + RequestCounter.
	RequestCounter uint64

	// OngoingRequest holds the tag of the single in-flight request this
	// session allows, or nil when idle. A session with an abandoned
	// OngoingRequest leaks that slot until overwritten; callers must not
	// initiate a second pull/push on the same session while one is
	// outstanding.
	OngoingRequest *Tag
}

// New returns a fresh Session for the given client/server pair with
// RequestCounter starting at 0.
func New(clientInstance, serverInstance string) *Session {
	return &Session{
		SessionID:      ID(clientInstance, serverInstance),
		ClientInstance: clientInstance,
		ServerInstance: serverInstance,
	}
}

// Peer returns whichever of ClientInstance/ServerInstance is not self,
// so either endpoint can address a reply without caring which role it
// played when the session was created.
func (s *Session) Peer(self string) string {
	if s.ClientInstance == self {
		return s.ServerInstance
	}
	return s.ClientInstance
}

// NextTransferID returns the transferID for the new in-flight request,
// built from the current RequestCounter, and then increments
// RequestCounter.
func (s *Session) NextTransferID() string {
	id := s.SessionID + "_" + strconv.FormatUint(s.RequestCounter, 10)
	s.RequestCounter++
	return id
}
