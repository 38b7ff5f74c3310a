// Package transport abstracts the single inter-node call the protocol
// makes (send/receive) behind a capability the node holds, rather than
// the node owning a direct pointer to its peer. This breaks the cyclic
// "node A references node B references node A" relationship: a node's
// Transport looks peers up by instance ID instead of holding them
// directly, and a production transport can swap the in-memory
// implementation here for a real network client without touching the
// replication engine.
package transport

import "replistore/internal/session"

// Receiver is the inbound half of a peer: anything that can accept a
// message on behalf of a session, or the out-of-band handshake that
// establishes one. *node.Node implements it.
type Receiver interface {
	Receive(sender string, sessionID string, msg session.Message) error
	InitialHandshake(clientInstance, sessionID string) error
}

// Transport resolves a peer instance ID to a Receiver and delivers
// messages to it. Implementations must preserve per-session FIFO
// delivery order: messages sent on the same session must arrive in the
// order they were sent, even if delivery is asynchronous.
type Transport interface {
	// Send delivers msg to the receiver owning peerInstance, as the
	// node identified by fromInstance, on behalf of sessionID.
	Send(fromInstance, peerInstance, sessionID string, msg session.Message) error
	// Handshake invokes the receiver owning peerInstance's
	// InitialHandshake, mirroring a freshly created session onto it.
	Handshake(fromInstance, peerInstance, sessionID string) error
	// Register makes r reachable under instance for future Sends.
	Register(instance string, r Receiver)
}

// InMemory is a synchronous, in-process Transport: Send calls Receive
// directly. It is the implementation used by tests and the CLI's local
// simulation; each registered instance's Receive is invoked on the
// caller's goroutine, so per-session FIFO is trivially preserved as long
// as callers serialize their own sends per session.
type InMemory struct {
	receivers map[string]Receiver
}

// NewInMemory returns an empty in-memory transport.
func NewInMemory() *InMemory {
	return &InMemory{receivers: make(map[string]Receiver)}
}

// Register implements Transport.
func (t *InMemory) Register(instance string, r Receiver) {
	t.receivers[instance] = r
}

// Send implements Transport.
func (t *InMemory) Send(fromInstance, peerInstance, sessionID string, msg session.Message) error {
	r, ok := t.receivers[peerInstance]
	if !ok {
		return ErrUnknownPeer(peerInstance)
	}
	return r.Receive(fromInstance, sessionID, msg)
}

// Handshake implements Transport.
func (t *InMemory) Handshake(fromInstance, peerInstance, sessionID string) error {
	r, ok := t.receivers[peerInstance]
	if !ok {
		return ErrUnknownPeer(peerInstance)
	}
	return r.InitialHandshake(fromInstance, sessionID)
}

// ErrUnknownPeer reports that no Receiver is registered for instance.
type ErrUnknownPeer string

func (e ErrUnknownPeer) Error() string {
	return "transport: unknown peer instance " + string(e)
}
