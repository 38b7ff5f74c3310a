// Package node implements the Node: the programmatic surface the rest
// of the system sees, wiring the Store, AppData, SDS, Serializer and
// Integrator together behind createSyncSession, pullInitiation,
// pushInitiation, send and receive.
package node

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"replistore/internal/appdata"
	"replistore/internal/errs"
	"replistore/internal/filter"
	"replistore/internal/integrator"
	"replistore/internal/sds"
	"replistore/internal/serializer"
	"replistore/internal/session"
	"replistore/internal/store"
	"replistore/internal/transport"
)

// Node is a single peer in the replicated record store.
//
// The replication algorithm is single-threaded and cooperative: one node
// processes one request to completion, including any follow-up sends it
// triggers, before the next. Because the in-memory Transport delivers a
// Send as a direct, synchronous call, a pull or push round trip can
// recurse back into the very node that initiated it before that call
// returns. mu therefore guards only direct field access — short critical
// sections, never held across a transport call. Full per-node
// serialization against genuinely concurrent callers is the transport's
// responsibility, not this mutex's.
type Node struct {
	instance string

	mu      sync.Mutex
	counter uint64

	store *store.Store
	app   *appdata.AppData
	sds   *sds.SDS

	serializer *serializer.Serializer
	integrator *integrator.Integrator

	transport transport.Transport
	sessions  map[string]*session.Session
	incoming  map[string]sds.Snapshot
	outgoing  map[string]sds.Snapshot

	log *zap.Logger
}

// Option configures a Node at construction time.
type Option func(*Node)

// WithLogger overrides the Node's *zap.Logger, which defaults to a
// no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(n *Node) { n.log = log }
}

// WithStoreBackend overrides the default in-memory Store backend, e.g.
// with internal/store/redisstore for a persisted node.
func WithStoreBackend(b store.Backend) Option {
	return func(n *Node) { n.store = store.NewWithBackend(b) }
}

// New constructs a Node. It fails if instanceID is empty.
func New(instanceID string, t transport.Transport, opts ...Option) (*Node, error) {
	if instanceID == "" {
		return nil, errors.Wrap(errs.InvalidArgument, "node: instanceID must not be empty")
	}

	n := &Node{
		instance:  instanceID,
		store:     store.New(),
		app:       appdata.New(),
		sds:       sds.New(),
		transport: t,
		sessions:  make(map[string]*session.Session),
		incoming:  make(map[string]sds.Snapshot),
		outgoing:  make(map[string]sds.Snapshot),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.serializer = serializer.New(n.instance, n.store, n.app, n.sds, &n.counter, n.log)
	n.integrator = integrator.New(n.instance, n.store, n.app, n.sds, &n.counter, n.log)
	t.Register(instanceID, n)
	return n, nil
}

// Instance returns the node's instance identifier.
func (n *Node) Instance() string { return n.instance }

// Store exposes the node's Store for read-only inspection (debug API,
// tests).
func (n *Node) Store() *store.Store { return n.store }

// SDS exposes the node's Sync Data Structure for read-only inspection.
func (n *Node) SDS() *sds.SDS { return n.sds }

// AppData exposes the node's AppData working set for read-only inspection.
func (n *Node) AppData() *appdata.AppData { return n.app }

// Counter returns the node's current local counter.
func (n *Node) Counter() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counter
}

////////////////////////////////////////
// External interface: the application-facing API a caller drives a Node
// through, as opposed to the peer-to-peer handlers below.

// AddAppData upserts recordID into AppData with a pending dirty edit.
func (n *Node) AddAppData(recordID, recordData, facility, user string) error {
	if recordID == "" {
		return errors.Wrap(errs.InvalidArgument, "node: recordID must not be empty")
	}
	part, err := filter.New(facility, user)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.app.Upsert(recordID, recordData, part)
	return nil
}

// Serialize promotes dirty AppData entries under f into the Store.
func (n *Node) Serialize(f filter.Filter) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.serializer.Serialize(f)
}

// CreateSyncSession computes the sessionID for (self, serverInstance),
// installs a Session on this node with self as client, and invokes the
// peer's InitialHandshake so it installs the mirrored record. Creating
// the same session twice overwrites it.
func (n *Node) CreateSyncSession(serverInstance string) (string, error) {
	if serverInstance == "" {
		return "", errors.Wrap(errs.InvalidArgument, "node: serverInstance must not be empty")
	}
	sessionID := session.ID(n.instance, serverInstance)

	n.mu.Lock()
	n.sessions[sessionID] = &session.Session{
		SessionID:      sessionID,
		ClientInstance: n.instance,
		ServerInstance: serverInstance,
	}
	n.mu.Unlock()

	if err := n.transport.Handshake(n.instance, serverInstance, sessionID); err != nil {
		return "", errors.Wrapf(err, "handshake with %s", serverInstance)
	}
	return sessionID, nil
}

// InitialHandshake installs the mirrored Session record when a peer
// calls CreateSyncSession against this node.
func (n *Node) InitialHandshake(clientInstance, sessionID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessions[sessionID] = &session.Session{
		SessionID:      sessionID,
		ClientInstance: clientInstance,
		ServerInstance: n.instance,
	}
	n.log.Debug("installed mirrored session",
		zap.String("session_id", sessionID),
		zap.String("client_instance", clientInstance))
	return nil
}

// lookupSession returns the session for sessionID under the node lock.
func (n *Node) lookupSession(sessionID string) (*session.Session, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	sess, ok := n.sessions[sessionID]
	if !ok {
		return nil, errors.Wrapf(errs.InvalidArgument, "node: unknown session %s", sessionID)
	}
	return sess, nil
}

// PullInitiation computes clientFSIC = calcFSIC(f) and sends a PULL to
// the session's peer. The session must have no other request in flight.
func (n *Node) PullInitiation(sessionID string, f filter.Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	sess, err := n.lookupSession(sessionID)
	if err != nil {
		return err
	}

	n.mu.Lock()
	clientFSIC, err := n.sds.CalcFSIC(f)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	transferID := sess.NextTransferID()
	tag := session.Pull
	sess.OngoingRequest = &tag
	peer := sess.Peer(n.instance)
	n.mu.Unlock()

	msg := session.Message{Tag: session.Pull, TransferID: transferID, Filter: f, FSIC: clientFSIC}
	if err := n.transport.Send(n.instance, peer, sessionID, msg); err != nil {
		return errors.Wrapf(err, "sending PULL to %s", peer)
	}
	return nil
}

// PushInitiation sends a PUSH to the session's peer; the peer's PUSH2
// reply triggers the actual data transfer.
func (n *Node) PushInitiation(sessionID string, f filter.Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	sess, err := n.lookupSession(sessionID)
	if err != nil {
		return err
	}

	n.mu.Lock()
	transferID := sess.NextTransferID()
	tag := session.Push
	sess.OngoingRequest = &tag
	peer := sess.Peer(n.instance)
	n.mu.Unlock()

	msg := session.Message{Tag: session.Push, TransferID: transferID, Filter: f}
	if err := n.transport.Send(n.instance, peer, sessionID, msg); err != nil {
		return errors.Wrapf(err, "sending PUSH to %s", peer)
	}
	return nil
}

////////////////////////////////////////
// Inbound message handling.

// Receive dispatches an inbound message by tag. PULL and PUSH are
// server-side request-initiating messages serviced by serviceRequests;
// PUSH2 is the client-side reply to a PUSH; DATA carries a snapshot for
// either side to integrate.
func (n *Node) Receive(sender, sessionID string, msg session.Message) error {
	sess, err := n.lookupSession(sessionID)
	if err != nil {
		return err
	}

	switch msg.Tag {
	case session.Pull, session.Push:
		n.mu.Lock()
		tag := msg.Tag
		sess.OngoingRequest = &tag
		n.mu.Unlock()
		return n.serviceRequests(sess, sender, msg)
	case session.Push2:
		return n.handlePush2(sess, sender, msg)
	case session.Data:
		return n.handleData(sess, msg)
	default:
		return errs.UnknownMessage
	}
}

// serviceRequests services a single queued PULL or PUSH request and
// clears the session's ongoing-request slot. Only PULL and PUSH ever
// reach here; any other tag indicates a protocol violation.
func (n *Node) serviceRequests(sess *session.Session, sender string, msg session.Message) error {
	switch msg.Tag {
	case session.Pull:
		n.mu.Lock()
		snap, err := sds.FSICDiffAndSnapshot(n.store, n.sds, msg.Filter, msg.FSIC)
		if err != nil {
			n.mu.Unlock()
			n.clearOngoing(sess)
			return errors.Wrap(err, "servicing PULL")
		}
		n.outgoing[msg.TransferID] = snap
		n.mu.Unlock()

		reply := session.Message{Tag: session.Data, TransferID: msg.TransferID, Filter: msg.Filter, Payload: snap}
		sendErr := n.transport.Send(n.instance, sender, sess.SessionID, reply)

		n.mu.Lock()
		delete(n.outgoing, msg.TransferID)
		n.mu.Unlock()
		n.clearOngoing(sess)
		if sendErr != nil {
			return errors.Wrapf(sendErr, "sending DATA to %s", sender)
		}
		return nil

	case session.Push:
		n.mu.Lock()
		fsic, err := n.sds.CalcFSIC(msg.Filter)
		n.mu.Unlock()
		if err != nil {
			n.clearOngoing(sess)
			return errors.Wrap(err, "servicing PUSH")
		}
		reply := session.Message{Tag: session.Push2, TransferID: msg.TransferID, Filter: msg.Filter, FSIC: fsic}
		sendErr := n.transport.Send(n.instance, sender, sess.SessionID, reply)
		n.clearOngoing(sess)
		if sendErr != nil {
			return errors.Wrapf(sendErr, "sending PUSH2 to %s", sender)
		}
		return nil

	default:
		n.clearOngoing(sess)
		return errs.UnknownMessage
	}
}

// handlePush2 is the client-side reaction to PUSH2: snapshot the local
// side against the server's FSIC and send DATA.
func (n *Node) handlePush2(sess *session.Session, sender string, msg session.Message) error {
	n.mu.Lock()
	snap, err := sds.FSICDiffAndSnapshot(n.store, n.sds, msg.Filter, msg.FSIC)
	n.mu.Unlock()
	if err != nil {
		n.clearOngoing(sess)
		return errors.Wrap(err, "servicing PUSH2")
	}

	reply := session.Message{Tag: session.Data, TransferID: msg.TransferID, Filter: msg.Filter, Payload: snap}
	sendErr := n.transport.Send(n.instance, sender, sess.SessionID, reply)
	n.clearOngoing(sess)
	if sendErr != nil {
		return errors.Wrapf(sendErr, "sending DATA to %s", sender)
	}
	return nil
}

// handleData drops the payload into the incoming buffer and drains it
// through the Integrator immediately: integration never suspends partway
// through a buffer, so the buffer is empty again once this returns
// without error.
func (n *Node) handleData(sess *session.Session, msg session.Message) error {
	n.clearOngoing(sess)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.incoming[msg.TransferID] = msg.Payload
	if err := n.integrator.Integrate(n.incoming); err != nil {
		return errors.Wrap(err, "integrating DATA")
	}
	return nil
}

func (n *Node) clearOngoing(sess *session.Session) {
	n.mu.Lock()
	sess.OngoingRequest = nil
	n.mu.Unlock()
}
