package transport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replistore/internal/filter"
	"replistore/internal/session"
	"replistore/internal/transport"
)

type recordingReceiver struct {
	received []session.Message
	handshakes []string
}

func (r *recordingReceiver) Receive(sender, sessionID string, msg session.Message) error {
	r.received = append(r.received, msg)
	return nil
}

func (r *recordingReceiver) InitialHandshake(clientInstance, sessionID string) error {
	r.handshakes = append(r.handshakes, clientInstance)
	return nil
}

func TestInMemorySendDeliversToRegisteredReceiver(t *testing.T) {
	tr := transport.NewInMemory()
	recv := &recordingReceiver{}
	tr.Register("B", recv)

	msg := session.Message{Tag: session.Pull, TransferID: "t1", Filter: filter.Universal}
	require.NoError(t, tr.Send("A", "B", "sess1", msg))

	require.Len(t, recv.received, 1)
	assert.Equal(t, "t1", recv.received[0].TransferID)
}

func TestInMemorySendToUnknownPeerFails(t *testing.T) {
	tr := transport.NewInMemory()
	err := tr.Send("A", "ghost", "sess1", session.Message{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestInMemoryHandshakeDeliversToRegisteredReceiver(t *testing.T) {
	tr := transport.NewInMemory()
	recv := &recordingReceiver{}
	tr.Register("B", recv)

	require.NoError(t, tr.Handshake("A", "B", "sess1"))
	require.Len(t, recv.handshakes, 1)
	assert.Equal(t, "A", recv.handshakes[0])
}
