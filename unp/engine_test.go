package unp_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unprotocol/unp/serializer"
	"github.com/unprotocol/unp/transport/udp"
	"github.com/unprotocol/unp/unp"
	"github.com/unprotocol/unp/wire"
)

func newLoopbackEngines(t *testing.T, opts ...unp.Option) (*unp.Engine, *unp.Engine, wire.Endpoint) {
	t.Helper()
	serverSock := udp.New()
	server := unp.NewEngine(serverSock, append([]unp.Option{unp.WithServerPort(0)}, opts...)...)
	require.NoError(t, server.Start())
	t.Cleanup(func() { server.Close() })

	clientSock := udp.New()
	client := unp.NewEngine(clientSock, append([]unp.Option{unp.WithServerPort(0)}, opts...)...)
	require.NoError(t, client.Start())
	t.Cleanup(func() { client.Close() })

	serverAddr, err := serverSock.LocalEndpoint()
	require.NoError(t, err)
	return client, server, serverAddr
}

func TestSendCommandDeliversToTypedInbox(t *testing.T) {
	client, server, serverAddr := newLoopbackEngines(t)

	received := make(chan *wire.Message, 1)
	server.OnTyped(wire.TypeCommand, "ping", func(m *wire.Message) { received <- m })

	err := client.SendCommand(serverAddr, "ping", nil, unp.SendOptions{})
	require.NoError(t, err)

	select {
	case m := <-received:
		assert.Equal(t, "ping", m.Command)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
	}
}

func TestSendQueryReceivesResponse(t *testing.T) {
	client, server, serverAddr := newLoopbackEngines(t)

	type statRequest struct {
		Name string `json:"name"`
	}
	type statResponse struct {
		Uptime int `json:"uptime"`
	}

	server.OnTyped(wire.TypeQuery, "stat", func(m *wire.Message) {
		go server.SendResponseFor(m, statResponse{Uptime: 42}, unp.SendOptions{})
	})

	resp, err := client.SendQuery(serverAddr, "stat", statRequest{Name: "x"}, unp.SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, wire.TypeResponse, resp.Type)
	assert.Equal(t, "stat", resp.Command)

	var decoded statResponse
	require.NoError(t, client.DecodePayload(resp, &decoded, serializer.Params{}))
	assert.Equal(t, 42, decoded.Uptime)
	assert.True(t, resp.HasDecoded)
	assert.Nil(t, resp.EncodedPayload)
}

func TestDecodePayloadReversesCompression(t *testing.T) {
	client, server, serverAddr := newLoopbackEngines(t)

	type echoPayload struct {
		Text string `json:"text"`
	}

	received := make(chan *wire.Message, 1)
	server.OnTyped(wire.TypeCommand, "echo", func(m *wire.Message) { received <- m })

	err := client.SendCommand(serverAddr, "echo", echoPayload{Text: "hello compressed world"}, unp.SendOptions{Compressed: true})
	require.NoError(t, err)

	select {
	case m := <-received:
		assert.True(t, m.Compressed)
		var decoded echoPayload
		require.NoError(t, server.DecodePayload(m, &decoded, serializer.Params{}))
		assert.Equal(t, "hello compressed world", decoded.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for compressed command")
	}
}

func TestSendQueryTimesOutWithNoResponder(t *testing.T) {
	client, _, serverAddr := newLoopbackEngines(t, unp.WithResponseForgetTimeout(100*time.Millisecond))

	_, err := client.SendQuery(serverAddr, "stat", nil, unp.SendOptions{})
	require.Error(t, err)
}

func TestSendWithAckSucceedsWhenPeerAcks(t *testing.T) {
	client, server, serverAddr := newLoopbackEngines(t)
	server.OnTyped(wire.TypeCommand, "ping", func(*wire.Message) {})

	err := client.SendCommand(serverAddr, "ping", nil, unp.SendOptions{WantAck: true})
	assert.NoError(t, err)
}

func TestEngineExposesReliabilityMetrics(t *testing.T) {
	client, server, serverAddr := newLoopbackEngines(t)
	server.OnTyped(wire.TypeCommand, "ping", func(*wire.Message) {})

	require.NoError(t, client.SendCommand(serverAddr, "ping", nil, unp.SendOptions{WantAck: true}))

	m := client.Metrics()
	assert.Equal(t, uint64(1), m.PacketsSent)
	assert.Equal(t, uint64(1), m.AcksReceived)

	families, err := client.MetricsRegistry().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "unp_reliability_acks_received_total" {
			found = true
		}
	}
	assert.True(t, found, "expected acks_received_total metric family on the engine's own registry")
}

func TestCloseReleasesInFlightQueryImmediately(t *testing.T) {
	client, _, serverAddr := newLoopbackEngines(t, unp.WithResponseForgetTimeout(time.Minute))

	errCh := make(chan error, 1)
	go func() {
		_, err := client.SendQuery(serverAddr, "stat", nil, unp.SendOptions{})
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, client.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, errors.Is(err, unp.ErrClosed), "expected ErrClosed, got %v", err)
	case <-time.After(time.Second):
		t.Fatal("Close did not release the in-flight query promptly")
	}
}

func TestFragmentedCommandReassemblesAtServer(t *testing.T) {
	client, server, serverAddr := newLoopbackEngines(t, unp.WithMaxPacketSize(200))

	type bigPayload struct {
		Blob string `json:"blob"`
	}
	blob := make([]byte, 1000)
	for i := range blob {
		blob[i] = byte('a' + i%26)
	}

	received := make(chan *wire.Message, 1)
	server.OnTyped(wire.TypeCommand, "blob", func(m *wire.Message) { received <- m })

	err := client.SendCommand(serverAddr, "blob", bigPayload{Blob: string(blob)}, unp.SendOptions{})
	require.NoError(t, err)

	select {
	case m := <-received:
		assert.True(t, m.Reassembled)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reassembled command")
	}
}

// TestFragmentedCommandWithAckSucceeds exercises spec.md §4.5's per-fragment
// ack over the real wire.Encode/Decode path (not a fabricated ack_id): each
// fragment of an oversized want_ack command must be individually acked by
// the receiver, and the ack itself must round-trip its fragment_index/
// fragments_total so the sender's pending-ack lookup matches.
func TestFragmentedCommandWithAckSucceeds(t *testing.T) {
	client, server, serverAddr := newLoopbackEngines(t, unp.WithMaxPacketSize(200))

	type bigPayload struct {
		Blob string `json:"blob"`
	}
	blob := make([]byte, 1000)
	for i := range blob {
		blob[i] = byte('a' + i%26)
	}

	received := make(chan *wire.Message, 1)
	server.OnTyped(wire.TypeCommand, "blob", func(m *wire.Message) { received <- m })

	err := client.SendCommand(serverAddr, "blob", bigPayload{Blob: string(blob)}, unp.SendOptions{WantAck: true})
	require.NoError(t, err)

	select {
	case m := <-received:
		assert.True(t, m.Reassembled)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reassembled command")
	}
}
