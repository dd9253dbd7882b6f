// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeAssociation(t *testing.T) (*Association, *Association) {
	t.Helper()
	pipeA, pipeB := net.Pipe()

	type result struct {
		a   *Association
		err error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		a, err := Client(Config{NetConn: pipeA})
		clientCh <- result{a, err}
	}()
	go func() {
		a, err := Server(Config{NetConn: pipeB})
		serverCh <- result{a, err}
	}()

	var client, server *Association
	for i := 0; i < 2; i++ {
		select {
		case r := <-clientCh:
			require.NoError(t, r.err, "client")
			client = r.a
		case r := <-serverCh:
			require.NoError(t, r.err, "server")
			server = r.a
		case <-time.After(20 * time.Second):
			t.Fatal("association handshake timed out")
		}
	}
	return client, server
}

func TestAssociationHandshakeAndData(t *testing.T) {
	client, server := pipeAssociation(t)
	defer func() {
		_ = client.Close()
		_ = server.Close()
	}()

	stream, err := client.OpenStream(1, PayloadTypeWebRTCBinary)
	require.NoError(t, err)

	msg := []byte("hello over sctp")
	_, err = stream.WriteSCTP(msg, PayloadTypeWebRTCBinary)
	require.NoError(t, err)

	accepted, err := server.AcceptStream()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), accepted.StreamIdentifier())

	buf := make([]byte, 2048)
	n, ppi, err := accepted.ReadSCTP(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, buf[:n])
	assert.Equal(t, PayloadTypeWebRTCBinary, ppi)

	// reply on the same stream id
	_, err = accepted.WriteSCTP([]byte("pong"), PayloadTypeWebRTCString)
	require.NoError(t, err)

	n, ppi, err = stream.ReadSCTP(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), buf[:n])
	assert.Equal(t, PayloadTypeWebRTCString, ppi)
}

func TestFragmentedMessage(t *testing.T) {
	client, server := pipeAssociation(t)
	defer func() {
		_ = client.Close()
		_ = server.Close()
	}()

	stream, err := client.OpenStream(3, PayloadTypeWebRTCBinary)
	require.NoError(t, err)

	big := make([]byte, maxPayloadSize*3+17)
	for i := range big {
		big[i] = byte(i % 251)
	}
	_, err = stream.WriteSCTP(big, PayloadTypeWebRTCBinary)
	require.NoError(t, err)

	accepted, err := server.AcceptStream()
	require.NoError(t, err)

	buf := make([]byte, len(big)+1)
	n, _, err := accepted.ReadSCTP(buf)
	require.NoError(t, err)
	assert.Equal(t, big, buf[:n])
}

func TestPacketChecksum(t *testing.T) {
	p := &packet{
		sourcePort:      defaultSCTPPort,
		destinationPort: defaultSCTPPort,
		verificationTag: 0xdeadbeef,
		chunks:          []chunk{&chunkCookieAck{}},
	}
	raw, err := p.marshal()
	require.NoError(t, err)

	decoded := &packet{}
	require.NoError(t, decoded.unmarshal(raw))
	assert.Equal(t, uint32(0xdeadbeef), decoded.verificationTag)

	// corrupting any byte must fail the CRC32c
	raw[len(raw)-1] ^= 0x01
	assert.ErrorIs(t, decoded.unmarshal(raw), errChecksumMismatch)
}

func TestInitChunkRoundTrip(t *testing.T) {
	init := &chunkInit{chunkInitCommon{
		initiateTag:                    42,
		advertisedReceiverWindowCredit: defaultAdvertisedWindow,
		numOutboundStreams:             1024,
		numInboundStreams:              1024,
		initialTSN:                     7777,
		forwardTSNSupported:            true,
	}}
	raw, err := init.marshal()
	require.NoError(t, err)

	decoded := &chunkInit{}
	require.NoError(t, decoded.unmarshal(raw))
	assert.Equal(t, init.initiateTag, decoded.initiateTag)
	assert.Equal(t, init.initialTSN, decoded.initialTSN)
	assert.True(t, decoded.forwardTSNSupported)

	ack := &chunkInitAck{chunkInitCommon{
		initiateTag: 43,
		initialTSN:  1,
		stateCookie: []byte{1, 2, 3, 4, 5},
	}}
	raw, err = ack.marshal()
	require.NoError(t, err)

	decodedAck := &chunkInitAck{}
	require.NoError(t, decodedAck.unmarshal(raw))
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, decodedAck.stateCookie)
}

func TestSackRoundTrip(t *testing.T) {
	sack := &chunkSelectiveAck{
		cumulativeTSNAck:               1000,
		advertisedReceiverWindowCredit: 64 * 1024,
		gapAckBlocks:                   []gapAckBlock{{start: 2, end: 4}, {start: 8, end: 8}},
		duplicateTSN:                   []uint32{999},
	}
	raw, err := sack.marshal()
	require.NoError(t, err)

	decoded := &chunkSelectiveAck{}
	require.NoError(t, decoded.unmarshal(raw))
	assert.Equal(t, sack.cumulativeTSNAck, decoded.cumulativeTSNAck)
	assert.Equal(t, sack.gapAckBlocks, decoded.gapAckBlocks)
	assert.Equal(t, sack.duplicateTSN, decoded.duplicateTSN)
}

func TestSerialNumberArithmetic(t *testing.T) {
	assert.True(t, sna32GT(1, 0))
	assert.True(t, sna32GT(0, 0xffffffff)) // wraparound
	assert.False(t, sna32GT(0xffffffff, 0))
	assert.True(t, sna32LTE(5, 5))
	assert.True(t, sna32LTE(4, 5))
}
