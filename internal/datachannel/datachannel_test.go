// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package datachannel

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjhorn/webrtc/internal/sctp"
)

func TestChannelOpenRoundTrip(t *testing.T) {
	open := &channelOpen{
		ChannelType:          ChannelTypePartialReliableRexmitUnordered,
		Priority:             128,
		ReliabilityParameter: 3,
		Label:                []byte("chat"),
		Protocol:             []byte("proto"),
	}
	raw, err := open.Marshal()
	require.NoError(t, err)

	msg, err := parse(raw)
	require.NoError(t, err)
	decoded, ok := msg.(*channelOpen)
	require.True(t, ok)
	assert.Equal(t, open, decoded)
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := parse([]byte{0x7f, 0, 0, 0})
	assert.ErrorIs(t, err, errInvalidMessageType)

	_, err = parse(nil)
	assert.ErrorIs(t, err, errDataChannelMessageTooShort)
}

func TestDialAccept(t *testing.T) {
	pipeA, pipeB := net.Pipe()

	type assocResult struct {
		a   *sctp.Association
		err error
	}
	clientCh := make(chan assocResult, 1)
	serverCh := make(chan assocResult, 1)
	go func() {
		a, err := sctp.Client(sctp.Config{NetConn: pipeA})
		clientCh <- assocResult{a, err}
	}()
	go func() {
		a, err := sctp.Server(sctp.Config{NetConn: pipeB})
		serverCh <- assocResult{a, err}
	}()

	var clientAssoc, serverAssoc *sctp.Association
	for i := 0; i < 2; i++ {
		select {
		case r := <-clientCh:
			require.NoError(t, r.err)
			clientAssoc = r.a
		case r := <-serverCh:
			require.NoError(t, r.err)
			serverAssoc = r.a
		case <-time.After(20 * time.Second):
			t.Fatal("sctp handshake timed out")
		}
	}
	defer func() {
		_ = clientAssoc.Close()
		_ = serverAssoc.Close()
	}()

	acceptedCh := make(chan *DataChannel, 1)
	go func() {
		stream, err := serverAssoc.AcceptStream()
		if err != nil {
			return
		}
		dc, err := Accept(stream)
		if err != nil {
			return
		}
		acceptedCh <- dc
	}()

	stream, err := clientAssoc.OpenStream(0, sctp.PayloadTypeWebRTCDCEP)
	require.NoError(t, err)

	dc, err := Dial(stream, &Config{
		ChannelType: ChannelTypeReliable,
		Label:       "chat",
		Protocol:    "",
	})
	require.NoError(t, err)

	var accepted *DataChannel
	select {
	case accepted = <-acceptedCh:
	case <-time.After(20 * time.Second):
		t.Fatal("accept timed out")
	}
	assert.Equal(t, "chat", accepted.Label)

	// string message one way
	_, err = dc.WriteDataChannel([]byte("ping"), true)
	require.NoError(t, err)

	buf := make([]byte, 256)
	n, isString, err := accepted.ReadDataChannel(buf)
	require.NoError(t, err)
	assert.True(t, isString)
	assert.Equal(t, "ping", string(buf[:n]))

	// binary the other way
	_, err = accepted.WriteDataChannel([]byte{1, 2, 3}, false)
	require.NoError(t, err)
	n, isString, err = dc.ReadDataChannel(buf)
	require.NoError(t, err)
	assert.False(t, isString)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])
}
