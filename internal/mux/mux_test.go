// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package mux

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchFuncs(t *testing.T) {
	assert.True(t, MatchSTUN([]byte{0x00, 0x01, 0x00, 0x00}))
	assert.True(t, MatchDTLS([]byte{22, 0xfe, 0xfd}))
	assert.True(t, MatchDTLS([]byte{63}))
	assert.False(t, MatchDTLS([]byte{64}))
	assert.True(t, MatchChannelData([]byte{0x40, 0x00, 0x00, 0x00}))
	assert.True(t, MatchChannelData([]byte{17, 0x00, 0x00, 0x00}))

	// RTP: PT 96 -> second byte 96|0x80 marker variants stay in 128..191 on byte 0
	rtpPacket := []byte{0x80, 0x60, 0x00, 0x01}
	assert.True(t, MatchSRTP(rtpPacket))
	assert.False(t, MatchSRTCP(rtpPacket))

	// RTCP: PT 200 (SR)
	rtcpPacket := []byte{0x80, 0xc8, 0x00, 0x06}
	assert.True(t, MatchSRTCP(rtcpPacket))
	assert.False(t, MatchSRTP(rtcpPacket))
}

func TestMuxDispatch(t *testing.T) {
	pipeA, pipeB := net.Pipe()

	m := NewMux(Config{Conn: pipeB, BufferSize: 1500})
	defer func() {
		_ = m.Close()
		_ = pipeA.Close()
	}()

	stunEndpoint := m.NewEndpoint(MatchSTUN)
	dtlsEndpoint := m.NewEndpoint(MatchDTLS)

	stunPacket := make([]byte, 20)
	stunPacket[0] = 0x00
	go func() {
		_, _ = pipeA.Write(stunPacket)
	}()

	buf := make([]byte, 1500)
	require.NoError(t, stunEndpoint.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := stunEndpoint.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	dtlsPacket := []byte{22, 0xfe, 0xfd, 0x00}
	go func() {
		_, _ = pipeA.Write(dtlsPacket)
	}()

	require.NoError(t, dtlsEndpoint.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err = dtlsEndpoint.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, dtlsPacket, buf[:n])
}

func TestMuxNoEndpointDrops(t *testing.T) {
	pipeA, pipeB := net.Pipe()

	m := NewMux(Config{Conn: pipeB, BufferSize: 1500})
	defer func() {
		_ = m.Close()
		_ = pipeA.Close()
	}()

	// no endpoint matches; packet must be dropped without ending the loop
	done := make(chan struct{})
	go func() {
		_, _ = pipeA.Write([]byte{0xff, 0x00})
		close(done)
	}()
	<-done
}
