// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportLayerNackRoundTrip(t *testing.T) {
	nack := TransportLayerNack{
		SenderSSRC: 0x12345678,
		MediaSSRC:  0x87654321,
		Nacks:      NackPairsFromSequenceNumbers([]uint16{1234}),
	}

	data, err := nack.Marshal()
	require.NoError(t, err)

	// header + sender ssrc, then media ssrc | PID | BLP
	expectedPayload := []byte{0x87, 0x65, 0x43, 0x21, 0x04, 0xD2, 0x00, 0x00}
	assert.Equal(t, expectedPayload, data[8:])

	var decoded TransportLayerNack
	require.NoError(t, decoded.Unmarshal(data))
	assert.Equal(t, nack, decoded)

	require.Len(t, decoded.Nacks, 1)
	assert.Equal(t, []uint16{1234}, decoded.Nacks[0].PacketList())
}

func TestNackPair(t *testing.T) {
	testNack := func(s []uint16, n NackPair) {
		l := n.PacketList()
		assert.Equalf(t, s, l, "%v", n)
	}

	testNack([]uint16{42}, NackPair{42, 0})
	testNack([]uint16{42, 43}, NackPair{42, 1})
	testNack([]uint16{42, 44}, NackPair{42, 2})
	testNack([]uint16{42, 43, 44}, NackPair{42, 3})
	testNack([]uint16{42, 42 + 16}, NackPair{42, 0x8000})

	// full 16-bit mask
	full := make([]uint16, 0, 17)
	for i := uint16(0); i <= 16; i++ {
		full = append(full, 42+i)
	}
	testNack(full, NackPair{42, 0xffff})
}

func TestNackPairsFromSequenceNumbers(t *testing.T) {
	pairs := NackPairsFromSequenceNumbers([]uint16{100, 101, 105, 115, 116, 117, 140})
	assert.Equal(t, []NackPair{
		{PacketID: 100, LostPackets: (1 << 0) | (1 << 4) | (1 << 14) | (1 << 15)},
		{PacketID: 117, LostPackets: 0},
		{PacketID: 140, LostPackets: 0},
	}, pairs)
}

func TestTransportLayerNackUnmarshalTooShort(t *testing.T) {
	var nack TransportLayerNack
	assert.Error(t, nack.Unmarshal([]byte{0x81, 0xcd, 0x00, 0x01}))
}
