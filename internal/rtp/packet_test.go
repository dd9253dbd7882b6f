// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	rawPkt := []byte{
		0x90, 0xe0, 0x69, 0x8f,
		0xd9, 0xc2, 0x93, 0xda,
		0x1c, 0x64, 0x27, 0x82,
		0x00, 0x01, 0x00, 0x01,
		0x98, 0x36, 0xbe, 0x88,
		0x9e,
	}
	parsedPacket := &Packet{
		Header: Header{
			Version:          2,
			Marker:           true,
			Extension:        true,
			ExtensionProfile: 1,
			Extensions: []Extension{{
				ID:      0,
				Payload: []byte{0x98, 0x36, 0xbe, 0x88},
			}},
			PayloadType:    96,
			SequenceNumber: 27023,
			Timestamp:      3653407706,
			SSRC:           476325762,
		},
		Payload: rawPkt[20:],
	}

	p := &Packet{}
	require.NoError(t, p.Unmarshal(rawPkt))
	assert.Equal(t, parsedPacket.Header.SSRC, p.Header.SSRC)
	assert.Equal(t, parsedPacket.Payload, p.Payload)

	raw, err := p.Marshal()
	require.NoError(t, err)
	assert.Equal(t, rawPkt, raw)
}

func TestOneByteExtension(t *testing.T) {
	p := &Packet{
		Header: Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: 1000,
			Timestamp:      12345,
			SSRC:           0xdeadbeef,
		},
		Payload: []byte{0x01, 0x02},
	}

	require.NoError(t, p.Header.SetExtension(5, []byte{0xaa, 0xbb}))
	assert.Equal(t, uint16(0xBEDE), p.Header.ExtensionProfile)

	raw, err := p.Marshal()
	require.NoError(t, err)

	decoded := &Packet{}
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Equal(t, []byte{0xaa, 0xbb}, decoded.Header.GetExtension(5))
	assert.Equal(t, []uint8{5}, decoded.Header.GetExtensionIDs())
	assert.Equal(t, p.Payload, decoded.Payload)
}

func TestTwoByteExtension(t *testing.T) {
	p := &Packet{
		Header: Header{
			Version:        2,
			SequenceNumber: 1,
			SSRC:           2,
		},
	}

	long := make([]byte, 17)
	require.NoError(t, p.Header.SetExtension(30, long))
	assert.Equal(t, uint16(0x1000), p.Header.ExtensionProfile)

	raw, err := p.Marshal()
	require.NoError(t, err)

	decoded := &Packet{}
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Len(t, decoded.Header.GetExtension(30), 17)
}

func TestExtensionLimits(t *testing.T) {
	h := &Header{Extension: true, ExtensionProfile: 0xBEDE}
	assert.ErrorIs(t, h.SetExtension(15, []byte{0x01}), errRFC8285OneByteHeaderIDRange)
	assert.ErrorIs(t, h.SetExtension(1, make([]byte, 17)), errRFC8285OneByteHeaderSize)
}

func TestDelExtension(t *testing.T) {
	h := &Header{}
	require.NoError(t, h.SetExtension(2, []byte{0x01}))
	require.NoError(t, h.DelExtension(2))
	assert.ErrorIs(t, h.DelExtension(2), errHeaderExtensionNotFound)
}

func TestPaddingRoundTrip(t *testing.T) {
	p := &Packet{
		Header: Header{
			Version:        2,
			SequenceNumber: 1,
			SSRC:           2,
		},
		Payload:     []byte{0x11, 0x22, 0x33},
		PaddingSize: 5,
	}

	raw, err := p.Marshal()
	require.NoError(t, err)

	decoded := &Packet{}
	require.NoError(t, decoded.Unmarshal(raw))
	assert.True(t, decoded.Header.Padding)
	assert.Equal(t, byte(5), decoded.PaddingSize)
	assert.Equal(t, p.Payload, decoded.Payload)
}

func TestTransportCCExtension(t *testing.T) {
	ext := TransportCCExtension{TransportSequence: 0xfffe}
	raw, err := ext.Marshal()
	require.NoError(t, err)

	var decoded TransportCCExtension
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Equal(t, ext, decoded)
}
