// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportLayerCCGoldenRunLength(t *testing.T) {
	raw := []byte{
		0xaf, 0xcd, 0x0, 0x5,
		0xfa, 0x17, 0xfa, 0x17,
		0x43, 0x3, 0x2f, 0xa0,
		0x0, 0x99, 0x0, 0x1,
		0x3d, 0xe8, 0x2, 0x17,
		0x20, 0x1, 0x94, 0x1,
	}

	var tcc TransportLayerCC
	require.NoError(t, tcc.Unmarshal(raw))

	assert.Equal(t, uint32(0xFA17FA17), tcc.SenderSSRC)
	assert.Equal(t, uint32(0x43032FA0), tcc.MediaSSRC)
	assert.Equal(t, uint16(153), tcc.BaseSequenceNumber)
	assert.Equal(t, uint16(1), tcc.PacketStatusCount)
	assert.Equal(t, uint32(4057090), tcc.ReferenceTime)
	assert.Equal(t, uint8(23), tcc.FbPktCount)

	require.Len(t, tcc.PacketChunks, 1)
	assert.Equal(t, &RunLengthChunk{
		Type:               TypeTCCRunLengthChunk,
		PacketStatusSymbol: TypeTCCPacketReceivedSmallDelta,
		RunLength:          1,
	}, tcc.PacketChunks[0])

	require.Len(t, tcc.RecvDeltas, 1)
	assert.Equal(t, &RecvDelta{
		Type:  TypeTCCPacketReceivedSmallDelta,
		Delta: 0x94 * TypeTCCDeltaScaleFactor,
	}, tcc.RecvDeltas[0])
	assert.Equal(t, int64(37000), tcc.RecvDeltas[0].Delta)

	out, err := tcc.Marshal()
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestTransportLayerCCTwoBitVectorRoundTrip(t *testing.T) {
	tcc := TransportLayerCC{
		SenderSSRC:         4195875351,
		MediaSSRC:          1124282272,
		BaseSequenceNumber: 387,
		PacketStatusCount:  7,
		ReferenceTime:      4567386,
		FbPktCount:         64,
		PacketChunks: []PacketStatusChunk{
			&StatusVectorChunk{
				Type:       TypeTCCStatusVectorChunk,
				SymbolSize: TypeTCCSymbolSizeTwoBit,
				SymbolList: []uint16{
					TypeTCCPacketReceivedSmallDelta,
					TypeTCCPacketNotReceived,
					TypeTCCPacketReceivedLargeDelta,
					TypeTCCPacketNotReceived,
					TypeTCCPacketNotReceived,
					TypeTCCPacketNotReceived,
					TypeTCCPacketNotReceived,
				},
			},
		},
		RecvDeltas: []*RecvDelta{
			{Type: TypeTCCPacketReceivedSmallDelta, Delta: 250},
			{Type: TypeTCCPacketReceivedLargeDelta, Delta: -1000},
		},
	}

	raw, err := tcc.Marshal()
	require.NoError(t, err)

	var decoded TransportLayerCC
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Equal(t, tcc.PacketChunks, decoded.PacketChunks)
	assert.Equal(t, tcc.RecvDeltas, decoded.RecvDeltas)

	// strict bit-exactness on the second serialize
	raw2, err := decoded.Marshal()
	require.NoError(t, err)
	assert.Equal(t, raw, raw2)
}

func TestTransportLayerCCBaseSequenceWrap(t *testing.T) {
	tcc := TransportLayerCC{
		SenderSSRC:         1,
		MediaSSRC:          2,
		BaseSequenceNumber: 0xffff,
		PacketStatusCount:  2,
		ReferenceTime:      0,
		FbPktCount:         0,
		PacketChunks: []PacketStatusChunk{
			&RunLengthChunk{
				Type:               TypeTCCRunLengthChunk,
				PacketStatusSymbol: TypeTCCPacketReceivedSmallDelta,
				RunLength:          2,
			},
		},
		RecvDeltas: []*RecvDelta{
			{Type: TypeTCCPacketReceivedSmallDelta, Delta: 250},
			{Type: TypeTCCPacketReceivedSmallDelta, Delta: 250},
		},
	}

	raw, err := tcc.Marshal()
	require.NoError(t, err)

	var decoded TransportLayerCC
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Equal(t, uint16(0xffff), decoded.BaseSequenceNumber)
}

func TestRecvDeltaBounds(t *testing.T) {
	// small delta saturates at 0xff * 250us
	d := RecvDelta{Type: TypeTCCPacketReceivedSmallDelta, Delta: 0xff * TypeTCCDeltaScaleFactor}
	raw, err := d.Marshal()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff}, raw)

	// out of range for a small delta
	d = RecvDelta{Type: TypeTCCPacketReceivedSmallDelta, Delta: 0x100 * TypeTCCDeltaScaleFactor}
	_, err = d.Marshal()
	assert.ErrorIs(t, err, errBadDelta)

	// negative needs a large delta
	d = RecvDelta{Type: TypeTCCPacketReceivedLargeDelta, Delta: -250}
	raw, err = d.Marshal()
	require.NoError(t, err)
	var decoded RecvDelta
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Equal(t, int64(-250), decoded.Delta)
}
