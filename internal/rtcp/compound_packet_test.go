// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cname() *SourceDescription {
	return &SourceDescription{
		Chunks: []SourceDescriptionChunk{{
			Source: 1234,
			Items:  []SourceDescriptionItem{{Type: SDESCNAME, Text: "cname"}},
		}},
	}
}

func TestCompoundPacketValidate(t *testing.T) {
	for _, tt := range []struct {
		name string
		pkt  CompoundPacket
		err  error
	}{
		{"empty", CompoundPacket{}, errEmptyCompound},
		{"no cname", CompoundPacket{&SenderReport{}}, errMissingCNAME},
		{
			"just bye",
			CompoundPacket{&Goodbye{}},
			errBadFirstPacket,
		},
		{
			"sdes missing cname",
			CompoundPacket{
				&SenderReport{},
				&SourceDescription{Chunks: []SourceDescriptionChunk{{
					Source: 1234,
					Items:  []SourceDescriptionItem{{Type: SDESNote, Text: "note"}},
				}}},
			},
			errMissingCNAME,
		},
		{
			"bye before cname",
			CompoundPacket{&SenderReport{}, &Goodbye{}, cname()},
			errPacketBeforeCNAME,
		},
		{"good sr", CompoundPacket{&SenderReport{}, cname()}, nil},
		{"good rr", CompoundPacket{&ReceiverReport{}, cname()}, nil},
		{
			"multiple rrs",
			CompoundPacket{&ReceiverReport{}, &ReceiverReport{}, cname()},
			nil,
		},
	} {
		err := tt.pkt.Validate()
		if tt.err == nil {
			assert.NoErrorf(t, err, "%s", tt.name)
		} else {
			assert.ErrorIsf(t, err, tt.err, "%s", tt.name)
		}
	}
}

func TestCompoundPacketRoundTrip(t *testing.T) {
	pkt := CompoundPacket{
		&ReceiverReport{SSRC: 1},
		cname(),
		&Goodbye{Sources: []uint32{1}},
	}

	data, err := pkt.Marshal()
	require.NoError(t, err)

	var decoded CompoundPacket
	require.NoError(t, decoded.Unmarshal(data))
	require.Len(t, decoded, 3)

	name, err := decoded.CNAME()
	require.NoError(t, err)
	assert.Equal(t, "cname", name)

	data2, err := decoded.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data, data2)
}

func TestUnmarshalMixed(t *testing.T) {
	rr := ReceiverReport{SSRC: 1}
	rrData, err := rr.Marshal()
	require.NoError(t, err)

	pli := PictureLossIndication{SenderSSRC: 1, MediaSSRC: 2}
	pliData, err := pli.Marshal()
	require.NoError(t, err)

	packets, err := Unmarshal(append(rrData, pliData...))
	require.NoError(t, err)
	require.Len(t, packets, 2)

	_, ok := packets[0].(*ReceiverReport)
	assert.True(t, ok)
	_, ok = packets[1].(*PictureLossIndication)
	assert.True(t, ok)
}

func TestPictureLossIndicationRoundTrip(t *testing.T) {
	pli := PictureLossIndication{SenderSSRC: 0x902f9e2e, MediaSSRC: 0x902f9e2e}
	data, err := pli.Marshal()
	require.NoError(t, err)

	var decoded PictureLossIndication
	require.NoError(t, decoded.Unmarshal(data))
	assert.Equal(t, pli, decoded)
}

func TestFullIntraRequestRoundTrip(t *testing.T) {
	fir := FullIntraRequest{
		SenderSSRC: 0x0,
		MediaSSRC:  0x4bc4fcb4,
		FIR:        []FIREntry{{SSRC: 0x12345678, SequenceNumber: 0x42}},
	}
	data, err := fir.Marshal()
	require.NoError(t, err)

	var decoded FullIntraRequest
	require.NoError(t, decoded.Unmarshal(data))
	assert.Equal(t, fir, decoded)
}
