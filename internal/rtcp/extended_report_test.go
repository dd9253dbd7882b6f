// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtendedReportRoundTrip(t *testing.T) {
	xr := ExtendedReport{
		SenderSSRC: 0x01020304,
		Reports: []ReportBlock{
			&ReceiverReferenceTimeReportBlock{
				NTPTimestamp: 0x0102030405060708,
			},
			&DLRRReportBlock{
				Reports: []DLRRReport{
					{SSRC: 0x88776655, LastRR: 0x12345678, DLRR: 0x23456789},
					{SSRC: 0x99887766, LastRR: 0x22334455, DLRR: 0x33445566},
				},
			},
			&StatisticsSummaryReportBlock{
				LossReports:      true,
				DuplicateReports: true,
				JitterReports:    true,
				TTLorHopLimit:    ToHIPv4,
				SSRC:             0xfedcba98,
				BeginSeq:         0x1234,
				EndSeq:           0x5678,
				LostPackets:      0x11111111,
				DupPackets:       0x22222222,
				MinJitter:        0x33333333,
				MaxJitter:        0x44444444,
				MeanJitter:       0x55555555,
				DevJitter:        0x66666666,
				MinTTLOrHL:       0x01,
				MaxTTLOrHL:       0x02,
				MeanTTLOrHL:      0x03,
				DevTTLOrHL:       0x04,
			},
		},
	}

	data, err := xr.Marshal()
	require.NoError(t, err)
	require.Zero(t, len(data)%4)

	var decoded ExtendedReport
	require.NoError(t, decoded.Unmarshal(data))
	assert.Equal(t, xr.SenderSSRC, decoded.SenderSSRC)
	assert.Equal(t, xr.Reports, decoded.Reports)

	data2, err := decoded.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data, data2)

	assert.Equal(t, []uint32{0x88776655, 0x99887766, 0xfedcba98}, decoded.DestinationSSRC())
}

func TestExtendedReportDLRRMiddleNTP(t *testing.T) {
	// the LastRR field carries the middle 32 bits of the RRTR NTP timestamp
	rrtrNTP := uint64(0x0102030405060708)
	lrr := uint32(rrtrNTP >> 16)
	assert.Equal(t, uint32(0x03040506), lrr)
}

func TestExtendedReportUnknownBlock(t *testing.T) {
	raw := []byte{
		// V=2, P=0, Count=0, XR, len=3
		0x80, 0xcf, 0x00, 0x03,
		0x01, 0x02, 0x03, 0x04,
		// BT=99, reserved, block length = 1
		0x63, 0x00, 0x00, 0x01,
		0xde, 0xad, 0xbe, 0xef,
	}

	var xr ExtendedReport
	require.NoError(t, xr.Unmarshal(raw))
	require.Len(t, xr.Reports, 1)

	_, ok := xr.Reports[0].(*UnknownReportBlock)
	assert.True(t, ok)

	out, err := xr.Marshal()
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}
