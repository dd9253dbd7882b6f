// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderReportRoundTrip(t *testing.T) {
	sr := SenderReport{
		SSRC:        0x902f9e2e,
		NTPTime:     0xda8bd1fcdddda05a,
		RTPTime:     0xaaf4edd5,
		PacketCount: 1,
		OctetCount:  2,
		Reports: []ReceptionReport{{
			SSRC:               0xbc5e9a40,
			FractionLost:       0,
			TotalLost:          0,
			LastSequenceNumber: 0x46e1,
			Jitter:             273,
			LastSenderReport:   0x9f36432,
			Delay:              150137,
		}},
	}

	data, err := sr.Marshal()
	require.NoError(t, err)

	var decoded SenderReport
	require.NoError(t, decoded.Unmarshal(data))
	assert.Equal(t, sr, decoded)

	data2, err := decoded.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data, data2)

	assert.Equal(t, []uint32{0xbc5e9a40, 0x902f9e2e}, decoded.DestinationSSRC())
}

func TestReceiverReportRoundTrip(t *testing.T) {
	rr := ReceiverReport{
		SSRC: 0x902f9e2e,
		Reports: []ReceptionReport{{
			SSRC:               0x902f9e2e,
			FractionLost:       0xaa,
			TotalLost:          0x00010101,
			LastSequenceNumber: 0x46e1,
			Jitter:             273,
			LastSenderReport:   0x9f36432,
			Delay:              150137,
		}},
	}

	data, err := rr.Marshal()
	require.NoError(t, err)

	var decoded ReceiverReport
	require.NoError(t, decoded.Unmarshal(data))
	assert.Equal(t, rr, decoded)
}

func TestReceiverReportTooManyReports(t *testing.T) {
	rr := ReceiverReport{Reports: make([]ReceptionReport, 32)}
	_, err := rr.Marshal()
	assert.ErrorIs(t, err, errTooManyReports)
}

func TestSenderReportWrongType(t *testing.T) {
	rr := ReceiverReport{SSRC: 1, Reports: []ReceptionReport{{SSRC: 2}}}
	data, err := rr.Marshal()
	require.NoError(t, err)

	var sr SenderReport
	assert.ErrorIs(t, sr.Unmarshal(data), errWrongType)
}
