// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestREMBGolden(t *testing.T) {
	raw := []byte{
		143, 206, 0, 5,
		0, 0, 0, 1,
		0, 0, 0, 0,
		'R', 'E', 'M', 'B',
		1, 26, 32, 223,
		72, 116, 237, 22,
	}

	var remb ReceiverEstimatedMaximumBitrate
	require.NoError(t, remb.Unmarshal(raw))

	assert.Equal(t, uint32(1), remb.SenderSSRC)
	assert.Equal(t, float32(8927168), remb.Bitrate)
	assert.Equal(t, []uint32{1215622422}, remb.SSRCs)

	out, err := remb.Marshal()
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestREMBBadIdentifier(t *testing.T) {
	raw := []byte{
		143, 206, 0, 5,
		0, 0, 0, 1,
		0, 0, 0, 0,
		'R', 'E', 'M', 'X',
		1, 26, 32, 223,
		72, 116, 237, 22,
	}
	var remb ReceiverEstimatedMaximumBitrate
	assert.ErrorIs(t, remb.Unmarshal(raw), errBadUniqueIdentifier)
}

func TestREMBHighExponent(t *testing.T) {
	// exponent 50 scales mantissa 1 to 2^50 without overflowing the float
	raw := []byte{
		143, 206, 0, 4,
		0, 0, 0, 1,
		0, 0, 0, 0,
		'R', 'E', 'M', 'B',
		0, 50 << 2, 0, 1,
	}
	var remb ReceiverEstimatedMaximumBitrate
	require.NoError(t, remb.Unmarshal(raw))
	assert.InEpsilon(t, float64(1)*float64(uint64(1)<<50), float64(remb.Bitrate), 0.001)
}
