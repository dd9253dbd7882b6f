// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoodbyeRoundTrip(t *testing.T) {
	maxSources := make([]uint32, 31)
	for i := range maxSources {
		maxSources[i] = uint32(i + 1)
	}

	for _, tt := range []struct {
		name string
		bye  Goodbye
	}{
		{"no reason", Goodbye{Sources: []uint32{0x902f9e2e}}},
		{"reason", Goodbye{Sources: []uint32{0x902f9e2e}, Reason: "camera malfunction"}},
		{"empty", Goodbye{Sources: []uint32{}}},
		{"max sources", Goodbye{Sources: maxSources, Reason: "RTP loop detected"}},
	} {
		data, err := tt.bye.Marshal()
		require.NoErrorf(t, err, "marshal %s", tt.name)

		var decoded Goodbye
		require.NoErrorf(t, decoded.Unmarshal(data), "unmarshal %s", tt.name)
		assert.Equalf(t, tt.bye.Reason, decoded.Reason, "%s", tt.name)
		assert.Equalf(t, len(tt.bye.Sources), len(decoded.Sources), "%s", tt.name)
	}
}

func TestGoodbyeTooManySources(t *testing.T) {
	bye := Goodbye{Sources: make([]uint32, 32)}
	_, err := bye.Marshal()
	assert.ErrorIs(t, err, errTooManySources)
}

func TestGoodbyeZeroLengthReason(t *testing.T) {
	bye := Goodbye{Sources: []uint32{1}, Reason: ""}
	data, err := bye.Marshal()
	require.NoError(t, err)
	assert.Len(t, data, 8)
}
