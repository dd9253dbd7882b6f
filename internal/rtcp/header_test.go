// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		name string
		h    Header
	}{
		{"sr", Header{Count: 31, Type: TypeSenderReport, Length: 4}},
		{"padding", Header{Padding: true, Count: 0, Type: TypeReceiverReport, Length: 1}},
		{"psfb", Header{Count: FormatREMB, Type: TypePayloadSpecificFeedback, Length: 5}},
	} {
		data, err := tt.h.Marshal()
		require.NoErrorf(t, err, "marshal %s", tt.name)

		var decoded Header
		require.NoErrorf(t, decoded.Unmarshal(data), "unmarshal %s", tt.name)
		assert.Equalf(t, tt.h, decoded, "%s", tt.name)
	}
}

func TestHeaderUnmarshalErrors(t *testing.T) {
	var h Header

	assert.ErrorIs(t, h.Unmarshal([]byte{0x81, 0xc9}), errPacketTooShort)

	// version 1
	assert.ErrorIs(t, h.Unmarshal([]byte{0x41, 0xc9, 0x00, 0x01}), errBadVersion)
}

func TestHeaderCountOverflow(t *testing.T) {
	h := Header{Count: 32, Type: TypeSenderReport}
	_, err := h.Marshal()
	assert.Error(t, err)
}
