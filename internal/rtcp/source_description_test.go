// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceDescriptionRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		name string
		sdes SourceDescription
	}{
		{
			"cname",
			SourceDescription{Chunks: []SourceDescriptionChunk{{
				Source: 0x902f9e2e,
				Items:  []SourceDescriptionItem{{Type: SDESCNAME, Text: "{9c00eb92-1afb-9d49-a47d-91f64eee69f5}"}},
			}}},
		},
		{
			"multiple items",
			SourceDescription{Chunks: []SourceDescriptionChunk{{
				Source: 1,
				Items: []SourceDescriptionItem{
					{Type: SDESCNAME, Text: "a"},
					{Type: SDESTool, Text: "tool"},
					{Type: SDESNote, Text: ""},
				},
			}}},
		},
		{
			"two chunks",
			SourceDescription{Chunks: []SourceDescriptionChunk{
				{Source: 1, Items: []SourceDescriptionItem{{Type: SDESCNAME, Text: "first"}}},
				{Source: 2, Items: []SourceDescriptionItem{{Type: SDESCNAME, Text: "second"}}},
			}},
		},
	} {
		data, err := tt.sdes.Marshal()
		require.NoErrorf(t, err, "marshal %s", tt.name)
		require.Zerof(t, len(data)%4, "%s not padded", tt.name)

		var decoded SourceDescription
		require.NoErrorf(t, decoded.Unmarshal(data), "unmarshal %s", tt.name)
		assert.Equalf(t, tt.sdes.Chunks, decoded.Chunks, "%s", tt.name)

		data2, err := decoded.Marshal()
		require.NoError(t, err)
		assert.Equalf(t, data, data2, "%s reserialize", tt.name)
	}
}

func TestSourceDescriptionItemTooLong(t *testing.T) {
	sdes := SourceDescription{Chunks: []SourceDescriptionChunk{{
		Source: 1,
		Items:  []SourceDescriptionItem{{Type: SDESCNAME, Text: strings.Repeat("x", 256)}}},
	}}
	_, err := sdes.Marshal()
	assert.ErrorIs(t, err, errSDESTextTooLong)
}
