// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "encoding/binary"

// RawPacket represents an unparsed RTCP packet. It's returned by Unmarshal
// when none of the other packet types match, including APP packets whose
// application-defined bodies are opaque to this package.
type RawPacket []byte

// Marshal encodes the packet in binary.
func (r RawPacket) Marshal() ([]byte, error) {
	if len(r) < headerLength {
		return nil, errPacketTooShort
	}
	out := make([]byte, len(r))
	copy(out, r)
	return out, nil
}

// Unmarshal decodes the packet from binary.
func (r *RawPacket) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength {
		return errPacketTooShort
	}
	*r = make(RawPacket, len(rawPacket))
	copy(*r, rawPacket)

	var h Header
	return h.Unmarshal(rawPacket)
}

// Header returns the Header associated with this packet.
func (r RawPacket) Header() Header {
	var h Header
	if err := h.Unmarshal(r); err != nil {
		return Header{}
	}
	return h
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (r *RawPacket) DestinationSSRC() []uint32 {
	if len(*r) >= headerLength+ssrcLength {
		return []uint32{binary.BigEndian.Uint32((*r)[headerLength:])}
	}
	return []uint32{}
}
