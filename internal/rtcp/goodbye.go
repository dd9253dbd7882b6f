// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "encoding/binary"

// The Goodbye packet indicates that one or more sources are no longer active.
type Goodbye struct {
	// The SSRC/CSRC identifiers that are no longer active.
	Sources []uint32
	// Optional text indicating the reason for leaving, e.g., "camera malfunction" or "RTP loop detected".
	Reason string
}

// Header returns the Header associated with this packet.
func (g Goodbye) Header() Header {
	return Header{
		Padding: false,
		Count:   uint8(len(g.Sources)),
		Type:    TypeGoodbye,
		Length:  uint16((g.len() / 4) - 1),
	}
}

func (g Goodbye) len() int {
	srcsLength := len(g.Sources) * ssrcLength
	reasonLength := 0
	if g.Reason != "" {
		// length octet + text, padded to a 32-bit boundary
		reasonLength = 1 + len(g.Reason)
		reasonLength += (4 - reasonLength%4) % 4
	}
	return headerLength + srcsLength + reasonLength
}

// Marshal encodes the packet in binary.
func (g Goodbye) Marshal() ([]byte, error) {
	if len(g.Sources) > countMax {
		return nil, errTooManySources
	}
	if len(g.Reason) > sdesMaxOctets {
		return nil, errReasonTooLong
	}

	hData, err := g.Header().Marshal()
	if err != nil {
		return nil, err
	}

	rawPacket := make([]byte, 0, g.len())
	rawPacket = append(rawPacket, hData...)

	for _, s := range g.Sources {
		src := make([]byte, ssrcLength)
		binary.BigEndian.PutUint32(src, s)
		rawPacket = append(rawPacket, src...)
	}

	if g.Reason != "" {
		rawPacket = append(rawPacket, uint8(len(g.Reason)))
		rawPacket = append(rawPacket, []byte(g.Reason)...)
		for len(rawPacket)%4 != 0 {
			rawPacket = append(rawPacket, 0)
		}
	}

	return rawPacket, nil
}

// Unmarshal decodes the packet from binary.
func (g *Goodbye) Unmarshal(rawPacket []byte) error {
	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeGoodbye {
		return errWrongType
	}

	if len(rawPacket) < headerLength+int(h.Count)*ssrcLength {
		return errPacketTooShort
	}

	g.Sources = make([]uint32, h.Count)
	for i := 0; i < int(h.Count); i++ {
		g.Sources[i] = binary.BigEndian.Uint32(rawPacket[headerLength+i*ssrcLength:])
	}

	g.Reason = ""
	reasonOffset := headerLength + int(h.Count)*ssrcLength
	if reasonOffset < len(rawPacket) {
		reasonLen := int(rawPacket[reasonOffset])
		reasonEnd := reasonOffset + 1 + reasonLen
		if reasonEnd > len(rawPacket) {
			return errPacketTooShort
		}
		g.Reason = string(rawPacket[reasonOffset+1 : reasonEnd])
	}

	return nil
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (g *Goodbye) DestinationSSRC() []uint32 {
	out := make([]uint32, len(g.Sources))
	copy(out, g.Sources)
	return out
}
