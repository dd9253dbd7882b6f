// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "encoding/binary"

// A FIREntry is a (SSRC, seqno) pair, as carried by FullIntraRequest.
type FIREntry struct {
	SSRC           uint32
	SequenceNumber uint8
}

// The FullIntraRequest packet is used to reliably request an Intra frame
// in a video stream, RFC 5104 §4.3.1.
type FullIntraRequest struct {
	SenderSSRC uint32
	MediaSSRC  uint32

	FIR []FIREntry
}

const firOffset = 8

// Header returns the Header associated with this packet.
func (p FullIntraRequest) Header() Header {
	return Header{
		Count:  FormatFIR,
		Type:   TypePayloadSpecificFeedback,
		Length: uint16((p.len() / 4) - 1),
	}
}

func (p FullIntraRequest) len() int {
	return headerLength + firOffset + len(p.FIR)*8
}

// Marshal encodes the packet in binary.
func (p FullIntraRequest) Marshal() ([]byte, error) {
	hData, err := p.Header().Marshal()
	if err != nil {
		return nil, err
	}

	rawPacket := make([]byte, p.len())
	copy(rawPacket, hData)
	binary.BigEndian.PutUint32(rawPacket[headerLength:], p.SenderSSRC)
	binary.BigEndian.PutUint32(rawPacket[headerLength+4:], p.MediaSSRC)

	for i, fir := range p.FIR {
		off := headerLength + firOffset + i*8
		binary.BigEndian.PutUint32(rawPacket[off:], fir.SSRC)
		rawPacket[off+4] = fir.SequenceNumber
	}

	return rawPacket, nil
}

// Unmarshal decodes the packet from binary.
func (p *FullIntraRequest) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength+firOffset {
		return errPacketTooShort
	}

	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypePayloadSpecificFeedback || h.Count != FormatFIR {
		return errWrongType
	}

	p.SenderSSRC = binary.BigEndian.Uint32(rawPacket[headerLength:])
	p.MediaSSRC = binary.BigEndian.Uint32(rawPacket[headerLength+4:])

	p.FIR = nil
	for i := headerLength + firOffset; i+8 <= len(rawPacket); i += 8 {
		p.FIR = append(p.FIR, FIREntry{
			SSRC:           binary.BigEndian.Uint32(rawPacket[i:]),
			SequenceNumber: rawPacket[i+4],
		})
	}

	return nil
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (p *FullIntraRequest) DestinationSSRC() []uint32 {
	ssrcs := make([]uint32, 0, len(p.FIR))
	for _, entry := range p.FIR {
		ssrcs = append(ssrcs, entry.SSRC)
	}
	return ssrcs
}
